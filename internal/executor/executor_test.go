package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/market"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// fakeOrders scripts submission results and order states, and counts calls.
type fakeOrders struct {
	mu         sync.Mutex
	submitErrs []error // consumed per submission attempt; nil entry = ack
	submits    int
	order      market.Order // returned by GetOrder
	getErr     error
}

func (f *fakeOrders) SubmitMarketExit(ctx context.Context, symbol string, qty decimal.Decimal, identifier string) (*market.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.submits < len(f.submitErrs) {
		err = f.submitErrs[f.submits]
	}
	f.submits++
	if err != nil {
		return nil, err
	}

	f.order.ID = "order-1"
	f.order.Symbol = symbol
	if f.order.Volume.IsZero() {
		f.order.Volume = qty
	}
	o := f.order
	return &o, nil
}

func (f *fakeOrders) GetOrder(ctx context.Context, orderID string) (*market.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	o := f.order
	o.ID = orderID
	return &o, nil
}

func (f *fakeOrders) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func testConfig() Config {
	return Config{
		MaxRetries:    3,
		RetryBackoff:  time.Millisecond,
		FillTimeout:   50 * time.Millisecond,
		MinOrderValue: decimal.NewFromInt(5000),
	}
}

func request() ExitRequest {
	return ExitRequest{
		Symbol:       "KRW-BTC",
		Reason:       models.ReasonStopLoss,
		Available:    decimal.NewFromFloat(0.5),
		CurrentPrice: decimal.NewFromInt(45_000_000),
		Identifier:   "KRW-BTC-1700000000",
	}
}

func filledOrder(qty, price int64) market.Order {
	vol := decimal.NewFromInt(qty)
	return market.Order{
		State:        market.OrderDone,
		Volume:       vol,
		Remaining:    decimal.Zero,
		AvgFillPrice: decimal.NewFromInt(price),
	}
}

func TestRetryThenSuccessYieldsOneRecord(t *testing.T) {
	orders := &fakeOrders{
		submitErrs: []error{market.ErrSubmissionFailed, nil},
		order:      filledOrder(1, 42_900_000),
	}
	ex := New(orders, testConfig())

	rec, err := ex.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, 2, orders.submitCount(), "one failure plus one success")
	assert.True(t, rec.FillPrice.Equal(decimal.NewFromInt(42_900_000)))
	assert.Equal(t, "order-1", rec.OrderID)
}

func TestRetryExhaustionFails(t *testing.T) {
	orders := &fakeOrders{
		submitErrs: []error{market.ErrSubmissionFailed, market.ErrSubmissionFailed, market.ErrSubmissionFailed},
	}
	ex := New(orders, testConfig())

	rec, err := ex.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, rec.Outcome)
	assert.Equal(t, 3, orders.submitCount())
	assert.Empty(t, rec.OrderID)
}

func TestAmbiguousSubmissionIsNeverRetried(t *testing.T) {
	// A timeout after the request went out: the order may exist, so the
	// executor must not submit again.
	orders := &fakeOrders{
		submitErrs: []error{market.ErrResultAmbiguous},
	}
	ex := New(orders, testConfig())

	rec, err := ex.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnknown, rec.Outcome)
	assert.Equal(t, 1, orders.submitCount(), "ambiguous result must stop submissions")
}

func TestUnconfirmedFillIsUnknown(t *testing.T) {
	orders := &fakeOrders{
		order: market.Order{State: market.OrderWait, Volume: decimal.NewFromInt(1), Remaining: decimal.NewFromInt(1)},
	}
	ex := New(orders, testConfig())

	rec, err := ex.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnknown, rec.Outcome)
	assert.Equal(t, 1, orders.submitCount())
	assert.Equal(t, "order-1", rec.OrderID)
}

func TestCanceledWithPartialFillSucceeds(t *testing.T) {
	orders := &fakeOrders{
		order: market.Order{
			State:        market.OrderCancel,
			Volume:       decimal.NewFromInt(10),
			Remaining:    decimal.NewFromInt(4),
			AvgFillPrice: decimal.NewFromInt(42_900_000),
		},
	}
	ex := New(orders, testConfig())

	rec, err := ex.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSucceeded, rec.Outcome)
	assert.True(t, rec.FillQty.Equal(decimal.NewFromInt(6)), "fill %s", rec.FillQty)
}

func TestCanceledUnfilledFails(t *testing.T) {
	orders := &fakeOrders{
		order: market.Order{State: market.OrderCancel, Volume: decimal.NewFromInt(1), Remaining: decimal.NewFromInt(1)},
	}
	ex := New(orders, testConfig())

	rec, err := ex.Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, rec.Outcome)
}

func TestBelowMinimumSkipsSubmission(t *testing.T) {
	orders := &fakeOrders{}
	ex := New(orders, testConfig())

	req := request()
	req.Available = decimal.NewFromFloat(0.00000001) // worth well under 5,000 KRW

	_, err := ex.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrBelowMinimum)
	assert.Zero(t, orders.submitCount())
}

func TestTestModeClampsQuantity(t *testing.T) {
	orders := &fakeOrders{order: filledOrder(1, 45_000_000)}
	cfg := testConfig()
	cfg.TestMode = true
	ex := New(orders, cfg)

	rec, err := ex.Execute(context.Background(), request())
	require.NoError(t, err)
	// 5% of 0.5.
	assert.True(t, rec.RequestedQty.Equal(decimal.NewFromFloat(0.025)), "qty %s", rec.RequestedQty)
}
