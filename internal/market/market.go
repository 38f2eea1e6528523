package market

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// Sentinel errors for the provider contract. Callers match with errors.Is and
// apply the skip-symbol policy; they never abort a whole cycle.
var (
	// ErrInsufficientHistory means the venue returned fewer periods than requested.
	ErrInsufficientHistory = errors.New("insufficient price history")
	// ErrDataProvider wraps any venue-side failure fetching prices or history.
	ErrDataProvider = errors.New("data provider error")
	// ErrSubmissionFailed means the order was rejected or never acknowledged.
	ErrSubmissionFailed = errors.New("order submission failed")
	// ErrResultAmbiguous means the order was acknowledged but its final state is unknown.
	ErrResultAmbiguous = errors.New("order result ambiguous")
)

// HistoryProvider supplies OHLC candles and current prices.
//
// Interfaces here define behavior only, so the Upbit adapter, the Alpaca adapter,
// and test fakes are interchangeable to everything above this package.
type HistoryProvider interface {
	// GetCandles returns up to count daily candles for symbol, oldest first.
	GetCandles(ctx context.Context, symbol string, count int) ([]models.Candle, error)
	// GetPrice returns the last traded price for symbol.
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// AccountProvider reads account balances.
type AccountProvider interface {
	ListBalances(ctx context.Context) ([]models.Balance, error)
}

// OrderState is the venue-reported lifecycle of an order.
type OrderState string

const (
	OrderWait   OrderState = "wait"
	OrderDone   OrderState = "done"
	OrderCancel OrderState = "cancel"
)

// Order is the venue view of a placed order.
type Order struct {
	ID           string
	Symbol       string
	State        OrderState
	Volume       decimal.Decimal
	Remaining    decimal.Decimal
	AvgFillPrice decimal.Decimal
	CreatedAt    time.Time
}

// FilledVolume returns how much of the order has executed.
func (o Order) FilledVolume() decimal.Decimal {
	return o.Volume.Sub(o.Remaining)
}

// OrderService places and inspects protective exit orders.
type OrderService interface {
	// SubmitMarketExit places a market sell for qty of symbol. identifier is a
	// client-side idempotency key forwarded to venues that support deduplication.
	SubmitMarketExit(ctx context.Context, symbol string, qty decimal.Decimal, identifier string) (*Order, error)
	// GetOrder fetches the current state of a previously submitted order.
	GetOrder(ctx context.Context, orderID string) (*Order, error)
}

// Provider is the full venue surface the engine needs. Both adapters implement it.
type Provider interface {
	HistoryProvider
	AccountProvider
	OrderService
}
