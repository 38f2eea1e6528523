package executor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/logger"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/market"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// ErrBelowMinimum means the exit notional is under the venue's order floor.
// The caller must treat the symbol as skipped, not exited.
var ErrBelowMinimum = errors.New("order value below minimum size")

// testModeFraction caps sells at 5% of the available balance in test mode.
var testModeFraction = decimal.NewFromFloat(0.05)

// ExitRequest is one EXIT decision handed to the executor.
type ExitRequest struct {
	Symbol       string
	Reason       models.ExitReason
	Available    decimal.Decimal // unlocked balance; the order never exceeds it
	CurrentPrice decimal.Decimal
	Identifier   string // idempotency key: symbol + cycle start
}

// Config tunes retry and confirmation behavior.
type Config struct {
	MaxRetries    int
	RetryBackoff  time.Duration
	FillTimeout   time.Duration
	MinOrderValue decimal.Decimal
	TestMode      bool
}

// Executor submits protective market exits with bounded retry and resolves each
// attempt to exactly one of SUCCEEDED / FAILED / UNKNOWN. The at-most-once
// guarantee lives in the caller's state handling: EXITED is committed only on
// SUCCEEDED or UNKNOWN, and an UNKNOWN keeps EXITED so no duplicate order can
// fire while reconciliation is pending.
type Executor struct {
	orders market.OrderService
	cfg    Config
}

func New(orders market.OrderService, cfg Config) *Executor {
	return &Executor{orders: orders, cfg: cfg}
}

// Execute places a market sell for the request and reports the outcome.
// The returned record always carries an outcome unless err is ErrBelowMinimum
// (or a context error before any submission), in which case nothing was sent.
func (e *Executor) Execute(ctx context.Context, req ExitRequest) (models.ExecutionRecord, error) {
	qty := req.Available
	if e.cfg.TestMode {
		scaled := qty.Mul(testModeFraction)
		if scaled.LessThan(qty) {
			logger.Log.Infof("[%s] Test mode: clamping sell from %s to %s", req.Symbol, qty, scaled)
			qty = scaled
		}
	}

	rec := models.ExecutionRecord{
		ID:           uuid.NewString(),
		Symbol:       req.Symbol,
		Reason:       req.Reason,
		RequestedQty: qty,
		ExecutedAt:   time.Now(),
	}

	if qty.Mul(req.CurrentPrice).LessThan(e.cfg.MinOrderValue) {
		logger.Log.Warnf("[%s] Exit skipped: value %s below minimum %s",
			req.Symbol, qty.Mul(req.CurrentPrice).StringFixed(0), e.cfg.MinOrderValue.StringFixed(0))
		return rec, ErrBelowMinimum
	}

	metricExitsAttempted.Inc()

	order, err := e.submitWithRetry(ctx, req.Symbol, qty, req.Identifier)
	if err != nil {
		if ctx.Err() != nil && order == nil {
			// Cycle cut off before anything was acknowledged: no order exists.
			return rec, ctx.Err()
		}
		metricExitsFailed.Inc()
		rec.Outcome = models.OutcomeFailed
		logger.Log.Errorf("[%s] Exit submission failed after %d attempts: %v",
			req.Symbol, e.cfg.MaxRetries, err)
		return rec, nil
	}

	rec.OrderID = order.ID
	return e.confirm(ctx, rec, req.CurrentPrice), nil
}

// submitWithRetry retries submission with exponential backoff. Only failures
// before acknowledgment are retried; once the venue returns an order id the
// result path switches to confirmation.
func (e *Executor) submitWithRetry(ctx context.Context, symbol string, qty decimal.Decimal, identifier string) (*market.Order, error) {
	var lastErr error
	delay := e.cfg.RetryBackoff

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		order, err := e.orders.SubmitMarketExit(ctx, symbol, qty, identifier)
		if err == nil {
			return order, nil
		}
		lastErr = err

		if errors.Is(err, market.ErrResultAmbiguous) {
			// Submission may have landed. Retrying risks a double sell; surface
			// an order shell so the caller confirms instead.
			return &market.Order{Symbol: symbol, Volume: qty}, nil
		}

		logger.Log.Warnf("[%s] Submission attempt %d/%d failed: %v", symbol, attempt, e.cfg.MaxRetries, err)
		if attempt < e.cfg.MaxRetries {
			metricSubmitRetries.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, lastErr
}

// confirm polls the order until it settles or the fill window closes.
// A window that closes without a terminal state is the one deliberately
// ambiguous path: the record becomes UNKNOWN and EXITED stands, trading a
// possible missed re-exit for protection against double-selling.
func (e *Executor) confirm(ctx context.Context, rec models.ExecutionRecord, fallbackPrice decimal.Decimal) models.ExecutionRecord {
	if rec.OrderID == "" {
		// Ambiguous submission with no id to poll.
		metricExitsAmbiguous.Inc()
		rec.Outcome = models.OutcomeUnknown
		return rec
	}

	deadline := time.Now().Add(e.cfg.FillTimeout)
	pollDelay := 500 * time.Millisecond
	consecutiveErrs := 0

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return e.finalCheck(rec, fallbackPrice)
		case <-time.After(pollDelay):
		}

		order, err := e.orders.GetOrder(ctx, rec.OrderID)
		if err != nil {
			consecutiveErrs++
			// Exponential backoff on poll errors, capped at 5s.
			pollDelay = min(pollDelay*2, 5*time.Second)
			logger.Log.Warnf("[%s] Order poll failed (%d): %v", rec.Symbol, consecutiveErrs, err)
			continue
		}
		consecutiveErrs = 0
		pollDelay = 500 * time.Millisecond

		if done, out := settle(order); done {
			return e.resolve(rec, order, out, fallbackPrice)
		}
	}

	return e.finalCheck(rec, fallbackPrice)
}

// finalCheck gives the venue one last chance to report a terminal state before
// the record is declared UNKNOWN.
func (e *Executor) finalCheck(rec models.ExecutionRecord, fallbackPrice decimal.Decimal) models.ExecutionRecord {
	checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := e.orders.GetOrder(checkCtx, rec.OrderID)
	if err == nil {
		if done, out := settle(order); done {
			return e.resolve(rec, order, out, fallbackPrice)
		}
	}

	metricExitsAmbiguous.Inc()
	rec.Outcome = models.OutcomeUnknown
	logger.Log.Errorf("[%s] Fill confirmation timed out for order %s; outcome UNKNOWN, reconciliation required",
		rec.Symbol, rec.OrderID)
	return rec
}

// settle maps a venue order state to a terminal outcome, when it has one.
func settle(o *market.Order) (bool, models.Outcome) {
	switch o.State {
	case market.OrderDone:
		return true, models.OutcomeSucceeded
	case market.OrderCancel:
		if o.FilledVolume().IsPositive() {
			// Canceled after a partial fill still moved the balance.
			return true, models.OutcomeSucceeded
		}
		return true, models.OutcomeFailed
	default:
		return false, ""
	}
}

func (e *Executor) resolve(rec models.ExecutionRecord, order *market.Order, out models.Outcome, fallbackPrice decimal.Decimal) models.ExecutionRecord {
	rec.Outcome = out
	if out == models.OutcomeSucceeded {
		metricExitsSucceeded.Inc()
		rec.FillQty = order.FilledVolume()
		rec.FillPrice = order.AvgFillPrice
		if rec.FillPrice.IsZero() {
			rec.FillPrice = fallbackPrice
		}
		logger.Log.Infof("[%s] Exit filled: %s @ %s (order %s, reason %s)",
			rec.Symbol, rec.FillQty, rec.FillPrice.StringFixed(0), rec.OrderID, rec.Reason)
	} else {
		metricExitsFailed.Inc()
		logger.Log.Errorf("[%s] Exit order %s terminated unfilled", rec.Symbol, rec.OrderID)
	}
	return rec
}
