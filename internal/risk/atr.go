package risk

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/market"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// Measure is the per-symbol volatility figure plus the history it was computed
// from. The candles are reused downstream for the entry estimate so a cycle
// fetches each symbol's history exactly once.
type Measure struct {
	Volatility decimal.Decimal // mean True Range over the window
	Candles    []models.Candle
}

// Estimator computes an ATR-style volatility measure from a bounded history
// window. It is stateless across cycles apart from the window length.
type Estimator struct {
	history market.HistoryProvider
	period  int
}

func NewEstimator(history market.HistoryProvider, period int) *Estimator {
	return &Estimator{history: history, period: period}
}

// Measure fetches period+1 daily candles for symbol and returns the rolling
// average of True Range over the most recent period entries.
//
// Fewer than period+1 candles is market.ErrInsufficientHistory; the caller must
// skip the symbol for the cycle, never abort the orchestrator.
func (e *Estimator) Measure(ctx context.Context, symbol string) (Measure, error) {
	candles, err := e.history.GetCandles(ctx, symbol, e.period+1)
	if err != nil {
		return Measure{}, errors.Wrapf(err, "fetch history for %s", symbol)
	}
	if len(candles) < e.period+1 {
		return Measure{}, errors.Wrapf(market.ErrInsufficientHistory,
			"%s: got %d periods, need %d", symbol, len(candles), e.period+1)
	}

	atr := averageTrueRange(candles, e.period)
	return Measure{Volatility: atr, Candles: candles}, nil
}

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|) for one period.
func trueRange(c models.Candle, prevClose decimal.Decimal) decimal.Decimal {
	tr := c.High.Sub(c.Low)
	if hc := c.High.Sub(prevClose).Abs(); hc.GreaterThan(tr) {
		tr = hc
	}
	if lc := c.Low.Sub(prevClose).Abs(); lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// averageTrueRange computes the simple mean of True Range over the most recent
// period candles. candles are oldest first and must have at least period+1 entries
// (the extra candle supplies the first previous close).
func averageTrueRange(candles []models.Candle, period int) decimal.Decimal {
	recent := candles[len(candles)-period-1:]

	sum := decimal.Zero
	for i := 1; i < len(recent); i++ {
		sum = sum.Add(trueRange(recent[i], recent[i-1].Close))
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// EstimateEntry approximates the entry price as the midpoint of the last three
// periods' extreme range. The engine does not track actual fills, so this is a
// documented approximation, not an observed price; with short history it falls
// back to the current price.
func EstimateEntry(candles []models.Candle, current decimal.Decimal) decimal.Decimal {
	const lookback = 3
	if len(candles) < lookback {
		return current
	}

	tail := candles[len(candles)-lookback:]
	low := tail[0].Low
	high := tail[0].High
	for _, c := range tail[1:] {
		if c.Low.LessThan(low) {
			low = c.Low
		}
		if c.High.GreaterThan(high) {
			high = c.High
		}
	}
	return low.Add(high).Div(decimal.NewFromInt(2))
}
