package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/market"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// fakeHistory serves canned candles per symbol.
type fakeHistory struct {
	candles map[string][]models.Candle
	err     error
}

func (f *fakeHistory) GetCandles(ctx context.Context, symbol string, count int) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := f.candles[symbol]
	if len(c) > count {
		c = c[len(c)-count:]
	}
	return c, nil
}

func (f *fakeHistory) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func candle(high, low, close float64) models.Candle {
	return models.Candle{
		Time:  time.Now(),
		High:  decimal.NewFromFloat(high),
		Low:   decimal.NewFromFloat(low),
		Close: decimal.NewFromFloat(close),
	}
}

func TestTrueRange(t *testing.T) {
	prevClose := decimal.NewFromInt(100)

	// Plain high-low range.
	tr := trueRange(candle(110, 95, 105), prevClose)
	assert.True(t, tr.Equal(decimal.NewFromInt(15)), "got %s", tr)

	// Gap up: |high - prevClose| dominates.
	tr = trueRange(candle(130, 125, 128), prevClose)
	assert.True(t, tr.Equal(decimal.NewFromInt(30)), "got %s", tr)

	// Gap down: |low - prevClose| dominates.
	tr = trueRange(candle(80, 70, 75), prevClose)
	assert.True(t, tr.Equal(decimal.NewFromInt(30)), "got %s", tr)
}

func TestMeasure(t *testing.T) {
	// Three periods with constant 10-point range and no gaps: ATR must be 10.
	history := &fakeHistory{candles: map[string][]models.Candle{
		"KRW-BTC": {
			candle(105, 95, 100),
			candle(105, 95, 100),
			candle(105, 95, 100),
			candle(105, 95, 100),
		},
	}}

	est := NewEstimator(history, 3)
	m, err := est.Measure(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.True(t, m.Volatility.Equal(decimal.NewFromInt(10)), "got %s", m.Volatility)
	assert.Len(t, m.Candles, 4)
}

func TestMeasureInsufficientHistory(t *testing.T) {
	// 10 periods when 15 are required: the caller must be able to skip the symbol.
	candles := make([]models.Candle, 10)
	for i := range candles {
		candles[i] = candle(105, 95, 100)
	}
	history := &fakeHistory{candles: map[string][]models.Candle{"KRW-XRP": candles}}

	est := NewEstimator(history, 14)
	_, err := est.Measure(context.Background(), "KRW-XRP")
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrInsufficientHistory)
}

func TestMeasureProviderError(t *testing.T) {
	history := &fakeHistory{err: market.ErrDataProvider}
	est := NewEstimator(history, 14)
	_, err := est.Measure(context.Background(), "KRW-ETH")
	assert.ErrorIs(t, err, market.ErrDataProvider)
}

func TestEstimateEntry(t *testing.T) {
	current := decimal.NewFromInt(50000)

	// Midpoint of the last three periods' extremes: low 90, high 130 → 110.
	candles := []models.Candle{
		candle(200, 10, 100), // outside the lookback, must be ignored
		candle(120, 90, 110),
		candle(130, 100, 120),
		candle(125, 95, 115),
	}
	entry := EstimateEntry(candles, current)
	assert.True(t, entry.Equal(decimal.NewFromInt(110)), "got %s", entry)

	// Short history falls back to the current price.
	entry = EstimateEntry(candles[:2], current)
	assert.True(t, entry.Equal(current))
}
