package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// ErrInvalidVolatility rejects a zero or negative volatility figure. No usable
// envelope can be derived from it; the symbol is skipped for the cycle.
var ErrInvalidVolatility = errors.New("invalid volatility")

// EnvelopeParams are the configured ATR multipliers. All must be positive,
// which also guarantees stopLoss < entry < takeProfit.
type EnvelopeParams struct {
	StopLossMult   decimal.Decimal
	TakeProfitMult decimal.Decimal
	TrailingMult   decimal.Decimal
}

// ParamsFromFloats builds EnvelopeParams from the configured float knobs.
func ParamsFromFloats(sl, tp, trail float64) EnvelopeParams {
	return EnvelopeParams{
		StopLossMult:   decimal.NewFromFloat(sl),
		TakeProfitMult: decimal.NewFromFloat(tp),
		TrailingMult:   decimal.NewFromFloat(trail),
	}
}

// ComputeEnvelope derives the stop-loss / take-profit / trailing-activation
// triple for one position. Deterministic, no I/O. The stop-loss is floored at
// zero since a negative price level is meaningless.
func ComputeEnvelope(entry, volatility decimal.Decimal, p EnvelopeParams) (models.RiskEnvelope, error) {
	if !volatility.IsPositive() {
		return models.RiskEnvelope{}, ErrInvalidVolatility
	}

	stop := entry.Sub(volatility.Mul(p.StopLossMult))
	if stop.IsNegative() {
		stop = decimal.Zero
	}

	return models.RiskEnvelope{
		Volatility:         volatility,
		EntryEstimate:      entry,
		StopLoss:           stop,
		TakeProfit:         entry.Add(volatility.Mul(p.TakeProfitMult)),
		TrailingActivation: volatility.Mul(p.TrailingMult),
	}, nil
}
