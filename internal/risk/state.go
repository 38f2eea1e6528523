package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// Action is what the evaluator wants done for a symbol this cycle.
type Action int

const (
	// Hold leaves the position alone (state may still have been re-armed).
	Hold Action = iota
	// Trail records a favorable excursion: commit Next, no order.
	Trail
	// Exit fires a protective order; Next (EXITED) is committed only after the
	// executor resolves the submission.
	Exit
)

// Decision is the outcome of one evaluation. Next is the proposed trailing
// state; the caller owns the store and decides when to commit it, so a failed
// submission can leave the prior state untouched.
type Decision struct {
	Action Action
	Reason models.ExitReason
	Next   models.TrailingState
}

// NewArmedState is the fresh record for a symbol observed for the first time
// (or re-observed after its old record was pruned). Absence implies ARMED.
func NewArmedState(symbol string, now time.Time) models.TrailingState {
	return models.TrailingState{
		Symbol:    symbol,
		Status:    models.StatusArmed,
		UpdatedAt: now,
	}
}

// Evaluate runs the per-cycle state machine for one symbol.
//
//	ARMED    --price<=stop-------> EXITED (STOP_LOSS)
//	ARMED    --price>=target-----> EXITED (TAKE_PROFIT)
//	ARMED    --price>=entry+act--> TRAILING
//	TRAILING --price<=activeStop-> EXITED (TRAILING_STOP)
//	TRAILING --new high----------> TRAILING (stop ratchets up, never down)
//
// Stop-loss wins any tie with take-profit: capital preservation first.
// EXITED is terminal; the store prunes it once the balance disappears.
func Evaluate(state models.TrailingState, env models.RiskEnvelope, price decimal.Decimal, now time.Time) Decision {
	next := state
	next.UpdatedAt = now

	switch state.Status {
	case models.StatusTrailing:
		if price.LessThanOrEqual(state.ActiveStop) {
			next.Status = models.StatusExited
			return Decision{Action: Exit, Reason: models.ReasonTrailingStop, Next: next}
		}
		if price.GreaterThan(state.HighestPrice) {
			next.HighestPrice = price
			if raised := price.Sub(env.TrailingActivation); raised.GreaterThan(next.ActiveStop) {
				next.ActiveStop = raised
			}
			return Decision{Action: Trail, Next: next}
		}
		return Decision{Action: Hold, Next: next}

	case models.StatusExited:
		// Terminal. A still-present balance for an EXITED symbol means an
		// ambiguous execution is awaiting reconciliation; never fire again.
		return Decision{Action: Hold, Next: state}

	default: // ARMED, or an unknown status treated as a fresh record
		if price.LessThanOrEqual(env.StopLoss) {
			next.Status = models.StatusExited
			return Decision{Action: Exit, Reason: models.ReasonStopLoss, Next: next}
		}
		if price.GreaterThanOrEqual(env.TakeProfit) {
			next.Status = models.StatusExited
			return Decision{Action: Exit, Reason: models.ReasonTakeProfit, Next: next}
		}
		activation := env.EntryEstimate.Add(env.TrailingActivation)
		if price.GreaterThanOrEqual(activation) {
			next.Status = models.StatusTrailing
			next.HighestPrice = price
			next.ActiveStop = decimal.Max(env.StopLoss, price.Sub(env.TrailingActivation))
			return Decision{Action: Trail, Next: next}
		}
		return Decision{Action: Hold, Next: next}
	}
}
