package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

func testEnvelope(t *testing.T) models.RiskEnvelope {
	t.Helper()
	env, err := ComputeEnvelope(decimal.NewFromInt(45_000_000), decimal.NewFromInt(1_000_000), defaultParams)
	require.NoError(t, err)
	return env
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestArmedStopLoss(t *testing.T) {
	env := testEnvelope(t)
	state := NewArmedState("KRW-BTC", time.Now())

	dec := Evaluate(state, env, price(42_900_000), time.Now())
	assert.Equal(t, Exit, dec.Action)
	assert.Equal(t, models.ReasonStopLoss, dec.Reason)
	assert.Equal(t, models.StatusExited, dec.Next.Status)
}

func TestArmedTakeProfit(t *testing.T) {
	env := testEnvelope(t)
	state := NewArmedState("KRW-BTC", time.Now())

	dec := Evaluate(state, env, price(48_000_000), time.Now())
	assert.Equal(t, Exit, dec.Action)
	assert.Equal(t, models.ReasonTakeProfit, dec.Reason)
	assert.Equal(t, models.StatusExited, dec.Next.Status)
}

func TestArmedActivatesTrailing(t *testing.T) {
	env := testEnvelope(t)
	state := NewArmedState("KRW-BTC", time.Now())

	// 47,000,000 is past entry + 1,500,000 activation.
	dec := Evaluate(state, env, price(47_000_000), time.Now())
	assert.Equal(t, Trail, dec.Action)
	assert.Equal(t, models.StatusTrailing, dec.Next.Status)
	assert.True(t, dec.Next.HighestPrice.Equal(price(47_000_000)))
	// max(stopLoss 43,000,000; 47,000,000 - 1,500,000) = 45,500,000
	assert.True(t, dec.Next.ActiveStop.Equal(price(45_500_000)), "stop %s", dec.Next.ActiveStop)
}

func TestArmedHoldsBetweenLevels(t *testing.T) {
	env := testEnvelope(t)
	state := NewArmedState("KRW-BTC", time.Now())

	dec := Evaluate(state, env, price(45_000_000), time.Now())
	assert.Equal(t, Hold, dec.Action)
	assert.Equal(t, models.StatusArmed, dec.Next.Status)
}

func TestTrailingStopIsMonotonic(t *testing.T) {
	env := testEnvelope(t)
	now := time.Now()
	state := NewArmedState("KRW-BTC", now)

	// Arbitrary up/down walk; the active stop must never decrease.
	walk := []int64{47_000_000, 48_000_000, 46_800_000, 49_000_000, 47_600_000, 49_500_000}
	lastStop := decimal.Zero
	for _, p := range walk {
		dec := Evaluate(state, env, price(p), now)
		require.NotEqual(t, Exit, dec.Action, "price %d should not exit", p)
		state = dec.Next
		assert.True(t, state.ActiveStop.GreaterThanOrEqual(lastStop),
			"stop lowered from %s to %s at price %d", lastStop, state.ActiveStop, p)
		lastStop = state.ActiveStop
	}

	// After the 49,500,000 high the stop sits at 48,000,000; a dip through it exits.
	assert.True(t, state.ActiveStop.Equal(price(48_000_000)), "stop %s", state.ActiveStop)
	dec := Evaluate(state, env, price(47_900_000), now)
	assert.Equal(t, Exit, dec.Action)
	assert.Equal(t, models.ReasonTrailingStop, dec.Reason)
}

func TestTrailingDipAboveStopHolds(t *testing.T) {
	env := testEnvelope(t)
	now := time.Now()
	state := Evaluate(NewArmedState("KRW-BTC", now), env, price(47_000_000), now).Next

	dec := Evaluate(state, env, price(46_000_000), now)
	assert.Equal(t, Hold, dec.Action)
	assert.True(t, dec.Next.HighestPrice.Equal(price(47_000_000)), "high must not move down")
}

func TestExitedIsTerminal(t *testing.T) {
	env := testEnvelope(t)
	now := time.Now()
	state := models.TrailingState{Symbol: "KRW-BTC", Status: models.StatusExited}

	// Even a price deep through the stop must not fire again.
	dec := Evaluate(state, env, price(10_000_000), now)
	assert.Equal(t, Hold, dec.Action)
	assert.Equal(t, models.StatusExited, dec.Next.Status)
}

func TestStopLossPriorityOverTakeProfit(t *testing.T) {
	// Degenerate envelope where both conditions hold at once: capital
	// preservation must win.
	env := models.RiskEnvelope{
		EntryEstimate:      price(100),
		StopLoss:           price(150),
		TakeProfit:         price(50),
		TrailingActivation: price(10),
	}
	dec := Evaluate(NewArmedState("KRW-BTC", time.Now()), env, price(100), time.Now())
	assert.Equal(t, Exit, dec.Action)
	assert.Equal(t, models.ReasonStopLoss, dec.Reason)
}

func TestFreshStateIsArmed(t *testing.T) {
	state := NewArmedState("KRW-DOGE", time.Now())
	assert.Equal(t, models.StatusArmed, state.Status)
	assert.True(t, state.ActiveStop.IsZero())
	assert.True(t, state.HighestPrice.IsZero())
}
