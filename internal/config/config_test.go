package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UPBIT_ACCESS_KEY", "test-access")
	t.Setenv("UPBIT_SECRET_KEY", "test-secret")

	cfg := Load()

	assert.Equal(t, "upbit", cfg.Exchange)
	assert.Equal(t, 14, cfg.ATRPeriod)
	assert.Equal(t, 2.0, cfg.StopLossMult)
	assert.Equal(t, 3.0, cfg.TakeProfitMult)
	assert.Equal(t, 1.5, cfg.TrailingActMult)
	assert.Equal(t, 5000.0, cfg.MinOrderValueKRW)
	assert.Equal(t, time.Hour, cfg.CycleInterval)
	assert.Equal(t, 5*time.Minute, cfg.CycleTimeout)
	assert.Equal(t, 4*time.Hour, cfg.ReconcileInterval)
	assert.Equal(t, 6, cfg.MonitorStartHour)
	assert.Equal(t, 23, cfg.MonitorEndHour)
	assert.Equal(t, 3, cfg.OrderMaxRetries)
	assert.True(t, cfg.TestMode, "test mode must be the default so live trading is opt-in")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPBIT_ACCESS_KEY", "test-access")
	t.Setenv("UPBIT_SECRET_KEY", "test-secret")
	t.Setenv("ATR_PERIOD", "20")
	t.Setenv("STOP_LOSS_MULT", "2.5")
	t.Setenv("CYCLE_INTERVAL_MINS", "30")
	t.Setenv("TEST_MODE", "false")

	cfg := Load()

	assert.Equal(t, 20, cfg.ATRPeriod)
	assert.Equal(t, 2.5, cfg.StopLossMult)
	assert.Equal(t, 30*time.Minute, cfg.CycleInterval)
	assert.False(t, cfg.TestMode)
}

func TestEnvHelpersFallBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	t.Setenv("SOME_FLOAT", "abc")
	t.Setenv("SOME_BOOL", "maybe")
	t.Setenv("SOME_EMPTY", "")

	assert.Equal(t, 7, getEnvAsInt("SOME_INT", 7))
	assert.Equal(t, 1.5, getEnvAsFloat64("SOME_FLOAT", 1.5))
	assert.True(t, getEnvAsBool("SOME_BOOL", true))
	assert.Equal(t, "fallback", getEnv("SOME_EMPTY", "fallback"))
}

func TestGetEnvAsBoolSpellings(t *testing.T) {
	for _, v := range []string{"true", "1", "t", "YES"} {
		t.Setenv("FLAG", v)
		assert.True(t, getEnvAsBool("FLAG", false), "spelling %q", v)
	}
	for _, v := range []string{"false", "0", "f", "No"} {
		t.Setenv("FLAG", v)
		assert.False(t, getEnvAsBool("FLAG", true), "spelling %q", v)
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "***", maskSecret("abc"))
	assert.Equal(t, "***6789", maskSecret("123456789"))
}
