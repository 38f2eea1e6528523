// Package monitor runs the per-cycle position risk pipeline: volatility
// estimation, envelope calculation, trailing-state evaluation, protective
// exits, and ledger synchronization.
package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/config"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/executor"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/ledger"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/market"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/notify"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/risk"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/storage"
)

// Alerter is the narrow sink the monitor notifies through.
type Alerter interface {
	Notify(severity notify.Severity, message string, fields ...notify.Field)
}

// Monitor orchestrates monitoring cycles. It owns no scheduling: the caller
// invokes RunCycle and must guarantee that two cycles never overlap.
type Monitor struct {
	cfg       *config.Config
	provider  market.Provider
	store     *storage.Store
	ledger    ledger.Ledger
	alerts    Alerter
	estimator *risk.Estimator
	exec      *executor.Executor
	params    risk.EnvelopeParams

	lastReconcile time.Time
}

func New(cfg *config.Config, provider market.Provider, store *storage.Store, led ledger.Ledger, alerts Alerter) *Monitor {
	return &Monitor{
		cfg:       cfg,
		provider:  provider,
		store:     store,
		ledger:    led,
		alerts:    alerts,
		estimator: risk.NewEstimator(provider, cfg.ATRPeriod),
		params:    risk.ParamsFromFloats(cfg.StopLossMult, cfg.TakeProfitMult, cfg.TrailingActMult),
		exec: executor.New(provider, executor.Config{
			MaxRetries:    cfg.OrderMaxRetries,
			RetryBackoff:  cfg.OrderRetryBackoff,
			FillTimeout:   cfg.FillPollTimeout,
			MinOrderValue: decimal.NewFromFloat(cfg.MinOrderValueKRW),
			TestMode:      cfg.TestMode,
		}),
	}
}

// InMonitoringWindow reports whether cycles should run at the given time.
// Test mode monitors around the clock.
func (m *Monitor) InMonitoringWindow(now time.Time) bool {
	if m.cfg.TestMode {
		return true
	}
	hour := now.In(config.SeoulLoc).Hour()
	return hour >= m.cfg.MonitorStartHour && hour <= m.cfg.MonitorEndHour
}
