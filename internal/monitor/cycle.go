package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/executor"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/logger"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/notify"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/risk"
)

// accumulator combines per-symbol worker results. All mutation goes through
// the mutex; workers never share any other writable state.
type accumulator struct {
	mu        sync.Mutex
	summary   models.CycleSummary
	positions []models.Position
}

func (a *accumulator) monitored(pos models.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.PositionsMonitored++
	a.positions = append(a.positions, pos)
}

func (a *accumulator) skipped() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.SymbolsSkipped++
}

func (a *accumulator) alerted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.AlertsRaised++
}

func (a *accumulator) executed(rec models.ExecutionRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.OrdersExecuted++
	a.summary.Executions = append(a.summary.Executions, rec)
}

// RunCycle performs one full monitoring pass over the open positions and
// returns its summary. Cancellation of ctx stops unprocessed symbols; any
// exits already committed stand.
func (m *Monitor) RunCycle(ctx context.Context, now time.Time) models.CycleSummary {
	acc := &accumulator{summary: models.CycleSummary{StartedAt: now}}

	balances, err := m.provider.ListBalances(ctx)
	if err != nil {
		logger.Log.Errorf("Cycle aborted: cannot enumerate balances: %v", err)
		m.alerts.Notify(notify.SeverityWarn, "Monitoring cycle aborted: balance enumeration failed",
			notify.F("error", err.Error()))
		return acc.summary
	}

	cash := decimal.Zero
	live := make(map[string]bool)
	var held []models.Balance
	for _, b := range balances {
		if b.Symbol == "" {
			cash = cash.Add(b.Quantity).Add(b.Locked)
			continue
		}
		if b.Quantity.Add(b.Locked).IsPositive() {
			live[b.Symbol] = true
			held = append(held, b)
		}
	}

	// A symbol gone from the balances takes its trailing state with it; a
	// reopened position then re-arms from scratch.
	if pruned := m.store.Prune(live); len(pruned) > 0 {
		logger.Log.Infof("Pruned trailing state for closed positions: %v", pruned)
	}

	sem := make(chan struct{}, m.cfg.CycleWorkers)
	var wg sync.WaitGroup
	for _, bal := range held {
		wg.Add(1)
		sem <- struct{}{}
		go func(bal models.Balance) {
			defer wg.Done()
			defer func() { <-sem }()
			m.processSymbol(ctx, now, bal, acc)
		}(bal)
	}
	wg.Wait()

	summary := acc.summary
	total := cash
	for _, pos := range acc.positions {
		total = total.Add(pos.MarketValue())
	}
	summary.TotalValue = total

	summary.AlertsRaised += m.concentrationAlerts(acc.positions, total)

	if err := m.store.Save(); err != nil {
		logger.Log.Errorf("Failed to persist trailing state: %v", err)
	}

	m.syncLedger(ctx, acc.positions, live)
	m.maybeReconcile(ctx, now, balances)
	m.sendSummary(summary)

	metricCyclesRun.Inc()
	metricPositions.Set(float64(summary.PositionsMonitored))
	v, _ := total.Float64()
	metricPortfolioValue.Set(v)
	return summary
}

// processSymbol runs the full pipeline for one position. Every failure here is
// contained to the symbol: log, alert, count it skipped, move on.
func (m *Monitor) processSymbol(ctx context.Context, now time.Time, bal models.Balance, acc *accumulator) {
	symbol := bal.Symbol
	if ctx.Err() != nil {
		acc.skipped()
		metricSymbolsSkipped.Inc()
		return
	}

	price, err := m.provider.GetPrice(ctx, symbol)
	if err != nil {
		m.skipSymbol(acc, symbol, "price fetch failed", err)
		return
	}

	measure, err := m.estimator.Measure(ctx, symbol)
	if err != nil {
		m.skipSymbol(acc, symbol, "volatility unavailable", err)
		return
	}

	entry := risk.EstimateEntry(measure.Candles, price)
	env, err := risk.ComputeEnvelope(entry, measure.Volatility, m.params)
	if err != nil {
		m.skipSymbol(acc, symbol, "unusable volatility", err)
		return
	}

	pos := models.Position{
		Symbol:        symbol,
		Currency:      bal.Currency,
		Available:     bal.Quantity,
		Locked:        bal.Locked,
		CurrentPrice:  price,
		EntryEstimate: entry,
	}

	state, ok := m.store.Get(symbol)
	if !ok {
		state = risk.NewArmedState(symbol, now)
	}

	dec := risk.Evaluate(state, env, price, now)
	switch dec.Action {
	case risk.Exit:
		if !m.handleExit(ctx, now, pos, dec, acc) {
			return // skipped mid-transition, not monitored
		}
	case risk.Trail:
		if dec.Next.ActiveStop.GreaterThan(state.ActiveStop) {
			logger.Log.Infof("[%s] Trailing stop raised to %s (high %s)",
				symbol, dec.Next.ActiveStop.StringFixed(0), dec.Next.HighestPrice.StringFixed(0))
		}
		m.store.Put(dec.Next)
	default:
		m.store.Put(dec.Next)
	}

	// Informational only: high volatility never triggers an exit by itself.
	volPct := measure.Volatility.Div(price).Mul(decimal.NewFromInt(100))
	if volPct.GreaterThan(decimal.NewFromFloat(m.cfg.HighVolAlertPct)) {
		m.alerts.Notify(notify.SeverityWarn, fmt.Sprintf("High volatility on %s", symbol),
			notify.F("atr_pct", volPct.StringFixed(1)+"%"),
			notify.F("price", price.StringFixed(0)))
		acc.alerted()
	}

	acc.monitored(pos)
}

func (m *Monitor) skipSymbol(acc *accumulator, symbol, reason string, err error) {
	logger.Log.Warnf("[%s] Skipped for this cycle: %s: %v", symbol, reason, err)
	m.alerts.Notify(notify.SeverityWarn, fmt.Sprintf("Symbol %s skipped: %s", symbol, reason),
		notify.F("error", err.Error()))
	acc.skipped()
	acc.alerted()
	metricSymbolsSkipped.Inc()
}

// handleExit treats the state transition and the order submission as one unit:
// EXITED is committed only when an order verifiably exists (filled, or
// acknowledged with an ambiguous result). Reports whether the symbol finished
// processing (true even for a failed submission, which reverts the state).
func (m *Monitor) handleExit(ctx context.Context, now time.Time, pos models.Position, dec risk.Decision, acc *accumulator) bool {
	req := executor.ExitRequest{
		Symbol:       pos.Symbol,
		Reason:       dec.Reason,
		Available:    pos.Available,
		CurrentPrice: pos.CurrentPrice,
		Identifier:   fmt.Sprintf("%s-%d", pos.Symbol, now.Unix()),
	}

	rec, err := m.exec.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, executor.ErrBelowMinimum) {
			// Too small to sell; leave the prior state so a larger balance or a
			// config change can act later.
			return true
		}
		// Cycle cut off before submission: state stays as it was.
		acc.skipped()
		metricSymbolsSkipped.Inc()
		return false
	}

	switch rec.Outcome {
	case models.OutcomeFailed:
		// No order exists. Reverting (i.e. not committing EXITED) lets the next
		// cycle retry the decision instead of leaving a phantom exit.
		logger.Log.Warnf("[%s] Exit reverted to %s after failed submission", pos.Symbol, priorStatus(dec))
		m.alerts.Notify(notify.SeverityWarn, fmt.Sprintf("Exit order failed for %s, will retry next cycle", pos.Symbol),
			notify.F("reason", string(dec.Reason)))
		acc.alerted()

	case models.OutcomeUnknown:
		// Order may have filled. Keeping EXITED risks a missed exit but never a
		// double sell; reconciliation has to resolve it.
		m.store.Put(dec.Next)
		m.alerts.Notify(notify.SeverityHigh, fmt.Sprintf("Exit result UNKNOWN for %s, reconcile against account balance", pos.Symbol),
			notify.F("order_id", rec.OrderID),
			notify.F("reason", string(dec.Reason)),
			notify.F("requested_qty", rec.RequestedQty.String()))
		acc.alerted()
		acc.executed(rec)

	case models.OutcomeSucceeded:
		m.store.Put(dec.Next)
		m.notifyFill(pos, rec)
		m.syncAfterExecution(ctx, pos, rec)
		acc.executed(rec)
	}

	m.recordExecution(ctx, rec)
	return true
}

func (m *Monitor) notifyFill(pos models.Position, rec models.ExecutionRecord) {
	pnl := "n/a"
	if pos.EntryEstimate.IsPositive() {
		pct := rec.FillPrice.Sub(pos.EntryEstimate).Div(pos.EntryEstimate).Mul(decimal.NewFromInt(100))
		pnl = pct.StringFixed(2) + "%"
	}
	m.alerts.Notify(notify.SeverityInfo, fmt.Sprintf("🛡️ %s executed for %s", rec.Reason, pos.Symbol),
		notify.F("qty", rec.FillQty.String()),
		notify.F("price", rec.FillPrice.StringFixed(0)),
		notify.F("p&l", pnl),
		notify.F("order_id", rec.OrderID))
}

func priorStatus(dec risk.Decision) models.TrailingStatus {
	if dec.Reason == models.ReasonTrailingStop {
		return models.StatusTrailing
	}
	return models.StatusArmed
}
