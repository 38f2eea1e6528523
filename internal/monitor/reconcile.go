package monitor

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/logger"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/notify"
)

// syncLedger pushes the cycle's observed positions into the ledger and drops
// rows for symbols no longer held. Upserts are idempotent so replaying the
// same cycle is harmless. A failed write is retried once immediately, then
// left for the next cycle or the periodic reconciliation.
func (m *Monitor) syncLedger(ctx context.Context, positions []models.Position, live map[string]bool) {
	for _, pos := range positions {
		m.withLedgerRetry(ctx, "upsert "+pos.Symbol, func(ctx context.Context) error {
			return m.ledger.UpsertPosition(ctx, pos.Symbol, pos.Total(), pos.CurrentPrice, pos.MarketValue())
		})
	}

	symbols := make([]string, 0, len(live))
	for s := range live {
		symbols = append(symbols, s)
	}
	m.withLedgerRetry(ctx, "remove stale", func(ctx context.Context) error {
		return m.ledger.RemoveStale(ctx, symbols)
	})
}

// syncAfterExecution reflects a confirmed fill immediately, before the cycle
// moves to the next symbol: the position row shrinks by the filled quantity.
func (m *Monitor) syncAfterExecution(ctx context.Context, pos models.Position, rec models.ExecutionRecord) {
	remaining := pos.Total().Sub(rec.FillQty)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	m.withLedgerRetry(ctx, "post-exit upsert "+pos.Symbol, func(ctx context.Context) error {
		return m.ledger.UpsertPosition(ctx, pos.Symbol, remaining, rec.FillPrice, remaining.Mul(rec.FillPrice))
	})
}

func (m *Monitor) recordExecution(ctx context.Context, rec models.ExecutionRecord) {
	m.withLedgerRetry(ctx, "record execution "+rec.ID, func(ctx context.Context) error {
		return m.ledger.RecordExecution(ctx, rec)
	})
}

// withLedgerRetry applies the ledger failure policy: one immediate retry, then
// defer. Trailing state, not the ledger, is the source of truth for exit
// decisions, so a dead ledger only degrades reporting.
func (m *Monitor) withLedgerRetry(ctx context.Context, op string, fn func(context.Context) error) {
	err := fn(ctx)
	if err == nil {
		return
	}
	logger.Log.Warnf("Ledger %s failed, retrying once: %v", op, err)
	if err = fn(ctx); err != nil {
		logger.Log.Errorf("Ledger %s failed after retry, deferring to next sync: %v", op, err)
	}
}

// maybeReconcile runs the coarse full synchronization: on the configured
// period, every balance line (price fetched fresh) is pushed to the ledger
// regardless of whether any exit happened, correcting drift from cycles whose
// ledger writes were deferred.
func (m *Monitor) maybeReconcile(ctx context.Context, now time.Time, balances []models.Balance) {
	if now.Sub(m.lastReconcile) < m.cfg.ReconcileInterval {
		return
	}
	m.lastReconcile = now
	logger.Log.Info("Running periodic full ledger reconciliation")

	count := 0
	for _, bal := range balances {
		if bal.Symbol == "" {
			continue
		}
		price, err := m.provider.GetPrice(ctx, bal.Symbol)
		if err != nil {
			logger.Log.Warnf("[%s] Reconciliation price fetch failed: %v", bal.Symbol, err)
			continue
		}
		qty := bal.Quantity.Add(bal.Locked)
		m.withLedgerRetry(ctx, "reconcile "+bal.Symbol, func(ctx context.Context) error {
			return m.ledger.UpsertPosition(ctx, bal.Symbol, qty, price, qty.Mul(price))
		})
		count++
	}

	m.alerts.Notify(notify.SeverityInfo, "🔄 Portfolio reconciliation complete",
		notify.F("positions", strconv.Itoa(count)))
}
