package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// Ledger is the external durable portfolio record. Every write must be safe to
// repeat with the same data: syncs run after each execution, once per cycle, and
// again on the coarse reconciliation period, often with overlapping content.
type Ledger interface {
	// UpsertPosition records the current holding for one symbol.
	UpsertPosition(ctx context.Context, symbol string, quantity, price, value decimal.Decimal) error
	// RecordExecution stores one exit attempt keyed by its record id.
	RecordExecution(ctx context.Context, rec models.ExecutionRecord) error
	// RemoveStale drops position rows not present in the given symbol set, so a
	// full sync leaves the ledger mirroring the account exactly.
	RemoveStale(ctx context.Context, live []string) error
	Close() error
}
