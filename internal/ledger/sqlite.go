package ledger

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	symbol     TEXT PRIMARY KEY,
	quantity   TEXT NOT NULL,
	price      TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS executions (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	reason        TEXT NOT NULL,
	requested_qty TEXT NOT NULL,
	fill_qty      TEXT NOT NULL,
	fill_price    TEXT NOT NULL,
	order_id      TEXT,
	outcome       TEXT NOT NULL,
	executed_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_symbol ON executions(symbol);
`

// SQLiteLedger is the embedded implementation of Ledger. Decimals are stored as
// text to keep exact values round-trippable.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the ledger database at path.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger db")
	}
	// modernc sqlite is single-writer; serialize access through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate ledger schema")
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) UpsertPosition(ctx context.Context, symbol string, quantity, price, value decimal.Decimal) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO positions (symbol, quantity, price, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			quantity = excluded.quantity,
			price = excluded.price,
			value = excluded.value,
			updated_at = excluded.updated_at`,
		symbol, quantity.String(), price.String(), value.String(), time.Now().UTC())
	return errors.Wrapf(err, "upsert position %s", symbol)
}

func (l *SQLiteLedger) RecordExecution(ctx context.Context, rec models.ExecutionRecord) error {
	// Keyed on the record id: replaying the same record is a no-op overwrite,
	// which is what makes the post-retry sync safe.
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO executions (id, symbol, reason, requested_qty, fill_qty, fill_price, order_id, outcome, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fill_qty = excluded.fill_qty,
			fill_price = excluded.fill_price,
			order_id = excluded.order_id,
			outcome = excluded.outcome`,
		rec.ID, rec.Symbol, string(rec.Reason), rec.RequestedQty.String(),
		rec.FillQty.String(), rec.FillPrice.String(), rec.OrderID, string(rec.Outcome),
		rec.ExecutedAt.UTC())
	return errors.Wrapf(err, "record execution %s", rec.ID)
}

func (l *SQLiteLedger) RemoveStale(ctx context.Context, live []string) error {
	if len(live) == 0 {
		_, err := l.db.ExecContext(ctx, `DELETE FROM positions`)
		return errors.Wrap(err, "clear positions")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(live)), ",")
	args := make([]any, len(live))
	for i, s := range live {
		args[i] = s
	}
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM positions WHERE symbol NOT IN (`+placeholders+`)`, args...)
	return errors.Wrap(err, "remove stale positions")
}

// Executions returns recorded executions for a symbol, newest first.
// Used by reconciliation to find UNKNOWN outcomes that need a human or a
// later cycle to resolve.
func (l *SQLiteLedger) Executions(ctx context.Context, symbol string) ([]models.ExecutionRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, symbol, reason, requested_qty, fill_qty, fill_price, order_id, outcome, executed_at
		FROM executions WHERE symbol = ? ORDER BY executed_at DESC`, symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "query executions for %s", symbol)
	}
	defer rows.Close()

	var out []models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		var reqQty, fillQty, fillPrice, reason, outcome string
		if err := rows.Scan(&rec.ID, &rec.Symbol, &reason, &reqQty, &fillQty,
			&fillPrice, &rec.OrderID, &outcome, &rec.ExecutedAt); err != nil {
			return nil, errors.Wrap(err, "scan execution row")
		}
		rec.Reason = models.ExitReason(reason)
		rec.Outcome = models.Outcome(outcome)
		if rec.RequestedQty, err = decimal.NewFromString(reqQty); err != nil {
			return nil, errors.Wrap(err, "parse requested qty")
		}
		if rec.FillQty, err = decimal.NewFromString(fillQty); err != nil {
			return nil, errors.Wrap(err, "parse fill qty")
		}
		if rec.FillPrice, err = decimal.NewFromString(fillPrice); err != nil {
			return nil, errors.Wrap(err, "parse fill price")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
