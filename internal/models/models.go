package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one held asset, rebuilt from account balances every cycle.
// It is never persisted; the cross-cycle record is TrailingState.
type Position struct {
	Symbol        string          `json:"symbol"`        // e.g. "KRW-BTC"
	Currency      string          `json:"currency"`      // e.g. "BTC"
	Available     decimal.Decimal `json:"available"`     // sellable quantity (excludes locked)
	Locked        decimal.Decimal `json:"locked"`        // reserved by open orders
	CurrentPrice  decimal.Decimal `json:"current_price"` // last trade price in quote currency
	EntryEstimate decimal.Decimal `json:"entry_estimate"`
}

// Total returns available + locked quantity.
func (p Position) Total() decimal.Decimal {
	return p.Available.Add(p.Locked)
}

// MarketValue returns the position value at the current price, locked quantity included.
func (p Position) MarketValue() decimal.Decimal {
	return p.Total().Mul(p.CurrentPrice)
}

// Candle is one OHLC period from the history provider.
type Candle struct {
	Time  time.Time       `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// Balance is one line of the account balance sheet. Symbol is empty for the
// cash row (KRW/USD), which contributes to portfolio value but is never a
// monitored position.
type Balance struct {
	Currency string          `json:"currency"`
	Symbol   string          `json:"symbol,omitempty"`
	Quantity decimal.Decimal `json:"quantity"` // free quantity
	Locked   decimal.Decimal `json:"locked"`
}

// RiskEnvelope holds the volatility-derived exit levels for one position in one cycle.
type RiskEnvelope struct {
	Volatility         decimal.Decimal `json:"volatility"` // ATR over the configured window
	EntryEstimate      decimal.Decimal `json:"entry_estimate"`
	StopLoss           decimal.Decimal `json:"stop_loss"`
	TakeProfit         decimal.Decimal `json:"take_profit"`
	TrailingActivation decimal.Decimal `json:"trailing_activation"` // offset from entry, not an absolute level
}

// TrailingStatus is the lifecycle state of a monitored symbol.
type TrailingStatus string

const (
	StatusArmed    TrailingStatus = "ARMED"
	StatusTrailing TrailingStatus = "TRAILING"
	StatusExited   TrailingStatus = "EXITED"
)

// TrailingState is the only entity that survives across cycles, keyed by symbol.
type TrailingState struct {
	Symbol       string          `json:"symbol"`
	Status       TrailingStatus  `json:"status"`
	HighestPrice decimal.Decimal `json:"highest_price"`     // highest favorable price seen while trailing
	ActiveStop   decimal.Decimal `json:"active_stop_level"` // meaningful in TRAILING only, never lowered
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ExitReason labels why a protective order fired.
type ExitReason string

const (
	ReasonStopLoss     ExitReason = "STOP_LOSS"
	ReasonTakeProfit   ExitReason = "TAKE_PROFIT"
	ReasonTrailingStop ExitReason = "TRAILING_STOP"
)

// Outcome is the three-valued result of an exit attempt. UNKNOWN means the order was
// acknowledged but the fill could not be confirmed; that record drives reconciliation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeUnknown   Outcome = "UNKNOWN"
)

// ExecutionRecord is one exit attempt. The ledger is the durable record; this struct
// only lives until the ledger sync for the cycle consumes it.
type ExecutionRecord struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Reason       ExitReason      `json:"reason"`
	RequestedQty decimal.Decimal `json:"requested_qty"`
	FillQty      decimal.Decimal `json:"fill_qty"`
	FillPrice    decimal.Decimal `json:"fill_price"`
	OrderID      string          `json:"order_id"`
	Outcome      Outcome         `json:"outcome"`
	ExecutedAt   time.Time       `json:"executed_at"`
}

// CycleSummary aggregates one orchestration pass. Built once per cycle, read-only downstream.
type CycleSummary struct {
	StartedAt          time.Time         `json:"started_at"`
	PositionsMonitored int               `json:"positions_monitored"`
	OrdersExecuted     int               `json:"orders_executed"`
	AlertsRaised       int               `json:"alerts_raised"`
	SymbolsSkipped     int               `json:"symbols_skipped"`
	TotalValue         decimal.Decimal   `json:"total_portfolio_value"`
	Executions         []ExecutionRecord `json:"executions,omitempty"`
}
