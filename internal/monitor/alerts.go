package monitor

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/notify"
)

var hundred = decimal.NewFromInt(100)

// concentrationAlerts flags positions whose value exceeds the configured share
// of the portfolio. Informational only, never an exit trigger. Returns how
// many alerts were raised.
func (m *Monitor) concentrationAlerts(positions []models.Position, total decimal.Decimal) int {
	if !total.IsPositive() {
		return 0
	}

	threshold := decimal.NewFromFloat(m.cfg.ConcentrationPct)
	raised := 0
	for _, pos := range positions {
		pct := pos.MarketValue().Div(total).Mul(hundred)
		if pct.GreaterThan(threshold) {
			m.alerts.Notify(notify.SeverityWarn, fmt.Sprintf("Large position %s", pos.Symbol),
				notify.F("portfolio_share", pct.StringFixed(1)+"%"),
				notify.F("value", pos.MarketValue().StringFixed(0)))
			raised++
		}
	}
	return raised
}

// sendSummary emits the per-cycle digest.
func (m *Monitor) sendSummary(summary models.CycleSummary) {
	fields := []notify.Field{
		notify.F("portfolio_value", summary.TotalValue.StringFixed(0)),
		notify.F("positions_monitored", strconv.Itoa(summary.PositionsMonitored)),
		notify.F("orders_executed", strconv.Itoa(summary.OrdersExecuted)),
		notify.F("alerts_raised", strconv.Itoa(summary.AlertsRaised)),
		notify.F("symbols_skipped", strconv.Itoa(summary.SymbolsSkipped)),
		notify.F("test_mode", strconv.FormatBool(m.cfg.TestMode)),
	}
	for _, rec := range summary.Executions {
		fields = append(fields, notify.F(string(rec.Reason),
			fmt.Sprintf("%s at %s (%s)", rec.Symbol, rec.FillPrice.StringFixed(0), rec.Outcome)))
	}
	m.alerts.Notify(notify.SeverityInfo, "🔍 Risk monitoring summary", fields...)
}
