package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	metricCyclesRun = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_cycles_total", Help: "Monitoring cycles completed"})
	metricSymbolsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_symbols_skipped_total", Help: "Symbols skipped for a cycle (data errors, timeouts)"})
	metricPortfolioValue = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "risk_portfolio_value", Help: "Total portfolio value at the last cycle, in quote currency"})
	metricPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "risk_positions_monitored", Help: "Open positions seen in the last cycle"})
)

func init() {
	prometheus.MustRegister(metricCyclesRun, metricSymbolsSkipped, metricPortfolioValue, metricPositions)
}
