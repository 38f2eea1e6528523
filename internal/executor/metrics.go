package executor

import "github.com/prometheus/client_golang/prometheus"

var (
	metricExitsAttempted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_exits_attempted_total", Help: "Protective exit orders the engine tried to place"})
	metricExitsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_exits_succeeded_total", Help: "Exit orders confirmed filled"})
	metricExitsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_exits_failed_total", Help: "Exit orders that failed after all retries"})
	metricExitsAmbiguous = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_exits_ambiguous_total", Help: "Exit orders acknowledged but not confirmed (need reconciliation)"})
	metricSubmitRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "risk_exit_submit_retries_total", Help: "Submission retries across all exit orders"})
)

func init() {
	prometheus.MustRegister(
		metricExitsAttempted, metricExitsSucceeded,
		metricExitsFailed, metricExitsAmbiguous, metricSubmitRetries,
	)
}
