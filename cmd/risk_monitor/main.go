package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/config"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/ledger"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/logger"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/market"
	alpacamkt "github.com/mycho0012/ec2-mrha-live-220525/internal/market/alpaca"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/market/upbit"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/monitor"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/notify"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/storage"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogFile, cfg.MaxLogSizeMB, cfg.MaxLogBackups, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var provider market.Provider
	switch cfg.Exchange {
	case "alpaca":
		provider = alpacamkt.NewProvider()
	default:
		provider = upbit.NewProvider(cfg.UpbitAccessKey, cfg.UpbitSecretKey, cfg.RequestTimeout)
	}

	store, err := storage.Open(cfg.StateFile)
	if err != nil {
		logger.Log.Fatalf("Could not open trailing state store: %v", err)
	}

	led, err := ledger.OpenSQLite(cfg.LedgerPath)
	if err != nil {
		logger.Log.Fatalf("Could not open portfolio ledger: %v", err)
	}
	defer led.Close()

	notifier := notify.NewNotifier(cfg.SlackToken, cfg.SlackChannel)
	mon := monitor.New(cfg, provider, store, led, notifier)

	if cfg.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				logger.Log.Errorf("Metrics endpoint stopped: %v", err)
			}
		}()
		logger.Log.Infof("Serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Log.Warn("Shutdown signal received")
		cancel()
	}()

	mode := "Production"
	if cfg.TestMode {
		mode = "Test"
	}
	notifier.Notify(notify.SeverityInfo, "🚀 Risk monitor online",
		notify.F("mode", mode),
		notify.F("exchange", cfg.Exchange),
		notify.F("interval", cfg.CycleInterval.String()))

	runOnce(ctx, cfg, mon)

	// Cycles run synchronously in this loop, so two cycles can never overlap:
	// a tick arriving while a cycle is still inside its timeout is coalesced
	// by the ticker and at most one queued tick fires afterwards.
	ticker := time.NewTicker(cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			notifier.Notify(notify.SeverityInfo, "⏹️ Risk monitor stopped")
			logger.Log.Info("Main loop stopping, state saved")
			return
		case <-ticker.C:
			runOnce(ctx, cfg, mon)
		}
	}
}

func runOnce(ctx context.Context, cfg *config.Config, mon *monitor.Monitor) {
	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	if !mon.InMonitoringWindow(now) {
		logger.Log.Infof("Outside monitoring hours (%02d:00-%02d:00 KST), skipping cycle",
			cfg.MonitorStartHour, cfg.MonitorEndHour)
		return
	}

	cycleCtx, cancel := context.WithTimeout(ctx, cfg.CycleTimeout)
	defer cancel()

	summary := mon.RunCycle(cycleCtx, now)
	logger.Log.Infof("Cycle done: monitored=%d executed=%d alerts=%d skipped=%d value=%s",
		summary.PositionsMonitored, summary.OrdersExecuted, summary.AlertsRaised,
		summary.SymbolsSkipped, summary.TotalValue.StringFixed(0))
}
