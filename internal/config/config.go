package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// SeoulLoc anchors monitoring hours and log timestamps. Upbit settles in KST.
var SeoulLoc = time.FixedZone("KST", 9*3600)

// Config carries every tunable of the risk-monitoring engine.
// All values come from the environment (optionally seeded from a .env file).
type Config struct {
	// Venue selection: "upbit" or "alpaca".
	Exchange string

	// Volatility / envelope parameters.
	ATRPeriod          int     // window length N for the True Range average
	StopLossMult       float64 // stop = entry - k1 * ATR
	TakeProfitMult     float64 // target = entry + k2 * ATR
	TrailingActMult    float64 // trailing activates past entry + k3 * ATR
	MaxPositionRisk    float64 // informational per-position cap, fraction of portfolio
	HighVolAlertPct    float64 // alert when ATR exceeds this percent of price
	ConcentrationPct   float64 // alert when position value exceeds this percent of portfolio
	MinOrderValueKRW   float64 // exits below this notional are skipped, not submitted

	// Cycle scheduling.
	CycleInterval     time.Duration
	CycleTimeout      time.Duration
	ReconcileInterval time.Duration
	MonitorStartHour  int // KST, inclusive
	MonitorEndHour    int // KST, inclusive
	CycleWorkers      int

	// Order execution.
	OrderMaxRetries   int
	OrderRetryBackoff time.Duration
	FillPollTimeout   time.Duration
	RequestTimeout    time.Duration
	TestMode          bool // scale sells down to 5% of balance

	// External services.
	UpbitAccessKey string
	UpbitSecretKey string
	SlackToken     string
	SlackChannel   string
	LedgerPath     string
	StateFile      string
	MetricsAddr    string // empty disables the endpoint

	// Logging.
	LogFile       string
	LogLevel      string
	MaxLogSizeMB  int
	MaxLogBackups int
}

// Load initializes the configuration. It reads a .env file when present, validates
// the venue credentials, and echoes non-secret settings for operator sanity.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	}

	cfg := &Config{
		Exchange: getEnv("EXCHANGE", "upbit"),

		ATRPeriod:        getEnvAsInt("ATR_PERIOD", 14),
		StopLossMult:     getEnvAsFloat64("STOP_LOSS_MULT", 2.0),
		TakeProfitMult:   getEnvAsFloat64("TAKE_PROFIT_MULT", 3.0),
		TrailingActMult:  getEnvAsFloat64("TRAILING_ACTIVATION_MULT", 1.5),
		MaxPositionRisk:  getEnvAsFloat64("MAX_POSITION_RISK", 0.02),
		HighVolAlertPct:  getEnvAsFloat64("HIGH_VOL_ALERT_PCT", 8.0),
		ConcentrationPct: getEnvAsFloat64("CONCENTRATION_ALERT_PCT", 10.0),
		MinOrderValueKRW: getEnvAsFloat64("MIN_ORDER_KRW", 5000),

		CycleInterval:     time.Duration(getEnvAsInt("CYCLE_INTERVAL_MINS", 60)) * time.Minute,
		CycleTimeout:      time.Duration(getEnvAsInt("CYCLE_TIMEOUT_SECS", 300)) * time.Second,
		ReconcileInterval: time.Duration(getEnvAsInt("RECONCILE_INTERVAL_HOURS", 4)) * time.Hour,
		MonitorStartHour:  getEnvAsInt("MONITOR_START_HOUR", 6),
		MonitorEndHour:    getEnvAsInt("MONITOR_END_HOUR", 23),
		CycleWorkers:      getEnvAsInt("CYCLE_WORKERS", 4),

		OrderMaxRetries:   getEnvAsInt("ORDER_MAX_RETRIES", 3),
		OrderRetryBackoff: time.Duration(getEnvAsInt("ORDER_RETRY_BACKOFF_MS", 500)) * time.Millisecond,
		FillPollTimeout:   time.Duration(getEnvAsInt("FILL_POLL_SECS", 60)) * time.Second,
		RequestTimeout:    time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECS", 10)) * time.Second,
		TestMode:          getEnvAsBool("TEST_MODE", true),

		UpbitAccessKey: os.Getenv("UPBIT_ACCESS_KEY"),
		UpbitSecretKey: os.Getenv("UPBIT_SECRET_KEY"),
		SlackToken:     os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:   os.Getenv("SLACK_CHANNEL"),
		LedgerPath:     getEnv("LEDGER_DB_PATH", "portfolio_ledger.db"),
		StateFile:      getEnv("TRAILING_STATE_FILE", "trailing_state.json"),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),

		LogFile:       getEnv("LOG_FILE", "risk_monitor.log"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		MaxLogSizeMB:  getEnvAsInt("MAX_LOG_SIZE_MB", 20),
		MaxLogBackups: getEnvAsInt("MAX_LOG_BACKUPS", 5),
	}

	cfg.validate()
	cfg.echo()
	return cfg
}

// validate fails fast on missing venue credentials. Slack is optional: the alert
// sink degrades to log-only when unset.
func (c *Config) validate() {
	var required map[string]string
	switch c.Exchange {
	case "upbit":
		required = map[string]string{
			"UPBIT_ACCESS_KEY": c.UpbitAccessKey,
			"UPBIT_SECRET_KEY": c.UpbitSecretKey,
		}
	case "alpaca":
		required = map[string]string{
			"APCA_API_KEY_ID":     os.Getenv("APCA_API_KEY_ID"),
			"APCA_API_SECRET_KEY": os.Getenv("APCA_API_SECRET_KEY"),
		}
	default:
		log.Fatalf("CRITICAL: Unknown EXCHANGE %q (want upbit or alpaca)", c.Exchange)
	}

	var missing []string
	for key, val := range required {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		log.Fatalf("CRITICAL: Missing required environment variables: %v", missing)
	}

	if c.StopLossMult <= 0 || c.TakeProfitMult <= 0 {
		log.Fatalf("CRITICAL: stop/take-profit multipliers must be positive (got %v / %v)",
			c.StopLossMult, c.TakeProfitMult)
	}
	if c.ATRPeriod < 2 {
		log.Fatalf("CRITICAL: ATR_PERIOD must be at least 2 (got %d)", c.ATRPeriod)
	}
}

func (c *Config) echo() {
	log.Printf("--- Risk Monitor Configuration ---")
	log.Printf("Exchange: %s | Test Mode: %v", c.Exchange, c.TestMode)
	log.Printf("ATR period %d | mult SL %.1f / TP %.1f / trail %.1f",
		c.ATRPeriod, c.StopLossMult, c.TakeProfitMult, c.TrailingActMult)
	log.Printf("Cycle every %s (timeout %s), reconcile every %s, hours %02d-%02d KST",
		c.CycleInterval, c.CycleTimeout, c.ReconcileInterval, c.MonitorStartHour, c.MonitorEndHour)
	log.Printf("Upbit key: %s | Slack channel: %s", maskSecret(c.UpbitAccessKey), c.SlackChannel)
	log.Printf("----------------------------------")
}

// maskSecret shows only the last 4 characters of a credential.
func maskSecret(v string) string {
	if len(v) <= 4 {
		return "***"
	}
	return "***" + v[len(v)-4:]
}
