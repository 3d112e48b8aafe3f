// Package config loads the daemon's environment-driven settings: a getEnv
// helper with per-key defaults, plus the daemon's socket/PID-file paths and
// broker credentials.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every environment-driven setting trustd needs to start.
type Config struct {
	// DBPath is the SQLite file path. Empty means
	// in-memory, used by tests.
	DBPath string

	// ProtectedKeywordExpected is the keyword risk.ProtectedMode checks
	// against.
	ProtectedKeywordExpected string

	// SocketPath is the Unix-domain-socket path internal/ipc listens on.
	SocketPath string

	// PIDFile is where the daemon records its process id on startup.
	PIDFile string

	// HealthAddr is the listen address for the read-only HTTP health
	// surface (internal/daemon/health's gin engine), e.g. "127.0.0.1:8090".
	HealthAddr string

	// BrokerName selects which broker.Gateway implementation to construct
	// ("paper", or empty, selects the in-memory paper adapter; any other
	// name selects the built-in generic live adapter).
	BrokerName string
	// BrokerAPIKey / BrokerAPISecret are the vendor credentials passed to
	// that adapter's constructor.
	BrokerAPIKey string
	BrokerAPISecret string

	// ReconcileEvery is how often the cron scheduler fires a background
	// sweep across all open trades, independent of each watcher's own
	// per-trade ticker.
	ReconcileEvery string

	// RiskPerTradePct and MonthlyRiskPct are loaded from the environment,
	// but nothing in the daemon reads them; position sizing falls back to
	// the trade package's own default percentages.
	RiskPerTradePct float64
	MonthlyRiskPct float64

	// RulesFile / DistributionFile optionally point at YAML documents an
	// operator hands the daemon at first boot to seed risk rules and
	// distribution percentages.
	RulesFile string
	DistributionFile string
}

// Load reads environment variables, optionally populated from a local .env
// file first, into a Config. Load never fails because the .env file is
// missing — only a malformed numeric override returns an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	riskPerTrade, err := getEnvFloat("TRUST_RISK_PER_TRADE_PCT", 1.0)
	if err != nil {
		return nil, err
	}
	monthlyRisk, err := getEnvFloat("TRUST_MONTHLY_RISK_PCT", 6.0)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBPath: getEnv("TRUST_DB_URL", "./data/trust.db"),
		ProtectedKeywordExpected: os.Getenv("TRUST_PROTECTED_KEYWORD_EXPECTED"),
		SocketPath: getEnv("TRUST_SOCKET_PATH", "/tmp/trustd.sock"),
		PIDFile: getEnv("TRUST_PID_FILE", "/tmp/trustd.pid"),
		HealthAddr: getEnv("TRUST_HEALTH_ADDR", "127.0.0.1:8090"),
		BrokerName: getEnv("TRUST_BROKER", "paper"),
		BrokerAPIKey: os.Getenv("TRUST_BROKER_API_KEY"),
		BrokerAPISecret: os.Getenv("TRUST_BROKER_API_SECRET"),
		ReconcileEvery: getEnv("TRUST_RECONCILE_EVERY", "30s"),
		RiskPerTradePct: riskPerTrade,
		MonthlyRiskPct: monthlyRisk,
		RulesFile: os.Getenv("TRUST_RULES_FILE"),
		DistributionFile: os.Getenv("TRUST_DISTRIBUTION_FILE"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return f, nil
}
