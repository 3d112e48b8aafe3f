package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BrokerName != "paper" {
		t.Fatalf("BrokerName=%q, expected default paper", cfg.BrokerName)
	}
	if cfg.ReconcileEvery != "30s" {
		t.Fatalf("ReconcileEvery=%q, expected default 30s", cfg.ReconcileEvery)
	}
	if cfg.RiskPerTradePct != 1.0 {
		t.Fatalf("RiskPerTradePct=%v, expected default 1.0", cfg.RiskPerTradePct)
	}
	if cfg.MonthlyRiskPct != 6.0 {
		t.Fatalf("MonthlyRiskPct=%v, expected default 6.0", cfg.MonthlyRiskPct)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	t.Setenv("TRUST_BROKER", "alpaca")
	t.Setenv("TRUST_RISK_PER_TRADE_PCT", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BrokerName != "alpaca" {
		t.Fatalf("BrokerName=%q, expected override alpaca", cfg.BrokerName)
	}
	if cfg.RiskPerTradePct != 2.5 {
		t.Fatalf("RiskPerTradePct=%v, expected override 2.5", cfg.RiskPerTradePct)
	}
}

func TestLoadRejectsMalformedNumericOverride(t *testing.T) {
	t.Setenv("TRUST_MONTHLY_RISK_PCT", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a malformed numeric override")
	}
}

func TestGetEnvFallsBackToDefault(t *testing.T) {
	if got := getEnv("TRUST_UNSET_KEY_FOR_TEST", "fallback"); got != "fallback" {
		t.Fatalf("getEnv=%q, expected fallback", got)
	}
}
