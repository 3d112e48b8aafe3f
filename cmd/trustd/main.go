// Command trustd is the long-running daemon: it owns the SQLite store, the
// broker connection, and every BrokerWatcher an operator starts, and
// answers the Unix-socket control protocol plus a read-only HTTP status
// surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/broker/live"
	"github.com/matiasvillaverde/trust-core/internal/broker/paper"
	"github.com/matiasvillaverde/trust-core/internal/config"
	"github.com/matiasvillaverde/trust-core/internal/daemon"
	"github.com/matiasvillaverde/trust-core/internal/daemon/health"
	"github.com/matiasvillaverde/trust-core/internal/facade"
	"github.com/matiasvillaverde/trust-core/internal/ipc"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/risk"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemon.AcquirePIDFile(cfg.PIDFile); err != nil {
		log.Fatalf("acquire pid file: %v", err)
	}
	defer daemon.ReleasePIDFile(cfg.PIDFile)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	gateway := newGateway(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := facade.New(db, gateway, cfg.ProtectedKeywordExpected, cfg.BrokerName)
	if err := seedFromFiles(ctx, f, cfg); err != nil {
		log.Fatalf("seed from config files: %v", err)
	}
	startedAt := time.Now().UTC()
	h := daemon.NewHandler(f, version, startedAt, cancel)

	ipcServer := ipc.NewServer(cfg.SocketPath, h)
	if err := ipcServer.Listen(); err != nil {
		log.Fatalf("listen on %s: %v", cfg.SocketPath, err)
	}
	go func() {
		if err := ipcServer.Serve(ctx); err != nil {
			log.Printf("ipc server stopped: %v", err)
		}
	}()
	defer ipcServer.Close()

	healthServer := health.New(h.Status)
	go func() {
		if err := healthServer.Run(cfg.HealthAddr); err != nil {
			log.Printf("health server stopped: %v", err)
		}
	}()

	scheduler := cron.New()
	spec, err := reconcileCronSpec(cfg.ReconcileEvery)
	if err != nil {
		log.Fatalf("parse reconcile interval %q: %v", cfg.ReconcileEvery, err)
	}
	if _, err := scheduler.AddFunc(spec, func() {
		synced, errs := h.ReconcileOnce(ctx)
		if len(errs) > 0 {
			log.Printf("reconcile sweep: synced %d trades, %d errors (first: %v)", synced, len(errs), errs[0])
			return
		}
		log.Printf("reconcile sweep: synced %d trades", synced)
	}); err != nil {
		log.Fatalf("schedule reconcile sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Printf("trustd %s listening on %s (socket) and %s (http)", version, cfg.SocketPath, cfg.HealthAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		log.Println("received shutdown signal")
	case <-ctx.Done():
		log.Println("shutdown requested over ipc")
	}
	cancel()
}

// newGateway selects the broker.Gateway adapter named by cfg.BrokerName.
// "paper" (or an empty name) selects the in-memory paper adapter; any other
// name selects the generic live adapter, reachable over cfg's API credentials —
// vendor-specific parsing stays at the adapter boundary, never in the core.
func newGateway(cfg *config.Config) broker.Gateway {
	if cfg.BrokerName == "" || cfg.BrokerName == "paper" {
		return paper.New()
	}
	return live.New(os.Getenv("TRUST_BROKER_BASE_URL"), os.Getenv("TRUST_BROKER_STREAM_URL"), live.Credentials{
		APIKey: cfg.BrokerAPIKey,
		APISecret: cfg.BrokerAPISecret,
	})
}

// seedFromFiles applies an optional rules.yaml and distribution.yaml at
// startup, so an operator standing up a fresh account doesn't have to run
// `rule create`/`distribution configure` once per account by hand. Protected
// mode starts disarmed on every boot, so these calls go through even when
// TRUST_PROTECTED_KEYWORD_EXPECTED is set.
func seedFromFiles(ctx context.Context, f *facade.Facade, cfg *config.Config) error {
	rules, err := config.LoadRulesSeed(cfg.RulesFile)
	if err != nil {
		return err
	}
	for accountID, entries := range rules.Accounts {
		for _, e := range entries {
			rule := risk.Rule{
				AccountID: accountID,
				Name: risk.RuleName(e.Name),
				Percentage: e.Percentage,
				Level: risk.RuleLevel(e.Level),
				Active: true,
				Description: e.Description,
			}
			if _, err := f.CreateRule(ctx, rule, ""); err != nil {
				return fmt.Errorf("seed rule %s for %s: %w", e.Name, accountID, err)
			}
		}
	}

	dist, err := config.LoadDistributionSeed(cfg.DistributionFile)
	if err != nil {
		return err
	}
	for _, d := range dist.Accounts {
		threshold := money.Decimal{}
		if d.MinimumThreshold != "" {
			threshold, err = money.Parse(d.MinimumThreshold)
			if err != nil {
				return fmt.Errorf("seed distribution for %s: parse minimum_threshold: %w", d.AccountID, err)
			}
		}
		if _, err := f.ConfigureDistribution(ctx, d.AccountID, d.EarningsPercent, d.TaxPercent, d.ReinvestmentPercent, threshold, d.ConfigurationPassword); err != nil {
			return fmt.Errorf("seed distribution for %s: %w", d.AccountID, err)
		}
	}
	return nil
}

// reconcileCronSpec turns a Go duration string (the env-friendly
// TRUST_RECONCILE_EVERY shape, e.g. "30s") into the "@every" cron spec
// robfig/cron understands.
func reconcileCronSpec(every string) (string, error) {
	d, err := time.ParseDuration(every)
	if err != nil {
		return "", err
	}
	if d <= 0 {
		return "", errors.New("reconcile interval must be positive")
	}
	return "@every " + d.String(), nil
}
