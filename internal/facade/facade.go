// Package facade composes every domain package behind the single entry
// point the CLI and the daemon's IPC handler both call through — mirroring
// the pattern of a thin composition root wiring concrete stores
// and services, rather than spreading construction across callers.
package facade

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/account"
	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/distribution"
	"github.com/matiasvillaverde/trust-core/internal/events"
	"github.com/matiasvillaverde/trust-core/internal/grading"
	"github.com/matiasvillaverde/trust-core/internal/ledger"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
	"github.com/matiasvillaverde/trust-core/internal/risk"
	"github.com/matiasvillaverde/trust-core/internal/store"
	syncsvc "github.com/matiasvillaverde/trust-core/internal/sync"
	"github.com/matiasvillaverde/trust-core/internal/trade"
	"github.com/matiasvillaverde/trust-core/internal/watcher"
)

// Facade is the single object cmd/trustd wires up once at startup and hands
// to both the IPC handler and any in-process CLI command.
type Facade struct {
	DB *store.DB
	Bus *events.Bus

	Accounts *account.Store
	Ledger *ledger.Ledger
	Orders *orderbook.Store
	Vehicles *orderbook.VehicleStore
	Trades *trade.Store
	Lifecycle *trade.Lifecycle
	Risk *risk.Store
	MonthData *risk.MonthDataStore
	Protected *risk.ProtectedMode
	DistRules *distribution.Store
	Distribution *distribution.Engine
	BrokerLogs *broker.LogStore
	Gateway broker.Gateway
	Watcher *watcher.Watcher
	Sync *syncsvc.Service
	Grading *grading.Service
	GradeStore *grading.Store

	startedAt time.Time
	activeWatchers atomic.Int64
}

// New wires every domain package over db and gateway into one Facade. Every
// store here is a thin repository over db; all cross-cutting coordination
// (lifecycle, engine, watcher, sync, grading service) composes those
// repositories rather than opening its own connections, the same
// single-writer pattern the Ledger uses for the transaction table.
func New(db *store.DB, gateway broker.Gateway, protectedKeyword, brokerSource string) *Facade {
	accounts := account.NewStore(db)
	led := ledger.New(db, accounts)
	orders := orderbook.NewStore(db)
	vehicles := orderbook.NewVehicleStore(db)
	trades := trade.NewStore(db)
	riskStore := risk.NewStore(db)
	monthData := risk.NewMonthDataStore(db)
	protected := risk.NewProtectedMode(protectedKeyword)
	distRules := distribution.NewStore(db)
	distEngine := distribution.NewEngine(db, accounts, led, distRules, protected)
	brokerLogs := broker.NewLogStore(db)
	gradeStore := grading.NewStore(db)

	lifecycle := trade.NewLifecycle(db, trades, orders, vehicles, accounts, led, riskStore, monthData, gateway)
	syncer := syncsvc.NewService(db, trades, orders, vehicles, lifecycle, gateway)
	watch := watcher.New(gateway, trades, orders, vehicles, syncer, brokerSource)
	grader := grading.NewService(trades, orders, accounts, riskStore, gateway, gradeStore)

	return &Facade{
		DB: db,
		Bus: events.NewBus(),

		Accounts: accounts,
		Ledger: led,
		Orders: orders,
		Vehicles: vehicles,
		Trades: trades,
		Lifecycle: lifecycle,
		Risk: riskStore,
		MonthData: monthData,
		Protected: protected,
		DistRules: distRules,
		Distribution: distEngine,
		BrokerLogs: brokerLogs,
		Gateway: gateway,
		Watcher: watch,
		Sync: syncer,
		Grading: grader,
		GradeStore: gradeStore,

		startedAt: time.Now().UTC(),
	}
}

// Uptime reports how long this Facade (and so the daemon hosting it) has
// been running.
func (f *Facade) Uptime() time.Duration { return time.Since(f.startedAt) }

// CreateAccount validates the parent hierarchy against every existing
// account before inserting.
func (f *Facade) CreateAccount(ctx context.Context, a account.Account) (account.Account, error) {
	resolve := func(id string) (account.Account, bool) {
		existing, err := f.Accounts.Get(ctx, id)
		if err != nil {
			return account.Account{}, false
		}
		return existing, true
	}
	if err := account.ValidateParent(a, resolve); err != nil {
		return account.Account{}, err
	}
	return f.Accounts.Create(ctx, a)
}

// Deposit and Withdraw expose the Ledger's two unconditional entry points
// for CLI `transaction deposit|withdraw`.
func (f *Facade) Deposit(ctx context.Context, accountID string, currency money.Currency, amount money.Decimal) (ledger.Transaction, account.Balance, error) {
	return f.Ledger.Deposit(ctx, accountID, currency, amount)
}

func (f *Facade) Withdraw(ctx context.Context, accountID string, currency money.Currency, amount money.Decimal) (ledger.Transaction, account.Balance, error) {
	return f.Ledger.Withdraw(ctx, accountID, currency, amount)
}

// CreateTrade, FundTrade, SubmitTrade and the rest of the trade surface
// delegate straight through to the Lifecycle; the Facade's job here is only
// to give the CLI and the IPC handler one name to import instead of both
// depending on internal/trade directly.
func (f *Facade) CreateTrade(ctx context.Context, d trade.DraftTrade) (trade.Trade, error) {
	t, err := f.Lifecycle.CreateTrade(ctx, d)
	if err == nil {
		f.Bus.Publish(events.EventTradeCreated, t)
		return t, nil
	}
	var breach *risk.RuleBreachError
	if errors.As(err, &breach) {
		f.Bus.Publish(events.EventRiskRuleBreach, breach)
	}
	return t, err
}

func (f *Facade) FundTrade(ctx context.Context, tradeID string) (trade.Trade, error) {
	t, err := f.Lifecycle.FundTrade(ctx, tradeID)
	if err == nil {
		f.Bus.Publish(events.EventTradeFunded, t)
	}
	return t, err
}

func (f *Facade) PreviewSize(ctx context.Context, accountID string, currency money.Currency, entryPrice, stopPrice money.Decimal) (risk.Size, error) {
	return f.Lifecycle.PreviewSize(ctx, accountID, currency, entryPrice, stopPrice)
}

func (f *Facade) SubmitTrade(ctx context.Context, tradeID string) (trade.Trade, error) {
	t, err := f.Lifecycle.SubmitTrade(ctx, tradeID)
	if err == nil {
		f.Bus.Publish(events.EventTradeSubmitted, t)
	}
	return t, err
}

func (f *Facade) FillTrade(ctx context.Context, tradeID string, avgFillPrice money.Decimal, filledQty money.Quantity, fee money.Decimal, at time.Time) (trade.Trade, error) {
	t, err := f.Lifecycle.FillTrade(ctx, tradeID, avgFillPrice, filledQty, fee, at)
	if err == nil {
		f.Bus.Publish(events.EventTradeFilled, t)
	}
	return t, err
}

func (f *Facade) TargetExecuted(ctx context.Context, tradeID string, avgFillPrice money.Decimal, filledQty money.Quantity, fee money.Decimal, at time.Time) (trade.Trade, error) {
	t, err := f.Lifecycle.TargetExecuted(ctx, tradeID, avgFillPrice, filledQty, fee, at)
	if err == nil {
		f.Bus.Publish(events.EventTradeClosed, t)
	}
	return t, err
}

func (f *Facade) StopExecuted(ctx context.Context, tradeID string, avgFillPrice money.Decimal, filledQty money.Quantity, fee money.Decimal, at time.Time) (trade.Trade, error) {
	t, err := f.Lifecycle.StopExecuted(ctx, tradeID, avgFillPrice, filledQty, fee, at)
	if err == nil {
		f.Bus.Publish(events.EventTradeClosed, t)
	}
	return t, err
}

func (f *Facade) CancelFunded(ctx context.Context, tradeID string) (trade.Trade, error) {
	t, err := f.Lifecycle.CancelFunded(ctx, tradeID)
	if err == nil {
		f.Bus.Publish(events.EventTradeCanceled, t)
	}
	return t, err
}

func (f *Facade) CancelSubmitted(ctx context.Context, tradeID string) (trade.Trade, error) {
	t, err := f.Lifecycle.CancelSubmitted(ctx, tradeID)
	if err == nil {
		f.Bus.Publish(events.EventTradeCanceled, t)
	}
	return t, err
}

func (f *Facade) ModifyStop(ctx context.Context, tradeID string, newStopPrice money.Decimal) (trade.Trade, error) {
	return f.Lifecycle.ModifyStop(ctx, tradeID, newStopPrice)
}

func (f *Facade) ModifyTarget(ctx context.Context, tradeID string, newTargetPrice money.Decimal) (trade.Trade, error) {
	return f.Lifecycle.ModifyTarget(ctx, tradeID, newTargetPrice)
}

func (f *Facade) CloseTrade(ctx context.Context, tradeID string) (trade.Trade, error) {
	t, err := f.Lifecycle.Close(ctx, tradeID)
	if err == nil {
		f.Bus.Publish(events.EventTradeClosed, t)
	}
	return t, err
}

// SyncTrade runs one idempotent reconciliation pass against the broker,
// without the full cooperative Watch loop: a one-shot sync, used by
// `trade sync` and the daemon's cron reconcile sweep.
func (f *Facade) SyncTrade(ctx context.Context, tradeID string) (trade.Trade, error) {
	t, err := f.Sync.SyncTrade(ctx, tradeID)
	if err == nil {
		f.Bus.Publish(events.EventTradeSynced, t)
	}
	return t, err
}

// WatchTrade runs the long-lived BrokerWatcher loop for `trade watch`,
// blocking until cb returns Stop, opts.Timeout elapses, the trade reaches a
// terminal state, or ctx is canceled. Every event the watcher emits is also
// republished on the Bus, so a second subscriber (the health server, a
// future UI) can observe the same stream without its own broker connection.
func (f *Facade) WatchTrade(ctx context.Context, tradeID string, opts watcher.Options, cb watcher.Callback) error {
	f.activeWatchers.Add(1)
	defer f.activeWatchers.Add(-1)
	err := f.Watcher.Watch(ctx, tradeID, opts, func(ev broker.WatchEvent) broker.Control {
		if ev.EventType == "market_trade" {
			f.Bus.Publish(events.EventWatchTick, ev)
		} else {
			f.Bus.Publish(events.EventOrderUpdate, ev)
		}
		return cb(ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		f.Bus.Publish(events.EventWatchError, err.Error())
	}
	return err
}

// ListOpenTrades backs `trade list --open` and the daemon's reconcile sweep
// (which needs every open trade id for an account, or every account).
func (f *Facade) ListOpenTrades(ctx context.Context, accountID string) ([]trade.Trade, error) {
	return f.Trades.ListOpen(ctx, accountID)
}

// ActiveWatchers reports how many WatchTrade calls are currently blocked in
// their cooperative loop, for the daemon's status report.
func (f *Facade) ActiveWatchers() int {
	return int(f.activeWatchers.Load())
}

// ReconcileAccount runs SyncTrade across every open trade for accountID
// (or, when accountID is empty, every account), tolerating individual
// failures so one broken trade never blocks the sweep.
func (f *Facade) ReconcileAccount(ctx context.Context, accountID string) (int, []error) {
	accountIDs := []string{accountID}
	if accountID == "" {
		all, err := f.Accounts.List(ctx)
		if err != nil {
			return 0, []error{err}
		}
		accountIDs = accountIDs[:0]
		for _, a := range all {
			accountIDs = append(accountIDs, a.ID)
		}
	}

	var errs []error
	synced := 0
	for _, id := range accountIDs {
		open, err := f.Trades.ListOpen(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("list open trades for %s: %w", id, err))
			continue
		}
		for _, t := range open {
			if _, err := f.Sync.SyncTrade(ctx, t.ID); err != nil {
				errs = append(errs, fmt.Errorf("sync trade %s: %w", t.ID, err))
				continue
			}
			synced++
		}
	}
	return synced, errs
}

// CreateRule, DeactivateRule and ListRules back rule management.
// Rule mutations are protected-mode-guarded.
func (f *Facade) CreateRule(ctx context.Context, r risk.Rule, protectedKeyword string) (risk.Rule, error) {
	if err := f.Protected.Require(protectedKeyword); err != nil {
		return risk.Rule{}, err
	}
	return f.Risk.CreateRule(ctx, r)
}

func (f *Facade) DeactivateRule(ctx context.Context, ruleID, protectedKeyword string) error {
	if err := f.Protected.Require(protectedKeyword); err != nil {
		return err
	}
	return f.Risk.Deactivate(ctx, ruleID)
}

func (f *Facade) ListRules(ctx context.Context, accountID string) ([]risk.Rule, error) {
	return f.Risk.ListAll(ctx, accountID)
}

// LevelStatus, ChangeLevel and LevelHistory back `level status|change|history`.
func (f *Facade) LevelStatus(ctx context.Context, accountID string) (risk.LevelState, error) {
	return f.Risk.GetLevel(ctx, accountID)
}

func (f *Facade) ChangeLevel(ctx context.Context, accountID string, newLevel risk.Level, reason, protectedKeyword string) (risk.LevelState, risk.LevelChange, error) {
	if err := f.Protected.Require(protectedKeyword); err != nil {
		return risk.LevelState{}, risk.LevelChange{}, err
	}
	state, change, err := f.Risk.SetLevel(ctx, accountID, newLevel, reason, "manual_override")
	if err == nil {
		f.Bus.Publish(events.EventRiskLevelChanged, change)
	}
	return state, change, err
}

func (f *Facade) LevelHistory(ctx context.Context, accountID string) ([]risk.LevelChange, error) {
	return f.Risk.History(ctx, accountID)
}

// LevelProgress backs `level progress`: the current level, the recommended
// one, and the named paths that led there.
func (f *Facade) LevelProgress(ctx context.Context, accountID string, currency money.Currency, perf risk.PerformanceSnapshot, monthStartBalance money.Decimal, th risk.LevelThresholds) (risk.Progress, error) {
	state, err := f.Risk.GetLevel(ctx, accountID)
	if err != nil {
		return risk.Progress{}, err
	}
	return risk.Recommend(state.CurrentLevel, perf, monthStartBalance, th), nil
}

// ConfigureDistribution and ExecuteDistribution back `distribution
// configure|execute`; DistributionHistory backs `distribution history`.
func (f *Facade) ConfigureDistribution(ctx context.Context, accountID string, earnings, tax, reinvest float64, minThreshold money.Decimal, password string) (distribution.Rules, error) {
	return f.DistRules.Configure(ctx, accountID, earnings, tax, reinvest, minThreshold, password)
}

func (f *Facade) ExecuteDistribution(ctx context.Context, source string, dest distribution.Destinations, currency money.Currency, profit money.Decimal, protectedKeyword string) (distribution.History, error) {
	h, err := f.Distribution.Execute(ctx, source, dest, currency, profit, protectedKeyword)
	if err == nil {
		f.Bus.Publish(events.EventDistributionExecuted, h)
	}
	return h, err
}

func (f *Facade) DistributionHistory(ctx context.Context, accountID string) ([]distribution.History, error) {
	return f.DistRules.ListHistory(ctx, accountID)
}

// GradeTrade and LatestGrade back `grading grade|show`.
func (f *Facade) GradeTrade(ctx context.Context, tradeID string, weights grading.Weights) (grading.DetailedGrade, error) {
	g, err := f.Grading.GradeTrade(ctx, tradeID, weights)
	if err == nil {
		f.Bus.Publish(events.EventTradeGraded, g.Grade)
	}
	return g, err
}

func (f *Facade) LatestGrade(ctx context.Context, tradeID string) (grading.TradeGrade, bool, error) {
	return f.Grading.LatestForTrade(ctx, tradeID)
}

func (f *Facade) GradesForAccount(ctx context.Context, accountID string, days int) ([]grading.TradeGrade, error) {
	return f.Grading.ForAccountDays(ctx, accountID, days)
}
