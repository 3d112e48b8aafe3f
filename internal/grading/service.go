package grading

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/account"
	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
	"github.com/matiasvillaverde/trust-core/internal/risk"
	"github.com/matiasvillaverde/trust-core/internal/trade"
)

// Service computes and persists trade grades. It reads the trade/order
// aggregates, the account's current balance and active risk rules, and
// pulls OHLCV bars from the broker for the execution component's
// market-data metrics.
type Service struct {
	trades *trade.Store
	orders *orderbook.Store
	accounts *account.Store
	risk *risk.Store
	gateway broker.Gateway
	store *Store
}

// NewService builds a grading Service.
func NewService(trades *trade.Store, orders *orderbook.Store, accounts *account.Store, riskStore *risk.Store, gateway broker.Gateway, store *Store) *Service {
	return &Service{trades: trades, orders: orders, accounts: accounts, risk: riskStore, gateway: gateway, store: store}
}

var closedStatuses = map[trade.Status]bool{
	trade.StatusClosedTarget: true,
	trade.StatusClosedStopLoss: true,
}

// ComputeGrade grades tradeID without persisting, for preview callers.
func (s *Service) ComputeGrade(ctx context.Context, tradeID string, weights Weights) (DetailedGrade, error) {
	if err := weights.Validate(); err != nil {
		return DetailedGrade{}, err
	}

	t, err := s.trades.Get(ctx, tradeID)
	if err != nil {
		return DetailedGrade{}, fmt.Errorf("load trade: %w", err)
	}
	if !closedStatuses[t.Status] && t.Status != trade.StatusCanceled {
		return DetailedGrade{}, fmt.Errorf("grading: trade %s is not closed (status=%s)", tradeID, t.Status)
	}

	entry, err := s.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return DetailedGrade{}, fmt.Errorf("load entry order: %w", err)
	}
	target, err := s.orders.Get(ctx, t.TargetOrderID)
	if err != nil {
		return DetailedGrade{}, fmt.Errorf("load target order: %w", err)
	}
	stop, err := s.orders.Get(ctx, t.SafetyStopOrderID)
	if err != nil {
		return DetailedGrade{}, fmt.Errorf("load stop order: %w", err)
	}

	if t.Status == trade.StatusCanceled {
		if _, ok, _ := bestEffortExitFill(t, target, stop); !ok {
			return DetailedGrade{}, fmt.Errorf("grading: canceled trade %s has no real exit fill; cannot grade", tradeID)
		}
	}

	documentationScore, docRecs := scoreDocumentation(t)
	processScore, procRecs := scoreProcess(t, entry, target, stop)

	balance, err := s.accounts.GetBalance(ctx, t.AccountID, t.Currency)
	if err != nil {
		return DetailedGrade{}, fmt.Errorf("load account balance: %w", err)
	}
	rules, err := s.risk.ListActive(ctx, t.AccountID)
	if err != nil {
		return DetailedGrade{}, fmt.Errorf("load risk rules: %w", err)
	}
	riskScore, riskRecs := scoreRisk(t, entry, stop, balance.TotalBalance, rules)

	bars := s.fetchBars(ctx, t, entry, target, stop)
	executionScore, execRecs, market := scoreExecution(t, entry, target, stop, bars)

	overall := weightedScore(processScore, riskScore, executionScore, documentationScore, weights)

	recs := dedupe(append(append(append(procRecs, riskRecs...), execRecs...), docRecs...))

	grade := TradeGrade{
		TradeID: t.ID,
		OverallScore: overall,
		OverallGrade: ScoreToGrade(overall),
		ProcessScore: processScore,
		RiskScore: riskScore,
		ExecutionScore: executionScore,
		DocumentationScore: documentationScore,
		Recommendations: recs,
		CreatedAt: time.Now().UTC(),
	}

	return DetailedGrade{Grade: grade, Weights: weights, Market: market}, nil
}

// fetchBars pulls a bars window wide enough for ATR14/ADV20 (40 calendar
// days before entry) plus the entry-to-exit window for MFE/MAE, collapsing
// both into one call since the calculator only needs the union. A GetBars
// failure degrades to no market data rather than failing the grade, per
// "market-data backfill is best-effort."
func (s *Service) fetchBars(ctx context.Context, t trade.Trade, entry, target, stop orderbook.Order) []broker.MarketBar {
	if s.gateway == nil || entry.FilledAt == nil {
		return nil
	}
	start := entry.FilledAt.Add(-40 * 24 * time.Hour)
	end := time.Now().UTC()
	if _, _, exitTime := bestEffortExitFill(t, target, stop); exitTime != nil && exitTime.After(end) {
		end = *exitTime
	}
	bars, err := s.gateway.GetBars(ctx, t.TradingVehicleID, start, end, "1d")
	if err != nil {
		return nil
	}
	return bars
}

func dedupe(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	var last string
	for i, v := range in {
		if i == 0 || v != last {
			out = append(out, v)
			last = v
		}
	}
	return out
}

// GradeTrade computes and persists a grade for tradeID.
func (s *Service) GradeTrade(ctx context.Context, tradeID string, weights Weights) (DetailedGrade, error) {
	computed, err := s.ComputeGrade(ctx, tradeID, weights)
	if err != nil {
		return DetailedGrade{}, err
	}
	persisted, err := s.store.Create(ctx, computed.Grade)
	if err != nil {
		return DetailedGrade{}, fmt.Errorf("persist grade: %w", err)
	}
	computed.Grade = persisted
	return computed, nil
}

// LatestForTrade returns the most recent persisted grade for a trade, if any.
func (s *Service) LatestForTrade(ctx context.Context, tradeID string) (TradeGrade, bool, error) {
	return s.store.LatestForTrade(ctx, tradeID)
}

// ForAccountDays returns every grade recorded in the last `days` days for
// trades belonging to accountID.
func (s *Service) ForAccountDays(ctx context.Context, accountID string, days int) ([]TradeGrade, error) {
	return s.store.ForAccountDays(ctx, accountID, days)
}
