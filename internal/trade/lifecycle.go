package trade

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/account"
	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/ledger"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
	"github.com/matiasvillaverde/trust-core/internal/risk"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// defaultRiskPerTradePct/defaultMonthlyPct apply when an account has not yet
// configured a RiskPerTrade/RiskPerMonth rule of its own.
const (
	defaultRiskPerTradePct = 1.0
	defaultMonthlyPct = 6.0
)

var ErrNotModifiable = errs.New(errs.KindState, "TradeNotModifiable", "trade must be Filled to modify its stop or target")

// Lifecycle is the TradeLifecycle orchestrator: it drives Ledger,
// RiskEngine, and the order/trade stores through every transition, one
// database transaction per public call.
type Lifecycle struct {
	db *store.DB
	trades *Store
	orders *orderbook.Store
	vehicles *orderbook.VehicleStore
	accounts *account.Store
	ledger *ledger.Ledger
	risk *risk.Store
	monthData risk.MonthDataProvider
	gateway broker.Gateway
}

// NewLifecycle wires every collaborator the trade lifecycle needs.
func NewLifecycle(db *store.DB, trades *Store, orders *orderbook.Store, vehicles *orderbook.VehicleStore,
	accounts *account.Store, led *ledger.Ledger, riskStore *risk.Store, monthData risk.MonthDataProvider,
	gateway broker.Gateway) *Lifecycle {
	return &Lifecycle{
		db: db, trades: trades, orders: orders, vehicles: vehicles,
		accounts: accounts, ledger: led, risk: riskStore, monthData: monthData, gateway: gateway,
	}
}

// DraftTrade is the caller-supplied shape of a brand-new bracket trade
//
type DraftTrade struct {
	AccountID string
	Symbol string
	VehicleCategory orderbook.VehicleCategory
	BrokerName string
	Category Category
	Currency money.Currency
	EntryPrice money.Decimal
	TargetPrice money.Decimal
	StopPrice money.Decimal
	Quantity money.Quantity
	Thesis *string
	Sector *string
	AssetClass *string
	Context *string
}

// CreateTrade validates geometry and quantity, creates the vehicle if
// unseen, then writes the three child orders and the trade row in one
// transaction, all in StatusNew.
func (l *Lifecycle) CreateTrade(ctx context.Context, d DraftTrade) (Trade, error) {
	if err := ValidateGeometry(d.Category, d.StopPrice, d.EntryPrice, d.TargetPrice); err != nil {
		return Trade{}, err
	}
	if d.Quantity == 0 {
		return Trade{}, ErrInvalidQuantity
	}

	vehicle, err := l.vehicles.Upsert(ctx, d.Symbol, d.VehicleCategory, d.BrokerName)
	if err != nil {
		return Trade{}, fmt.Errorf("resolve trading vehicle: %w", err)
	}

	entryAction, closeAction := Buy, Sell
	if d.Category == Short {
		entryAction, closeAction = Sell, Buy
	}

	var result Trade
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		entry, err := orderbook.CreateTx(ctx, tx, orderbook.Order{
			TradingVehicleID: vehicle.ID, Currency: d.Currency, Quantity: d.Quantity, UnitPrice: d.EntryPrice,
			Category: orderbook.Limit, Action: entryAction, Status: orderbook.StatusNew, TimeInForce: orderbook.GTC,
		})
		if err != nil {
			return err
		}
		target, err := orderbook.CreateTx(ctx, tx, orderbook.Order{
			TradingVehicleID: vehicle.ID, Currency: d.Currency, Quantity: d.Quantity, UnitPrice: d.TargetPrice,
			Category: orderbook.Limit, Action: closeAction, Status: orderbook.StatusNew, TimeInForce: orderbook.GTC,
		})
		if err != nil {
			return err
		}
		stop, err := orderbook.CreateTx(ctx, tx, orderbook.Order{
			TradingVehicleID: vehicle.ID, Currency: d.Currency, Quantity: d.Quantity, UnitPrice: d.StopPrice,
			Category: orderbook.Stop, Action: closeAction, Status: orderbook.StatusNew, TimeInForce: orderbook.GTC,
		})
		if err != nil {
			return err
		}

		t, err := CreateTx(ctx, tx, Trade{
			AccountID: d.AccountID, TradingVehicleID: vehicle.ID, Category: d.Category, Currency: d.Currency,
			Status: StatusNew, EntryOrderID: entry.ID, TargetOrderID: target.ID, SafetyStopOrderID: stop.ID,
			Thesis: d.Thesis, Sector: d.Sector, AssetClass: d.AssetClass, Context: d.Context,
		})
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	return result, err
}

// FundTrade computes required capital and position size, gates on
// CanFund, then moves capital into the trade.
func (l *Lifecycle) FundTrade(ctx context.Context, tradeID string) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Status == StatusFunded {
		return t, nil
	}
	if err := RequireTransition(t.Status, StatusFunded); err != nil {
		return Trade{}, err
	}

	entry, err := l.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return Trade{}, err
	}
	stop, err := l.orders.Get(ctx, t.SafetyStopOrderID)
	if err != nil {
		return Trade{}, err
	}
	required, err := RequiredCapital(t.Category, entry, stop)
	if err != nil {
		return Trade{}, err
	}

	size, rules, _, monthStart, err := l.planSize(ctx, t, entry, stop)
	if err != nil {
		return Trade{}, err
	}

	var result Trade
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		fresh, err := l.ledger.BalanceTx(ctx, tx, t.AccountID, t.Currency)
		if err != nil {
			return err
		}
		if err := risk.CanFund(risk.FundCheck{
			AccountAvailable: fresh.TotalAvailable, RequiredCapital: required,
			Rules: rules, Size: size, EntryQuantity: entry.Quantity,
		}); err != nil {
			return err
		}
		if _, err := l.ledger.RecordTx(ctx, tx, t.AccountID, t.Currency, required, ledger.CategoryFundTrade, &t.ID); err != nil {
			return err
		}
		if err := UpdateStatusTx(ctx, tx, t.ID, StatusFunded); err != nil {
			return err
		}
		if err := RecomputeBalanceTx(ctx, tx, t.ID, t.Currency); err != nil {
			return err
		}
		t.Status = StatusFunded
		result = t
		return nil
	})
	if err != nil {
		return Trade{}, err
	}
	if err := l.monthData.RecordBudget(ctx, t.AccountID, t.Currency, monthStart, size.MonthlyBudget); err != nil {
		return Trade{}, err
	}
	return result, nil
}

// PreviewSize runs the size calculator for a would-be trade without
// creating one, for the CLI/facade's size-preview operation.
func (l *Lifecycle) PreviewSize(ctx context.Context, accountID string, currency money.Currency, entryPrice, stopPrice money.Decimal) (risk.Size, error) {
	size, _, _, _, err := l.planSize(ctx, Trade{AccountID: accountID, Currency: currency},
		orderbook.Order{UnitPrice: entryPrice}, orderbook.Order{UnitPrice: stopPrice})
	return size, err
}

// planSize gathers the risk inputs and runs the size calculator outside the
// mutating transaction, keeping the read-only planning step separate from
// the write it gates; FundTrade re-checks available funds inside its
// transaction before committing.
func (l *Lifecycle) planSize(ctx context.Context, t Trade, entry, stop orderbook.Order) (risk.Size, []risk.Rule, money.Decimal, time.Time, error) {
	bal, err := l.accounts.GetBalance(ctx, t.AccountID, t.Currency)
	if err != nil {
		return risk.Size{}, nil, money.Zero, time.Time{}, err
	}
	rules, err := l.risk.ListActive(ctx, t.AccountID)
	if err != nil {
		return risk.Size{}, nil, money.Zero, time.Time{}, err
	}
	level, err := l.risk.GetLevel(ctx, t.AccountID)
	if err != nil {
		return risk.Size{}, nil, money.Zero, time.Time{}, err
	}

	riskPerTradePct, monthlyPct := defaultRiskPerTradePct, defaultMonthlyPct
	for _, r := range rules {
		switch r.Name {
		case risk.RuleRiskPerTrade:
			riskPerTradePct = r.Percentage
		case risk.RuleRiskPerMonth:
			monthlyPct = r.Percentage
		}
	}

	monthStart := time.Date(time.Now().UTC().Year(), time.Now().UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	budget, err := l.monthData.MonthlyBudgetData(ctx, t.AccountID, t.Currency, monthStart)
	if err != nil {
		return risk.Size{}, nil, money.Zero, time.Time{}, err
	}

	size, err := risk.Calculate(risk.SizeInput{
		AccountID: t.AccountID, EntryPrice: entry.UnitPrice, StopPrice: stop.UnitPrice, Currency: t.Currency,
	}, bal.TotalAvailable, riskPerTradePct, budget, monthlyPct, level.CurrentLevel)
	return size, rules, bal.TotalAvailable, monthStart, err
}

// SubmitTrade sends the bracket to the
// broker, record the vendor log, and stamp broker_order_id on all three legs.
func (l *Lifecycle) SubmitTrade(ctx context.Context, tradeID string) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Status == StatusSubmitted {
		return t, nil
	}
	if err := RequireTransition(t.Status, StatusSubmitted); err != nil {
		return Trade{}, err
	}
	entry, err := l.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return Trade{}, err
	}
	target, err := l.orders.Get(ctx, t.TargetOrderID)
	if err != nil {
		return Trade{}, err
	}
	stop, err := l.orders.Get(ctx, t.SafetyStopOrderID)
	if err != nil {
		return Trade{}, err
	}
	vehicle, err := l.vehicles.Get(ctx, t.TradingVehicleID)
	if err != nil {
		return Trade{}, err
	}

	log, ids, err := l.gateway.SubmitTrade(ctx, entry, target, stop, vehicle.Symbol)
	if err != nil {
		return Trade{}, errs.Wrap(errs.KindBroker, "SubmitTradeFailed", err)
	}

	var result Trade
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		for id, brokerID := range map[string]string{
			entry.ID: ids.EntryBrokerOrderID, target.ID: ids.TargetBrokerOrderID, stop.ID: ids.SafetyStopBrokerOrderID,
		} {
			if err := orderbook.SetBrokerOrderID(ctx, tx, id, brokerID); err != nil {
				return err
			}
			o, err := orderbook.GetTx(ctx, tx, id)
			if err != nil {
				return err
			}
			o.Status = orderbook.StatusAccepted
			o.SubmittedAt = &now
			if err := orderbook.UpdateTx(ctx, tx, o); err != nil {
				return err
			}
		}
		if _, err := broker.RecordTx(ctx, tx, log, &t.ID); err != nil {
			return err
		}
		if err := UpdateStatusTx(ctx, tx, t.ID, StatusSubmitted); err != nil {
			return err
		}
		t.Status = StatusSubmitted
		result = t
		return nil
	})
	return result, err
}

// FillTrade records that the entry order filled,
// records OpenTrade at the fill value, refunds the slippage between the
// planned and filled totals, and transitions to Filled.
func (l *Lifecycle) FillTrade(ctx context.Context, tradeID string, avgFillPrice money.Decimal, filledQty money.Quantity, fee money.Decimal, at time.Time) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Status == StatusFilled {
		return t, nil
	}
	if err := RequireTransition(t.Status, StatusFilled); err != nil {
		return Trade{}, err
	}
	entry, err := l.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return Trade{}, err
	}

	plannedTotal, err := money.Mul(entry.UnitPrice, entry.Quantity.Decimal())
	if err != nil {
		return Trade{}, err
	}
	filledTotal, err := money.Mul(avgFillPrice, filledQty.Decimal())
	if err != nil {
		return Trade{}, err
	}
	diff := money.Abs(mustSub(plannedTotal, filledTotal))

	var result Trade
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := entry.Fill(filledQty, avgFillPrice, at); err != nil {
			return err
		}
		if err := orderbook.UpdateTx(ctx, tx, entry); err != nil {
			return err
		}
		if _, err := l.ledger.RecordTx(ctx, tx, t.AccountID, t.Currency, filledTotal, ledger.CategoryOpenTrade, &t.ID); err != nil {
			return err
		}
		if err := l.ledger.RecordFee(ctx, tx, t.AccountID, t.Currency, fee, ledger.CategoryFeeOpen, t.ID); err != nil {
			return err
		}
		if !diff.IsZero() {
			if _, err := l.ledger.RecordTx(ctx, tx, t.AccountID, t.Currency, diff, ledger.CategoryPaymentFromTrade, &t.ID); err != nil {
				return err
			}
		}
		if err := UpdateStatusTx(ctx, tx, t.ID, StatusFilled); err != nil {
			return err
		}
		if err := RecomputeBalanceTx(ctx, tx, t.ID, t.Currency); err != nil {
			return err
		}
		t.Status = StatusFilled
		result = t
		return nil
	})
	return result, err
}

// TargetExecuted records that the target leg
// filled at a profit/loss, the stop is canceled, and the trade's remaining
// funded capital is returned to its account.
func (l *Lifecycle) TargetExecuted(ctx context.Context, tradeID string, avgFillPrice money.Decimal, filledQty money.Quantity, fee money.Decimal, at time.Time) (Trade, error) {
	return l.closeLeg(ctx, tradeID, true, avgFillPrice, filledQty, fee, at)
}

// StopExecuted records that the stop leg filled,
// categorized as CloseSafetyStop or CloseSafetyStopSlippage depending on
// whether the fill was worse than the planned stop price.
func (l *Lifecycle) StopExecuted(ctx context.Context, tradeID string, avgFillPrice money.Decimal, filledQty money.Quantity, fee money.Decimal, at time.Time) (Trade, error) {
	return l.closeLeg(ctx, tradeID, false, avgFillPrice, filledQty, fee, at)
}

func (l *Lifecycle) closeLeg(ctx context.Context, tradeID string, isTarget bool, avgFillPrice money.Decimal, filledQty money.Quantity, fee money.Decimal, at time.Time) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	toStatus := StatusClosedTarget
	if !isTarget {
		toStatus = StatusClosedStopLoss
	}
	if t.Status == toStatus {
		return t, nil
	}
	if err := RequireTransition(t.Status, toStatus); err != nil {
		return Trade{}, err
	}

	filledOrderID, otherOrderID := t.TargetOrderID, t.SafetyStopOrderID
	if !isTarget {
		filledOrderID, otherOrderID = t.SafetyStopOrderID, t.TargetOrderID
	}
	filledOrder, err := l.orders.Get(ctx, filledOrderID)
	if err != nil {
		return Trade{}, err
	}

	cat := ledger.CategoryCloseTarget
	if !isTarget {
		cat = ledger.CategoryCloseSafetyStop
		isLong := t.Category == Long
		worse := (isLong && avgFillPrice.LessThan(filledOrder.UnitPrice)) || (!isLong && avgFillPrice.GreaterThan(filledOrder.UnitPrice))
		if worse {
			cat = ledger.CategoryCloseSafetyStopSlippage
		}
	}

	notional, err := money.Mul(avgFillPrice, filledQty.Decimal())
	if err != nil {
		return Trade{}, err
	}

	var result Trade
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := filledOrder.Fill(filledQty, avgFillPrice, at); err != nil {
			return err
		}
		if err := orderbook.UpdateTx(ctx, tx, filledOrder); err != nil {
			return err
		}

		other, err := orderbook.GetTx(ctx, tx, otherOrderID)
		if err != nil {
			return err
		}
		if !other.IsTerminal() {
			now := time.Now().UTC()
			other.Status = orderbook.StatusCanceled
			other.CancelledAt = &now
			if err := orderbook.UpdateTx(ctx, tx, other); err != nil {
				return err
			}
		}

		if _, err := l.ledger.RecordTx(ctx, tx, t.AccountID, t.Currency, notional, cat, &t.ID); err != nil {
			return err
		}
		residual, err := l.ledger.OpenFundRemainingTx(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if !residual.IsZero() {
			if _, err := l.ledger.RecordTx(ctx, tx, t.AccountID, t.Currency, residual, ledger.CategoryPaymentFromTrade, &t.ID); err != nil {
				return err
			}
		}
		if err := l.ledger.RecordFee(ctx, tx, t.AccountID, t.Currency, fee, ledger.CategoryFeeClose, t.ID); err != nil {
			return err
		}
		if err := UpdateStatusTx(ctx, tx, t.ID, toStatus); err != nil {
			return err
		}
		if err := RecomputeBalanceTx(ctx, tx, t.ID, t.Currency); err != nil {
			return err
		}
		t.Status = toStatus
		result = t
		return nil
	})
	return result, err
}

// CancelFunded handles a cancel before submission: no broker order was
// ever placed, so canceling just releases the funded capital.
func (l *Lifecycle) CancelFunded(ctx context.Context, tradeID string) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Status == StatusCanceled {
		return t, nil
	}
	if err := RequireTransition(t.Status, StatusCanceled); err != nil {
		return Trade{}, err
	}
	return l.releaseAndCancel(ctx, t)
}

// CancelSubmitted handles a cancel after submission, gated on no
// child order having a fill, cancels the broker orders, then releases funds.
func (l *Lifecycle) CancelSubmitted(ctx context.Context, tradeID string) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Status == StatusCanceled {
		return t, nil
	}
	if err := RequireTransition(t.Status, StatusCanceled); err != nil {
		return Trade{}, err
	}
	entry, err := l.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return Trade{}, err
	}
	target, err := l.orders.Get(ctx, t.TargetOrderID)
	if err != nil {
		return Trade{}, err
	}
	stop, err := l.orders.Get(ctx, t.SafetyStopOrderID)
	if err != nil {
		return Trade{}, err
	}
	if err := risk.CanCancelSubmitted(entry, target, stop); err != nil {
		return Trade{}, err
	}

	var brokerIDs []string
	for _, o := range []orderbook.Order{entry, target, stop} {
		if o.BrokerOrderID != nil {
			brokerIDs = append(brokerIDs, *o.BrokerOrderID)
		}
	}
	if err := l.gateway.CancelTrade(ctx, brokerIDs); err != nil {
		return Trade{}, errs.Wrap(errs.KindBroker, "CancelTradeFailed", err)
	}

	result, err := l.releaseAndCancelWith(ctx, t, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now().UTC()
		for _, o := range []orderbook.Order{entry, target, stop} {
			if o.IsTerminal() {
				continue
			}
			o.Status = orderbook.StatusCanceled
			o.CancelledAt = &now
			if err := orderbook.UpdateTx(ctx, tx, o); err != nil {
				return err
			}
		}
		return nil
	})
	return result, err
}

func (l *Lifecycle) releaseAndCancel(ctx context.Context, t Trade) (Trade, error) {
	return l.releaseAndCancelWith(ctx, t, func(context.Context, *sql.Tx) error { return nil })
}

func (l *Lifecycle) releaseAndCancelWith(ctx context.Context, t Trade, extra func(context.Context, *sql.Tx) error) (Trade, error) {
	var result Trade
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := extra(ctx, tx); err != nil {
			return err
		}
		residual, err := l.ledger.OpenFundRemainingTx(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if !residual.IsZero() {
			if _, err := l.ledger.RecordTx(ctx, tx, t.AccountID, t.Currency, residual, ledger.CategoryPaymentFromTrade, &t.ID); err != nil {
				return err
			}
		}
		if err := UpdateStatusTx(ctx, tx, t.ID, StatusCanceled); err != nil {
			return err
		}
		if err := RecomputeBalanceTx(ctx, tx, t.ID, t.Currency); err != nil {
			return err
		}
		t.Status = StatusCanceled
		result = t
		return nil
	})
	return result, err
}

// ModifyStop updates the safety stop, gated on CanModifyStop
// (never widen risk, stay on the correct side of the fill price), then
// replaces the stop order: the old order row is marked Replaced and a new
// row carrying the vendor's new broker order id becomes the trade's stop.
func (l *Lifecycle) ModifyStop(ctx context.Context, tradeID string, newStopPrice money.Decimal) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Status != StatusFilled {
		return Trade{}, ErrNotModifiable
	}
	entry, err := l.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return Trade{}, err
	}
	stop, err := l.orders.Get(ctx, t.SafetyStopOrderID)
	if err != nil {
		return Trade{}, err
	}
	if entry.AverageFilledPrice == nil {
		return Trade{}, ErrNotModifiable
	}
	isLong := t.Category == Long
	if err := risk.CanModifyStop(isLong, *entry.AverageFilledPrice, stop.UnitPrice, newStopPrice); err != nil {
		return Trade{}, err
	}
	if stop.BrokerOrderID == nil {
		return Trade{}, ErrNotModifiable
	}
	newBrokerOrderID, err := l.gateway.ModifyStop(ctx, *stop.BrokerOrderID, newStopPrice)
	if err != nil {
		return Trade{}, errs.Wrap(errs.KindBroker, "ModifyStopFailed", err)
	}

	var result Trade
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		newStop, err := l.replaceOrderTx(ctx, tx, stop, newStopPrice, newBrokerOrderID)
		if err != nil {
			return err
		}
		if err := UpdateSafetyStopOrderTx(ctx, tx, t.ID, newStop.ID); err != nil {
			return err
		}
		t.SafetyStopOrderID = newStop.ID
		result = t
		return nil
	})
	return result, err
}

// replaceOrderTx implements modify contract: the old order row
// is marked Replaced and left untouched (its broker_order_id stays exactly
// what it always was), and a new row is created carrying the new price and
// the new vendor order id.
func (l *Lifecycle) replaceOrderTx(ctx context.Context, tx *sql.Tx, old orderbook.Order, newPrice money.Decimal, newBrokerOrderID string) (orderbook.Order, error) {
	now := time.Now().UTC()
	old.Status = orderbook.StatusReplaced
	old.CancelledAt = &now
	if err := orderbook.UpdateTx(ctx, tx, old); err != nil {
		return orderbook.Order{}, err
	}
	return orderbook.CreateTx(ctx, tx, orderbook.Order{
		BrokerOrderID: &newBrokerOrderID, TradingVehicleID: old.TradingVehicleID, Currency: old.Currency,
		Quantity: old.Quantity, UnitPrice: newPrice, Category: old.Category, Action: old.Action,
		Status: orderbook.StatusAccepted, TimeInForce: old.TimeInForce, SubmittedAt: &now,
	})
}

// ModifyTarget updates the target, gated on geometry
// remaining valid against the current entry/stop, then replaces the target
// order's price.
func (l *Lifecycle) ModifyTarget(ctx context.Context, tradeID string, newTargetPrice money.Decimal) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Status != StatusFilled {
		return Trade{}, ErrNotModifiable
	}
	entry, err := l.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return Trade{}, err
	}
	stop, err := l.orders.Get(ctx, t.SafetyStopOrderID)
	if err != nil {
		return Trade{}, err
	}
	target, err := l.orders.Get(ctx, t.TargetOrderID)
	if err != nil {
		return Trade{}, err
	}
	entryPrice := entry.UnitPrice
	if entry.AverageFilledPrice != nil {
		entryPrice = *entry.AverageFilledPrice
	}
	if err := ValidateGeometry(t.Category, stop.UnitPrice, entryPrice, newTargetPrice); err != nil {
		return Trade{}, err
	}
	if target.BrokerOrderID == nil {
		return Trade{}, ErrNotModifiable
	}
	newBrokerOrderID, err := l.gateway.ModifyTarget(ctx, *target.BrokerOrderID, newTargetPrice)
	if err != nil {
		return Trade{}, errs.Wrap(errs.KindBroker, "ModifyTargetFailed", err)
	}

	var result Trade
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		newTarget, err := l.replaceOrderTx(ctx, tx, target, newTargetPrice, newBrokerOrderID)
		if err != nil {
			return err
		}
		if err := UpdateTargetOrderTx(ctx, tx, t.ID, newTarget.ID); err != nil {
			return err
		}
		t.TargetOrderID = newTarget.ID
		result = t
		return nil
	})
	return result, err
}

// Close performs a manual market exit. On broker
// success the target is marked Filled at the market price, the stop is
// canceled, and the trade moves to Canceled — the watcher's own fill
// observation (or a later sync pass) is what advances it on to
// ClosedTarget, the same edge a broker-side stop/target race uses.
func (l *Lifecycle) Close(ctx context.Context, tradeID string) (Trade, error) {
	t, err := l.trades.Get(ctx, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Status != StatusFilled {
		return Trade{}, ErrNotModifiable
	}
	entry, err := l.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return Trade{}, err
	}
	vehicle, err := l.vehicles.Get(ctx, t.TradingVehicleID)
	if err != nil {
		return Trade{}, err
	}

	vendorOrder, log, err := l.gateway.CloseTrade(ctx, vehicle.Symbol, entry.FilledQuantity)
	if err != nil {
		return Trade{}, errs.Wrap(errs.KindBroker, "CloseTradeFailed", err)
	}

	var result Trade
	err = l.db.WithTx(ctx, func(tx *sql.Tx) error {
		target, err := orderbook.GetTx(ctx, tx, t.TargetOrderID)
		if err != nil {
			return err
		}
		at := time.Now().UTC()
		if vendorOrder.FilledAt != nil {
			at = *vendorOrder.FilledAt
		}
		price := target.UnitPrice
		if vendorOrder.AverageFilledPrice != nil {
			price = *vendorOrder.AverageFilledPrice
		}
		qty := vendorOrder.FilledQuantity
		if qty == 0 {
			qty = entry.FilledQuantity
		}
		if err := target.Fill(qty, price, at); err != nil {
			return err
		}
		if err := orderbook.UpdateTx(ctx, tx, target); err != nil {
			return err
		}

		stop, err := orderbook.GetTx(ctx, tx, t.SafetyStopOrderID)
		if err != nil {
			return err
		}
		if !stop.IsTerminal() {
			stop.Status = orderbook.StatusCanceled
			stop.CancelledAt = &at
			if err := orderbook.UpdateTx(ctx, tx, stop); err != nil {
				return err
			}
		}

		if _, err := broker.RecordTx(ctx, tx, log, &t.ID); err != nil {
			return err
		}
		if err := UpdateStatusTx(ctx, tx, t.ID, StatusCanceled); err != nil {
			return err
		}
		t.Status = StatusCanceled
		result = t
		return nil
	})
	return result, err
}

func mustSub(a, b money.Decimal) money.Decimal {
	r, err := money.Sub(a, b)
	if err != nil {
		return money.Zero
	}
	return r
}
