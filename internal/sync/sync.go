// Package sync implements the SyncService: a one-shot, idempotent
// reconciliation of one trade's local state against the broker's "closed
// orders" view, driving TradeLifecycle transitions from whatever new fills
// it observes.
package sync

import (
	"context"
	"database/sql"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
	"github.com/matiasvillaverde/trust-core/internal/store"
	"github.com/matiasvillaverde/trust-core/internal/trade"
)

// Service is the SyncService: it never moves money or talks to the broker's
// trading endpoints directly, it only reads the broker's closed-orders view
// and replays what it finds onto the local Orders/TradeLifecycle.
type Service struct {
	db *store.DB
	trades *trade.Store
	orders *orderbook.Store
	vehicles *orderbook.VehicleStore
	lifecycle *trade.Lifecycle
	gateway broker.Gateway
}

// NewService wires the SyncService's collaborators.
func NewService(db *store.DB, trades *trade.Store, orders *orderbook.Store, vehicles *orderbook.VehicleStore,
	lifecycle *trade.Lifecycle, gateway broker.Gateway) *Service {
	return &Service{db: db, trades: trades, orders: orders, vehicles: vehicles, lifecycle: lifecycle, gateway: gateway}
}

// SyncTrade reconciles a trade's local order state against the broker's
// view. Calling it N times in a row against unchanged broker state is a
// no-op after the first call: every "new fill" check below compares the
// order's state as read at the start of this call, so a second call sees
// nothing new and takes no lifecycle action.
func (s *Service) SyncTrade(ctx context.Context, tradeID string) (trade.Trade, error) {
	t, err := s.trades.Get(ctx, tradeID)
	if err != nil {
		return trade.Trade{}, err
	}
	entry, err := s.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return trade.Trade{}, err
	}
	target, err := s.orders.Get(ctx, t.TargetOrderID)
	if err != nil {
		return trade.Trade{}, err
	}
	stop, err := s.orders.Get(ctx, t.SafetyStopOrderID)
	if err != nil {
		return trade.Trade{}, err
	}
	vehicle, err := s.vehicles.Get(ctx, t.TradingVehicleID)
	if err != nil {
		return trade.Trade{}, err
	}

	targetBrokerID := ""
	if target.BrokerOrderID != nil {
		targetBrokerID = *target.BrokerOrderID
	}
	vendorOrders, log, err := s.gateway.SyncTrade(ctx, vehicle.Symbol, string(t.Status), entry.ID, targetBrokerID)
	if err != nil {
		return trade.Trade{}, errs.Wrap(errs.KindBroker, "SyncTradeFailed", err)
	}

	entryWasFilled := entry.Status == orderbook.StatusFilled
	targetWasFilled := target.Status == orderbook.StatusFilled
	stopWasFilled := stop.Status == orderbook.StatusFilled

	entryVendor, entryFound := matchVendor(vendorOrders, entry)
	targetVendor, targetFound := matchVendor(vendorOrders, target)
	stopVendor, stopFound := matchVendor(vendorOrders, stop)

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if entryFound && applyVendor(&entry, entryVendor) {
			if err := orderbook.UpdateTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		if targetFound && applyVendor(&target, targetVendor) {
			if err := orderbook.UpdateTx(ctx, tx, target); err != nil {
				return err
			}
		}
		if stopFound && applyVendor(&stop, stopVendor) {
			if err := orderbook.UpdateTx(ctx, tx, stop); err != nil {
				return err
			}
		}
		_, err := broker.RecordTx(ctx, tx, log, &t.ID)
		return err
	})
	if err != nil {
		return trade.Trade{}, err
	}

	entryNewFill := entryFound && !entryWasFilled && entry.Status == orderbook.StatusFilled
	entryNewUnfill := entryFound && entryWasFilled && entry.Status != orderbook.StatusFilled
	targetNewFill := targetFound && !targetWasFilled && target.Status == orderbook.StatusFilled
	stopNewFill := stopFound && !stopWasFilled && stop.Status == orderbook.StatusFilled

	switch {
	case stopNewFill:
		return s.lifecycle.StopExecuted(ctx, t.ID, valueOrZero(stop.AverageFilledPrice), stop.FilledQuantity, money.Zero, timeOrNow(stop.FilledAt))
	case targetNewFill:
		return s.lifecycle.TargetExecuted(ctx, t.ID, valueOrZero(target.AverageFilledPrice), target.FilledQuantity, money.Zero, timeOrNow(target.FilledAt))
	case entryNewFill:
		return s.lifecycle.FillTrade(ctx, t.ID, valueOrZero(entry.AverageFilledPrice), entry.FilledQuantity, money.Zero, timeOrNow(entry.FilledAt))
	case entryNewUnfill:
		if err := trade.RequireTransition(t.Status, trade.StatusSubmitted); err != nil {
			return s.trades.Get(ctx, t.ID)
		}
		if err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
			return trade.UpdateStatusTx(ctx, tx, t.ID, trade.StatusSubmitted)
		}); err != nil {
			return trade.Trade{}, err
		}
		t.Status = trade.StatusSubmitted
		return t, nil
	default:
		// Nothing new observed; fall back to the latest persisted state.
		return s.trades.Get(ctx, t.ID)
	}
}

// matchVendor locates the vendor order describing local, matching first by
// broker_order_id and falling back to client_order_id == local.ID (the entry
// leg, before it has a broker_order_id of its own, is only ever matched this
// way).
func matchVendor(vendorOrders []broker.VendorOrder, local orderbook.Order) (broker.VendorOrder, bool) {
	for _, v := range vendorOrders {
		if local.BrokerOrderID != nil && v.BrokerOrderID == *local.BrokerOrderID {
			return v, true
		}
	}
	for _, v := range vendorOrders {
		if v.ClientOrderID != "" && v.ClientOrderID == local.ID {
			return v, true
		}
	}
	return broker.VendorOrder{}, false
}

// applyVendor copies the vendor's view of an order onto o, reporting whether
// anything actually changed.
func applyVendor(o *orderbook.Order, v broker.VendorOrder) bool {
	changed := false
	if o.BrokerOrderID == nil && v.BrokerOrderID != "" {
		id := v.BrokerOrderID
		o.BrokerOrderID = &id
		changed = true
	}
	if o.FilledQuantity != v.FilledQuantity {
		o.FilledQuantity = v.FilledQuantity
		changed = true
	}
	if v.AverageFilledPrice != nil && (o.AverageFilledPrice == nil || !o.AverageFilledPrice.Equal(*v.AverageFilledPrice)) {
		o.AverageFilledPrice = v.AverageFilledPrice
		changed = true
	}
	if o.Status != v.Status {
		o.Status = v.Status
		changed = true
	}
	if !timeEqual(o.FilledAt, v.FilledAt) {
		o.FilledAt = v.FilledAt
		changed = true
	}
	if !timeEqual(o.CancelledAt, v.CancelledAt) {
		o.CancelledAt = v.CancelledAt
		changed = true
	}
	if !timeEqual(o.ExpiredAt, v.ExpiredAt) {
		o.ExpiredAt = v.ExpiredAt
		changed = true
	}
	return changed
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func valueOrZero(d *money.Decimal) money.Decimal {
	if d == nil {
		return money.Zero
	}
	return *d
}

func timeOrNow(t *time.Time) time.Time {
	if t == nil {
		return time.Now().UTC()
	}
	return *t
}
