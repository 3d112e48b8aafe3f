// Package watcher implements the BrokerWatcher: a long-running,
// single-task component that keeps one trade's local order state converged
// with the broker via a periodic reconcile tick plus two realtime streams
// (order updates, market data).
package watcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
	syncsvc "github.com/matiasvillaverde/trust-core/internal/sync"
	"github.com/matiasvillaverde/trust-core/internal/trade"
)

// streamState is one of Disconnected, Connecting, Reconciling
// (order-updates only), Live, ErrorRecovery — the per-stream
// connection FSM.
type streamState string

const (
	stateDisconnected streamState = "disconnected"
	stateConnecting streamState = "connecting"
	stateReconciling streamState = "reconciling"
	stateLive streamState = "live"
	stateErrorRecover streamState = "error_recovery"
)

// streamFSM tracks one stream's connection state and retry attempt count for
// the exponential backoff base × 2^attempt, capped.
type streamFSM struct {
	name string
	state streamState
	attempt int
}

func (f *streamFSM) backoff(base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < f.attempt; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}
	return d
}

func (f *streamFSM) recordError() {
	f.state = stateErrorRecover
	f.attempt++
}

func (f *streamFSM) recordConnected(live streamState) {
	f.state = live
	f.attempt = 0
}

// Options configures one Watch call.
type Options struct {
	ReconcileEvery time.Duration
	Timeout time.Duration // zero means no timeout
	BaseBackoff time.Duration // default 1s if zero
	MaxBackoff time.Duration // default 30s if zero
}

func (o Options) withDefaults() Options {
	if o.ReconcileEvery <= 0 {
		o.ReconcileEvery = 30 * time.Second
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return o
}

// Callback is invoked for every WatchEvent; returning Stop terminates Watch.
type Callback func(broker.WatchEvent) broker.Control

// Watcher is the BrokerWatcher.
type Watcher struct {
	gateway broker.Gateway
	trades *trade.Store
	orders *orderbook.Store
	vehicles *orderbook.VehicleStore
	syncer *syncsvc.Service
	brokerSource string
}

// New wires a Watcher's collaborators. brokerSource names the vendor (it is
// stamped on every emitted WatchEvent).
func New(gateway broker.Gateway, trades *trade.Store, orders *orderbook.Store, vehicles *orderbook.VehicleStore,
	syncer *syncsvc.Service, brokerSource string) *Watcher {
	return &Watcher{gateway: gateway, trades: trades, orders: orders, vehicles: vehicles, syncer: syncer, brokerSource: brokerSource}
}

// Watch runs the single-threaded cooperative task until the callback
// returns Stop, opts.Timeout elapses, the bracket reaches a terminal state,
// or ctx is canceled.
func (w *Watcher) Watch(ctx context.Context, tradeID string, opts Options, cb Callback) error {
	opts = opts.withDefaults()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	t, err := w.trades.Get(ctx, tradeID)
	if err != nil {
		return err
	}
	entry, err := w.orders.Get(ctx, t.EntryOrderID)
	if err != nil {
		return err
	}
	target, err := w.orders.Get(ctx, t.TargetOrderID)
	if err != nil {
		return err
	}
	stop, err := w.orders.Get(ctx, t.SafetyStopOrderID)
	if err != nil {
		return err
	}
	vehicle, err := w.vehicles.Get(ctx, t.TradingVehicleID)
	if err != nil {
		return err
	}
	symbol := vehicle.Symbol

	orderFSM := &streamFSM{name: "trade_updates", state: stateDisconnected}
	marketFSM := &streamFSM{name: "market_data", state: stateDisconnected}

	orderUpdates, err := reconnectGeneric(ctx, orderFSM, opts, func(ctx context.Context) (<-chan broker.OrderUpdate, error) {
		return w.gateway.SubscribeOrderUpdates(ctx)
	})
	if err != nil {
		return fmt.Errorf("subscribe order updates: %w", err)
	}

	orderFSM.state = stateReconciling
	updatedTrade, err := w.syncer.SyncTrade(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("initial reconcile: %w", err)
	}
	entry, err = w.orders.Get(ctx, updatedTrade.EntryOrderID)
	if err != nil {
		return err
	}
	target, err = w.orders.Get(ctx, updatedTrade.TargetOrderID)
	if err != nil {
		return err
	}
	stop, err = w.orders.Get(ctx, updatedTrade.SafetyStopOrderID)
	if err != nil {
		return err
	}
	initialEv := broker.WatchEvent{
		EventType: "initial_reconcile", BrokerSource: w.brokerSource, BrokerStream: "trading_rest",
		UpdatedOrders: []orderbook.Order{entry, target, stop},
	}
	if cb(initialEv) == broker.Stop {
		return nil
	}
	orderFSM.recordConnected(stateLive)

	marketData, err := reconnectGeneric(ctx, marketFSM, opts, func(ctx context.Context) (<-chan broker.Tick, error) {
		return w.gateway.SubscribeMarketData(ctx, []string{symbol}, []string{"trades"})
	})
	if err != nil {
		return fmt.Errorf("subscribe market data: %w", err)
	}
	marketFSM.recordConnected(stateLive)

	reconcileTicker := time.NewTicker(opts.ReconcileEvery)
	defer reconcileTicker.Stop()

	for {
		if isTerminal(entry, target, stop) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-reconcileTicker.C:
			before := [3]orderbook.Order{entry, target, stop}
			updatedTrade, err := w.syncer.SyncTrade(ctx, tradeID)
			if err != nil {
				log.Printf("⚠️ [%s] reconcile failed: %v", tradeID, err)
				continue
			}
			entry, err = w.orders.Get(ctx, updatedTrade.EntryOrderID)
			if err != nil {
				return err
			}
			target, err = w.orders.Get(ctx, updatedTrade.TargetOrderID)
			if err != nil {
				return err
			}
			stop, err = w.orders.Get(ctx, updatedTrade.SafetyStopOrderID)
			if err != nil {
				return err
			}
			if changedAny(before, [3]orderbook.Order{entry, target, stop}) {
				ev := broker.WatchEvent{
					EventType: "reconcile", BrokerSource: w.brokerSource, BrokerStream: "trading_rest",
					UpdatedOrders: []orderbook.Order{entry, target, stop},
				}
				if cb(ev) == broker.Stop {
					return nil
				}
			}

		case upd, ok := <-orderUpdates:
			if !ok {
				orderFSM.recordError()
				log.Printf("🔄 [%s] order-updates stream disconnected, reconnecting in %v (attempt %d)", tradeID, orderFSM.backoff(opts.BaseBackoff, opts.MaxBackoff), orderFSM.attempt)
				orderUpdates, err = w.reconnect(ctx, orderFSM, opts, func(ctx context.Context) (<-chan broker.OrderUpdate, error) {
					return w.gateway.SubscribeOrderUpdates(ctx)
				})
				if err != nil {
					return fmt.Errorf("reconnect order updates: %w", err)
				}
				orderFSM.state = stateLive
				continue
			}
			applyOrderUpdate(&entry, &target, &stop, upd)
			ev := broker.WatchEvent{
				EventType: upd.EventType, BrokerSource: w.brokerSource, BrokerStream: "trade_updates",
				UpdatedOrders: []orderbook.Order{entry, target, stop}, BrokerOrderID: &upd.BrokerOrderID,
				PayloadJSON: upd.PayloadJSON,
			}
			if cb(ev) == broker.Stop {
				return nil
			}

		case tick, ok := <-marketData:
			if !ok {
				marketFSM.recordError()
				log.Printf("🔄 [%s] market-data stream disconnected, reconnecting in %v (attempt %d)", tradeID, marketFSM.backoff(opts.BaseBackoff, opts.MaxBackoff), marketFSM.attempt)
				marketData, err = w.reconnect(ctx, marketFSM, opts, func(ctx context.Context) (<-chan broker.Tick, error) {
					return w.gateway.SubscribeMarketData(ctx, []string{symbol}, []string{"trades"})
				})
				if err != nil {
					return fmt.Errorf("reconnect market data: %w", err)
				}
				marketFSM.state = stateLive
				continue
			}
			price, ts, sym := tick.Price, tick.Timestamp, tick.Symbol
			ev := broker.WatchEvent{
				EventType: "market_trade", BrokerSource: w.brokerSource, BrokerStream: "market_data",
				MarketPrice: &price, MarketTimestamp: &ts, MarketSymbol: &sym,
			}
			if cb(ev) == broker.Stop {
				return nil
			}
		}
	}
}

// reconnectGeneric implements the ErrorRecovery state: dial immediately on
// the first attempt (f.attempt == 0), then retry with base×2^attempt backoff
// (capped) on every subsequent failure. It never gives up by itself — it
// loops until dial succeeds or ctx is canceled, so the caller (Watch, for
// both its initial subscribe and a mid-stream reconnect) doesn't need its
// own retry loop.
func reconnectGeneric[T any](ctx context.Context, f *streamFSM, opts Options, dial func(context.Context) (<-chan T, error)) (<-chan T, error) {
	for {
		if f.attempt > 0 {
			delay := f.backoff(opts.BaseBackoff, opts.MaxBackoff)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		f.state = stateConnecting
		ch, err := dial(ctx)
		if err != nil {
			f.recordError()
			log.Printf("🔄 [%s] dial failed (attempt %d), retrying: %v", f.name, f.attempt, err)
			continue
		}
		return ch, nil
	}
}

func (w *Watcher) reconnect(ctx context.Context, f *streamFSM, opts Options, dial func(context.Context) (<-chan broker.OrderUpdate, error)) (<-chan broker.OrderUpdate, error) {
	return reconnectGeneric(ctx, f, opts, dial)
}

// isTerminal reports whether the bracket is done: either exit order is
// Filled, or the entry is Canceled|Expired|Rejected.
func isTerminal(entry, target, stop orderbook.Order) bool {
	if target.Status == orderbook.StatusFilled || stop.Status == orderbook.StatusFilled {
		return true
	}
	switch entry.Status {
	case orderbook.StatusCanceled, orderbook.StatusExpired, orderbook.StatusRejected:
		return true
	}
	return false
}

func changedAny(before, after [3]orderbook.Order) bool {
	for i := range before {
		if before[i].Status != after[i].Status || before[i].FilledQuantity != after[i].FilledQuantity {
			return true
		}
	}
	return false
}

// applyOrderUpdate maps one realtime OrderUpdate onto whichever of the three
// watched orders it names, in memory only — persistence is the reconcile
// tick's job (via SyncService). The periodic reconcile may observe a later
// state than in-flight updates; replays must stay idempotent.
func applyOrderUpdate(entry, target, stop *orderbook.Order, upd broker.OrderUpdate) {
	for _, o := range []*orderbook.Order{entry, target, stop} {
		matches := (o.BrokerOrderID != nil && *o.BrokerOrderID == upd.BrokerOrderID) || o.ID == upd.ClientOrderID
		if !matches {
			continue
		}
		if o.BrokerOrderID == nil && upd.BrokerOrderID != "" {
			id := upd.BrokerOrderID
			o.BrokerOrderID = &id
		}
		o.Status = upd.Status
		o.FilledQuantity = upd.FilledQuantity
		if upd.AverageFilledPrice != nil {
			o.AverageFilledPrice = upd.AverageFilledPrice
		}
		if o.Status == orderbook.StatusFilled {
			at := upd.At
			o.FilledAt = &at
		}
	}
}
