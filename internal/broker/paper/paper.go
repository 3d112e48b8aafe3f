// Package paper implements a BrokerGateway adapter that simulates fills
// in-process, for local development and tests.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
)

// Broker simulates fills immediately at the requested limit price (or the
// last pushed market price for a market close), keyed by client order id.
type Broker struct {
	mu      sync.Mutex
	orders  map[string]*trackedOrder
	updates chan broker.OrderUpdate
	ticks   chan broker.Tick
	lastPx  money.Decimal
}

type trackedOrder struct {
	vendor   broker.VendorOrder
	symbol   string
	price    money.Decimal
	quantity money.Quantity
}

// New builds an idle paper broker. Call PushFill / PushTick to drive it from
// a test or a demo script.
func New() *Broker {
	return &Broker{
		orders:  make(map[string]*trackedOrder),
		updates: make(chan broker.OrderUpdate, 64),
		ticks:   make(chan broker.Tick, 64),
	}
}

var errUnknownOrder = errors.New("paper: unknown broker order id")

// SubmitTrade assigns broker ids to the three legs and leaves them in
// Accepted status; call PushFill to simulate a fill.
func (b *Broker) SubmitTrade(ctx context.Context, entry, target, stop orderbook.Order, symbol string) (broker.Log, broker.OrderIDs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := broker.OrderIDs{
		EntryBrokerOrderID:      uuid.NewString(),
		TargetBrokerOrderID:     uuid.NewString(),
		SafetyStopBrokerOrderID: uuid.NewString(),
	}
	b.orders[ids.EntryBrokerOrderID] = &trackedOrder{symbol: symbol, price: entry.UnitPrice, quantity: entry.Quantity,
		vendor: broker.VendorOrder{BrokerOrderID: ids.EntryBrokerOrderID, ClientOrderID: entry.ID, Status: orderbook.StatusAccepted}}
	b.orders[ids.TargetBrokerOrderID] = &trackedOrder{symbol: symbol, price: target.UnitPrice, quantity: target.Quantity,
		vendor: broker.VendorOrder{BrokerOrderID: ids.TargetBrokerOrderID, ClientOrderID: target.ID, Status: orderbook.StatusAccepted}}
	b.orders[ids.SafetyStopBrokerOrderID] = &trackedOrder{symbol: symbol, price: stop.UnitPrice, quantity: stop.Quantity,
		vendor: broker.VendorOrder{BrokerOrderID: ids.SafetyStopBrokerOrderID, ClientOrderID: stop.ID, Status: orderbook.StatusAccepted}}

	return broker.Log{ID: uuid.NewString(), Operation: "submit_trade", Payload: fmt.Sprintf("paper submit %s qty=%d", symbol, entry.Quantity), CreatedAt: time.Now().UTC()},
		ids, nil
}

// PushFill simulates the broker filling brokerOrderID and emits an
// OrderUpdate on the subscribed stream.
func (b *Broker) PushFill(brokerOrderID string, filledQty money.Quantity, price money.Decimal, at time.Time) error {
	b.mu.Lock()
	o, ok := b.orders[brokerOrderID]
	if !ok {
		b.mu.Unlock()
		return errUnknownOrder
	}
	o.vendor.FilledQuantity = filledQty
	o.vendor.AverageFilledPrice = &price
	o.vendor.FilledAt = &at
	if filledQty >= o.quantity {
		o.vendor.Status = orderbook.StatusFilled
	} else {
		o.vendor.Status = orderbook.StatusPartiallyFilled
	}
	upd := broker.OrderUpdate{
		BrokerOrderID: brokerOrderID, ClientOrderID: o.vendor.ClientOrderID,
		EventType: "fill", Status: o.vendor.Status, FilledQuantity: filledQty,
		AverageFilledPrice: &price, At: at,
	}
	b.mu.Unlock()

	select {
	case b.updates <- upd:
	default:
	}
	return nil
}

// PushCancel simulates a cancel confirmation.
func (b *Broker) PushCancel(brokerOrderID string, at time.Time) error {
	b.mu.Lock()
	o, ok := b.orders[brokerOrderID]
	if !ok {
		b.mu.Unlock()
		return errUnknownOrder
	}
	o.vendor.Status = orderbook.StatusCanceled
	o.vendor.CancelledAt = &at
	upd := broker.OrderUpdate{BrokerOrderID: brokerOrderID, ClientOrderID: o.vendor.ClientOrderID, EventType: "canceled", Status: orderbook.StatusCanceled, At: at}
	b.mu.Unlock()

	select {
	case b.updates <- upd:
	default:
	}
	return nil
}

// PushTick simulates a market-data trade tick.
func (b *Broker) PushTick(symbol string, price money.Decimal, size money.Quantity, at time.Time) {
	b.mu.Lock()
	b.lastPx = price
	b.mu.Unlock()
	select {
	case b.ticks <- broker.Tick{Symbol: symbol, Price: price, Size: size, Timestamp: at}:
	default:
	}
}

// SyncTrade returns the current known state of every tracked order for the
// symbol — a simplified REST reconcile pull.
func (b *Broker) SyncTrade(ctx context.Context, symbol string, localStatus string, entryClientID, targetBrokerID string) ([]broker.VendorOrder, broker.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []broker.VendorOrder
	for _, o := range b.orders {
		if o.symbol == symbol {
			out = append(out, o.vendor)
		}
	}
	return out, broker.Log{ID: uuid.NewString(), Operation: "sync_trade", Payload: fmt.Sprintf("paper sync %s", symbol), CreatedAt: time.Now().UTC()}, nil
}

// CloseTrade simulates an immediate market fill at the last known price.
func (b *Broker) CloseTrade(ctx context.Context, symbol string, quantity money.Quantity) (broker.VendorOrder, broker.Log, error) {
	b.mu.Lock()
	px := b.lastPx
	b.mu.Unlock()
	now := time.Now().UTC()
	id := uuid.NewString()
	v := broker.VendorOrder{BrokerOrderID: id, Status: orderbook.StatusFilled, FilledQuantity: quantity, AverageFilledPrice: &px, FilledAt: &now}
	return v, broker.Log{ID: uuid.NewString(), Operation: "close_trade", Payload: fmt.Sprintf("paper market close %s qty=%d", symbol, quantity), CreatedAt: now}, nil
}

// CancelTrade marks the given broker order ids as canceled.
func (b *Broker) CancelTrade(ctx context.Context, orderIDs []string) error {
	now := time.Now().UTC()
	for _, id := range orderIDs {
		_ = b.PushCancel(id, now)
	}
	return nil
}

// ModifyStop returns a freshly assigned broker id for the replacement order.
func (b *Broker) ModifyStop(ctx context.Context, orderID string, newPrice money.Decimal) (string, error) {
	return uuid.NewString(), nil
}

// ModifyTarget mirrors ModifyStop.
func (b *Broker) ModifyTarget(ctx context.Context, orderID string, newPrice money.Decimal) (string, error) {
	return uuid.NewString(), nil
}

// GetBars returns no bars; the paper broker has no market-data history. A
// real adapter backs this with the vendor's bars REST endpoint.
func (b *Broker) GetBars(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]broker.MarketBar, error) {
	return nil, nil
}

// SubscribeOrderUpdates returns the channel PushFill/PushCancel write to.
func (b *Broker) SubscribeOrderUpdates(ctx context.Context) (<-chan broker.OrderUpdate, error) {
	return b.updates, nil
}

// SubscribeMarketData returns the channel PushTick writes to.
func (b *Broker) SubscribeMarketData(ctx context.Context, symbols []string, channels []string) (<-chan broker.Tick, error) {
	return b.ticks, nil
}

var _ broker.Gateway = (*Broker)(nil)
