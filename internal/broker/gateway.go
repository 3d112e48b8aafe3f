// Package broker defines the BrokerGateway contract: the
// vendor-agnostic interface every broker adapter implements, plus the shared
// wire-level types (BrokerLog, OrderIds, WatchEvent, OrderUpdate, Tick,
// MarketBar) the core consumes. No vendor-specific parsing lives here —
// that belongs at the adapter boundary.
package broker

import (
	"context"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
)

// Gateway is implemented once per vendor. The core only ever
// consumes this interface, never a concrete SDK type.
type Gateway interface {
	SubmitTrade(ctx context.Context, entry, target, stop orderbook.Order, symbol string) (Log, OrderIDs, error)
	SyncTrade(ctx context.Context, symbol string, localStatus string, entryClientID, targetBrokerID string) ([]VendorOrder, Log, error)
	CloseTrade(ctx context.Context, symbol string, quantity money.Quantity) (VendorOrder, Log, error)
	CancelTrade(ctx context.Context, orderIDs []string) error
	ModifyStop(ctx context.Context, orderID string, newPrice money.Decimal) (brokerOrderID string, err error)
	ModifyTarget(ctx context.Context, orderID string, newPrice money.Decimal) (brokerOrderID string, err error)
	GetBars(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]MarketBar, error)
	SubscribeOrderUpdates(ctx context.Context) (<-chan OrderUpdate, error)
	SubscribeMarketData(ctx context.Context, symbols []string, channels []string) (<-chan Tick, error)
}

// Log carries the raw vendor payload for audit.
type Log struct {
	ID string
	TradeID *string
	Operation string
	Payload string
	CreatedAt time.Time
}

// OrderIDs maps the local bracket triple to vendor-assigned order ids.
type OrderIDs struct {
	EntryBrokerOrderID string
	TargetBrokerOrderID string
	SafetyStopBrokerOrderID string
}

// VendorOrder is the adapter's normalized view of one broker order, already
// translated into the core's closed OrderStatus set (unknown broker
// statuses map to Unknown, never panic).
type VendorOrder struct {
	ClientOrderID string
	BrokerOrderID string
	Status orderbook.Status
	FilledQuantity money.Quantity
	AverageFilledPrice *money.Decimal
	FilledAt *time.Time
	CancelledAt *time.Time
	ExpiredAt *time.Time
}

// OrderUpdate is one message off the realtime order-updates stream.
type OrderUpdate struct {
	BrokerOrderID string
	ClientOrderID string
	EventType string // new|fill|partial_fill|canceled|expired|replaced|...
	Status orderbook.Status
	FilledQuantity money.Quantity
	AverageFilledPrice *money.Decimal
	At time.Time
	PayloadJSON string
}

// Tick is one market-data trade event.
type Tick struct {
	Symbol string
	Price money.Decimal
	Size money.Quantity
	Timestamp time.Time
}

// MarketBar is one OHLCV bar, used only by grading's backfill.
type MarketBar struct {
	Timestamp time.Time
	Open money.Decimal
	High money.Decimal
	Low money.Decimal
	Close money.Decimal
	Volume money.Decimal
}

// WatchEvent is the idempotent, unified event the BrokerWatcher emits.
// Every field is present so the callback can discriminate without a type
// switch.
type WatchEvent struct {
	EventType string // "reconcile" | order-update type | "market_trade"
	BrokerSource string
	BrokerStream string // "trading_rest" | "trade_updates" | "market_data"
	UpdatedOrders []orderbook.Order
	Message *string
	BrokerOrderID *string
	MarketPrice *money.Decimal
	MarketTimestamp *time.Time
	MarketSymbol *string
	PayloadJSON string
}

// Control is the callback's verdict: keep watching, or terminate the task.
type Control int

const (
	Continue Control = iota
	Stop
)
