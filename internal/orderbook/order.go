// Package orderbook implements the Order type and OrderStore.
package orderbook

import (
	"time"

	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
)

// Category is the order type.
type Category string

const (
	Market Category = "market"
	Limit Category = "limit"
	Stop Category = "stop"
)

// Action is buy or sell.
type Action string

const (
	Buy Action = "buy"
	Sell Action = "sell"
)

// TimeInForce mirrors the usual broker set; the core treats it opaquely.
type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

// Status is the union of every broker-observable order state. Unknown
// broker strings map to Unknown, never a panic.
type Status string

const (
	StatusNew Status = "new"
	StatusPendingNew Status = "pending_new"
	StatusAccepted Status = "accepted"
	StatusHeld Status = "held"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled Status = "filled"
	StatusCanceled Status = "canceled"
	StatusExpired Status = "expired"
	StatusRejected Status = "rejected"
	StatusStopped Status = "stopped"
	StatusSuspended Status = "suspended"
	StatusReplaced Status = "replaced"
	StatusPendingCancel Status = "pending_cancel"
	StatusPendingReplace Status = "pending_replace"
	StatusCalculated Status = "calculated"
	StatusAcceptedForBidding Status = "accepted_for_bidding"
	StatusUnknown Status = "unknown"
)

// ParseStatus maps an arbitrary broker status string to the closed Status
// set: model at the adapter boundary, never panic on an unrecognized value.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusNew, StatusPendingNew, StatusAccepted, StatusHeld, StatusPartiallyFilled, StatusFilled,
		StatusCanceled, StatusExpired, StatusRejected, StatusStopped, StatusSuspended, StatusReplaced,
		StatusPendingCancel, StatusPendingReplace, StatusCalculated, StatusAcceptedForBidding:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// Order is one leg of a bracket trade (entry, target, or safety_stop), or a
// freestanding manual-close order.
type Order struct {
	ID string
	BrokerOrderID *string
	TradingVehicleID string
	Currency money.Currency
	Quantity money.Quantity
	UnitPrice money.Decimal
	Category Category
	Action Action
	Status Status
	TimeInForce TimeInForce
	FilledQuantity money.Quantity
	AverageFilledPrice *money.Decimal
	SubmittedAt *time.Time
	FilledAt *time.Time
	CancelledAt *time.Time
	ExpiredAt *time.Time
	ClosedAt *time.Time
	CreatedAt time.Time
}

var (
	ErrNotFound = errs.New(errs.KindState, "OrderNotFound", "order not found")
	ErrFillInvariant = errs.New(errs.KindValidation, "InvalidFill", "filled_quantity must be <= quantity and average_filled_price must be set once filled_at is set")
)

// Fill stamps a fill (partial or complete) and enforces the invariant that
// once filled_at is set, filled_quantity <= quantity and
// average_filled_price is non-nil.
func (o *Order) Fill(filledQty money.Quantity, avgPrice money.Decimal, at time.Time) error {
	if filledQty > o.Quantity {
		return ErrFillInvariant
	}
	o.FilledQuantity = filledQty
	o.AverageFilledPrice = &avgPrice
	o.FilledAt = &at
	if filledQty == o.Quantity {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return nil
}

// IsTerminal reports whether the order can no longer change state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}
