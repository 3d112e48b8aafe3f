// Package trade implements the Trade type, TradeBalance, and the
// TradeLifecycle state machine — the orchestration layer that drives Ledger
// and OrderStore through every trade transition inside one database
// transaction each.
package trade

import (
	"time"

	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
)

// Category is Long or Short.
type Category string

const (
	Long Category = "long"
	Short Category = "short"
)

// Status is the trade lifecycle state.
type Status string

const (
	StatusNew Status = "new"
	StatusFunded Status = "funded"
	StatusSubmitted Status = "submitted"
	StatusFilled Status = "filled"
	StatusClosedTarget Status = "closed_target"
	StatusClosedStopLoss Status = "closed_stop_loss"
	StatusCanceled Status = "canceled"
)

// Trade is the aggregate of an account, a vehicle, and its three
// child orders (held by id; TradeLifecycle/OrderStore own the orders
// themselves, keyed by UUID).
type Trade struct {
	ID string
	AccountID string
	TradingVehicleID string
	Category Category
	Currency money.Currency
	Status Status
	EntryOrderID string
	TargetOrderID string
	SafetyStopOrderID string
	Thesis *string
	Sector *string
	AssetClass *string
	Context *string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Balance is the derived per-trade snapshot.
type Balance struct {
	TradeID string
	Currency money.Currency
	Funding money.Decimal
	CapitalInMarket money.Decimal
	CapitalOutMarket money.Decimal
	Taxed money.Decimal
	TotalPerformance money.Decimal
}

var (
	ErrInvalidGeometry = errs.New(errs.KindValidation, "InvalidGeometry", "stop < entry < target required for Long, target < entry < stop for Short")
	ErrInvalidQuantity = errs.New(errs.KindValidation, "InvalidQuantity", "quantity must be > 0")
	ErrNotFound = errs.New(errs.KindState, "TradeNotFound", "trade not found")
)

// ValidateGeometry enforces strict ordering invariant for a
// trade's three prices, given its category.
func ValidateGeometry(cat Category, stop, entry, target money.Decimal) error {
	switch cat {
	case Long:
		if !(stop.LessThan(entry) && entry.LessThan(target)) {
			return ErrInvalidGeometry
		}
	case Short:
		if !(target.LessThan(entry) && entry.LessThan(stop)) {
			return ErrInvalidGeometry
		}
	default:
		return ErrInvalidGeometry
	}
	return nil
}

// transitions is the total-order table of legal status edges. A transition
// not present here fails with ErrInvalidTransition.
var transitions = map[Status]map[Status]bool{
	StatusNew: {StatusFunded: true},
	StatusFunded: {StatusSubmitted: true, StatusCanceled: true},
	StatusSubmitted: {StatusFilled: true, StatusCanceled: true},
	StatusFilled: {StatusClosedTarget: true, StatusClosedStopLoss: true, StatusCanceled: true},
	StatusCanceled: {StatusClosedTarget: true},
	StatusClosedTarget: {},
	StatusClosedStopLoss: {},
}

// ErrInvalidTransition carries the attempted from/to so callers can report
// it precisely.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return string(e.From) + " -> " + string(e.To) + ": invalid transition"
}

// CanTransition reports whether from -> to is a legal edge, or is the
// idempotent from == to no-op: transitioning to the current status is a
// no-op returning the unchanged trade.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	edges, ok := transitions[from]
	return ok && edges[to]
}

// RequireTransition returns *ErrInvalidTransition if from->to is illegal.
func RequireTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &ErrInvalidTransition{From: from, To: to}
	}
	return nil
}

// RequiredCapital computes the capital the ledger must move into the trade
// at fund time: entry price * quantity for Long, or the worst case of
// stop price * quantity for Short.
func RequiredCapital(cat Category, entry, stop orderbook.Order) (money.Decimal, error) {
	switch cat {
	case Long:
		return money.Mul(entry.UnitPrice, entry.Quantity.Decimal())
	case Short:
		return money.Mul(stop.UnitPrice, stop.Quantity.Decimal())
	default:
		return money.Zero, ErrInvalidGeometry
	}
}
