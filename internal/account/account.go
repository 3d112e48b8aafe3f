// Package account implements the Account and AccountBalance types and
// hierarchy validation: account hierarchy forms a forest, and the
// Primary account is the root of each tree.
package account

import (
	"time"

	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
)

// Environment distinguishes paper trading from a live brokerage connection.
type Environment string

const (
	Paper Environment = "paper"
	Live Environment = "live"
)

// Type is the account's role in the hierarchy.
type Type string

const (
	Primary Type = "primary"
	Earnings Type = "earnings"
	TaxReserve Type = "tax_reserve"
	Reinvestment Type = "reinvestment"
)

// Account is one node in the (depth <= 2) account forest.
type Account struct {
	ID string
	Name string
	Description string
	Environment Environment
	TaxesPercentage float64
	EarningsPercentage float64
	AccountType Type
	ParentAccountID *string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Balance is the derived per-currency snapshot of an account. It
// is never written directly; the ledger recomputes it on every relevant
// write.
type Balance struct {
	AccountID string
	Currency money.Currency
	TotalBalance money.Decimal
	TotalInTrade money.Decimal
	TotalAvailable money.Decimal
	Taxed money.Decimal
	UpdatedAt time.Time
}

var (
	ErrCycle = errs.New(errs.KindValidation, "HierarchyCycle", "account hierarchy must not contain a cycle")
	ErrDepthExceeded = errs.New(errs.KindValidation, "HierarchyDepthExceeded", "account hierarchy depth must not exceed 2")
	ErrParentNotPrimary = errs.New(errs.KindValidation, "HierarchyViolation", "non-primary account's parent must be the Primary or a sibling under it")
	ErrNotFound = errs.New(errs.KindState, "AccountNotFound", "account not found")
)

// ValidateParent enforces forest invariant for a new child account:
// no cycles, depth <= 2, and non-Primary accounts must chain up to a Primary
// within two hops (the parent is a Primary or a direct child of one).
//
// resolve(id) must return the account for id, or (Account{}, false) if
// unknown.
func ValidateParent(child Account, resolve func(id string) (Account, bool)) error {
	if child.AccountType == Primary {
		if child.ParentAccountID != nil {
			return ErrParentNotPrimary
		}
		return nil
	}
	if child.ParentAccountID == nil {
		return ErrParentNotPrimary
	}

	parent, ok := resolve(*child.ParentAccountID)
	if !ok {
		return ErrNotFound
	}
	if parent.ID == child.ID {
		return ErrCycle
	}

	switch parent.AccountType {
	case Primary:
		return nil
	default:
		// A sibling under the same Primary is allowed (depth == 2 total),
		// but the sibling's own parent must be a Primary — otherwise depth
		// would exceed 2.
		if parent.ParentAccountID == nil {
			return ErrParentNotPrimary
		}
		grandparent, ok := resolve(*parent.ParentAccountID)
		if !ok || grandparent.AccountType != Primary {
			return ErrDepthExceeded
		}
		if grandparent.ID == child.ID {
			return ErrCycle
		}
		return nil
	}
}
