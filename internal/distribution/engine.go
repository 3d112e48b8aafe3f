package distribution

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/account"
	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/ledger"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/risk"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

var (
	ErrBelowMinimumThreshold = errs.New(errs.KindDistribution, "BelowMinimumThreshold", "profit is below the account's configured minimum distribution threshold")
	ErrInvalidProfitAmount = errs.New(errs.KindDistribution, "InvalidProfitAmount", "profit must be > 0")
	ErrHierarchyViolation = errs.New(errs.KindDistribution, "HierarchyViolation", "distribution destination must share the source's Primary ancestor")
	ErrSameAccountTransfer = errs.New(errs.KindDistribution, "SameAccountTransfer", "distribution destination must differ from the source account")
)

// Engine is the DistributionEngine: it turns one account's realized
// profit into an atomic set of transfer-pair legs across its
// Earnings/TaxReserve/Reinvestment children.
type Engine struct {
	db *store.DB
	accounts *account.Store
	ledger *ledger.Ledger
	rules *Store
	protected *risk.ProtectedMode
}

// NewEngine wires the DistributionEngine's collaborators.
func NewEngine(db *store.DB, accounts *account.Store, led *ledger.Ledger, rules *Store, protected *risk.ProtectedMode) *Engine {
	return &Engine{db: db, accounts: accounts, ledger: led, rules: rules, protected: protected}
}

// Destinations names the three child accounts a distribution may fund; a
// zero-percent leg in Rules is simply never executed.
type Destinations struct {
	EarningsAccountID string
	TaxAccountID string
	ReinvestmentAccountID string
}

// Execute validates threshold, percentages, and hierarchy, then moves
// every non-zero leg atomically.
func (e *Engine) Execute(ctx context.Context, source string, dest Destinations, currency money.Currency, profit money.Decimal, protectedKeyword string) (History, error) {
	if err := e.protected.Require(protectedKeyword); err != nil {
		return History{}, err
	}
	if !profit.IsPositive() {
		return History{}, ErrInvalidProfitAmount
	}

	rules, err := e.rules.Get(ctx, source)
	if err != nil {
		return History{}, err
	}
	if profit.LessThan(rules.MinimumThreshold) {
		return History{}, ErrBelowMinimumThreshold
	}
	if err := ValidatePercentages(rules.EarningsPercent, rules.TaxPercent, rules.ReinvestmentPercent); err != nil {
		return History{}, err
	}

	legs, err := e.legs(ctx, source, dest, rules, profit)
	if err != nil {
		return History{}, err
	}

	h := History{ID: uuid.NewString(), SourceAccountID: source, Currency: currency, Profit: profit,
		EarningsAmount: money.Zero, TaxAmount: money.Zero, ReinvestmentAmount: money.Zero}
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, leg := range legs {
			if _, _, err := e.transferLegTx(ctx, tx, source, leg.destination, currency, leg.amount, leg.sourceCategory); err != nil {
				return err
			}
			switch leg.sourceCategory {
			case ledger.CategoryWithdrawalEarnings:
				h.EarningsAmount = leg.amount
			case ledger.CategoryWithdrawalTax:
				h.TaxAmount = leg.amount
			case ledger.CategoryWithdrawal:
				h.ReinvestmentAmount = leg.amount
			}
		}
		_, err := RecordTx(ctx, tx, h)
		return err
	})
	if err != nil {
		return History{}, err
	}
	return h, nil
}

type leg struct {
	destination string
	sourceCategory ledger.Category
	amount money.Decimal
}

// legs computes the non-zero allocation amounts and validates each
// destination's hierarchy relationship to source.
func (e *Engine) legs(ctx context.Context, source string, dest Destinations, rules Rules, profit money.Decimal) ([]leg, error) {
	sourcePrimary, err := e.primaryAncestor(ctx, source)
	if err != nil {
		return nil, err
	}

	candidates := []struct {
		pct float64
		destID string
		category ledger.Category
	}{
		{rules.EarningsPercent, dest.EarningsAccountID, ledger.CategoryWithdrawalEarnings},
		{rules.TaxPercent, dest.TaxAccountID, ledger.CategoryWithdrawalTax},
		{rules.ReinvestmentPercent, dest.ReinvestmentAccountID, ledger.CategoryWithdrawal},
	}

	var legs []leg
	for _, c := range candidates {
		if c.pct == 0 {
			continue
		}
		if c.destID == source {
			return nil, ErrSameAccountTransfer
		}
		destPrimary, err := e.primaryAncestor(ctx, c.destID)
		if err != nil {
			return nil, err
		}
		if destPrimary != sourcePrimary {
			return nil, ErrHierarchyViolation
		}
		amount, err := money.MulFloat(profit, c.pct)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			continue
		}
		legs = append(legs, leg{destination: c.destID, sourceCategory: c.category, amount: amount})
	}
	return legs, nil
}

// primaryAncestor walks an account's parent chain
// up to its Primary root, returning that root's id.
func (e *Engine) primaryAncestor(ctx context.Context, id string) (string, error) {
	a, err := e.accounts.Get(ctx, id)
	if err != nil {
		return "", err
	}
	for a.AccountType != account.Primary {
		if a.ParentAccountID == nil {
			return "", ErrHierarchyViolation
		}
		a, err = e.accounts.Get(ctx, *a.ParentAccountID)
		if err != nil {
			return "", err
		}
	}
	return a.ID, nil
}

// transferLegTx runs one withdraw(source)/deposit(dest) pair through the
// ledger's transfer-pair primitive within tx, so every leg of a
// distribution commits or aborts together.
func (e *Engine) transferLegTx(ctx context.Context, tx *sql.Tx, source, dest string, currency money.Currency, amount money.Decimal, sourceCategory ledger.Category) (ledger.Transaction, ledger.Transaction, error) {
	return ledgerTransferPairTx(ctx, tx, e.ledger, source, dest, currency, amount, sourceCategory, ledger.CategoryDeposit)
}

// ledgerTransferPairTx is a thin seam so Engine can run TransferPair's logic
// inside its own already-open transaction rather than TransferPair's usual
// self-contained one; distribution always batches N legs into one commit.
func ledgerTransferPairTx(ctx context.Context, tx *sql.Tx, led *ledger.Ledger, from, to string, currency money.Currency, amount money.Decimal, fromCat, toCat ledger.Category) (ledger.Transaction, ledger.Transaction, error) {
	fromBal, err := led.BalanceTx(ctx, tx, from, currency)
	if err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, fmt.Errorf("distribution withdraw leg: %w", err)
	}
	if amount.GreaterThan(fromBal.TotalAvailable) {
		return ledger.Transaction{}, ledger.Transaction{}, fmt.Errorf("distribution withdraw leg: %w", ledger.ErrInsufficientFunds)
	}
	withdraw, err := led.RecordTx(ctx, tx, from, currency, amount, fromCat, nil)
	if err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, fmt.Errorf("distribution withdraw leg: %w", err)
	}
	deposit, err := led.RecordTx(ctx, tx, to, currency, amount, toCat, nil)
	if err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, fmt.Errorf("distribution deposit leg: %w", err)
	}
	return withdraw, deposit, nil
}
