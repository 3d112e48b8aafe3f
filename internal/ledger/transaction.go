// Package ledger implements the append-only transaction log and the balance
// derivation engine: the sole writer of account balances.
package ledger

import (
	"time"

	"github.com/matiasvillaverde/trust-core/internal/money"
)

// Category is the closed set of transaction categories defines. A
// category either carries a trade id (TradeID != nil) or does not.
type Category string

const (
	CategoryDeposit Category = "deposit"
	CategoryWithdrawal Category = "withdrawal"
	CategoryWithdrawalTax Category = "withdrawal_tax"
	CategoryWithdrawalEarnings Category = "withdrawal_earnings"
	CategoryFundTrade Category = "fund_trade"
	CategoryPaymentFromTrade Category = "payment_from_trade"
	CategoryOpenTrade Category = "open_trade"
	CategoryCloseTarget Category = "close_target"
	CategoryCloseSafetyStop Category = "close_safety_stop"
	CategoryCloseSafetyStopSlippage Category = "close_safety_stop_slippage"
	CategoryFeeOpen Category = "fee_open"
	CategoryFeeClose Category = "fee_close"
	CategoryPaymentTax Category = "payment_tax"
)

// RequiresTrade reports whether c must carry a trade id.
func (c Category) RequiresTrade() bool {
	switch c {
	case CategoryFundTrade, CategoryPaymentFromTrade, CategoryOpenTrade, CategoryCloseTarget,
		CategoryCloseSafetyStop, CategoryCloseSafetyStopSlippage, CategoryFeeOpen, CategoryFeeClose,
		CategoryPaymentTax:
		return true
	default:
		return false
	}
}

// isCredit reports whether a category adds to the account balance.
func (c Category) isCredit() bool {
	switch c {
	case CategoryDeposit, CategoryPaymentFromTrade:
		return true
	default:
		return false
	}
}

// isDebit reports whether a category subtracts from the account balance.
func (c Category) isDebit() bool {
	switch c {
	case CategoryWithdrawal, CategoryWithdrawalEarnings, CategoryWithdrawalTax, CategoryFundTrade,
		CategoryFeeOpen, CategoryFeeClose:
		return true
	default:
		return false
	}
}

// isTradeInternal reports categories that affect only TradeBalance, never
// the account balance.
func (c Category) isTradeInternal() bool {
	switch c {
	case CategoryOpenTrade, CategoryCloseTarget, CategoryCloseSafetyStop, CategoryCloseSafetyStopSlippage:
		return true
	default:
		return false
	}
}

// Transaction is one append-only ledger row. It is never mutated
// or deleted once inserted.
type Transaction struct {
	ID string
	AccountID string
	Currency money.Currency
	Amount money.Decimal // always > 0
	Category Category
	TradeID *string
	CreatedAt time.Time
}
