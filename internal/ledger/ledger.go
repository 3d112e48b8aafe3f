package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/account"
	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

var (
	ErrNegativeAmount = errs.New(errs.KindValidation, "NegativeAmount", "transaction amount must be > 0")
	ErrInsufficientFunds = errs.New(errs.KindValidation, "InsufficientFunds", "amount exceeds total_available")
	ErrMissingTradeID = errs.New(errs.KindValidation, "InvalidCategory", "category requires a trade id")
	ErrTradeNotFound = errs.New(errs.KindState, "TradeNotFound", "referenced trade does not exist")
)

// Ledger is the sole writer of the transactions table and the derived
// account_balances table.
type Ledger struct {
	db *store.DB
	accounts *account.Store
}

// New builds a Ledger over db, sharing the account store so balance
// recomputation can read/write account_balances in the same transaction.
func New(db *store.DB, accounts *account.Store) *Ledger {
	return &Ledger{db: db, accounts: accounts}
}

// TradeExistenceChecker reports whether a trade id exists within tx.
// Nothing in this module constructs or uses one.
type TradeExistenceChecker func(ctx context.Context, tx *sql.Tx, tradeID string) (bool, error)

// Deposit validates and appends a Deposit transaction, creating the balance
// row if this is the account's first transaction in that currency.
func (l *Ledger) Deposit(ctx context.Context, accountID string, currency money.Currency, amount money.Decimal) (Transaction, account.Balance, error) {
	if !amount.IsPositive() {
		return Transaction{}, account.Balance{}, ErrNegativeAmount
	}
	return l.append(ctx, accountID, currency, amount, CategoryDeposit, nil, nil)
}

// Withdraw validates (amount <= available) and appends a Withdrawal
// transaction.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, currency money.Currency, amount money.Decimal) (Transaction, account.Balance, error) {
	if !amount.IsPositive() {
		return Transaction{}, account.Balance{}, ErrNegativeAmount
	}
	return l.append(ctx, accountID, currency, amount, CategoryWithdrawal, nil, func(bal account.Balance) error {
		if amount.GreaterThan(bal.TotalAvailable) {
			return ErrInsufficientFunds
		}
		return nil
	})
}

// TransferPair is the atomic double-entry transfer primitive: it
// writes a withdrawal-like leg on from and a credit-like leg on to inside
// ONE database transaction. If either insert fails, neither is visible —
// this is the atomicity contract the distribution engine and trade
// lifecycle both depend on.
func (l *Ledger) TransferPair(ctx context.Context, from, to string, currency money.Currency, amount money.Decimal, fromCat, toCat Category, tradeID *string) (Transaction, Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, Transaction{}, ErrNegativeAmount
	}
	if fromCat.RequiresTrade() && tradeID == nil {
		return Transaction{}, Transaction{}, ErrMissingTradeID
	}
	if toCat.RequiresTrade() && tradeID == nil {
		return Transaction{}, Transaction{}, ErrMissingTradeID
	}

	var withdrawTxn, depositTxn Transaction
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		fromBal, err := l.balanceTx(ctx, tx, from, currency)
		if err != nil {
			return err
		}
		if !fromCat.isCredit() && amount.GreaterThan(fromBal.TotalAvailable) {
			return ErrInsufficientFunds
		}

		withdrawTxn = Transaction{ID: uuid.NewString(), AccountID: from, Currency: currency, Amount: amount, Category: fromCat, TradeID: tradeID, CreatedAt: time.Now().UTC()}
		if err := insertTxnTx(ctx, tx, withdrawTxn); err != nil {
			return fmt.Errorf("insert withdraw leg: %w", err)
		}
		if err := l.recomputeBalanceTx(ctx, tx, from, currency); err != nil {
			return err
		}

		depositTxn = Transaction{ID: uuid.NewString(), AccountID: to, Currency: currency, Amount: amount, Category: toCat, TradeID: tradeID, CreatedAt: time.Now().UTC()}
		if err := insertTxnTx(ctx, tx, depositTxn); err != nil {
			return fmt.Errorf("insert deposit leg: %w", err)
		}
		return l.recomputeBalanceTx(ctx, tx, to, currency)
	})
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	return withdrawTxn, depositTxn, nil
}

// RecordFee appends a FeeOpen/FeeClose transaction for a trade if fee is
// positive; a zero fee is a no-op.
func (l *Ledger) RecordFee(ctx context.Context, tx *sql.Tx, accountID string, currency money.Currency, fee money.Decimal, cat Category, tradeID string) error {
	if fee.IsZero() {
		return nil
	}
	if !fee.IsPositive() {
		return ErrNegativeAmount
	}
	t := Transaction{ID: uuid.NewString(), AccountID: accountID, Currency: currency, Amount: fee, Category: cat, TradeID: &tradeID, CreatedAt: time.Now().UTC()}
	if err := insertTxnTx(ctx, tx, t); err != nil {
		return err
	}
	return l.recomputeBalanceTx(ctx, tx, accountID, currency)
}

// RecordTx appends an arbitrary validated transaction inside an
// already-open tx, used by the trade lifecycle for FundTrade/OpenTrade/
// CloseTarget/CloseSafetyStop(Slippage)/PaymentFromTrade legs that must
// commit atomically with order and trade status writes.
func (l *Ledger) RecordTx(ctx context.Context, tx *sql.Tx, accountID string, currency money.Currency, amount money.Decimal, cat Category, tradeID *string) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrNegativeAmount
	}
	if cat.RequiresTrade() && tradeID == nil {
		return Transaction{}, ErrMissingTradeID
	}
	t := Transaction{ID: uuid.NewString(), AccountID: accountID, Currency: currency, Amount: amount, Category: cat, TradeID: tradeID, CreatedAt: time.Now().UTC()}
	if err := insertTxnTx(ctx, tx, t); err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if !cat.isTradeInternal() {
		if err := l.recomputeBalanceTx(ctx, tx, accountID, currency); err != nil {
			return Transaction{}, err
		}
	}
	return t, nil
}

func (l *Ledger) append(ctx context.Context, accountID string, currency money.Currency, amount money.Decimal, cat Category, tradeID *string, check func(account.Balance) error) (Transaction, account.Balance, error) {
	var t Transaction
	var bal account.Balance
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		if check != nil {
			cur, err := l.balanceTx(ctx, tx, accountID, currency)
			if err != nil {
				return err
			}
			if err := check(cur); err != nil {
				return err
			}
		}
		t = Transaction{ID: uuid.NewString(), AccountID: accountID, Currency: currency, Amount: amount, Category: cat, TradeID: tradeID, CreatedAt: time.Now().UTC()}
		if err := insertTxnTx(ctx, tx, t); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if err := l.recomputeBalanceTx(ctx, tx, accountID, currency); err != nil {
			return err
		}
		var err error
		bal, err = l.balanceTx(ctx, tx, accountID, currency)
		return err
	})
	return t, bal, err
}

func insertTxnTx(ctx context.Context, tx *sql.Tx, t Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, currency, amount, category, trade_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.AccountID, t.Currency, t.Amount.String(), t.Category, t.TradeID, t.CreatedAt)
	return err
}

// balanceTx reads the persisted balance row within tx (not a replay — callers
// that need a from-scratch recompute use recomputeBalanceTx).
func (l *Ledger) balanceTx(ctx context.Context, tx *sql.Tx, accountID string, currency money.Currency) (account.Balance, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT total_balance, total_in_trade, total_available, taxed
		FROM account_balances WHERE account_id = ? AND currency = ?
	`, accountID, currency)
	var total, inTrade, avail, taxed string
	err := row.Scan(&total, &inTrade, &avail, &taxed)
	if err == sql.ErrNoRows {
		return account.Balance{AccountID: accountID, Currency: currency, TotalBalance: money.Zero,
			TotalInTrade: money.Zero, TotalAvailable: money.Zero, Taxed: money.Zero}, nil
	}
	if err != nil {
		return account.Balance{}, fmt.Errorf("read balance: %w", err)
	}
	b := account.Balance{AccountID: accountID, Currency: currency}
	if b.TotalBalance, err = money.Parse(total); err != nil {
		return account.Balance{}, err
	}
	if b.TotalInTrade, err = money.Parse(inTrade); err != nil {
		return account.Balance{}, err
	}
	if b.TotalAvailable, err = money.Parse(avail); err != nil {
		return account.Balance{}, err
	}
	if b.Taxed, err = money.Parse(taxed); err != nil {
		return account.Balance{}, err
	}
	return b, nil
}

// OpenFundRemainingTx returns how much of a trade's funded capital has not
// yet been returned to its account (sum(fund_trade) - sum(payment_from_trade),
// floored at zero), within tx. The cancel/close transitions use this to size
// the PaymentFromTrade leg that releases the rest of a trade's capital.
func (l *Ledger) OpenFundRemainingTx(ctx context.Context, tx *sql.Tx, tradeID string) (money.Decimal, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT amount, category FROM transactions WHERE trade_id = ? ORDER BY created_at, id
	`, tradeID)
	if err != nil {
		return money.Zero, fmt.Errorf("read trade transactions: %w", err)
	}
	defer rows.Close()

	funded, returned := money.Zero, money.Zero
	for rows.Next() {
		var amountStr string
		var cat Category
		if err := rows.Scan(&amountStr, &cat); err != nil {
			return money.Zero, fmt.Errorf("scan trade transaction: %w", err)
		}
		amt, err := money.Parse(amountStr)
		if err != nil {
			return money.Zero, err
		}
		switch cat {
		case CategoryFundTrade:
			if funded, err = money.Add(funded, amt); err != nil {
				return money.Zero, err
			}
		case CategoryPaymentFromTrade:
			if returned, err = money.Add(returned, amt); err != nil {
				return money.Zero, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return money.Zero, err
	}

	remaining, err := money.Sub(funded, returned)
	if err != nil {
		return money.Zero, err
	}
	if remaining.IsNegative() {
		return money.Zero, nil
	}
	return remaining, nil
}

// BalanceTx is balanceTx exported for callers (the trade lifecycle) that
// need a balance read participating in their own open transaction.
func (l *Ledger) BalanceTx(ctx context.Context, tx *sql.Tx, accountID string, currency money.Currency) (account.Balance, error) {
	return l.balanceTx(ctx, tx, accountID, currency)
}

// recomputeBalanceTx replays every transaction for (accountID, currency) in
// created_at order and rewrites account_balances. Replaying rather than
// incrementally updating keeps the derivation provably correct at the cost
// of O(n) per write; for a personal trading engine's transaction volume
// this is the right tradeoff.
func (l *Ledger) recomputeBalanceTx(ctx context.Context, tx *sql.Tx, accountID string, currency money.Currency) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT amount, category, trade_id FROM transactions
		WHERE account_id = ? AND currency = ? ORDER BY created_at, id
	`, accountID, currency)
	if err != nil {
		return fmt.Errorf("replay transactions: %w", err)
	}
	defer rows.Close()

	total := money.Zero
	openFundByTrade := map[string]money.Decimal{}

	for rows.Next() {
		var amountStr string
		var cat Category
		var tradeID sql.NullString
		if err := rows.Scan(&amountStr, &cat, &tradeID); err != nil {
			return fmt.Errorf("scan transaction: %w", err)
		}
		amt, err := money.Parse(amountStr)
		if err != nil {
			return err
		}

		switch {
		case cat.isCredit():
			total, err = money.Add(total, amt)
		case cat.isDebit():
			total, err = money.Sub(total, amt)
		case cat.isTradeInternal():
			// no account-level effect
		}
		if err != nil {
			return err
		}

		if cat == CategoryFundTrade && tradeID.Valid {
			cur := openFundByTrade[tradeID.String]
			sum, err := money.Add(cur, amt)
			if err != nil {
				return err
			}
			openFundByTrade[tradeID.String] = sum
		}
		if cat == CategoryPaymentFromTrade && tradeID.Valid {
			cur, ok := openFundByTrade[tradeID.String]
			if ok {
				rem, err := money.Sub(cur, amt)
				if err != nil {
					return err
				}
				if rem.IsNegative() {
					rem = money.Zero
				}
				openFundByTrade[tradeID.String] = rem
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	inTrade := money.Zero
	for _, v := range openFundByTrade {
		var err error
		inTrade, err = money.Add(inTrade, v)
		if err != nil {
			return err
		}
	}

	available, err := money.Sub(total, inTrade)
	if err != nil {
		return err
	}

	return account.PutBalanceTx(ctx, tx, account.Balance{
		AccountID: accountID, Currency: currency,
		TotalBalance: total, TotalInTrade: inTrade, TotalAvailable: available, Taxed: money.Zero,
	})
}
