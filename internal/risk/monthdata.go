package risk

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// creditCategories/debitCategories mirror ledger.Category's isCredit/isDebit
// classification. Duplicated as bare strings rather than an
// import of internal/ledger to keep risk a leaf package the trade/ledger
// layer depends on, not the reverse.
var creditCategories = map[string]bool{"deposit": true, "payment_from_trade": true}
var debitCategories = map[string]bool{
	"withdrawal": true, "withdrawal_earnings": true, "withdrawal_tax": true,
	"fund_trade": true, "fee_open": true, "fee_close": true,
}

// MonthDataStore computes MonthlyBudgetData straight from the transactions
// table, implementing MonthDataProvider's monthly-budget inputs: B0, B_now,
// and the sum of open-trade risk.
type MonthDataStore struct {
	db *store.DB
}

// NewMonthDataStore builds a MonthDataStore over db.
func NewMonthDataStore(db *store.DB) *MonthDataStore { return &MonthDataStore{db: db} }

// MonthlyBudgetData implements MonthDataProvider.
func (m *MonthDataStore) MonthlyBudgetData(ctx context.Context, accountID string, currency money.Currency, monthStart time.Time) (MonthlyBudgetData, error) {
	b0, err := m.balanceAt(ctx, accountID, currency, monthStart)
	if err != nil {
		return MonthlyBudgetData{}, err
	}
	bNow, err := m.balanceAt(ctx, accountID, currency, time.Now().UTC().Add(time.Second))
	if err != nil {
		return MonthlyBudgetData{}, err
	}
	openRisk, err := m.openTradeRisk(ctx, accountID, currency)
	if err != nil {
		return MonthlyBudgetData{}, err
	}
	soFar, err := m.storedBudget(ctx, accountID, currency, monthStart)
	if err != nil {
		return MonthlyBudgetData{}, err
	}
	return MonthlyBudgetData{BalanceAtMonthStart: b0, CurrentBalance: bNow, OpenTradeRisk: openRisk, MonthlyBudgetSoFar: soFar}, nil
}

// storedBudget reads back the budget last recorded by RecordBudget for this
// (accountID, currency, monthStart), or zero if nothing has been recorded
// yet this month.
func (m *MonthDataStore) storedBudget(ctx context.Context, accountID string, currency money.Currency, monthStart time.Time) (money.Decimal, error) {
	var raw string
	err := m.db.SQL.QueryRowContext(ctx, `
		SELECT budget FROM risk_month_budgets WHERE account_id = ? AND currency = ? AND month_start = ?
	`, accountID, currency, monthStart).Scan(&raw)
	if err == sql.ErrNoRows {
		return money.Zero, nil
	}
	if err != nil {
		return money.Zero, fmt.Errorf("read stored monthly budget: %w", err)
	}
	return money.Parse(raw)
}

// RecordBudget implements MonthDataProvider: it upserts the budget Calculate
// just produced, so a later call this month sees it as MonthlyBudgetSoFar.
func (m *MonthDataStore) RecordBudget(ctx context.Context, accountID string, currency money.Currency, monthStart time.Time, budget money.Decimal) error {
	_, err := m.db.SQL.ExecContext(ctx, `
		INSERT INTO risk_month_budgets (account_id, currency, month_start, budget, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, currency, month_start) DO UPDATE SET budget = excluded.budget, updated_at = excluded.updated_at
	`, accountID, currency, monthStart, budget.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record monthly budget: %w", err)
	}
	return nil
}

func (m *MonthDataStore) balanceAt(ctx context.Context, accountID string, currency money.Currency, cutoff time.Time) (money.Decimal, error) {
	rows, err := m.db.SQL.QueryContext(ctx, `
		SELECT amount, category FROM transactions
		WHERE account_id = ? AND currency = ? AND created_at < ? ORDER BY created_at, id
	`, accountID, currency, cutoff)
	if err != nil {
		return money.Zero, fmt.Errorf("read transactions: %w", err)
	}
	defer rows.Close()

	total := money.Zero
	for rows.Next() {
		var amountStr, cat string
		if err := rows.Scan(&amountStr, &cat); err != nil {
			return money.Zero, fmt.Errorf("scan transaction: %w", err)
		}
		amt, err := money.Parse(amountStr)
		if err != nil {
			return money.Zero, err
		}
		switch {
		case creditCategories[cat]:
			total, err = money.Add(total, amt)
		case debitCategories[cat]:
			total, err = money.Sub(total, amt)
		}
		if err != nil {
			return money.Zero, err
		}
	}
	return total, rows.Err()
}

// openTradeRisk sums |entry.unit_price - safety_stop.unit_price| * quantity
// across the account's open (non-terminal) trades.
func (m *MonthDataStore) openTradeRisk(ctx context.Context, accountID string, currency money.Currency) (money.Decimal, error) {
	rows, err := m.db.SQL.QueryContext(ctx, `
		SELECT eo.unit_price, eo.quantity, so.unit_price
		FROM trades t
		JOIN orders eo ON eo.id = t.entry_order_id
		JOIN orders so ON so.id = t.safety_stop_order_id
		WHERE t.account_id = ? AND t.currency = ? AND t.deleted_at IS NULL
		 AND t.status NOT IN ('closed_target', 'closed_stop_loss')
	`, accountID, currency)
	if err != nil {
		return money.Zero, fmt.Errorf("read open trades: %w", err)
	}
	defer rows.Close()

	total := money.Zero
	for rows.Next() {
		var entryPx, stopPx string
		var qty int64
		if err := rows.Scan(&entryPx, &qty, &stopPx); err != nil {
			return money.Zero, fmt.Errorf("scan open trade: %w", err)
		}
		ep, err := money.Parse(entryPx)
		if err != nil {
			return money.Zero, err
		}
		sp, err := money.Parse(stopPx)
		if err != nil {
			return money.Zero, err
		}
		perShare := money.Abs(mustSub(ep, sp))
		risk, err := money.Mul(perShare, money.Quantity(qty).Decimal())
		if err != nil {
			return money.Zero, err
		}
		if total, err = money.Add(total, risk); err != nil {
			return money.Zero, err
		}
	}
	return total, rows.Err()
}
