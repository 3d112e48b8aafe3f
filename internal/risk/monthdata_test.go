package risk

import (
	"context"
	"testing"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

func seedAccount(t *testing.T, db *store.DB, id string) {
	t.Helper()
	_, err := db.SQL.Exec(`INSERT INTO accounts (id, name, environment, account_type, created_at) VALUES (?, ?, 'paper', 'primary', ?)`,
		id, id, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func seedTransaction(t *testing.T, db *store.DB, accountID, amount, category string, at time.Time) {
	t.Helper()
	_, err := db.SQL.Exec(`INSERT INTO transactions (id, account_id, currency, amount, category, created_at) VALUES (?, ?, 'USD', ?, ?, ?)`,
		category+"-"+at.Format(time.RFC3339Nano), accountID, amount, category, at)
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func TestMonthDataStoreBalanceAt(t *testing.T) {
	db, err := store.Open("")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	seedAccount(t, db, "acct-1")

	monthStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedTransaction(t, db, "acct-1", "1000", "deposit", monthStart.Add(-24*time.Hour))
	seedTransaction(t, db, "acct-1", "200", "withdrawal", monthStart.Add(time.Hour))

	m := NewMonthDataStore(db)
	data, err := m.MonthlyBudgetData(context.Background(), "acct-1", money.USD, monthStart)
	if err != nil {
		t.Fatalf("MonthlyBudgetData: %v", err)
	}
	if data.BalanceAtMonthStart.String() != "1000" {
		t.Fatalf("BalanceAtMonthStart=%s, expected 1000 (withdrawal happened after month start)", data.BalanceAtMonthStart.String())
	}
	if data.CurrentBalance.String() != "800" {
		t.Fatalf("CurrentBalance=%s, expected 800", data.CurrentBalance.String())
	}
	if !data.OpenTradeRisk.IsZero() {
		t.Fatalf("OpenTradeRisk=%s, expected 0 with no trades", data.OpenTradeRisk.String())
	}
	if !data.MonthlyBudgetSoFar.IsZero() {
		t.Fatalf("MonthlyBudgetSoFar=%s, expected 0 before any RecordBudget call", data.MonthlyBudgetSoFar.String())
	}
}

func TestMonthDataStoreRecordBudgetRoundTrips(t *testing.T) {
	db, err := store.Open("")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	seedAccount(t, db, "acct-1")
	monthStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	m := NewMonthDataStore(db)

	if err := m.RecordBudget(ctx, "acct-1", money.USD, monthStart, money.MustParse("600")); err != nil {
		t.Fatalf("RecordBudget: %v", err)
	}

	data, err := m.MonthlyBudgetData(ctx, "acct-1", money.USD, monthStart)
	if err != nil {
		t.Fatalf("MonthlyBudgetData: %v", err)
	}
	if data.MonthlyBudgetSoFar.String() != "600" {
		t.Fatalf("MonthlyBudgetSoFar=%s, expected 600", data.MonthlyBudgetSoFar.String())
	}

	if err := m.RecordBudget(ctx, "acct-1", money.USD, monthStart, money.MustParse("450")); err != nil {
		t.Fatalf("RecordBudget overwrite: %v", err)
	}
	data, err = m.MonthlyBudgetData(ctx, "acct-1", money.USD, monthStart)
	if err != nil {
		t.Fatalf("MonthlyBudgetData after overwrite: %v", err)
	}
	if data.MonthlyBudgetSoFar.String() != "450" {
		t.Fatalf("MonthlyBudgetSoFar=%s, expected 450 after overwrite", data.MonthlyBudgetSoFar.String())
	}

	otherMonth := monthStart.AddDate(0, 1, 0)
	data, err = m.MonthlyBudgetData(ctx, "acct-1", money.USD, otherMonth)
	if err != nil {
		t.Fatalf("MonthlyBudgetData for a different month: %v", err)
	}
	if !data.MonthlyBudgetSoFar.IsZero() {
		t.Fatalf("MonthlyBudgetSoFar=%s, expected 0 for a month with no recorded budget", data.MonthlyBudgetSoFar.String())
	}
}
