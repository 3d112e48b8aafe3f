package account

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// Store is the account/account_balances repository.
type Store struct {
	db *store.DB
}

// NewStore builds an account Store over db.
func NewStore(db *store.DB) *Store { return &Store{db: db} }

// Create inserts a new account row, defaulting its ID if unset.
func (s *Store) Create(ctx context.Context, a Account) (Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.SQL.ExecContext(ctx, `
		INSERT INTO accounts (
			id, name, description, environment, taxes_percentage, earnings_percentage,
			account_type, parent_account_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.Description, a.Environment, a.TaxesPercentage, a.EarningsPercentage,
		a.AccountType, a.ParentAccountID, a.CreatedAt)
	if err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

// Get fetches one non-deleted account by id.
func (s *Store) Get(ctx context.Context, id string) (Account, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT id, name, description, environment, taxes_percentage, earnings_percentage,
		 account_type, parent_account_id, created_at, deleted_at
		FROM accounts WHERE id = ? AND deleted_at IS NULL
	`, id)
	return scanAccount(row)
}

// GetByName fetches one non-deleted account by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (Account, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT id, name, description, environment, taxes_percentage, earnings_percentage,
		 account_type, parent_account_id, created_at, deleted_at
		FROM accounts WHERE name = ? AND deleted_at IS NULL
	`, name)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	var parent sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Environment, &a.TaxesPercentage,
		&a.EarningsPercentage, &a.AccountType, &parent, &a.CreatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return Account{}, store.ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("scan account: %w", err)
	}
	if parent.Valid {
		v := parent.String
		a.ParentAccountID = &v
	}
	if deletedAt.Valid {
		v := deletedAt.Time
		a.DeletedAt = &v
	}
	return a, nil
}

// List returns all non-deleted accounts.
func (s *Store) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `
		SELECT id, name, description, environment, taxes_percentage, earnings_percentage,
		 account_type, parent_account_id, created_at, deleted_at
		FROM accounts WHERE deleted_at IS NULL ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var parent sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Environment, &a.TaxesPercentage,
			&a.EarningsPercentage, &a.AccountType, &parent, &a.CreatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if parent.Valid {
			v := parent.String
			a.ParentAccountID = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SoftDelete stamps deleted_at; accounts are never hard-deleted.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	_, err := s.db.SQL.ExecContext(ctx, `UPDATE accounts SET deleted_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// GetBalance returns the persisted balance row for (accountID, currency), or
// a zeroed Balance if none exists yet.
func (s *Store) GetBalance(ctx context.Context, accountID string, currency money.Currency) (Balance, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT account_id, currency, total_balance, total_in_trade, total_available, taxed, updated_at
		FROM account_balances WHERE account_id = ? AND currency = ?
	`, accountID, currency)

	var b Balance
	var total, inTrade, avail, taxed string
	err := row.Scan(&b.AccountID, &b.Currency, &total, &inTrade, &avail, &taxed, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return Balance{AccountID: accountID, Currency: currency, TotalBalance: money.Zero,
			TotalInTrade: money.Zero, TotalAvailable: money.Zero, Taxed: money.Zero}, nil
	}
	if err != nil {
		return Balance{}, fmt.Errorf("scan balance: %w", err)
	}
	if b.TotalBalance, err = money.Parse(total); err != nil {
		return Balance{}, err
	}
	if b.TotalInTrade, err = money.Parse(inTrade); err != nil {
		return Balance{}, err
	}
	if b.TotalAvailable, err = money.Parse(avail); err != nil {
		return Balance{}, err
	}
	if b.Taxed, err = money.Parse(taxed); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// PutBalanceTx upserts a balance row inside an existing transaction; the
// ledger calls this after recomputing a balance from the transaction log.
func PutBalanceTx(ctx context.Context, tx *sql.Tx, b Balance) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_balances (account_id, currency, total_balance, total_in_trade, total_available, taxed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, currency) DO UPDATE SET
			total_balance = excluded.total_balance,
			total_in_trade = excluded.total_in_trade,
			total_available = excluded.total_available,
			taxed = excluded.taxed,
			updated_at = excluded.updated_at
	`, b.AccountID, b.Currency, b.TotalBalance.String(), b.TotalInTrade.String(),
		b.TotalAvailable.String(), b.Taxed.String(), time.Now().UTC())
	return err
}
