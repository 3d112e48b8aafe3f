// Package distribution implements the DistributionEngine: an atomic
// multi-leg transfer split of realized profit across an account's
// Earnings/TaxReserve/Reinvestment children.
package distribution

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/matiasvillaverde/trust-core/internal/errs"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

// Rules is one account's DistributionRules row: the three
// allocation percentages, the minimum profit threshold, and the hash that
// gates mutating it.
type Rules struct {
	AccountID string
	EarningsPercent float64
	TaxPercent float64
	ReinvestmentPercent float64
	MinimumThreshold money.Decimal
	ConfigurationPasswordHash string
	UpdatedAt time.Time
}

var (
	ErrInvalidPercentageSum = errs.New(errs.KindDistribution, "InvalidPercentageSum", "earnings + tax + reinvestment percentages must sum to exactly 1")
	ErrInvalidPercentage = errs.New(errs.KindDistribution, "InvalidPercentage", "each percentage must be in [0, 1]")
	ErrWrongPassword = errs.New(errs.KindDistribution, "ConfigurationPasswordMismatch", "configuration password does not match")
)

// ValidatePercentages enforces that each percentage is in [0,1] and they
// sum to exactly 1.
func ValidatePercentages(earnings, tax, reinvest float64) error {
	for _, p := range []float64{earnings, tax, reinvest} {
		if p < 0 || p > 1 {
			return ErrInvalidPercentage
		}
	}
	const epsilon = 1e-9
	sum := earnings + tax + reinvest
	if sum < 1-epsilon || sum > 1+epsilon {
		return ErrInvalidPercentageSum
	}
	return nil
}

// HashPassword hashes a configuration password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash configuration password: %w", err)
	}
	return string(b), nil
}

// checkPassword compares a plaintext password against its bcrypt hash.
func checkPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// Store is the distribution_rules/distribution_history repository.
type Store struct {
	db *store.DB
}

// NewStore builds a distribution Store over db.
func NewStore(db *store.DB) *Store { return &Store{db: db} }

// Configure upserts an account's distribution rules, requiring the
// plaintext password to match the existing configuration (or setting it for
// the first time when none exists yet).
func (s *Store) Configure(ctx context.Context, accountID string, earnings, tax, reinvest float64, minThreshold money.Decimal, password string) (Rules, error) {
	if err := ValidatePercentages(earnings, tax, reinvest); err != nil {
		return Rules{}, err
	}
	existing, err := s.Get(ctx, accountID)
	if err != nil && err != store.ErrNotFound {
		return Rules{}, err
	}
	hash := existing.ConfigurationPasswordHash
	if err == store.ErrNotFound {
		hash, err = HashPassword(password)
		if err != nil {
			return Rules{}, err
		}
	} else if err := checkPassword(existing.ConfigurationPasswordHash, password); err != nil {
		return Rules{}, err
	}

	r := Rules{AccountID: accountID, EarningsPercent: earnings, TaxPercent: tax, ReinvestmentPercent: reinvest,
		MinimumThreshold: minThreshold, ConfigurationPasswordHash: hash, UpdatedAt: time.Now().UTC()}
	_, err = s.db.SQL.ExecContext(ctx, `
		INSERT INTO distribution_rules (account_id, earnings_percent, tax_percent, reinvestment_percent, minimum_threshold, configuration_password_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			earnings_percent = excluded.earnings_percent,
			tax_percent = excluded.tax_percent,
			reinvestment_percent = excluded.reinvestment_percent,
			minimum_threshold = excluded.minimum_threshold,
			configuration_password_hash = excluded.configuration_password_hash,
			updated_at = excluded.updated_at
	`, r.AccountID, r.EarningsPercent, r.TaxPercent, r.ReinvestmentPercent, r.MinimumThreshold.String(), r.ConfigurationPasswordHash, r.UpdatedAt)
	if err != nil {
		return Rules{}, fmt.Errorf("upsert distribution rules: %w", err)
	}
	return r, nil
}

// Get fetches an account's distribution rules.
func (s *Store) Get(ctx context.Context, accountID string) (Rules, error) {
	row := s.db.SQL.QueryRowContext(ctx, `
		SELECT account_id, earnings_percent, tax_percent, reinvestment_percent, minimum_threshold, configuration_password_hash, updated_at
		FROM distribution_rules WHERE account_id = ?
	`, accountID)
	var r Rules
	var minThreshold string
	err := row.Scan(&r.AccountID, &r.EarningsPercent, &r.TaxPercent, &r.ReinvestmentPercent, &minThreshold, &r.ConfigurationPasswordHash, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return Rules{}, store.ErrNotFound
	}
	if err != nil {
		return Rules{}, fmt.Errorf("scan distribution rules: %w", err)
	}
	if r.MinimumThreshold, err = money.Parse(minThreshold); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// History is one row of distribution_history: the audit record
// of an executed split.
type History struct {
	ID string
	SourceAccountID string
	Currency money.Currency
	Profit money.Decimal
	EarningsAmount money.Decimal
	TaxAmount money.Decimal
	ReinvestmentAmount money.Decimal
	CreatedAt time.Time
}

// RecordTx inserts a History row within an already-open transaction, so it
// commits atomically with the transfer legs it describes.
func RecordTx(ctx context.Context, tx *sql.Tx, h History) (History, error) {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO distribution_history (id, source_account_id, currency, profit, earnings_amount, tax_amount, reinvestment_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.SourceAccountID, h.Currency, h.Profit.String(), h.EarningsAmount.String(), h.TaxAmount.String(), h.ReinvestmentAmount.String(), h.CreatedAt)
	if err != nil {
		return History{}, fmt.Errorf("insert distribution history: %w", err)
	}
	return h, nil
}

// ListHistory returns an account's distribution history, most recent first.
func (s *Store) ListHistory(ctx context.Context, accountID string) ([]History, error) {
	rows, err := s.db.SQL.QueryContext(ctx, `
		SELECT id, source_account_id, currency, profit, earnings_amount, tax_amount, reinvestment_amount, created_at
		FROM distribution_history WHERE source_account_id = ? ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list distribution history: %w", err)
	}
	defer rows.Close()

	var out []History
	for rows.Next() {
		var h History
		var profit, earn, tax, reinvest string
		if err := rows.Scan(&h.ID, &h.SourceAccountID, &h.Currency, &profit, &earn, &tax, &reinvest, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan distribution history: %w", err)
		}
		var perr error
		if h.Profit, perr = money.Parse(profit); perr != nil {
			return nil, perr
		}
		if h.EarningsAmount, perr = money.Parse(earn); perr != nil {
			return nil, perr
		}
		if h.TaxAmount, perr = money.Parse(tax); perr != nil {
			return nil, perr
		}
		if h.ReinvestmentAmount, perr = money.Parse(reinvest); perr != nil {
			return nil, perr
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
