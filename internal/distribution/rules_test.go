package distribution

import (
	"context"
	"errors"
	"testing"

	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/store"
)

func TestValidatePercentages(t *testing.T) {
	tests := []struct {
		name                       string
		earnings, tax, reinvest    float64
		wantErr                    error
	}{
		{"sums to one", 0.3, 0.3, 0.4, nil},
		{"all to one bucket", 1, 0, 0, nil},
		{"negative percentage", -0.1, 0.6, 0.5, ErrInvalidPercentage},
		{"over one percentage", 1.1, 0, 0, ErrInvalidPercentage},
		{"sums below one", 0.2, 0.2, 0.2, ErrInvalidPercentageSum},
		{"sums above one", 0.5, 0.5, 0.5, ErrInvalidPercentageSum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePercentages(tt.earnings, tt.tax, tt.reinvest)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, expected %v", err, tt.wantErr)
			}
		})
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := checkPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("expected matching password to pass, got %v", err)
	}
	if err := checkPassword(hash, "wrong password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
}

func TestStoreConfigureRequiresExistingPassword(t *testing.T) {
	db, err := store.Open("")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	ctx := context.Background()
	if _, err := db.SQL.ExecContext(ctx, `INSERT INTO accounts (id, name, environment, account_type) VALUES ('acct-1', 'acct-1', 'paper', 'primary')`); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	if _, err := s.Configure(ctx, "acct-1", 0.3, 0.3, 0.4, money.MustParse("100"), "first-password"); err != nil {
		t.Fatalf("first configure: %v", err)
	}

	if _, err := s.Configure(ctx, "acct-1", 0.5, 0.25, 0.25, money.MustParse("200"), "wrong-password"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}

	r, err := s.Configure(ctx, "acct-1", 0.5, 0.25, 0.25, money.MustParse("200"), "first-password")
	if err != nil {
		t.Fatalf("second configure with correct password: %v", err)
	}
	if r.EarningsPercent != 0.5 {
		t.Fatalf("earnings percent=%v, expected 0.5", r.EarningsPercent)
	}
}
