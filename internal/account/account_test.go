package account

import (
	"errors"
	"testing"
)

func ptr(s string) *string { return &s }

func TestValidateParent(t *testing.T) {
	primary := Account{ID: "primary", AccountType: Primary}
	earnings := Account{ID: "earnings", AccountType: Earnings, ParentAccountID: ptr("primary")}
	siblingUnderEarnings := Account{ID: "sibling", AccountType: TaxReserve, ParentAccountID: ptr("earnings")}
	orphan := Account{ID: "orphan", AccountType: Earnings}

	fixtures := map[string]Account{
		"primary":  primary,
		"earnings": earnings,
		"sibling":  siblingUnderEarnings,
		"orphan":   orphan,
	}
	resolve := func(id string) (Account, bool) {
		a, ok := fixtures[id]
		return a, ok
	}

	tests := []struct {
		name    string
		child   Account
		wantErr error
	}{
		{
			name:  "primary with no parent is valid",
			child: Account{ID: "new-primary", AccountType: Primary},
		},
		{
			name:    "primary with a parent is rejected",
			child:   Account{ID: "new-primary", AccountType: Primary, ParentAccountID: ptr("primary")},
			wantErr: ErrParentNotPrimary,
		},
		{
			name:    "non-primary with no parent is rejected",
			child:   Account{ID: "new-earnings", AccountType: Earnings},
			wantErr: ErrParentNotPrimary,
		},
		{
			name:    "parent does not resolve",
			child:   Account{ID: "new-earnings", AccountType: Earnings, ParentAccountID: ptr("ghost")},
			wantErr: ErrNotFound,
		},
		{
			name:    "parent is self",
			child:   Account{ID: "primary", AccountType: Earnings, ParentAccountID: ptr("primary")},
			wantErr: ErrCycle,
		},
		{
			name:  "parent is the primary",
			child: Account{ID: "new-earnings", AccountType: Earnings, ParentAccountID: ptr("primary")},
		},
		{
			name:  "parent is a sibling whose own parent is the primary",
			child: Account{ID: "new-leaf", AccountType: Reinvestment, ParentAccountID: ptr("earnings")},
		},
		{
			name:    "parent is a non-primary account with no parent of its own",
			child:   Account{ID: "new-leaf", AccountType: Reinvestment, ParentAccountID: ptr("orphan")},
			wantErr: ErrParentNotPrimary,
		},
		{
			name:    "parent is a sibling whose grandparent isn't the primary",
			child:   Account{ID: "new-leaf", AccountType: Reinvestment, ParentAccountID: ptr("sibling")},
			wantErr: ErrDepthExceeded,
		},
		{
			name:    "parent is a sibling whose grandparent is the child itself",
			child:   Account{ID: "primary", AccountType: Reinvestment, ParentAccountID: ptr("earnings")},
			wantErr: ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParent(tt.child, resolve)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateParent()=%v, expected %v", err, tt.wantErr)
			}
		})
	}
}
