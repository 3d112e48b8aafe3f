package trade

import (
	"errors"
	"testing"

	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/orderbook"
)

func TestRequiredCapital(t *testing.T) {
	entry := orderbook.Order{UnitPrice: money.MustParse("100"), Quantity: 10}
	stop := orderbook.Order{UnitPrice: money.MustParse("90"), Quantity: 10}

	got, err := RequiredCapital(Long, entry, stop)
	if err != nil {
		t.Fatalf("RequiredCapital(Long): %v", err)
	}
	if got.String() != "1000" {
		t.Fatalf("Long RequiredCapital=%s, expected 1000", got.String())
	}

	got, err = RequiredCapital(Short, entry, stop)
	if err != nil {
		t.Fatalf("RequiredCapital(Short): %v", err)
	}
	if got.String() != "900" {
		t.Fatalf("Short RequiredCapital=%s, expected 900", got.String())
	}

	if _, err := RequiredCapital(Category("sideways"), entry, stop); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry for unknown category, got %v", err)
	}
}

func TestValidateGeometry(t *testing.T) {
	tests := []struct {
		name                string
		cat                 Category
		stop, entry, target string
		wantErr             bool
	}{
		{"long valid", Long, "90", "100", "120", false},
		{"long stop above entry", Long, "110", "100", "120", true},
		{"long target below entry", Long, "90", "100", "95", true},
		{"short valid", Short, "120", "100", "80", false},
		{"short stop below entry", Short, "90", "100", "80", true},
		{"unknown category", Category("sideways"), "90", "100", "120", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGeometry(tt.cat, money.MustParse(tt.stop), money.MustParse(tt.entry), money.MustParse(tt.target))
			if tt.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from, to Status
		want     bool
	}{
		{"new to funded", StatusNew, StatusFunded, true},
		{"new to submitted skips a step", StatusNew, StatusSubmitted, false},
		{"funded to submitted", StatusFunded, StatusSubmitted, true},
		{"submitted to filled", StatusSubmitted, StatusFilled, true},
		{"filled to closed target", StatusFilled, StatusClosedTarget, true},
		{"filled to closed stop", StatusFilled, StatusClosedStopLoss, true},
		{"closed target is terminal", StatusClosedTarget, StatusCanceled, false},
		{"same status is a no-op", StatusFilled, StatusFilled, true},
		{"canceled can still settle to closed target", StatusCanceled, StatusClosedTarget, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s, %s)=%v, expected %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestRequireTransitionError(t *testing.T) {
	err := RequireTransition(StatusNew, StatusFilled)
	if err == nil {
		t.Fatal("expected an error")
	}
	var invalid *ErrInvalidTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *ErrInvalidTransition, got %T", err)
	}
	if invalid.From != StatusNew || invalid.To != StatusFilled {
		t.Fatalf("unexpected From/To: %+v", invalid)
	}
}
