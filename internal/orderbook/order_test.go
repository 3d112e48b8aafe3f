package orderbook

import (
	"errors"
	"testing"
	"time"

	"github.com/matiasvillaverde/trust-core/internal/money"
)

func TestFillPartial(t *testing.T) {
	o := Order{Quantity: 100}
	if err := o.Fill(40, money.MustParse("10.5"), time.Now()); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if o.Status != StatusPartiallyFilled {
		t.Fatalf("status=%s, expected partially_filled", o.Status)
	}
	if o.FilledQuantity != 40 {
		t.Fatalf("filled quantity=%d, expected 40", o.FilledQuantity)
	}
	if o.AverageFilledPrice == nil || o.AverageFilledPrice.String() != "10.5" {
		t.Fatalf("unexpected average filled price: %v", o.AverageFilledPrice)
	}
}

func TestFillComplete(t *testing.T) {
	o := Order{Quantity: 100}
	if err := o.Fill(100, money.MustParse("10"), time.Now()); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if o.Status != StatusFilled {
		t.Fatalf("status=%s, expected filled", o.Status)
	}
}

func TestFillRejectsOverfill(t *testing.T) {
	o := Order{Quantity: 100}
	if err := o.Fill(150, money.MustParse("10"), time.Now()); !errors.Is(err, ErrFillInvariant) {
		t.Fatalf("expected ErrFillInvariant, got %v", err)
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusFilled, true},
		{StatusCanceled, true},
		{StatusExpired, true},
		{StatusRejected, true},
		{StatusNew, false},
		{StatusPartiallyFilled, false},
		{StatusAccepted, false},
	}
	for _, tt := range tests {
		o := Order{Status: tt.status}
		if got := o.IsTerminal(); got != tt.want {
			t.Errorf("Status(%s).IsTerminal()=%v, expected %v", tt.status, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if got := ParseStatus("filled"); got != StatusFilled {
		t.Fatalf("ParseStatus(filled)=%s, expected filled", got)
	}
	if got := ParseStatus("some_unknown_broker_status"); got != StatusUnknown {
		t.Fatalf("ParseStatus(unknown)=%s, expected unknown", got)
	}
}
