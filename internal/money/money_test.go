package money

import "testing"

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"integer", "100"},
		{"fraction", "123.45"},
		{"negative", "-0.01"},
		{"many digits", "1234567890.123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.in, err)
			}
			if d.String() != tt.in {
				t.Fatalf("String()=%q, expected %q", d.String(), tt.in)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-number"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestSignPredicates(t *testing.T) {
	tests := []struct {
		name         string
		in           Decimal
		wantZero     bool
		wantPositive bool
		wantNegative bool
	}{
		{"zero", Zero, true, false, false},
		{"positive", MustParse("5"), false, true, false},
		{"negative", MustParse("-5"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.IsZero(); got != tt.wantZero {
				t.Fatalf("IsZero()=%v, expected %v", got, tt.wantZero)
			}
			if got := tt.in.IsPositive(); got != tt.wantPositive {
				t.Fatalf("IsPositive()=%v, expected %v", got, tt.wantPositive)
			}
			if got := tt.in.IsNegative(); got != tt.wantNegative {
				t.Fatalf("IsNegative()=%v, expected %v", got, tt.wantNegative)
			}
		})
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := Div(MustParse("10"), Zero); err != ErrDivisionByZero {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		want    Quantity
		wantErr bool
	}{
		{"exact", "100", "10", 10, false},
		{"rounds down", "105", "10", 10, false},
		{"negative result floors to zero", "-10", "5", 0, false},
		{"zero divisor", "10", "0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FloorDiv(MustParse(tt.a), MustParse(tt.b))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FloorDiv returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("FloorDiv(%s, %s)=%d, expected %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMulOverflow(t *testing.T) {
	huge := MustParse("99999999999999999999999")
	if _, err := Mul(huge, huge); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestQuantityDecimalRoundTrip(t *testing.T) {
	q := Quantity(42)
	if got := q.Decimal(); !got.Equal(NewFromInt(42)) {
		t.Fatalf("Quantity(42).Decimal()=%s, expected 42", got.String())
	}
}
