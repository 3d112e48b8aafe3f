// Package money implements the fixed-point decimal arithmetic every
// monetary value in the system requires: checked operations only, never a
// silent wrap, and never a float in the hot path.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrOverflow is returned when a checked operation would overflow the
// decimal's representable range.
var ErrOverflow = errors.New("money: overflow")

// ErrDivisionByZero is returned by Div when the divisor is zero.
var ErrDivisionByZero = errors.New("money: division by zero")

// ErrParseFailure wraps a decimal string that failed to parse.
var ErrParseFailure = errors.New("money: parse failure")

// ErrNegative is returned where a non-negative amount is required.
var ErrNegative = errors.New("money: amount must be non-negative")

// Decimal is the fixed-point representation used for every monetary field
// (Transaction.amount, Order.unit_price, balances,...). It wraps
// shopspring/decimal, which stores an arbitrary-precision integer coefficient
// plus a base-10 exponent — exactly the "28+ significant digits, arbitrary
// scale" shape calls for.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// New builds a Decimal from an integer coefficient and (negative) exponent,
// e.g. New(12345, -2) == 123.45.
func New(coefficient int64, exponent int32) Decimal {
	return Decimal{d: decimal.New(coefficient, exponent)}
}

// NewFromInt builds a Decimal representing a whole number.
func NewFromInt(v int64) Decimal {
	return Decimal{d: decimal.NewFromInt(v)}
}

// Parse parses an exact decimal string — every monetary field is stored
// and transmitted as one, never a float.
func Parse(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrParseFailure, s, err)
	}
	return Decimal{d: d}, nil
}

// MustParse is Parse but panics on error; reserved for constants in tests.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders the exact decimal string.
func (a Decimal) String() string { return a.d.String() }

// IsZero reports whether a is exactly zero.
func (a Decimal) IsZero() bool { return a.d.IsZero() }

// IsNegative reports whether a is strictly less than zero.
func (a Decimal) IsNegative() bool { return a.d.Sign() < 0 }

// IsPositive reports whether a is strictly greater than zero.
func (a Decimal) IsPositive() bool { return a.d.Sign() > 0 }

// Sign returns -1, 0 or 1.
func (a Decimal) Sign() int { return a.d.Sign() }

// Cmp compares a and b: -1, 0, 1.
func (a Decimal) Cmp(b Decimal) int { return a.d.Cmp(b.d) }

// Equal reports a == b.
func (a Decimal) Equal(b Decimal) bool { return a.d.Equal(b.d) }

// GreaterThan reports a > b.
func (a Decimal) GreaterThan(b Decimal) bool { return a.d.GreaterThan(b.d) }

// GreaterThanOrEqual reports a >= b.
func (a Decimal) GreaterThanOrEqual(b Decimal) bool { return a.d.GreaterThanOrEqual(b.d) }

// LessThan reports a < b.
func (a Decimal) LessThan(b Decimal) bool { return a.d.LessThan(b.d) }

// LessThanOrEqual reports a <= b.
func (a Decimal) LessThanOrEqual(b Decimal) bool { return a.d.LessThanOrEqual(b.d) }

// maxDigits bounds the coefficient magnitude we are willing to produce.
// shopspring/decimal itself is arbitrary precision, so this is a policy
// ceiling rather than a hardware limit;
// anything beyond it almost certainly indicates a unit/scale bug upstream
// rather than a legitimate trade size.
const maxDigits = 40

func checkDigits(d decimal.Decimal) error {
	if len(d.Coefficient.Text(10)) > maxDigits {
		return ErrOverflow
	}
	return nil
}

// Add computes a+b, erroring on overflow.
func Add(a, b Decimal) (Decimal, error) {
	r := a.d.Add(b.d)
	if err := checkDigits(r); err != nil {
		return Zero, err
	}
	return Decimal{d: r}, nil
}

// Sub computes a-b, erroring on overflow.
func Sub(a, b Decimal) (Decimal, error) {
	r := a.d.Sub(b.d)
	if err := checkDigits(r); err != nil {
		return Zero, err
	}
	return Decimal{d: r}, nil
}

// Mul computes a*b, erroring on overflow.
func Mul(a, b Decimal) (Decimal, error) {
	r := a.d.Mul(b.d)
	if err := checkDigits(r); err != nil {
		return Zero, err
	}
	return Decimal{d: r}, nil
}

// Div computes a/b to 18 decimal places, erroring on division by zero or
// overflow.
func Div(a, b Decimal) (Decimal, error) {
	if b.IsZero() {
		return Zero, ErrDivisionByZero
	}
	r := a.d.DivRound(b.d, 18)
	if err := checkDigits(r); err != nil {
		return Zero, err
	}
	return Decimal{d: r}, nil
}

// Abs returns the absolute value of a.
func Abs(a Decimal) Decimal { return Decimal{d: a.d.Abs()} }

// Float64 converts a to a float64, for rule-threshold/percentage
// comparisons that tolerate float precision. Never use this for a value
// that feeds back into checked Decimal arithmetic.
func (a Decimal) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// MulFloat multiplies a Decimal by a plain float64 percentage/multiplier
// (e.g. a risk-per-trade pct or a level size multiplier). This is the single
// point where a float percentage crosses into checked Decimal arithmetic.
func MulFloat(a Decimal, f float64) (Decimal, error) {
	fd := decimal.NewFromFloat(f)
	r := a.d.Mul(fd)
	if err := checkDigits(r); err != nil {
		return Zero, err
	}
	return Decimal{d: r}, nil
}

// FloorDiv computes floor(a/b) as a non-negative Quantity. Used by the risk
// engine's size calculator to turn a per-trade capital cap and a per-share
// risk amount into a share count.
func FloorDiv(a, b Decimal) (Quantity, error) {
	if b.IsZero() {
		return 0, ErrDivisionByZero
	}
	q := a.d.Div(b.d).Floor()
	if q.IsNegative() {
		return 0, nil
	}
	if !q.IsInteger() {
		return 0, fmt.Errorf("money: floor div produced non-integer %s", q.String())
	}
	iv := q.IntPart()
	if iv < 0 {
		return 0, nil
	}
	return Quantity(iv), nil
}

// Quantity is a non-negative 64-bit integer count of shares/contracts/units.
type Quantity uint64

// Decimal converts a Quantity to a Decimal for arithmetic against prices.
func (q Quantity) Decimal() Decimal { return NewFromInt(int64(q)) }

// MarshalText implements encoding.TextMarshaler so Decimal serializes as the
// exact decimal string requires for storage.
func (a Decimal) MarshalText() ([]byte, error) { return []byte(a.d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Decimal) UnmarshalText(text []byte) error {
	d, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = d
	return nil
}
