// Package fixedpoint provides the exact decimal type used throughout the
// hedging engine. Prices, quantities and values are never represented as
// binary floating point; float64 only appears at the REST client boundary,
// where exchange APIs demand it.
package fixedpoint

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Value wraps shopspring/decimal.Decimal behind the narrow method set the
// engine actually needs.
type Value struct {
	d decimal.Decimal
}

var Zero = Value{}
var One = Value{d: decimal.NewFromInt(1)}
var Two = Value{d: decimal.NewFromInt(2)}

// NewFromString parses a wire-format decimal string, as instrument specs
// (tickSize, qtyStep, minOrderQty, minNotionalValue) arrive over REST.
func NewFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return Value{d: d}, nil
}

// NewFromFloat converts a float64 received at the REST boundary (prices,
// balances) into an exact decimal.
func NewFromFloat(f float64) Value {
	return Value{d: decimal.NewFromFloat(f)}
}

func NewFromInt(i int64) Value {
	return Value{d: decimal.NewFromInt(i)}
}

func (v Value) Add(o Value) Value { return Value{d: v.d.Add(o.d)} }
func (v Value) Sub(o Value) Value { return Value{d: v.d.Sub(o.d)} }
func (v Value) Mul(o Value) Value { return Value{d: v.d.Mul(o.d)} }

// Div divides at a generous fixed precision; callers round explicitly where
// the result feeds a step calculation.
func (v Value) Div(o Value) Value { return Value{d: v.d.DivRound(o.d, 24)} }

func (v Value) Neg() Value { return Value{d: v.d.Neg()} }
func (v Value) Abs() Value { return Value{d: v.d.Abs()} }

func (v Value) Sign() int     { return v.d.Sign() }
func (v Value) IsZero() bool  { return v.d.IsZero() }
func (v Value) IsPositive() bool { return v.d.Sign() > 0 }
func (v Value) IsNegative() bool { return v.d.Sign() < 0 }

func (v Value) Compare(o Value) int { return v.d.Cmp(o.d) }
func (v Value) GreaterThan(o Value) bool        { return v.d.Cmp(o.d) > 0 }
func (v Value) GreaterThanOrEqual(o Value) bool  { return v.d.Cmp(o.d) >= 0 }
func (v Value) LessThan(o Value) bool            { return v.d.Cmp(o.d) < 0 }
func (v Value) LessThanOrEqual(o Value) bool      { return v.d.Cmp(o.d) <= 0 }

func (v Value) Max(o Value) Value {
	if v.GreaterThan(o) {
		return v
	}
	return o
}

func (v Value) Min(o Value) Value {
	if v.LessThan(o) {
		return v
	}
	return o
}

// Scale reports the number of digits after the decimal point, used to derive
// REST-boundary rounding precision from a step/tick size.
func (v Value) Scale() int32 {
	return v.d.Exponent() * -1
}

func (v Value) Float64() float64 {
	f, _ := v.d.Float64()
	return f
}

func (v Value) String() string {
	return v.d.String()
}

func (v Value) Decimal() decimal.Decimal { return v.d }

// RoundDown truncates to n decimal places without rounding up, matching the
// "round down when emitting an order size" directional rule.
func (v Value) RoundDown(places int32) Value {
	return Value{d: v.d.Truncate(places)}
}

func (v Value) Value() (driver.Value, error) { return v.d.String(), nil }

func (v *Value) Scan(raw interface{}) error {
	switch x := raw.(type) {
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return err
		}
		v.d = d
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(x))
		if err != nil {
			return err
		}
		v.d = d
		return nil
	case float64:
		v.d = decimal.NewFromFloat(x)
		return nil
	default:
		return fmt.Errorf("fixedpoint: unsupported scan type %T", raw)
	}
}

// DecimalsFromStep derives the number of significant fractional digits from
// a wire-format step string such as "0.001", used to control REST-boundary
// rounding precision. Trailing zeros in the fractional part don't count as
// precision.
func DecimalsFromStep(step string) int32 {
	dotIdx := -1
	for i, r := range step {
		if r == '.' {
			dotIdx = i
			break
		}
	}
	if dotIdx < 0 {
		return 0
	}
	frac := step[dotIdx+1:]
	end := len(frac)
	for end > 0 && frac[end-1] == '0' {
		end--
	}
	return int32(end)
}

// RoundUpStep rounds v up to the nearest multiple of step (ceil(v/step)*step),
// computed at extra internal precision to avoid cumulative rounding loss.
// Used for sizing targets: per-chunk quantities must never undershoot.
func RoundUpStep(v, step Value) Value {
	if step.Sign() <= 0 {
		if v.IsZero() {
			return Zero
		}
		return v
	}
	if v.Sign() <= 0 {
		return Zero
	}

	precision := maxInt32(v.Scale(), step.Scale()) + step.Scale() + 5
	vScaled := v.d.Round(precision)
	sScaled := step.d.Round(precision)
	if sScaled.IsZero() {
		return v
	}

	ratio := vScaled.Div(sScaled)
	ceiled := ratio.Ceil()
	return Value{d: ceiled.Mul(sScaled)}
}

// RoundDownStep rounds v down to the nearest multiple of step
// (floor(v/step)*step). Used whenever an order size is actually emitted to
// the exchange, so placed orders never exceed step granularity.
func RoundDownStep(v, step Value) Value {
	if step.Sign() <= 0 {
		if v.IsZero() {
			return Zero
		}
		return v
	}
	if v.IsZero() {
		return Zero
	}

	precision := step.Scale() + 3
	vScaled := v.d.Round(precision)
	sScaled := step.d.Round(precision)
	if sScaled.IsZero() {
		return v
	}

	ratio := vScaled.Div(sScaled)
	floored := ratio.Floor()
	return Value{d: floored.Mul(sScaled)}
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
