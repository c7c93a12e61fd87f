package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	v, err := NewFromString(s)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return v
}

func TestArithmeticRoundTrip(t *testing.T) {
	a := mustParse(t, "1.5")
	b := mustParse(t, "0.25")

	assert.Equal(t, "1.75", a.Add(b).String())
	assert.Equal(t, "1.25", a.Sub(b).String())
	assert.Equal(t, "0.375", a.Mul(b).String())
	assertValueEqual(t, "6", a.Div(b))
}

func TestComparisons(t *testing.T) {
	a := mustParse(t, "2")
	b := mustParse(t, "3")

	assert.True(t, a.LessThan(b))
	assert.True(t, b.GreaterThan(a))
	assert.True(t, a.LessThanOrEqual(a))
	assert.True(t, a.GreaterThanOrEqual(a))
	assert.Equal(t, a, a.Min(b))
	assert.Equal(t, b, a.Max(b))
}

func TestDecimalsFromStep(t *testing.T) {
	cases := []struct {
		step string
		want int32
	}{
		{"0.001", 3},
		{"0.01", 2},
		{"1", 0},
		{"0.10", 1},
		{"0.00100", 3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DecimalsFromStep(c.step), "step %s", c.step)
	}
}

func assertValueEqual(t *testing.T, want string, got Value) {
	t.Helper()
	wantVal := mustParse(t, want)
	assert.Equal(t, 0, wantVal.Compare(got), "want %s, got %s", want, got.String())
}

func TestRoundUpStep(t *testing.T) {
	step := mustParse(t, "0.001")

	assertValueEqual(t, "1.001", RoundUpStep(mustParse(t, "1.0001"), step))
	assertValueEqual(t, "1", RoundUpStep(mustParse(t, "1"), step))
	assertValueEqual(t, "0", RoundUpStep(mustParse(t, "0"), step))
}

func TestRoundDownStep(t *testing.T) {
	step := mustParse(t, "0.001")

	assertValueEqual(t, "1", RoundDownStep(mustParse(t, "1.0009"), step))
	assertValueEqual(t, "0", RoundDownStep(mustParse(t, "0.0001"), step))
}

func TestRoundStepZeroStepIsNoOp(t *testing.T) {
	v := mustParse(t, "1.23456")
	assert.Equal(t, v.String(), RoundUpStep(v, Zero).String())
	assert.Equal(t, v.String(), RoundDownStep(v, Zero).String())
}
