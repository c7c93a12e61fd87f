package types

import "github.com/thedr-lul/hedgehog/pkg/fixedpoint"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

func (s Side) String() string { return string(s) }

// Market is the per-leg instrument spec: the immutable-after-init tick size,
// quantity step, minimum order quantity and optional minimum notional value
// an exchange enforces for a symbol.
type Market struct {
	Symbol string

	TickSize    fixedpoint.Value
	QuantityStep fixedpoint.Value

	MinQuantity  fixedpoint.Value
	MinNotional  *fixedpoint.Value

	// PricePrecision and QuantityPrecision are the decimal places derived
	// from the tick/step wire strings; they bound the precision of any
	// price or quantity emitted to the venue.
	PricePrecision    int32
	QuantityPrecision int32
}

// ParseMarket builds a Market from the wire-format decimal strings an
// instrument-info REST response carries (qtyStep/basePrecision, tickSize,
// minOrderQty, minNotionalValue).
func ParseMarket(symbol, tickSize, quantityStep, minOrderQty, minNotionalValue string) (Market, error) {
	tick, err := fixedpoint.NewFromString(tickSize)
	if err != nil {
		return Market{}, err
	}
	step, err := fixedpoint.NewFromString(quantityStep)
	if err != nil {
		return Market{}, err
	}
	minQty, err := fixedpoint.NewFromString(minOrderQty)
	if err != nil {
		return Market{}, err
	}

	m := Market{
		Symbol:            symbol,
		TickSize:          tick,
		QuantityStep:      step,
		MinQuantity:       minQty,
		PricePrecision:    fixedpoint.DecimalsFromStep(tickSize),
		QuantityPrecision: fixedpoint.DecimalsFromStep(quantityStep),
	}

	if minNotionalValue != "" {
		minNotional, err := fixedpoint.NewFromString(minNotionalValue)
		if err != nil {
			return Market{}, err
		}
		m.MinNotional = &minNotional
	}

	return m, nil
}
