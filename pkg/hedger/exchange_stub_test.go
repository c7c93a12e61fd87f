package hedger

import (
	"context"

	"github.com/thedr-lul/hedgehog/pkg/exchange"
	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

var _ exchange.Exchange = (*stubExchange)(nil)

// stubExchange is a minimal exchange.Exchange double: each capability is an
// overridable func field, nil fields panic if called so a test only wires
// what it actually exercises.
type stubExchange struct {
	placeLimitOrder        func(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error)
	placeFuturesLimitOrder func(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error)
	placeSpotMarketOrder   func(ctx context.Context, baseSymbol string, side types.Side, qty fixedpoint.Value) (types.Order, error)
	placeFuturesMarketOrder func(ctx context.Context, symbol string, side types.Side, qty fixedpoint.Value) (types.Order, error)
	cancelSpotOrder        func(ctx context.Context, symbol, orderID string) error
	cancelFuturesOrder     func(ctx context.Context, symbol, orderID string) error

	cancelFuturesCalls []string
}

func (s *stubExchange) GetSpotInstrumentInfo(context.Context, string) (types.Market, error) {
	panic("unused in this test")
}
func (s *stubExchange) GetLinearInstrumentInfo(context.Context, string) (types.Market, error) {
	panic("unused in this test")
}
func (s *stubExchange) GetBalance(context.Context, string) (exchange.Balance, error) {
	panic("unused in this test")
}
func (s *stubExchange) GetSpotPrice(context.Context, string) (fixedpoint.Value, error) {
	panic("unused in this test")
}
func (s *stubExchange) GetMarketPrice(context.Context, string, bool) (fixedpoint.Value, error) {
	panic("unused in this test")
}

func (s *stubExchange) PlaceLimitOrder(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error) {
	return s.placeLimitOrder(ctx, symbol, side, qty, price)
}

func (s *stubExchange) PlaceFuturesLimitOrder(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error) {
	return s.placeFuturesLimitOrder(ctx, symbol, side, qty, price)
}

func (s *stubExchange) PlaceSpotMarketOrder(ctx context.Context, baseSymbol string, side types.Side, qty fixedpoint.Value) (types.Order, error) {
	if s.placeSpotMarketOrder == nil {
		panic("unused in this test")
	}
	return s.placeSpotMarketOrder(ctx, baseSymbol, side, qty)
}
func (s *stubExchange) PlaceFuturesMarketOrder(ctx context.Context, symbol string, side types.Side, qty fixedpoint.Value) (types.Order, error) {
	if s.placeFuturesMarketOrder == nil {
		panic("unused in this test")
	}
	return s.placeFuturesMarketOrder(ctx, symbol, side, qty)
}

func (s *stubExchange) CancelSpotOrder(ctx context.Context, symbol, orderID string) error {
	return s.cancelSpotOrder(ctx, symbol, orderID)
}

func (s *stubExchange) CancelFuturesOrder(ctx context.Context, symbol, orderID string) error {
	s.cancelFuturesCalls = append(s.cancelFuturesCalls, orderID)
	return s.cancelFuturesOrder(ctx, symbol, orderID)
}
