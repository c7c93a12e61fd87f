package hedger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thedr-lul/hedgehog/pkg/exchange"
	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

type fullStubExchange struct {
	spotMarket    types.Market
	linearMarket  types.Market
	balance       exchange.Balance
	spotPrice     fixedpoint.Value
	futuresPrice  fixedpoint.Value
}

func (s *fullStubExchange) GetSpotInstrumentInfo(context.Context, string) (types.Market, error) {
	return s.spotMarket, nil
}
func (s *fullStubExchange) GetLinearInstrumentInfo(context.Context, string) (types.Market, error) {
	return s.linearMarket, nil
}
func (s *fullStubExchange) GetBalance(context.Context, string) (exchange.Balance, error) {
	return s.balance, nil
}
func (s *fullStubExchange) GetSpotPrice(context.Context, string) (fixedpoint.Value, error) {
	return s.spotPrice, nil
}
func (s *fullStubExchange) GetMarketPrice(context.Context, string, bool) (fixedpoint.Value, error) {
	return s.futuresPrice, nil
}
func (s *fullStubExchange) PlaceLimitOrder(context.Context, string, types.Side, fixedpoint.Value, fixedpoint.Value) (types.Order, error) {
	panic("unused in this test")
}
func (s *fullStubExchange) PlaceFuturesLimitOrder(context.Context, string, types.Side, fixedpoint.Value, fixedpoint.Value) (types.Order, error) {
	panic("unused in this test")
}
func (s *fullStubExchange) PlaceSpotMarketOrder(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
	panic("unused in this test")
}
func (s *fullStubExchange) PlaceFuturesMarketOrder(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
	panic("unused in this test")
}
func (s *fullStubExchange) CancelSpotOrder(context.Context, string, string) error {
	panic("unused in this test")
}
func (s *fullStubExchange) CancelFuturesOrder(context.Context, string, string) error {
	panic("unused in this test")
}

var _ exchange.Exchange = (*fullStubExchange)(nil)

// When the account's available quote balance is short of the requested
// hedge size, the target shrinks to what the balance can actually buy
// rather than failing outright.
func TestInitializeHedge_ClampsTargetToAvailableBalance(t *testing.T) {
	xchg := &fullStubExchange{
		spotMarket:   marketFor(t, "BTCUSDT", "0.01", "0.001", "0.001"),
		linearMarket: marketFor(t, "BTCUSDT", "0.01", "0.001", "0.001"),
		balance:      exchange.Balance{Free: fp(t, "1800"), Locked: fixedpoint.Zero},
		spotPrice:    fp(t, "2000"),
		futuresPrice: fp(t, "2000"),
	}
	cfg := DefaultConfig()
	cfg.WsAutoChunkTargetCount = 5

	state, err := InitializeHedge(context.Background(), cfg, xchg, 1, "BTC", fp(t, "2000"), fp(t, "1"))
	require.NoError(t, err)

	assertQty(t, "1800", state.InitialTargetSpotValue)
	assert.Equal(t, StatusStartingChunk, state.Status.Kind)
}

// When the clamped target no longer buys the minimum order quantity, the
// operation must fail rather than silently proceed with an unplaceable
// order.
func TestInitializeHedge_FailsWhenClampedTargetBelowMinQuantity(t *testing.T) {
	xchg := &fullStubExchange{
		spotMarket:   marketFor(t, "BTCUSDT", "0.01", "0.001", "1"),
		linearMarket: marketFor(t, "BTCUSDT", "0.01", "0.001", "1"),
		balance:      exchange.Balance{Free: fp(t, "10"), Locked: fixedpoint.Zero},
		spotPrice:    fp(t, "2000"),
		futuresPrice: fp(t, "2000"),
	}
	cfg := DefaultConfig()

	_, err := InitializeHedge(context.Background(), cfg, xchg, 1, "BTC", fp(t, "2000"), fp(t, "1"))
	require.Error(t, err)

	var initErr *InitError
	assert.ErrorAs(t, err, &initErr)
}

// Unhedge mirrors the hedge clamp but against the spot balance actually
// available to sell.
func TestInitializeUnhedge_ClampsToAvailableSpotBalance(t *testing.T) {
	xchg := &fullStubExchange{
		spotMarket:   marketFor(t, "BTCUSDT", "0.01", "0.001", "0.001"),
		linearMarket: marketFor(t, "BTCUSDT", "0.01", "0.001", "0.001"),
		balance:      exchange.Balance{Free: fp(t, "0.9"), Locked: fixedpoint.Zero},
		spotPrice:    fp(t, "2000"),
		futuresPrice: fp(t, "2000"),
	}
	cfg := DefaultConfig()
	cfg.WsAutoChunkTargetCount = 5

	state, err := InitializeUnhedge(context.Background(), cfg, xchg, 1, "BTC", fp(t, "1"), fp(t, "1"))
	require.NoError(t, err)

	assertQty(t, "0.9", state.InitialTargetSpotValue)
}
