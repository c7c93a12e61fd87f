package hedger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// A resting spot buy limit at 99.50 becomes stale once the best ask drops
// to 99.10 with stale_ratio 0.002, since 99.50 > 99.10 * 1.002 = 99.2982.
// The engine must cancel the order and, once the cancel is confirmed,
// place a replacement at one tick inside the new best ask for the same
// remaining quantity.
func TestCheckStaleOrders_StaleSpotBuyTriggersReplacement(t *testing.T) {
	state := newTestState(t)
	state.Status = runningChunk(1)
	state.SpotMarket = marketFor(t, "BTCUSDT", "0.01", "0.001", "0.001")

	limitPrice := fp(t, "99.50")
	state.ActiveSpotOrder = newChunkOrderState("S1", "BTCUSDT", types.SideBuy, limitPrice, fp(t, "1"))

	stalePriceRatio := 0.002
	cfg := DefaultConfig()
	cfg.WsStalePriceRatio = &stalePriceRatio

	var cancelledSymbol, cancelledID string
	xchg := &stubExchange{
		cancelSpotOrder: func(ctx context.Context, symbol, orderID string) error {
			cancelledSymbol, cancelledID = symbol, orderID
			return nil
		},
	}

	ask := fp(t, "99.10")
	bid := fp(t, "99.00")
	msg := types.WebSocketMessage{
		Kind:   types.MessageOrderBookL2,
		Symbol: "BTCUSDT",
		Bids:   []types.OrderbookLevel{{Price: bid, Quantity: fp(t, "5")}},
		Asks:   []types.OrderbookLevel{{Price: ask, Quantity: fp(t, "5")}},
	}

	err := HandleMessage(context.Background(), xchg, cfg, state, nil, msg)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cancelledSymbol)
	assert.Equal(t, "S1", cancelledID)
	assert.Equal(t, StatusWaitingCancelConfirmation, state.Status.Kind)
	assert.Equal(t, LegSpot, state.Status.Leg)

	// Cancel confirmation arrives: order is now terminal. The engine should
	// place a replacement at one tick inside the new best ask.
	var placedPrice fixedpoint.Value
	var placedQty fixedpoint.Value
	xchg.placeLimitOrder = func(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error) {
		placedPrice = price
		placedQty = qty
		return types.Order{ID: "S2"}, nil
	}

	cancelConfirm := types.WebSocketMessage{
		Kind: types.MessageOrderUpdate,
		OrderUpdate: types.DetailedOrderStatus{
			OrderID:        "S1",
			FilledQuantity: fixedpoint.Zero,
			Status:         types.OrderStatusCancelled,
		},
	}
	err = HandleMessage(context.Background(), xchg, cfg, state, nil, cancelConfirm)
	require.NoError(t, err)

	assert.Equal(t, StatusRunningChunk, state.Status.Kind)
	require.NotNil(t, state.ActiveSpotOrder)
	assert.Equal(t, "S2", state.ActiveSpotOrder.OrderID)
	assertQty(t, "99.09", placedPrice)
	assertQty(t, "1", placedQty)
}

// A resting order within the stale ratio must not trigger a replacement.
func TestCheckStaleOrders_WithinRatioDoesNotReplace(t *testing.T) {
	state := newTestState(t)
	state.Status = runningChunk(1)
	limitPrice := fp(t, "99.50")
	state.ActiveSpotOrder = newChunkOrderState("S1", "BTCUSDT", types.SideBuy, limitPrice, fp(t, "1"))

	stalePriceRatio := 0.01
	cfg := DefaultConfig()
	cfg.WsStalePriceRatio = &stalePriceRatio

	cancelCalled := false
	xchg := &stubExchange{
		cancelSpotOrder: func(ctx context.Context, symbol, orderID string) error {
			cancelCalled = true
			return nil
		},
	}

	ask := fp(t, "99.10")
	bid := fp(t, "99.00")
	msg := types.WebSocketMessage{
		Kind:   types.MessageOrderBookL2,
		Symbol: "BTCUSDT",
		Bids:   []types.OrderbookLevel{{Price: bid, Quantity: fp(t, "5")}},
		Asks:   []types.OrderbookLevel{{Price: ask, Quantity: fp(t, "5")}},
	}

	err := HandleMessage(context.Background(), xchg, cfg, state, nil, msg)
	require.NoError(t, err)
	assert.False(t, cancelCalled)
	assert.Equal(t, StatusRunningChunk, state.Status.Kind)
}

// A fill update on the hedge's spot leg must retarget
// TargetTotalFuturesValue to the actual cumulative spot value, since the
// futures leg's target tracks what the spot leg actually bought rather
// than a static initial estimate.
func TestHandleOrderUpdate_HedgeRetargetsFuturesValueOnSpotFill(t *testing.T) {
	state := newTestState(t)
	state.Status = runningChunk(1)
	state.ActiveSpotOrder = newChunkOrderState("S1", "BTCUSDT", types.SideBuy, fp(t, "2000"), fp(t, "1"))

	cfg := DefaultConfig()
	msg := types.WebSocketMessage{
		Kind: types.MessageOrderUpdate,
		OrderUpdate: types.DetailedOrderStatus{
			OrderID:                 "S1",
			FilledQuantity:          fp(t, "0.5"),
			CumulativeExecutedValue: fp(t, "1000"),
			AveragePrice:            fp(t, "2000"),
			Status:                  types.OrderStatusPartiallyFilled,
		},
	}

	err := HandleMessage(context.Background(), &stubExchange{}, cfg, state, nil, msg)
	require.NoError(t, err)

	assertQty(t, "1000", state.CumulativeSpotFilledValue)
	assertQty(t, "1000", state.TargetTotalFuturesValue)
	assertQty(t, "0.5", state.CumulativeSpotFilledQuantity)
	require.NotNil(t, state.ActiveSpotOrder, "order not yet terminal; slot stays active")

	// The retarget must actually flow into sizing decisions, not just sit
	// in the field: overallTargets' futures quantity should now be derived
	// from TargetTotalFuturesValue (1000) over the futures market mid-price
	// (ask 2000 / bid 1999 -> 1999.5), giving ~0.5 futures qty, not the
	// static plan's InitialTargetFuturesQty of 1.
	_, futuresQtyTarget := overallTargets(state)
	assert.True(t, futuresQtyTarget.LessThan(fp(t, "0.6")),
		"futures target should follow the retargeted value (~0.5), not the static plan estimate (1); got %s", futuresQtyTarget.String())
	assert.True(t, futuresQtyTarget.GreaterThan(fp(t, "0.4")),
		"futures target should follow the retargeted value (~0.5); got %s", futuresQtyTarget.String())
}
