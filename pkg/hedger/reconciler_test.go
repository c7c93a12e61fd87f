package hedger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/storage"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// stubStore is a minimal storage.Store double recording the last terminal
// record it was asked to persist and whether the original hedge was marked
// unhedged.
type stubStore struct {
	updateTerminalErr error
	markUnhedgedErr   error

	lastRecord       storage.OperationRecord
	markedUnhedgedID int64
}

func (s *stubStore) MarkHedgeAsUnhedged(_ context.Context, operationID int64) error {
	s.markedUnhedgedID = operationID
	return s.markUnhedgedErr
}

func (s *stubStore) UpdateTerminal(_ context.Context, rec storage.OperationRecord) error {
	s.lastRecord = rec
	return s.updateTerminalErr
}

func (s *stubStore) GetOperation(context.Context, int64) (storage.OperationRecord, error) {
	return storage.OperationRecord{}, nil
}

func reconcilerTestState(t *testing.T) *OperationState {
	t.Helper()
	state := NewHedgeState(42, "BTCUSDT", "BTCUSDT", fixedpoint.NewFromFloat(1000), fixedpoint.NewFromFloat(0.5), fixedpoint.NewFromFloat(1000))
	state.SpotMarket = types.Market{QuantityStep: fixedpoint.NewFromFloat(0.001), MinQuantity: fixedpoint.NewFromFloat(0.001)}
	state.FuturesMarket = types.Market{QuantityStep: fixedpoint.NewFromFloat(0.001), MinQuantity: fixedpoint.NewFromFloat(0.001)}
	state.TotalChunks = 10
	state.ChunkBaseQuantitySpot = fixedpoint.NewFromFloat(0.05)
	state.ChunkBaseQuantityFutures = fixedpoint.NewFromFloat(0.05)
	// Simulate every chunk having filled except a residual gap on each leg.
	state.CumulativeSpotFilledQuantity = fixedpoint.NewFromFloat(0.45)
	state.CumulativeSpotFilledValue = fixedpoint.NewFromFloat(900)
	state.CumulativeFuturesFilledQuantity = fixedpoint.NewFromFloat(0.47)
	state.CumulativeFuturesFilledValue = fixedpoint.NewFromFloat(940)
	// Mirrors the live retarget handleOrderUpdate applies on every spot
	// fill: the futures value target tracks actual cumulative spot outlay,
	// not the planning-time estimate.
	state.TargetTotalFuturesValue = state.CumulativeSpotFilledValue
	return state
}

func TestReconcile_ClosesResidualImbalanceWithMarketOrders(t *testing.T) {
	state := reconcilerTestState(t)
	cfg := DefaultConfig()
	cfg.ReconciliationSettleDelay = 0
	cfg.QuoteCurrency = "USDT"

	var spotSide, futuresSide types.Side
	var spotQty, futuresQty fixedpoint.Value
	xchg := &stubExchange{
		placeSpotMarketOrder: func(_ context.Context, baseSymbol string, side types.Side, qty fixedpoint.Value) (types.Order, error) {
			assert.Equal(t, "BTC", baseSymbol)
			spotSide, spotQty = side, qty
			return types.Order{ID: "spot-recon-1"}, nil
		},
		placeFuturesMarketOrder: func(_ context.Context, symbol string, side types.Side, qty fixedpoint.Value) (types.Order, error) {
			assert.Equal(t, "BTCUSDT", symbol)
			futuresSide, futuresQty = side, qty
			return types.Order{ID: "fut-recon-1"}, nil
		},
	}
	store := &stubStore{}

	err := Reconcile(context.Background(), xchg, store, cfg, state, Status{Kind: StatusCompleted})
	require.NoError(t, err)

	// Spot target is recomputed by overallTargets using the cumulative
	// average fill price (900/0.45 = 2000), giving 1000/2000 = 0.5 total
	// spot qty target; residual = 0.5 - 0.45 = 0.05.
	assert.Equal(t, types.SideBuy, spotSide)
	assert.True(t, spotQty.Sub(fixedpoint.NewFromFloat(0.05)).Abs().LessThan(fixedpoint.NewFromFloat(0.0001)))

	// Futures target tracks the retargeted TargetTotalFuturesValue (900,
	// mirroring cumulative spot outlay) over the cumulative average futures
	// fill price (940/0.47 = 2000), giving 900/2000 = 0.45 total futures qty
	// target — less than the 0.47 already filled, so the residual closes
	// with a buy-back rather than the static-estimate's sell.
	assert.Equal(t, types.SideBuy, futuresSide)
	assert.True(t, futuresQty.Sub(fixedpoint.NewFromFloat(0.02)).Abs().LessThan(fixedpoint.NewFromFloat(0.0001)))

	assert.Equal(t, StatusCompleted, state.Status.Kind)
	assert.Equal(t, "Completed", store.lastRecord.Status)
	assert.Equal(t, int64(0), store.markedUnhedgedID, "hedge completion must not mark anything unhedged")
}

// TestReconcile_FuturesTargetTracksRetargetedValue pins the wiring this
// fixes: with the live retarget disabled (TargetTotalFuturesValue left at
// its planning-time default), the futures residual would instead be sized
// off the static InitialTargetFuturesQty. This asserts the retargeted value
// actually drives the reconciliation quantity, not just that the field gets
// set somewhere.
func TestReconcile_FuturesTargetTracksRetargetedValue(t *testing.T) {
	state := reconcilerTestState(t)
	// Simulate a much larger spot outlay than planned landing before the
	// futures leg catches up: the retargeted futures value target should
	// follow it, not the static plan.
	state.TargetTotalFuturesValue = fixedpoint.NewFromFloat(1880) // 2x CumulativeFuturesFilledValue

	cfg := DefaultConfig()
	cfg.ReconciliationSettleDelay = 0

	var futuresQty fixedpoint.Value
	var futuresSide types.Side
	xchg := &stubExchange{
		placeSpotMarketOrder: func(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
			return types.Order{ID: "spot-recon-2"}, nil
		},
		placeFuturesMarketOrder: func(_ context.Context, _ string, side types.Side, qty fixedpoint.Value) (types.Order, error) {
			futuresSide, futuresQty = side, qty
			return types.Order{ID: "fut-recon-2"}, nil
		},
	}
	store := &stubStore{}

	err := Reconcile(context.Background(), xchg, store, cfg, state, Status{Kind: StatusCompleted})
	require.NoError(t, err)

	// Futures target = 1880 / (940/0.47 = 2000) = 0.94; residual = 0.94 -
	// 0.47 = 0.47, far larger than the 0.03 the static plan estimate would
	// have produced (0.5 - 0.47).
	assert.Equal(t, types.SideSell, futuresSide)
	assert.True(t, futuresQty.Sub(fixedpoint.NewFromFloat(0.47)).Abs().LessThan(fixedpoint.NewFromFloat(0.0001)),
		"expected futures residual to follow the retargeted value, got %s", futuresQty.String())
}

func TestReconcile_SkipsDustBelowMinQuantity(t *testing.T) {
	state := reconcilerTestState(t)
	// Push fills to within dust of the plan on both legs.
	state.CumulativeSpotFilledQuantity = fixedpoint.NewFromFloat(0.4999)
	state.CumulativeSpotFilledValue = fixedpoint.NewFromFloat(999.8)
	state.CumulativeFuturesFilledQuantity = fixedpoint.NewFromFloat(0.4999)
	state.CumulativeFuturesFilledValue = fixedpoint.NewFromFloat(999.8)
	state.TargetTotalFuturesValue = state.CumulativeSpotFilledValue
	state.SpotMarket.MinQuantity = fixedpoint.NewFromFloat(0.01)
	state.FuturesMarket.MinQuantity = fixedpoint.NewFromFloat(0.01)

	cfg := DefaultConfig()
	cfg.ReconciliationSettleDelay = 0

	placedOrder := false
	xchg := &stubExchange{
		placeSpotMarketOrder: func(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
			placedOrder = true
			return types.Order{}, nil
		},
		placeFuturesMarketOrder: func(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
			placedOrder = true
			return types.Order{}, nil
		},
	}
	store := &stubStore{}

	err := Reconcile(context.Background(), xchg, store, cfg, state, Status{Kind: StatusCompleted})
	require.NoError(t, err)
	assert.False(t, placedOrder, "a sub-min-qty residual must be skipped as dust, not placed")
	assert.Equal(t, StatusCompleted, state.Status.Kind)
}

func TestReconcile_UnhedgeMarksOriginalHedgeAsUnhedged(t *testing.T) {
	state := NewUnhedgeState(7, "ETHUSDT", "ETHUSDT", fixedpoint.NewFromFloat(1.0), fixedpoint.NewFromFloat(1.0), fixedpoint.NewFromFloat(2000))
	state.SpotMarket = types.Market{QuantityStep: fixedpoint.NewFromFloat(0.001), MinQuantity: fixedpoint.NewFromFloat(0.001)}
	state.FuturesMarket = types.Market{QuantityStep: fixedpoint.NewFromFloat(0.001), MinQuantity: fixedpoint.NewFromFloat(0.001)}
	state.TotalChunks = 1
	state.CumulativeSpotFilledQuantity = fixedpoint.NewFromFloat(1.0)
	state.CumulativeFuturesFilledQuantity = fixedpoint.NewFromFloat(1.0)

	cfg := DefaultConfig()
	cfg.ReconciliationSettleDelay = 0
	xchg := &stubExchange{}
	store := &stubStore{}

	err := Reconcile(context.Background(), xchg, store, cfg, state, Status{Kind: StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(7), store.markedUnhedgedID)
	assert.True(t, store.lastRecord.Unhedged)
}

// A cancelled unhedge still closes out the position via the market-order
// reconciliation above, so the original hedge must be marked unhedged even
// though the terminal status is Cancelled rather than Completed.
func TestReconcile_CancelledUnhedgeStillMarksOriginalHedgeAsUnhedged(t *testing.T) {
	state := NewUnhedgeState(9, "ETHUSDT", "ETHUSDT", fixedpoint.NewFromFloat(1.0), fixedpoint.NewFromFloat(1.0), fixedpoint.NewFromFloat(2000))
	state.SpotMarket = types.Market{QuantityStep: fixedpoint.NewFromFloat(0.001), MinQuantity: fixedpoint.NewFromFloat(0.001)}
	state.FuturesMarket = types.Market{QuantityStep: fixedpoint.NewFromFloat(0.001), MinQuantity: fixedpoint.NewFromFloat(0.001)}
	state.TotalChunks = 2
	// Cancelled midway: half the target filled; the residual closes with
	// market orders before the terminal record is written.
	state.CumulativeSpotFilledQuantity = fixedpoint.NewFromFloat(0.5)
	state.CumulativeFuturesFilledQuantity = fixedpoint.NewFromFloat(0.5)

	cfg := DefaultConfig()
	cfg.ReconciliationSettleDelay = 0
	xchg := &stubExchange{
		placeSpotMarketOrder: func(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
			return types.Order{ID: "spot-recon-3"}, nil
		},
		placeFuturesMarketOrder: func(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
			return types.Order{ID: "fut-recon-3"}, nil
		},
	}
	store := &stubStore{}

	err := Reconcile(context.Background(), xchg, store, cfg, state, Status{Kind: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, int64(9), store.markedUnhedgedID)
	assert.Equal(t, StatusCancelled, state.Status.Kind)
	assert.Equal(t, "Cancelled", store.lastRecord.Status)
}

func TestReconcile_MarketOrderFailureStillPersistsTerminalStatus(t *testing.T) {
	state := reconcilerTestState(t)
	cfg := DefaultConfig()
	cfg.ReconciliationSettleDelay = 0

	xchg := &stubExchange{
		placeSpotMarketOrder: func(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
			return types.Order{}, assert.AnError
		},
		placeFuturesMarketOrder: func(context.Context, string, types.Side, fixedpoint.Value) (types.Order, error) {
			return types.Order{}, assert.AnError
		},
	}
	store := &stubStore{}

	err := Reconcile(context.Background(), xchg, store, cfg, state, Status{Kind: StatusCompleted})
	require.NoError(t, err, "reconciliation failures are logged, not propagated")
	assert.Equal(t, StatusCompleted, state.Status.Kind)
	assert.Equal(t, "Completed", store.lastRecord.Status)
}
