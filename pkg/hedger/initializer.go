package hedger

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/thedr-lul/hedgehog/pkg/exchange"
	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// InitializeHedge builds the OperationState for opening a new hedge: it
// concurrently fetches instrument specs, the quote-currency balance, and
// current prices, clamps the spot target to what the available balance
// can actually buy, runs the chunk planner, and returns a task ready to
// enter StartingChunk(1).
func InitializeHedge(
	ctx context.Context,
	cfg Config,
	xchg exchange.Exchange,
	operationID int64,
	baseSymbol string,
	targetSpotValue fixedpoint.Value,
	targetFuturesQuantity fixedpoint.Value,
) (*OperationState, error) {
	base := strings.ToUpper(baseSymbol)
	spotSymbol := base + cfg.QuoteCurrency
	futuresSymbol := base + cfg.QuoteCurrency

	logrus.WithFields(logrus.Fields{"operation_id": operationID, "symbol_spot": spotSymbol}).Info("initializing hedge task")

	if !targetSpotValue.IsPositive() || targetFuturesQuantity.Abs().IsZero() {
		return nil, newInitError(errors.Errorf(
			"original operation quantities are zero or negative: spot_value=%s futures_qty=%s",
			targetSpotValue.String(), targetFuturesQuantity.Abs().String()))
	}

	var spotInfo, linearInfo, currentSpotPrice, currentFuturesPrice fixedpointAndMarket
	var quoteBalance exchange.Balance

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		spotInfo.market, err = xchg.GetSpotInstrumentInfo(gctx, base)
		return errors.Wrap(err, "get spot instrument info")
	})
	g.Go(func() (err error) {
		linearInfo.market, err = xchg.GetLinearInstrumentInfo(gctx, base)
		return errors.Wrap(err, "get linear instrument info")
	})
	g.Go(func() (err error) {
		quoteBalance, err = xchg.GetBalance(gctx, cfg.QuoteCurrency)
		return errors.Wrap(err, "get quote currency balance")
	})
	g.Go(func() (err error) {
		currentSpotPrice.value, err = xchg.GetSpotPrice(gctx, base)
		return errors.Wrap(err, "get current spot price")
	})
	g.Go(func() (err error) {
		currentFuturesPrice.value, err = xchg.GetMarketPrice(gctx, futuresSymbol, false)
		return errors.Wrap(err, "get current futures price")
	})
	if err := g.Wait(); err != nil {
		return nil, newInitError(err)
	}

	if !currentSpotPrice.value.IsPositive() || !currentFuturesPrice.value.IsPositive() {
		return nil, newInitError(errors.New("spot or futures price is non-positive"))
	}

	actualTargetSpotValue := targetSpotValue
	availableQuote := quoteBalance.Free
	if availableQuote.LessThan(targetSpotValue) {
		logrus.WithFields(logrus.Fields{
			"operation_id": operationID,
			"target":       targetSpotValue.String(),
			"available":    availableQuote.String(),
		}).Warn("available quote balance is less than target spot value for hedge; adjusting target")
		actualTargetSpotValue = availableQuote
	}

	targetSpotQuantity := actualTargetSpotValue.Div(currentSpotPrice.value)
	if targetSpotQuantity.LessThan(spotInfo.market.MinQuantity) {
		return nil, newInitError(errors.Errorf(
			"available quote balance (%s) buys less than the minimum order quantity (%s) for %s; cannot hedge",
			actualTargetSpotValue.String(), spotInfo.market.MinQuantity.String(), spotSymbol))
	}

	plan, err := CalculateAutoChunkParameters(
		targetSpotQuantity,
		targetFuturesQuantity.Abs(),
		currentSpotPrice.value,
		currentFuturesPrice.value,
		cfg.WsAutoChunkTargetCount,
		spotInfo.market.MinQuantity,
		linearInfo.market.MinQuantity,
		spotInfo.market.QuantityStep,
		linearInfo.market.QuantityStep,
		spotInfo.market.MinNotional,
		linearInfo.market.MinNotional,
	)
	if err != nil {
		return nil, newInitError(err)
	}
	logrus.WithFields(logrus.Fields{
		"operation_id":        operationID,
		"final_chunk_count":   plan.ChunkCount,
		"chunk_spot_qty":      plan.ChunkSpotQuantity.String(),
		"chunk_futures_qty":   plan.ChunkFuturesQuantity.String(),
	}).Info("hedge chunk parameters calculated")

	state := NewHedgeState(operationID, spotSymbol, futuresSymbol, actualTargetSpotValue, targetFuturesQuantity, targetSpotValue)
	state.SpotMarket = spotInfo.market
	state.FuturesMarket = linearInfo.market
	state.TotalChunks = plan.ChunkCount
	state.ChunkBaseQuantitySpot = plan.ChunkSpotQuantity
	state.ChunkBaseQuantityFutures = plan.ChunkFuturesQuantity
	state.Status = startingChunk(1)

	logrus.WithField("operation_id", operationID).Info("hedge task initialized successfully")
	return state, nil
}

// InitializeUnhedge builds the OperationState for closing a prior hedge.
// It clamps the spot sell target to the currently available base-asset
// balance, since that balance may have changed since the hedge completed.
func InitializeUnhedge(
	ctx context.Context,
	cfg Config,
	xchg exchange.Exchange,
	operationID int64,
	baseSymbol string,
	originalSpotFilledQuantity fixedpoint.Value,
	targetFuturesBuyQuantity fixedpoint.Value,
) (*OperationState, error) {
	base := strings.ToUpper(baseSymbol)
	spotSymbol := base + cfg.QuoteCurrency
	futuresSymbol := base + cfg.QuoteCurrency

	logrus.WithFields(logrus.Fields{"operation_id": operationID, "symbol_spot": spotSymbol}).Info("initializing unhedge task")

	if !originalSpotFilledQuantity.IsPositive() || targetFuturesBuyQuantity.Abs().IsZero() {
		return nil, newInitError(errors.Errorf(
			"original operation quantities are zero or negative: spot=%s futures=%s",
			originalSpotFilledQuantity.String(), targetFuturesBuyQuantity.Abs().String()))
	}

	var spotInfo, linearInfo, currentSpotPrice, currentFuturesPrice fixedpointAndMarket
	var spotBalance exchange.Balance

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		spotInfo.market, err = xchg.GetSpotInstrumentInfo(gctx, base)
		return errors.Wrap(err, "get spot instrument info")
	})
	g.Go(func() (err error) {
		linearInfo.market, err = xchg.GetLinearInstrumentInfo(gctx, base)
		return errors.Wrap(err, "get linear instrument info")
	})
	g.Go(func() (err error) {
		spotBalance, err = xchg.GetBalance(gctx, base)
		return errors.Wrap(err, "get spot balance")
	})
	g.Go(func() (err error) {
		currentSpotPrice.value, err = xchg.GetSpotPrice(gctx, base)
		return errors.Wrap(err, "get current spot price")
	})
	g.Go(func() (err error) {
		currentFuturesPrice.value, err = xchg.GetMarketPrice(gctx, futuresSymbol, false)
		return errors.Wrap(err, "get current futures price")
	})
	if err := g.Wait(); err != nil {
		return nil, newInitError(err)
	}

	if !currentSpotPrice.value.IsPositive() || !currentFuturesPrice.value.IsPositive() {
		return nil, newInitError(errors.New("spot or futures price is non-positive for unhedge"))
	}

	actualSpotSellTarget := originalSpotFilledQuantity
	if spotBalance.Free.LessThan(originalSpotFilledQuantity) {
		logrus.WithFields(logrus.Fields{
			"operation_id": operationID,
			"target":       originalSpotFilledQuantity.String(),
			"available":    spotBalance.Free.String(),
		}).Warn("available spot balance is less than target sell quantity for unhedge; adjusting target")
		actualSpotSellTarget = spotBalance.Free
	}
	if actualSpotSellTarget.LessThan(spotInfo.market.MinQuantity) {
		return nil, newInitError(errors.Errorf(
			"available spot balance (%s) is less than minimum order quantity (%s) for %s; cannot unhedge",
			actualSpotSellTarget.String(), spotInfo.market.MinQuantity.String(), spotSymbol))
	}

	initialSpotValueEstimate := actualSpotSellTarget.Mul(currentSpotPrice.value)

	plan, err := CalculateAutoChunkParameters(
		actualSpotSellTarget,
		targetFuturesBuyQuantity.Abs(),
		currentSpotPrice.value,
		currentFuturesPrice.value,
		cfg.WsAutoChunkTargetCount,
		spotInfo.market.MinQuantity,
		linearInfo.market.MinQuantity,
		spotInfo.market.QuantityStep,
		linearInfo.market.QuantityStep,
		spotInfo.market.MinNotional,
		linearInfo.market.MinNotional,
	)
	if err != nil {
		return nil, newInitError(err)
	}
	logrus.WithFields(logrus.Fields{
		"operation_id":      operationID,
		"final_chunk_count": plan.ChunkCount,
		"chunk_spot_qty":    plan.ChunkSpotQuantity.String(),
		"chunk_futures_qty": plan.ChunkFuturesQuantity.String(),
	}).Info("unhedge chunk parameters calculated")

	state := NewUnhedgeState(operationID, spotSymbol, futuresSymbol, actualSpotSellTarget, targetFuturesBuyQuantity, initialSpotValueEstimate)
	state.SpotMarket = spotInfo.market
	state.FuturesMarket = linearInfo.market
	state.TotalChunks = plan.ChunkCount
	state.ChunkBaseQuantitySpot = plan.ChunkSpotQuantity
	state.ChunkBaseQuantityFutures = plan.ChunkFuturesQuantity
	state.Status = startingChunk(1)

	logrus.WithField("operation_id", operationID).Info("unhedge task initialized successfully")
	return state, nil
}

type fixedpointAndMarket struct {
	market types.Market
	value  fixedpoint.Value
}
