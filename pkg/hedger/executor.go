package hedger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thedr-lul/hedgehog/pkg/exchange"
	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

const placementTolerance = "1e-12"

var placementToleranceValue, _ = fixedpoint.NewFromString(placementTolerance)

// legSide returns the side each leg trades on for the operation type:
// hedge buys spot and sells futures; unhedge sells spot and buys futures.
func legSide(opType OperationType, leg Leg) types.Side {
	switch {
	case opType == OperationHedge && leg == LegSpot:
		return types.SideBuy
	case opType == OperationHedge && leg == LegFutures:
		return types.SideSell
	case opType == OperationUnhedge && leg == LegSpot:
		return types.SideSell
	default: // OperationUnhedge, LegFutures
		return types.SideBuy
	}
}

func calculateLimitPriceForLeg(state *OperationState, cfg Config, leg Leg) (fixedpoint.Value, error) {
	var marketData types.MarketUpdate
	var tickSize fixedpoint.Value
	side := legSide(state.OperationType, leg)
	switch leg {
	case LegSpot:
		marketData = state.SpotMarketData
		tickSize = state.SpotMarket.TickSize
	default:
		marketData = state.FuturesMarketData
		tickSize = state.FuturesMarket.TickSize
	}

	var referencePrice fixedpoint.Value
	switch side {
	case types.SideBuy:
		if marketData.BestAskPrice == nil {
			return fixedpoint.Zero, errors.Errorf("no best ask price available for %s", leg)
		}
		referencePrice = *marketData.BestAskPrice
	default:
		if marketData.BestBidPrice == nil {
			return fixedpoint.Zero, errors.Errorf("no best bid price available for %s", leg)
		}
		referencePrice = *marketData.BestBidPrice
	}

	switch cfg.WsLimitOrderPlacementStrategy {
	case BestAskBid:
		return referencePrice, nil
	default: // OneTickInside
		if side == types.SideBuy {
			return referencePrice.Sub(tickSize).Max(tickSize), nil
		}
		return referencePrice.Add(tickSize), nil
	}
}

func currentPriceForLeg(state *OperationState, leg Leg) (fixedpoint.Value, bool) {
	switch leg {
	case LegSpot:
		return state.SpotMarketData.MidPrice()
	default:
		return state.FuturesMarketData.MidPrice()
	}
}

func chunkCompletion(state *OperationState) bool {
	return state.ActiveSpotOrder == nil && state.ActiveFuturesOrder == nil
}

// StartNextChunk places the two legs of the current chunk, futures first
// then spot. If the spot leg fails to place after the futures leg
// succeeded, the futures order is rolled back (cancelled) so no one-sided
// exposure survives the failure.
func StartNextChunk(ctx context.Context, xchg exchange.Exchange, cfg Config, state *OperationState, progress ProgressCallback) error {
	var chunkIndex uint32
	switch state.Status.Kind {
	case StatusStartingChunk:
		chunkIndex = state.Status.ChunkIndex
	case StatusRunningChunk:
		logrus.WithField("operation_id", state.OperationID).Warn("StartNextChunk called while a chunk is already running")
		return nil
	default:
		return errors.Errorf("StartNextChunk called in unexpected state: %s", state.Status)
	}

	logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "chunk_index": chunkIndex}).Info("starting chunk placement")
	state.ActiveSpotOrder = nil
	state.ActiveFuturesOrder = nil

	isLastChunk := chunkIndex == state.TotalChunks

	var spotQuantityChunk, futuresQuantityChunk fixedpoint.Value
	if isLastChunk {
		spotTarget, futTarget := overallTargets(state)
		spotQuantityChunk = spotTarget.Sub(state.CumulativeSpotFilledQuantity).Max(fixedpoint.Zero)
		futuresQuantityChunk = futTarget.Sub(state.CumulativeFuturesFilledQuantity).Max(fixedpoint.Zero)
	} else {
		spotQuantityChunk = state.ChunkBaseQuantitySpot
		futuresQuantityChunk = state.ChunkBaseQuantityFutures
	}

	spotQuantityRounded := emitQuantity(spotQuantityChunk, state.SpotMarket)
	futuresQuantityRounded := emitQuantity(futuresQuantityChunk, state.FuturesMarket)

	placeSpot := spotQuantityRounded.GreaterThanOrEqual(state.SpotMarket.MinQuantity) || spotQuantityRounded.LessThan(placementToleranceValue)
	placeFutures := futuresQuantityRounded.GreaterThanOrEqual(state.FuturesMarket.MinQuantity) || futuresQuantityRounded.LessThan(placementToleranceValue)

	spotPriceEstimate, ok := currentPriceForLeg(state, LegSpot)
	if !ok {
		spotPriceEstimate = fixedpoint.One
	}
	spotNotionalOK := true
	if state.SpotMarket.MinNotional != nil {
		val := spotQuantityRounded.Mul(spotPriceEstimate)
		spotNotionalOK = val.GreaterThanOrEqual(*state.SpotMarket.MinNotional) || spotQuantityRounded.LessThan(placementToleranceValue)
	}
	futuresPriceEstimate, ok := currentPriceForLeg(state, LegFutures)
	if !ok {
		futuresPriceEstimate = spotPriceEstimate
	}
	futuresNotionalOK := true
	if state.FuturesMarket.MinNotional != nil {
		val := futuresQuantityRounded.Mul(futuresPriceEstimate)
		futuresNotionalOK = val.GreaterThanOrEqual(*state.FuturesMarket.MinNotional) || futuresQuantityRounded.LessThan(placementToleranceValue)
	}

	if (!placeSpot || !spotNotionalOK) && (!placeFutures || !futuresNotionalOK) {
		logrus.WithFields(logrus.Fields{
			"operation_id": state.OperationID, "chunk_index": chunkIndex,
			"spot_qty": spotQuantityRounded.String(), "futures_qty": futuresQuantityRounded.String(),
		}).Warn("both legs below minimums or notionals; skipping chunk")
		advanceAfterEmptyChunk(state, chunkIndex, isLastChunk)
		return nil
	}

	var spotLimitPrice, futuresLimitPrice *fixedpoint.Value
	if placeSpot && spotNotionalOK {
		p, err := calculateLimitPriceForLeg(state, cfg, LegSpot)
		if err != nil {
			return errors.Wrap(ErrMarket, err.Error())
		}
		spotLimitPrice = &p
	}
	if placeFutures && futuresNotionalOK {
		p, err := calculateLimitPriceForLeg(state, cfg, LegFutures)
		if err != nil {
			return errors.Wrap(ErrMarket, err.Error())
		}
		futuresLimitPrice = &p
	}

	var placedSpot, placedFutures *ChunkOrderState
	var spotPlaceErr, futuresPlaceErr error

	if futuresLimitPrice != nil {
		state.Status = placingFutures(chunkIndex)
		side := legSide(state.OperationType, LegFutures)
		order, err := xchg.PlaceFuturesLimitOrder(ctx, state.SymbolFutures, side, futuresQuantityRounded, *futuresLimitPrice)
		if err != nil {
			futuresPlaceErr = errors.Wrap(err, "failed to place futures order")
		} else {
			placedFutures = newChunkOrderState(order.ID, state.SymbolFutures, side, *futuresLimitPrice, futuresQuantityRounded)
		}
	}

	if futuresPlaceErr == nil && spotLimitPrice != nil {
		state.Status = placingSpot(chunkIndex)
		side := legSide(state.OperationType, LegSpot)
		order, err := xchg.PlaceLimitOrder(ctx, state.SymbolSpot, side, spotQuantityRounded, *spotLimitPrice)
		if err != nil {
			spotPlaceErr = errors.Wrap(err, "failed to place spot order")
			var rollbackErr error
			placedFutures, rollbackErr = rollbackFutures(ctx, xchg, state, placedFutures)
			if rollbackErr != nil {
				spotPlaceErr = errors.Wrapf(spotPlaceErr, "futures rollback cancel also failed: %v", rollbackErr)
			}
		} else {
			placedSpot = newChunkOrderState(order.ID, state.SymbolSpot, side, *spotLimitPrice, spotQuantityRounded)
		}
	}

	if err := spotPlaceErr; err != nil {
		state.Status = failed(errors.Wrapf(err, "chunk %d placement error", chunkIndex).Error())
		return errors.Wrap(ErrPlacement, err.Error())
	}
	if err := futuresPlaceErr; err != nil {
		state.Status = failed(errors.Wrapf(err, "chunk %d placement error", chunkIndex).Error())
		return errors.Wrap(ErrPlacement, err.Error())
	}

	state.ActiveSpotOrder = placedSpot
	state.ActiveFuturesOrder = placedFutures
	if state.ActiveSpotOrder != nil || state.ActiveFuturesOrder != nil {
		state.CurrentChunkIndex = chunkIndex + 1
		state.Status = runningChunk(chunkIndex)
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "chunk_index": chunkIndex}).Info("chunk placement finished")
		sendProgress(progress, state)
	} else {
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "chunk_index": chunkIndex}).Warn("no orders were placed for this chunk")
		advanceAfterEmptyChunk(state, chunkIndex, isLastChunk)
	}

	return nil
}

func advanceAfterEmptyChunk(state *OperationState, chunkIndex uint32, isLastChunk bool) {
	if isLastChunk {
		state.Status = Status{Kind: StatusReconciling}
		return
	}
	next := chunkIndex + 1
	state.CurrentChunkIndex = next
	state.Status = startingChunk(next)
}

// emitQuantity rounds a sizing target down to the market's quantity step
// and truncates to the step string's derived decimal places, so the size
// actually sent to the venue never carries more precision than the
// instrument declares.
func emitQuantity(qty fixedpoint.Value, market types.Market) fixedpoint.Value {
	rounded := fixedpoint.RoundDownStep(qty, market.QuantityStep)
	if market.QuantityPrecision > 0 {
		rounded = rounded.RoundDown(market.QuantityPrecision)
	}
	return rounded
}

// rollbackFutures cancels a just-placed futures order when the paired spot
// placement failed, so the chunk never leaves one leg exposed alone. Both
// cancel outcomes are recorded: success clears the order, failure returns
// it along with the cancel error so the caller can fold it into the
// chunk's failure message.
func rollbackFutures(ctx context.Context, xchg exchange.Exchange, state *OperationState, futuresOrder *ChunkOrderState) (*ChunkOrderState, error) {
	if futuresOrder == nil {
		return nil, nil
	}
	logrus.WithFields(logrus.Fields{
		"operation_id": state.OperationID, "order_id": futuresOrder.OrderID,
	}).Warn("attempting to cancel futures order due to spot placement failure")
	if err := xchg.CancelFuturesOrder(ctx, state.SymbolFutures, futuresOrder.OrderID); err != nil {
		logrus.WithFields(logrus.Fields{
			"operation_id": state.OperationID, "order_id": futuresOrder.OrderID, "error": err,
		}).Error("failed to cancel futures order after spot failure")
		return futuresOrder, err
	}
	logrus.WithFields(logrus.Fields{
		"operation_id": state.OperationID, "order_id": futuresOrder.OrderID,
	}).Info("futures order cancelled successfully after spot failure")
	return nil, nil
}

// overallTargets returns the operation's total spot and futures quantity
// targets, regardless of operation type (hedge stores a spot value in
// InitialTargetSpotValue, which this function converts to a quantity;
// unhedge stores a quantity directly). StartNextChunk only needs the
// unhedge-style "quantity"
// semantics for the last-chunk remainder calc, so for hedge we derive an
// equivalent quantity target from cumulative fills plus the live plan.
//
// For hedge, the futures quantity target is derived from
// state.TargetTotalFuturesValue rather than the static planning-time
// InitialTargetFuturesQty: TargetTotalFuturesValue is retargeted to the
// cumulative spot filled value on every spot fill, so the futures leg
// tracks actual spot outlay instead of the initial estimate.
func overallTargets(state *OperationState) (spotQty, futuresQty fixedpoint.Value) {
	if state.OperationType == OperationUnhedge {
		return state.InitialTargetSpotValue, state.InitialTargetFuturesQty.Abs()
	}

	// Hedge: InitialTargetSpotValue is a quote-currency value; convert to a
	// quantity target using the leg's own cumulative average so the final
	// chunk closes the plan without re-fetching a price.
	if state.CumulativeSpotFilledQuantity.IsPositive() && state.CumulativeSpotFilledValue.IsPositive() {
		avgSpotPrice := state.CumulativeSpotFilledValue.Div(state.CumulativeSpotFilledQuantity)
		spotQty = state.InitialTargetSpotValue.Div(avgSpotPrice)
	} else {
		spotQty = state.ChunkBaseQuantitySpot.Mul(fixedpoint.NewFromInt(int64(state.TotalChunks)))
	}

	if futuresPrice, ok := currentFuturesReferencePrice(state); ok {
		futuresQty = state.TargetTotalFuturesValue.Div(futuresPrice)
	} else {
		futuresQty = state.InitialTargetFuturesQty.Abs()
	}
	return spotQty, futuresQty
}

// currentFuturesReferencePrice picks the best available price to convert
// TargetTotalFuturesValue into a quantity: the futures leg's own cumulative
// average fill price if any futures fills have landed, else the live
// market mid-price.
func currentFuturesReferencePrice(state *OperationState) (fixedpoint.Value, bool) {
	if state.CumulativeFuturesFilledQuantity.IsPositive() && state.CumulativeFuturesFilledValue.IsPositive() {
		return state.CumulativeFuturesFilledValue.Div(state.CumulativeFuturesFilledQuantity), true
	}
	return currentPriceForLeg(state, LegFutures)
}
