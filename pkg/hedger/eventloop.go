package hedger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thedr-lul/hedgehog/pkg/exchange"
	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// HandleMessage dispatches one inbound WebSocket message.
func HandleMessage(ctx context.Context, xchg exchange.Exchange, cfg Config, state *OperationState, progress ProgressCallback, msg types.WebSocketMessage) error {
	switch msg.Kind {
	case types.MessageOrderUpdate:
		if state.Status.Kind == StatusWaitingCancelConfirmation && msg.OrderUpdate.OrderID == state.Status.OrderID {
			leg := state.Status.Leg
			logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "order_id": msg.OrderUpdate.OrderID}).
				Info("received update for order pending cancellation")
			handleOrderUpdate(state, cfg, progress, msg.OrderUpdate)

			orderInactive := activeOrderForLeg(state, leg) == nil
			if state.Status.Kind == StatusWaitingCancelConfirmation && orderInactive {
				return handleCancelConfirmation(ctx, xchg, cfg, state, state.Status.OrderID, leg)
			}
			return nil
		}
		handleOrderUpdate(state, cfg, progress, msg.OrderUpdate)
		return nil

	case types.MessageOrderBookL2:
		handleOrderBookUpdate(state, msg)
		return checkStaleOrders(ctx, xchg, cfg, state)

	case types.MessagePublicTrade:
		logrus.WithFields(logrus.Fields{
			"operation_id": state.OperationID, "symbol": msg.Symbol,
		}).Trace("public trade received during operation; currently ignored")
		return nil

	case types.MessageError:
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "error": msg.ErrorMessage}).
			Warn("received error message from websocket stream")
		return nil

	case types.MessageDisconnected:
		return errors.Wrap(ErrTransport, "websocket connection dropped")

	case types.MessagePong:
		logrus.WithField("operation_id", state.OperationID).Debug("pong received")
		return nil

	case types.MessageAuthenticated:
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "success": msg.AuthSuccess}).Info("websocket auth status")
		return nil

	case types.MessageSubscriptionResponse:
		logrus.WithFields(logrus.Fields{
			"operation_id": state.OperationID, "success": msg.SubscriptionSuccess, "topic": msg.SubscriptionTopic,
		}).Info("websocket subscription response")
		return nil

	default: // MessageConnected
		logrus.WithField("operation_id", state.OperationID).Info("websocket connected event received")
		return nil
	}
}

func activeOrderForLeg(state *OperationState, leg Leg) *ChunkOrderState {
	if leg == LegSpot {
		return state.ActiveSpotOrder
	}
	return state.ActiveFuturesOrder
}

func setActiveOrderForLeg(state *OperationState, leg Leg, order *ChunkOrderState) {
	if leg == LegSpot {
		state.ActiveSpotOrder = order
	} else {
		state.ActiveFuturesOrder = order
	}
}

// handleOrderUpdate applies a fill update to whichever leg the order
// belongs to, accumulates cumulative fills, and clears the leg's active
// order once it reaches a terminal status.
func handleOrderUpdate(state *OperationState, cfg Config, progress ProgressCallback, details types.DetailedOrderStatus) {
	var leg Leg
	var order *ChunkOrderState
	switch {
	case state.ActiveSpotOrder != nil && state.ActiveSpotOrder.OrderID == details.OrderID:
		leg = LegSpot
		order = state.ActiveSpotOrder
	case state.ActiveFuturesOrder != nil && state.ActiveFuturesOrder.OrderID == details.OrderID:
		leg = LegFutures
		order = state.ActiveFuturesOrder
	default:
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "order_id": details.OrderID}).
			Warn("received update for unknown or inactive order")
		return
	}

	oldFilledQty := order.FilledQuantity
	oldStatus := order.Status
	order.updateFromDetails(details)
	quantityDiff := order.FilledQuantity.Sub(oldFilledQty)

	if quantityDiff.Abs().GreaterThan(placementToleranceValue) {
		priceForDiff := order.AveragePrice
		if !priceForDiff.IsPositive() {
			if details.LastFilledPrice != nil {
				priceForDiff = *details.LastFilledPrice
			} else if mid, ok := currentPriceForLeg(state, leg); ok {
				priceForDiff = mid
			}
		}
		valueDiff := quantityDiff.Mul(priceForDiff).Abs()

		switch leg {
		case LegSpot:
			state.CumulativeSpotFilledQuantity = state.CumulativeSpotFilledQuantity.Add(quantityDiff)
			state.CumulativeSpotFilledValue = state.CumulativeSpotFilledValue.Add(valueDiff)
			if state.OperationType == OperationHedge {
				state.TargetTotalFuturesValue = state.CumulativeSpotFilledValue
			}
		case LegFutures:
			state.CumulativeFuturesFilledQuantity = state.CumulativeFuturesFilledQuantity.Add(quantityDiff)
			state.CumulativeFuturesFilledValue = state.CumulativeFuturesFilledValue.Add(valueDiff)
		}
		sendProgress(progress, state)
		reportMetrics(state)

		applyValueImbalanceGuard(state, cfg)
	}

	if oldStatus != order.Status && order.Status.IsTerminal() {
		logrus.WithFields(logrus.Fields{
			"operation_id": state.OperationID, "order_id": order.OrderID, "leg": leg, "status": order.Status,
		}).Info("order reached terminal status")
		setActiveOrderForLeg(state, leg, nil)
	}
}

// applyValueImbalanceGuard is the value-imbalance check. Policy is passive:
// it only marks the leg currently ahead on the running chunk's status for
// observability, it never cancels an order on its own. Convergence is left
// to the trailing leg's own fills plus the independent staleness check.
func applyValueImbalanceGuard(state *OperationState, cfg Config) {
	if cfg.WsMaxValueImbalanceRatio == nil || *cfg.WsMaxValueImbalanceRatio <= 0 {
		return
	}
	if state.Status.Kind != StatusRunningChunk && state.Status.Kind != StatusWaitingImbalance {
		return
	}
	totalValueBase := state.InitialTargetSpotValue
	if !totalValueBase.IsPositive() {
		return
	}
	imbalance := state.CumulativeSpotFilledValue.Sub(state.CumulativeFuturesFilledValue.Abs()).Abs()
	currentRatio := imbalance.Div(totalValueBase)
	threshold := fixedpoint.NewFromFloat(*cfg.WsMaxValueImbalanceRatio)

	if !currentRatio.GreaterThan(threshold) {
		if state.Status.Kind == StatusWaitingImbalance {
			state.Status = runningChunk(state.Status.ChunkIndex)
		}
		return
	}

	leadingLeg := LegSpot
	if state.CumulativeFuturesFilledValue.Abs().GreaterThan(state.CumulativeSpotFilledValue) {
		leadingLeg = LegFutures
	}
	chunkIndex := state.Status.ChunkIndex
	logrus.WithFields(logrus.Fields{
		"operation_id": state.OperationID, "ratio": currentRatio.String(), "threshold": threshold.String(), "leading_leg": leadingLeg,
	}).Warn("value imbalance exceeds configured threshold")
	state.Status = Status{Kind: StatusWaitingImbalance, ChunkIndex: chunkIndex, LeadingLeg: leadingLeg}
}

func handleOrderBookUpdate(state *OperationState, msg types.WebSocketMessage) {
	var target *types.MarketUpdate
	switch msg.Symbol {
	case state.SymbolSpot:
		target = &state.SpotMarketData
	case state.SymbolFutures:
		target = &state.FuturesMarketData
	default:
		return
	}
	if len(msg.Bids) > 0 {
		p := msg.Bids[0].Price
		q := msg.Bids[0].Quantity
		target.BestBidPrice = &p
		target.BestBidQuantity = &q
	} else {
		target.BestBidPrice = nil
		target.BestBidQuantity = nil
	}
	if len(msg.Asks) > 0 {
		p := msg.Asks[0].Price
		q := msg.Asks[0].Quantity
		target.BestAskPrice = &p
		target.BestAskQuantity = &q
	} else {
		target.BestAskPrice = nil
		target.BestAskQuantity = nil
	}
	target.LastUpdateTimeMs = time.Now().UnixMilli()
}

// staleCheckReference returns the quote a resting order of the given side
// would actually fill against (ask for a buy, bid for a sell, matching
// calculateLimitPriceForLeg), or false if that side of the book hasn't
// posted a fresh update within freshnessMs.
func staleCheckReference(data types.MarketUpdate, side types.Side, now, freshnessMs int64) (fixedpoint.Value, bool) {
	if data.LastUpdateTimeMs == 0 || now-data.LastUpdateTimeMs >= freshnessMs {
		return fixedpoint.Zero, false
	}
	if side == types.SideBuy {
		if data.BestAskPrice == nil {
			return fixedpoint.Zero, false
		}
		return *data.BestAskPrice, true
	}
	if data.BestBidPrice == nil {
		return fixedpoint.Zero, false
	}
	return *data.BestBidPrice, true
}

// checkStaleOrders replaces an active order whose limit price has drifted
// too far from the quote it would actually fill against. It only fires
// while a chunk is RunningChunk and market data is fresher than
// MarketDataFreshness.
func checkStaleOrders(ctx context.Context, xchg exchange.Exchange, cfg Config, state *OperationState) error {
	if state.Status.Kind != StatusRunningChunk {
		return nil
	}
	if cfg.WsStalePriceRatio == nil || *cfg.WsStalePriceRatio <= 0 {
		return nil
	}
	staleRatio := fixedpoint.NewFromFloat(*cfg.WsStalePriceRatio)
	now := time.Now().UnixMilli()
	freshnessMs := cfg.MarketDataFreshness.Milliseconds()

	if order := state.ActiveSpotOrder; order != nil && order.Status.IsActive() {
		side := legSide(state.OperationType, LegSpot)
		if ref, ok := staleCheckReference(state.SpotMarketData, side, now, freshnessMs); ok {
			stale := false
			if side == types.SideSell {
				stale = order.LimitPrice.LessThan(ref.Mul(fixedpoint.One.Sub(staleRatio)))
			} else {
				stale = order.LimitPrice.GreaterThan(ref.Mul(fixedpoint.One.Add(staleRatio)))
			}
			if stale {
				logrus.WithFields(logrus.Fields{
					"operation_id": state.OperationID, "order_id": order.OrderID,
					"limit_price": order.LimitPrice.String(), "reference": ref.String(),
				}).Warn("spot order stale; initiating replacement")
				return initiateOrderReplacement(ctx, xchg, state, LegSpot, "StalePrice")
			}
		}
	}

	if order := state.ActiveFuturesOrder; order != nil && order.Status.IsActive() {
		side := legSide(state.OperationType, LegFutures)
		if ref, ok := staleCheckReference(state.FuturesMarketData, side, now, freshnessMs); ok {
			stale := false
			if side == types.SideSell {
				stale = order.LimitPrice.LessThan(ref.Mul(fixedpoint.One.Sub(staleRatio)))
			} else {
				stale = order.LimitPrice.GreaterThan(ref.Mul(fixedpoint.One.Add(staleRatio)))
			}
			if stale {
				logrus.WithFields(logrus.Fields{
					"operation_id": state.OperationID, "order_id": order.OrderID,
					"limit_price": order.LimitPrice.String(), "reference": ref.String(),
				}).Warn("futures order stale; initiating replacement")
				return initiateOrderReplacement(ctx, xchg, state, LegFutures, "StalePrice")
			}
		}
	}
	return nil
}

// initiateOrderReplacement sends the cancel request for an active leg order
// and transitions into WaitingCancelConfirmation — the new order is placed
// only once the cancellation is confirmed over the WebSocket feed, so the
// engine never holds two live orders on the same leg at once.
func initiateOrderReplacement(ctx context.Context, xchg exchange.Exchange, state *OperationState, leg Leg, reason string) error {
	order := activeOrderForLeg(state, leg)
	if order == nil {
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "leg": leg}).
			Warn("attempted to replace order but no active order found for leg")
		return nil
	}
	if state.Status.Kind == StatusCancellingOrder || state.Status.Kind == StatusWaitingCancelConfirmation {
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "order_id": order.OrderID}).
			Warn("replacement already in progress; skipping")
		return nil
	}

	currentChunk := state.CurrentChunkIndex
	if state.Status.Kind == StatusRunningChunk {
		currentChunk = state.Status.ChunkIndex
	} else if currentChunk > 1 {
		currentChunk--
	}

	state.Status = Status{Kind: StatusCancellingOrder, ChunkIndex: currentChunk, Leg: leg, OrderID: order.OrderID, CancelReason: reason}

	var err error
	if leg == LegSpot {
		err = xchg.CancelSpotOrder(ctx, state.SymbolSpot, order.OrderID)
	} else {
		err = xchg.CancelFuturesOrder(ctx, state.SymbolFutures, order.OrderID)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "order_id": order.OrderID, "error": err}).
			Error("failed to send cancel request for replacement")
		state.Status = runningChunk(currentChunk)
		return errors.Wrap(ErrCancel, err.Error())
	}

	logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "order_id": order.OrderID}).
		Info("cancel request sent; awaiting confirmation over websocket")
	state.Status = Status{Kind: StatusWaitingCancelConfirmation, ChunkIndex: currentChunk, Leg: leg, OrderID: order.OrderID}
	return nil
}

// handleCancelConfirmation places the replacement order once a cancel is
// confirmed inactive, sized to the leg's base per-chunk quantity, or to the
// leg's overall remaining quantity on the last chunk (approximate: fills the
// cancelled order already made in this chunk are not subtracted, since no
// per-(chunk,leg) fill counters are kept).
func handleCancelConfirmation(ctx context.Context, xchg exchange.Exchange, cfg Config, state *OperationState, cancelledOrderID string, leg Leg) error {
	logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "order_id": cancelledOrderID, "leg": leg}).
		Info("handling cancel confirmation; placing replacement order if needed")

	var totalTarget, filled fixedpoint.Value
	var market types.Market
	switch leg {
	case LegSpot:
		spotTarget, _ := overallTargets(state)
		totalTarget = spotTarget
		filled = state.CumulativeSpotFilledQuantity
		market = state.SpotMarket
	default:
		_, futTarget := overallTargets(state)
		totalTarget = futTarget
		filled = state.CumulativeFuturesFilledQuantity
		market = state.FuturesMarket
	}
	minQuantity := market.MinQuantity

	currentChunk := state.CurrentChunkIndex
	if state.Status.Kind == StatusWaitingCancelConfirmation {
		currentChunk = state.Status.ChunkIndex
	} else if currentChunk > 1 {
		currentChunk--
	}
	isLastChunk := currentChunk == state.TotalChunks

	var quantityForReplacement fixedpoint.Value
	if isLastChunk {
		quantityForReplacement = totalTarget.Sub(filled).Max(fixedpoint.Zero)
	} else if leg == LegSpot {
		quantityForReplacement = state.ChunkBaseQuantitySpot
	} else {
		quantityForReplacement = state.ChunkBaseQuantityFutures
	}

	remainingQty := emitQuantity(quantityForReplacement, market)

	setActiveOrderForLeg(state, leg, nil)
	logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "order_id": cancelledOrderID, "leg": leg}).
		Debug("cleared active order state after cancel confirmation")

	if remainingQty.LessThan(minQuantity) && remainingQty.Abs().GreaterThan(placementToleranceValue) {
		logrus.WithFields(logrus.Fields{
			"operation_id": state.OperationID, "remaining_qty": remainingQty.String(), "min_qty": minQuantity.String(), "leg": leg,
		}).Warn("remaining quantity for replacement is too small (dust); skipping order")
	} else if remainingQty.Abs().GreaterThan(placementToleranceValue) {
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "replacement_qty": remainingQty.String(), "leg": leg}).
			Info("placing replacement order")

		newLimitPrice, err := calculateLimitPriceForLeg(state, cfg, leg)
		if err != nil {
			state.Status = runningChunk(currentChunk)
			return errors.Wrap(ErrMarket, err.Error())
		}

		side := legSide(state.OperationType, leg)
		var order types.Order
		if leg == LegSpot {
			order, err = xchg.PlaceLimitOrder(ctx, state.SymbolSpot, side, remainingQty, newLimitPrice)
		} else {
			order, err = xchg.PlaceFuturesLimitOrder(ctx, state.SymbolFutures, side, remainingQty, newLimitPrice)
		}
		if err != nil {
			errMsg := errors.Wrapf(err, "failed to place replacement order for %s", leg).Error()
			logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "leg": leg, "error": errMsg}).Error("replacement placement failed")
			state.Status = failed(errMsg)
			return errors.Wrap(ErrPlacement, errMsg)
		}
		symbol := state.SymbolSpot
		if leg == LegFutures {
			symbol = state.SymbolFutures
		}
		setActiveOrderForLeg(state, leg, newChunkOrderState(order.ID, symbol, side, newLimitPrice, remainingQty))
	} else {
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "leg": leg}).
			Info("no remaining quantity after cancel confirmation; replacement order not placed")
	}

	state.Status = runningChunk(currentChunk)
	return nil
}
