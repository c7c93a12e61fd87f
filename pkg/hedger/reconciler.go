package hedger

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/thedr-lul/hedgehog/pkg/exchange"
	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/storage"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// reconcileFailureLogLimiter rate-limits repeated reconciliation-failure
// warnings across operations, so a persistently failing exchange endpoint
// doesn't flood the log the way a single run's warnings would. A failure
// here is logged but never un-does an already-recorded terminal status.
var reconcileFailureLogLimiter = rate.NewLimiter(rate.Every(10*time.Second), 1)

func warnReconcileFailure(fields logrus.Fields, msg string) {
	if reconcileFailureLogLimiter.Allow() {
		logrus.WithFields(fields).Error(msg)
		return
	}
	logrus.WithFields(fields).Debug(msg + " (rate-limited)")
}

// Reconcile closes out any residual quantity imbalance with market orders,
// marks a prior hedge as unhedged when applicable, and records the
// operation's terminal disposition under finalStatus — Completed for normal
// chunk exhaustion, Cancelled when reached via an external cancel signal. It
// runs whenever the task enters Reconciling: normal completion, cancellation,
// or the final chunk exhausted.
// It sleeps for cfg.ReconciliationSettleDelay before persisting so recent
// fills have settled on the exchange's books.
func Reconcile(ctx context.Context, xchg exchange.Exchange, store storage.Store, cfg Config, state *OperationState, finalStatus Status) error {
	logrus.WithField("operation_id", state.OperationID).Info("starting final reconciliation")
	state.Status = Status{Kind: StatusReconciling}

	targetSpotQty, targetFuturesQty := overallTargets(state)
	filledSpotQty := state.CumulativeSpotFilledQuantity
	filledFuturesQty := state.CumulativeFuturesFilledQuantity

	spotImbalance := targetSpotQty.Sub(filledSpotQty)
	futuresImbalance := targetFuturesQty.Sub(filledFuturesQty)

	logrus.WithFields(logrus.Fields{
		"operation_id":    state.OperationID,
		"target_spot":     targetSpotQty.String(),
		"filled_spot":     filledSpotQty.String(),
		"spot_imbalance":  spotImbalance.String(),
		"target_futures":  targetFuturesQty.String(),
		"filled_futures":  filledFuturesQty.String(),
		"futures_imbalance": futuresImbalance.String(),
	}).Info("calculated final quantity imbalance for reconciliation")

	spotAdjustmentQty := fixedpoint.RoundDownStep(spotImbalance.Abs(), state.SpotMarket.QuantityStep)
	if spotAdjustmentQty.GreaterThanOrEqual(state.SpotMarket.MinQuantity) {
		side := types.SideSell
		if state.OperationType == OperationHedge {
			// Hedge buys spot; an under-filled plan is topped up with a buy,
			// an over-filled one (shouldn't normally happen) sold back off.
			if spotImbalance.IsPositive() {
				side = types.SideBuy
			} else {
				side = types.SideSell
			}
		} else {
			if spotImbalance.IsPositive() {
				side = types.SideSell
			} else {
				side = types.SideBuy
			}
		}

		baseSymbol := deriveBaseSymbol(state.SymbolSpot, cfg.QuoteCurrency)
		if baseSymbol == "" {
			logrus.WithField("operation_id", state.OperationID).
				Error("could not derive base symbol from spot symbol for reconciliation")
		} else {
			order, err := xchg.PlaceSpotMarketOrder(ctx, baseSymbol, side, spotAdjustmentQty)
			if err != nil {
				warnReconcileFailure(logrus.Fields{
					"operation_id": state.OperationID, "side": side, "qty": spotAdjustmentQty.String(), "error": err,
				}, "failed to place spot market order for reconciliation")
			} else {
				logrus.WithFields(logrus.Fields{
					"operation_id": state.OperationID, "order_id": order.ID, "side": side, "qty": spotAdjustmentQty.String(),
				}).Info("spot reconciliation market order placed")
			}
		}
	} else if spotImbalance.Abs().GreaterThan(placementToleranceValue) {
		logrus.WithFields(logrus.Fields{
			"operation_id": state.OperationID, "spot_imbalance": spotImbalance.String(), "min_qty": state.SpotMarket.MinQuantity.String(),
		}).Warn("required spot adjustment quantity is below minimum; skipping")
	}

	futuresAdjustmentQty := fixedpoint.RoundDownStep(futuresImbalance.Abs(), state.FuturesMarket.QuantityStep)
	if futuresAdjustmentQty.GreaterThanOrEqual(state.FuturesMarket.MinQuantity) {
		side := types.SideBuy
		if state.OperationType == OperationHedge {
			if futuresImbalance.IsPositive() {
				side = types.SideSell
			} else {
				side = types.SideBuy
			}
		} else {
			if futuresImbalance.IsPositive() {
				side = types.SideBuy
			} else {
				side = types.SideSell
			}
		}
		order, err := xchg.PlaceFuturesMarketOrder(ctx, state.SymbolFutures, side, futuresAdjustmentQty)
		if err != nil {
			warnReconcileFailure(logrus.Fields{
				"operation_id": state.OperationID, "side": side, "qty": futuresAdjustmentQty.String(), "error": err,
			}, "failed to place futures market order for reconciliation")
		} else {
			logrus.WithFields(logrus.Fields{
				"operation_id": state.OperationID, "order_id": order.ID, "side": side, "qty": futuresAdjustmentQty.String(),
			}).Info("futures reconciliation market order placed")
		}
	} else if futuresImbalance.Abs().GreaterThan(placementToleranceValue) {
		logrus.WithFields(logrus.Fields{
			"operation_id": state.OperationID, "futures_imbalance": futuresImbalance.String(), "min_qty": state.FuturesMarket.MinQuantity.String(),
		}).Warn("required futures adjustment quantity is below minimum; skipping")
	}

	select {
	case <-time.After(cfg.ReconciliationSettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if state.OperationType == OperationUnhedge {
		if err := store.MarkHedgeAsUnhedged(ctx, state.OperationID); err != nil {
			warnReconcileFailure(logrus.Fields{"operation_id": state.OperationID, "error": err},
				"failed to mark original hedge operation as unhedged")
		} else {
			logrus.WithField("operation_id", state.OperationID).Info("marked original hedge operation as unhedged")
		}
	}

	state.Status = finalStatus
	if err := persistTerminal(ctx, store, cfg, state); err != nil {
		logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "error": err}).Error("failed to persist terminal disposition")
	}
	logrus.WithFields(logrus.Fields{"operation_id": state.OperationID, "final_status": finalStatus.String()}).
		Info("reconciliation complete")
	return nil
}

// deriveBaseSymbol strips the configured quote currency suffix from a
// trading symbol.
func deriveBaseSymbol(symbol, quoteCurrency string) string {
	upperQuote := strings.ToUpper(quoteCurrency)
	base := strings.TrimSuffix(strings.ToUpper(symbol), upperQuote)
	if base == "" || base == strings.ToUpper(symbol) {
		return ""
	}
	return base
}

func persistTerminal(ctx context.Context, store storage.Store, cfg Config, state *OperationState) error {
	rec := storage.OperationRecord{
		ID:                           state.OperationID,
		OperationType:                state.OperationType.String(),
		BaseSymbol:                   deriveBaseSymbol(state.SymbolSpot, cfg.QuoteCurrency),
		Status:                       state.Status.String(),
		CumulativeSpotFilledQty:      state.CumulativeSpotFilledQuantity.String(),
		CumulativeSpotFilledValue:    state.CumulativeSpotFilledValue.String(),
		CumulativeFuturesFilledQty:   state.CumulativeFuturesFilledQuantity.String(),
		CumulativeFuturesFilledValue: state.CumulativeFuturesFilledValue.String(),
		Unhedged:                     state.OperationType == OperationUnhedge,
	}
	if state.Status.Kind == StatusFailed {
		rec.ErrorMessage = state.Status.FailureMessage
	}
	return errors.Wrap(store.UpdateTerminal(ctx, rec), "persist terminal operation record")
}
