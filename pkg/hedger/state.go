package hedger

import (
	"fmt"

	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// Leg is one of the two markets participating in the hedge.
type Leg int

const (
	LegSpot Leg = iota
	LegFutures
)

func (l Leg) String() string {
	if l == LegSpot {
		return "Spot"
	}
	return "Futures"
}

// OperationType selects which side of the trade each leg takes.
type OperationType int

const (
	// OperationHedge buys spot and sells futures to open a hedge.
	OperationHedge OperationType = iota
	// OperationUnhedge sells spot and buys futures to close a prior hedge.
	OperationUnhedge
)

func (o OperationType) String() string {
	if o == OperationHedge {
		return "Hedge"
	}
	return "Unhedge"
}

// StatusKind enumerates the task's state machine. Go has no sum type with
// per-variant payload, so Status carries a Kind plus the fields relevant
// to that kind.
type StatusKind int

const (
	StatusInitializing StatusKind = iota
	StatusSettingLeverage
	StatusCalculatingChunks
	StatusStartingChunk
	StatusPlacingFuturesOrder
	StatusPlacingSpotOrder
	StatusRunningChunk
	StatusWaitingImbalance
	StatusCancellingOrder
	StatusWaitingCancelConfirmation
	StatusReconciling
	StatusCancelling
	StatusCompleted
	StatusCancelled
	StatusFailed
)

// Status is the task's current position in the state machine.
type Status struct {
	Kind StatusKind

	ChunkIndex uint32 // StartingChunk, PlacingXOrder, RunningChunk, WaitingImbalance, CancellingOrder, WaitingCancelConfirmation

	LeadingLeg Leg // WaitingImbalance

	Leg          Leg    // CancellingOrder, WaitingCancelConfirmation
	OrderID      string // CancellingOrder, WaitingCancelConfirmation
	CancelReason string // CancellingOrder

	FailureMessage string // Failed
}

func (s Status) String() string {
	switch s.Kind {
	case StatusInitializing:
		return "Initializing"
	case StatusSettingLeverage:
		return "SettingLeverage"
	case StatusCalculatingChunks:
		return "CalculatingChunks"
	case StatusStartingChunk:
		return fmt.Sprintf("StartingChunk(%d)", s.ChunkIndex)
	case StatusPlacingFuturesOrder:
		return fmt.Sprintf("PlacingFuturesOrder(%d)", s.ChunkIndex)
	case StatusPlacingSpotOrder:
		return fmt.Sprintf("PlacingSpotOrder(%d)", s.ChunkIndex)
	case StatusRunningChunk:
		return fmt.Sprintf("RunningChunk(%d)", s.ChunkIndex)
	case StatusWaitingImbalance:
		return fmt.Sprintf("WaitingImbalance{chunk=%d, leading=%s}", s.ChunkIndex, s.LeadingLeg)
	case StatusCancellingOrder:
		return fmt.Sprintf("CancellingOrder{chunk=%d, leg=%s, id=%s, reason=%s}", s.ChunkIndex, s.Leg, s.OrderID, s.CancelReason)
	case StatusWaitingCancelConfirmation:
		return fmt.Sprintf("WaitingCancelConfirmation{chunk=%d, leg=%s, id=%s}", s.ChunkIndex, s.Leg, s.OrderID)
	case StatusReconciling:
		return "Reconciling"
	case StatusCancelling:
		return "Cancelling"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusFailed:
		return fmt.Sprintf("Failed(%s)", s.FailureMessage)
	default:
		return "Unknown"
	}
}

func (s Status) IsTerminal() bool {
	switch s.Kind {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

func startingChunk(i uint32) Status    { return Status{Kind: StatusStartingChunk, ChunkIndex: i} }
func placingFutures(i uint32) Status   { return Status{Kind: StatusPlacingFuturesOrder, ChunkIndex: i} }
func placingSpot(i uint32) Status      { return Status{Kind: StatusPlacingSpotOrder, ChunkIndex: i} }
func runningChunk(i uint32) Status     { return Status{Kind: StatusRunningChunk, ChunkIndex: i} }
func failed(msg string) Status         { return Status{Kind: StatusFailed, FailureMessage: msg} }

// ChunkOrderState is the per-active-leg-order record.
//
// Invariant: 0 <= FilledQuantity <= TargetQuantity (tolerance 1e-12);
// Status terminal <=> removed from its active slot.
type ChunkOrderState struct {
	OrderID        string
	Symbol         string
	Side           types.Side
	LimitPrice     fixedpoint.Value
	TargetQuantity fixedpoint.Value

	FilledQuantity fixedpoint.Value
	FilledValue    fixedpoint.Value
	AveragePrice   fixedpoint.Value
	Status         types.OrderStatus
}

func newChunkOrderState(orderID, symbol string, side types.Side, limitPrice, targetQuantity fixedpoint.Value) *ChunkOrderState {
	return &ChunkOrderState{
		OrderID:        orderID,
		Symbol:         symbol,
		Side:           side,
		LimitPrice:     limitPrice,
		TargetQuantity: targetQuantity,
		FilledQuantity: fixedpoint.Zero,
		FilledValue:    fixedpoint.Zero,
		AveragePrice:   fixedpoint.Zero,
		Status:         types.OrderStatusNew,
	}
}

// updateFromDetails applies a WebSocket order-update payload. Returns false
// (and logs nothing itself — callers decide) if the update is for a
// different order id, an InvariantViolation the caller should warn-and-drop.
func (c *ChunkOrderState) updateFromDetails(details types.DetailedOrderStatus) bool {
	if c.OrderID != details.OrderID {
		return false
	}
	c.FilledQuantity = details.FilledQuantity
	c.FilledValue = details.CumulativeExecutedValue
	c.AveragePrice = details.AveragePrice
	c.Status = details.Status
	return true
}

// OperationState is the singleton authoritative state per task.
// It is owned exclusively by its task; nothing else may mutate it.
type OperationState struct {
	OperationID   int64
	OperationType OperationType
	SymbolSpot    string
	SymbolFutures string

	SpotMarket    types.Market
	FuturesMarket types.Market

	TotalChunks           uint32
	ChunkBaseQuantitySpot    fixedpoint.Value
	ChunkBaseQuantityFutures fixedpoint.Value

	CurrentChunkIndex uint32 // 1-based, monotonic; in [1, TotalChunks+1]

	CumulativeSpotFilledQuantity    fixedpoint.Value
	CumulativeSpotFilledValue       fixedpoint.Value
	CumulativeFuturesFilledQuantity fixedpoint.Value
	CumulativeFuturesFilledValue    fixedpoint.Value

	// TargetTotalFuturesValue tracks cumulative spot value for hedge
	// operations, retargeted live as spot fills land; unused by unhedge.
	TargetTotalFuturesValue fixedpoint.Value

	InitialTargetSpotValue   fixedpoint.Value
	InitialTargetFuturesQty  fixedpoint.Value
	InitialUserSum           fixedpoint.Value

	ActiveSpotOrder    *ChunkOrderState
	ActiveFuturesOrder *ChunkOrderState

	SpotMarketData    types.MarketUpdate
	FuturesMarketData types.MarketUpdate

	Status Status
}

// NewHedgeState seeds a fresh hedge OperationState. TargetTotalFuturesValue
// starts at the estimated spot value and is recomputed live as spot fills
// land.
func NewHedgeState(operationID int64, symbolSpot, symbolFutures string, initialTargetSpotValue, initialTargetFuturesQty, initialUserSum fixedpoint.Value) *OperationState {
	return &OperationState{
		OperationID:             operationID,
		OperationType:           OperationHedge,
		SymbolSpot:              symbolSpot,
		SymbolFutures:           symbolFutures,
		CurrentChunkIndex:       1,
		CumulativeSpotFilledQuantity:    fixedpoint.Zero,
		CumulativeSpotFilledValue:       fixedpoint.Zero,
		CumulativeFuturesFilledQuantity: fixedpoint.Zero,
		CumulativeFuturesFilledValue:    fixedpoint.Zero,
		TargetTotalFuturesValue: initialTargetSpotValue,
		InitialTargetSpotValue:  initialTargetSpotValue,
		InitialTargetFuturesQty: initialTargetFuturesQty,
		InitialUserSum:          initialUserSum,
		Status:                  Status{Kind: StatusInitializing},
	}
}

// NewUnhedgeState seeds a fresh unhedge OperationState. TargetSpotSellQty is
// carried in InitialTargetSpotValue for field-layout consistency with hedge
// (it is a quantity here, not a value).
func NewUnhedgeState(operationID int64, symbolSpot, symbolFutures string, targetSpotSellQty, targetFuturesBuyQty, initialUserSumEquivalent fixedpoint.Value) *OperationState {
	return &OperationState{
		OperationID:             operationID,
		OperationType:           OperationUnhedge,
		SymbolSpot:              symbolSpot,
		SymbolFutures:           symbolFutures,
		CurrentChunkIndex:       1,
		CumulativeSpotFilledQuantity:    fixedpoint.Zero,
		CumulativeSpotFilledValue:       fixedpoint.Zero,
		CumulativeFuturesFilledQuantity: fixedpoint.Zero,
		CumulativeFuturesFilledValue:    fixedpoint.Zero,
		TargetTotalFuturesValue: fixedpoint.Zero,
		InitialTargetSpotValue:  targetSpotSellQty,
		InitialTargetFuturesQty: targetFuturesBuyQty,
		InitialUserSum:          initialUserSumEquivalent,
		Status:                  Status{Kind: StatusInitializing},
	}
}
