package hedger

import "github.com/thedr-lul/hedgehog/pkg/fixedpoint"

// ProgressUpdate is a point-in-time snapshot pushed to the progress
// callback after each fill that changes a leg's cumulative quantity and
// after each chunk whose orders were placed. No update is pushed on other
// status changes, including the transition to a terminal status. It never
// blocks the event loop:
// callers must not perform slow work inside the callback.
type ProgressUpdate struct {
	OperationID   int64
	OperationType OperationType
	Status        string

	CurrentChunkIndex uint32
	TotalChunks       uint32

	CumulativeSpotFilledQuantity    fixedpoint.Value
	CumulativeSpotFilledValue       fixedpoint.Value
	CumulativeFuturesFilledQuantity fixedpoint.Value
	CumulativeFuturesFilledValue    fixedpoint.Value
}

// ProgressCallback receives a ProgressUpdate. Implementations must return
// quickly; the task goroutine is not available again until it does.
type ProgressCallback func(ProgressUpdate)

func snapshotProgress(state *OperationState) ProgressUpdate {
	return ProgressUpdate{
		OperationID:                      state.OperationID,
		OperationType:                    state.OperationType,
		Status:                           state.Status.String(),
		CurrentChunkIndex:                state.CurrentChunkIndex,
		TotalChunks:                      state.TotalChunks,
		CumulativeSpotFilledQuantity:     state.CumulativeSpotFilledQuantity,
		CumulativeSpotFilledValue:        state.CumulativeSpotFilledValue,
		CumulativeFuturesFilledQuantity:  state.CumulativeFuturesFilledQuantity,
		CumulativeFuturesFilledValue:     state.CumulativeFuturesFilledValue,
	}
}

func sendProgress(cb ProgressCallback, state *OperationState) {
	if cb == nil {
		return
	}
	cb(snapshotProgress(state))
}
