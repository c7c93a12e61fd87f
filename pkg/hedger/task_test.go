package hedger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thedr-lul/hedgehog/pkg/types"
)

func newMultiChunkState(t *testing.T, totalChunks uint32) *OperationState {
	t.Helper()
	state := newTestState(t)
	state.TotalChunks = totalChunks
	return state
}

func TestAdvanceIfChunkComplete_MovesToNextChunkWhenBothLegsClear(t *testing.T) {
	state := newMultiChunkState(t, 3)
	state.Status = runningChunk(1)
	state.CurrentChunkIndex = 1
	state.ActiveSpotOrder = nil
	state.ActiveFuturesOrder = nil

	task := &Task{State: state}
	task.advanceIfChunkComplete()

	assert.Equal(t, StatusStartingChunk, state.Status.Kind)
	assert.EqualValues(t, 2, state.Status.ChunkIndex)
	assert.EqualValues(t, 2, state.CurrentChunkIndex)
}

func TestAdvanceIfChunkComplete_MovesToReconcilingOnLastChunk(t *testing.T) {
	state := newMultiChunkState(t, 3)
	state.Status = runningChunk(3)
	state.CurrentChunkIndex = 3
	state.ActiveSpotOrder = nil
	state.ActiveFuturesOrder = nil

	task := &Task{State: state}
	task.advanceIfChunkComplete()

	assert.Equal(t, StatusReconciling, state.Status.Kind)
}

func TestAdvanceIfChunkComplete_NoopWhileOrdersStillActive(t *testing.T) {
	state := newMultiChunkState(t, 3)
	state.Status = runningChunk(1)
	state.ActiveSpotOrder = newChunkOrderState("S1", "BTCUSDT", types.SideBuy, fp(t, "1"), fp(t, "1"))
	state.ActiveFuturesOrder = nil

	task := &Task{State: state}
	task.advanceIfChunkComplete()

	assert.Equal(t, StatusRunningChunk, state.Status.Kind)
	assert.EqualValues(t, 1, state.Status.ChunkIndex)
}

func TestAdvanceIfChunkComplete_NoopOutsideRunningOrImbalanceStatus(t *testing.T) {
	state := newMultiChunkState(t, 3)
	state.Status = startingChunk(1)
	state.ActiveSpotOrder = nil
	state.ActiveFuturesOrder = nil

	task := &Task{State: state}
	task.advanceIfChunkComplete()

	assert.Equal(t, StatusStartingChunk, state.Status.Kind)
}

func TestAdvanceIfChunkComplete_AdvancesFromWaitingImbalanceToo(t *testing.T) {
	state := newMultiChunkState(t, 2)
	state.Status = Status{Kind: StatusWaitingImbalance, ChunkIndex: 1, LeadingLeg: LegSpot}
	state.ActiveSpotOrder = nil
	state.ActiveFuturesOrder = nil

	task := &Task{State: state}
	task.advanceIfChunkComplete()

	assert.Equal(t, StatusStartingChunk, state.Status.Kind)
	assert.EqualValues(t, 2, state.Status.ChunkIndex)
}
