package hedger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thedr-lul/hedgehog/pkg/exchange"
	"github.com/thedr-lul/hedgehog/pkg/storage"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// IncomingMessage pairs a WebSocket message with a transport-level error, the
// way a receiving goroutine forwards both over one channel.
type IncomingMessage struct {
	Message types.WebSocketMessage
	Err     error
}

// Task owns one hedge or unhedge OperationState end to end: initialization
// already happened (the caller supplies a state produced by InitializeHedge
// or InitializeUnhedge), and Run drives chunk placement, event handling,
// and final reconciliation until the operation reaches a terminal status.
// Cancellation is cooperative: Run only checks the cancel channel between
// atomic steps, never mid-placement.
type Task struct {
	State    *OperationState
	Config   Config
	Exchange exchange.Exchange
	Store    storage.Store
	Progress ProgressCallback

	Incoming <-chan IncomingMessage
	Cancel   <-chan struct{}
}

// Run executes the task's full lifecycle loop. It returns nil once the
// operation reaches Completed; any other terminal status is reported via
// the returned error (ErrCancelled for Cancelled, the stored cause for
// Failed).
func (t *Task) Run(ctx context.Context) error {
	for !t.State.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Cancel:
			if err := t.handleCancelRequest(ctx); err != nil {
				return err
			}
			continue
		default:
		}

		switch t.State.Status.Kind {
		case StatusStartingChunk:
			if err := StartNextChunk(ctx, t.Exchange, t.Config, t.State, t.Progress); err != nil {
				return t.fail(ctx, err)
			}
			reportMetrics(t.State)

		case StatusReconciling:
			if err := Reconcile(ctx, t.Exchange, t.Store, t.Config, t.State, Status{Kind: StatusCompleted}); err != nil {
				return t.fail(ctx, err)
			}

		default:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.Cancel:
				if err := t.handleCancelRequest(ctx); err != nil {
					return err
				}
			case inc := <-t.Incoming:
				if inc.Err != nil {
					return t.fail(ctx, errors.Wrap(ErrTransport, inc.Err.Error()))
				}
				if err := HandleMessage(ctx, t.Exchange, t.Config, t.State, t.Progress, inc.Message); err != nil {
					return t.fail(ctx, err)
				}
				t.advanceIfChunkComplete()
			}
		}
	}

	if t.State.Status.Kind == StatusCompleted {
		return nil
	}
	if t.State.Status.Kind == StatusCancelled {
		return ErrCancelled
	}
	return errors.New(t.State.Status.FailureMessage)
}

// advanceIfChunkComplete transitions RunningChunk -> next StartingChunk (or
// Reconciling on the last chunk) once both legs have cleared their active
// order slots.
func (t *Task) advanceIfChunkComplete() {
	if t.State.Status.Kind != StatusRunningChunk && t.State.Status.Kind != StatusWaitingImbalance {
		return
	}
	if !chunkCompletion(t.State) {
		return
	}
	chunkIndex := t.State.Status.ChunkIndex
	if chunkIndex >= t.State.TotalChunks {
		t.State.Status = Status{Kind: StatusReconciling}
		return
	}
	next := chunkIndex + 1
	t.State.CurrentChunkIndex = next
	t.State.Status = startingChunk(next)
}

// handleCancelRequest finishes the current atomic step (it never fires
// mid-placement, since Run only selects on Cancel between steps), cancels
// both active orders best-effort, waits (bounded by
// Config.CancelConfirmationTimeout) for their terminal confirmation over the
// inbound feed, then hands off to Reconcile so residual imbalance is closed
// with market orders before the operation is marked Cancelled.
func (t *Task) handleCancelRequest(ctx context.Context) error {
	logrus.WithField("operation_id", t.State.OperationID).Info("cancellation requested")
	t.State.Status = Status{Kind: StatusCancelling}

	if order := t.State.ActiveSpotOrder; order != nil && order.Status.IsActive() {
		if err := t.Exchange.CancelSpotOrder(ctx, t.State.SymbolSpot, order.OrderID); err != nil {
			logrus.WithFields(logrus.Fields{"operation_id": t.State.OperationID, "error": err}).
				Warn("failed to cancel active spot order during task cancellation")
		}
	}
	if order := t.State.ActiveFuturesOrder; order != nil && order.Status.IsActive() {
		if err := t.Exchange.CancelFuturesOrder(ctx, t.State.SymbolFutures, order.OrderID); err != nil {
			logrus.WithFields(logrus.Fields{"operation_id": t.State.OperationID, "error": err}).
				Warn("failed to cancel active futures order during task cancellation")
		}
	}

	t.waitForCancelConfirmations(ctx)

	if err := Reconcile(ctx, t.Exchange, t.Store, t.Config, t.State, Status{Kind: StatusCancelled}); err != nil {
		logrus.WithFields(logrus.Fields{"operation_id": t.State.OperationID, "error": err}).
			Error("reconciliation during cancellation failed; operation still marked Cancelled")
		t.State.Status = Status{Kind: StatusCancelled}
		if perr := persistTerminal(ctx, t.Store, t.Config, t.State); perr != nil {
			logrus.WithFields(logrus.Fields{"operation_id": t.State.OperationID, "error": perr}).
				Error("failed to persist terminal disposition after cancellation")
		}
	}
	return ErrCancelled
}

// waitForCancelConfirmations drains inbound order updates for up to
// Config.CancelConfirmationTimeout, applying fills so cumulative counters
// stay accurate, until both leg slots are clear.
func (t *Task) waitForCancelConfirmations(ctx context.Context) {
	if t.State.ActiveSpotOrder == nil && t.State.ActiveFuturesOrder == nil {
		return
	}
	deadline := time.After(t.Config.CancelConfirmationTimeout)
	for t.State.ActiveSpotOrder != nil || t.State.ActiveFuturesOrder != nil {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			logrus.WithField("operation_id", t.State.OperationID).
				Warn("timed out waiting for cancel confirmations; proceeding to reconciliation anyway")
			return
		case inc := <-t.Incoming:
			if inc.Err != nil {
				return
			}
			if inc.Message.Kind == types.MessageOrderUpdate {
				handleOrderUpdate(t.State, t.Config, t.Progress, inc.Message.OrderUpdate)
			}
		}
	}
}

func (t *Task) fail(ctx context.Context, cause error) error {
	logrus.WithFields(logrus.Fields{"operation_id": t.State.OperationID, "error": cause}).Error("task failed")
	t.State.Status = failed(cause.Error())
	if err := persistTerminal(ctx, t.Store, t.Config, t.State); err != nil {
		logrus.WithFields(logrus.Fields{"operation_id": t.State.OperationID, "error": err}).
			Error("failed to persist terminal disposition after failure")
	}
	return cause
}
