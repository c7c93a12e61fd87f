// Package storage persists terminal operation disposition. The engine
// writes to it only at terminal transitions — it never reads operation
// state back during a run; process-restart recovery is out of scope.
package storage

import "context"

// OperationRecord is the terminal-disposition row for one hedge/unhedge
// operation.
type OperationRecord struct {
	ID                     int64 `gorm:"primaryKey"`
	OperationType          string
	BaseSymbol             string
	Status                 string
	ErrorMessage           string
	CumulativeSpotFilledQty    string
	CumulativeSpotFilledValue  string
	CumulativeFuturesFilledQty string
	CumulativeFuturesFilledValue string
	Unhedged bool
}

// Store is the storage collaborator: marking a prior hedge as unhedged,
// and recording the terminal state of a hedge/unhedge operation.
// Implementations must be safe for concurrent use by many tasks.
type Store interface {
	MarkHedgeAsUnhedged(ctx context.Context, operationID int64) error
	UpdateTerminal(ctx context.Context, rec OperationRecord) error
	GetOperation(ctx context.Context, operationID int64) (OperationRecord, error)
}
