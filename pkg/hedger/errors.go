package hedger

import "github.com/pkg/errors"

// Error kinds. Each is a sentinel wrapped with errors.Wrap at the call
// site so errors.Cause/errors.Is still resolves to the kind.
var (
	ErrConfig            = errors.New("config error")
	ErrPlanInfeasible    = errors.New("chunk plan infeasible")
	ErrMarket            = errors.New("market data error")
	ErrPlacement         = errors.New("order placement error")
	ErrCancel            = errors.New("order cancel error")
	ErrTransport         = errors.New("transport error")
	ErrReconcile         = errors.New("reconciliation error")
	ErrCancelled         = errors.New("operation cancelled")
	ErrInvariantViolation = errors.New("invariant violation")
)

// InitError wraps a failure during Initializer: fetch retries exhausted,
// malformed instrument info, non-positive prices, a clamped target below
// min order quantity, or planner rejection.
type InitError struct {
	cause error
}

func (e *InitError) Error() string { return "init error: " + e.cause.Error() }
func (e *InitError) Unwrap() error { return e.cause }

func newInitError(cause error) error { return &InitError{cause: cause} }

// PlanInfeasibleError carries the diagnostic values the planner had on hand
// when it ran out of chunk counts to try.
type PlanInfeasibleError struct {
	OverallTargetSpot    string
	OverallTargetFutures string
	Reason               string
}

func (e *PlanInfeasibleError) Error() string {
	return "plan infeasible: " + e.Reason +
		" (target spot=" + e.OverallTargetSpot + ", target futures=" + e.OverallTargetFutures + ")"
}

func (e *PlanInfeasibleError) Unwrap() error { return ErrPlanInfeasible }
