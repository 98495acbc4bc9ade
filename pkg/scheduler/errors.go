package scheduler

import "errors"

// Error taxonomy of the optimization core. Callers match with errors.Is;
// the concrete wrapped error carries the human-readable detail.
var (
	// ErrDataUnavailable marks a store lookup that failed or timed out.
	// Affected workers/jobs are excluded from ranking rather than
	// aborting the batch.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInfeasibleAssignment marks a tier no candidate, contractor
	// placeholders included, can satisfy.
	ErrInfeasibleAssignment = errors.New("infeasible assignment")

	// ErrConflictingWrite marks two assignment transactions racing on
	// the same worker. Retried once against fresh state before it is
	// surfaced.
	ErrConflictingWrite = errors.New("conflicting write")

	// ErrOptimizationTimeout marks a batch run that exceeded its
	// generation/scenario/time budget. The best-found result so far is
	// still returned, flagged as partial.
	ErrOptimizationTimeout = errors.New("optimization timeout")
)
