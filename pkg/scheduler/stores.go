package scheduler

import (
	"context"

	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// JobStore is the persistence boundary for jobs. Implementations must be
// safe for concurrent use; every call honors the context deadline.
type JobStore interface {
	OpenJobs(ctx context.Context) ([]models.Job, error)
	Job(ctx context.Context, designCode string) (models.Job, error)
	CreateJob(ctx context.Context, job models.Job) error
	SaveAssignment(ctx context.Context, designCode string, assigned models.Assignment, status models.Status, usesContractor bool) error
	// UpdateStatus transitions the job's status. An empty priority
	// leaves the stored priority unchanged.
	UpdateStatus(ctx context.Context, designCode string, status models.Status, priority models.Priority) error
	UpdateRemainingDuration(ctx context.Context, designCode string, minutes float64) error

	// TransferAndAssign moves movedWorker off the vacated job, puts the
	// replacement assignment in their place and creates the new job, all
	// in a single atomic unit. Neither mutation may survive alone.
	TransferAndAssign(ctx context.Context, vacatedCode string, movedWorker string, replacement models.Assignment, contractorBackfill bool, newJob models.Job) error
}

// WorkerStore is the persistence boundary for the workforce.
type WorkerStore interface {
	Worker(ctx context.Context, name string) (models.Worker, error)
	WorkersByTier(ctx context.Context, tier models.Tier) ([]models.Worker, error)
}

// AssignmentLog is the append-only assignment audit trail.
type AssignmentLog interface {
	Append(ctx context.Context, rec models.AssignmentRecord) error
	Last(ctx context.Context) (*models.AssignmentRecord, error)
	All(ctx context.Context) ([]models.AssignmentRecord, error)
}

// RequirementsStore resolves design-code metadata.
type RequirementsStore interface {
	Requirements(ctx context.Context, designCode string) (models.Requirements, error)
}

// HistoryStore provides historical duration observations per design code
// for the Taguchi baseline.
type HistoryStore interface {
	PastDurations(ctx context.Context, designCode string) ([]float64, error)
	Department(ctx context.Context, designCode string) (string, error)
}

// ResultStore persists optimization result sets.
type ResultStore interface {
	SaveGeneticResult(ctx context.Context, res models.GeneticResult) error
	GeneticResult(ctx context.Context, scenario string) (*models.GeneticResult, error)

	// UpsertTaguchiResult updates the stored optimum only when the new
	// result improves on it, and always refreshes the timestamp.
	UpsertTaguchiResult(ctx context.Context, res models.TaguchiResult) error
	TaguchiResults(ctx context.Context) ([]models.TaguchiResult, error)

	SaveMonteCarloResult(ctx context.Context, res models.MonteCarloResult) error
	MonteCarloResult(ctx context.Context) (*models.MonteCarloResult, error)
}
