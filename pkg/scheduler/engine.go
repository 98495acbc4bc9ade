package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// Stores bundles the external collaborators the engine consumes.
type Stores struct {
	Jobs         JobStore
	Workers      WorkerStore
	Log          AssignmentLog
	Requirements RequirementsStore
	History      HistoryStore
	Results      ResultStore
}

// Engine is the assignment optimization core: scoring, ranking, the
// batch optimizers and the reassignment protocol behind one facade.
type Engine struct {
	cfg        *config.Config
	scorer     *Scorer
	ranker     *Ranker
	genetic    *GeneticOptimizer
	taguchi    *TaguchiOptimizer
	monteCarlo *MonteCarloSimulator
	resolver   *Resolver
	stores     Stores
	locks      *workerLocks
}

// New wires the engine together.
func New(cfg *config.Config, stores Stores) *Engine {
	scorer := NewScorer(cfg)
	ranker := NewRanker(cfg, scorer)
	locks := newWorkerLocks()
	return &Engine{
		cfg:        cfg,
		scorer:     scorer,
		ranker:     ranker,
		genetic:    NewGeneticOptimizer(cfg, scorer),
		taguchi:    NewTaguchiOptimizer(cfg),
		monteCarlo: NewMonteCarloSimulator(cfg),
		resolver:   NewResolver(cfg, ranker, stores.Jobs, stores.Log, locks),
		stores:     stores,
		locks:      locks,
	}
}

// Ranker exposes the candidate ranker for read-only callers.
func (e *Engine) Ranker() *Ranker { return e.ranker }

// Scorer exposes the fitness scorer for read-only callers.
func (e *Engine) Scorer() *Scorer { return e.scorer }

// Snapshot loads a consistent point-in-time view with the store timeout
// applied.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return LoadSnapshot(ctx, e.stores.Jobs, e.stores.Workers)
}

// SubmitResult is the engine's answer to a job submission. Exactly one
// of Outcome and Proposal is set: a proposal means the caller must
// confirm or decline the displacement before anything is persisted.
type SubmitResult struct {
	Outcome  *Outcome                `json:"outcome,omitempty"`
	Proposal *DisplacementProposal   `json:"proposal,omitempty"`
	Ranking  models.CandidateRanking `json:"ranking"`
}

// SubmitJob ranks candidates for the job and either assigns it or, for a
// critical job whose best fit is busy on lower-priority work, returns a
// displacement proposal for confirmation.
func (e *Engine) SubmitJob(ctx context.Context, job models.Job) (*SubmitResult, error) {
	if err := e.fillRequirements(ctx, &job); err != nil {
		return nil, err
	}
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if job.Priority == models.PriorityCritical {
		decision := e.resolver.Evaluate(job, snap)
		if decision.Kind == DecisionProposeDisplacement {
			return &SubmitResult{Proposal: decision.Proposal, Ranking: decision.Ranking}, nil
		}
	}

	outcome, err := e.assignDirect(ctx, job, snap)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Outcome: outcome, Ranking: outcome.Ranking}, nil
}

// ConfirmDisplacement executes a displacement the caller accepted,
// retrying once against a fresh snapshot when the transfer raced
// another transaction.
func (e *Engine) ConfirmDisplacement(ctx context.Context, job models.Job, proposal DisplacementProposal) (*Outcome, error) {
	if err := e.fillRequirements(ctx, &job); err != nil {
		return nil, err
	}
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	outcome, err := e.tryConfirm(ctx, job, proposal, snap)
	if errors.Is(err, ErrConflictingWrite) {
		snap, err = e.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		outcome, err = e.tryConfirm(ctx, job, proposal, snap)
	}
	return outcome, err
}

func (e *Engine) tryConfirm(ctx context.Context, job models.Job, proposal DisplacementProposal, snap *Snapshot) (*Outcome, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.resolver.Confirm(ctx, job, proposal, snap)
}

// DeclineDisplacement resolves a displacement the caller refused.
func (e *Engine) DeclineDisplacement(ctx context.Context, job models.Job, busyWorker string) (*Outcome, error) {
	if err := e.fillRequirements(ctx, &job); err != nil {
		return nil, err
	}
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.resolver.Decline(ctx, job, busyWorker, snap)
}

// assignDirect persists a ranked assignment, retrying once against fresh
// state when the write raced another transaction.
func (e *Engine) assignDirect(ctx context.Context, job models.Job, snap *Snapshot) (*Outcome, error) {
	outcome, err := e.tryAssign(ctx, job, snap)
	if errors.Is(err, ErrConflictingWrite) {
		snap, err = e.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		outcome, err = e.tryAssign(ctx, job, snap)
	}
	return outcome, err
}

func (e *Engine) tryAssign(ctx context.Context, job models.Job, snap *Snapshot) (*Outcome, error) {
	ranking := e.ranker.Rank(job, snap)
	assignment, usesContractor := buildAssignment(ranking, nil)

	release := e.locks.acquire(assignment.Workers())
	defer release()

	assigned := job
	assigned.Assigned = assignment
	assigned.UsesContractor = usesContractor
	if assignment.Empty() {
		assigned.Status = models.StatusPending
	} else {
		assigned.Status = models.StatusInProgress
	}

	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.stores.Jobs.CreateJob(storeCtx, assigned); err != nil {
		if errors.Is(err, ErrConflictingWrite) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: create job %s: %v", ErrDataUnavailable, job.DesignCode, err)
	}

	if lead := firstAssigned(ranking); lead != nil {
		e.resolver.appendRecord(storeCtx, assigned, lead.Worker.Name, lead.Fitness, ranking, models.ReasonWorkerFree)
	}
	return &Outcome{Job: assigned, Ranking: ranking, RequiresContractor: usesContractor}, nil
}

// fillRequirements resolves the design-code metadata when the caller did
// not supply tier counts or skills.
func (e *Engine) fillRequirements(ctx context.Context, job *models.Job) error {
	if job.Required.Total() > 0 {
		return nil
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	reqs, err := e.stores.Requirements.Requirements(ctx, job.DesignCode)
	if err != nil {
		return fmt.Errorf("%w: requirements for %s: %v", ErrDataUnavailable, job.DesignCode, err)
	}
	job.Required = reqs.TierCounts
	if len(job.RequiredSkills) == 0 {
		job.RequiredSkills = reqs.Skills
	}
	if job.Required.Total() == 0 {
		return fmt.Errorf("%w: design code %s requires no personnel", ErrInfeasibleAssignment, job.DesignCode)
	}
	return nil
}

// RankCandidates exposes the Candidate Ranker over a fresh snapshot.
func (e *Engine) RankCandidates(ctx context.Context, designCode string) (*models.CandidateRanking, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	job, err := e.lookupJob(ctx, snap, designCode)
	if err != nil {
		return nil, err
	}
	ranking := e.ranker.Rank(*job, snap)
	return &ranking, nil
}

// lookupJob finds the job in the snapshot, falling back to the store and
// the requirements metadata for not-yet-submitted design codes.
func (e *Engine) lookupJob(ctx context.Context, snap *Snapshot, designCode string) (*models.Job, error) {
	for i := range snap.Jobs {
		if snap.Jobs[i].DesignCode == designCode {
			return &snap.Jobs[i], nil
		}
	}
	storeCtx, cancel := e.storeCtx(ctx)
	defer cancel()
	if job, err := e.stores.Jobs.Job(storeCtx, designCode); err == nil {
		return &job, nil
	}
	reqs, err := e.stores.Requirements.Requirements(storeCtx, designCode)
	if err != nil {
		return nil, fmt.Errorf("%w: design code %s: %v", ErrDataUnavailable, designCode, err)
	}
	return &models.Job{
		DesignCode:     designCode,
		Priority:       models.PriorityNormal,
		Status:         models.StatusPending,
		RequiredSkills: reqs.Skills,
		Required:       reqs.TierCounts,
	}, nil
}

// RunGenetic executes a batch genetic optimization over the open jobs
// and persists the scenario-labeled result.
func (e *Engine) RunGenetic(ctx context.Context, scenario string, seed int64) (*models.GeneticResult, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Genetic.Timeout)
	defer cancel()
	result, err := e.genetic.Optimize(runCtx, snap, scenario, seed)
	if err != nil {
		return nil, err
	}
	storeCtx, cancelStore := e.storeCtx(ctx)
	defer cancelStore()
	if err := e.stores.Results.SaveGeneticResult(storeCtx, *result); err != nil {
		return result, fmt.Errorf("%w: save genetic result: %v", ErrDataUnavailable, err)
	}
	if result.Partial {
		return result, fmt.Errorf("generation budget cut short: %w", ErrOptimizationTimeout)
	}
	return result, nil
}

// RunMonteCarlo executes a risk simulation and persists the result.
func (e *Engine) RunMonteCarlo(ctx context.Context, params MonteCarloParams) (*models.MonteCarloResult, error) {
	if params.Scenarios <= 0 {
		params.Scenarios = e.cfg.MonteCarlo.Scenarios
	}
	if params.PerformanceStd < 0 {
		return nil, fmt.Errorf("performance_std must be non-negative, got %g", params.PerformanceStd)
	}
	if params.AbsenceProbability < 0 || params.AbsenceProbability > 1 {
		return nil, fmt.Errorf("absence_probability must be in [0,1], got %g", params.AbsenceProbability)
	}

	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.MonteCarlo.Timeout)
	defer cancel()
	result, err := e.monteCarlo.Simulate(runCtx, snap, params)
	if err != nil {
		return nil, err
	}
	storeCtx, cancelStore := e.storeCtx(ctx)
	defer cancelStore()
	if err := e.stores.Results.SaveMonteCarloResult(storeCtx, *result); err != nil {
		return result, fmt.Errorf("%w: save monte carlo result: %v", ErrDataUnavailable, err)
	}
	if result.Partial {
		return result, fmt.Errorf("sampling cut short: %w", ErrOptimizationTimeout)
	}
	return result, nil
}

// RunTaguchi tunes durations for every open job type. A history lookup
// failure degrades that job type to the no-history estimate path; a
// result that does not beat the stored baseline leaves it untouched.
func (e *Engine) RunTaguchi(ctx context.Context, factors []Factor) ([]models.TaguchiResult, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var results []models.TaguchiResult
	for _, job := range snap.Jobs {
		if seen[job.DesignCode] {
			continue
		}
		seen[job.DesignCode] = true

		storeCtx, cancel := e.storeCtx(ctx)
		history, herr := e.stores.History.PastDurations(storeCtx, job.DesignCode)
		if herr != nil {
			history = nil
		}
		department, derr := e.stores.History.Department(storeCtx, job.DesignCode)
		if derr != nil {
			department = ""
		}

		result := e.taguchi.Optimize(job.DesignCode, department, job.RemainingMinutes, history, factors)
		if err := e.stores.Results.UpsertTaguchiResult(storeCtx, result); err != nil {
			cancel()
			return results, fmt.Errorf("%w: save taguchi result for %s: %v", ErrDataUnavailable, job.DesignCode, err)
		}
		cancel()
		results = append(results, result)
	}
	return results, nil
}

// UpdateStatus transitions a job's status, and its priority when one is
// given. Completion archives the job; it stays on record as an
// optimization baseline.
func (e *Engine) UpdateStatus(ctx context.Context, designCode string, status models.Status, priority models.Priority) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.stores.Jobs.UpdateStatus(ctx, designCode, status, priority); err != nil {
		return fmt.Errorf("%w: update status of %s: %v", ErrDataUnavailable, designCode, err)
	}
	return nil
}

// UpdateRemainingDuration updates a job's remaining duration estimate.
func (e *Engine) UpdateRemainingDuration(ctx context.Context, designCode string, minutes float64) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.stores.Jobs.UpdateRemainingDuration(ctx, designCode, minutes); err != nil {
		return fmt.Errorf("%w: update duration of %s: %v", ErrDataUnavailable, designCode, err)
	}
	return nil
}

// LastAssignment returns the most recent assignment audit record.
func (e *Engine) LastAssignment(ctx context.Context) (*models.AssignmentRecord, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.stores.Log.Last(ctx)
}

// AllAssignments returns the full assignment audit trail.
func (e *Engine) AllAssignments(ctx context.Context) ([]models.AssignmentRecord, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.stores.Log.All(ctx)
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
