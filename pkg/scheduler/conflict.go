package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// workerLocks serializes assignment transactions per worker so two
// concurrent requests resolving to the same worker cannot both succeed.
type workerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newWorkerLocks() *workerLocks {
	return &workerLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the named workers in sorted order (avoiding lock-order
// inversion between overlapping transactions) and returns the release.
func (l *workerLocks) acquire(names []string) func() {
	unique := uniqueStrings(names)
	var held []*sync.Mutex
	for _, name := range unique {
		l.mu.Lock()
		m, ok := l.locks[name]
		if !ok {
			m = &sync.Mutex{}
			l.locks[name] = m
		}
		l.mu.Unlock()
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// DecisionKind labels the conflict resolver's verdict for a critical job.
type DecisionKind string

const (
	// DecisionDirectAssign: the top pick is free, assign immediately.
	DecisionDirectAssign DecisionKind = "direct_assign"
	// DecisionProposeDisplacement: the top pick is busy on a lower
	// priority job; displacement needs confirmation.
	DecisionProposeDisplacement DecisionKind = "propose_displacement"
	// DecisionFallback: the top pick is busy on an equal-or-higher
	// priority job and cannot be displaced.
	DecisionFallback DecisionKind = "fallback"
)

// DisplacementProposal asks the caller to confirm moving the top pick off
// their current job onto the new critical job.
type DisplacementProposal struct {
	TopPick    models.RankedCandidate `json:"top_pick"`
	CurrentJob models.Job             `json:"current_job"`
}

// Decision is the resolver's evaluation of a critical job submission.
type Decision struct {
	Kind     DecisionKind            `json:"kind"`
	Ranking  models.CandidateRanking `json:"ranking"`
	Proposal *DisplacementProposal   `json:"proposal,omitempty"`
}

// Outcome is the terminal state of an assignment transition.
type Outcome struct {
	Job                models.Job              `json:"job"`
	Ranking            models.CandidateRanking `json:"ranking"`
	RequiresContractor bool                    `json:"requires_contractor"`
	Deferred           bool                    `json:"deferred,omitempty"`
	// Transferred describes the vacated job's new assignment when a
	// displacement was executed.
	Transferred *models.Job `json:"transferred,omitempty"`
}

// Resolver implements the reassignment protocol for critical jobs.
type Resolver struct {
	cfg    *config.Config
	ranker *Ranker
	jobs   JobStore
	log    AssignmentLog
	locks  *workerLocks
}

// NewResolver builds a Resolver sharing the engine's serialization locks.
func NewResolver(cfg *config.Config, ranker *Ranker, jobs JobStore, log AssignmentLog, locks *workerLocks) *Resolver {
	return &Resolver{cfg: cfg, ranker: ranker, jobs: jobs, log: log, locks: locks}
}

// Evaluate runs step 1 of the protocol: inspect the top pick of every
// required tier and decide whether the job can be assigned directly,
// needs a displacement confirmation, or must fall back to the next
// candidate. A tier whose best fit is free never masks another tier
// whose best fit is busy.
func (r *Resolver) Evaluate(job models.Job, snap *Snapshot) Decision {
	ranking := r.ranker.Rank(job, snap)
	decision := Decision{Kind: DecisionDirectAssign, Ranking: ranking}

	var proposal *DisplacementProposal
	blocked := false
	for _, tier := range models.Tiers {
		if job.Required[tier] == 0 {
			continue
		}
		top := r.ranker.TopPickInTier(job, tier, snap)
		if top == nil || snap.IsAvailable(top.Worker) {
			continue
		}
		current := snap.CurrentJob(top.Worker.Name)
		if current != nil && current.Priority != models.PriorityCritical {
			// Multiple busy tiers: propose for the strongest candidate.
			if proposal == nil || top.Fitness.Composite > proposal.TopPick.Fitness.Composite {
				proposal = &DisplacementProposal{TopPick: *top, CurrentJob: *current}
			}
			continue
		}
		blocked = true
	}

	if proposal != nil {
		decision.Kind = DecisionProposeDisplacement
		decision.Proposal = proposal
		return decision
	}
	if blocked {
		decision.Kind = DecisionFallback
	}
	return decision
}

// Confirm executes an accepted displacement: the vacated job is re-ranked
// without the moved worker and transferred to the best alternate, or to a
// contractor placeholder when none qualifies; the new critical job gets
// the moved worker. Vacate+assign run as a single atomic unit at the
// persistence boundary. A conflicting write surfaces as ErrConflictingWrite
// so the engine can retry against a fresh snapshot.
func (r *Resolver) Confirm(ctx context.Context, job models.Job, proposal DisplacementProposal, snap *Snapshot) (*Outcome, error) {
	moved := proposal.TopPick.Worker
	vacated := proposal.CurrentJob

	replacementRanking := r.ranker.RankExcluding(vacated, snap, map[string]bool{moved.Name: true})
	replacement, contractorBackfill := pickReplacement(replacementRanking, moved.Tier, r.cfg.ContractorEfficiency)

	newRanking := r.ranker.RankExcluding(job, snap, map[string]bool{})
	assignment, usesContractor := buildAssignment(newRanking, map[string]string{moved.Tier.String(): moved.Name})

	release := r.locks.acquire(append(assignment.Workers(), replacement.Workers()...))
	defer release()

	newJob := job
	newJob.Assigned = assignment
	newJob.Status = models.StatusInProgress
	newJob.UsesContractor = usesContractor

	err := r.jobs.TransferAndAssign(ctx, vacated.DesignCode, moved.Name, replacement, contractorBackfill, newJob)
	if err != nil {
		return nil, fmt.Errorf("displacement of %s: %w", moved.Name, err)
	}

	r.appendRecord(ctx, newJob, moved.Name, proposal.TopPick.Fitness, newRanking, models.ReasonWorkerDisplaced)

	transferred := vacated
	transferred.Assigned = replacement
	transferred.UsesContractor = contractorBackfill
	return &Outcome{
		Job:                newJob,
		Ranking:            newRanking,
		RequiresContractor: usesContractor || contractorBackfill,
		Transferred:        &transferred,
	}, nil
}

// Decline handles a refused displacement: re-rank excluding the busy
// worker and assign the next-best candidate. What happens when a tier
// ends up empty is policy: immediate contractor backfill, or leave the
// job pending.
func (r *Resolver) Decline(ctx context.Context, job models.Job, busyWorker string, snap *Snapshot) (*Outcome, error) {
	ranking := r.ranker.RankExcluding(job, snap, map[string]bool{busyWorker: true})

	if ranking.RequiresContractor && r.cfg.DeclinePolicy == config.DeclinePending {
		pending := job
		pending.Status = models.StatusPending
		if err := r.jobs.CreateJob(ctx, pending); err != nil {
			return nil, fmt.Errorf("%w: create pending job: %v", ErrDataUnavailable, err)
		}
		return &Outcome{Job: pending, Ranking: ranking, RequiresContractor: true, Deferred: true}, nil
	}

	assignment, usesContractor := buildAssignment(ranking, nil)
	release := r.locks.acquire(assignment.Workers())
	defer release()

	assigned := job
	assigned.Assigned = assignment
	assigned.Status = models.StatusInProgress
	assigned.UsesContractor = usesContractor
	if err := r.jobs.CreateJob(ctx, assigned); err != nil {
		return nil, fmt.Errorf("%w: create job: %v", ErrDataUnavailable, err)
	}

	if lead := firstAssigned(ranking); lead != nil {
		r.appendRecord(ctx, assigned, lead.Worker.Name, lead.Fitness, ranking, models.ReasonWorkerFree)
	}
	return &Outcome{Job: assigned, Ranking: ranking, RequiresContractor: usesContractor}, nil
}

func (r *Resolver) appendRecord(ctx context.Context, job models.Job, worker string, fitness models.FitnessBreakdown, ranking models.CandidateRanking, reason models.AssignmentReason) {
	rec := models.AssignmentRecord{
		DesignCode:  job.DesignCode,
		ProjectName: job.ProjectName,
		Worker:      worker,
		Fitness:     fitness,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
	for _, tier := range models.Tiers {
		rec.Alternates = append(rec.Alternates, ranking.Tiers[tier].Alternates...)
	}
	// Log failures are not fatal to the assignment itself.
	_ = r.log.Append(ctx, rec)
}

// pickReplacement selects the vacated job's new worker: the best ranked
// alternate of the moved worker's tier, falling back to a contractor.
func pickReplacement(ranking models.CandidateRanking, tier models.Tier, contractorEfficiency float64) (models.Assignment, bool) {
	tr := ranking.Tiers[tier]
	if len(tr.Selected) > 0 {
		return models.SingleAssignment(tr.Selected[0].Worker.Name), false
	}
	return models.SingleAssignment(models.ContractorFor(tier, contractorEfficiency).Name), true
}

// buildAssignment assembles the tier-keyed assignment from a ranking,
// optionally forcing a named worker into a tier (the displaced top pick
// takes one slot of their tier on the new job).
func buildAssignment(ranking models.CandidateRanking, force map[string]string) (models.Assignment, bool) {
	tiered := make(map[models.Tier][]string)
	usesContractor := false
	for _, tier := range models.Tiers {
		tr, ok := ranking.Tiers[tier]
		if !ok {
			continue
		}
		var names []string
		if force != nil {
			if forced, ok := force[tier.String()]; ok {
				names = append(names, forced)
			}
		}
		for _, cand := range tr.Selected {
			if len(names) >= tr.Required {
				break
			}
			if !contains(names, cand.Worker.Name) {
				names = append(names, cand.Worker.Name)
			}
		}
		for _, c := range tr.Contractors {
			if len(names) >= tr.Required {
				break
			}
			names = append(names, c.Name)
			usesContractor = true
		}
		// A forced worker plus a full selection can still leave a gap
		// when selections collide; fill with contractors.
		for len(names) < tr.Required {
			names = append(names, models.ContractorFor(tier, 0).Name)
			usesContractor = true
		}
		tiered[tier] = names
	}
	return models.TieredAssignment(tiered), usesContractor
}

func firstAssigned(ranking models.CandidateRanking) *models.RankedCandidate {
	for _, tier := range models.Tiers {
		tr, ok := ranking.Tiers[tier]
		if ok && len(tr.Selected) > 0 {
			cand := tr.Selected[0]
			return &cand
		}
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
