package scheduler

import (
	"context"
	"fmt"

	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// Snapshot is a consistent point-in-time view of the job and worker data
// set. Ranking, scoring and the batch optimizers read only from it;
// mutations go through the serialized assignment path.
type Snapshot struct {
	Jobs    []models.Job
	Workers []models.Worker

	byName   map[string]models.Worker
	byTier   map[models.Tier][]models.Worker
	activeBy map[string][]*models.Job
}

// NewSnapshot indexes the given jobs and workers. The slices are not
// copied; the caller must not mutate them afterwards.
func NewSnapshot(jobs []models.Job, workers []models.Worker) *Snapshot {
	s := &Snapshot{
		Jobs:     jobs,
		Workers:  workers,
		byName:   make(map[string]models.Worker, len(workers)),
		byTier:   make(map[models.Tier][]models.Worker),
		activeBy: make(map[string][]*models.Job),
	}
	for _, w := range workers {
		s.byName[w.Name] = w
		s.byTier[w.Tier] = append(s.byTier[w.Tier], w)
	}
	for i := range jobs {
		job := &s.Jobs[i]
		if !job.Active() {
			continue
		}
		for _, name := range job.Assigned.Workers() {
			s.activeBy[name] = append(s.activeBy[name], job)
		}
	}
	return s
}

// LoadSnapshot reads the open job list and the full workforce from the
// stores. A worker-store failure on one tier degrades to excluding that
// tier's workers instead of aborting; a job-store failure aborts since
// availability cannot be computed without it.
func LoadSnapshot(ctx context.Context, jobs JobStore, workers WorkerStore) (*Snapshot, error) {
	jobList, err := jobs.OpenJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open jobs: %v", ErrDataUnavailable, err)
	}

	var all []models.Worker
	for _, tier := range models.Tiers {
		tierWorkers, err := workers.WorkersByTier(ctx, tier)
		if err != nil {
			// Degrade: this tier's workers simply rank as unavailable.
			continue
		}
		all = append(all, tierWorkers...)
	}
	return NewSnapshot(jobList, all), nil
}

// Worker looks a worker up by name.
func (s *Snapshot) Worker(name string) (models.Worker, bool) {
	w, ok := s.byName[name]
	return w, ok
}

// WorkersByTier returns the workers of a competency tier.
func (s *Snapshot) WorkersByTier(tier models.Tier) []models.Worker {
	return s.byTier[tier]
}

// IsAvailable reports whether the worker can take a new job right now.
// Contractor placeholders are always available. A worker assigned to any
// non-completed job is not.
func (s *Snapshot) IsAvailable(w models.Worker) bool {
	if w.Contractor {
		return true
	}
	return len(s.activeBy[w.Name]) == 0
}

// CurrentJob returns the job currently occupying the worker, or nil.
// With more than one active job the earliest delivery date wins, so the
// conflict resolver displaces the most pressing commitment knowingly.
func (s *Snapshot) CurrentJob(name string) *models.Job {
	active := s.activeBy[name]
	if len(active) == 0 {
		return nil
	}
	current := active[0]
	for _, job := range active[1:] {
		if job.DeliveryDate.Before(current.DeliveryDate) {
			current = job
		}
	}
	return current
}

// Workload computes the worker's current load against the concurrency
// policy limit.
func (s *Snapshot) Workload(name string, maxConcurrent int) models.WorkloadEffect {
	effect := models.WorkloadEffect{}
	for _, job := range s.activeBy[name] {
		effect.ActiveJobs++
		if job.Priority == models.PriorityCritical {
			effect.ActiveCriticalJobs++
		}
	}
	if maxConcurrent > 0 {
		effect.LoadPct = float64(effect.ActiveJobs) / float64(maxConcurrent) * 100
	}
	return effect
}
