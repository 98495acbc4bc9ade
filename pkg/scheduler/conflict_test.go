package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// fakeJobStore is an in-memory JobStore with optional write-conflict
// injection.
type fakeJobStore struct {
	mu        sync.Mutex
	jobs      map[string]models.Job
	failNext  int
	transfers int
}

func newFakeJobStore(jobs ...models.Job) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]models.Job)}
	for _, job := range jobs {
		s.jobs[job.DesignCode] = job
	}
	return s
}

func (s *fakeJobStore) OpenJobs(ctx context.Context) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Job
	for _, job := range s.jobs {
		if job.Active() {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *fakeJobStore) Job(ctx context.Context, designCode string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[designCode]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: job %s not found", ErrDataUnavailable, designCode)
	}
	return job, nil
}

func (s *fakeJobStore) CreateJob(ctx context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return ErrConflictingWrite
	}
	for _, name := range job.Assigned.Workers() {
		if strings.HasPrefix(name, "Contractor (") {
			continue
		}
		for _, other := range s.jobs {
			if other.Active() && other.Assigned.Has(name) {
				return fmt.Errorf("%w: %s is busy", ErrConflictingWrite, name)
			}
		}
	}
	s.jobs[job.DesignCode] = job
	return nil
}

func (s *fakeJobStore) SaveAssignment(ctx context.Context, designCode string, assigned models.Assignment, status models.Status, usesContractor bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[designCode]
	if !ok {
		return fmt.Errorf("%w: job %s not found", ErrDataUnavailable, designCode)
	}
	job.Assigned = assigned
	job.Status = status
	job.UsesContractor = usesContractor
	s.jobs[designCode] = job
	return nil
}

func (s *fakeJobStore) UpdateStatus(ctx context.Context, designCode string, status models.Status, priority models.Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[designCode]
	if !ok {
		return fmt.Errorf("%w: job %s not found", ErrDataUnavailable, designCode)
	}
	job.Status = status
	if priority != "" {
		job.Priority = priority
	}
	s.jobs[designCode] = job
	return nil
}

func (s *fakeJobStore) UpdateRemainingDuration(ctx context.Context, designCode string, minutes float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[designCode]
	if !ok {
		return fmt.Errorf("%w: job %s not found", ErrDataUnavailable, designCode)
	}
	job.RemainingMinutes = minutes
	s.jobs[designCode] = job
	return nil
}

func (s *fakeJobStore) TransferAndAssign(ctx context.Context, vacatedCode string, movedWorker string, replacement models.Assignment, contractorBackfill bool, newJob models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return ErrConflictingWrite
	}
	vacated, ok := s.jobs[vacatedCode]
	if !ok || !vacated.Assigned.Has(movedWorker) {
		return fmt.Errorf("%w: %s no longer on %s", ErrConflictingWrite, movedWorker, vacatedCode)
	}
	vacated.Assigned = replacement
	vacated.UsesContractor = vacated.UsesContractor || contractorBackfill
	s.jobs[vacatedCode] = vacated
	s.jobs[newJob.DesignCode] = newJob
	s.transfers++
	return nil
}

func (s *fakeJobStore) get(code string) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[code]
	return job, ok
}

// fakeLog is an in-memory AssignmentLog.
type fakeLog struct {
	mu   sync.Mutex
	recs []models.AssignmentRecord
}

func (l *fakeLog) Append(ctx context.Context, rec models.AssignmentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
	return nil
}

func (l *fakeLog) Last(ctx context.Context) (*models.AssignmentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.recs) == 0 {
		return nil, nil
	}
	rec := l.recs[len(l.recs)-1]
	return &rec, nil
}

func (l *fakeLog) All(ctx context.Context) ([]models.AssignmentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.AssignmentRecord(nil), l.recs...), nil
}

func resolverFixture(cfg *config.Config) (*Resolver, *fakeJobStore, *fakeLog, *Snapshot, models.Job) {
	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.95, ExperienceYears: 15},
		{Name: "Veli", Tier: models.TierMaster, Efficiency: 0.6, ExperienceYears: 4},
	}
	oldJob := models.Job{
		DesignCode:   "D-OLD",
		ProjectName:  "Running order",
		Priority:     models.PriorityNormal,
		Status:       models.StatusInProgress,
		DeliveryDate: time.Now().Add(48 * time.Hour),
		Required:     models.TierCounts{models.TierMaster: 1},
		Assigned:     models.SingleAssignment("Ali"),
	}
	criticalJob := models.Job{
		DesignCode:  "D-CRIT",
		ProjectName: "Rush order",
		Priority:    models.PriorityCritical,
		Required:    models.TierCounts{models.TierMaster: 1},
	}

	jobs := newFakeJobStore(oldJob)
	log := &fakeLog{}
	ranker := NewRanker(cfg, NewScorer(cfg))
	resolver := NewResolver(cfg, ranker, jobs, log, newWorkerLocks())
	snap := NewSnapshot([]models.Job{oldJob}, workers)
	return resolver, jobs, log, snap, criticalJob
}

func TestEvaluateProposesDisplacement(t *testing.T) {
	resolver, _, _, snap, critical := resolverFixture(config.Default())

	decision := resolver.Evaluate(critical, snap)
	if decision.Kind != DecisionProposeDisplacement {
		t.Fatalf("Expected displacement proposal, got %s", decision.Kind)
	}
	if decision.Proposal.TopPick.Worker.Name != "Ali" {
		t.Errorf("Expected top pick Ali, got %s", decision.Proposal.TopPick.Worker.Name)
	}
	if decision.Proposal.CurrentJob.DesignCode != "D-OLD" {
		t.Errorf("Expected current job D-OLD, got %s", decision.Proposal.CurrentJob.DesignCode)
	}
}

func TestEvaluateFallbackWhenCurrentJobCritical(t *testing.T) {
	resolver, _, _, _, critical := resolverFixture(config.Default())

	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.95, ExperienceYears: 15},
	}
	busyCritical := models.Job{
		DesignCode: "D-HOT",
		Priority:   models.PriorityCritical,
		Status:     models.StatusInProgress,
		Required:   models.TierCounts{models.TierMaster: 1},
		Assigned:   models.SingleAssignment("Ali"),
	}
	snap := NewSnapshot([]models.Job{busyCritical}, workers)

	decision := resolver.Evaluate(critical, snap)
	if decision.Kind != DecisionFallback {
		t.Errorf("Expected fallback against a critical current job, got %s", decision.Kind)
	}
}

func TestEvaluateDirectWhenTopPickFree(t *testing.T) {
	resolver, _, _, _, critical := resolverFixture(config.Default())
	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.95, ExperienceYears: 15},
	}
	snap := NewSnapshot(nil, workers)

	decision := resolver.Evaluate(critical, snap)
	if decision.Kind != DecisionDirectAssign {
		t.Errorf("Expected direct assignment for a free top pick, got %s", decision.Kind)
	}
}

func TestConfirmDisplacement(t *testing.T) {
	resolver, jobs, log, snap, critical := resolverFixture(config.Default())
	decision := resolver.Evaluate(critical, snap)
	if decision.Kind != DecisionProposeDisplacement {
		t.Fatalf("Expected displacement proposal, got %s", decision.Kind)
	}

	outcome, err := resolver.Confirm(context.Background(), critical, *decision.Proposal, snap)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	if !outcome.Job.Assigned.Has("Ali") {
		t.Errorf("Expected moved worker on the new job, got %+v", outcome.Job.Assigned)
	}
	if outcome.Transferred == nil || !outcome.Transferred.Assigned.Has("Veli") {
		t.Errorf("Expected vacated job handed to the alternate, got %+v", outcome.Transferred)
	}

	stored, ok := jobs.get("D-CRIT")
	if !ok || stored.Status != models.StatusInProgress {
		t.Errorf("Expected persisted in-progress critical job, got %+v", stored)
	}
	vacated, _ := jobs.get("D-OLD")
	if !vacated.Assigned.Has("Veli") || vacated.Assigned.Has("Ali") {
		t.Errorf("Expected vacated job reassigned to Veli, got %+v", vacated.Assigned)
	}

	last, _ := log.Last(context.Background())
	if last == nil || last.Reason != models.ReasonWorkerDisplaced {
		t.Errorf("Expected a worker_displaced log record, got %+v", last)
	}
}

func TestConfirmContractorBackfill(t *testing.T) {
	cfg := config.Default()
	// Only one master exists: vacating them leaves no replacement.
	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.95, ExperienceYears: 15},
	}
	oldJob := models.Job{
		DesignCode:   "D-OLD",
		Status:       models.StatusInProgress,
		DeliveryDate: time.Now().Add(48 * time.Hour),
		Required:     models.TierCounts{models.TierMaster: 1},
		Assigned:     models.SingleAssignment("Ali"),
	}
	critical := models.Job{
		DesignCode: "D-CRIT",
		Priority:   models.PriorityCritical,
		Required:   models.TierCounts{models.TierMaster: 1},
	}
	jobs := newFakeJobStore(oldJob)
	log := &fakeLog{}
	ranker := NewRanker(cfg, NewScorer(cfg))
	resolver := NewResolver(cfg, ranker, jobs, log, newWorkerLocks())
	snap := NewSnapshot([]models.Job{oldJob}, workers)

	proposal := DisplacementProposal{
		TopPick:    models.RankedCandidate{Worker: workers[0]},
		CurrentJob: oldJob,
	}
	outcome, err := resolver.Confirm(context.Background(), critical, proposal, snap)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if !outcome.RequiresContractor {
		t.Error("Expected contractor requirement when no replacement exists")
	}
	vacated, _ := jobs.get("D-OLD")
	if !vacated.Assigned.Has("Contractor (master)") {
		t.Errorf("Expected contractor backfill on the vacated job, got %+v", vacated.Assigned)
	}
}

func TestConfirmSurfacesConflict(t *testing.T) {
	resolver, jobs, _, snap, critical := resolverFixture(config.Default())
	jobs.failNext = 1

	decision := resolver.Evaluate(critical, snap)
	_, err := resolver.Confirm(context.Background(), critical, *decision.Proposal, snap)
	if !errors.Is(err, ErrConflictingWrite) {
		t.Errorf("Expected the conflict surfaced for the caller to retry, got %v", err)
	}
	if jobs.transfers != 0 {
		t.Errorf("Expected no completed transfer, got %d", jobs.transfers)
	}
}

func TestEvaluateChecksEveryRequiredTier(t *testing.T) {
	cfg := config.Default()
	// The free master outscores the busy qualified worker overall, but
	// the qualified tier still needs its busy best fit displaced.
	workers := []models.Worker{
		{Name: "Demir Usta", Tier: models.TierMaster, Efficiency: 0.9, ExperienceYears: 20},
		{Name: "Kaynak Kalfa", Tier: models.TierQualified, Efficiency: 0.95, ExperienceYears: 15},
	}
	busy := models.Job{
		DesignCode:   "D-OLD",
		Priority:     models.PriorityNormal,
		Status:       models.StatusInProgress,
		DeliveryDate: time.Now().Add(48 * time.Hour),
		Required:     models.TierCounts{models.TierQualified: 1},
		Assigned:     models.SingleAssignment("Kaynak Kalfa"),
	}
	critical := models.Job{
		DesignCode: "D-CRIT",
		Priority:   models.PriorityCritical,
		Required:   models.TierCounts{models.TierMaster: 1, models.TierQualified: 1},
	}
	jobs := newFakeJobStore(busy)
	resolver := NewResolver(cfg, NewRanker(cfg, NewScorer(cfg)), jobs, &fakeLog{}, newWorkerLocks())
	snap := NewSnapshot([]models.Job{busy}, workers)

	decision := resolver.Evaluate(critical, snap)
	if decision.Kind != DecisionProposeDisplacement {
		t.Fatalf("Expected displacement proposal for the busy qualified tier, got %s", decision.Kind)
	}
	if decision.Proposal.TopPick.Worker.Name != "Kaynak Kalfa" {
		t.Errorf("Expected the busy qualified worker proposed, got %s", decision.Proposal.TopPick.Worker.Name)
	}
	if decision.Proposal.CurrentJob.DesignCode != "D-OLD" {
		t.Errorf("Expected current job D-OLD, got %s", decision.Proposal.CurrentJob.DesignCode)
	}
}

func TestDeclineAssignsNextBest(t *testing.T) {
	resolver, jobs, log, snap, critical := resolverFixture(config.Default())

	outcome, err := resolver.Decline(context.Background(), critical, "Ali", snap)
	if err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if !outcome.Job.Assigned.Has("Veli") {
		t.Errorf("Expected next-best worker assigned, got %+v", outcome.Job.Assigned)
	}
	if outcome.RequiresContractor {
		t.Error("Expected no contractor when an alternate exists")
	}
	if _, ok := jobs.get("D-CRIT"); !ok {
		t.Error("Expected the declined job to be persisted")
	}

	last, _ := log.Last(context.Background())
	if last == nil || last.Reason != models.ReasonWorkerFree {
		t.Errorf("Expected a worker_free log record, got %+v", last)
	}
}

func TestDeclineContractorPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.DeclinePolicy = config.DeclineContractor

	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.95},
	}
	busy := models.Job{
		DesignCode: "D-OLD",
		Status:     models.StatusInProgress,
		Required:   models.TierCounts{models.TierMaster: 1},
		Assigned:   models.SingleAssignment("Ali"),
	}
	critical := models.Job{
		DesignCode: "D-CRIT",
		Priority:   models.PriorityCritical,
		Required:   models.TierCounts{models.TierMaster: 1},
	}
	jobs := newFakeJobStore(busy)
	resolver := NewResolver(cfg, NewRanker(cfg, NewScorer(cfg)), jobs, &fakeLog{}, newWorkerLocks())
	snap := NewSnapshot([]models.Job{busy}, workers)

	outcome, err := resolver.Decline(context.Background(), critical, "Ali", snap)
	if err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if !outcome.RequiresContractor || outcome.Deferred {
		t.Errorf("Expected immediate contractor fallback, got %+v", outcome)
	}
	if !outcome.Job.Assigned.Has("Contractor (master)") {
		t.Errorf("Expected contractor on the job, got %+v", outcome.Job.Assigned)
	}
	if outcome.Job.Status != models.StatusInProgress {
		t.Errorf("Expected in-progress status, got %s", outcome.Job.Status)
	}
}

func TestDeclinePendingPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.DeclinePolicy = config.DeclinePending

	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.95},
	}
	busy := models.Job{
		DesignCode: "D-OLD",
		Status:     models.StatusInProgress,
		Required:   models.TierCounts{models.TierMaster: 1},
		Assigned:   models.SingleAssignment("Ali"),
	}
	critical := models.Job{
		DesignCode: "D-CRIT",
		Priority:   models.PriorityCritical,
		Required:   models.TierCounts{models.TierMaster: 1},
	}
	jobs := newFakeJobStore(busy)
	resolver := NewResolver(cfg, NewRanker(cfg, NewScorer(cfg)), jobs, &fakeLog{}, newWorkerLocks())
	snap := NewSnapshot([]models.Job{busy}, workers)

	outcome, err := resolver.Decline(context.Background(), critical, "Ali", snap)
	if err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if !outcome.Deferred {
		t.Error("Expected deferred outcome under pending policy")
	}
	stored, ok := jobs.get("D-CRIT")
	if !ok || stored.Status != models.StatusPending {
		t.Errorf("Expected pending job persisted, got %+v", stored)
	}
	if !stored.Assigned.Empty() {
		t.Errorf("Expected no assignment on the pending job, got %+v", stored.Assigned)
	}
}
