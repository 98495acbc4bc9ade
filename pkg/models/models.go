package models

import (
	"fmt"
	"time"
)

// Tier is a worker competency tier. Lower values outrank higher ones.
type Tier int

const (
	TierMaster     Tier = 1
	TierQualified  Tier = 2
	TierApprentice Tier = 3
)

// Tiers lists all tiers in rank order.
var Tiers = []Tier{TierMaster, TierQualified, TierApprentice}

func (t Tier) String() string {
	switch t {
	case TierMaster:
		return "master"
	case TierQualified:
		return "qualified"
	case TierApprentice:
		return "apprentice"
	}
	return "unknown"
}

// ParseTier converts a tier name to a Tier. Returns an error for
// unrecognized names so bad API input surfaces early.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "master":
		return TierMaster, nil
	case "qualified":
		return TierQualified, nil
	case "apprentice":
		return TierApprentice, nil
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// Priority of a job.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityCritical Priority = "critical"
)

// Status of a job. Completed jobs are archived, never deleted, so they
// stay available as historical optimization baselines.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Worker is a person who can be assigned to jobs. Contractor workers are
// materialized on demand, are always available and have no persisted state.
type Worker struct {
	Name            string   `json:"name"`
	Tier            Tier     `json:"tier"`
	Skills          []string `json:"skills,omitempty"`
	ExperienceYears float64  `json:"experience_years"`
	Efficiency      float64  `json:"efficiency"` // 0..1
	Contractor      bool     `json:"contractor,omitempty"`
}

// ContractorFor returns the synthetic contractor placeholder for a tier.
func ContractorFor(tier Tier, efficiency float64) Worker {
	return Worker{
		Name:       fmt.Sprintf("Contractor (%s)", tier),
		Tier:       tier,
		Efficiency: efficiency,
		Contractor: true,
	}
}

// TierCounts maps a tier to a worker count (required or missing).
type TierCounts map[Tier]int

// Total sums the counts over all tiers.
func (tc TierCounts) Total() int {
	n := 0
	for _, c := range tc {
		n += c
	}
	return n
}

// Assignment is the normalized representation of a job's assigned workers.
// Legacy data carried either a single worker name or a tier-keyed list of
// names; both shapes funnel into this one.
type Assignment struct {
	Single string            `json:"single,omitempty"`
	Tiered map[Tier][]string `json:"tiered,omitempty"`
}

// SingleAssignment wraps one worker name.
func SingleAssignment(name string) Assignment {
	return Assignment{Single: name}
}

// TieredAssignment wraps a tier-keyed worker list.
func TieredAssignment(m map[Tier][]string) Assignment {
	return Assignment{Tiered: m}
}

// Workers returns every assigned worker name regardless of shape.
func (a Assignment) Workers() []string {
	if a.Single != "" {
		return []string{a.Single}
	}
	var names []string
	for _, tier := range Tiers {
		names = append(names, a.Tiered[tier]...)
	}
	return names
}

// Empty reports whether no worker is assigned.
func (a Assignment) Empty() bool {
	return a.Single == "" && len(a.Workers()) == 0
}

// Has reports whether the named worker appears in the assignment.
func (a Assignment) Has(name string) bool {
	for _, w := range a.Workers() {
		if w == name {
			return true
		}
	}
	return false
}

// Job is a unit of manufacturing work keyed by its design code.
type Job struct {
	DesignCode       string     `json:"design_code"`
	ProjectName      string     `json:"project_name"`
	Priority         Priority   `json:"priority"`
	DeliveryDate     time.Time  `json:"delivery_date"`
	Status           Status     `json:"status"`
	RemainingMinutes float64    `json:"remaining_minutes"`
	RequiredSkills   []string   `json:"required_skills,omitempty"`
	Required         TierCounts `json:"required"`
	Assigned         Assignment `json:"assigned"`
	UsesContractor   bool       `json:"uses_contractor,omitempty"`
}

// Active reports whether the job still occupies its workers.
func (j Job) Active() bool {
	return j.Status != StatusCompleted
}

// Requirements is the design-code metadata needed to staff a job.
type Requirements struct {
	Skills     []string   `json:"skills,omitempty"`
	TierCounts TierCounts `json:"tier_counts"`
}

// WorkloadEffect describes a worker's current load at scoring time.
type WorkloadEffect struct {
	ActiveJobs         int     `json:"active_jobs"`
	ActiveCriticalJobs int     `json:"active_critical_jobs"`
	LoadPct            float64 `json:"load_pct"`
}

// FitnessBreakdown is the scored suitability of a (job, worker) pair.
// All component scores are on a 0-100 scale.
type FitnessBreakdown struct {
	CompetencyMatchPct float64        `json:"competency_match_pct"`
	ExperienceScore    float64        `json:"experience_score"`
	EfficiencyScore    float64        `json:"efficiency_score"`
	Workload           WorkloadEffect `json:"workload"`
	Composite          float64        `json:"composite"`
}

// RankedCandidate pairs a worker with their fitness for a specific job.
type RankedCandidate struct {
	Worker  Worker           `json:"worker"`
	Fitness FitnessBreakdown `json:"fitness"`
}

// TierRanking is the ranking outcome for one required tier of one job.
// Selected holds real workers only; Shortfall slots are covered by the
// Contractors placeholders.
type TierRanking struct {
	Selected    []RankedCandidate `json:"selected"`
	Alternates  []RankedCandidate `json:"alternates,omitempty"`
	Contractors []Worker          `json:"contractors,omitempty"`
	Required    int               `json:"required"`
	Shortfall   int               `json:"shortfall"`
}

// CandidateRanking is the Candidate Ranker's result for a job.
type CandidateRanking struct {
	DesignCode         string               `json:"design_code"`
	Tiers              map[Tier]TierRanking `json:"tiers"`
	RequiresContractor bool                 `json:"requires_contractor"`
}

// Shortfalls collects the per-tier shortfall counts.
func (r CandidateRanking) Shortfalls() TierCounts {
	out := TierCounts{}
	for tier, tr := range r.Tiers {
		if tr.Shortfall > 0 {
			out[tier] = tr.Shortfall
		}
	}
	return out
}

// AssignmentReason records why an assignment happened the way it did.
type AssignmentReason string

const (
	ReasonWorkerFree      AssignmentReason = "worker_free"
	ReasonWorkerDisplaced AssignmentReason = "worker_displaced"
)

// AssignmentRecord is one entry of the append-only assignment audit log.
type AssignmentRecord struct {
	ID             uint              `json:"id,omitempty"`
	DesignCode     string            `json:"design_code"`
	ProjectName    string            `json:"project_name,omitempty"`
	Worker         string            `json:"worker"`
	Fitness        FitnessBreakdown  `json:"fitness"`
	GeneticFitness float64           `json:"genetic_fitness,omitempty"`
	Alternates     []RankedCandidate `json:"alternates,omitempty"`
	Reason         AssignmentReason  `json:"reason"`
	CreatedAt      time.Time         `json:"created_at"`
}

// JobOptimization is the genetic optimizer's outcome for a single job.
type JobOptimization struct {
	Chosen      map[Tier][]RankedCandidate `json:"chosen"`
	Alternates  map[Tier][]RankedCandidate `json:"alternates,omitempty"`
	Contractors []Worker                   `json:"contractors,omitempty"`
	Shortfall   TierCounts                 `json:"shortfall,omitempty"`
}

// GeneticResult is the best-of-run solution of a genetic search.
type GeneticResult struct {
	Scenario    string                     `json:"scenario"`
	Seed        int64                      `json:"seed"`
	Jobs        map[string]JobOptimization `json:"jobs"`
	Fitness     float64                    `json:"fitness"`
	Generations int                        `json:"generations"`
	Partial     bool                       `json:"partial,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// TaguchiResult is the recommended duration for one job type.
type TaguchiResult struct {
	DesignCode       string    `json:"design_code"`
	Department       string    `json:"department,omitempty"`
	OptimalDuration  float64   `json:"optimal_duration"`
	BaselineDuration float64   `json:"baseline_duration"`
	ImprovementPct   float64   `json:"improvement_pct"`
	Method           string    `json:"method"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WorkerRisk is the Monte Carlo aggregate for one worker.
type WorkerRisk struct {
	AveragePerformance   float64 `json:"average_performance"`
	RiskScore            float64 `json:"risk_score"`
	DelayProbability     float64 `json:"delay_probability"`
	PerformanceStability float64 `json:"performance_stability"`
}

// JobTypeRisk is the Monte Carlo aggregate for one job type.
type JobTypeRisk struct {
	AveragePerformance float64 `json:"average_performance"`
	RiskScore          float64 `json:"risk_score"`
	DelayProbability   float64 `json:"delay_probability"`
}

// ScenarioStats summarizes fitness across all sampled scenarios.
type ScenarioStats struct {
	Count      int     `json:"count"`
	AvgFitness float64 `json:"avg_fitness"`
	MinFitness float64 `json:"min_fitness"`
	MaxFitness float64 `json:"max_fitness"`
	StdFitness float64 `json:"std_fitness"`
}

// TierDemand describes personnel need for one tier across scenarios.
type TierDemand struct {
	Required          int     `json:"required"`
	AvgContractorNeed float64 `json:"avg_contractor_need"`
	MaxContractorNeed int     `json:"max_contractor_need"`
}

// MonteCarloResult is the full output of a risk simulation run.
type MonteCarloResult struct {
	Workers   map[string]WorkerRisk  `json:"workers"`
	JobTypes  map[string]JobTypeRisk `json:"job_types,omitempty"`
	Scenarios ScenarioStats          `json:"scenarios"`
	Demand    map[Tier]TierDemand    `json:"demand,omitempty"`
	Partial   bool                   `json:"partial,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
