package scheduler

import (
	"math"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// experienceCapYears is where the experience ramp saturates at 100.
const experienceCapYears = 20.0

// Scorer computes suitability scores for (job, worker) pairs. It is a
// pure function of the snapshot passed in; no side effects.
type Scorer struct {
	cfg *config.Config
}

// NewScorer builds a Scorer with the given tuning.
func NewScorer(cfg *config.Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the fitness breakdown of assigning the worker to the job
// given the current workload in snap.
func (s *Scorer) Score(job models.Job, w models.Worker, snap *Snapshot) models.FitnessBreakdown {
	b := models.FitnessBreakdown{
		CompetencyMatchPct: competencyMatch(job.RequiredSkills, w.Skills),
		ExperienceScore:    experienceScore(w.ExperienceYears),
		EfficiencyScore:    clamp01(w.Efficiency) * 100,
	}
	if !w.Contractor {
		b.Workload = snap.Workload(w.Name, s.cfg.MaxConcurrentJobs)
	}

	weights := s.cfg.Weights
	if job.Priority == models.PriorityCritical {
		weights = s.cfg.CriticalWeights
	}
	b.Composite = weights.Competency*b.CompetencyMatchPct +
		weights.Experience*b.ExperienceScore +
		weights.Efficiency*b.EfficiencyScore +
		weights.Availability*(100-math.Min(b.Workload.LoadPct, 100))
	return b
}

// competencyMatch is the required-skill intersection ratio on a 0-100
// scale. A job requiring no skills scores 0, not 100.
func competencyMatch(required, held []string) float64 {
	if len(required) == 0 {
		return 0
	}
	heldSet := make(map[string]bool, len(held))
	for _, skill := range held {
		heldSet[skill] = true
	}
	matched := 0
	for _, skill := range required {
		if heldSet[skill] {
			matched++
		}
	}
	return float64(matched) / float64(len(required)) * 100
}

// experienceScore is a linear ramp capped at experienceCapYears.
func experienceScore(years float64) float64 {
	if years <= 0 {
		return 0
	}
	return math.Min(years/experienceCapYears, 1) * 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
