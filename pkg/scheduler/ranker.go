package scheduler

import (
	"sort"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// Ranker produces ranked primary and alternate worker lists per
// competency tier for a job, and computes contractor shortfall.
type Ranker struct {
	cfg    *config.Config
	scorer *Scorer
}

// NewRanker builds a Ranker sharing the engine tuning.
func NewRanker(cfg *config.Config, scorer *Scorer) *Ranker {
	return &Ranker{cfg: cfg, scorer: scorer}
}

// Rank ranks candidates for every required tier of the job.
func (r *Ranker) Rank(job models.Job, snap *Snapshot) models.CandidateRanking {
	return r.RankExcluding(job, snap, nil)
}

// RankExcluding ranks candidates while treating the named workers as
// unavailable. Used by the conflict resolver to re-rank a vacated job
// without the worker being moved off it.
func (r *Ranker) RankExcluding(job models.Job, snap *Snapshot, exclude map[string]bool) models.CandidateRanking {
	ranking := models.CandidateRanking{
		DesignCode: job.DesignCode,
		Tiers:      make(map[models.Tier]models.TierRanking),
	}

	for _, tier := range models.Tiers {
		required := job.Required[tier]
		if required == 0 {
			continue
		}

		var candidates []models.RankedCandidate
		for _, w := range snap.WorkersByTier(tier) {
			if exclude[w.Name] || !snap.IsAvailable(w) {
				continue
			}
			candidates = append(candidates, models.RankedCandidate{
				Worker:  w,
				Fitness: r.scorer.Score(job, w, snap),
			})
		}
		sortCandidates(candidates)

		tr := models.TierRanking{Required: required}
		if len(candidates) > required {
			tr.Selected = candidates[:required]
			tr.Alternates = candidates[required:]
		} else {
			tr.Selected = candidates
		}
		tr.Shortfall = required - len(tr.Selected)
		for i := 0; i < tr.Shortfall; i++ {
			tr.Contractors = append(tr.Contractors, models.ContractorFor(tier, r.cfg.ContractorEfficiency))
		}
		if tr.Shortfall > 0 {
			ranking.RequiresContractor = true
		}
		ranking.Tiers[tier] = tr
	}
	return ranking
}

// TopPickInTier returns the tier's best-fit worker regardless of
// availability, or nil when the tier has no workers at all.
func (r *Ranker) TopPickInTier(job models.Job, tier models.Tier, snap *Snapshot) *models.RankedCandidate {
	var candidates []models.RankedCandidate
	for _, w := range snap.WorkersByTier(tier) {
		candidates = append(candidates, models.RankedCandidate{
			Worker:  w,
			Fitness: r.scorer.Score(job, w, snap),
		})
	}
	sortCandidates(candidates)
	if len(candidates) == 0 {
		return nil
	}
	top := candidates[0]
	return &top
}

// TopPick returns the overall best-fit worker across the job's required
// tiers, or nil when no real candidate exists anywhere.
func (r *Ranker) TopPick(job models.Job, snap *Snapshot) *models.RankedCandidate {
	var best *models.RankedCandidate
	for _, tier := range models.Tiers {
		if job.Required[tier] == 0 {
			continue
		}
		top := r.TopPickInTier(job, tier, snap)
		if top != nil && (best == nil || top.Fitness.Composite > best.Fitness.Composite) {
			best = top
		}
	}
	return best
}

// sortCandidates orders by composite score descending, ties broken by
// higher experience, then lexical name order for determinism.
func sortCandidates(candidates []models.RankedCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Fitness.Composite != b.Fitness.Composite {
			return a.Fitness.Composite > b.Fitness.Composite
		}
		if a.Worker.ExperienceYears != b.Worker.ExperienceYears {
			return a.Worker.ExperienceYears > b.Worker.ExperienceYears
		}
		return a.Worker.Name < b.Worker.Name
	})
}
