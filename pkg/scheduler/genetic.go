package scheduler

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// GeneticOptimizer searches the space of tier-qualified worker
// combinations across all open jobs, maximizing aggregate fitness under
// the one-worker-one-job-at-a-time constraint. The search is stochastic
// but fully reproducible under a fixed seed.
type GeneticOptimizer struct {
	cfg    *config.Config
	scorer *Scorer
}

// NewGeneticOptimizer builds a GeneticOptimizer.
func NewGeneticOptimizer(cfg *config.Config, scorer *Scorer) *GeneticOptimizer {
	return &GeneticOptimizer{cfg: cfg, scorer: scorer}
}

// solution maps design code -> tier -> assigned workers (real or
// contractor). Tier slots always hold exactly the required count.
type solution map[string]map[models.Tier][]models.Worker

// geneticProblem is the immutable search context shared by all
// generations: the jobs in deterministic order and the ranked candidate
// pool per job/tier.
type geneticProblem struct {
	jobs          []models.Job
	codes         []string
	pools         map[string]map[models.Tier][]models.RankedCandidate
	contractorEff float64
}

// contractor is the in-search marker for a contractor slot, carrying the
// configured efficiency so search scoring matches the reported result.
func (p *geneticProblem) contractor(tier models.Tier) models.Worker {
	return models.ContractorFor(tier, p.contractorEff)
}

// Optimize runs the generational search over the snapshot's open jobs and
// returns the best-of-run solution, scenario-labeled for audit. When the
// context deadline expires mid-search the best solution found so far is
// returned with Partial set.
func (g *GeneticOptimizer) Optimize(ctx context.Context, snap *Snapshot, scenario string, seed int64) (*models.GeneticResult, error) {
	problem := g.buildProblem(snap)
	result := &models.GeneticResult{
		Scenario:  scenario,
		Seed:      seed,
		Jobs:      make(map[string]models.JobOptimization),
		CreatedAt: time.Now(),
	}
	if len(problem.jobs) == 0 {
		return result, nil
	}

	rng := rand.New(rand.NewSource(seed))
	gc := g.cfg.Genetic

	population := make([]solution, gc.PopulationSize)
	for i := range population {
		population[i] = problem.randomFeasible(rng)
	}

	var best solution
	bestFitness := -1.0
	stagnant := 0

	for gen := 0; gen < gc.Generations; gen++ {
		if ctx.Err() != nil {
			result.Partial = true
			break
		}
		result.Generations = gen + 1

		scores := make([]float64, len(population))
		improved := false
		for i, sol := range population {
			scores[i] = g.fitness(sol, problem, snap)
			if scores[i] > bestFitness {
				bestFitness = scores[i]
				best = sol.clone()
				improved = true
			}
		}
		if improved {
			stagnant = 0
		} else {
			stagnant++
			if stagnant >= gc.StagnationWindow {
				break
			}
		}

		next := make([]solution, 0, gc.PopulationSize)
		for len(next) < gc.PopulationSize {
			p1 := tournament(population, scores, gc.TournamentSize, rng)
			p2 := tournament(population, scores, gc.TournamentSize, rng)
			child := p1.clone()
			if rng.Float64() < gc.CrossoverRate {
				child = problem.crossover(p1, p2, rng)
			}
			if rng.Float64() < gc.MutationRate {
				problem.mutate(child, rng)
			}
			next = append(next, child)
		}
		population = next
	}

	g.fillResult(result, best, bestFitness, problem, snap)
	return result, nil
}

func (g *GeneticOptimizer) buildProblem(snap *Snapshot) *geneticProblem {
	p := &geneticProblem{
		pools:         make(map[string]map[models.Tier][]models.RankedCandidate),
		contractorEff: g.cfg.ContractorEfficiency,
	}
	for _, job := range snap.Jobs {
		if !job.Active() || job.Required.Total() == 0 {
			continue
		}
		p.jobs = append(p.jobs, job)
	}
	sort.Slice(p.jobs, func(i, j int) bool { return p.jobs[i].DesignCode < p.jobs[j].DesignCode })

	for _, job := range p.jobs {
		p.codes = append(p.codes, job.DesignCode)
		tiers := make(map[models.Tier][]models.RankedCandidate)
		for _, tier := range models.Tiers {
			if job.Required[tier] == 0 {
				continue
			}
			var pool []models.RankedCandidate
			for _, w := range snap.WorkersByTier(tier) {
				pool = append(pool, models.RankedCandidate{
					Worker:  w,
					Fitness: g.scorer.Score(job, w, snap),
				})
			}
			sortCandidates(pool)
			tiers[tier] = pool
		}
		p.pools[job.DesignCode] = tiers
	}
	return p
}

// randomFeasible builds a random solution respecting tier cardinality and
// worker exclusivity, backfilling deficits with contractors.
func (p *geneticProblem) randomFeasible(rng *rand.Rand) solution {
	sol := make(solution, len(p.jobs))
	used := make(map[string]bool)

	order := rng.Perm(len(p.jobs))
	for _, idx := range order {
		job := p.jobs[idx]
		team := make(map[models.Tier][]models.Worker)
		for _, tier := range models.Tiers {
			required := job.Required[tier]
			if required == 0 {
				continue
			}
			var free []models.Worker
			for _, cand := range p.pools[job.DesignCode][tier] {
				if !used[cand.Worker.Name] {
					free = append(free, cand.Worker)
				}
			}
			rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
			for slot := 0; slot < required; slot++ {
				if slot < len(free) {
					team[tier] = append(team[tier], free[slot])
					used[free[slot].Name] = true
				} else {
					team[tier] = append(team[tier], p.contractor(tier))
				}
			}
		}
		sol[job.DesignCode] = team
	}
	return sol
}

// fitness sums the composite scores of every (job, worker) pair, with a
// penalty per contractor placeholder and a bonus when a critical job got
// its top-ranked candidate.
func (g *GeneticOptimizer) fitness(sol solution, p *geneticProblem, snap *Snapshot) float64 {
	total := 0.0
	for _, job := range p.jobs {
		team := sol[job.DesignCode]
		for _, tier := range models.Tiers {
			pool := p.pools[job.DesignCode][tier]
			for _, w := range team[tier] {
				if w.Contractor {
					total += g.scorer.Score(job, w, snap).Composite - g.cfg.ContractorPenalty
					continue
				}
				total += g.scorer.Score(job, w, snap).Composite
				if job.Priority == models.PriorityCritical && len(pool) > 0 && pool[0].Worker.Name == w.Name {
					total += g.cfg.CriticalTopPickBonus
				}
			}
		}
	}
	return total
}

// crossover swaps the worker assignments of a random subset of jobs from
// the second parent into a copy of the first, then repairs exclusivity
// violations.
func (p *geneticProblem) crossover(p1, p2 solution, rng *rand.Rand) solution {
	child := p1.clone()
	for _, code := range p.codes {
		if rng.Float64() < 0.5 {
			child[code] = cloneTeam(p2[code])
		}
	}
	p.repair(child)
	return child
}

// mutate replaces one randomly chosen job-tier slot with a ranked
// alternate or contractor.
func (p *geneticProblem) mutate(sol solution, rng *rand.Rand) {
	code := p.codes[rng.Intn(len(p.codes))]
	team := sol[code]

	var tiers []models.Tier
	for _, tier := range models.Tiers {
		if len(team[tier]) > 0 {
			tiers = append(tiers, tier)
		}
	}
	if len(tiers) == 0 {
		return
	}
	tier := tiers[rng.Intn(len(tiers))]
	slot := rng.Intn(len(team[tier]))

	used := sol.usedWorkers()
	var replacements []models.Worker
	for _, cand := range p.pools[code][tier] {
		if !used[cand.Worker.Name] {
			replacements = append(replacements, cand.Worker)
		}
	}
	replacements = append(replacements, p.contractor(tier))
	team[tier][slot] = replacements[rng.Intn(len(replacements))]
}

// repair reassigns workers appearing in more than one job to the
// next-best unused alternate, or a contractor when none remains. The
// walk order is deterministic: codes ascending, tiers in rank order.
func (p *geneticProblem) repair(sol solution) {
	used := make(map[string]bool)
	for _, code := range p.codes {
		team := sol[code]
		for _, tier := range models.Tiers {
			for i, w := range team[tier] {
				if w.Contractor {
					continue
				}
				if !used[w.Name] {
					used[w.Name] = true
					continue
				}
				replaced := false
				for _, cand := range p.pools[code][tier] {
					if !used[cand.Worker.Name] {
						team[tier][i] = cand.Worker
						used[cand.Worker.Name] = true
						replaced = true
						break
					}
				}
				if !replaced {
					team[tier][i] = p.contractor(tier)
				}
			}
		}
	}
}

func tournament(population []solution, scores []float64, size int, rng *rand.Rand) solution {
	bestIdx := rng.Intn(len(population))
	for i := 1; i < size; i++ {
		idx := rng.Intn(len(population))
		if scores[idx] > scores[bestIdx] {
			bestIdx = idx
		}
	}
	return population[bestIdx]
}

func (g *GeneticOptimizer) fillResult(result *models.GeneticResult, best solution, fitness float64, p *geneticProblem, snap *Snapshot) {
	if best == nil {
		return
	}
	result.Fitness = fitness
	for _, job := range p.jobs {
		team := best[job.DesignCode]
		opt := models.JobOptimization{
			Chosen:     make(map[models.Tier][]models.RankedCandidate),
			Alternates: make(map[models.Tier][]models.RankedCandidate),
			Shortfall:  models.TierCounts{},
		}
		for _, tier := range models.Tiers {
			chosen := make(map[string]bool)
			for _, w := range team[tier] {
				if w.Contractor {
					opt.Contractors = append(opt.Contractors, models.ContractorFor(tier, g.cfg.ContractorEfficiency))
					opt.Shortfall[tier]++
					continue
				}
				chosen[w.Name] = true
				opt.Chosen[tier] = append(opt.Chosen[tier], models.RankedCandidate{
					Worker:  w,
					Fitness: g.scorer.Score(job, w, snap),
				})
			}
			for _, cand := range p.pools[job.DesignCode][tier] {
				if !chosen[cand.Worker.Name] {
					opt.Alternates[tier] = append(opt.Alternates[tier], cand)
				}
			}
		}
		result.Jobs[job.DesignCode] = opt
	}
}

func (s solution) clone() solution {
	out := make(solution, len(s))
	for code, team := range s {
		out[code] = cloneTeam(team)
	}
	return out
}

func cloneTeam(team map[models.Tier][]models.Worker) map[models.Tier][]models.Worker {
	out := make(map[models.Tier][]models.Worker, len(team))
	for tier, workers := range team {
		out[tier] = append([]models.Worker(nil), workers...)
	}
	return out
}

func (s solution) usedWorkers() map[string]bool {
	used := make(map[string]bool)
	for _, team := range s {
		for _, workers := range team {
			for _, w := range workers {
				if !w.Contractor {
					used[w.Name] = true
				}
			}
		}
	}
	return used
}
