package scheduler

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// MonteCarloParams parameterizes one simulation run.
type MonteCarloParams struct {
	Scenarios          int     `json:"scenarios"`
	AbsenceProbability float64 `json:"absence_probability"`
	PerformanceStd     float64 `json:"performance_std"`
	Seed               int64   `json:"seed"`
}

// MonteCarloSimulator quantifies uncertainty in the current assignments
// by resampling worker availability and performance. It reads only from
// the snapshot and never mutates live assignment state.
type MonteCarloSimulator struct {
	cfg *config.Config
}

// NewMonteCarloSimulator builds a MonteCarloSimulator.
func NewMonteCarloSimulator(cfg *config.Config) *MonteCarloSimulator {
	return &MonteCarloSimulator{cfg: cfg}
}

// sample is one worker's outcome in one scenario.
type sample struct {
	absent bool
	perf   float64
}

// scenarioOutcome is everything recorded for one sampled scenario.
type scenarioOutcome struct {
	samples   map[string]sample
	fitness   float64
	shortfall models.TierCounts
	done      bool
}

// Simulate runs the randomized scenarios. Scenarios are evaluated in
// parallel; each one draws from its own sub-seeded source so results are
// reproducible under a fixed seed regardless of goroutine interleaving.
// A context deadline returns the aggregate over the scenarios completed
// so far, flagged as partial.
func (m *MonteCarloSimulator) Simulate(ctx context.Context, snap *Snapshot, params MonteCarloParams) (*models.MonteCarloResult, error) {
	if params.Scenarios <= 0 {
		params.Scenarios = m.cfg.MonteCarlo.Scenarios
	}

	// Which workers are committed, and to which job types.
	jobTypesBy := make(map[string][]string)
	required := models.TierCounts{}
	tierOf := make(map[string]models.Tier)
	baseShortfall := models.TierCounts{}
	for _, job := range snap.Jobs {
		if !job.Active() {
			continue
		}
		assignedPerTier := models.TierCounts{}
		for _, name := range job.Assigned.Workers() {
			jobTypesBy[name] = append(jobTypesBy[name], job.DesignCode)
			if w, ok := snap.Worker(name); ok {
				assignedPerTier[w.Tier]++
				tierOf[name] = w.Tier
			}
		}
		for _, tier := range models.Tiers {
			required[tier] += job.Required[tier]
			if gap := job.Required[tier] - assignedPerTier[tier]; gap > 0 {
				baseShortfall[tier] += gap
			}
		}
	}

	var names []string
	for name := range jobTypesBy {
		names = append(names, name)
	}
	sort.Strings(names)

	outcomes := make([]scenarioOutcome, params.Scenarios)
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(runtime.NumCPU())
	for i := 0; i < params.Scenarios; i++ {
		i := i
		grp.Go(func() error {
			if grpCtx.Err() != nil {
				return nil
			}
			rng := rand.New(rand.NewSource(params.Seed + int64(i)))
			outcomes[i] = m.runScenario(rng, snap, names, tierOf, baseShortfall, params)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	result := m.aggregate(outcomes, names, jobTypesBy, required, params)
	result.Partial = ctx.Err() != nil && result.Scenarios.Count < params.Scenarios
	return result, nil
}

func (m *MonteCarloSimulator) runScenario(rng *rand.Rand, snap *Snapshot, names []string, tierOf map[string]models.Tier, baseShortfall models.TierCounts, params MonteCarloParams) scenarioOutcome {
	out := scenarioOutcome{
		samples:   make(map[string]sample, len(names)),
		shortfall: models.TierCounts{},
		done:      true,
	}
	for tier, n := range baseShortfall {
		out.shortfall[tier] = n
	}

	sum := 0.0
	for _, name := range names {
		w, ok := snap.Worker(name)
		if !ok {
			continue
		}
		if rng.Float64() < params.AbsenceProbability {
			out.samples[name] = sample{absent: true}
			out.shortfall[tierOf[name]]++
			continue
		}
		perf := w.Efficiency
		if params.PerformanceStd > 0 {
			perf = rng.NormFloat64()*params.PerformanceStd + w.Efficiency
		}
		perf = clamp01(perf)
		out.samples[name] = sample{perf: perf}
		sum += perf
	}
	if len(out.samples) > 0 {
		out.fitness = sum / float64(len(out.samples)) * 100
	}
	return out
}

func (m *MonteCarloSimulator) aggregate(outcomes []scenarioOutcome, names []string, jobTypesBy map[string][]string, required models.TierCounts, params MonteCarloParams) *models.MonteCarloResult {
	result := &models.MonteCarloResult{
		Workers:   make(map[string]models.WorkerRisk),
		JobTypes:  make(map[string]models.JobTypeRisk),
		Demand:    make(map[models.Tier]models.TierDemand),
		CreatedAt: time.Now(),
	}

	var fitnesses []float64
	contractorNeed := map[models.Tier][]int{}
	for _, out := range outcomes {
		if !out.done {
			continue
		}
		fitnesses = append(fitnesses, out.fitness)
		for _, tier := range models.Tiers {
			contractorNeed[tier] = append(contractorNeed[tier], out.shortfall[tier])
		}
	}
	result.Scenarios = summarize(fitnesses)

	threshold := m.cfg.MonteCarlo.DelayThreshold
	typeSamples := make(map[string][]sample)
	for _, name := range names {
		var samples []sample
		for _, out := range outcomes {
			if !out.done {
				continue
			}
			if s, ok := out.samples[name]; ok {
				samples = append(samples, s)
			}
		}
		if len(samples) == 0 {
			continue
		}
		result.Workers[name] = workerRisk(samples, threshold)
		for _, jobType := range uniqueStrings(jobTypesBy[name]) {
			typeSamples[jobType] = append(typeSamples[jobType], samples...)
		}
	}

	// Per-job-type rollup pools the samples of everyone assigned there.
	for jobType, samples := range typeSamples {
		wr := workerRisk(samples, threshold)
		result.JobTypes[jobType] = models.JobTypeRisk{
			AveragePerformance: wr.AveragePerformance,
			RiskScore:          wr.RiskScore,
			DelayProbability:   wr.DelayProbability,
		}
	}

	for _, tier := range models.Tiers {
		needs := contractorNeed[tier]
		demand := models.TierDemand{Required: required[tier]}
		if len(needs) > 0 {
			sum := 0
			for _, n := range needs {
				sum += n
				if n > demand.MaxContractorNeed {
					demand.MaxContractorNeed = n
				}
			}
			demand.AvgContractorNeed = float64(sum) / float64(len(needs))
		}
		result.Demand[tier] = demand
	}
	return result
}

// workerRisk aggregates one worker's samples. Absences count as zero
// performance in the variance and delay terms but are excluded from the
// present-average, matching how the metrics are read: "how good is this
// worker when they show up" vs "how risky is relying on them".
func workerRisk(samples []sample, delayThreshold float64) models.WorkerRisk {
	presentSum := 0.0
	presentCount := 0
	absences := 0
	delays := 0
	all := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.absent {
			absences++
			delays++
			all = append(all, 0)
			continue
		}
		if s.perf < delayThreshold {
			delays++
		}
		presentSum += s.perf
		presentCount++
		all = append(all, s.perf)
	}

	n := float64(len(samples))
	variance := varianceOf(all)
	absenceRate := float64(absences) / n

	risk := clamp01(0.5*absenceRate + 0.5*math.Min(1, 2*variance))
	wr := models.WorkerRisk{
		RiskScore:            risk,
		DelayProbability:     float64(delays) / n,
		PerformanceStability: 1 - math.Min(1, 2*variance),
	}
	if presentCount > 0 {
		wr.AveragePerformance = presentSum / float64(presentCount)
	}
	return wr
}

func summarize(values []float64) models.ScenarioStats {
	st := models.ScenarioStats{Count: len(values)}
	if len(values) == 0 {
		return st
	}
	st.MinFitness = values[0]
	st.MaxFitness = values[0]
	sum := 0.0
	for _, v := range values {
		sum += v
		if v < st.MinFitness {
			st.MinFitness = v
		}
		if v > st.MaxFitness {
			st.MaxFitness = v
		}
	}
	st.AvgFitness = sum / float64(len(values))
	st.StdFitness = math.Sqrt(varianceOf(values))
	return st
}

func varianceOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return sum / float64(len(values))
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
