package scheduler

import (
	"math"
	"time"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// Factor is one tunable process parameter in the Taguchi design. Levels
// are duration multipliers applied to the base assembly time, so a level
// below 1 models a faster process variant.
type Factor struct {
	Name   string    `json:"name"`
	Levels []float64 `json:"levels"`
}

// DefaultFactors is the factor set used when the caller does not supply
// one: worker-tier mix, shift pattern and batch size, three levels each.
func DefaultFactors() []Factor {
	return []Factor{
		{Name: "tier_mix", Levels: []float64{0.85, 1.0, 1.15}},
		{Name: "shift_pattern", Levels: []float64{0.95, 1.0, 1.10}},
		{Name: "batch_size", Levels: []float64{0.90, 1.0, 1.05}},
	}
}

// TaguchiOptimizer tunes per-job-type duration parameters with a
// fractional-factorial experiment design instead of exhaustive search.
type TaguchiOptimizer struct {
	cfg *config.Config
}

// NewTaguchiOptimizer builds a TaguchiOptimizer.
func NewTaguchiOptimizer(cfg *config.Config) *TaguchiOptimizer {
	return &TaguchiOptimizer{cfg: cfg}
}

// historyStats summarizes past duration observations for one job type.
type historyStats struct {
	mean    float64
	std     float64
	minimum float64
	// optimum is the midpoint of the lower 95% confidence bound and the
	// best observed duration.
	optimum float64
}

func analyzeHistory(durations []float64) *historyStats {
	if len(durations) == 0 {
		return nil
	}
	st := &historyStats{minimum: durations[0]}
	sum := 0.0
	for _, d := range durations {
		sum += d
		if d < st.minimum {
			st.minimum = d
		}
	}
	st.mean = sum / float64(len(durations))
	varSum := 0.0
	for _, d := range durations {
		diff := d - st.mean
		varSum += diff * diff
	}
	st.std = math.Sqrt(varSum / float64(len(durations)))

	lower := st.mean - 1.96*st.std
	st.optimum = (lower + st.minimum) / 2
	if st.optimum < 0 {
		st.optimum = st.minimum
	}
	return st
}

// Optimize runs the experiment design for one job type. estimate is the
// current duration estimate; history holds past observed durations for
// the same design code and may be empty. The baseline for the improvement
// ratio is the prior best-known duration: the historical mean when
// history exists, the current estimate otherwise.
func (t *TaguchiOptimizer) Optimize(designCode, department string, estimate float64, history []float64, factors []Factor) models.TaguchiResult {
	if len(factors) == 0 {
		factors = DefaultFactors()
	}

	stats := analyzeHistory(history)
	base := estimate
	baseline := estimate
	method := "Taguchi"
	if stats != nil {
		base = stats.optimum
		baseline = stats.mean
		method = "Taguchi (historical)"
	}

	rows := orthogonalArray(len(factors), t.cfg.Taguchi.Levels)
	if rows == nil {
		rows = fullFactorial(factors)
	}

	// Evaluate each array row: duration = base x product of the chosen
	// level multipliers, scored with a smaller-is-better SNR.
	snrs := make([]float64, len(rows))
	for i, row := range rows {
		duration := base
		for f, levelIdx := range row {
			duration *= levelAt(factors[f], levelIdx)
		}
		snrs[i] = signalToNoise(duration)
	}

	// Per-factor best level by mean SNR, then combine the best levels
	// into the recommended parameter set.
	optimal := base
	for f := range factors {
		levelCount := len(factors[f].Levels)
		sums := make([]float64, levelCount)
		counts := make([]int, levelCount)
		for i, row := range rows {
			idx := row[f] % levelCount
			sums[idx] += snrs[i]
			counts[idx]++
		}
		bestLevel := 0
		bestMean := math.Inf(-1)
		for l := 0; l < levelCount; l++ {
			if counts[l] == 0 {
				continue
			}
			if mean := sums[l] / float64(counts[l]); mean > bestMean {
				bestMean = mean
				bestLevel = l
			}
		}
		optimal *= factors[f].Levels[bestLevel]
	}

	improvement := 0.0
	if baseline > 0 {
		improvement = (baseline - optimal) / baseline * 100
	}
	if improvement < 0 {
		improvement = 0
	}

	return models.TaguchiResult{
		DesignCode:       designCode,
		Department:       department,
		OptimalDuration:  optimal,
		BaselineDuration: baseline,
		ImprovementPct:   improvement,
		Method:           method,
		UpdatedAt:        time.Now(),
	}
}

// signalToNoise is the smaller-is-better Taguchi SNR.
func signalToNoise(value float64) float64 {
	if value <= 0 {
		return 0
	}
	return -10 * math.Log10(value*value)
}

func levelAt(f Factor, idx int) float64 {
	return f.Levels[idx%len(f.Levels)]
}

// orthogonalArray returns the standard reduced design for the given
// dimensions, or nil when none fits and the caller should fall back to a
// full factorial.
func orthogonalArray(factorCount, levelCount int) [][]int {
	switch {
	case levelCount == 3 && factorCount <= 4:
		l9 := [][]int{
			{0, 0, 0, 0},
			{0, 1, 1, 1},
			{0, 2, 2, 2},
			{1, 0, 1, 2},
			{1, 1, 2, 0},
			{1, 2, 0, 1},
			{2, 0, 2, 1},
			{2, 1, 0, 2},
			{2, 2, 1, 0},
		}
		return truncateColumns(l9, factorCount)
	case levelCount == 3 && factorCount <= 13:
		rows := make([][]int, 27)
		for i := range rows {
			a, b, c := (i/9)%3, (i/3)%3, i%3
			rows[i] = []int{
				a, b, c,
				(a + b) % 3, (a + c) % 3, (b + c) % 3,
				(a + b + c) % 3,
				(2*a + b) % 3, (2*a + c) % 3,
				(2*b + a) % 3, (2*b + c) % 3,
				(2*c + a) % 3, (2*c + b) % 3,
			}
		}
		return truncateColumns(rows, factorCount)
	}
	return nil
}

func truncateColumns(rows [][]int, cols int) [][]int {
	out := make([][]int, len(rows))
	for i, row := range rows {
		out[i] = row[:cols]
	}
	return out
}

// fullFactorial enumerates every level combination. Only reached for
// factor/level shapes without a standard orthogonal array.
func fullFactorial(factors []Factor) [][]int {
	total := 1
	for _, f := range factors {
		total *= len(f.Levels)
	}
	rows := make([][]int, 0, total)
	row := make([]int, len(factors))
	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(factors) {
			rows = append(rows, append([]int(nil), row...))
			return
		}
		for l := range factors[depth].Levels {
			row[depth] = l
			walk(depth + 1)
		}
	}
	walk(0)
	return rows
}
