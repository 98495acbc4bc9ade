package scheduler

import (
	"testing"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
)

func TestTaguchiImprovementNeverNegative(t *testing.T) {
	optimizer := NewTaguchiOptimizer(config.Default())

	// Factors that only inflate duration cannot produce an improvement.
	factors := []Factor{
		{Name: "slow_a", Levels: []float64{1.1, 1.2, 1.3}},
		{Name: "slow_b", Levels: []float64{1.05, 1.1, 1.2}},
	}
	res := optimizer.Optimize("D-1", "montaj", 120, nil, factors)
	if res.ImprovementPct != 0 {
		t.Errorf("Expected improvement floored at 0, got %f", res.ImprovementPct)
	}
}

func TestTaguchiHistoricalBaseline(t *testing.T) {
	optimizer := NewTaguchiOptimizer(config.Default())
	history := []float64{100, 110, 90, 105, 95}

	res := optimizer.Optimize("D-1", "montaj", 120, history, nil)
	if res.Method != "Taguchi (historical)" {
		t.Errorf("Expected historical method label, got %q", res.Method)
	}
	if res.BaselineDuration != 100 {
		t.Errorf("Expected baseline to be the historical mean 100, got %f", res.BaselineDuration)
	}
	if res.OptimalDuration <= 0 {
		t.Errorf("Expected positive optimal duration, got %f", res.OptimalDuration)
	}
}

func TestTaguchiNoHistoryUsesEstimate(t *testing.T) {
	optimizer := NewTaguchiOptimizer(config.Default())
	res := optimizer.Optimize("D-2", "", 200, nil, nil)
	if res.Method != "Taguchi" {
		t.Errorf("Expected plain method label without history, got %q", res.Method)
	}
	if res.BaselineDuration != 200 {
		t.Errorf("Expected baseline to be the estimate 200, got %f", res.BaselineDuration)
	}
}

func TestTaguchiPicksFastestLevels(t *testing.T) {
	optimizer := NewTaguchiOptimizer(config.Default())

	// Smaller-is-better SNR must drive every factor to its lowest
	// multiplier, so optimal = base * 0.85 * 0.95 * 0.90.
	res := optimizer.Optimize("D-3", "", 100, nil, nil)
	want := 100 * 0.85 * 0.95 * 0.90
	if diff := res.OptimalDuration - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected optimal %f, got %f", want, res.OptimalDuration)
	}
}

func TestOrthogonalArrayShapes(t *testing.T) {
	l9 := orthogonalArray(3, 3)
	if len(l9) != 9 {
		t.Fatalf("Expected 9 rows for 3 factors at 3 levels, got %d", len(l9))
	}
	for _, row := range l9 {
		if len(row) != 3 {
			t.Errorf("Expected 3 columns, got %d", len(row))
		}
	}

	l27 := orthogonalArray(7, 3)
	if len(l27) != 27 {
		t.Fatalf("Expected 27 rows for 7 factors at 3 levels, got %d", len(l27))
	}

	if rows := orthogonalArray(3, 4); rows != nil {
		t.Errorf("Expected no standard array for 4 levels, got %d rows", len(rows))
	}
}

func TestOrthogonalArrayBalanced(t *testing.T) {
	rows := orthogonalArray(4, 3)
	for col := 0; col < 4; col++ {
		counts := make(map[int]int)
		for _, row := range rows {
			counts[row[col]]++
		}
		for level, n := range counts {
			if n != 3 {
				t.Errorf("Column %d level %d appears %d times, expected 3", col, level, n)
			}
		}
	}
}

func TestAnalyzeHistory(t *testing.T) {
	if analyzeHistory(nil) != nil {
		t.Error("Expected nil stats for empty history")
	}

	st := analyzeHistory([]float64{100, 100, 100})
	if st.mean != 100 || st.std != 0 || st.minimum != 100 {
		t.Errorf("Unexpected stats for constant history: %+v", st)
	}
	// Zero variance: lower bound equals mean, optimum is the midpoint of
	// mean and minimum.
	if st.optimum != 100 {
		t.Errorf("Expected optimum 100, got %f", st.optimum)
	}
}
