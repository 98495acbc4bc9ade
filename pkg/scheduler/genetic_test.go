package scheduler

import (
	"context"
	"reflect"
	"testing"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

func geneticFixture() (*GeneticOptimizer, *Snapshot) {
	cfg := config.Default()
	cfg.Genetic.PopulationSize = 20
	cfg.Genetic.Generations = 30
	optimizer := NewGeneticOptimizer(cfg, NewScorer(cfg))

	workers := []models.Worker{
		{Name: "Usta Bir", Tier: models.TierMaster, Efficiency: 0.9, ExperienceYears: 18},
		{Name: "Usta Iki", Tier: models.TierMaster, Efficiency: 0.8, ExperienceYears: 12},
		{Name: "Kalifiyeli Bir", Tier: models.TierQualified, Efficiency: 0.7, ExperienceYears: 8},
		{Name: "Kalifiyeli Iki", Tier: models.TierQualified, Efficiency: 0.75, ExperienceYears: 6},
		{Name: "Cirak Bir", Tier: models.TierApprentice, Efficiency: 0.5, ExperienceYears: 1},
	}
	jobs := []models.Job{
		{
			DesignCode: "D-100",
			Status:     models.StatusPending,
			Priority:   models.PriorityCritical,
			Required:   models.TierCounts{models.TierMaster: 1, models.TierApprentice: 1},
		},
		{
			DesignCode: "D-200",
			Status:     models.StatusPending,
			Required:   models.TierCounts{models.TierMaster: 1, models.TierQualified: 2},
		},
	}
	return optimizer, NewSnapshot(jobs, workers)
}

func TestGeneticDeterministicUnderSeed(t *testing.T) {
	optimizer, snap := geneticFixture()

	first, err := optimizer.Optimize(context.Background(), snap, "test", 42)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	second, err := optimizer.Optimize(context.Background(), snap, "test", 42)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if first.Fitness != second.Fitness {
		t.Errorf("Expected identical fitness under same seed, got %f and %f", first.Fitness, second.Fitness)
	}
	if !reflect.DeepEqual(chosenNames(first), chosenNames(second)) {
		t.Errorf("Expected identical assignments under same seed:\n%v\n%v", chosenNames(first), chosenNames(second))
	}
}

func TestGeneticWorkerExclusivity(t *testing.T) {
	optimizer, snap := geneticFixture()
	result, err := optimizer.Optimize(context.Background(), snap, "test", 7)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	seen := make(map[string]string)
	for code, opt := range result.Jobs {
		for _, candidates := range opt.Chosen {
			for _, cand := range candidates {
				if prev, ok := seen[cand.Worker.Name]; ok {
					t.Errorf("Worker %s assigned to both %s and %s", cand.Worker.Name, prev, code)
				}
				seen[cand.Worker.Name] = code
			}
		}
	}
}

func TestGeneticTierCardinality(t *testing.T) {
	optimizer, snap := geneticFixture()
	result, err := optimizer.Optimize(context.Background(), snap, "test", 7)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	for _, job := range snap.Jobs {
		opt := result.Jobs[job.DesignCode]
		for _, tier := range models.Tiers {
			required := job.Required[tier]
			if required == 0 {
				continue
			}
			filled := len(opt.Chosen[tier]) + opt.Shortfall[tier]
			if filled != required {
				t.Errorf("Job %s tier %s: chosen+shortfall %d, required %d", job.DesignCode, tier, filled, required)
			}
		}
	}
}

func TestGeneticContractorBackfill(t *testing.T) {
	cfg := config.Default()
	cfg.Genetic.PopulationSize = 10
	cfg.Genetic.Generations = 10
	optimizer := NewGeneticOptimizer(cfg, NewScorer(cfg))

	// One master for a job needing two: one slot must go to a contractor.
	workers := []models.Worker{{Name: "Tek Usta", Tier: models.TierMaster, Efficiency: 0.9}}
	jobs := []models.Job{{
		DesignCode: "D-1",
		Status:     models.StatusPending,
		Required:   models.TierCounts{models.TierMaster: 2},
	}}
	snap := NewSnapshot(jobs, workers)

	result, err := optimizer.Optimize(context.Background(), snap, "test", 1)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	opt := result.Jobs["D-1"]
	if opt.Shortfall[models.TierMaster] != 1 {
		t.Errorf("Expected shortfall 1, got %d", opt.Shortfall[models.TierMaster])
	}
	if len(opt.Contractors) != 1 {
		t.Errorf("Expected 1 contractor placeholder, got %d", len(opt.Contractors))
	}
	if len(opt.Contractors) == 1 && opt.Contractors[0].Efficiency != cfg.ContractorEfficiency {
		t.Errorf("Expected contractor efficiency %f, got %f", cfg.ContractorEfficiency, opt.Contractors[0].Efficiency)
	}
}

func TestGeneticEmptySnapshot(t *testing.T) {
	cfg := config.Default()
	optimizer := NewGeneticOptimizer(cfg, NewScorer(cfg))
	result, err := optimizer.Optimize(context.Background(), NewSnapshot(nil, nil), "empty", 1)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(result.Jobs) != 0 || result.Generations != 0 {
		t.Errorf("Expected empty result for empty snapshot, got %+v", result)
	}
}

func TestGeneticExpiredContextPartial(t *testing.T) {
	optimizer, snap := geneticFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := optimizer.Optimize(ctx, snap, "test", 3)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if !result.Partial {
		t.Error("Expected partial result under expired context")
	}
}

func chosenNames(res *models.GeneticResult) map[string][]string {
	out := make(map[string][]string)
	for code, opt := range res.Jobs {
		for _, tier := range models.Tiers {
			for _, cand := range opt.Chosen[tier] {
				out[code] = append(out[code], cand.Worker.Name)
			}
		}
	}
	return out
}
