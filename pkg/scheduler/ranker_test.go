package scheduler

import (
	"testing"

	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

func newTestRanker() *Ranker {
	cfg := config.Default()
	return NewRanker(cfg, NewScorer(cfg))
}

func TestRankShortfallFilledByContractors(t *testing.T) {
	ranker := newTestRanker()
	workers := []models.Worker{
		{Name: "Cirak Bir", Tier: models.TierApprentice, Efficiency: 0.6},
	}
	snap := NewSnapshot(nil, workers)

	job := models.Job{
		DesignCode: "D-1",
		Required:   models.TierCounts{models.TierApprentice: 2},
	}
	ranking := ranker.Rank(job, snap)

	tr := ranking.Tiers[models.TierApprentice]
	if len(tr.Selected) != 1 {
		t.Fatalf("Expected 1 selected apprentice, got %d", len(tr.Selected))
	}
	if tr.Shortfall != 1 {
		t.Errorf("Expected shortfall 1, got %d", tr.Shortfall)
	}
	if len(tr.Selected)+tr.Shortfall != tr.Required {
		t.Errorf("Expected selected+shortfall to equal required %d", tr.Required)
	}
	if len(tr.Contractors) != 1 || tr.Contractors[0].Name != "Contractor (apprentice)" {
		t.Errorf("Expected one apprentice contractor placeholder, got %+v", tr.Contractors)
	}
	if !ranking.RequiresContractor {
		t.Error("Expected ranking to require contractor approval")
	}
}

func TestRankExcludesBusyWorkers(t *testing.T) {
	ranker := newTestRanker()
	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.9},
		{Name: "Veli", Tier: models.TierMaster, Efficiency: 0.7},
	}
	busy := models.Job{
		DesignCode: "D-busy",
		Status:     models.StatusInProgress,
		Assigned:   models.SingleAssignment("Ali"),
	}
	snap := NewSnapshot([]models.Job{busy}, workers)

	job := models.Job{DesignCode: "D-1", Required: models.TierCounts{models.TierMaster: 1}}
	ranking := ranker.Rank(job, snap)

	tr := ranking.Tiers[models.TierMaster]
	if len(tr.Selected) != 1 || tr.Selected[0].Worker.Name != "Veli" {
		t.Errorf("Expected only the free worker to rank, got %+v", tr.Selected)
	}
}

func TestRankAlternatesOrdered(t *testing.T) {
	ranker := newTestRanker()
	workers := []models.Worker{
		{Name: "Dusuk", Tier: models.TierQualified, Efficiency: 0.5},
		{Name: "Orta", Tier: models.TierQualified, Efficiency: 0.7},
		{Name: "Yuksek", Tier: models.TierQualified, Efficiency: 0.9},
	}
	snap := NewSnapshot(nil, workers)

	job := models.Job{DesignCode: "D-1", Required: models.TierCounts{models.TierQualified: 1}}
	ranking := ranker.Rank(job, snap)

	tr := ranking.Tiers[models.TierQualified]
	if tr.Selected[0].Worker.Name != "Yuksek" {
		t.Errorf("Expected best efficiency selected, got %s", tr.Selected[0].Worker.Name)
	}
	if len(tr.Alternates) != 2 || tr.Alternates[0].Worker.Name != "Orta" {
		t.Errorf("Expected alternates ordered by score, got %+v", tr.Alternates)
	}
}

func TestRankTieBreakDeterministic(t *testing.T) {
	ranker := newTestRanker()
	// Identical scores: lexical name order decides.
	workers := []models.Worker{
		{Name: "Zeynep", Tier: models.TierMaster, Efficiency: 0.8, ExperienceYears: 10},
		{Name: "Ahmet", Tier: models.TierMaster, Efficiency: 0.8, ExperienceYears: 10},
	}
	snap := NewSnapshot(nil, workers)
	job := models.Job{DesignCode: "D-1", Required: models.TierCounts{models.TierMaster: 1}}

	for i := 0; i < 5; i++ {
		ranking := ranker.Rank(job, snap)
		if got := ranking.Tiers[models.TierMaster].Selected[0].Worker.Name; got != "Ahmet" {
			t.Fatalf("Expected deterministic lexical tie-break, got %s", got)
		}
	}
}

func TestRankExcluding(t *testing.T) {
	ranker := newTestRanker()
	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.9},
		{Name: "Veli", Tier: models.TierMaster, Efficiency: 0.7},
	}
	snap := NewSnapshot(nil, workers)
	job := models.Job{DesignCode: "D-1", Required: models.TierCounts{models.TierMaster: 1}}

	ranking := ranker.RankExcluding(job, snap, map[string]bool{"Ali": true})
	tr := ranking.Tiers[models.TierMaster]
	if len(tr.Selected) != 1 || tr.Selected[0].Worker.Name != "Veli" {
		t.Errorf("Expected excluded worker to be skipped, got %+v", tr.Selected)
	}
}

func TestTopPickIgnoresAvailability(t *testing.T) {
	ranker := newTestRanker()
	workers := []models.Worker{
		{Name: "Ali", Tier: models.TierMaster, Efficiency: 0.95, ExperienceYears: 15},
		{Name: "Veli", Tier: models.TierMaster, Efficiency: 0.6},
	}
	busy := models.Job{
		DesignCode: "D-busy",
		Status:     models.StatusInProgress,
		Assigned:   models.SingleAssignment("Ali"),
	}
	snap := NewSnapshot([]models.Job{busy}, workers)

	job := models.Job{DesignCode: "D-1", Required: models.TierCounts{models.TierMaster: 1}}
	top := ranker.TopPick(job, snap)
	if top == nil || top.Worker.Name != "Ali" {
		t.Errorf("Expected busy best-fit worker as top pick, got %+v", top)
	}
}
