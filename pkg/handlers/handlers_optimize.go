package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mertacar/workforce-scheduler-api/pkg/scheduler"
)

// StartGenetic launches a background genetic optimization over the open
// jobs and returns a run handle to poll.
func (h *Handler) StartGenetic(c *gin.Context) {
	var req struct {
		Scenario string `json:"scenario"`
		Seed     *int64 `json:"seed"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Scenario == "" {
		req.Scenario = "default"
	}
	seed := time.Now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}

	run := h.Runs.Submit("genetic", h.Cfg.Genetic.Timeout+h.Cfg.StoreTimeout, func(ctx context.Context) (interface{}, error) {
		return h.Engine.RunGenetic(ctx, req.Scenario, seed)
	})
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusAccepted, run)
}

// StartMonteCarlo launches a background risk simulation.
func (h *Handler) StartMonteCarlo(c *gin.Context) {
	var req struct {
		Scenarios          int      `json:"scenarios"`
		AbsenceProbability *float64 `json:"absence_probability"`
		PerformanceStd     *float64 `json:"performance_std"`
		Seed               *int64   `json:"seed"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	params := scheduler.MonteCarloParams{
		Scenarios:          req.Scenarios,
		AbsenceProbability: h.Cfg.MonteCarlo.AbsenceProbability,
		PerformanceStd:     h.Cfg.MonteCarlo.PerformanceStd,
		Seed:               time.Now().UnixNano(),
	}
	if req.AbsenceProbability != nil {
		params.AbsenceProbability = *req.AbsenceProbability
	}
	if req.PerformanceStd != nil {
		params.PerformanceStd = *req.PerformanceStd
	}
	if req.Seed != nil {
		params.Seed = *req.Seed
	}
	if params.AbsenceProbability < 0 || params.AbsenceProbability > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "absence_probability must be in [0,1]"})
		return
	}
	if params.PerformanceStd < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "performance_std must be non-negative"})
		return
	}

	run := h.Runs.Submit("monte_carlo", h.Cfg.MonteCarlo.Timeout+h.Cfg.StoreTimeout, func(ctx context.Context) (interface{}, error) {
		return h.Engine.RunMonteCarlo(ctx, params)
	})
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusAccepted, run)
}

// StartTaguchi launches duration tuning for every open job type.
func (h *Handler) StartTaguchi(c *gin.Context) {
	run := h.Runs.Submit("taguchi", h.Cfg.StoreTimeout*4, func(ctx context.Context) (interface{}, error) {
		return h.Engine.RunTaguchi(ctx, nil)
	})
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusAccepted, run)
}

// GetRun returns the state and, once finished, the result of a run.
func (h *Handler) GetRun(c *gin.Context) {
	run, ok := h.Runs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run id"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetGeneticResult returns the stored result for a scenario.
func (h *Handler) GetGeneticResult(c *gin.Context) {
	scenario := c.Param("scenario")
	res, err := h.Store.GeneticResult(c.Request.Context(), scenario)
	if err != nil {
		respondError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no result for scenario " + scenario})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetTaguchiResults returns every stored duration recommendation.
func (h *Handler) GetTaguchiResults(c *gin.Context) {
	res, err := h.Store.TaguchiResults(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": res})
}

// GetMonteCarloResult returns the latest stored simulation result.
func (h *Handler) GetMonteCarloResult(c *gin.Context) {
	res, err := h.Store.MonteCarloResult(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no simulation result stored"})
		return
	}
	c.JSON(http.StatusOK, res)
}
