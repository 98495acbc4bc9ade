package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mertacar/workforce-scheduler-api/pkg/database"
	"github.com/mertacar/workforce-scheduler-api/pkg/models"
)

// CreateWorker registers a new workforce member.
func (h *Handler) CreateWorker(c *gin.Context) {
	var req struct {
		Name            string   `json:"name" binding:"required"`
		Tier            string   `json:"tier" binding:"required"`
		Skills          []string `json:"skills"`
		ExperienceYears float64  `json:"experience_years"`
		Efficiency      float64  `json:"efficiency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Efficiency < 0 || req.Efficiency > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "efficiency must be in [0,1]"})
		return
	}
	if strings.HasPrefix(req.Name, "Contractor (") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reserved worker name"})
		return
	}

	worker := models.Worker{
		Name:            req.Name,
		Tier:            tier,
		Skills:          req.Skills,
		ExperienceYears: req.ExperienceYears,
		Efficiency:      req.Efficiency,
	}
	if err := h.Store.CreateWorker(c.Request.Context(), worker); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Could not create worker"})
		return
	}
	h.RecordUsage(c, 0, 1)
	c.JSON(http.StatusOK, worker)
}

// ListWorkers returns the whole workforce.
func (h *Handler) ListWorkers(c *gin.Context) {
	workers, err := h.Store.AllWorkers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	h.RecordUsage(c, 0, len(workers))
	c.JSON(http.StatusOK, gin.H{"workers": workers})
}

// CreateDesignCode registers job-type metadata: staffing requirements,
// estimated duration and owning department.
func (h *Handler) CreateDesignCode(c *gin.Context) {
	var req struct {
		Code             string   `json:"code" binding:"required"`
		ProductName      string   `json:"product_name"`
		Department       string   `json:"department"`
		EstimatedMinutes float64  `json:"estimated_minutes"`
		Skills           []string `json:"skills"`
		Masters          int      `json:"masters"`
		Qualified        int      `json:"qualified"`
		Apprentices      int      `json:"apprentices"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Masters < 0 || req.Qualified < 0 || req.Apprentices < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier counts must be non-negative"})
		return
	}

	rec := database.DesignCodeRecord{
		Code:             req.Code,
		ProductName:      req.ProductName,
		Department:       req.Department,
		EstimatedMinutes: req.EstimatedMinutes,
		Masters:          req.Masters,
		Qualified:        req.Qualified,
		Apprentices:      req.Apprentices,
	}
	if len(req.Skills) > 0 {
		rec.Skills = marshalSkills(req.Skills)
	}
	if err := h.Store.CreateDesignCode(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Could not create design code"})
		return
	}
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusOK, rec)
}

// ListDesignCodes returns every registered design code.
func (h *Handler) ListDesignCodes(c *gin.Context) {
	recs, err := h.Store.DesignCodes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"design_codes": recs})
}

// AddPastDuration records an observed completion time for a design code,
// feeding the Taguchi baseline.
func (h *Handler) AddPastDuration(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		Minutes    float64 `json:"minutes" binding:"required"`
		Department string  `json:"department"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Minutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must be positive"})
		return
	}

	if err := h.Store.AddPastDuration(c.Request.Context(), code, req.Minutes, req.Department); err != nil {
		respondError(c, err)
		return
	}
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusOK, gin.H{"message": "Duration recorded"})
}

func marshalSkills(skills []string) string {
	b, _ := json.Marshal(skills)
	return string(b)
}
