package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mertacar/workforce-scheduler-api/pkg/models"
	"github.com/mertacar/workforce-scheduler-api/pkg/scheduler"
)

// jobRequest is the submission payload. Tier counts and skills are
// optional; when absent they resolve from the design-code metadata.
type jobRequest struct {
	DesignCode       string   `json:"design_code" binding:"required"`
	ProjectName      string   `json:"project_name"`
	Priority         string   `json:"priority"`
	DeliveryDate     string   `json:"delivery_date"`
	RemainingMinutes float64  `json:"remaining_minutes"`
	RequiredSkills   []string `json:"required_skills"`
	Masters          int      `json:"masters"`
	Qualified        int      `json:"qualified"`
	Apprentices      int      `json:"apprentices"`
}

func (r jobRequest) toJob() (models.Job, error) {
	job := models.Job{
		DesignCode:       r.DesignCode,
		ProjectName:      r.ProjectName,
		Priority:         models.PriorityNormal,
		Status:           models.StatusPending,
		RemainingMinutes: r.RemainingMinutes,
		RequiredSkills:   r.RequiredSkills,
	}
	if r.Priority != "" {
		job.Priority = models.Priority(r.Priority)
		if job.Priority != models.PriorityNormal && job.Priority != models.PriorityCritical {
			return job, errInvalidPriority
		}
	}
	if r.DeliveryDate != "" {
		t, err := time.Parse("2006-01-02", r.DeliveryDate)
		if err != nil {
			t, err = time.Parse(time.RFC3339, r.DeliveryDate)
		}
		if err != nil {
			return job, err
		}
		job.DeliveryDate = t
	}
	if r.Masters+r.Qualified+r.Apprentices > 0 {
		job.Required = models.TierCounts{
			models.TierMaster:     r.Masters,
			models.TierQualified:  r.Qualified,
			models.TierApprentice: r.Apprentices,
		}
	}
	return job, nil
}

var errInvalidPriority = &invalidInputError{"priority must be normal or critical"}

type invalidInputError struct{ msg string }

func (e *invalidInputError) Error() string { return e.msg }

// SubmitJob ranks and assigns a new job. Critical jobs whose best fit is
// busy on lower-priority work come back as a displacement proposal; the
// client must confirm or decline it before anything is persisted.
func (h *Handler) SubmitJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := req.toJob()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Engine.SubmitJob(c.Request.Context(), job)
	if err != nil {
		respondError(c, err)
		return
	}

	h.RecordUsage(c, 1, len(result.Ranking.Tiers))

	if result.Proposal != nil {
		c.JSON(http.StatusConflict, gin.H{
			"displacement_required": true,
			"proposal":              result.Proposal,
			"ranking":               result.Ranking,
		})
		return
	}
	c.JSON(http.StatusOK, result.Outcome)
}

// displacementRequest carries the job being placed plus the proposal the
// client is answering, exactly as SubmitJob returned it.
type displacementRequest struct {
	Job      jobRequest                     `json:"job" binding:"required"`
	Proposal scheduler.DisplacementProposal `json:"proposal" binding:"required"`
}

// ConfirmDisplacement executes a displacement the client accepted.
func (h *Handler) ConfirmDisplacement(c *gin.Context) {
	var req displacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := req.Job.toJob()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.Engine.ConfirmDisplacement(c.Request.Context(), job, req.Proposal)
	if err != nil {
		respondError(c, err)
		return
	}
	h.RecordUsage(c, 2, len(outcome.Job.Assigned.Workers()))
	c.JSON(http.StatusOK, outcome)
}

// DeclineDisplacement resolves a displacement the client refused.
func (h *Handler) DeclineDisplacement(c *gin.Context) {
	var req displacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := req.Job.toJob()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.Engine.DeclineDisplacement(c.Request.Context(), job, req.Proposal.TopPick.Worker.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	h.RecordUsage(c, 1, len(outcome.Job.Assigned.Workers()))
	c.JSON(http.StatusOK, outcome)
}

// GetCandidates returns the ranked candidates for a design code.
func (h *Handler) GetCandidates(c *gin.Context) {
	code := c.Param("code")
	ranking, err := h.Engine.RankCandidates(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return
	}
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusOK, ranking)
}

// ListJobs returns every open job.
func (h *Handler) ListJobs(c *gin.Context) {
	jobs, err := h.Store.OpenJobs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// UpdateJobStatus transitions a job's status and priority. Completed jobs
// are archived, not deleted.
func (h *Handler) UpdateJobStatus(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		Status   string `json:"status" binding:"required"`
		Priority string `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := models.Status(req.Status)
	if status != models.StatusPending && status != models.StatusInProgress && status != models.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending, in_progress or completed"})
		return
	}
	// An omitted priority leaves the stored priority as-is.
	priority := models.Priority(req.Priority)
	if req.Priority != "" && priority != models.PriorityNormal && priority != models.PriorityCritical {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority must be normal or critical"})
		return
	}

	if err := h.Engine.UpdateStatus(c.Request.Context(), code, status, priority); err != nil {
		respondError(c, err)
		return
	}
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

// UpdateJobDuration sets a job's remaining work minutes.
func (h *Handler) UpdateJobDuration(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		RemainingMinutes float64 `json:"remaining_minutes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RemainingMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "remaining_minutes must be non-negative"})
		return
	}

	if err := h.Engine.UpdateRemainingDuration(c.Request.Context(), code, req.RemainingMinutes); err != nil {
		respondError(c, err)
		return
	}
	h.RecordUsage(c, 1, 0)
	c.JSON(http.StatusOK, gin.H{"message": "Duration updated"})
}

// LastAssignment returns the most recent assignment audit record.
func (h *Handler) LastAssignment(c *gin.Context) {
	rec, err := h.Engine.LastAssignment(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no assignments recorded"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// AssignmentHistory returns the full assignment audit trail.
func (h *Handler) AssignmentHistory(c *gin.Context) {
	recs, err := h.Engine.AllAssignments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": recs})
}
