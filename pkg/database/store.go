package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mertacar/workforce-scheduler-api/pkg/models"
	"github.com/mertacar/workforce-scheduler-api/pkg/scheduler"
)

// Store implements the scheduler's persistence interfaces on gorm.
// One Store serves as JobStore, WorkerStore, AssignmentLog,
// RequirementsStore, HistoryStore and ResultStore.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a connected gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenJobs returns every non-completed job with its assigned workers.
func (s *Store) OpenJobs(ctx context.Context) ([]models.Job, error) {
	var recs []JobRecord
	if err := s.db.WithContext(ctx).
		Where("status <> ?", string(models.StatusCompleted)).
		Order("delivery_date asc").
		Find(&recs).Error; err != nil {
		return nil, err
	}

	jobs := make([]models.Job, 0, len(recs))
	for _, rec := range recs {
		job, err := s.toJob(ctx, s.db, rec)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Job returns one job by design code.
func (s *Store) Job(ctx context.Context, designCode string) (models.Job, error) {
	var rec JobRecord
	err := s.db.WithContext(ctx).Where("design_code = ?", designCode).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Job{}, fmt.Errorf("%w: job %s not found", scheduler.ErrDataUnavailable, designCode)
	}
	if err != nil {
		return models.Job{}, err
	}
	return s.toJob(ctx, s.db, rec)
}

// CreateJob inserts a job and its worker rows in one transaction. If any
// assigned non-contractor worker is meanwhile occupied by another active
// job the whole insert fails with ErrConflictingWrite.
func (s *Store) CreateJob(ctx context.Context, job models.Job) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkWorkersFree(tx, job.Assigned, ""); err != nil {
			return err
		}
		rec := fromJob(job)
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return insertWorkerRows(tx, rec.ID, job.Assigned)
	})
}

// SaveAssignment replaces a job's assignment and status.
func (s *Store) SaveAssignment(ctx context.Context, designCode string, assigned models.Assignment, status models.Status, usesContractor bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec JobRecord
		if err := tx.Where("design_code = ?", designCode).First(&rec).Error; err != nil {
			return err
		}
		if err := checkWorkersFree(tx, assigned, designCode); err != nil {
			return err
		}
		if err := tx.Where("job_id = ?", rec.ID).Delete(&JobWorkerRecord{}).Error; err != nil {
			return err
		}
		if err := insertWorkerRows(tx, rec.ID, assigned); err != nil {
			return err
		}
		return tx.Model(&rec).Updates(map[string]interface{}{
			"single_assignee": assigned.Single,
			"status":          string(status),
			"uses_contractor": usesContractor,
		}).Error
	})
}

// UpdateStatus sets a job's status, and its priority when one is given.
func (s *Store) UpdateStatus(ctx context.Context, designCode string, status models.Status, priority models.Priority) error {
	updates := map[string]interface{}{"status": string(status)}
	if priority != "" {
		updates["priority"] = string(priority)
	}
	res := s.db.WithContext(ctx).Model(&JobRecord{}).
		Where("design_code = ?", designCode).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not found", scheduler.ErrDataUnavailable, designCode)
	}
	return nil
}

// UpdateRemainingDuration sets a job's remaining work minutes.
func (s *Store) UpdateRemainingDuration(ctx context.Context, designCode string, minutes float64) error {
	res := s.db.WithContext(ctx).Model(&JobRecord{}).
		Where("design_code = ?", designCode).
		Update("remaining_minutes", minutes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not found", scheduler.ErrDataUnavailable, designCode)
	}
	return nil
}

// TransferAndAssign executes a confirmed displacement atomically: the
// moved worker's rows on the vacated job are replaced by the replacement
// assignment, and the new job is created with the moved worker on it.
func (s *Store) TransferAndAssign(ctx context.Context, vacatedCode string, movedWorker string, replacement models.Assignment, contractorBackfill bool, newJob models.Job) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var vacated JobRecord
		if err := tx.Where("design_code = ?", vacatedCode).First(&vacated).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: vacated job %s disappeared", scheduler.ErrConflictingWrite, vacatedCode)
			}
			return err
		}
		if vacated.Status == string(models.StatusCompleted) {
			return fmt.Errorf("%w: vacated job %s already completed", scheduler.ErrConflictingWrite, vacatedCode)
		}

		var movedRows []JobWorkerRecord
		if err := tx.Where("job_id = ? AND worker_name = ?", vacated.ID, movedWorker).Find(&movedRows).Error; err != nil {
			return err
		}
		if len(movedRows) == 0 && vacated.SingleAssignee != movedWorker {
			return fmt.Errorf("%w: %s no longer assigned to %s", scheduler.ErrConflictingWrite, movedWorker, vacatedCode)
		}
		if len(movedRows) > 0 {
			if err := tx.Where("job_id = ? AND worker_name = ?", vacated.ID, movedWorker).Delete(&JobWorkerRecord{}).Error; err != nil {
				return err
			}
		}
		if vacated.SingleAssignee == movedWorker {
			if err := tx.Model(&vacated).Update("single_assignee", replacement.Single).Error; err != nil {
				return err
			}
		}
		// A single-name replacement takes over the moved worker's tier slot.
		repl := replacement
		if repl.Single != "" && len(movedRows) > 0 {
			repl = models.TieredAssignment(map[models.Tier][]string{
				models.Tier(movedRows[0].Tier): {repl.Single},
			})
		}
		if err := checkWorkersFree(tx, repl, vacatedCode); err != nil {
			return err
		}
		if err := insertWorkerRows(tx, vacated.ID, repl); err != nil {
			return err
		}
		if contractorBackfill {
			if err := tx.Model(&vacated).Update("uses_contractor", true).Error; err != nil {
				return err
			}
		}

		// The moved worker is exempt from the busy check: their vacated
		// rows are gone inside this same transaction.
		if err := checkWorkersFree(tx, newJob.Assigned, "", movedWorker); err != nil {
			return err
		}
		rec := fromJob(newJob)
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return insertWorkerRows(tx, rec.ID, newJob.Assigned)
	})
}

// Worker returns one worker by name.
func (s *Store) Worker(ctx context.Context, name string) (models.Worker, error) {
	var rec WorkerRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Worker{}, fmt.Errorf("%w: worker %s not found", scheduler.ErrDataUnavailable, name)
	}
	if err != nil {
		return models.Worker{}, err
	}
	return toWorker(rec), nil
}

// WorkersByTier returns every worker of a competency tier.
func (s *Store) WorkersByTier(ctx context.Context, tier models.Tier) ([]models.Worker, error) {
	var recs []WorkerRecord
	if err := s.db.WithContext(ctx).Where("tier = ?", int(tier)).Order("name asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	workers := make([]models.Worker, 0, len(recs))
	for _, rec := range recs {
		workers = append(workers, toWorker(rec))
	}
	return workers, nil
}

// CreateWorker inserts a new worker.
func (s *Store) CreateWorker(ctx context.Context, w models.Worker) error {
	rec := WorkerRecord{
		Name:            w.Name,
		Tier:            int(w.Tier),
		Skills:          marshalStrings(w.Skills),
		ExperienceYears: w.ExperienceYears,
		Efficiency:      w.Efficiency,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// AllWorkers returns the whole workforce ordered by tier, then name.
func (s *Store) AllWorkers(ctx context.Context) ([]models.Worker, error) {
	var recs []WorkerRecord
	if err := s.db.WithContext(ctx).Order("tier asc, name asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	workers := make([]models.Worker, 0, len(recs))
	for _, rec := range recs {
		workers = append(workers, toWorker(rec))
	}
	return workers, nil
}

// Append writes one assignment record to the audit log.
func (s *Store) Append(ctx context.Context, rec models.AssignmentRecord) error {
	details, err := json.Marshal(logDetails{Fitness: rec.Fitness, GeneticFitness: rec.GeneticFitness, Alternates: rec.Alternates})
	if err != nil {
		return err
	}
	row := AssignmentLogRecord{
		DesignCode:  rec.DesignCode,
		ProjectName: rec.ProjectName,
		Worker:      rec.Worker,
		Reason:      string(rec.Reason),
		Details:     string(details),
		CreatedAt:   rec.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Last returns the most recent assignment record, nil when the log is empty.
func (s *Store) Last(ctx context.Context) (*models.AssignmentRecord, error) {
	var row AssignmentLogRecord
	err := s.db.WithContext(ctx).Order("id desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := toRecord(row)
	return &rec, nil
}

// All returns the full assignment log, oldest first.
func (s *Store) All(ctx context.Context) ([]models.AssignmentRecord, error) {
	var rows []AssignmentLogRecord
	if err := s.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	recs := make([]models.AssignmentRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, toRecord(row))
	}
	return recs, nil
}

// Requirements returns the staffing metadata of a design code.
func (s *Store) Requirements(ctx context.Context, designCode string) (models.Requirements, error) {
	var rec DesignCodeRecord
	err := s.db.WithContext(ctx).Where("code = ?", designCode).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Requirements{}, fmt.Errorf("%w: design code %s not found", scheduler.ErrDataUnavailable, designCode)
	}
	if err != nil {
		return models.Requirements{}, err
	}
	return models.Requirements{
		Skills: unmarshalStrings(rec.Skills),
		TierCounts: models.TierCounts{
			models.TierMaster:     rec.Masters,
			models.TierQualified:  rec.Qualified,
			models.TierApprentice: rec.Apprentices,
		},
	}, nil
}

// CreateDesignCode inserts design-code metadata.
func (s *Store) CreateDesignCode(ctx context.Context, rec DesignCodeRecord) error {
	return s.db.WithContext(ctx).Create(&rec).Error
}

// DesignCodes lists all design-code metadata.
func (s *Store) DesignCodes(ctx context.Context) ([]DesignCodeRecord, error) {
	var recs []DesignCodeRecord
	err := s.db.WithContext(ctx).Order("code asc").Find(&recs).Error
	return recs, err
}

// PastDurations returns the observed completion minutes of a design code.
func (s *Store) PastDurations(ctx context.Context, designCode string) ([]float64, error) {
	var recs []PastDurationRecord
	if err := s.db.WithContext(ctx).Where("design_code = ?", designCode).Order("id asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Minutes)
	}
	return out, nil
}

// Department returns the department owning a design code.
func (s *Store) Department(ctx context.Context, designCode string) (string, error) {
	var rec DesignCodeRecord
	err := s.db.WithContext(ctx).Where("code = ?", designCode).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.Department, nil
}

// AddPastDuration records one observed completion time.
func (s *Store) AddPastDuration(ctx context.Context, designCode string, minutes float64, department string) error {
	return s.db.WithContext(ctx).Create(&PastDurationRecord{
		DesignCode: designCode,
		Minutes:    minutes,
		Department: department,
		CreatedAt:  time.Now(),
	}).Error
}

// SaveGeneticResult upserts a genetic run result keyed by scenario.
func (s *Store) SaveGeneticResult(ctx context.Context, res models.GeneticResult) error {
	payload, err := json.Marshal(res.Jobs)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing GeneticResultRecord
		err := tx.Where("scenario = ?", res.Scenario).First(&existing).Error
		row := GeneticResultRecord{
			Scenario:    res.Scenario,
			Seed:        res.Seed,
			Fitness:     res.Fitness,
			Generations: res.Generations,
			Partial:     res.Partial,
			Payload:     string(payload),
			CreatedAt:   res.CreatedAt,
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		row.ID = existing.ID
		return tx.Save(&row).Error
	})
}

// GeneticResult returns the stored result for a scenario, nil when absent.
func (s *Store) GeneticResult(ctx context.Context, scenario string) (*models.GeneticResult, error) {
	var row GeneticResultRecord
	err := s.db.WithContext(ctx).Where("scenario = ?", scenario).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res := models.GeneticResult{
		Scenario:    row.Scenario,
		Seed:        row.Seed,
		Fitness:     row.Fitness,
		Generations: row.Generations,
		Partial:     row.Partial,
		CreatedAt:   row.CreatedAt,
	}
	if row.Payload != "" {
		if err := json.Unmarshal([]byte(row.Payload), &res.Jobs); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// UpsertTaguchiResult stores a duration recommendation per design code.
// A worse recommendation never overwrites a better one, but the timestamp
// is refreshed either way to show the analysis is current.
func (s *Store) UpsertTaguchiResult(ctx context.Context, res models.TaguchiResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TaguchiResultRecord
		err := tx.Where("design_code = ?", res.DesignCode).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&TaguchiResultRecord{
				DesignCode:       res.DesignCode,
				Department:       res.Department,
				OptimalDuration:  res.OptimalDuration,
				BaselineDuration: res.BaselineDuration,
				ImprovementPct:   res.ImprovementPct,
				Method:           res.Method,
				UpdatedAt:        res.UpdatedAt,
			}).Error
		}
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"updated_at": res.UpdatedAt}
		if res.ImprovementPct > existing.ImprovementPct {
			updates["department"] = res.Department
			updates["optimal_duration"] = res.OptimalDuration
			updates["baseline_duration"] = res.BaselineDuration
			updates["improvement_pct"] = res.ImprovementPct
			updates["method"] = res.Method
		}
		return tx.Model(&existing).Updates(updates).Error
	})
}

// TaguchiResults lists every stored recommendation.
func (s *Store) TaguchiResults(ctx context.Context) ([]models.TaguchiResult, error) {
	var rows []TaguchiResultRecord
	if err := s.db.WithContext(ctx).Order("design_code asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.TaguchiResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.TaguchiResult{
			DesignCode:       row.DesignCode,
			Department:       row.Department,
			OptimalDuration:  row.OptimalDuration,
			BaselineDuration: row.BaselineDuration,
			ImprovementPct:   row.ImprovementPct,
			Method:           row.Method,
			UpdatedAt:        row.UpdatedAt,
		})
	}
	return out, nil
}

// SaveMonteCarloResult appends a simulation result; the newest row wins.
func (s *Store) SaveMonteCarloResult(ctx context.Context, res models.MonteCarloResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&MonteCarloResultRecord{
		Partial:   res.Partial,
		Payload:   string(payload),
		CreatedAt: res.CreatedAt,
	}).Error
}

// MonteCarloResult returns the latest simulation result, nil when absent.
func (s *Store) MonteCarloResult(ctx context.Context) (*models.MonteCarloResult, error) {
	var row MonteCarloResultRecord
	err := s.db.WithContext(ctx).Order("id desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res models.MonteCarloResult
	if err := json.Unmarshal([]byte(row.Payload), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type logDetails struct {
	Fitness        models.FitnessBreakdown  `json:"fitness"`
	GeneticFitness float64                  `json:"genetic_fitness,omitempty"`
	Alternates     []models.RankedCandidate `json:"alternates,omitempty"`
}

func toRecord(row AssignmentLogRecord) models.AssignmentRecord {
	rec := models.AssignmentRecord{
		ID:          row.ID,
		DesignCode:  row.DesignCode,
		ProjectName: row.ProjectName,
		Worker:      row.Worker,
		Reason:      models.AssignmentReason(row.Reason),
		CreatedAt:   row.CreatedAt,
	}
	if row.Details != "" {
		var det logDetails
		if json.Unmarshal([]byte(row.Details), &det) == nil {
			rec.Fitness = det.Fitness
			rec.GeneticFitness = det.GeneticFitness
			rec.Alternates = det.Alternates
		}
	}
	return rec
}

func toWorker(rec WorkerRecord) models.Worker {
	return models.Worker{
		Name:            rec.Name,
		Tier:            models.Tier(rec.Tier),
		Skills:          unmarshalStrings(rec.Skills),
		ExperienceYears: rec.ExperienceYears,
		Efficiency:      rec.Efficiency,
	}
}

func fromJob(job models.Job) JobRecord {
	return JobRecord{
		DesignCode:       job.DesignCode,
		ProjectName:      job.ProjectName,
		Priority:         string(job.Priority),
		DeliveryDate:     job.DeliveryDate,
		Status:           string(job.Status),
		RemainingMinutes: job.RemainingMinutes,
		RequiredSkills:   marshalStrings(job.RequiredSkills),
		Masters:          job.Required[models.TierMaster],
		Qualified:        job.Required[models.TierQualified],
		Apprentices:      job.Required[models.TierApprentice],
		SingleAssignee:   job.Assigned.Single,
		UsesContractor:   job.UsesContractor,
	}
}

func (s *Store) toJob(ctx context.Context, db *gorm.DB, rec JobRecord) (models.Job, error) {
	job := models.Job{
		DesignCode:       rec.DesignCode,
		ProjectName:      rec.ProjectName,
		Priority:         models.Priority(rec.Priority),
		DeliveryDate:     rec.DeliveryDate,
		Status:           models.Status(rec.Status),
		RemainingMinutes: rec.RemainingMinutes,
		RequiredSkills:   unmarshalStrings(rec.RequiredSkills),
		Required: models.TierCounts{
			models.TierMaster:     rec.Masters,
			models.TierQualified:  rec.Qualified,
			models.TierApprentice: rec.Apprentices,
		},
		UsesContractor: rec.UsesContractor,
	}

	var rows []JobWorkerRecord
	if err := db.WithContext(ctx).Where("job_id = ?", rec.ID).Order("id asc").Find(&rows).Error; err != nil {
		return models.Job{}, err
	}
	if len(rows) > 0 {
		tiered := make(map[models.Tier][]string)
		for _, row := range rows {
			tier := models.Tier(row.Tier)
			tiered[tier] = append(tiered[tier], row.WorkerName)
		}
		job.Assigned = models.TieredAssignment(tiered)
	} else if rec.SingleAssignee != "" {
		job.Assigned = models.SingleAssignment(rec.SingleAssignee)
	}
	return job, nil
}

// insertWorkerRows writes one JobWorkerRecord per tiered assignment slot.
// Single-name assignments live on the job row itself and get no rows.
func insertWorkerRows(tx *gorm.DB, jobID uint, assigned models.Assignment) error {
	for _, tier := range models.Tiers {
		for _, name := range assigned.Tiered[tier] {
			row := JobWorkerRecord{
				JobID:      jobID,
				Tier:       int(tier),
				WorkerName: name,
				Contractor: strings.HasPrefix(name, "Contractor ("),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// checkWorkersFree fails with ErrConflictingWrite when any non-contractor
// worker in the assignment already sits on another active job. exceptCode
// excludes the job being re-saved; exempt names skip the check entirely.
func checkWorkersFree(tx *gorm.DB, assigned models.Assignment, exceptCode string, exempt ...string) error {
	names := assigned.Workers()
	if len(names) == 0 {
		return nil
	}
	skip := make(map[string]bool, len(exempt))
	for _, name := range exempt {
		skip[name] = true
	}
	var check []string
	for _, name := range names {
		if skip[name] || strings.HasPrefix(name, "Contractor (") {
			continue
		}
		check = append(check, name)
	}
	if len(check) == 0 {
		return nil
	}

	q := tx.Model(&JobWorkerRecord{}).
		Joins("JOIN job_records ON job_records.id = job_worker_records.job_id").
		Where("job_worker_records.worker_name IN ?", check).
		Where("job_records.status <> ?", string(models.StatusCompleted))
	if exceptCode != "" {
		q = q.Where("job_records.design_code <> ?", exceptCode)
	}
	var busy int64
	if err := q.Count(&busy).Error; err != nil {
		return err
	}
	if busy > 0 {
		return fmt.Errorf("%w: worker already assigned to an active job", scheduler.ErrConflictingWrite)
	}

	sq := tx.Model(&JobRecord{}).
		Where("single_assignee IN ?", check).
		Where("status <> ?", string(models.StatusCompleted))
	if exceptCode != "" {
		sq = sq.Where("design_code <> ?", exceptCode)
	}
	if err := sq.Count(&busy).Error; err != nil {
		return err
	}
	if busy > 0 {
		return fmt.Errorf("%w: worker already assigned to an active job", scheduler.ErrConflictingWrite)
	}
	return nil
}

func marshalStrings(v []string) string {
	if len(v) == 0 {
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if json.Unmarshal([]byte(s), &out) != nil {
		return nil
	}
	return out
}
