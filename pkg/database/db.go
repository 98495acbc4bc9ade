package database

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// JobRecord is a persisted job. Required tier counts are flat columns;
// the assigned workers live in JobWorkerRecord rows.
type JobRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	DesignCode       string    `gorm:"unique;not null" json:"design_code"`
	ProjectName      string    `json:"project_name"`
	Priority         string    `gorm:"default:normal" json:"priority"`
	DeliveryDate     time.Time `json:"delivery_date"`
	Status           string    `gorm:"index;default:pending" json:"status"`
	RemainingMinutes float64   `json:"remaining_minutes"`
	RequiredSkills   string    `json:"required_skills"` // JSON array
	Masters          int       `gorm:"default:0" json:"masters"`
	Qualified        int       `gorm:"default:0" json:"qualified"`
	Apprentices      int       `gorm:"default:0" json:"apprentices"`
	SingleAssignee   string    `json:"single_assignee"`
	UsesContractor   bool      `json:"uses_contractor"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// JobWorkerRecord is one assigned worker slot of a tiered assignment.
type JobWorkerRecord struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	JobID      uint   `gorm:"index;not null" json:"job_id"`
	Tier       int    `gorm:"not null" json:"tier"`
	WorkerName string `gorm:"index;not null" json:"worker_name"`
	Contractor bool   `json:"contractor"`
}

// WorkerRecord is a persisted workforce member.
type WorkerRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"unique;not null" json:"name"`
	Tier            int       `gorm:"index;not null" json:"tier"`
	Skills          string    `json:"skills"` // JSON array
	ExperienceYears float64   `json:"experience_years"`
	Efficiency      float64   `json:"efficiency"`
	CreatedAt       time.Time `json:"created_at"`
}

// DesignCodeRecord is per-job-type staffing requirements and metadata.
type DesignCodeRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Code             string    `gorm:"unique;not null" json:"code"`
	ProductName      string    `json:"product_name"`
	Department       string    `json:"department"`
	EstimatedMinutes float64   `json:"estimated_minutes"`
	Skills           string    `json:"skills"` // JSON array
	Masters          int       `gorm:"default:0" json:"masters"`
	Qualified        int       `gorm:"default:0" json:"qualified"`
	Apprentices      int       `gorm:"default:0" json:"apprentices"`
	CreatedAt        time.Time `json:"created_at"`
}

// AssignmentLogRecord is one row of the append-only assignment audit
// log. The fitness breakdown and ranked alternates are stored as JSON.
type AssignmentLogRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DesignCode  string    `gorm:"index;not null" json:"design_code"`
	ProjectName string    `json:"project_name"`
	Worker      string    `json:"worker"`
	Reason      string    `json:"reason"`
	Details     string    `json:"details"` // JSON FitnessBreakdown + alternates
	CreatedAt   time.Time `json:"created_at"`
}

// GeneticResultRecord holds one genetic run result per scenario label,
// payload as JSON.
type GeneticResultRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Scenario    string    `gorm:"unique;not null" json:"scenario"`
	Seed        int64     `json:"seed"`
	Fitness     float64   `json:"fitness"`
	Generations int       `json:"generations"`
	Partial     bool      `json:"partial"`
	Payload     string    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaguchiResultRecord holds the duration recommendation per design code.
type TaguchiResultRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	DesignCode       string    `gorm:"unique;not null" json:"design_code"`
	Department       string    `json:"department"`
	OptimalDuration  float64   `json:"optimal_duration"`
	BaselineDuration float64   `json:"baseline_duration"`
	ImprovementPct   float64   `json:"improvement_pct"`
	Method           string    `json:"method"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PastDurationRecord is an observed completion time per design code,
// feeding the Taguchi baseline.
type PastDurationRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DesignCode string    `gorm:"index;not null" json:"design_code"`
	Minutes    float64   `json:"minutes"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// MonteCarloResultRecord holds a simulation result; the newest row is
// the current one, payload as JSON.
type MonteCarloResultRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Partial   bool      `json:"partial"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKey represents an API key in the database.
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"key"`
	Name       string     `gorm:"not null" json:"name"`
	KeyPreview string     `json:"key_preview"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// APIUsage tracks per-key request and entity counts per day.
type APIUsage struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	KeyID        uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date         string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount int    `gorm:"default:0" json:"request_count"`
	TotalJobs    int    `gorm:"default:0" json:"total_jobs"`
	TotalWorkers int    `gorm:"default:0" json:"total_workers"`
}

// MasterUser represents the admin user account.
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// InitDB initializes the database connection and migrates the schema.
func InitDB() *gorm.DB {
	var db *gorm.DB
	var err error

	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	} else {
		dbPath := os.Getenv("DATA_PATH")
		if dbPath == "" {
			dbPath = "scheduler.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	}

	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	Migrate(db)
	return db
}

// Migrate runs the schema auto-migration.
func Migrate(db *gorm.DB) {
	db.AutoMigrate(
		&JobRecord{}, &JobWorkerRecord{}, &WorkerRecord{}, &DesignCodeRecord{},
		&AssignmentLogRecord{}, &GeneticResultRecord{}, &TaguchiResultRecord{},
		&PastDurationRecord{}, &MonteCarloResultRecord{},
		&APIKey{}, &APIUsage{}, &MasterUser{},
	)
}
