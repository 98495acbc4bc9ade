package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/mertacar/workforce-scheduler-api/pkg/auth"
	"github.com/mertacar/workforce-scheduler-api/pkg/config"
	"github.com/mertacar/workforce-scheduler-api/pkg/database"
	"github.com/mertacar/workforce-scheduler-api/pkg/handlers"
	"github.com/mertacar/workforce-scheduler-api/pkg/runs"
	"github.com/mertacar/workforce-scheduler-api/pkg/scheduler"
)

func main() {
	// Load .env if it exists
	// Try root and parent directories for flexibility
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := config.Load()
	db := database.InitDB()
	_ = auth.EnsureAdminExists(db)

	store := database.NewStore(db)
	engine := scheduler.New(cfg, scheduler.Stores{
		Jobs:         store,
		Workers:      store,
		Log:          store,
		Requirements: store,
		History:      store,
		Results:      store,
	})
	runMgr := runs.NewManager()

	h := &handlers.Handler{DB: db, Store: store, Engine: engine, Runs: runMgr, Cfg: cfg}

	startCron(cfg, engine)

	r := gin.Default()

	// Routes
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Workforce Scheduler API",
			"version": "1.0.0",
		})
	})

	r.POST("/admin/login", h.Login)

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)
	}

	// Scheduler Endpoints
	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	{
		api.POST("/jobs", h.SubmitJob)
		api.GET("/jobs", h.ListJobs)
		api.PUT("/jobs/:code/status", h.UpdateJobStatus)
		api.PUT("/jobs/:code/duration", h.UpdateJobDuration)
		api.POST("/jobs/displacement/confirm", h.ConfirmDisplacement)
		api.POST("/jobs/displacement/decline", h.DeclineDisplacement)
		api.GET("/candidates/:code", h.GetCandidates)

		api.POST("/workers", h.CreateWorker)
		api.GET("/workers", h.ListWorkers)
		api.POST("/design-codes", h.CreateDesignCode)
		api.GET("/design-codes", h.ListDesignCodes)
		api.POST("/design-codes/:code/durations", h.AddPastDuration)

		api.GET("/assignments/last", h.LastAssignment)
		api.GET("/assignments", h.AssignmentHistory)

		api.POST("/optimize/genetic", h.StartGenetic)
		api.POST("/optimize/monte-carlo", h.StartMonteCarlo)
		api.POST("/optimize/taguchi", h.StartTaguchi)
		api.GET("/optimize/runs/:id", h.GetRun)
		api.GET("/results/genetic/:scenario", h.GetGeneticResult)
		api.GET("/results/taguchi", h.GetTaguchiResults)
		api.GET("/results/monte-carlo", h.GetMonteCarloResult)

		api.GET("/usage", h.GetMyUsage)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}

// startCron schedules the periodic batch analyses when configured.
func startCron(cfg *config.Config, engine *scheduler.Engine) {
	if cfg.GeneticCron == "" && cfg.MonteCarloCron == "" {
		return
	}

	c := cron.New()
	if cfg.GeneticCron != "" {
		if _, err := c.AddFunc(cfg.GeneticCron, func() {
			if _, err := engine.RunGenetic(context.Background(), "scheduled", time.Now().UnixNano()); err != nil {
				log.Printf("scheduled genetic run failed: %v", err)
			}
		}); err != nil {
			log.Fatalf("invalid genetic cron spec %q: %v", cfg.GeneticCron, err)
		}
	}
	if cfg.MonteCarloCron != "" {
		if _, err := c.AddFunc(cfg.MonteCarloCron, func() {
			params := scheduler.MonteCarloParams{
				Scenarios:          cfg.MonteCarlo.Scenarios,
				AbsenceProbability: cfg.MonteCarlo.AbsenceProbability,
				PerformanceStd:     cfg.MonteCarlo.PerformanceStd,
				Seed:               time.Now().UnixNano(),
			}
			if _, err := engine.RunMonteCarlo(context.Background(), params); err != nil {
				log.Printf("scheduled monte carlo run failed: %v", err)
			}
		}); err != nil {
			log.Fatalf("invalid monte carlo cron spec %q: %v", cfg.MonteCarloCron, err)
		}
	}
	c.Start()
}
