package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DeclinePolicy controls what happens to a critical job when a proposed
// displacement is declined.
type DeclinePolicy string

const (
	// DeclineContractor falls back to contractor labor immediately.
	DeclineContractor DeclinePolicy = "contractor"
	// DeclinePending leaves the affected tier unassigned.
	DeclinePending DeclinePolicy = "pending"
)

// Weights blend the fitness components into the composite score. Each
// component is on a 0-100 scale; weights should sum to roughly 1.
type Weights struct {
	Competency   float64 `yaml:"competency"`
	Experience   float64 `yaml:"experience"`
	Efficiency   float64 `yaml:"efficiency"`
	Availability float64 `yaml:"availability"`
}

// GeneticConfig bounds the genetic search.
type GeneticConfig struct {
	PopulationSize   int           `yaml:"population_size"`
	Generations      int           `yaml:"generations"`
	StagnationWindow int           `yaml:"stagnation_window"`
	MutationRate     float64       `yaml:"mutation_rate"`
	CrossoverRate    float64       `yaml:"crossover_rate"`
	TournamentSize   int           `yaml:"tournament_size"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MonteCarloConfig holds the default simulation parameters.
type MonteCarloConfig struct {
	Scenarios          int           `yaml:"scenarios"`
	AbsenceProbability float64       `yaml:"absence_probability"`
	PerformanceStd     float64       `yaml:"performance_std"`
	DelayThreshold     float64       `yaml:"delay_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
}

// TaguchiConfig bounds the experiment design.
type TaguchiConfig struct {
	Levels int `yaml:"levels"`
}

// Config is the engine tuning surface. Everything has a working default;
// a YAML file (SCHEDULER_CONFIG) and env vars can override.
type Config struct {
	MaxConcurrentJobs    int           `yaml:"max_concurrent_jobs"`
	Weights              Weights       `yaml:"weights"`
	CriticalWeights      Weights       `yaml:"critical_weights"`
	ContractorPenalty    float64       `yaml:"contractor_penalty"`
	ContractorEfficiency float64       `yaml:"contractor_efficiency"`
	CriticalTopPickBonus float64       `yaml:"critical_top_pick_bonus"`
	DeclinePolicy        DeclinePolicy `yaml:"decline_policy"`
	StoreTimeout         time.Duration `yaml:"store_timeout"`

	Genetic    GeneticConfig    `yaml:"genetic"`
	MonteCarlo MonteCarloConfig `yaml:"monte_carlo"`
	Taguchi    TaguchiConfig    `yaml:"taguchi"`

	// Cron specs for the periodic batch analyses. Empty disables.
	GeneticCron    string `yaml:"genetic_cron"`
	MonteCarloCron string `yaml:"monte_carlo_cron"`
}

// Default returns the built-in tuning values.
func Default() *Config {
	return &Config{
		MaxConcurrentJobs:    3,
		Weights:              Weights{Competency: 0.35, Experience: 0.20, Efficiency: 0.30, Availability: 0.15},
		CriticalWeights:      Weights{Competency: 0.25, Experience: 0.35, Efficiency: 0.25, Availability: 0.15},
		ContractorPenalty:    25,
		ContractorEfficiency: 0.5,
		CriticalTopPickBonus: 15,
		DeclinePolicy:        DeclineContractor,
		StoreTimeout:         5 * time.Second,
		Genetic: GeneticConfig{
			PopulationSize:   50,
			Generations:      100,
			StagnationWindow: 20,
			MutationRate:     0.1,
			CrossoverRate:    0.9,
			TournamentSize:   3,
			Timeout:          30 * time.Second,
		},
		MonteCarlo: MonteCarloConfig{
			Scenarios:          50,
			AbsenceProbability: 0.05,
			PerformanceStd:     0.05,
			DelayThreshold:     0.3,
			Timeout:            30 * time.Second,
		},
		Taguchi: TaguchiConfig{Levels: 3},
	}
}

// Load builds the config from defaults, an optional YAML file and env
// overrides, in that order.
func Load() *Config {
	cfg := Default()

	path := os.Getenv("SCHEDULER_CONFIG")
	if path == "" {
		path = "scheduler.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("could not parse %s: %v", path, err)
		}
		log.Printf("Loaded scheduler config from %s", path)
	}

	envOverrideInt(&cfg.MaxConcurrentJobs, "MAX_CONCURRENT_JOBS")
	envOverrideFloat(&cfg.ContractorPenalty, "CONTRACTOR_PENALTY")
	envOverrideFloat(&cfg.ContractorEfficiency, "CONTRACTOR_EFFICIENCY")
	envOverrideInt(&cfg.Genetic.PopulationSize, "GENETIC_POPULATION_SIZE")
	envOverrideInt(&cfg.Genetic.Generations, "GENETIC_GENERATIONS")
	envOverrideInt(&cfg.MonteCarlo.Scenarios, "MONTE_CARLO_SCENARIOS")
	envOverrideFloat(&cfg.MonteCarlo.AbsenceProbability, "MONTE_CARLO_ABSENCE_PROBABILITY")
	envOverrideFloat(&cfg.MonteCarlo.PerformanceStd, "MONTE_CARLO_PERFORMANCE_STD")
	if v := os.Getenv("DECLINE_POLICY"); v != "" {
		cfg.DeclinePolicy = DeclinePolicy(v)
	}
	envOverride(&cfg.GeneticCron, "GENETIC_CRON")
	envOverride(&cfg.MonteCarloCron, "MONTE_CARLO_CRON")

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid scheduler config: %v", err)
	}
	return cfg
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max_concurrent_jobs must be positive, got %d", c.MaxConcurrentJobs)
	}
	if c.Genetic.PopulationSize <= 1 {
		return fmt.Errorf("genetic population_size must be at least 2, got %d", c.Genetic.PopulationSize)
	}
	if c.MonteCarlo.AbsenceProbability < 0 || c.MonteCarlo.AbsenceProbability > 1 {
		return fmt.Errorf("monte_carlo absence_probability must be in [0,1], got %g", c.MonteCarlo.AbsenceProbability)
	}
	switch c.DeclinePolicy {
	case DeclineContractor, DeclinePending:
	default:
		return fmt.Errorf("unknown decline_policy %q", c.DeclinePolicy)
	}
	return nil
}

func envOverride(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envOverrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envOverrideFloat(target *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}
