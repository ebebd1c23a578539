// Package config defines the service configuration and how it is loaded.
package config

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"
)

// Artifact backends.
const (
	BackendFile   = "file"
	BackendAzblob = "azblob"
)

// Job stores.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`
	// TrainingWorkers caps how many jobs may train at once.
	TrainingWorkers int `koanf:"training_workers"`
	// DedupeSize bounds the in-memory idempotency index.
	DedupeSize int `koanf:"dedupe_size"`
	// JobTimeoutS bounds a single job; zero disables the bound.
	JobTimeoutS int `koanf:"job_timeout_s"`

	// DataDir holds the raw HR tables when ArtifactBackend is file.
	DataDir string `koanf:"data_dir"`
	// OutputDir holds models, reports and panels when ArtifactBackend is file.
	OutputDir string `koanf:"output_dir"`
	// ArtifactBackend is file or azblob.
	ArtifactBackend        string `koanf:"artifact_backend"`
	AzblobConnectionString string `koanf:"azblob_connection_string"`
	AzblobContainer        string `koanf:"azblob_container"`
	// AzblobDataPrefix is the key prefix of the raw tables in the container.
	AzblobDataPrefix string `koanf:"azblob_data_prefix"`

	// JobStore is memory or postgres.
	JobStore    string `koanf:"job_store"`
	DatabaseURL string `koanf:"database_url"`

	MinHistoryMonths    int     `koanf:"min_history_months"`
	HoldoutMonths       int     `koanf:"holdout_months"`
	TestOffset          int     `koanf:"test_offset"`
	RecallFloor         float64 `koanf:"recall_floor"`
	SearchTrials        int     `koanf:"search_trials"`
	SearchParallelism   int     `koanf:"search_parallelism"`
	EarlyStoppingRounds int     `koanf:"early_stopping_rounds"`
	RandomSeed          int64   `koanf:"random_seed"`

	// TopDrivers is how many company-wide drivers the report lists.
	TopDrivers int `koanf:"top_drivers"`

	// RecommenderURL enables remote recommendation text when set.
	RecommenderURL       string `koanf:"recommender_url"`
	RecommenderModel     string `koanf:"recommender_model"`
	RecommenderAPIKey    string `koanf:"recommender_api_key"`
	RecommenderTimeoutMS int    `koanf:"recommender_timeout_ms"`

	CompanyLatitude          float64 `koanf:"company_latitude"`
	CompanyLongitude         float64 `koanf:"company_longitude"`
	SkillSimilarityThreshold float64 `koanf:"skill_similarity_threshold"`
}

// New creates a Config holding the defaults. The context is reserved for
// loaders that need it.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		QueueSize:                64,
		WorkerCount:              2,
		TrainingWorkers:          1,
		DedupeSize:               10_000,
		JobTimeoutS:              3600,
		DataDir:                  "data",
		OutputDir:                "output",
		ArtifactBackend:          BackendFile,
		AzblobContainer:          "retention",
		AzblobDataPrefix:         "raw",
		JobStore:                 StoreMemory,
		MinHistoryMonths:         3,
		HoldoutMonths:            7,
		TestOffset:               4,
		RecallFloor:              0,
		SearchTrials:             100,
		SearchParallelism:        runtime.NumCPU(),
		EarlyStoppingRounds:      50,
		RandomSeed:               98,
		TopDrivers:               5,
		RecommenderTimeoutMS:     10_000,
		CompanyLatitude:          13.7563,
		CompanyLongitude:         100.5018,
		SkillSimilarityThreshold: 0.8,
	}
}

// JobTimeout returns JobTimeoutS as a duration.
func (c *Config) JobTimeout() time.Duration { return time.Duration(c.JobTimeoutS) * time.Second }

// RecommenderTimeout returns RecommenderTimeoutMS as a duration.
func (c *Config) RecommenderTimeout() time.Duration {
	return time.Duration(c.RecommenderTimeoutMS) * time.Millisecond
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.Addr == "":
		return fail("addr must not be empty")
	case c.QueueSize <= 0:
		return fail("queue_size must be positive")
	case c.WorkerCount <= 0:
		return fail("worker_count must be positive")
	case c.TrainingWorkers <= 0:
		return fail("training_workers must be positive")
	case c.JobTimeoutS < 0:
		return fail("job_timeout_s must not be negative")
	case !slices.Contains([]string{BackendFile, BackendAzblob}, c.ArtifactBackend):
		return fail("artifact_backend must be %s or %s, got %q", BackendFile, BackendAzblob, c.ArtifactBackend)
	case c.ArtifactBackend == BackendFile && (c.DataDir == "" || c.OutputDir == ""):
		return fail("data_dir and output_dir are required for the file backend")
	case c.ArtifactBackend == BackendAzblob && (c.AzblobConnectionString == "" || c.AzblobContainer == ""):
		return fail("azblob_connection_string and azblob_container are required for the azblob backend")
	case !slices.Contains([]string{StoreMemory, StorePostgres}, c.JobStore):
		return fail("job_store must be %s or %s, got %q", StoreMemory, StorePostgres, c.JobStore)
	case c.JobStore == StorePostgres && c.DatabaseURL == "":
		return fail("database_url is required for the postgres job store")
	case c.MinHistoryMonths < 0:
		return fail("min_history_months must not be negative")
	case c.HoldoutMonths < 2:
		return fail("holdout_months must be at least 2")
	case c.TestOffset < 1 || c.TestOffset > c.HoldoutMonths:
		return fail("test_offset must be within 1..holdout_months")
	case c.RecallFloor < 0 || c.RecallFloor > 1:
		return fail("recall_floor must be within [0,1]")
	case c.SearchTrials < 0:
		return fail("search_trials must not be negative")
	case c.SearchParallelism <= 0:
		return fail("search_parallelism must be positive")
	case c.EarlyStoppingRounds < 0:
		return fail("early_stopping_rounds must not be negative")
	case c.TopDrivers <= 0:
		return fail("top_drivers must be positive")
	case c.RecommenderTimeoutMS <= 0:
		return fail("recommender_timeout_ms must be positive")
	case c.SkillSimilarityThreshold <= 0 || c.SkillSimilarityThreshold > 1:
		return fail("skill_similarity_threshold must be within (0,1]")
	case c.CompanyLatitude < -90 || c.CompanyLatitude > 90 || c.CompanyLongitude < -180 || c.CompanyLongitude > 180:
		return fail("company coordinates out of range")
	}
	return nil
}
