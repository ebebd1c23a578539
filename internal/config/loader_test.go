package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/retention/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retention.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearConfigEnvVars unsets every RETENTION_ variable so each scenario starts
// from the defaults.
func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if key, _, _ := strings.Cut(kv, "="); strings.HasPrefix(key, config.EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it has the production defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.TrainingWorkers, convey.ShouldEqual, 1)
			convey.So(cfg.HoldoutMonths, convey.ShouldEqual, 7)
			convey.So(cfg.TestOffset, convey.ShouldEqual, 4)
			convey.So(cfg.SearchTrials, convey.ShouldEqual, 100)
			convey.So(cfg.EarlyStoppingRounds, convey.ShouldEqual, 50)
			convey.So(cfg.RandomSeed, convey.ShouldEqual, 98)
			convey.So(cfg.TopDrivers, convey.ShouldEqual, 5)
			convey.So(cfg.SkillSimilarityThreshold, convey.ShouldEqual, 0.8)
			convey.So(cfg.ArtifactBackend, convey.ShouldEqual, config.BackendFile)
			convey.So(cfg.JobStore, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then durations derive from the numeric settings", func() {
			convey.So(cfg.JobTimeout(), convey.ShouldEqual, time.Hour)
			convey.So(cfg.RecommenderTimeout(), convey.ShouldEqual, 10*time.Second)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
		})

		convey.Convey("When loading with environment variables", func() {
			_ = os.Setenv("RETENTION_ADDR", ":8080")
			_ = os.Setenv("RETENTION_QUEUE_SIZE", "10")
			_ = os.Setenv("RETENTION_RECALL_FLOOR", "0.4")
			_ = os.Setenv("RETENTION_RANDOM_SEED", "7")
			_ = os.Setenv("RETENTION_RECOMMENDER_URL", "http://localhost:9999/recommend")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10)
				convey.So(cfg.RecallFloor, convey.ShouldEqual, 0.4)
				convey.So(cfg.RandomSeed, convey.ShouldEqual, 7)
				convey.So(cfg.RecommenderURL, convey.ShouldEqual, "http://localhost:9999/recommend")
			})
		})

		convey.Convey("When loading with a YAML file and env", func() {
			path := writeConfigFile(t, `
addr: ":9090"
worker_count: 4
holdout_months: 5
test_offset: 2
job_store: postgres
database_url: postgres://u:p@localhost/retention
`)
			_ = os.Setenv("RETENTION_CONFIG", path)
			_ = os.Setenv("RETENTION_WORKER_COUNT", "8")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.HoldoutMonths, convey.ShouldEqual, 5)
				convey.So(cfg.TestOffset, convey.ShouldEqual, 2)
				convey.So(cfg.JobStore, convey.ShouldEqual, config.StorePostgres)
				convey.So(cfg.TopDrivers, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			_ = os.Setenv("RETENTION_CONFIG", writeConfigFile(t, `invalid: yaml: content: [`))
			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the YAML file does not exist", func() {
			_ = os.Setenv("RETENTION_CONFIG", "/non/existent/file.yaml")
			_, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a setting is invalid", func() {
			_ = os.Setenv("RETENTION_ADDR", "")
			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"queue", func(c *config.Config) { c.QueueSize = 0 }, "queue_size"},
		{"training workers", func(c *config.Config) { c.TrainingWorkers = 0 }, "training_workers"},
		{"backend", func(c *config.Config) { c.ArtifactBackend = "s3" }, "artifact_backend"},
		{"azblob", func(c *config.Config) { c.ArtifactBackend = config.BackendAzblob }, "azblob_connection_string"},
		{"postgres", func(c *config.Config) { c.JobStore = config.StorePostgres }, "database_url"},
		{"offset", func(c *config.Config) { c.TestOffset = 9 }, "test_offset"},
		{"recall", func(c *config.Config) { c.RecallFloor = 1.5 }, "recall_floor"},
		{"similarity", func(c *config.Config) { c.SkillSimilarityThreshold = 0 }, "skill_similarity_threshold"},
		{"latitude", func(c *config.Config) { c.CompanyLatitude = 91 }, "coordinates"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.New(context.Background())
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("want ErrInvalidConfig, got %v", err)
			}
			if got := err.Error(); !strings.Contains(got, tc.want) {
				t.Fatalf("error %q does not mention %q", got, tc.want)
			}
		})
	}
}

