package service

import (
	"context"
	"fmt"

	"github.com/okian/retention/internal/adapters/artifact"
	"github.com/okian/retention/internal/adapters/jobstore"
	"github.com/okian/retention/internal/adapters/recommend"
	"github.com/okian/retention/internal/adapters/tabular"
	"github.com/okian/retention/internal/config"
	"github.com/okian/retention/internal/domain/attribution"
	"github.com/okian/retention/internal/domain/panel"
	"github.com/okian/retention/internal/domain/pipeline"
	"github.com/okian/retention/internal/domain/prediction"
	"github.com/okian/retention/internal/domain/skills"
	"github.com/okian/retention/internal/domain/training"
	"github.com/okian/retention/pkg/logger"
)

// OpenBackend returns the artifact backend selected by cfg.
func OpenBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (artifact.Backend, error) {
	switch cfg.ArtifactBackend {
	case config.BackendAzblob:
		b, err := artifact.NewAzblobBackend(cfg.AzblobConnectionString, cfg.AzblobContainer, log)
		if err != nil {
			return nil, err
		}
		if err := b.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return artifact.NewFileBackend(cfg.OutputDir)
	}
}

// Tables returns where the raw HR tables are read from.
func Tables(cfg *config.Config, backend artifact.Backend) tabular.Opener {
	if cfg.ArtifactBackend == config.BackendAzblob {
		return artifact.Tables{Backend: backend, Prefix: cfg.AzblobDataPrefix}
	}
	return tabular.Dir(cfg.DataDir)
}

// OpenJobStore returns the job store selected by cfg and a function
// releasing it. Postgres schemas are migrated before use.
func OpenJobStore(ctx context.Context, cfg *config.Config) (JobStore, func(), error) {
	if cfg.JobStore != config.StorePostgres {
		return jobstore.NewMemoryStore(), func() {}, nil
	}
	if err := jobstore.MigrateUp(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("migrate job store: %w", err)
	}
	pool, err := jobstore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	s := jobstore.NewPostgresStore(pool)
	return s, s.Close, nil
}

// Recommender returns the remote recommender when one is configured.
func Recommender(cfg *config.Config) attribution.Recommender {
	if cfg.RecommenderURL == "" {
		return attribution.NoopRecommender{}
	}
	return recommend.NewClient(cfg.RecommenderURL, cfg.RecommenderTimeout(),
		recommend.WithModel(cfg.RecommenderModel),
		recommend.WithAPIKey(cfg.RecommenderAPIKey))
}

// TrainerConfig maps cfg onto the trainer settings.
func TrainerConfig(cfg *config.Config) training.Config {
	tc := training.DefaultConfig()
	tc.HoldoutMonths = cfg.HoldoutMonths
	tc.TestOffset = cfg.TestOffset
	tc.RecallFloor = cfg.RecallFloor
	tc.Trials = cfg.SearchTrials
	tc.Parallelism = cfg.SearchParallelism
	tc.EarlyStoppingRounds = cfg.EarlyStoppingRounds
	tc.Seed = cfg.RandomSeed
	tc.Baseline.Seed = cfg.RandomSeed
	return tc
}

// Builder returns the panel builder configured by cfg.
func Builder(cfg *config.Config, log logger.Logger) *panel.Builder {
	return panel.NewBuilder(
		panel.WithMinHistoryMonths(cfg.MinHistoryMonths),
		panel.WithCompanyLocation(cfg.CompanyLatitude, cfg.CompanyLongitude),
		panel.WithSkillNormalizer(skills.New(skills.WithThreshold(cfg.SkillSimilarityThreshold))),
		panel.WithLogger(log.Named("panel")),
	)
}

// Trainer returns the model trainer configured by cfg.
func Trainer(cfg *config.Config, log logger.Logger) *training.Trainer {
	return training.NewTrainer(
		training.WithConfig(TrainerConfig(cfg)),
		training.WithLogger(log.Named("training")),
	)
}

// PipelineOptions builds the stage components from cfg.
func PipelineOptions(cfg *config.Config, log logger.Logger) []pipeline.Option {
	engine := attribution.NewEngine(
		attribution.WithTopDrivers(cfg.TopDrivers),
		attribution.WithRecommender(Recommender(cfg), cfg.RecommenderTimeout()),
		attribution.WithLogger(log.Named("attribution")),
	)
	return []pipeline.Option{
		pipeline.WithBuilder(Builder(cfg, log)),
		pipeline.WithTrainer(Trainer(cfg, log)),
		pipeline.WithPredictor(prediction.New(prediction.WithLogger(log.Named("prediction")))),
		pipeline.WithEngine(engine),
		pipeline.WithJobTimeout(cfg.JobTimeout()),
		pipeline.WithLogger(log.Named("pipeline")),
	}
}
