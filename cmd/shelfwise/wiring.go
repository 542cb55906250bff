// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package main

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/database"
	"github.com/tomtom215/shelfwise/internal/loader"
	"github.com/tomtom215/shelfwise/internal/logging"
	"github.com/tomtom215/shelfwise/internal/pipeline"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/algorithms"
	"github.com/tomtom215/shelfwise/internal/recommend/storage"
)

// components holds everything a batch run or the daemon needs. close
// releases them in reverse order of creation.
type components struct {
	db       *database.DB
	models   *storage.Store
	runLog   *pipeline.BadgerRunLog
	redis    *redis.Client
	engine   *recommend.Engine
	pipeline *pipeline.Pipeline
}

// buildComponents opens the stores and wires the pipeline.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func buildComponents(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	if c.db, err = database.New(&cfg.Database); err != nil {
		return nil, err
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	if c.models, err = storage.NewStore(cfg.ModelStore.Path); err != nil {
		return nil, fmt.Errorf("open model store: %w", err)
	}
	if c.runLog, err = pipeline.OpenBadgerRunLog(cfg.RunLog.Path, cfg.RunLog.InMemory); err != nil {
		return nil, err
	}

	trainer, err := newTrainer(cfg.Training.Algorithm, cfg)
	if err != nil {
		return nil, err
	}
	engineCfg, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}
	if c.engine, err = recommend.NewEngine(engineCfg, trainer, logger); err != nil {
		return nil, err
	}

	source, err := newSource(cfg, c.db, logger)
	if err != nil {
		return nil, err
	}

	var publisher pipeline.Publisher
	if cfg.Redis.Enabled {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if pingErr := c.redis.Ping(pingCtx).Err(); pingErr != nil {
			logger.Warn().Err(pingErr).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, publishing will be retried each run")
		}
		cancel()
		publisher = pipeline.NewRedisPublisher(c.redis, cfg.Redis, logger)
	}

	c.pipeline, err = pipeline.New(pipeline.Dependencies{
		Source:     source,
		Engine:     c.engine,
		Sink:       c.db,
		Models:     c.models,
		KeepModels: cfg.ModelStore.KeepVersions,
		Publisher:  publisher,
		RunLog:     c.runLog,
		Cleaning:   engineCfg.Cleaning,
		TopN:       cfg.Recommend.TopN,
		Workers:    cfg.Training.Workers,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *components) close() {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing Redis client")
		}
	}
	if c.runLog != nil {
		if err := c.runLog.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing run log")
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}
}

// restoreLatestModel makes the newest stored snapshot of the configured
// algorithm current, so the API can answer before the first retrain.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (c *components) restoreLatestModel(ctx context.Context, algorithm string, logger zerolog.Logger) {
	if _, ok := c.models.LatestVersion(algorithm); !ok {
		logger.Info().Str("algorithm", algorithm).Msg("No stored model to restore")
		return
	}
	model, meta, err := c.models.Load(ctx, algorithm, 0)
	if err != nil {
		logger.Warn().Err(err).Str("algorithm", algorithm).Msg("Failed to restore stored model")
		return
	}
	c.engine.Restore(model)
	logger.Info().
		Int64("version", meta.Version).
		Time("trained_at", meta.TrainedAt).
		Msg("Restored stored model")
}

// newSource selects the raw row source.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func newSource(cfg *config.Config, db *database.DB, logger zerolog.Logger) (loader.Source, error) {
	switch cfg.Source.Kind {
	case "csv":
		return newCSVSource(cfg, logger), nil
	case "duckdb":
		return loader.NewStoreSource(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func newCSVSource(cfg *config.Config, logger zerolog.Logger) *loader.CSVSource {
	delim, _ := utf8.DecodeRuneInString(cfg.Source.Delimiter)
	return loader.NewCSVSource(cfg.Source.BooksPath, cfg.Source.UsersPath, cfg.Source.RatingsPath, delim, logger)
}

// cleaningConfig resolves the configured profile. Named profiles ignore
// the explicit thresholds; "custom" uses them as given.
func cleaningConfig(c config.CleaningConfig) (recommend.CleaningConfig, error) {
	if c.Profile != recommend.ProfileCustom {
		return recommend.CleaningProfile(c.Profile)
	}
	return recommend.CleaningConfig{
		Profile:        recommend.ProfileCustom,
		DropImplicit:   c.DropImplicit,
		MinYear:        c.MinYear,
		MaxYear:        c.MaxYear,
		MinItemRatings: c.MinItemRatings,
		MinUserRatings: c.MinUserRatings,
		FilterUsers:    c.FilterUsers,
	}, nil
}

func engineConfig(cfg *config.Config) (*recommend.Config, error) {
	cleaning, err := cleaningConfig(cfg.Cleaning)
	if err != nil {
		return nil, err
	}
	return &recommend.Config{
		Cleaning: cleaning,
		Training: recommend.TrainingConfig{
			Scale:   recommend.RatingScale{Min: cfg.Training.MinRating, Max: cfg.Training.MaxRating},
			Timeout: cfg.Training.Timeout,
		},
		DefaultTopN: cfg.Recommend.TopN,
		Seed:        cfg.Training.Seed,
	}, nil
}

func trainerParams(t config.TrainingConfig) algorithms.Params {
	return algorithms.Params{
		Factors:        t.Factors,
		Iterations:     t.Iterations,
		LearningRate:   t.LearningRate,
		Regularization: t.Regularization,
		UseBiases:      t.UseBiases,
		Seed:           t.Seed,
		Workers:        t.Workers,
		EarlyStop: algorithms.EarlyStopping{
			Enabled:            t.EarlyStop,
			ValidationFraction: t.ValidationFraction,
			Patience:           t.Patience,
		},
	}
}

func newTrainer(name string, cfg *config.Config) (recommend.Trainer, error) {
	return algorithms.NewTrainer(name, trainerParams(cfg.Training))
}
