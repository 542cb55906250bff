// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/pipeline"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// Pipeline runs one batch pass. *pipeline.Pipeline satisfies it.
type Pipeline interface {
	Run(ctx context.Context) (*pipeline.RunStats, error)
}

// RecommendServiceConfig holds retraining settings.
type RecommendServiceConfig struct {
	// TrainOnStartup runs the pipeline once when the service starts.
	TrainOnStartup bool

	// TrainInterval is the time between scheduled runs.
	// Default: 24h
	TrainInterval time.Duration
}

// RecommendService runs the batch pipeline on a schedule. Failed runs are
// logged and retried at the next tick; the serving model stays in place.
type RecommendService struct {
	pipeline Pipeline
	config   RecommendServiceConfig
	logger   zerolog.Logger
	name     string
}

// NewRecommendService creates the retraining service.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRecommendService(p Pipeline, cfg RecommendServiceConfig, logger zerolog.Logger) *RecommendService {
	if cfg.TrainInterval <= 0 {
		cfg.TrainInterval = 24 * time.Hour
	}
	return &RecommendService{
		pipeline: p,
		config:   cfg,
		logger:   logger.With().Str("service", "recommend").Logger(),
		name:     "recommend-service",
	}
}

// Serve implements suture.Service.
func (s *RecommendService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Dur("train_interval", s.config.TrainInterval).
		Msg("recommendation service starting")

	if s.config.TrainOnStartup {
		s.run(ctx, "startup")
	}

	ticker := time.NewTicker(s.config.TrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("recommendation service shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.run(ctx, "schedule")
		}
	}
}

func (s *RecommendService) run(ctx context.Context, trigger string) {
	stats, err := s.pipeline.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Info().Str("trigger", trigger).Msg("skipping run, another run is in progress")
	case err != nil:
		s.logger.Warn().
			Err(err).
			Str("trigger", trigger).
			Str("stage", string(recommend.StageOf(err))).
			Msg("pipeline run failed, will retry on schedule")
	default:
		s.logger.Info().
			Str("trigger", trigger).
			Str("run_id", stats.RunID).
			Int64("model_version", stats.ModelVersion).
			Dur("duration", stats.Duration()).
			Msg("pipeline run complete")
	}
}

// String returns the service name for logging.
func (s *RecommendService) String() string {
	return s.name
}
