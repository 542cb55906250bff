// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Engine owns the serving model. Training builds a complete new model in
// isolation and publishes it with a single atomic pointer swap, so readers
// never observe a partially trained model and a failed fit leaves the
// previous one serving.
type Engine struct {
	config  *Config
	trainer Trainer
	logger  zerolog.Logger

	current atomic.Pointer[TrainedModel]
	version atomic.Int64

	trainMu     sync.Mutex
	statusMu    sync.RWMutex
	trainStatus TrainingStatus
}

// NewEngine creates an engine that trains with trainer.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewEngine(cfg *Config, trainer Trainer, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if trainer == nil {
		return nil, fmt.Errorf("trainer is required")
	}

	return &Engine{
		config:  cfg.Clone(),
		trainer: trainer,
		logger:  logger.With().Str("component", "recommend").Logger(),
		trainStatus: TrainingStatus{
			Algorithm: trainer.Name(),
		},
	}, nil
}

// Train fits a new model on set and publishes it. It returns immediately
// with ErrTrainingInProgress if another fit is running. On any error the
// serving model is unchanged.
func (e *Engine) Train(ctx context.Context, set *CleanedRatingSet) (*TrainedModel, error) {
	index, triples := BuildIndex(set)
	return e.TrainIndexed(ctx, index, triples, set.Titles)
}

// TrainIndexed is Train on an already-built index.
func (e *Engine) TrainIndexed(ctx context.Context, index *IndexMapping, triples []Triple, titles map[string]string) (*TrainedModel, error) {
	if !e.trainMu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	start := time.Now()
	e.setTraining(true)
	e.logger.Info().
		Str("algorithm", e.trainer.Name()).
		Int("ratings", len(triples)).
		Int("users", index.NumUsers()).
		Int("items", index.NumItems()).
		Msg("starting model training")

	model, err := FitIndexed(ctx, e.trainer, index, triples, titles, e.config.Training)
	duration := time.Since(start)
	if err != nil {
		e.finishTraining(nil, duration, err)
		e.logger.Error().
			Err(err).
			Dur("duration", duration).
			Bool("timeout", errors.Is(err, ErrTrainingTimeout)).
			Msg("model training failed, keeping current model")
		return nil, err
	}

	e.Publish(model)
	e.finishTraining(model, duration, nil)

	e.logger.Info().
		Int64("version", model.Version).
		Float64("train_rmse", model.TrainRMSE).
		Int64("duration_ms", duration.Milliseconds()).
		Msg("model training complete")

	return model, nil
}

// Publish assigns the next version to model and makes it current.
// The model must not be modified afterwards.
func (e *Engine) Publish(model *TrainedModel) {
	model.Version = e.version.Add(1)
	e.current.Store(model)
}

// Restore makes a previously persisted model current, keeping its version.
// Later publishes continue numbering after it.
func (e *Engine) Restore(model *TrainedModel) {
	for {
		v := e.version.Load()
		if model.Version <= v {
			break
		}
		if e.version.CompareAndSwap(v, model.Version) {
			break
		}
	}
	e.current.Store(model)

	e.statusMu.Lock()
	e.trainStatus.ModelVersion = model.Version
	e.trainStatus.LastTrainedAt = model.TrainedAt
	e.trainStatus.NumUsers = model.Index.NumUsers()
	e.trainStatus.NumItems = model.Index.NumItems()
	e.trainStatus.NumRatings = model.NumRatings
	e.statusMu.Unlock()

	e.logger.Info().
		Int64("version", model.Version).
		Str("algorithm", model.Algorithm).
		Msg("restored model")
}

// Current returns the serving model, or nil before the first publish.
func (e *Engine) Current() *TrainedModel {
	return e.current.Load()
}

// Recommend ranks the serving model's catalog for userID, excluding rated.
// topN <= 0 uses the configured default.
func (e *Engine) Recommend(ctx context.Context, userID int, rated map[string]struct{}, topN int) (RecommendationResult, error) {
	if err := ctx.Err(); err != nil {
		return RecommendationResult{}, err
	}
	model := e.current.Load()
	if model == nil {
		return RecommendationResult{}, ErrModelNotTrained
	}
	if topN <= 0 {
		topN = e.config.DefaultTopN
	}
	return Recommend(model, userID, model.Index.Items, rated, topN), nil
}

// Predict returns the serving model's estimate for (userID, isbn).
func (e *Engine) Predict(userID int, isbn string) (float64, error) {
	model := e.current.Load()
	if model == nil {
		return 0, ErrModelNotTrained
	}
	return model.Predict(userID, isbn), nil
}

// Status returns the current training status.
func (e *Engine) Status() TrainingStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.trainStatus
}

func (e *Engine) setTraining(on bool) {
	e.statusMu.Lock()
	e.trainStatus.IsTraining = on
	e.statusMu.Unlock()
}

func (e *Engine) finishTraining(model *TrainedModel, duration time.Duration, err error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	e.trainStatus.IsTraining = false
	e.trainStatus.LastDurationMS = duration.Milliseconds()
	if err != nil {
		e.trainStatus.LastError = err.Error()
		return
	}
	e.trainStatus.LastError = ""
	e.trainStatus.ModelVersion = model.Version
	e.trainStatus.Algorithm = model.Algorithm
	e.trainStatus.LastTrainedAt = model.TrainedAt
	e.trainStatus.NumUsers = model.Index.NumUsers()
	e.trainStatus.NumItems = model.Index.NumItems()
	e.trainStatus.NumRatings = model.NumRatings
}
