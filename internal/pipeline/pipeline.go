// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package pipeline runs the batch recommender end to end:
//
//	load -> clean -> index -> train (fit + swap) -> recommend -> sink
//
// Every fatal error is returned as a *recommend.StageError naming the stage
// that failed. The sink is written last and in one transaction, so a failed
// run never leaves a partially replaced recommendation set. Model snapshots,
// the run log and the Redis publisher are best-effort: their failures are
// logged and do not fail the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/shelfwise/internal/loader"
	"github.com/tomtom215/shelfwise/internal/logging"
	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/recommend/storage"
)

// recommendChunk is the number of users ranked per worker task.
const recommendChunk = 256

// ErrRunInProgress is returned by Run while another run of the same
// Pipeline is executing.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Sink receives the complete recommendation set of a run.
type Sink interface {
	ReplaceRecommendations(ctx context.Context, results []recommend.RecommendationResult) (int, error)
}

// ModelStore persists trained models.
type ModelStore interface {
	Save(ctx context.Context, model *recommend.TrainedModel) (*storage.ModelMetadata, error)
	Prune(ctx context.Context, name string, keepVersions int) (int, error)
}

// Dependencies wires a Pipeline. Source, Engine and Sink are required.
type Dependencies struct {
	Source loader.Source
	Engine *recommend.Engine
	Sink   Sink

	Models     ModelStore
	KeepModels int
	Publisher  Publisher
	RunLog     RunLog

	Cleaning recommend.CleaningConfig
	TopN     int
	Workers  int
	Logger   zerolog.Logger
}

// Pipeline is one configured batch job. Run may be called repeatedly;
// overlapping runs are rejected with ErrRunInProgress, and a fit started
// elsewhere on the same engine fails the train stage with
// recommend.ErrTrainingInProgress.
type Pipeline struct {
	deps    Dependencies
	logger  zerolog.Logger
	running atomic.Bool
}

// New validates deps and creates a Pipeline.
//
//nolint:gocritic // Dependencies is passed once at startup
func New(deps Dependencies) (*Pipeline, error) {
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("pipeline: source is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("pipeline: engine is required")
	case deps.Sink == nil:
		return nil, fmt.Errorf("pipeline: sink is required")
	}
	if deps.TopN <= 0 {
		deps.TopN = 10
	}
	if deps.Workers <= 0 {
		deps.Workers = runtime.NumCPU()
	}
	if deps.KeepModels <= 0 {
		deps.KeepModels = 3
	}
	return &Pipeline{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Run executes one pass. The returned stats are populated as far as the run
// got, on failure too.
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer p.running.Store(false)

	runID := logging.NewRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := p.logger.With().Str("run_id", runID).Logger()

	stats := &RunStats{
		RunID:       runID,
		StartTime:   time.Now(),
		Algorithm:   p.deps.Engine.Status().Algorithm,
		StageMillis: make(map[string]int64),
	}
	logger.Info().Str("algorithm", stats.Algorithm).Msg("pipeline run started")

	err := p.run(ctx, stats, logger)
	stats.EndTime = time.Now()

	if err != nil {
		stage := string(recommend.StageOf(err))
		stats.Status = RunFailed
		stats.FailedStage = stage
		stats.Error = err.Error()
		metrics.RecordPipelineRun(metrics.StatusFailure, stage)
		logger.Error().
			Err(err).
			Str("stage", stage).
			Dur("duration", stats.Duration()).
			Msg("pipeline run failed")
	} else {
		stats.Status = RunSucceeded
		metrics.RecordPipelineRun(metrics.StatusSuccess, "")
		logger.Info().
			Int64("model_version", stats.ModelVersion).
			Int("users", stats.UsersRecommended).
			Int("rows_written", stats.RecommendationsWritten).
			Dur("duration", stats.Duration()).
			Msg("pipeline run complete")
	}

	if p.deps.RunLog != nil {
		if saveErr := p.deps.RunLog.Save(context.WithoutCancel(ctx), stats); saveErr != nil {
			logger.Warn().Err(saveErr).Msg("failed to save run log")
		}
	}

	return stats, err
}

// Running reports whether a run is executing.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

func (p *Pipeline) run(ctx context.Context, stats *RunStats, logger zerolog.Logger) error {
	stage := func(s recommend.Stage, fn func() error) error {
		start := time.Now()
		err := fn()
		elapsed := time.Since(start)
		stats.StageMillis[string(s)] = elapsed.Milliseconds()
		metrics.RecordStage(string(s), elapsed)
		return recommend.NewStageError(s, err)
	}

	var ds *loader.Dataset
	if err := stage(recommend.StageLoad, func() (err error) {
		ds, err = p.deps.Source.Load(ctx)
		if err != nil {
			return err
		}
		stats.RowsLoaded = int64(len(ds.Ratings))
		stats.RowsSkipped = ds.SkippedTotal()
		return nil
	}); err != nil {
		return err
	}

	var cleaned *recommend.CleanedRatingSet
	if err := stage(recommend.StageClean, func() error {
		var report recommend.CleanReport
		cleaned, report = recommend.Clean(ds.Ratings, ds.Books, p.deps.Cleaning)
		stats.Cleaning = report
		metrics.RecordCleaning(report.Dropped(), report.Output)
		logger.Info().
			Int("input", report.Input).
			Int("output", report.Output).
			Int("implicit_dropped", report.Implicit).
			Int("year_dropped", report.Year).
			Int("item_support_dropped", report.ItemSupport).
			Int("user_support_dropped", report.UserSupport).
			Int("join_dropped", report.Join).
			Msg("cleaning complete")
		if cleaned.Len() == 0 {
			return recommend.ErrEmptyTrainingSet
		}
		return ctx.Err()
	}); err != nil {
		return err
	}

	var (
		index   *recommend.IndexMapping
		triples []recommend.Triple
	)
	if err := stage(recommend.StageIndex, func() error {
		index, triples = recommend.BuildIndex(cleaned)
		logger.Debug().
			Int("users", index.NumUsers()).
			Int("items", index.NumItems()).
			Int("triples", len(triples)).
			Msg("index built")
		return ctx.Err()
	}); err != nil {
		return err
	}

	var model *recommend.TrainedModel
	if err := stage(recommend.StageTrain, func() (err error) {
		start := time.Now()
		model, err = p.deps.Engine.TrainIndexed(ctx, index, triples, cleaned.Titles)
		metrics.RecordTraining(stats.Algorithm, trainingStatus(err), time.Since(start))
		if err != nil {
			return err
		}
		stats.ModelVersion = model.Version
		stats.Users = model.Index.NumUsers()
		stats.Items = model.Index.NumItems()
		stats.TrainRMSE = model.TrainRMSE
		metrics.RecordModel(model.Version, model.TrainRMSE, stats.Users, stats.Items)
		return nil
	}); err != nil {
		return err
	}
	p.saveModel(ctx, model, logger)

	var results []recommend.RecommendationResult
	if err := stage(recommend.StageRecommend, func() (err error) {
		results, err = p.recommendAll(ctx, model, ds.Ratings)
		stats.UsersRecommended = len(results)
		return err
	}); err != nil {
		return err
	}

	if err := stage(recommend.StageSink, func() error {
		written, err := p.deps.Sink.ReplaceRecommendations(ctx, results)
		if err != nil {
			return err
		}
		stats.RecommendationsWritten = written
		metrics.RecommendationsWritten.Add(float64(written))
		return nil
	}); err != nil {
		return err
	}

	if p.deps.Publisher != nil {
		published, err := p.deps.Publisher.Publish(ctx, results)
		stats.Published = published
		if err != nil {
			logger.Warn().Err(err).Int("published", published).Msg("publishing recommendations failed")
		}
	}
	return nil
}

// recommendAll ranks the model's catalog for every user the model was
// trained on. rows supplies the already-rated sets and may include implicit
// and filtered-out ratings. Results are in the model's user index order.
func (p *Pipeline) recommendAll(ctx context.Context, model *recommend.TrainedModel, rows []recommend.RawRating) ([]recommend.RecommendationResult, error) {
	users := model.Index.Users
	rated := make(map[int]map[string]struct{}, len(users))
	for _, u := range users {
		rated[u] = make(map[string]struct{})
	}
	for _, r := range rows {
		if set, ok := rated[r.UserID]; ok {
			set[r.ISBN] = struct{}{}
		}
	}

	results := make([]recommend.RecommendationResult, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.deps.Workers)
	for start := 0; start < len(users); start += recommendChunk {
		end := min(start+recommendChunk, len(users))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				results[i] = recommend.Recommend(model, users[i], model.Index.Items, rated[users[i]], p.deps.TopN)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) saveModel(ctx context.Context, model *recommend.TrainedModel, logger zerolog.Logger) {
	if p.deps.Models == nil {
		return
	}
	meta, err := p.deps.Models.Save(ctx, model)
	if err != nil {
		logger.Warn().Err(err).Int64("version", model.Version).Msg("failed to save model snapshot")
		return
	}
	logger.Debug().
		Str("checksum", meta.Checksum).
		Int64("size_bytes", meta.SizeBytes).
		Msg("saved model snapshot")

	if removed, err := p.deps.Models.Prune(ctx, model.Algorithm, p.deps.KeepModels); err != nil {
		logger.Warn().Err(err).Msg("failed to prune model snapshots")
	} else if removed > 0 {
		logger.Debug().Int("removed", removed).Msg("pruned model snapshots")
	}
}

func trainingStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, recommend.ErrTrainingTimeout):
		return metrics.StatusTimeout
	case errors.Is(err, recommend.ErrEmptyTrainingSet):
		return metrics.StatusEmpty
	default:
		return metrics.StatusFailure
	}
}
