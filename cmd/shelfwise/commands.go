// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomtom215/shelfwise/internal/api"
	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/database"
	"github.com/tomtom215/shelfwise/internal/loader"
	"github.com/tomtom215/shelfwise/internal/logging"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/supervisor"
	"github.com/tomtom215/shelfwise/internal/supervisor/services"
)

// runBatch executes one pipeline pass.
func runBatch(ctx context.Context, cfg *config.Config) error {
	logger := logging.Component("pipeline")

	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	stats, err := c.pipeline.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Str("run_id", stats.RunID).
		Int64("model_version", stats.ModelVersion).
		Int("users", stats.UsersRecommended).
		Int("rows_written", stats.RecommendationsWritten).
		Float64("train_rmse", stats.TrainRMSE).
		Int("published", stats.Published).
		Dur("duration", stats.Duration()).
		Msg("Batch run complete")
	return nil
}

// serve runs the supervisor tree until SIGINT or SIGTERM.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Component("serve")

	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	c.restoreLatestModel(ctx, cfg.Training.Algorithm, logger)

	router := api.NewRouter(api.Dependencies{
		Engine:      c.engine,
		Store:       c.db,
		Runner:      c.pipeline,
		RunLog:      c.runLog,
		BaseContext: ctx,
		DefaultTopN: cfg.Recommend.TopN,
		CacheSize:   cfg.Recommend.CacheSize,
		CacheTTL:    cfg.Recommend.CacheTTL,
		Middleware: &api.MiddlewareConfig{
			CORSAllowedOrigins: cfg.Server.CORSOrigins,
			CORSMaxAge:         86400,
			RateLimitRequests:  cfg.Server.RateLimitRequests,
			RateLimitWindow:    cfg.Server.RateLimitWindow,
		},
	})

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddPipelineService(services.NewRecommendService(c.pipeline, services.RecommendServiceConfig{
		TrainOnStartup: cfg.Server.TrainOnStartup,
		TrainInterval:  cfg.Server.TrainInterval,
	}, logger))
	tree.AddAPIService(services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout, logger))

	logger.Info().Str("addr", addr).Msg("Supervisor tree starting")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree stopped: %w", err)
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		logger.Warn().Int("count", len(unstopped)).Msg("Services did not stop within the shutdown timeout")
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

// evaluate cross-validates the configured algorithms and writes a YAML
// report.
func evaluate(ctx context.Context, cfg *config.Config) error {
	logger := logging.Component("evaluate")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing database")
		}
	}()

	source, err := newSource(cfg, db, logger)
	if err != nil {
		return err
	}
	ds, err := source.Load(ctx)
	if err != nil {
		return recommend.NewStageError(recommend.StageLoad, err)
	}

	cleaning, err := cleaningConfig(cfg.Cleaning)
	if err != nil {
		return err
	}
	set, report := recommend.Clean(ds.Ratings, ds.Books, cleaning)
	logger.Info().
		Int("kept", report.Output).
		Interface("dropped", report.Dropped()).
		Msg("Cleaned ratings for evaluation")

	candidates := make([]recommend.Candidate, 0, len(cfg.Evaluate.Algorithms))
	for _, name := range cfg.Evaluate.Algorithms {
		trainer, err := newTrainer(name, cfg)
		if err != nil {
			return err
		}
		candidates = append(candidates, recommend.Candidate{Name: name, Trainer: trainer})
	}

	result, err := recommend.Evaluate(ctx, set, candidates, recommend.EvaluateOptions{
		Folds:       cfg.Evaluate.Folds,
		Seed:        cfg.Training.Seed,
		Parallelism: cfg.Evaluate.Parallelism,
		Scale:       recommend.RatingScale{Min: cfg.Training.MinRating, Max: cfg.Training.MaxRating},
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	for _, r := range result.Results {
		event := logger.Info().Str("algorithm", r.Name)
		if r.Skipped {
			event = logger.Warn().Str("algorithm", r.Name).Str("note", r.Note)
		}
		event.Float64("rmse", r.RMSE).Dur("fit_time", r.FitTime).Msg("Evaluation result")
	}

	if err := writeReport(cfg.Evaluate.ReportPath, result); err != nil {
		return err
	}
	logger.Info().Str("best", result.Best).Str("path", cfg.Evaluate.ReportPath).Msg("Evaluation report written")
	return nil
}

// writeReport writes report as YAML via a temp file and rename.
func writeReport(path string, report *recommend.EvaluationReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// seed loads the CSV files and replaces the rating store contents.
func seed(ctx context.Context, cfg *config.Config) error {
	logger := logging.Component("seed")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing database")
		}
	}()

	ds, err := newCSVSource(cfg, logger).Load(ctx)
	if err != nil {
		return recommend.NewStageError(recommend.StageLoad, err)
	}

	stats, report, err := seedStore(ctx, db, ds)
	if err != nil {
		return err
	}

	logger.Info().
		Int("books", stats.Books).
		Int("ratings", stats.Ratings).
		Int("catalog_books", report.BooksKept).
		Interface("cleaning_dropped", report.Dropped()).
		Msg("Rating store seeded")
	return nil
}

// seedStore writes ds into the rating store. Every loaded rating row is
// kept, implicit zeros included, so the store's already-rated sets match
// what the batch pipeline excludes. The seeding profile only decides which
// books make up the stored catalog.
func seedStore(ctx context.Context, db *database.DB, ds *loader.Dataset) (database.SeedStats, recommend.CleanReport, error) {
	cleaning, err := recommend.CleaningProfile(recommend.ProfileSeeding)
	if err != nil {
		return database.SeedStats{}, recommend.CleanReport{}, err
	}
	set, report := recommend.Clean(ds.Ratings, ds.Books, cleaning)
	if set.Len() == 0 {
		return database.SeedStats{}, report, recommend.NewStageError(recommend.StageClean, recommend.ErrEmptyTrainingSet)
	}

	stats, err := db.SeedCatalog(ctx, seededBooks(ds.Books, set, cleaning), ds.Ratings)
	if err != nil {
		return stats, report, recommend.NewStageError(recommend.StageSink, err)
	}
	return stats, report, nil
}

// seededBooks keeps the year-valid rows of books that still have ratings
// after cleaning. An isbn whose first row has a bad year is represented by
// its first valid duplicate.
func seededBooks(books []recommend.RawBook, set *recommend.CleanedRatingSet, cleaning recommend.CleaningConfig) []recommend.RawBook {
	out := make([]recommend.RawBook, 0, len(set.Titles))
	for _, b := range books {
		if _, ok := set.Titles[b.ISBN]; ok && cleaning.YearInRange(b.Year) {
			out = append(out, b)
		}
	}
	return out
}
