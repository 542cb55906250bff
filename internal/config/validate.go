// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package config

import (
	"fmt"
	"unicode/utf8"
)

var (
	validSourceKinds = map[string]bool{"csv": true, "duckdb": true}
	validProfiles    = map[string]bool{"recommender": true, "seeding": true, "custom": true}
	validAlgorithms  = map[string]bool{"nmf": true, "svd": true, "baseline": true}
	validLogLevels   = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validLogFormats  = map[string]bool{"json": true, "console": true}
)

// Validate returns the first configuration violation found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateSource,
		c.validateCleaning,
		c.validateTraining,
		c.validateRecommend,
		c.validateEvaluate,
		c.validateStorage,
		c.validateRedis,
		c.validateServer,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSource() error {
	if !validSourceKinds[c.Source.Kind] {
		return fmt.Errorf("source.kind must be csv or duckdb, got %q", c.Source.Kind)
	}
	if utf8.RuneCountInString(c.Source.Delimiter) != 1 {
		return fmt.Errorf("source.delimiter must be a single character, got %q", c.Source.Delimiter)
	}
	if c.Source.Kind == "csv" && (c.Source.BooksPath == "" || c.Source.RatingsPath == "") {
		return fmt.Errorf("source.books_path and source.ratings_path are required for csv sources")
	}
	return nil
}

func (c *Config) validateCleaning() error {
	if !validProfiles[c.Cleaning.Profile] {
		return fmt.Errorf("cleaning.profile must be one of: recommender, seeding, custom")
	}
	if c.Cleaning.MinYear > c.Cleaning.MaxYear {
		return fmt.Errorf("cleaning.min_year (%d) must not exceed cleaning.max_year (%d)",
			c.Cleaning.MinYear, c.Cleaning.MaxYear)
	}
	if c.Cleaning.MinItemRatings < 0 || c.Cleaning.MinUserRatings < 0 {
		return fmt.Errorf("cleaning support thresholds must not be negative")
	}
	return nil
}

func (c *Config) validateTraining() error {
	t := c.Training
	switch {
	case !validAlgorithms[t.Algorithm]:
		return fmt.Errorf("training.algorithm must be one of: nmf, svd, baseline, got %q", t.Algorithm)
	case t.Factors <= 0:
		return fmt.Errorf("training.factors must be positive, got %d", t.Factors)
	case t.Iterations <= 0:
		return fmt.Errorf("training.iterations must be positive, got %d", t.Iterations)
	case t.LearningRate <= 0:
		return fmt.Errorf("training.learning_rate must be positive, got %f", t.LearningRate)
	case t.Regularization < 0:
		return fmt.Errorf("training.regularization must be non-negative, got %f", t.Regularization)
	case t.Timeout <= 0:
		return fmt.Errorf("training.timeout must be positive, got %v", t.Timeout)
	case t.MinRating >= t.MaxRating:
		return fmt.Errorf("training.min_rating (%v) must be below training.max_rating (%v)", t.MinRating, t.MaxRating)
	}
	if t.EarlyStop {
		if t.ValidationFraction <= 0 || t.ValidationFraction >= 0.5 {
			return fmt.Errorf("training.validation_fraction must be in (0, 0.5), got %f", t.ValidationFraction)
		}
		if t.Patience <= 0 {
			return fmt.Errorf("training.patience must be positive, got %d", t.Patience)
		}
	}
	return nil
}

func (c *Config) validateRecommend() error {
	if c.Recommend.TopN <= 0 {
		return fmt.Errorf("recommend.top_n must be positive, got %d", c.Recommend.TopN)
	}
	if c.Recommend.CacheSize < 0 {
		return fmt.Errorf("recommend.cache_size must not be negative, got %d", c.Recommend.CacheSize)
	}
	return nil
}

func (c *Config) validateEvaluate() error {
	if c.Evaluate.Folds < 2 {
		return fmt.Errorf("evaluate.folds must be at least 2, got %d", c.Evaluate.Folds)
	}
	for _, name := range c.Evaluate.Algorithms {
		if !validAlgorithms[name] {
			return fmt.Errorf("evaluate.algorithms contains unknown algorithm %q", name)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.ModelStore.Path == "" {
		return fmt.Errorf("model_store.path is required")
	}
	if c.ModelStore.KeepVersions < 1 {
		return fmt.Errorf("model_store.keep_versions must be at least 1, got %d", c.ModelStore.KeepVersions)
	}
	if !c.RunLog.InMemory && c.RunLog.Path == "" {
		return fmt.Errorf("run_log.path is required unless run_log.in_memory is set")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if !c.Redis.Enabled {
		return nil
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Redis.WritesPerSecond <= 0 {
		return fmt.Errorf("redis.writes_per_second must be positive, got %d", c.Redis.WritesPerSecond)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitRequests <= 0 || c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server rate limit requests and window must be positive")
	}
	if c.Server.TrainInterval <= 0 {
		return fmt.Errorf("server.train_interval must be positive, got %v", c.Server.TrainInterval)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
