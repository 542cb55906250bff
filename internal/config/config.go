// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package config loads Shelfwise configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("invalid configuration")
//	}
package config

import "time"

// Config is the root configuration.
type Config struct {
	Source     SourceConfig     `koanf:"source"`
	Cleaning   CleaningConfig   `koanf:"cleaning"`
	Training   TrainingConfig   `koanf:"training"`
	Recommend  RecommendConfig  `koanf:"recommend"`
	Evaluate   EvaluateConfig   `koanf:"evaluate"`
	Database   DatabaseConfig   `koanf:"database"`
	ModelStore ModelStoreConfig `koanf:"model_store"`
	RunLog     RunLogConfig     `koanf:"run_log"`
	Redis      RedisConfig      `koanf:"redis"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// SourceConfig selects where raw rows come from.
type SourceConfig struct {
	// Kind is "csv" (semicolon files) or "duckdb" (persisted rating store).
	// Default: csv
	Kind string `koanf:"kind"`

	BooksPath   string `koanf:"books_path"`
	UsersPath   string `koanf:"users_path"`
	RatingsPath string `koanf:"ratings_path"`

	// Delimiter is the single field separator character.
	// Default: ;
	Delimiter string `koanf:"delimiter"`
}

// CleaningConfig holds the cleaning thresholds.
//
// Profile selects a named threshold set:
//   - recommender: years 1800..2022, support filter on books and users
//   - seeding: years 1800..2018, support filter on books only
//   - custom: the explicit values below
type CleaningConfig struct {
	Profile        string `koanf:"profile"`
	MinYear        int    `koanf:"min_year"`
	MaxYear        int    `koanf:"max_year"`
	MinItemRatings int    `koanf:"min_item_ratings"`
	MinUserRatings int    `koanf:"min_user_ratings"`
	FilterUsers    bool   `koanf:"filter_users"`
	DropImplicit   bool   `koanf:"drop_implicit"`
}

// TrainingConfig holds trainer parameters.
type TrainingConfig struct {
	// Algorithm is the production trainer: nmf, svd or baseline.
	// Default: nmf
	Algorithm string `koanf:"algorithm"`

	Factors        int     `koanf:"factors"`
	Iterations     int     `koanf:"iterations"`
	LearningRate   float64 `koanf:"learning_rate"`
	Regularization float64 `koanf:"regularization"`
	UseBiases      bool    `koanf:"use_biases"`
	Seed           int64   `koanf:"seed"`

	// Timeout aborts a fit that runs longer; the serving model is kept.
	// Default: 30m
	Timeout time.Duration `koanf:"timeout"`

	EarlyStop          bool    `koanf:"early_stop"`
	ValidationFraction float64 `koanf:"validation_fraction"`
	Patience           int     `koanf:"patience"`

	MinRating float64 `koanf:"min_rating"`
	MaxRating float64 `koanf:"max_rating"`

	Workers int `koanf:"workers"`
}

// RecommendConfig holds generator and read-cache settings.
type RecommendConfig struct {
	// TopN is the default list length.
	// Default: 10
	TopN int `koanf:"top_n"`

	CacheTTL  time.Duration `koanf:"cache_ttl"`
	CacheSize int           `koanf:"cache_size"`
}

// EvaluateConfig holds cross-validation settings.
type EvaluateConfig struct {
	Folds      int      `koanf:"folds"`
	Algorithms []string `koanf:"algorithms"`
	ReportPath string   `koanf:"report_path"`

	// Parallelism bounds concurrently training folds.
	// Default: 2
	Parallelism int `koanf:"parallelism"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// ModelStoreConfig holds model snapshot settings.
type ModelStoreConfig struct {
	Path         string `koanf:"path"`
	KeepVersions int    `koanf:"keep_versions"`
}

// RunLogConfig holds the badger run ledger settings.
type RunLogConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// RedisConfig holds the optional recommendation publisher settings.
type RedisConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Addr      string        `koanf:"addr"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	KeyPrefix string        `koanf:"key_prefix"`
	TTL       time.Duration `koanf:"ttl"`

	// WritesPerSecond caps pipelined user writes.
	// Default: 500
	WritesPerSecond int `koanf:"writes_per_second"`
}

// ServerConfig holds serve-mode settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	TrainInterval     time.Duration `koanf:"train_interval"`
	TrainOnStartup    bool          `koanf:"train_on_startup"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format: json or console.
	// Default: json
	Format string `koanf:"format"`

	Caller bool `koanf:"caller"`
}

// Load reads configuration with precedence ENV > file > defaults.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
