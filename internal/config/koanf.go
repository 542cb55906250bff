// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shelfwise/config.yaml",
	"/etc/shelfwise/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults, loaded before file and env.
func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:        "csv",
			BooksPath:   "data/BX-Books.csv",
			UsersPath:   "data/BX-Users.csv",
			RatingsPath: "data/BX-Book-Ratings.csv",
			Delimiter:   ";",
		},
		Cleaning: CleaningConfig{
			Profile:        "recommender",
			MinYear:        1800,
			MaxYear:        2022,
			MinItemRatings: 5,
			MinUserRatings: 5,
			FilterUsers:    true,
			DropImplicit:   true,
		},
		Training: TrainingConfig{
			Algorithm:          "nmf",
			Factors:            15,
			Iterations:         50,
			LearningRate:       0.005,
			Regularization:     0.06,
			UseBiases:          false,
			Seed:               42,
			Timeout:            30 * time.Minute,
			EarlyStop:          false,
			ValidationFraction: 0.1,
			Patience:           3,
			MinRating:          1,
			MaxRating:          10,
			Workers:            4,
		},
		Recommend: RecommendConfig{
			TopN:      10,
			CacheTTL:  5 * time.Minute,
			CacheSize: 10000,
		},
		Evaluate: EvaluateConfig{
			Folds:       5,
			Algorithms:  []string{"nmf", "svd", "baseline"},
			ReportPath:  "data/evaluation.yaml",
			Parallelism: 2,
		},
		Database: DatabaseConfig{
			Path:      "data/shelfwise.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		ModelStore: ModelStoreConfig{
			Path:         "data/models",
			KeepVersions: 3,
		},
		RunLog: RunLogConfig{
			Path: "data/runlog",
		},
		Redis: RedisConfig{
			Enabled:         false,
			Addr:            "localhost:6379",
			KeyPrefix:       "shelfwise",
			TTL:             24 * time.Hour,
			WritesPerSecond: 500,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			CORSOrigins:       []string{},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			TrainInterval:     24 * time.Hour,
			TrainOnStartup:    true,
			ShutdownTimeout:   10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf layers defaults, the optional YAML file and environment
// variables, then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns "" when no file exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"evaluate.algorithms",
	"server.cors_origins",
}

// processSliceFields splits comma-separated strings for slice fields.
// Values that came from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Source
	"source_kind":   "source.kind",
	"books_path":    "source.books_path",
	"users_path":    "source.users_path",
	"ratings_path":  "source.ratings_path",
	"csv_delimiter": "source.delimiter",

	// Cleaning
	"cleaning_profile":          "cleaning.profile",
	"cleaning_min_year":         "cleaning.min_year",
	"cleaning_max_year":         "cleaning.max_year",
	"cleaning_min_item_ratings": "cleaning.min_item_ratings",
	"cleaning_min_user_ratings": "cleaning.min_user_ratings",
	"cleaning_filter_users":     "cleaning.filter_users",

	// Training
	"training_algorithm":      "training.algorithm",
	"training_factors":        "training.factors",
	"training_iterations":     "training.iterations",
	"training_learning_rate":  "training.learning_rate",
	"training_regularization": "training.regularization",
	"training_use_biases":     "training.use_biases",
	"training_seed":           "training.seed",
	"training_timeout":        "training.timeout",
	"training_early_stop":     "training.early_stop",
	"training_patience":       "training.patience",
	"training_workers":        "training.workers",

	// Recommend
	"recommend_top_n":      "recommend.top_n",
	"recommend_cache_ttl":  "recommend.cache_ttl",
	"recommend_cache_size": "recommend.cache_size",

	// Evaluate
	"evaluate_folds":       "evaluate.folds",
	"evaluate_algorithms":  "evaluate.algorithms",
	"evaluate_report_path": "evaluate.report_path",

	// Storage
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",
	"model_store_path":  "model_store.path",
	"model_keep":        "model_store.keep_versions",
	"run_log_path":      "run_log.path",

	// Redis
	"redis_enabled":    "redis.enabled",
	"redis_addr":       "redis.addr",
	"redis_password":   "redis.password",
	"redis_db":         "redis.db",
	"redis_key_prefix": "redis.key_prefix",
	"redis_ttl":        "redis.ttl",

	// Server
	"http_host":           "server.host",
	"http_port":           "server.port",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"train_interval":      "server.train_interval",
	"train_on_startup":    "server.train_on_startup",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unmapped variables return "" and are skipped.
//
// Examples:
//   - DUCKDB_PATH -> database.path
//   - TRAINING_FACTORS -> training.factors
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
