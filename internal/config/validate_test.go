// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown source kind",
			mutate:  func(c *Config) { c.Source.Kind = "postgres" },
			wantErr: "source.kind",
		},
		{
			name:    "multi-character delimiter",
			mutate:  func(c *Config) { c.Source.Delimiter = ";;" },
			wantErr: "source.delimiter",
		},
		{
			name:   "duckdb source needs no csv paths",
			mutate: func(c *Config) { c.Source.Kind = "duckdb"; c.Source.BooksPath = "" },
		},
		{
			name:    "unknown cleaning profile",
			mutate:  func(c *Config) { c.Cleaning.Profile = "strict" },
			wantErr: "cleaning.profile",
		},
		{
			name:    "inverted year range",
			mutate:  func(c *Config) { c.Cleaning.MinYear = 2000; c.Cleaning.MaxYear = 1990 },
			wantErr: "cleaning.min_year",
		},
		{
			name:    "unknown algorithm",
			mutate:  func(c *Config) { c.Training.Algorithm = "als" },
			wantErr: "training.algorithm",
		},
		{
			name:    "zero factors",
			mutate:  func(c *Config) { c.Training.Factors = 0 },
			wantErr: "training.factors",
		},
		{
			name:    "inverted rating scale",
			mutate:  func(c *Config) { c.Training.MinRating = 10; c.Training.MaxRating = 1 },
			wantErr: "training.min_rating",
		},
		{
			name: "early stop without validation fraction",
			mutate: func(c *Config) {
				c.Training.EarlyStop = true
				c.Training.ValidationFraction = 0
			},
			wantErr: "training.validation_fraction",
		},
		{
			name:    "single fold",
			mutate:  func(c *Config) { c.Evaluate.Folds = 1 },
			wantErr: "evaluate.folds",
		},
		{
			name:    "unknown evaluation algorithm",
			mutate:  func(c *Config) { c.Evaluate.Algorithms = []string{"nmf", "ease"} },
			wantErr: "evaluate.algorithms",
		},
		{
			name:    "redis enabled without address",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" },
			wantErr: "redis.addr",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
