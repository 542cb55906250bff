// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"errors"
	"fmt"
	"testing"
)

func TestStageError(t *testing.T) {
	err := NewStageError(StageTrain, fmt.Errorf("fit: %w", ErrTrainingFailure))

	if !errors.Is(err, ErrTrainingFailure) {
		t.Error("errors.Is(ErrTrainingFailure) = false")
	}
	if got := StageOf(err); got != StageTrain {
		t.Errorf("StageOf() = %q, want train", got)
	}
	if got := err.Error(); got != "train stage failed: fit: training failure" {
		t.Errorf("Error() = %q", got)
	}

	// the innermost stage wins
	outer := NewStageError(StageSink, fmt.Errorf("wrapped: %w", err))
	if got := StageOf(outer); got != StageTrain {
		t.Errorf("StageOf(outer) = %q, want train", got)
	}

	if NewStageError(StageLoad, nil) != nil {
		t.Error("NewStageError(nil) != nil")
	}
	if StageOf(errors.New("plain")) != "" {
		t.Error("StageOf(plain) != \"\"")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"inverted years", func(c *Config) { c.Cleaning.MinYear = 2030 }, true},
		{"negative support", func(c *Config) { c.Cleaning.MinItemRatings = -1 }, true},
		{"flat scale", func(c *Config) { c.Training.Scale = RatingScale{Min: 5, Max: 5} }, true},
		{"zero top n", func(c *Config) { c.DefaultTopN = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
