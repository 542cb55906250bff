// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"fmt"
	"time"
)

// Cleaning profile names.
const (
	ProfileRecommender = "recommender"
	ProfileSeeding     = "seeding"
	ProfileCustom      = "custom"
)

// Config contains all configuration for the recommendation core.
type Config struct {
	// Cleaning contains the filter thresholds applied by Clean.
	Cleaning CleaningConfig `json:"cleaning"`

	// Training contains fit-level parameters shared by every trainer.
	Training TrainingConfig `json:"training"`

	// DefaultTopN is used when a request does not specify a list length.
	DefaultTopN int `json:"default_top_n"`

	// Seed is the random seed for fold assignment and holdout splits.
	Seed int64 `json:"seed"`
}

// CleaningConfig holds the cleaning thresholds.
type CleaningConfig struct {
	// Profile names the threshold set the values came from.
	Profile string `json:"profile"`

	// DropImplicit removes rating == 0 rows.
	DropImplicit bool `json:"drop_implicit"`

	// MinYear and MaxYear bound year_of_publication, inclusive.
	MinYear int `json:"min_year"`
	MaxYear int `json:"max_year"`

	// MinItemRatings keeps ISBNs with strictly more ratings than this.
	MinItemRatings int `json:"min_item_ratings"`

	// MinUserRatings keeps users with strictly more ratings than this.
	// Applied only when FilterUsers is set.
	MinUserRatings int  `json:"min_user_ratings"`
	FilterUsers    bool `json:"filter_users"`
}

// YearInRange reports whether a publication year passes the year filter.
// Year 0 marks an unparseable source value and never passes.
func (c CleaningConfig) YearInRange(year int) bool {
	return year != 0 && year >= c.MinYear && year <= c.MaxYear
}

// TrainingConfig contains fit-level parameters.
type TrainingConfig struct {
	// Scale bounds every prediction.
	Scale RatingScale `json:"scale"`

	// Timeout aborts a fit with ErrTrainingTimeout. Zero disables it.
	Timeout time.Duration `json:"timeout"`
}

// CleaningProfile returns the named threshold set. The custom profile
// returns the recommender values as a starting point.
func CleaningProfile(name string) (CleaningConfig, error) {
	switch name {
	case ProfileRecommender, ProfileCustom:
		return CleaningConfig{
			Profile:        name,
			DropImplicit:   true,
			MinYear:        1800,
			MaxYear:        2022,
			MinItemRatings: 5,
			MinUserRatings: 5,
			FilterUsers:    true,
		}, nil
	case ProfileSeeding:
		return CleaningConfig{
			Profile:        name,
			DropImplicit:   true,
			MinYear:        1800,
			MaxYear:        2018,
			MinItemRatings: 5,
			MinUserRatings: 5,
			FilterUsers:    false,
		}, nil
	default:
		return CleaningConfig{}, fmt.Errorf("unknown cleaning profile %q", name)
	}
}

// DefaultConfig returns a configuration with the recommender profile.
func DefaultConfig() *Config {
	cleaning, _ := CleaningProfile(ProfileRecommender) //nolint:errcheck // known profile
	return &Config{
		Cleaning: cleaning,
		Training: TrainingConfig{
			Scale:   DefaultRatingScale,
			Timeout: 30 * time.Minute,
		},
		DefaultTopN: 10,
		Seed:        42,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Cleaning.MinYear > c.Cleaning.MaxYear {
		return fmt.Errorf("cleaning.min_year must not exceed max_year, got %d > %d",
			c.Cleaning.MinYear, c.Cleaning.MaxYear)
	}
	if c.Cleaning.MinItemRatings < 0 {
		return fmt.Errorf("cleaning.min_item_ratings must be non-negative, got %d", c.Cleaning.MinItemRatings)
	}
	if c.Cleaning.MinUserRatings < 0 {
		return fmt.Errorf("cleaning.min_user_ratings must be non-negative, got %d", c.Cleaning.MinUserRatings)
	}
	if c.Training.Scale.Min >= c.Training.Scale.Max {
		return fmt.Errorf("training.scale.min must be below max, got [%v, %v]",
			c.Training.Scale.Min, c.Training.Scale.Max)
	}
	if c.Training.Timeout < 0 {
		return fmt.Errorf("training.timeout must be non-negative, got %v", c.Training.Timeout)
	}
	if c.DefaultTopN < 1 {
		return fmt.Errorf("default_top_n must be positive, got %d", c.DefaultTopN)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
