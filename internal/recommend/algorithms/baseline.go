// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// BaselineConfig contains configuration for the bias-only trainer.
type BaselineConfig struct {
	NumEpochs int
	RegUser   float64
	RegItem   float64
	Workers   int
}

// DefaultBaselineConfig returns default baseline configuration.
func DefaultBaselineConfig() BaselineConfig {
	return BaselineConfig{
		NumEpochs: 10,
		RegUser:   15,
		RegItem:   10,
		Workers:   4,
	}
}

// Baseline predicts μ + b_u + b_i with no latent factors. Biases are fit by
// alternating least squares:
//
//	b_i = Σ_u (r_ui - μ - b_u) / (λi + n_i)
//	b_u = Σ_i (r_ui - μ - b_i) / (λu + n_u)
type Baseline struct {
	BaseAlgorithm
	config BaselineConfig
}

// NewBaseline creates a new baseline trainer with the given configuration.
func NewBaseline(cfg BaselineConfig) *Baseline {
	def := DefaultBaselineConfig()
	if cfg.NumEpochs <= 0 {
		cfg.NumEpochs = def.NumEpochs
	}
	if cfg.RegUser < 0 {
		cfg.RegUser = def.RegUser
	}
	if cfg.RegItem < 0 {
		cfg.RegItem = def.RegItem
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Baseline{
		BaseAlgorithm: NewBaseAlgorithm(NameBaseline),
		config:        cfg,
	}
}

// Fit trains user and item biases.
func (b *Baseline) Fit(ctx context.Context, set *recommend.TrainingSet) (*recommend.Factors, error) {
	if len(set.Triples) == 0 {
		return nil, recommend.ErrEmptyTrainingSet
	}

	type entry struct {
		other  int
		rating float64
	}
	byUser := make([][]entry, set.NumUsers)
	byItem := make([][]entry, set.NumItems)
	for _, t := range set.Triples {
		byUser[t.User] = append(byUser[t.User], entry{t.Item, t.Rating})
		byItem[t.Item] = append(byItem[t.Item], entry{t.User, t.Rating})
	}

	mu := set.GlobalMean
	f := &recommend.Factors{
		UseBiases:  true,
		GlobalMean: mu,
		UserBias:   make([]float64, set.NumUsers),
		ItemBias:   make([]float64, set.NumItems),
	}

	for epoch := 0; epoch < b.config.NumEpochs; epoch++ {
		if ContextCancelled(ctx) {
			return nil, ctx.Err()
		}

		parallelRange(set.NumItems, b.config.Workers, func(start, end int) {
			for i := start; i < end; i++ {
				var dev float64
				for _, e := range byItem[i] {
					dev += e.rating - mu - f.UserBias[e.other]
				}
				f.ItemBias[i] = dev / (b.config.RegItem + float64(len(byItem[i])))
			}
		})

		parallelRange(set.NumUsers, b.config.Workers, func(start, end int) {
			for u := start; u < end; u++ {
				var dev float64
				for _, e := range byUser[u] {
					dev += e.rating - mu - f.ItemBias[e.other]
				}
				f.UserBias[u] = dev / (b.config.RegUser + float64(len(byUser[u])))
			}
		})
	}

	return f, nil
}
