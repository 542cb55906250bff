// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// SVDConfig contains configuration for the SVD trainer.
type SVDConfig struct {
	NumFactors     int
	NumEpochs      int
	LearningRate   float64
	Regularization float64

	// InitStdDev is the standard deviation of the normal factor init.
	InitStdDev float64

	Seed      int64
	EarlyStop EarlyStopping
}

// DefaultSVDConfig returns default SVD configuration.
func DefaultSVDConfig() SVDConfig {
	return SVDConfig{
		NumFactors:     100,
		NumEpochs:      20,
		LearningRate:   0.005,
		Regularization: 0.02,
		InitStdDev:     0.1,
		Seed:           42,
	}
}

func (c *SVDConfig) apply(p Params) {
	if p.Factors > 0 {
		c.NumFactors = p.Factors
	}
	if p.Iterations > 0 {
		c.NumEpochs = p.Iterations
	}
	if p.LearningRate > 0 {
		c.LearningRate = p.LearningRate
	}
	if p.Regularization > 0 {
		c.Regularization = p.Regularization
	}
	c.Seed = p.Seed
	c.EarlyStop = p.EarlyStop
}

// SVD implements biased matrix factorization (Funk SVD):
//
//	est(u, i) = μ + b_u + b_i + p_u · q_i
//
// fit by stochastic gradient descent over the triples in input order.
// Factors may be negative; it is evaluated against NMF, not used for
// production unless configured.
type SVD struct {
	BaseAlgorithm
	config SVDConfig
}

// NewSVD creates a new SVD trainer with the given configuration.
func NewSVD(cfg SVDConfig) *SVD {
	def := DefaultSVDConfig()
	if cfg.NumFactors <= 0 {
		cfg.NumFactors = def.NumFactors
	}
	if cfg.NumEpochs <= 0 {
		cfg.NumEpochs = def.NumEpochs
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.Regularization < 0 {
		cfg.Regularization = def.Regularization
	}
	if cfg.InitStdDev <= 0 {
		cfg.InitStdDev = def.InitStdDev
	}

	return &SVD{
		BaseAlgorithm: NewBaseAlgorithm(NameSVD),
		config:        cfg,
	}
}

// Fit trains a new factor set.
func (s *SVD) Fit(ctx context.Context, set *recommend.TrainingSet) (*recommend.Factors, error) {
	if len(set.Triples) == 0 {
		return nil, recommend.ErrEmptyTrainingSet
	}
	return fitWithEarlyStop(ctx, set, s.config.EarlyStop, s.config.Seed, s.config.NumEpochs, s.fitEpochs)
}

func (s *SVD) fitEpochs(ctx context.Context, set *recommend.TrainingSet, triples []recommend.Triple,
	epochs int, onEpoch func(int, *recommend.Factors) bool) (*recommend.Factors, error) {
	cfg := s.config
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // seeded for reproducible factors
	normal := func() float64 { return rng.NormFloat64() * cfg.InitStdDev }

	f := &recommend.Factors{
		UseBiases:  true,
		GlobalMean: set.GlobalMean,
		UserBias:   make([]float64, set.NumUsers),
		ItemBias:   make([]float64, set.NumItems),
		U:          newMatrix(set.NumUsers, cfg.NumFactors, normal),
		V:          newMatrix(set.NumItems, cfg.NumFactors, normal),
	}

	lr, reg := cfg.LearningRate, cfg.Regularization
	for epoch := 1; epoch <= epochs; epoch++ {
		if ContextCancelled(ctx) {
			return nil, ctx.Err()
		}

		for _, t := range triples {
			pu, qi := f.U[t.User], f.V[t.Item]
			err := t.Rating - (f.GlobalMean + f.UserBias[t.User] + f.ItemBias[t.Item] + dot(pu, qi))

			f.UserBias[t.User] += lr * (err - reg*f.UserBias[t.User])
			f.ItemBias[t.Item] += lr * (err - reg*f.ItemBias[t.Item])
			for j := range pu {
				puj, qij := pu[j], qi[j]
				pu[j] += lr * (err*qij - reg*puj)
				qi[j] += lr * (err*puj - reg*qij)
			}
		}

		if diverged(f) {
			return nil, fmt.Errorf("%w: svd diverged at epoch %d", recommend.ErrTrainingFailure, epoch)
		}
		if onEpoch != nil && !onEpoch(epoch, f) {
			break
		}
	}

	return f, nil
}
