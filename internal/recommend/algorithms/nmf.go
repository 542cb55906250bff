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

// NMFConfig contains configuration for the NMF trainer.
type NMFConfig struct {
	// NumFactors is the dimension of the latent factor vectors.
	NumFactors int

	// NumEpochs is the fixed iteration budget, or the upper bound when
	// early stopping is enabled.
	NumEpochs int

	// RegUser and RegItem are the L2 penalties on user and item factors.
	RegUser float64
	RegItem float64

	// UseBiases adds global, user and item bias terms fit by SGD.
	UseBiases bool
	RegBias   float64
	LRBias    float64

	// InitLow and InitHigh bound the uniform factor initialization.
	// Both must be non-negative.
	InitLow  float64
	InitHigh float64

	Seed       int64
	NumWorkers int
	EarlyStop  EarlyStopping
}

// DefaultNMFConfig returns default NMF configuration.
func DefaultNMFConfig() NMFConfig {
	return NMFConfig{
		NumFactors: 15,
		NumEpochs:  50,
		RegUser:    0.06,
		RegItem:    0.06,
		RegBias:    0.02,
		LRBias:     0.005,
		InitLow:    0,
		InitHigh:   1,
		Seed:       42,
		NumWorkers: 4,
	}
}

func (c *NMFConfig) apply(p Params) {
	if p.Factors > 0 {
		c.NumFactors = p.Factors
	}
	if p.Iterations > 0 {
		c.NumEpochs = p.Iterations
	}
	if p.Regularization > 0 {
		c.RegUser = p.Regularization
		c.RegItem = p.Regularization
	}
	if p.LearningRate > 0 {
		c.LRBias = p.LearningRate
	}
	if p.Workers > 0 {
		c.NumWorkers = p.Workers
	}
	c.UseBiases = p.UseBiases
	c.Seed = p.Seed
	c.EarlyStop = p.EarlyStop
}

// NMF implements non-negative matrix factorization for explicit ratings.
//
// The rating matrix R is approximated by U·Vᵗ with U, V >= 0, minimizing
//
//	sum_{(u,i) observed} (r_ui - est_ui)^2 + λu·||U||² + λi·||V||²
//
// with the regularized multiplicative updates of Luo et al. (2014):
//
//	U[u][f] *= Σ_i V[i][f]·r_ui / (Σ_i V[i][f]·est_ui + n_u·λu·U[u][f])
//	V[i][f] *= Σ_u U[u][f]·r_ui / (Σ_u U[u][f]·est_ui + n_i·λi·V[i][f])
//
// Each epoch accumulates numerators and denominators in one pass over the
// triples, then updates user rows and item rows in parallel chunks.
type NMF struct {
	BaseAlgorithm
	config NMFConfig
}

// NewNMF creates a new NMF trainer with the given configuration.
func NewNMF(cfg NMFConfig) *NMF {
	def := DefaultNMFConfig()
	if cfg.NumFactors <= 0 {
		cfg.NumFactors = def.NumFactors
	}
	if cfg.NumEpochs <= 0 {
		cfg.NumEpochs = def.NumEpochs
	}
	if cfg.RegUser < 0 {
		cfg.RegUser = def.RegUser
	}
	if cfg.RegItem < 0 {
		cfg.RegItem = def.RegItem
	}
	if cfg.InitLow < 0 {
		cfg.InitLow = 0
	}
	if cfg.InitHigh <= cfg.InitLow {
		cfg.InitHigh = cfg.InitLow + 1
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = def.NumWorkers
	}

	return &NMF{
		BaseAlgorithm: NewBaseAlgorithm(NameNMF),
		config:        cfg,
	}
}

// Config returns the trainer configuration.
func (n *NMF) Config() NMFConfig {
	return n.config
}

// Fit trains a new factor set.
func (n *NMF) Fit(ctx context.Context, set *recommend.TrainingSet) (*recommend.Factors, error) {
	if len(set.Triples) == 0 {
		return nil, recommend.ErrEmptyTrainingSet
	}
	return fitWithEarlyStop(ctx, set, n.config.EarlyStop, n.config.Seed, n.config.NumEpochs, n.fitEpochs)
}

//nolint:gocyclo // the update rule is clearer kept in one place
func (n *NMF) fitEpochs(ctx context.Context, set *recommend.TrainingSet, triples []recommend.Triple,
	epochs int, onEpoch func(int, *recommend.Factors) bool) (*recommend.Factors, error) {
	cfg := n.config
	k := cfg.NumFactors
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // seeded for reproducible factors
	uniform := func() float64 { return cfg.InitLow + rng.Float64()*(cfg.InitHigh-cfg.InitLow) }

	f := &recommend.Factors{
		UseBiases:  cfg.UseBiases,
		GlobalMean: set.GlobalMean,
		U:          newMatrix(set.NumUsers, k, uniform),
		V:          newMatrix(set.NumItems, k, uniform),
	}
	if cfg.UseBiases {
		f.UserBias = make([]float64, set.NumUsers)
		f.ItemBias = make([]float64, set.NumItems)
	}

	userCount := make([]float64, set.NumUsers)
	itemCount := make([]float64, set.NumItems)
	for _, t := range triples {
		userCount[t.User]++
		itemCount[t.Item]++
	}

	zero := func() float64 { return 0 }
	userNum := newMatrix(set.NumUsers, k, zero)
	userDen := newMatrix(set.NumUsers, k, zero)
	itemNum := newMatrix(set.NumItems, k, zero)
	itemDen := newMatrix(set.NumItems, k, zero)

	for epoch := 1; epoch <= epochs; epoch++ {
		if ContextCancelled(ctx) {
			return nil, ctx.Err()
		}

		resetMatrix(userNum)
		resetMatrix(userDen)
		resetMatrix(itemNum)
		resetMatrix(itemDen)

		for _, t := range triples {
			pu, qi := f.U[t.User], f.V[t.Item]
			est := dot(pu, qi)
			if cfg.UseBiases {
				est += f.GlobalMean + f.UserBias[t.User] + f.ItemBias[t.Item]
				err := t.Rating - est
				f.UserBias[t.User] += cfg.LRBias * (err - cfg.RegBias*f.UserBias[t.User])
				f.ItemBias[t.Item] += cfg.LRBias * (err - cfg.RegBias*f.ItemBias[t.Item])
			}

			un, ud := userNum[t.User], userDen[t.User]
			in, id := itemNum[t.Item], itemDen[t.Item]
			for j := 0; j < k; j++ {
				un[j] += qi[j] * t.Rating
				ud[j] += qi[j] * est
				in[j] += pu[j] * t.Rating
				id[j] += pu[j] * est
			}
		}

		multiplicativeUpdate(f.U, userNum, userDen, userCount, cfg.RegUser, cfg.NumWorkers)
		multiplicativeUpdate(f.V, itemNum, itemDen, itemCount, cfg.RegItem, cfg.NumWorkers)

		if diverged(f) {
			return nil, fmt.Errorf("%w: nmf diverged at epoch %d", recommend.ErrTrainingFailure, epoch)
		}
		if onEpoch != nil && !onEpoch(epoch, f) {
			break
		}
	}

	return f, nil
}

// multiplicativeUpdate applies one regularized multiplicative step to every
// row of m. Rows whose denominator is not positive are left unchanged, which
// keeps every entry non-negative.
func multiplicativeUpdate(m, num, den [][]float64, counts []float64, reg float64, workers int) {
	parallelRange(len(m), workers, func(start, end int) {
		for r := start; r < end; r++ {
			row := m[r]
			for j := range row {
				d := den[r][j] + counts[r]*reg*row[j]
				if d > 0 {
					row[j] *= num[r][j] / d
				}
			}
		}
	})
}

func resetMatrix(m [][]float64) {
	for _, row := range m {
		for j := range row {
			row[j] = 0
		}
	}
}
