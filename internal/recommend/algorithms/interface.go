// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// Algorithm names accepted by NewTrainer.
const (
	NameNMF      = "nmf"
	NameSVD      = "svd"
	NameBaseline = "baseline"
)

// Names lists every available trainer.
var Names = []string{NameNMF, NameSVD, NameBaseline}

// Params are the shared trainer knobs coming from configuration. Each
// trainer reads the fields it understands.
type Params struct {
	Factors        int
	Iterations     int
	LearningRate   float64
	Regularization float64
	UseBiases      bool
	Seed           int64
	Workers        int
	EarlyStop      EarlyStopping
}

// EarlyStopping controls validation-plateau stopping.
type EarlyStopping struct {
	Enabled            bool
	ValidationFraction float64
	Patience           int
}

// NewTrainer returns the trainer registered under name.
func NewTrainer(name string, p Params) (recommend.Trainer, error) {
	switch name {
	case NameNMF:
		cfg := DefaultNMFConfig()
		cfg.apply(p)
		return NewNMF(cfg), nil
	case NameSVD:
		cfg := DefaultSVDConfig()
		cfg.apply(p)
		return NewSVD(cfg), nil
	case NameBaseline:
		cfg := DefaultBaselineConfig()
		if p.Iterations > 0 && p.Iterations < cfg.NumEpochs {
			cfg.NumEpochs = p.Iterations
		}
		return NewBaseline(cfg), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", name)
	}
}

// BaseAlgorithm provides the identifier shared by all trainers.
type BaseAlgorithm struct {
	name string
}

// NewBaseAlgorithm creates a new base algorithm with the given name.
func NewBaseAlgorithm(name string) BaseAlgorithm {
	return BaseAlgorithm{name: name}
}

// Name returns the algorithm identifier.
func (b BaseAlgorithm) Name() string {
	return b.name
}

// ContextCancelled checks if the context has been canceled.
func ContextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// parallelRange splits [0, n) into contiguous chunks, one per worker, and
// waits for fn to finish on all of them. Chunks never overlap, so fn may
// write rows of its own chunk without locking.
func parallelRange(n, workers int, fn func(start, end int)) {
	if workers <= 1 || n < 2*workers {
		fn(0, n)
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// newMatrix allocates rows x cols filled by init.
func newMatrix(rows, cols int, init func() float64) [][]float64 {
	m := make([][]float64, rows)
	for r := range m {
		m[r] = make([]float64, cols)
		for c := range m[r] {
			m[r][c] = init()
		}
	}
	return m
}

func dot(a, b []float64) float64 {
	var s float64
	for k := range a {
		s += a[k] * b[k]
	}
	return s
}

// epochFitter trains for at most epochs passes over triples. onEpoch, when
// non-nil, is called after each pass with the 1-based epoch number and the
// current parameters; returning false stops training.
type epochFitter func(ctx context.Context, set *recommend.TrainingSet, triples []recommend.Triple,
	epochs int, onEpoch func(epoch int, f *recommend.Factors) bool) (*recommend.Factors, error)

// fitWithEarlyStop runs fit directly, or, when es is enabled, finds the best
// epoch count on a seeded holdout and refits on all triples.
func fitWithEarlyStop(ctx context.Context, set *recommend.TrainingSet, es EarlyStopping, seed int64,
	maxEpochs int, fit epochFitter) (*recommend.Factors, error) {
	if !es.Enabled {
		return fit(ctx, set, set.Triples, maxEpochs, nil)
	}

	train, holdout := splitHoldout(set.Triples, es.ValidationFraction, seed)
	if len(train) == 0 || len(holdout) == 0 {
		return fit(ctx, set, set.Triples, maxEpochs, nil)
	}

	patience := es.Patience
	if patience < 1 {
		patience = 1
	}
	best := math.Inf(1)
	bestEpoch := maxEpochs
	stale := 0

	_, err := fit(ctx, set, train, maxEpochs, func(epoch int, f *recommend.Factors) bool {
		rmse := tripleRMSE(f, holdout, set.Scale)
		if rmse < best-1e-9 {
			best = rmse
			bestEpoch = epoch
			stale = 0
			return true
		}
		stale++
		return stale < patience
	})
	if err != nil {
		return nil, err
	}

	return fit(ctx, set, set.Triples, bestEpoch, nil)
}

// splitHoldout moves a seeded fraction of triples into a holdout slice.
func splitHoldout(triples []recommend.Triple, fraction float64, seed int64) (train, holdout []recommend.Triple) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic holdout split
	n := int(float64(len(triples)) * fraction)
	if n <= 0 {
		return triples, nil
	}

	perm := rng.Perm(len(triples))
	held := make(map[int]struct{}, n)
	for _, idx := range perm[:n] {
		held[idx] = struct{}{}
	}

	train = make([]recommend.Triple, 0, len(triples)-n)
	holdout = make([]recommend.Triple, 0, n)
	for i, t := range triples {
		if _, ok := held[i]; ok {
			holdout = append(holdout, t)
			continue
		}
		train = append(train, t)
	}
	return train, holdout
}

// tripleRMSE computes clipped RMSE of f over triples.
func tripleRMSE(f *recommend.Factors, triples []recommend.Triple, scale recommend.RatingScale) float64 {
	if len(triples) == 0 {
		return 0
	}
	var sum float64
	for _, t := range triples {
		d := scale.Clip(f.Estimate(t.User, t.Item)) - t.Rating
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(triples)))
}

// diverged reports whether any parameter is no longer finite.
func diverged(f *recommend.Factors) bool {
	return !f.Finite()
}

// Ensure all trainers implement the interface.
var (
	_ recommend.Trainer = (*NMF)(nil)
	_ recommend.Trainer = (*SVD)(nil)
	_ recommend.Trainer = (*Baseline)(nil)
)
