// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// TrainedModel is an immutable fitted model with its index and cold-start
// fallbacks. All methods are safe for concurrent use.
type TrainedModel struct {
	Version   int64
	Algorithm string
	TrainedAt time.Time

	Index   *IndexMapping
	Factors *Factors

	// Titles maps ISBN to book title for display. May be nil.
	Titles map[string]string

	// GlobalMean is the mean training rating; ItemMeans is indexed like
	// Index.Items.
	GlobalMean float64
	ItemMeans  []float64
	Scale      RatingScale

	NumRatings int
	TrainRMSE  float64
}

// Fit indexes the cleaned set, runs trainer and wraps the result. The
// returned model has Version 0; the Engine assigns versions on publish.
//
// Errors wrap ErrEmptyTrainingSet, ErrTrainingTimeout or ErrTrainingFailure.
func Fit(ctx context.Context, trainer Trainer, set *CleanedRatingSet, cfg TrainingConfig) (*TrainedModel, error) {
	if set.Len() == 0 {
		return nil, ErrEmptyTrainingSet
	}
	index, triples := BuildIndex(set)
	return FitIndexed(ctx, trainer, index, triples, set.Titles, cfg)
}

// FitIndexed is Fit on an already-built index. cfg.Timeout bounds the
// trainer call.
func FitIndexed(ctx context.Context, trainer Trainer, index *IndexMapping, triples []Triple, titles map[string]string, cfg TrainingConfig) (*TrainedModel, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	m, err := FitTriples(ctx, trainer, index, triples, cfg.Scale)
	if err != nil {
		return nil, err
	}
	m.Titles = titles
	return m, nil
}

// FitTriples trains on an already-built index. It is used directly by
// cross-validation, where folds share one index.
func FitTriples(ctx context.Context, trainer Trainer, index *IndexMapping, triples []Triple, scale RatingScale) (*TrainedModel, error) {
	if len(triples) == 0 {
		return nil, ErrEmptyTrainingSet
	}

	globalMean, itemMeans := ratingMeans(triples, index.NumItems())
	ts := &TrainingSet{
		Triples:    triples,
		NumUsers:   index.NumUsers(),
		NumItems:   index.NumItems(),
		GlobalMean: globalMean,
		Scale:      scale,
	}

	factors, err := trainer.Fit(ctx, ts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %w", ErrTrainingTimeout, trainer.Name(), err)
		}
		if errors.Is(err, ErrTrainingFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrTrainingFailure, trainer.Name(), err)
	}
	if factors == nil || !factors.Finite() {
		return nil, fmt.Errorf("%w: %s produced non-finite parameters", ErrTrainingFailure, trainer.Name())
	}

	m := &TrainedModel{
		Algorithm:  trainer.Name(),
		TrainedAt:  time.Now().UTC(),
		Index:      index,
		Factors:    factors,
		GlobalMean: globalMean,
		ItemMeans:  itemMeans,
		Scale:      scale,
		NumRatings: len(triples),
	}
	m.TrainRMSE = m.rmse(triples)
	return m, nil
}

// ratingMeans returns the global mean and per-item means. Items without
// ratings get the global mean.
func ratingMeans(triples []Triple, numItems int) (float64, []float64) {
	sums := make([]float64, numItems)
	counts := make([]int, numItems)
	var total float64
	for _, t := range triples {
		sums[t.Item] += t.Rating
		counts[t.Item]++
		total += t.Rating
	}
	global := total / float64(len(triples))
	for i := range sums {
		if counts[i] == 0 {
			sums[i] = global
			continue
		}
		sums[i] /= float64(counts[i])
	}
	return global, sums
}

// Predict returns the estimated rating for (userID, isbn), clipped to the
// rating scale. Unknown users fall back to the ISBN's mean rating and
// unknown ISBNs to the global mean. Calling Predict on a nil model panics
// with ErrModelNotTrained.
func (m *TrainedModel) Predict(userID int, isbn string) float64 {
	est, _ := m.estimate(userID, isbn)
	return est
}

// estimate also reports whether the value came from the factors.
func (m *TrainedModel) estimate(userID int, isbn string) (float64, bool) {
	if m == nil {
		panic(ErrModelNotTrained)
	}
	i, itemKnown := m.Index.ItemIndex(isbn)
	if !itemKnown {
		return m.Scale.Clip(m.GlobalMean), false
	}
	u, userKnown := m.Index.UserIndex(userID)
	if !userKnown {
		return m.Scale.Clip(m.ItemMeans[i]), false
	}
	return m.Scale.Clip(m.Factors.Estimate(u, i)), true
}

// KnowsUser reports whether userID was seen during training.
func (m *TrainedModel) KnowsUser(userID int) bool {
	_, ok := m.Index.UserIndex(userID)
	return ok
}

func (m *TrainedModel) rmse(triples []Triple) float64 {
	if len(triples) == 0 {
		return 0
	}
	var sum float64
	for _, t := range triples {
		d := m.Scale.Clip(m.Factors.Estimate(t.User, t.Item)) - t.Rating
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(triples)))
}

// ModelSnapshot is the serializable form of a TrainedModel.
type ModelSnapshot struct {
	Version    int64
	Algorithm  string
	TrainedAt  time.Time
	Users      []int
	Items      []string
	Titles     map[string]string
	Factors    Factors
	GlobalMean float64
	ItemMeans  []float64
	Scale      RatingScale
	NumRatings int
	TrainRMSE  float64
}

// Snapshot returns the serializable form of m.
func (m *TrainedModel) Snapshot() *ModelSnapshot {
	return &ModelSnapshot{
		Version:    m.Version,
		Algorithm:  m.Algorithm,
		TrainedAt:  m.TrainedAt,
		Users:      m.Index.Users,
		Items:      m.Index.Items,
		Titles:     m.Titles,
		Factors:    *m.Factors,
		GlobalMean: m.GlobalMean,
		ItemMeans:  m.ItemMeans,
		Scale:      m.Scale,
		NumRatings: m.NumRatings,
		TrainRMSE:  m.TrainRMSE,
	}
}

// Model rebuilds a TrainedModel from the snapshot.
func (s *ModelSnapshot) Model() (*TrainedModel, error) {
	if len(s.ItemMeans) != len(s.Items) {
		return nil, fmt.Errorf("snapshot has %d item means for %d items", len(s.ItemMeans), len(s.Items))
	}
	f := s.Factors
	if len(f.U) > 0 && len(f.U) != len(s.Users) {
		return nil, fmt.Errorf("snapshot has %d user factors for %d users", len(f.U), len(s.Users))
	}
	if len(f.V) > 0 && len(f.V) != len(s.Items) {
		return nil, fmt.Errorf("snapshot has %d item factors for %d items", len(f.V), len(s.Items))
	}
	if f.UseBiases && (len(f.UserBias) != len(s.Users) || len(f.ItemBias) != len(s.Items)) {
		return nil, fmt.Errorf("snapshot bias lengths do not match index")
	}
	return &TrainedModel{
		Version:    s.Version,
		Algorithm:  s.Algorithm,
		TrainedAt:  s.TrainedAt,
		Index:      NewIndexMapping(s.Users, s.Items),
		Titles:     s.Titles,
		Factors:    &f,
		GlobalMean: s.GlobalMean,
		ItemMeans:  s.ItemMeans,
		Scale:      s.Scale,
		NumRatings: s.NumRatings,
		TrainRMSE:  s.TrainRMSE,
	}, nil
}
