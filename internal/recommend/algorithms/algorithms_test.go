// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package algorithms

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// lowRankSet builds a fully observed users x items matrix with
// r = 1 + a_u·b_i, a_u and b_i in {1, 2, 3}.
func lowRankSet(users, items int) *recommend.TrainingSet {
	set := &recommend.TrainingSet{
		NumUsers: users,
		NumItems: items,
		Scale:    recommend.DefaultRatingScale,
	}
	var sum float64
	for u := 0; u < users; u++ {
		for i := 0; i < items; i++ {
			r := 1 + float64((u%3+1)*(i%3+1))
			set.Triples = append(set.Triples, recommend.Triple{User: u, Item: i, Rating: r})
			sum += r
		}
	}
	set.GlobalMean = sum / float64(len(set.Triples))
	return set
}

func globalMeanRMSE(set *recommend.TrainingSet) float64 {
	var sum float64
	for _, t := range set.Triples {
		d := set.GlobalMean - t.Rating
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(set.Triples)))
}

func TestNewTrainer(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{NameNMF, false},
		{NameSVD, false},
		{NameBaseline, false},
		{"ease", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTrainer(tt.name, Params{Factors: 4, Iterations: 5, Seed: 1})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTrainer(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err == nil && tr.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.name)
			}
		})
	}
}

func TestNewNMF_Defaults(t *testing.T) {
	n := NewNMF(NMFConfig{InitLow: -1})
	cfg := n.Config()

	if cfg.NumFactors != 15 || cfg.NumEpochs != 50 {
		t.Errorf("factors/epochs = %d/%d, want 15/50", cfg.NumFactors, cfg.NumEpochs)
	}
	if cfg.InitLow != 0 || cfg.InitHigh != 1 {
		t.Errorf("init range = [%v, %v), want [0, 1)", cfg.InitLow, cfg.InitHigh)
	}
}

func TestNMF_Fit(t *testing.T) {
	set := lowRankSet(24, 18)

	for _, biased := range []bool{false, true} {
		t.Run(map[bool]string{false: "unbiased", true: "biased"}[biased], func(t *testing.T) {
			cfg := DefaultNMFConfig()
			cfg.NumFactors = 4
			cfg.NumEpochs = 60
			cfg.UseBiases = biased

			f, err := NewNMF(cfg).Fit(context.Background(), set)
			if err != nil {
				t.Fatalf("Fit() error = %v", err)
			}

			for _, m := range [][][]float64{f.U, f.V} {
				for _, row := range m {
					for _, v := range row {
						if v < 0 {
							t.Fatalf("negative factor %v", v)
						}
					}
				}
			}
			if f.UseBiases != biased {
				t.Errorf("UseBiases = %v, want %v", f.UseBiases, biased)
			}

			got := tripleRMSE(f, set.Triples, set.Scale)
			if base := globalMeanRMSE(set); got >= base {
				t.Errorf("train RMSE = %v, want below global-mean RMSE %v", got, base)
			}
		})
	}
}

func TestNMF_Deterministic(t *testing.T) {
	set := lowRankSet(10, 9)
	cfg := DefaultNMFConfig()
	cfg.NumFactors = 3
	cfg.NumEpochs = 10
	cfg.NumWorkers = 3

	f1, err := NewNMF(cfg).Fit(context.Background(), set)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	f2, err := NewNMF(cfg).Fit(context.Background(), set)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if !reflect.DeepEqual(f1, f2) {
		t.Error("identical fits produced different factors")
	}

	cfg.Seed = 7
	f3, _ := NewNMF(cfg).Fit(context.Background(), set)
	if reflect.DeepEqual(f1.U, f3.U) {
		t.Error("different seeds produced identical factors")
	}
}

func TestNMF_EarlyStop(t *testing.T) {
	set := lowRankSet(20, 15)
	cfg := DefaultNMFConfig()
	cfg.NumFactors = 3
	cfg.NumEpochs = 200
	cfg.EarlyStop = EarlyStopping{Enabled: true, ValidationFraction: 0.2, Patience: 2}

	f, err := NewNMF(cfg).Fit(context.Background(), set)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(f.U) != set.NumUsers || len(f.V) != set.NumItems {
		t.Errorf("factor shapes = %d x %d, want %d x %d", len(f.U), len(f.V), set.NumUsers, set.NumItems)
	}
	if !f.Finite() {
		t.Error("factors are not finite")
	}
}

func TestTrainers_EmptyAndCancelled(t *testing.T) {
	trainers := []recommend.Trainer{
		NewNMF(DefaultNMFConfig()),
		NewSVD(DefaultSVDConfig()),
		NewBaseline(DefaultBaselineConfig()),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, tr := range trainers {
		t.Run(tr.Name(), func(t *testing.T) {
			if _, err := tr.Fit(context.Background(), &recommend.TrainingSet{}); !errors.Is(err, recommend.ErrEmptyTrainingSet) {
				t.Errorf("Fit(empty) error = %v, want ErrEmptyTrainingSet", err)
			}
			if _, err := tr.Fit(ctx, lowRankSet(3, 3)); !errors.Is(err, context.Canceled) {
				t.Errorf("Fit(cancelled) error = %v, want context.Canceled", err)
			}
		})
	}
}

func TestSVD_Fit(t *testing.T) {
	set := lowRankSet(24, 18)
	cfg := DefaultSVDConfig()
	cfg.NumFactors = 4
	cfg.NumEpochs = 40

	f, err := NewSVD(cfg).Fit(context.Background(), set)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if !f.UseBiases {
		t.Error("UseBiases = false, want true")
	}
	got := tripleRMSE(f, set.Triples, set.Scale)
	if base := globalMeanRMSE(set); got >= base {
		t.Errorf("train RMSE = %v, want below global-mean RMSE %v", got, base)
	}
}

func TestSVD_Diverges(t *testing.T) {
	cfg := DefaultSVDConfig()
	cfg.LearningRate = 1e6
	cfg.NumFactors = 2

	_, err := NewSVD(cfg).Fit(context.Background(), lowRankSet(6, 6))
	if !errors.Is(err, recommend.ErrTrainingFailure) {
		t.Errorf("Fit() error = %v, want ErrTrainingFailure", err)
	}
}

func TestBaseline_Fit(t *testing.T) {
	// item 0 is rated high by everyone, item 1 low
	set := &recommend.TrainingSet{NumUsers: 3, NumItems: 2, Scale: recommend.DefaultRatingScale}
	for u := 0; u < 3; u++ {
		set.Triples = append(set.Triples,
			recommend.Triple{User: u, Item: 0, Rating: 9},
			recommend.Triple{User: u, Item: 1, Rating: 3},
		)
	}
	set.GlobalMean = 6

	f, err := NewBaseline(BaselineConfig{NumEpochs: 5, RegUser: 1, RegItem: 1}).Fit(context.Background(), set)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if len(f.U) != 0 || len(f.V) != 0 {
		t.Error("baseline produced latent factors")
	}
	if f.ItemBias[0] <= 0 || f.ItemBias[1] >= 0 {
		t.Errorf("ItemBias = %v, want [+, -]", f.ItemBias)
	}
	if f.Estimate(0, 0) <= f.Estimate(0, 1) {
		t.Errorf("Estimate(0,0) = %v <= Estimate(0,1) = %v", f.Estimate(0, 0), f.Estimate(0, 1))
	}
}

func TestParallelRange(t *testing.T) {
	for _, tc := range []struct{ n, workers int }{{0, 4}, {1, 4}, {7, 1}, {100, 4}, {101, 3}} {
		hits := make([]int32, tc.n)
		parallelRange(tc.n, tc.workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Errorf("n=%d workers=%d: index %d visited %d times", tc.n, tc.workers, i, h)
			}
		}
	}
}

func TestSplitHoldout(t *testing.T) {
	set := lowRankSet(10, 10)

	train, holdout := splitHoldout(set.Triples, 0.2, 3)
	if len(holdout) != 20 || len(train) != 80 {
		t.Errorf("split = %d/%d, want 80/20", len(train), len(holdout))
	}

	train2, holdout2 := splitHoldout(set.Triples, 0.2, 3)
	if !reflect.DeepEqual(train, train2) || !reflect.DeepEqual(holdout, holdout2) {
		t.Error("split is not deterministic for a fixed seed")
	}

	if _, h := splitHoldout(set.Triples, 0, 3); h != nil {
		t.Errorf("holdout with zero fraction = %v, want nil", h)
	}
}
