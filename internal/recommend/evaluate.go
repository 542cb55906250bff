// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Candidate is one algorithm under evaluation. Trainer.Fit must be safe to
// call from several goroutines at once.
type Candidate struct {
	Name    string
	Trainer Trainer
}

// EvaluateOptions controls cross-validation.
type EvaluateOptions struct {
	Folds       int
	Seed        int64
	Parallelism int
	Scale       RatingScale
}

// AlgorithmResult is the cross-validation outcome for one candidate.
type AlgorithmResult struct {
	Name       string        `json:"name" yaml:"name"`
	RMSE       float64       `json:"rmse" yaml:"rmse"`
	FoldRMSE   []float64     `json:"fold_rmse" yaml:"fold_rmse"`
	Skipped    bool          `json:"skipped" yaml:"skipped"`
	Note       string        `json:"note,omitempty" yaml:"note,omitempty"`
	FitTime    time.Duration `json:"fit_time" yaml:"fit_time"`
	NumRatings int           `json:"num_ratings" yaml:"num_ratings"`
}

// EvaluationReport is the output of Evaluate. Results keep candidate order.
type EvaluationReport struct {
	Folds       int               `json:"folds" yaml:"folds"`
	Seed        int64             `json:"seed" yaml:"seed"`
	NumRatings  int               `json:"num_ratings" yaml:"num_ratings"`
	Results     []AlgorithmResult `json:"results" yaml:"results"`
	Best        string            `json:"best" yaml:"best"`
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
}

// RMSEByName returns the mean RMSE of every non-skipped candidate.
func (r *EvaluationReport) RMSEByName() map[string]float64 {
	out := make(map[string]float64, len(r.Results))
	for _, res := range r.Results {
		if !res.Skipped {
			out[res.Name] = res.RMSE
		}
	}
	return out
}

// Evaluate runs k-fold cross-validation of every candidate over set and
// reports mean test RMSE per candidate. Fold assignment is a seeded shuffle
// shared by all candidates. A candidate whose fit fails on any fold is
// reported as skipped with the failure as its note; the sweep continues.
// Only context cancellation aborts Evaluate.
func Evaluate(ctx context.Context, set *CleanedRatingSet, candidates []Candidate, opts EvaluateOptions) (*EvaluationReport, error) {
	if opts.Folds < 2 {
		return nil, fmt.Errorf("folds must be at least 2, got %d", opts.Folds)
	}
	if set.Len() < opts.Folds {
		return nil, fmt.Errorf("%w: %d ratings for %d folds", ErrEmptyTrainingSet, set.Len(), opts.Folds)
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Scale == (RatingScale{}) {
		opts.Scale = DefaultRatingScale
	}

	folds := assignFolds(set.Len(), opts.Folds, opts.Seed)

	type foldOutcome struct {
		rmse float64
		dur  time.Duration
		err  error
	}
	outcomes := make([][]foldOutcome, len(candidates))
	for i := range outcomes {
		outcomes[i] = make([]foldOutcome, opts.Folds)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for ci, cand := range candidates {
		for k := 0; k < opts.Folds; k++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				rmse, err := evaluateFold(gctx, cand.Trainer, set, folds, k, opts.Scale)
				outcomes[ci][k] = foldOutcome{rmse: rmse, dur: time.Since(start), err: err}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &EvaluationReport{
		Folds:       opts.Folds,
		Seed:        opts.Seed,
		NumRatings:  set.Len(),
		Results:     make([]AlgorithmResult, len(candidates)),
		GeneratedAt: time.Now().UTC(),
	}
	for ci, cand := range candidates {
		res := AlgorithmResult{Name: cand.Name, NumRatings: set.Len()}
		var sum float64
		for k, o := range outcomes[ci] {
			res.FitTime += o.dur
			if o.err != nil {
				res.Skipped = true
				res.Note = fmt.Sprintf("fold %d: %v", k+1, o.err)
				res.FoldRMSE = nil
				break
			}
			res.FoldRMSE = append(res.FoldRMSE, o.rmse)
			sum += o.rmse
		}
		if !res.Skipped {
			res.RMSE = sum / float64(opts.Folds)
		}
		report.Results[ci] = res
	}
	report.Best = bestCandidate(report.Results)

	return report, nil
}

// assignFolds returns the fold of each rating position.
func assignFolds(n, k int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic fold assignment
	perm := rng.Perm(n)
	folds := make([]int, n)
	for pos, idx := range perm {
		folds[idx] = pos % k
	}
	return folds
}

func evaluateFold(ctx context.Context, trainer Trainer, set *CleanedRatingSet, folds []int, k int, scale RatingScale) (float64, error) {
	train := &CleanedRatingSet{Ratings: make([]Rating, 0, len(set.Ratings))}
	var test []Rating
	for i, r := range set.Ratings {
		if folds[i] == k {
			test = append(test, r)
			continue
		}
		train.Ratings = append(train.Ratings, r)
	}

	model, err := Fit(ctx, trainer, train, TrainingConfig{Scale: scale})
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, r := range test {
		d := model.Predict(r.UserID, r.ISBN) - float64(r.Value)
		sum += d * d
	}
	if len(test) == 0 {
		return 0, nil
	}
	return math.Sqrt(sum / float64(len(test))), nil
}

// bestCandidate returns the lowest-RMSE non-skipped name, ties by name.
func bestCandidate(results []AlgorithmResult) string {
	ok := make([]AlgorithmResult, 0, len(results))
	for _, r := range results {
		if !r.Skipped {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 {
		return ""
	}
	sort.Slice(ok, func(i, j int) bool {
		if ok[i].RMSE != ok[j].RMSE {
			return ok[i].RMSE < ok[j].RMSE
		}
		return ok[i].Name < ok[j].Name
	})
	return ok[0].Name
}
