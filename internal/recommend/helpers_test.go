// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"context"
	"fmt"
	"math"
	"time"
)

// itemMeanTrainer predicts each item's mean rating through the bias terms.
type itemMeanTrainer struct {
	err   error
	delay time.Duration
	nan   bool
}

func (t *itemMeanTrainer) Name() string { return "item-mean" }

func (t *itemMeanTrainer) Fit(ctx context.Context, set *TrainingSet) (*Factors, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.err != nil {
		return nil, t.err
	}

	sums := make([]float64, set.NumItems)
	counts := make([]float64, set.NumItems)
	for _, tr := range set.Triples {
		sums[tr.Item] += tr.Rating
		counts[tr.Item]++
	}
	f := &Factors{
		UseBiases:  true,
		GlobalMean: set.GlobalMean,
		UserBias:   make([]float64, set.NumUsers),
		ItemBias:   make([]float64, set.NumItems),
	}
	for i := range sums {
		if counts[i] > 0 {
			f.ItemBias[i] = sums[i]/counts[i] - set.GlobalMean
		}
	}
	if t.nan && len(f.ItemBias) > 0 {
		f.ItemBias[0] = math.NaN()
	}
	return f, nil
}

// bookCatalog returns books "B000".."B<n-1>" published in 2000.
func bookCatalog(n int) []RawBook {
	books := make([]RawBook, n)
	for i := range books {
		books[i] = RawBook{ISBN: isbn(i), Title: "Title " + isbn(i), Year: 2000}
	}
	return books
}

func isbn(i int) string { return fmt.Sprintf("B%03d", i) }

// denseRatings has every user in users rate every book in books with
// (user+book)%10+1.
func denseRatings(users, books int) []RawRating {
	out := make([]RawRating, 0, users*books)
	for u := 1; u <= users; u++ {
		for b := 0; b < books; b++ {
			out = append(out, RawRating{UserID: u, ISBN: isbn(b), Rating: (u+b)%10 + 1})
		}
	}
	return out
}

func mustFit(set *CleanedRatingSet) *TrainedModel {
	m, err := Fit(context.Background(), &itemMeanTrainer{}, set, DefaultConfig().Training)
	if err != nil {
		panic(err)
	}
	return m
}
