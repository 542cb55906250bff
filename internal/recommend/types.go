// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"context"
	"math"
	"strings"
	"time"
)

// RawRating is one row of the ratings source. A Rating of 0 marks an
// implicit interaction, not a preference.
type RawRating struct {
	UserID int    `json:"user_id" validate:"gte=0"`
	ISBN   string `json:"isbn" validate:"required,isbn_code"`
	Rating int    `json:"rating" validate:"gte=0,lte=10"`
}

// RawBook is one row of the books source. Year is 0 when the source value
// was missing or non-numeric.
type RawBook struct {
	ISBN      string `json:"isbn" validate:"required,isbn_code"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year"`
}

// RawUser is one row of the users source. It is auxiliary metadata and is
// not consumed by the factorization.
type RawUser struct {
	UserID   int    `json:"user_id" validate:"gte=0"`
	Age      *int   `json:"age,omitempty"`
	Location string `json:"location"`
}

// Location is a RawUser location split into its comma-separated parts.
type Location struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// ParseLocation splits "city, state, country". Missing parts are empty and
// the literal "n/a" is treated as missing.
func ParseLocation(raw string) Location {
	parts := strings.Split(raw, ",")
	get := func(i int) string {
		if i >= len(parts) {
			return ""
		}
		v := strings.TrimSpace(parts[i])
		if strings.EqualFold(v, "n/a") {
			return ""
		}
		return v
	}
	return Location{City: get(0), State: get(1), Country: get(2)}
}

// Rating is one surviving (user, isbn, rating) row of a CleanedRatingSet.
type Rating struct {
	UserID int    `json:"user_id"`
	ISBN   string `json:"isbn"`
	Value  int    `json:"rating"`
}

// CleanedRatingSet is the output of Clean. Duplicate (user, isbn) rows
// are kept.
type CleanedRatingSet struct {
	Ratings []Rating

	// Titles maps every ISBN in Ratings to its book title.
	Titles map[string]string
}

// Len returns the number of ratings.
func (s *CleanedRatingSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Ratings)
}

// Catalog returns the distinct ISBNs in encounter order.
func (s *CleanedRatingSet) Catalog() []string {
	seen := make(map[string]struct{}, len(s.Titles))
	out := make([]string, 0, len(s.Titles))
	for _, r := range s.Ratings {
		if _, ok := seen[r.ISBN]; ok {
			continue
		}
		seen[r.ISBN] = struct{}{}
		out = append(out, r.ISBN)
	}
	return out
}

// Triple is one observed entry of the rating matrix in index space.
type Triple struct {
	User   int
	Item   int
	Rating float64
}

// RatingScale bounds every prediction.
type RatingScale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultRatingScale is the explicit 1..10 scale of the dataset.
var DefaultRatingScale = RatingScale{Min: 1, Max: 10}

// Clip bounds v to the scale. NaN maps to Min.
func (s RatingScale) Clip(v float64) float64 {
	if math.IsNaN(v) || v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

// TrainingSet is the index-space input handed to a Trainer.
type TrainingSet struct {
	Triples    []Triple
	NumUsers   int
	NumItems   int
	GlobalMean float64
	Scale      RatingScale
}

// Factors is the learned parameter set shared by every trainer:
//
//	estimate(u, i) = [mu + bu[u] + bi[i]] + U[u] · V[i]
//
// The bracketed bias terms apply only when UseBiases is set.
type Factors struct {
	UseBiases  bool
	GlobalMean float64
	UserBias   []float64
	ItemBias   []float64
	U          [][]float64
	V          [][]float64
}

// Estimate returns the raw, unclipped estimate for index-space (u, i).
func (f *Factors) Estimate(u, i int) float64 {
	var est float64
	if f.UseBiases {
		est = f.GlobalMean + f.UserBias[u] + f.ItemBias[i]
	}
	if len(f.U) > 0 && len(f.V) > 0 {
		pu, qi := f.U[u], f.V[i]
		for k := range pu {
			est += pu[k] * qi[k]
		}
	}
	return est
}

// Finite reports whether every parameter is a finite number.
func (f *Factors) Finite() bool {
	check := func(vals []float64) bool {
		for _, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
		return true
	}
	if !check([]float64{f.GlobalMean}) || !check(f.UserBias) || !check(f.ItemBias) {
		return false
	}
	for _, row := range f.U {
		if !check(row) {
			return false
		}
	}
	for _, row := range f.V {
		if !check(row) {
			return false
		}
	}
	return true
}

// Trainer fits Factors to a TrainingSet. Implementations must be
// deterministic for a fixed configuration and must honor ctx cancellation.
type Trainer interface {
	// Name is the algorithm identifier, e.g. "nmf".
	Name() string

	// Fit returns a new parameter set. It never mutates a previous result.
	Fit(ctx context.Context, set *TrainingSet) (*Factors, error)
}

// ScoredBook is one entry of a recommendation list.
type ScoredBook struct {
	ISBN  string  `json:"isbn"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"estimated_rating"`
}

// RecommendationResult is an ordered top-N list for one user: highest score
// first, ties broken by ISBN ascending.
type RecommendationResult struct {
	UserID       int          `json:"user_id"`
	Items        []ScoredBook `json:"items"`
	ModelVersion int64        `json:"model_version"`
	ColdStart    bool         `json:"cold_start"`
}

// TrainingStatus describes the Engine's training state.
type TrainingStatus struct {
	IsTraining     bool      `json:"is_training"`
	ModelVersion   int64     `json:"model_version"`
	Algorithm      string    `json:"algorithm"`
	LastTrainedAt  time.Time `json:"last_trained_at"`
	LastDurationMS int64     `json:"last_duration_ms"`
	LastError      string    `json:"last_error,omitempty"`
	NumUsers       int       `json:"num_users"`
	NumItems       int       `json:"num_items"`
	NumRatings     int       `json:"num_ratings"`
}
