// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// RatingStore is the persisted store a StoreSource reads from.
type RatingStore interface {
	Ratings(ctx context.Context) ([]recommend.RawRating, error)
	Books(ctx context.Context) ([]recommend.RawBook, error)
}

// StoreSource loads rows from a persisted rating store. Rows in the store
// were validated when seeded, so nothing is skipped.
type StoreSource struct {
	store  RatingStore
	logger zerolog.Logger
}

// NewStoreSource creates a source backed by store.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewStoreSource(store RatingStore, logger zerolog.Logger) *StoreSource {
	return &StoreSource{
		store:  store,
		logger: logger.With().Str("component", "loader").Logger(),
	}
}

// Load reads ratings and books. Any query failure wraps
// recommend.ErrSourceUnavailable.
func (s *StoreSource) Load(ctx context.Context) (*Dataset, error) {
	ratingStats := newStats("ratings")
	ratings, err := s.store.Ratings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: ratings: %w", recommend.ErrSourceUnavailable, err)
	}
	finishStats(ratingStats, len(ratings))

	bookStats := newStats("books")
	books, err := s.store.Books(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: books: %w", recommend.ErrSourceUnavailable, err)
	}
	finishStats(bookStats, len(books))

	s.logger.Info().
		Int("ratings", len(ratings)).
		Int("books", len(books)).
		Msg("loaded rating store")

	return &Dataset{
		Ratings: ratings,
		Books:   books,
		Stats:   []*LoadStats{ratingStats, bookStats},
	}, nil
}

func finishStats(stats *LoadStats, n int) {
	stats.Total = int64(n)
	stats.Loaded = int64(n)
	stats.EndTime = time.Now()
	metrics.RecordLoad(stats.Source, stats.Loaded, nil)
}
