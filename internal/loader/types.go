// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package loader reads raw books, users and ratings from delimiter-separated
// files or from the persisted rating store.
//
// Loading is tolerant: a row that cannot be parsed is counted under a skip
// reason and dropped, and loading continues. Only a source that cannot be
// read at all (missing file, missing required column) fails the load, with
// an error wrapping recommend.ErrSourceUnavailable.
package loader

import (
	"context"
	"time"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

// Skip reasons recorded in LoadStats.
const (
	ReasonFieldCount = "field_count"
	ReasonBadUserID  = "bad_user_id"
	ReasonBadISBN    = "bad_isbn"
	ReasonBadRating  = "bad_rating"
	ReasonParse      = "parse_error"
)

// LoadStats holds statistics about loading one source.
type LoadStats struct {
	// Source names the file or table, e.g. "ratings".
	Source string `json:"source"`

	// Total is the number of data rows read, excluding the header.
	Total int64 `json:"total"`

	// Loaded is the number of rows returned to the caller.
	Loaded int64 `json:"loaded"`

	// Skipped is the number of malformed rows dropped.
	Skipped int64 `json:"skipped"`

	// Reasons breaks Skipped down by reason.
	Reasons map[string]int64 `json:"reasons,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func newStats(source string) *LoadStats {
	return &LoadStats{
		Source:    source,
		Reasons:   make(map[string]int64),
		StartTime: time.Now(),
	}
}

func (s *LoadStats) skip(reason string) {
	s.Skipped++
	s.Reasons[reason]++
}

// Duration returns the duration of the load.
func (s *LoadStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// RecordsPerSecond returns the load rate.
func (s *LoadStats) RecordsPerSecond() float64 {
	duration := s.Duration().Seconds()
	if duration == 0 {
		return 0
	}
	return float64(s.Total) / duration
}

// Dataset is everything one pipeline run reads.
type Dataset struct {
	Ratings []recommend.RawRating
	Books   []recommend.RawBook
	Users   []recommend.RawUser

	Stats []*LoadStats
}

// SkippedTotal returns the malformed-row count across all sources.
func (d *Dataset) SkippedTotal() int64 {
	var n int64
	for _, s := range d.Stats {
		n += s.Skipped
	}
	return n
}

// Source supplies raw rows for a pipeline run.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}
