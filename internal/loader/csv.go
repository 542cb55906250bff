// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/validation"
)

// Age bounds outside which a user's age is treated as unknown.
const (
	MinAge = 5
	MaxAge = 100
)

const ctxCheckEvery = 10000

// CSVSource loads the three delimiter-separated source files. UsersPath is
// optional.
type CSVSource struct {
	BooksPath   string
	UsersPath   string
	RatingsPath string
	Delimiter   rune

	logger zerolog.Logger
}

// NewCSVSource creates a CSV source. A zero delimiter means ';'.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewCSVSource(booksPath, usersPath, ratingsPath string, delimiter rune, logger zerolog.Logger) *CSVSource {
	if delimiter == 0 {
		delimiter = ';'
	}
	return &CSVSource{
		BooksPath:   booksPath,
		UsersPath:   usersPath,
		RatingsPath: ratingsPath,
		Delimiter:   delimiter,
		logger:      logger.With().Str("component", "loader").Logger(),
	}
}

// Load reads the files concurrently. The first unreadable file fails the
// whole load.
func (s *CSVSource) Load(ctx context.Context) (*Dataset, error) {
	ds := &Dataset{}
	var booksStats, usersStats, ratingsStats *LoadStats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds.Ratings, ratingsStats, err = s.LoadRatings(gctx, s.RatingsPath)
		return err
	})
	g.Go(func() error {
		var err error
		ds.Books, booksStats, err = s.LoadBooks(gctx, s.BooksPath)
		return err
	})
	if s.UsersPath != "" {
		g.Go(func() error {
			var err error
			ds.Users, usersStats, err = s.LoadUsers(gctx, s.UsersPath)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, st := range []*LoadStats{ratingsStats, booksStats, usersStats} {
		if st != nil {
			ds.Stats = append(ds.Stats, st)
		}
	}
	return ds, nil
}

// LoadRatings reads a ratings file with columns User-ID, ISBN, Book-Rating.
func (s *CSVSource) LoadRatings(ctx context.Context, path string) ([]recommend.RawRating, *LoadStats, error) {
	var out []recommend.RawRating
	stats, err := s.readFile(ctx, "ratings", path, []column{
		{key: "userid"}, {key: "isbn"}, {key: "bookrating", aliases: []string{"rating"}},
	}, func(f []string, stats *LoadStats) {
		userID, err := strconv.Atoi(strings.TrimSpace(f[0]))
		if err != nil {
			stats.skip(ReasonBadUserID)
			return
		}
		rating, err := strconv.Atoi(strings.TrimSpace(f[2]))
		if err != nil {
			stats.skip(ReasonBadRating)
			return
		}
		r := recommend.RawRating{UserID: userID, ISBN: strings.TrimSpace(f[1]), Rating: rating}
		if verr := validation.ValidateStruct(r); verr != nil {
			stats.skip(reasonFor(verr))
			return
		}
		out = append(out, r)
	})
	return out, stats, err
}

// LoadBooks reads a books file with columns ISBN, Book-Title, Book-Author,
// Year-Of-Publication and Publisher. Image URL columns are ignored. A
// non-numeric year loads as 0 and is left to the cleaning step.
func (s *CSVSource) LoadBooks(ctx context.Context, path string) ([]recommend.RawBook, *LoadStats, error) {
	var out []recommend.RawBook
	stats, err := s.readFile(ctx, "books", path, []column{
		{key: "isbn"},
		{key: "booktitle", aliases: []string{"title"}},
		{key: "bookauthor", aliases: []string{"author"}},
		{key: "yearofpublication", aliases: []string{"year"}},
		{key: "publisher"},
	}, func(f []string, stats *LoadStats) {
		year, err := strconv.Atoi(strings.TrimSpace(f[3]))
		if err != nil {
			year = 0
		}
		b := recommend.RawBook{
			ISBN:      strings.TrimSpace(f[0]),
			Title:     strings.TrimSpace(f[1]),
			Author:    strings.TrimSpace(f[2]),
			Year:      year,
			Publisher: strings.TrimSpace(f[4]),
		}
		if verr := validation.ValidateStruct(b); verr != nil {
			stats.skip(reasonFor(verr))
			return
		}
		out = append(out, b)
	})
	return out, stats, err
}

// LoadUsers reads a users file with columns User-ID, Location, Age. Ages
// that are missing or outside [MinAge, MaxAge] load as nil.
func (s *CSVSource) LoadUsers(ctx context.Context, path string) ([]recommend.RawUser, *LoadStats, error) {
	var out []recommend.RawUser
	stats, err := s.readFile(ctx, "users", path, []column{
		{key: "userid"}, {key: "location"}, {key: "age"},
	}, func(f []string, stats *LoadStats) {
		userID, err := strconv.Atoi(strings.TrimSpace(f[0]))
		if err != nil || userID < 0 {
			stats.skip(ReasonBadUserID)
			return
		}
		out = append(out, recommend.RawUser{
			UserID:   userID,
			Location: strings.TrimSpace(f[1]),
			Age:      parseAge(f[2]),
		})
	})
	return out, stats, err
}

func parseAge(raw string) *int {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < MinAge || v > MaxAge {
		return nil
	}
	age := int(v)
	return &age
}

// column is a required header. Header names are compared after removing
// everything but letters and digits and lowercasing.
type column struct {
	key     string
	aliases []string
}

// readFile streams path and calls row with the fields reordered to match
// cols. Rows too short for any required column are skipped.
func (s *CSVSource) readFile(ctx context.Context, source, path string, cols []column,
	row func(fields []string, stats *LoadStats)) (*LoadStats, error) {
	stats := newStats(source)
	defer func() {
		stats.EndTime = time.Now()
		metrics.RecordLoad(source, stats.Loaded, stats.Reasons)
	}()

	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return stats, fmt.Errorf("%w: open %s: %w", recommend.ErrSourceUnavailable, source, err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only file

	r := csv.NewReader(f)
	r.Comma = s.Delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return stats, fmt.Errorf("%w: read %s header: %w", recommend.ErrSourceUnavailable, source, err)
	}
	positions, maxPos, err := resolveColumns(header, cols)
	if err != nil {
		return stats, fmt.Errorf("%w: %s: %w", recommend.ErrSourceUnavailable, source, err)
	}

	fields := make([]string, len(cols))
	for {
		if stats.Total%ctxCheckEvery == 0 && ctx.Err() != nil {
			return stats, ctx.Err()
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.Total++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.skip(ReasonParse)
				continue
			}
			return stats, fmt.Errorf("%w: read %s: %w", recommend.ErrSourceUnavailable, source, err)
		}
		if len(record) <= maxPos {
			stats.skip(ReasonFieldCount)
			continue
		}

		for i, pos := range positions {
			fields[i] = record[pos]
		}
		before := stats.Skipped
		row(fields, stats)
		if stats.Skipped == before {
			stats.Loaded++
		}
	}

	s.logger.Info().
		Str("source", source).
		Int64("total", stats.Total).
		Int64("loaded", stats.Loaded).
		Int64("skipped", stats.Skipped).
		Dur("duration", stats.Duration()).
		Msg("loaded source file")

	return stats, nil
}

func resolveColumns(header []string, cols []column) ([]int, int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	positions := make([]int, len(cols))
	maxPos := 0
	for i, c := range cols {
		pos, ok := index[c.key]
		for _, alias := range c.aliases {
			if ok {
				break
			}
			pos, ok = index[alias]
		}
		if !ok {
			return nil, 0, fmt.Errorf("missing required column %q", c.key)
		}
		positions[i] = pos
		if pos > maxPos {
			maxPos = pos
		}
	}
	return positions, maxPos, nil
}

func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func reasonFor(verr *validation.Errors) string {
	if len(verr.Errors()) == 0 {
		return ReasonParse
	}
	switch verr.Errors()[0].Field() {
	case "ISBN":
		return ReasonBadISBN
	case "Rating":
		return ReasonBadRating
	case "UserID":
		return ReasonBadUserID
	default:
		return ReasonParse
	}
}
