// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// testDBSemaphore serializes DuckDB tests. Concurrent CGO connections from
// parallel tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedTestCatalog(t *testing.T, db *DB) {
	t.Helper()
	books := []recommend.RawBook{
		{ISBN: "A1", Title: "Alpha", Author: "Ann", Year: 2001},
		{ISBN: "B2", Title: "Beta", Author: "Bob", Year: 1999},
		{ISBN: "A1", Title: "Alpha (reprint)", Year: 2005},
		{ISBN: "C3", Title: "Gamma", Year: 1850},
	}
	ratings := []recommend.RawRating{
		{UserID: 7, ISBN: "B2", Rating: 8},
		{UserID: 7, ISBN: "A1", Rating: 5},
		{UserID: 9, ISBN: "A1", Rating: 10},
		{UserID: 7, ISBN: "B2", Rating: 6},
	}
	stats, err := db.SeedCatalog(context.Background(), books, ratings)
	if err != nil {
		t.Fatalf("SeedCatalog() error = %v", err)
	}
	if stats.Books != 3 || stats.Ratings != 4 {
		t.Fatalf("SeedCatalog() = %+v, want 3 books, 4 ratings", stats)
	}
}

func TestNew_FileDatabase(t *testing.T) {
	testDBSemaphore <- struct{}{}
	defer func() { <-testDBSemaphore }()

	path := filepath.Join(t.TempDir(), "nested", "shelfwise.duckdb")
	db, err := New(&config.DatabaseConfig{Path: path, MaxMemory: "256MB"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSeedCatalog_RatingsAndBooks(t *testing.T) {
	db := setupTestDB(t)
	seedTestCatalog(t, db)
	ctx := context.Background()

	ratings, err := db.Ratings(ctx)
	if err != nil {
		t.Fatalf("Ratings() error = %v", err)
	}
	want := []recommend.RawRating{
		{UserID: 7, ISBN: "B2", Rating: 8},
		{UserID: 7, ISBN: "A1", Rating: 5},
		{UserID: 9, ISBN: "A1", Rating: 10},
		{UserID: 7, ISBN: "B2", Rating: 6},
	}
	if len(ratings) != len(want) {
		t.Fatalf("len(Ratings()) = %d, want %d", len(ratings), len(want))
	}
	for i := range want {
		if ratings[i] != want[i] {
			t.Errorf("Ratings()[%d] = %+v, want %+v", i, ratings[i], want[i])
		}
	}

	books, err := db.Books(ctx)
	if err != nil {
		t.Fatalf("Books() error = %v", err)
	}
	if len(books) != 3 {
		t.Fatalf("len(Books()) = %d, want 3", len(books))
	}
	if books[0].ISBN != "A1" || books[0].Title != "Alpha" || books[0].Year != 2001 {
		t.Errorf("Books()[0] = %+v, want first A1 row", books[0])
	}
}

func TestSeedCatalog_Replaces(t *testing.T) {
	db := setupTestDB(t)
	seedTestCatalog(t, db)
	ctx := context.Background()

	_, err := db.SeedCatalog(ctx,
		[]recommend.RawBook{{ISBN: "Z9", Title: "Zeta", Year: 2010}},
		[]recommend.RawRating{{UserID: 1, ISBN: "Z9", Rating: 3}})
	if err != nil {
		t.Fatalf("SeedCatalog() error = %v", err)
	}

	ratings, err := db.Ratings(ctx)
	if err != nil {
		t.Fatalf("Ratings() error = %v", err)
	}
	if len(ratings) != 1 || ratings[0].ISBN != "Z9" {
		t.Errorf("Ratings() = %+v, want only Z9", ratings)
	}
}

func TestRatedISBNs(t *testing.T) {
	db := setupTestDB(t)
	seedTestCatalog(t, db)

	tests := []struct {
		userID int
		want   []string
	}{
		{7, []string{"A1", "B2"}},
		{9, []string{"A1"}},
		{42, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("user %d", tt.userID), func(t *testing.T) {
			rated, err := db.RatedISBNs(context.Background(), tt.userID)
			if err != nil {
				t.Fatalf("RatedISBNs() error = %v", err)
			}
			if len(rated) != len(tt.want) {
				t.Fatalf("RatedISBNs() = %v, want %v", rated, tt.want)
			}
			for _, isbn := range tt.want {
				if _, ok := rated[isbn]; !ok {
					t.Errorf("RatedISBNs() missing %s", isbn)
				}
			}
		})
	}
}

func TestReplaceRecommendations(t *testing.T) {
	db := setupTestDB(t)
	seedTestCatalog(t, db)
	ctx := context.Background()

	first := []recommend.RecommendationResult{
		{UserID: 7, ModelVersion: 1, Items: []recommend.ScoredBook{
			{ISBN: "C3", Score: 9.1},
			{ISBN: "X0", Score: 4.2},
		}},
		{UserID: 9, ModelVersion: 1, Items: []recommend.ScoredBook{{ISBN: "B2", Score: 7}}},
	}
	n, err := db.ReplaceRecommendations(ctx, first)
	if err != nil {
		t.Fatalf("ReplaceRecommendations() error = %v", err)
	}
	if n != 3 {
		t.Errorf("ReplaceRecommendations() = %d, want 3", n)
	}

	got, err := db.Recommendations(ctx, 7)
	if err != nil {
		t.Fatalf("Recommendations() error = %v", err)
	}
	if len(got) != 2 || got[0].ISBN != "C3" || got[1].ISBN != "X0" {
		t.Fatalf("Recommendations(7) = %+v, want [C3 X0]", got)
	}
	if got[0].Title != "Gamma" || got[1].Title != "" {
		t.Errorf("titles = %q, %q, want Gamma and empty", got[0].Title, got[1].Title)
	}
	if got[0].Score != 9.1 {
		t.Errorf("Score = %v, want 9.1", got[0].Score)
	}

	second := []recommend.RecommendationResult{
		{UserID: 9, ModelVersion: 2, Items: []recommend.ScoredBook{{ISBN: "C3", Score: 8}}},
	}
	if _, err := db.ReplaceRecommendations(ctx, second); err != nil {
		t.Fatalf("ReplaceRecommendations() error = %v", err)
	}

	got, err = db.Recommendations(ctx, 7)
	if err != nil {
		t.Fatalf("Recommendations() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recommendations(7) = %+v, want empty after replace", got)
	}
	if count, _ := db.RecommendationCount(ctx); count != 1 {
		t.Errorf("RecommendationCount() = %d, want 1", count)
	}
}

func TestReplaceRecommendations_FailureKeepsPreviousRows(t *testing.T) {
	db := setupTestDB(t)

	initial := []recommend.RecommendationResult{
		{UserID: 1, ModelVersion: 1, Items: []recommend.ScoredBook{{ISBN: "A1", Score: 5}}},
	}
	if _, err := db.ReplaceRecommendations(context.Background(), initial); err != nil {
		t.Fatalf("ReplaceRecommendations() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := db.ReplaceRecommendations(ctx, nil); err == nil {
		t.Fatal("ReplaceRecommendations(cancelled) error = nil, want error")
	}

	count, err := db.RecommendationCount(context.Background())
	if err != nil {
		t.Fatalf("RecommendationCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("RecommendationCount() = %d, want 1 (previous rows kept)", count)
	}
}

func TestInsertBatched_ManyRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const n = insertBatchSize*2 + 17
	ratings := make([]recommend.RawRating, n)
	for i := range ratings {
		ratings[i] = recommend.RawRating{UserID: i % 13, ISBN: fmt.Sprintf("I%04d", i), Rating: i%10 + 1}
	}
	if _, err := db.SeedCatalog(ctx, nil, ratings); err != nil {
		t.Fatalf("SeedCatalog() error = %v", err)
	}

	got, err := db.Ratings(ctx)
	if err != nil {
		t.Fatalf("Ratings() error = %v", err)
	}
	if len(got) != n {
		t.Fatalf("len(Ratings()) = %d, want %d", len(got), n)
	}
	if got[n-1].ISBN != ratings[n-1].ISBN {
		t.Errorf("last rating = %+v, want insertion order preserved", got[n-1])
	}
}
