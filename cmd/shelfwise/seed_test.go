// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/shelfwise/internal/api"
	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/database"
	"github.com/tomtom215/shelfwise/internal/pipeline"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// writeSeedFixture writes a catalog where user 1 rated six 2000 books, one
// 2020 book and implicitly rated one more. Users 2..8 rate the same books
// plus THIRD1, the only book user 1 has not seen.
func writeSeedFixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	var books strings.Builder
	books.WriteString(`"ISBN";"Book-Title";"Book-Author";"Year-Of-Publication";"Publisher"` + "\n")
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&books, "\"OLD%d\";\"Old %d\";\"Author\";\"2000\";\"Pub\"\n", i, i)
	}
	books.WriteString("\"NEW1\";\"New\";\"Author\";\"2020\";\"Pub\"\n")
	books.WriteString("\"THIRD1\";\"Third\";\"Author\";\"2010\";\"Pub\"\n")
	books.WriteString("\"SEEN1\";\"Seen\";\"Author\";\"2001\";\"Pub\"\n")

	var ratings strings.Builder
	ratings.WriteString(`"User-ID";"ISBN";"Book-Rating"` + "\n")
	for u := 1; u <= 8; u++ {
		for i := 1; i <= 6; i++ {
			fmt.Fprintf(&ratings, "\"%d\";\"OLD%d\";\"%d\"\n", u, i, 4+(u+i)%6)
		}
		fmt.Fprintf(&ratings, "\"%d\";\"NEW1\";\"%d\"\n", u, 5+u%5)
		if u > 1 {
			fmt.Fprintf(&ratings, "\"%d\";\"THIRD1\";\"%d\"\n", u, 3+u%7)
		}
	}
	ratings.WriteString("\"1\";\"SEEN1\";\"0\"\n")

	users := "\"User-ID\";\"Location\";\"Age\"\n\"1\";\"nyc, new york, usa\";\"30\"\n"

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	return &config.Config{
		Source: config.SourceConfig{
			Kind:        "csv",
			BooksPath:   write("books.csv", books.String()),
			UsersPath:   write("users.csv", users),
			RatingsPath: write("ratings.csv", ratings.String()),
			Delimiter:   ";",
		},
		Training: config.TrainingConfig{Factors: 4, Iterations: 10, LearningRate: 0.01},
	}
}

func TestSeedStore_KeepsEveryRatedISBN(t *testing.T) {
	ctx := context.Background()
	cfg := writeSeedFixture(t)

	ds, err := newCSVSource(cfg, zerolog.Nop()).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stats, _, err := seedStore(ctx, db, ds)
	if err != nil {
		t.Fatalf("seedStore() error = %v", err)
	}
	if stats.Ratings != len(ds.Ratings) {
		t.Errorf("stored ratings = %d, want all %d loaded rows", stats.Ratings, len(ds.Ratings))
	}

	rated, err := db.RatedISBNs(ctx, 1)
	if err != nil {
		t.Fatalf("RatedISBNs() error = %v", err)
	}
	for _, isbn := range []string{"OLD1", "NEW1", "SEEN1"} {
		if _, ok := rated[isbn]; !ok {
			t.Errorf("RatedISBNs(1) = %v, missing %s", rated, isbn)
		}
	}

	books, err := db.Books(ctx)
	if err != nil {
		t.Fatalf("Books() error = %v", err)
	}
	for _, b := range books {
		if b.ISBN == "NEW1" {
			t.Errorf("Books() contains NEW1, want books after 2018 left out of the seeded catalog")
		}
	}

	// Serve a model trained from the CSV files with the recommender profile,
	// which keeps NEW1 in the catalog.
	cleaning, err := recommend.CleaningProfile(recommend.ProfileRecommender)
	if err != nil {
		t.Fatalf("CleaningProfile() error = %v", err)
	}
	set, _ := recommend.Clean(ds.Ratings, ds.Books, cleaning)
	if _, ok := set.Titles["NEW1"]; !ok {
		t.Fatalf("recommender catalog = %v, want NEW1 included", set.Titles)
	}

	trainer, err := newTrainer("baseline", cfg)
	if err != nil {
		t.Fatalf("newTrainer() error = %v", err)
	}
	engine, err := recommend.NewEngine(nil, trainer, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if _, err := engine.Train(ctx, set); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	router := api.NewRouter(api.Dependencies{
		Engine:     engine,
		Store:      db,
		RunLog:     pipeline.NewInMemoryRunLog(),
		Middleware: &api.MiddlewareConfig{RateLimitDisabled: true},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/1/recommendations?n=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data recommend.RecommendationResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	got := make([]string, 0, len(body.Data.Items))
	for _, item := range body.Data.Items {
		got = append(got, item.ISBN)
	}
	if len(got) != 1 || got[0] != "THIRD1" {
		t.Errorf("recommended = %v, want [THIRD1]", got)
	}
}
