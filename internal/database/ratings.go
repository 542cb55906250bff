// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/shelfwise/internal/logging"
	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// scanFunc scans a single row into a result type.
type scanFunc[T any] func(*sql.Rows) (T, error)

// queryAndScan executes a query and scans all rows using scan.
func queryAndScan[T any](ctx context.Context, conn *sql.DB, query string, args []any, scan scanFunc[T]) ([]T, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeWithLog(rows, "rows")

	var results []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Ratings returns every stored rating in insertion order.
func (db *DB) Ratings(ctx context.Context) ([]recommend.RawRating, error) {
	start := time.Now()
	out, err := queryAndScan(ctx, db.conn,
		`SELECT user_id, isbn, rating FROM ratings ORDER BY id`, nil,
		func(rows *sql.Rows) (recommend.RawRating, error) {
			var r recommend.RawRating
			err := rows.Scan(&r.UserID, &r.ISBN, &r.Rating)
			return r, err
		})
	metrics.RecordDBQuery("select", "ratings", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	return out, nil
}

// Books returns the stored catalog ordered by isbn.
func (db *DB) Books(ctx context.Context) ([]recommend.RawBook, error) {
	start := time.Now()
	out, err := queryAndScan(ctx, db.conn,
		`SELECT isbn, title, COALESCE(author, ''), COALESCE(publisher, ''), COALESCE(year_of_publication, 0)
		 FROM books ORDER BY isbn`, nil,
		func(rows *sql.Rows) (recommend.RawBook, error) {
			var b recommend.RawBook
			err := rows.Scan(&b.ISBN, &b.Title, &b.Author, &b.Publisher, &b.Year)
			return b, err
		})
	metrics.RecordDBQuery("select", "books", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	return out, nil
}

// RatedISBNs returns every isbn userID has a rating row for, implicit
// ratings included.
func (db *DB) RatedISBNs(ctx context.Context, userID int) (map[string]struct{}, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	isbns, err := queryAndScan(ctx, db.conn,
		`SELECT DISTINCT isbn FROM ratings WHERE user_id = ?`, []any{userID},
		func(rows *sql.Rows) (string, error) {
			var isbn string
			err := rows.Scan(&isbn)
			return isbn, err
		})
	metrics.RecordDBQuery("select", "ratings", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query rated isbns for user %d: %w", userID, err)
	}

	rated := make(map[string]struct{}, len(isbns))
	for _, isbn := range isbns {
		rated[isbn] = struct{}{}
	}
	return rated, nil
}

// SeedStats counts the rows written by SeedCatalog.
type SeedStats struct {
	Books   int `json:"books" yaml:"books"`
	Ratings int `json:"ratings" yaml:"ratings"`
}

// SeedCatalog replaces the books and ratings tables in one transaction.
// Only the first row for each isbn in books is written. ratings are stored
// as given, implicit zeros included, so RatedISBNs sees every interaction.
func (db *DB) SeedCatalog(ctx context.Context, books []recommend.RawBook, ratings []recommend.RawRating) (stats SeedStats, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("seed", "ratings", time.Since(start), err) }()

	unique := make([]recommend.RawBook, 0, len(books))
	seen := make(map[string]struct{}, len(books))
	for _, b := range books {
		if _, dup := seen[b.ISBN]; dup {
			continue
		}
		seen[b.ISBN] = struct{}{}
		unique = append(unique, b)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx, err)
		}
	}()

	for _, table := range []string{"ratings", "books"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return stats, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	err = insertBatched(ctx, tx, "books",
		[]string{"isbn", "title", "author", "publisher", "year_of_publication"}, len(unique),
		func(i int) []any {
			b := unique[i]
			return []any{b.ISBN, b.Title, b.Author, b.Publisher, b.Year}
		})
	if err != nil {
		return stats, err
	}

	err = insertBatched(ctx, tx, "ratings",
		[]string{"user_id", "isbn", "rating"}, len(ratings),
		func(i int) []any {
			r := ratings[i]
			return []any{r.UserID, r.ISBN, r.Rating}
		})
	if err != nil {
		return stats, err
	}

	if err = tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit seed: %w", err)
	}

	stats = SeedStats{Books: len(unique), Ratings: len(ratings)}
	logging.Info().
		Int("books", stats.Books).
		Int("ratings", stats.Ratings).
		Dur("duration", time.Since(start)).
		Msg("Seeded rating store")
	return stats, nil
}
