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

	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// ReplaceRecommendations replaces the whole recommended_books table with
// results in one transaction and returns the number of rows written. On any
// error the previous rows are left untouched.
func (db *DB) ReplaceRecommendations(ctx context.Context, results []recommend.RecommendationResult) (written int, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("replace", "recommended_books", time.Since(start), err) }()

	type row struct {
		userID  int
		rank    int
		item    recommend.ScoredBook
		version int64
	}
	var rows []row
	for _, res := range results {
		for rank, item := range res.Items {
			rows = append(rows, row{userID: res.UserID, rank: rank + 1, item: item, version: res.ModelVersion})
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx, err)
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM recommended_books"); err != nil {
		return 0, fmt.Errorf("failed to clear recommended_books: %w", err)
	}

	createdAt := time.Now().UTC()
	err = insertBatched(ctx, tx, "recommended_books",
		[]string{"user_id", "isbn", "rank", "estimated_rating", "model_version", "created_at"}, len(rows),
		func(i int) []any {
			r := rows[i]
			return []any{r.userID, r.item.ISBN, r.rank, r.item.Score, r.version, createdAt}
		})
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recommendations: %w", err)
	}
	return len(rows), nil
}

// Recommendations returns the stored list for userID in rank order. Titles
// come from the books table when present.
func (db *DB) Recommendations(ctx context.Context, userID int) ([]recommend.ScoredBook, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	out, err := queryAndScan(ctx, db.conn,
		`SELECT r.isbn, COALESCE(b.title, ''), r.estimated_rating
		 FROM recommended_books r
		 LEFT JOIN (SELECT isbn, MIN(title) AS title FROM books GROUP BY isbn) b ON b.isbn = r.isbn
		 WHERE r.user_id = ?
		 ORDER BY r.rank`, []any{userID},
		func(rows *sql.Rows) (recommend.ScoredBook, error) {
			var s recommend.ScoredBook
			err := rows.Scan(&s.ISBN, &s.Title, &s.Score)
			return s, err
		})
	metrics.RecordDBQuery("select", "recommended_books", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations for user %d: %w", userID, err)
	}
	if out == nil {
		out = []recommend.ScoredBook{}
	}
	return out, nil
}

// RecommendationCount returns the number of rows in the sink.
func (db *DB) RecommendationCount(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM recommended_books").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recommendations: %w", err)
	}
	return n, nil
}
