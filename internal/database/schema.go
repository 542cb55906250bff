// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"fmt"
	"time"
)

// Tables:
//   - books: catalog metadata, one row per isbn
//   - ratings: explicit and implicit ratings in insertion order; duplicates
//     are kept
//   - recommended_books: the sink, one row per recommended isbn per user
//
// No table carries a uniqueness constraint. The sink is replaced with a
// DELETE and re-INSERT inside one transaction, and uniqueness is guaranteed
// by the writers.
var schemaQueries = []string{
	`CREATE SEQUENCE IF NOT EXISTS ratings_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS books (
		isbn TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT,
		publisher TEXT,
		year_of_publication INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		id BIGINT DEFAULT nextval('ratings_id_seq'),
		user_id INTEGER NOT NULL,
		isbn TEXT NOT NULL,
		rating INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS recommended_books (
		user_id INTEGER NOT NULL,
		isbn TEXT NOT NULL,
		rank INTEGER NOT NULL,
		estimated_rating DOUBLE NOT NULL,
		model_version BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ratings_user ON ratings(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_recommended_user ON recommended_books(user_id)`,
}

func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, query := range schemaQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}
