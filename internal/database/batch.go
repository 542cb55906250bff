// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// insertBatchSize is the number of rows per multi-row INSERT.
const insertBatchSize = 500

// insertBatched inserts n rows into table using multi-row VALUES statements.
// args returns the column values of row i in column order.
func insertBatched(ctx context.Context, tx *sql.Tx, table string, columns []string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}

	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	var fullStmt *sql.Stmt
	defer func() {
		if fullStmt != nil {
			closeQuietly(fullStmt)
		}
	}()

	values := make([]any, 0, insertBatchSize*len(columns))
	for start := 0; start < n; start += insertBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+insertBatchSize, n)

		values = values[:0]
		for i := start; i < end; i++ {
			values = append(values, args(i)...)
		}

		rows := end - start
		if rows == insertBatchSize {
			if fullStmt == nil {
				query := prefix + strings.TrimSuffix(strings.Repeat(rowPlaceholder+", ", rows), ", ")
				stmt, err := tx.PrepareContext(ctx, query)
				if err != nil {
					return fmt.Errorf("failed to prepare %s insert: %w", table, err)
				}
				fullStmt = stmt
			}
			if _, err := fullStmt.ExecContext(ctx, values...); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", table, err)
			}
			continue
		}

		query := prefix + strings.TrimSuffix(strings.Repeat(rowPlaceholder+", ", rows), ", ")
		if _, err := tx.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}
