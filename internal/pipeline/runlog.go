// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/shelfwise/internal/recommend"
)

const (
	lastRunKey     = "pipeline:run:last"
	lastSuccessKey = "pipeline:run:last_success"
)

// Run outcome values for RunStats.Status.
const (
	RunSucceeded = "success"
	RunFailed    = "failure"
)

// RunStats describes one pipeline run.
type RunStats struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`

	RowsLoaded  int64                 `json:"rows_loaded"`
	RowsSkipped int64                 `json:"rows_skipped"`
	Cleaning    recommend.CleanReport `json:"cleaning"`

	Algorithm    string  `json:"algorithm"`
	ModelVersion int64   `json:"model_version"`
	Users        int     `json:"users"`
	Items        int     `json:"items"`
	TrainRMSE    float64 `json:"train_rmse"`

	UsersRecommended       int `json:"users_recommended"`
	RecommendationsWritten int `json:"recommendations_written"`
	Published              int `json:"published"`

	// StageMillis holds the wall time of each completed stage.
	StageMillis map[string]int64 `json:"stage_ms"`
}

// Duration returns the run's wall time.
func (s *RunStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// RunLog persists the outcome of the most recent runs.
type RunLog interface {
	Save(ctx context.Context, stats *RunStats) error
	// Load returns the most recent run, or nil if none was saved.
	Load(ctx context.Context) (*RunStats, error)
	// LastSuccess returns the most recent successful run, or nil.
	LastSuccess(ctx context.Context) (*RunStats, error)
	Clear(ctx context.Context) error
}

// BadgerRunLog implements RunLog using BadgerDB.
type BadgerRunLog struct {
	db    *badger.DB
	owned bool
}

// OpenBadgerRunLog opens a BadgerDB at path, or an in-memory one when
// inMemory is set. Close releases it.
func OpenBadgerRunLog(path string, inMemory bool) (*BadgerRunLog, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger run log: %w", err)
	}
	return &BadgerRunLog{db: db, owned: true}, nil
}

// NewBadgerRunLog creates a run log on an already open BadgerDB.
func NewBadgerRunLog(db *badger.DB) *BadgerRunLog {
	return &BadgerRunLog{db: db}
}

// Save records stats as the last run, and as the last success when it
// succeeded.
func (l *BadgerRunLog) Save(_ context.Context, stats *RunStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(lastRunKey), data); err != nil {
			return err
		}
		if stats.Status == RunSucceeded {
			return txn.Set([]byte(lastSuccessKey), data)
		}
		return nil
	})
}

// Load retrieves the last saved run.
func (l *BadgerRunLog) Load(_ context.Context) (*RunStats, error) {
	return l.get(lastRunKey)
}

// LastSuccess retrieves the last successful run.
func (l *BadgerRunLog) LastSuccess(_ context.Context) (*RunStats, error) {
	return l.get(lastSuccessKey)
}

func (l *BadgerRunLog) get(key string) (*RunStats, error) {
	var stats *RunStats
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			stats = &RunStats{}
			return json.Unmarshal(val, stats)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load run stats: %w", err)
	}
	return stats, nil
}

// Clear removes both saved runs.
func (l *BadgerRunLog) Clear(_ context.Context) error {
	return l.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{lastRunKey, lastSuccessKey} {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

// Close closes the BadgerDB if the run log opened it.
func (l *BadgerRunLog) Close() error {
	if l.owned {
		return l.db.Close()
	}
	return nil
}

// InMemoryRunLog implements RunLog without persistence.
type InMemoryRunLog struct {
	mu          sync.Mutex
	last        *RunStats
	lastSuccess *RunStats
}

// NewInMemoryRunLog creates an empty in-memory run log.
func NewInMemoryRunLog() *InMemoryRunLog {
	return &InMemoryRunLog{}
}

// Save stores a copy of stats.
func (l *InMemoryRunLog) Save(_ context.Context, stats *RunStats) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := copyStats(stats)
	l.last = c
	if stats.Status == RunSucceeded {
		l.lastSuccess = c
	}
	return nil
}

// Load returns a copy of the last run.
func (l *InMemoryRunLog) Load(_ context.Context) (*RunStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyStats(l.last), nil
}

// LastSuccess returns a copy of the last successful run.
func (l *InMemoryRunLog) LastSuccess(_ context.Context) (*RunStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyStats(l.lastSuccess), nil
}

// Clear removes the stored runs.
func (l *InMemoryRunLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last, l.lastSuccess = nil, nil
	return nil
}

func copyStats(s *RunStats) *RunStats {
	if s == nil {
		return nil
	}
	c := *s
	c.StageMillis = maps.Clone(s.StageMillis)
	return &c
}
