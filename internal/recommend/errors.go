// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package recommend

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable means a required input could not be read at all.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRow marks a single unparsable row. Loaders count and skip
	// these; they never abort a load.
	ErrMalformedRow = errors.New("malformed row")

	// ErrEmptyTrainingSet means cleaning left nothing to train on.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrTrainingFailure means the solver diverged or returned an error.
	ErrTrainingFailure = errors.New("training failure")

	// ErrTrainingTimeout means the fit exceeded the configured wall clock.
	ErrTrainingTimeout = errors.New("training timeout")

	// ErrModelNotTrained means a prediction was requested before any model
	// was published.
	ErrModelNotTrained = errors.New("model not trained")

	// ErrTrainingInProgress means another fit holds the training lock.
	ErrTrainingInProgress = errors.New("training already in progress")
)

// Stage names a pipeline step for error reporting.
type Stage string

// Pipeline stages in execution order.
const (
	StageLoad      Stage = "load"
	StageClean     Stage = "clean"
	StageIndex     Stage = "index"
	StageTrain     Stage = "train"
	StageRecommend Stage = "recommend"
	StageSink      Stage = "sink"
)

// StageError tags the first fatal error of a run with the stage that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with stage. A nil err yields nil.
func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or "" if none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
