// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package recommend turns a noisy book-rating dataset into personalized
// top-N book lists.
//
// # Pipeline
//
// Data flows strictly in one direction:
//
//	raw rows -> Clean -> BuildIndex -> Fit -> TrainedModel -> Recommend
//
// Clean applies the implicit-rating, publication-year, support and title-join
// filters. BuildIndex assigns dense indices to users and ISBNs in encounter
// order. Fit runs a Trainer (non-negative matrix factorization in production)
// and wraps the learned factors with the index and cold-start fallbacks.
// Recommend scores every unrated candidate and keeps the best N.
//
// # Models
//
// A TrainedModel is immutable once Fit returns. The Engine publishes models
// through an atomic pointer: a new model is fully built before it replaces
// the serving one, and a failed or timed-out fit leaves the serving model in
// place. Predict is safe for concurrent use without locks.
//
// # Cold start
//
// Predict never fails for unknown entities:
//
//   - known user, known ISBN: factor estimate
//   - unknown user, known ISBN: the ISBN's mean training rating
//   - unknown ISBN: the global mean training rating
//
// Every value is clipped to the rating scale.
//
// # Evaluation
//
// Evaluate runs k-fold cross-validation of several trainers over the same
// cleaned set and reports mean RMSE per trainer. A trainer that fails is
// reported as skipped with a note instead of aborting the sweep.
package recommend
