// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package algorithms implements the rating trainers used by the recommender.
//
// Every trainer implements recommend.Trainer and returns a recommend.Factors
// parameter set:
//
//   - NMF: non-negative matrix factorization fit with regularized
//     multiplicative updates (the production trainer)
//   - SVD: biased matrix factorization fit with stochastic gradient descent
//   - Baseline: user and item biases only, fit with alternating least squares
//
// # Determinism
//
// Trainers hold configuration only. Fit allocates fresh parameters on every
// call from a generator seeded with the configured seed, so identical input
// produces identical factors and Fit is safe to call concurrently.
//
// # Early stopping
//
// NMF and SVD can stop on a validation plateau: a seeded fraction of the
// triples is held out, training stops once holdout RMSE has not improved for
// Patience epochs, and the final model is refit on all triples for the best
// epoch count.
//
// # Usage
//
//	trainer, err := algorithms.NewTrainer("nmf", algorithms.Params{
//	    Factors:        15,
//	    Iterations:     50,
//	    Regularization: 0.06,
//	    Seed:           42,
//	})
//	model, err := recommend.Fit(ctx, trainer, cleaned, trainingCfg)
package algorithms
