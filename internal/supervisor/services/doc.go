// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package services adapts Shelfwise components to suture.Service.
//
// Each service blocks in Serve until its context is canceled and returns a
// non-nil error only when it should be restarted. String names the service
// in supervisor logs.
package services
