// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/shelfwise/internal/cache"
	"github.com/tomtom215/shelfwise/internal/pipeline"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// Engine is the serving side of recommend.Engine.
type Engine interface {
	Current() *recommend.TrainedModel
	Status() recommend.TrainingStatus
	Recommend(ctx context.Context, userID int, rated map[string]struct{}, topN int) (recommend.RecommendationResult, error)
}

// Store answers database questions for the handlers. *database.DB
// satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	RatedISBNs(ctx context.Context, userID int) (map[string]struct{}, error)
}

// Runner starts a pipeline run. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context) (*pipeline.RunStats, error)
	Running() bool
}

// Dependencies wires the router. Engine is required; Store, Runner and
// RunLog are optional and their routes degrade without them.
type Dependencies struct {
	Engine Engine
	Store  Store
	Runner Runner
	RunLog pipeline.RunLog

	// BaseContext parents background runs started by POST /api/v1/train.
	// Default: context.Background()
	BaseContext context.Context

	DefaultTopN int
	MaxTopN     int
	CacheSize   int
	CacheTTL    time.Duration

	Middleware *MiddlewareConfig
}

// NewRouter builds the HTTP handler.
//
//nolint:gocritic // Dependencies is passed once at startup
func NewRouter(deps Dependencies) http.Handler {
	h := NewHandler(deps)
	mw := NewMiddleware(deps.Middleware)

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(PrometheusMetrics)
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Get("/model", h.Model)
		r.Get("/users/{userID}/recommendations", h.Recommendations)
		r.Post("/train", h.Train)
	})

	return r
}

// recommendationKey identifies a cached list. Version changes with every
// published model.
type recommendationKey struct {
	version int64
	userID  int
	n       int
}

func newRecommendationCache(size int, ttl time.Duration) *cache.LRU[recommendationKey, recommend.RecommendationResult] {
	return cache.New[recommendationKey, recommend.RecommendationResult]("recommendations", size, ttl)
}
