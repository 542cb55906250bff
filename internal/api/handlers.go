// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/shelfwise/internal/cache"
	"github.com/tomtom215/shelfwise/internal/logging"
	"github.com/tomtom215/shelfwise/internal/pipeline"
	"github.com/tomtom215/shelfwise/internal/recommend"
	"github.com/tomtom215/shelfwise/internal/validation"
)

const (
	defaultMaxTopN = 100
	requestTimeout = 10 * time.Second
)

// Handler holds the route handlers.
type Handler struct {
	engine  Engine
	store   Store
	runner  Runner
	runLog  pipeline.RunLog
	baseCtx context.Context

	defaultTopN int
	maxTopN     int
	cache       *cache.LRU[recommendationKey, recommend.RecommendationResult]
	startTime   time.Time
}

// NewHandler creates a Handler from deps, applying defaults.
//
//nolint:gocritic // Dependencies is passed once at startup
func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		engine:      deps.Engine,
		store:       deps.Store,
		runner:      deps.Runner,
		runLog:      deps.RunLog,
		baseCtx:     deps.BaseContext,
		defaultTopN: deps.DefaultTopN,
		maxTopN:     deps.MaxTopN,
		startTime:   time.Now(),
	}
	if h.baseCtx == nil {
		h.baseCtx = context.Background()
	}
	if h.defaultTopN <= 0 {
		h.defaultTopN = 10
	}
	if h.maxTopN <= 0 {
		h.maxTopN = defaultMaxTopN
	}
	h.cache = newRecommendationCache(deps.CacheSize, deps.CacheTTL)
	return h
}

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status            string  `json:"status"`
	DatabaseConnected bool    `json:"database_connected"`
	ModelLoaded       bool    `json:"model_loaded"`
	ModelVersion      int64   `json:"model_version"`
	Training          bool    `json:"training"`
	Uptime            float64 `json:"uptime_seconds"`
}

// Health reports database connectivity and whether a model is serving.
// Status is "healthy" only when both hold.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store != nil && h.store.Ping(r.Context()) == nil

	status := HealthStatus{
		DatabaseConnected: dbConnected,
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if model := h.engine.Current(); model != nil {
		status.ModelLoaded = true
		status.ModelVersion = model.Version
	}
	status.Training = h.engine.Status().IsTraining

	status.Status = "healthy"
	if !dbConnected || !status.ModelLoaded {
		status.Status = "degraded"
	}

	respondJSON(w, r, http.StatusOK, status, nil)
}

// ModelInfo is the /api/v1/model payload.
type ModelInfo struct {
	recommend.TrainingStatus
	LastRun     *pipeline.RunStats `json:"last_run,omitempty"`
	LastSuccess *pipeline.RunStats `json:"last_success,omitempty"`
}

// Model returns the training status and the most recent runs.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	info := ModelInfo{TrainingStatus: h.engine.Status()}

	if h.runLog != nil {
		var err error
		if info.LastRun, err = h.runLog.Load(r.Context()); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read run log", err)
			return
		}
		if info.LastSuccess, err = h.runLog.LastSuccess(r.Context()); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read run log", err)
			return
		}
	}

	respondJSON(w, r, http.StatusOK, info, nil)
}

// RecommendationsRequest holds the validated path and query parameters.
type RecommendationsRequest struct {
	UserID int `validate:"gte=0"`
	N      int `validate:"min=1"`
}

// Recommendations handles GET /api/v1/users/{userID}/recommendations?n=.
// Books the user rated in the rating store are excluded. Unknown users get
// the cold-start ranking.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "userID must be an integer", nil)
		return
	}
	n := h.defaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "n must be an integer", nil)
			return
		}
	}

	req := RecommendationsRequest{UserID: userID, N: n}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, r, verr.Error(), nil)
		return
	}
	if req.N > h.maxTopN {
		respondValidationError(w, r, "N must be at most "+strconv.Itoa(h.maxTopN), nil)
		return
	}

	model := h.engine.Current()
	if model == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeModelNotTrained, "No model has been trained yet", nil)
		return
	}

	key := recommendationKey{version: model.Version, userID: req.UserID, n: req.N}
	if result, ok := h.cache.Get(key); ok {
		respondJSON(w, r, http.StatusOK, result, &APIMeta{
			Cached:     true,
			DurationMs: time.Since(start).Milliseconds(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var rated map[string]struct{}
	if h.store != nil {
		if rated, err = h.store.RatedISBNs(ctx, req.UserID); err != nil {
			respondError(w, r, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to read user ratings", err)
			return
		}
	}

	result, err := h.engine.Recommend(ctx, req.UserID, rated, req.N)
	if errors.Is(err, recommend.ErrModelNotTrained) {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeModelNotTrained, "No model has been trained yet", nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to generate recommendations", err)
		return
	}

	h.cache.Add(recommendationKey{version: result.ModelVersion, userID: req.UserID, n: req.N}, result)
	respondJSON(w, r, http.StatusOK, result, &APIMeta{DurationMs: time.Since(start).Milliseconds()})
}

// TrainResponse is the /api/v1/train payload.
type TrainResponse struct {
	Status string `json:"status"`
}

// Train starts a pipeline run in the background and returns 202. It returns
// 409 while a run or a fit is already in progress.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Training is not enabled", nil)
		return
	}
	if h.runner.Running() || h.engine.Status().IsTraining {
		respondError(w, r, http.StatusConflict, ErrCodeConflict, "Training already in progress", nil)
		return
	}

	go func() {
		stats, err := h.runner.Run(h.baseCtx)
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return
		}
		logger := logging.Ctx(h.baseCtx)
		if err != nil {
			logger.Error().Err(err).Str("stage", string(recommend.StageOf(err))).Msg("manual pipeline run failed")
			return
		}
		logger.Info().Str("run_id", stats.RunID).Int64("model_version", stats.ModelVersion).Msg("manual pipeline run complete")
	}()

	respondJSON(w, r, http.StatusAccepted, TrainResponse{Status: "started"}, nil)
}
