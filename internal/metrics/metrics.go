// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package metrics exposes Prometheus instrumentation for the batch pipeline
// and the read API. Metrics are registered with the default registry and
// served by promhttp at /metrics in serve mode.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Loader Metrics
	LoaderRowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_loader_rows_loaded_total",
			Help: "Total number of source rows parsed successfully",
		},
		[]string{"file"},
	)

	LoaderRowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_loader_rows_skipped_total",
			Help: "Total number of malformed source rows skipped",
		},
		[]string{"file", "reason"},
	)

	// Cleaning Metrics
	CleaningRowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_cleaning_rows_dropped_total",
			Help: "Total number of ratings removed per cleaning step",
		},
		[]string{"step"}, // implicit, year, item_support, user_support, join
	)

	CleanedRatings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfwise_cleaned_ratings",
			Help: "Number of ratings in the latest cleaned set",
		},
	)

	// Training Metrics
	TrainingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfwise_training_duration_seconds",
			Help:    "Duration of model training in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 900, 1800},
		},
		[]string{"algorithm"},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_training_runs_total",
			Help: "Total number of training runs by outcome",
		},
		[]string{"algorithm", "status"}, // success, failure, timeout, empty
	)

	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfwise_model_version",
			Help: "Version of the serving model",
		},
	)

	ModelTrainRMSE = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfwise_model_train_rmse",
			Help: "Training RMSE of the serving model",
		},
	)

	ModelSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfwise_model_entities",
			Help: "Number of indexed users and items in the serving model",
		},
		[]string{"kind"}, // users, items
	)

	EvaluationRMSE = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfwise_evaluation_rmse",
			Help: "Mean cross-validated RMSE per algorithm from the latest evaluation",
		},
		[]string{"algorithm"},
	)

	// Pipeline Metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome and failing stage",
		},
		[]string{"status", "stage"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfwise_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"stage"},
	)

	PipelineLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfwise_pipeline_last_success_timestamp",
			Help: "Unix timestamp of the last successful pipeline run",
		},
	)

	RecommendationsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfwise_recommendations_written_total",
			Help: "Total number of recommendation rows written to the sink",
		},
	)

	// Publisher Metrics
	PublisherWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_publisher_writes_total",
			Help: "Total number of per-user recommendation lists published",
		},
		[]string{"status"},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfwise_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfwise_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfwise_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_http_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfwise_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfwise_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfwise_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordLoad records the outcome of loading one source file.
func RecordLoad(file string, loaded int64, skipped map[string]int64) {
	LoaderRowsLoaded.WithLabelValues(file).Add(float64(loaded))
	for reason, n := range skipped {
		LoaderRowsSkipped.WithLabelValues(file, reason).Add(float64(n))
	}
}

// RecordCleaning records the rows dropped by each cleaning step.
func RecordCleaning(dropped map[string]int, kept int) {
	for step, n := range dropped {
		CleaningRowsDropped.WithLabelValues(step).Add(float64(n))
	}
	CleanedRatings.Set(float64(kept))
}

// Training outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusTimeout = "timeout"
	StatusEmpty   = "empty"
)

// RecordTraining records a training attempt. status is one of the Status
// constants.
func RecordTraining(algorithm, status string, duration time.Duration) {
	TrainingDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
	TrainingRuns.WithLabelValues(algorithm, status).Inc()
}

// RecordModel updates the serving-model gauges.
func RecordModel(version int64, trainRMSE float64, users, items int) {
	ModelVersion.Set(float64(version))
	ModelTrainRMSE.Set(trainRMSE)
	ModelSize.WithLabelValues("users").Set(float64(users))
	ModelSize.WithLabelValues("items").Set(float64(items))
}

// RecordPipelineRun records a finished pipeline run. stage is the failing
// stage, or empty on success.
func RecordPipelineRun(status, stage string) {
	PipelineRuns.WithLabelValues(status, stage).Inc()
	if status == StatusSuccess {
		PipelineLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordStage records the duration of one pipeline stage.
func RecordStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}
