// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// publishBatchSize is the maximum number of users per Redis pipeline.
const publishBatchSize = 100

// staleScanCount is the SCAN page size hint used when removing old lists.
const staleScanCount = 500

const publisherBreakerName = "redis-publisher"

// Publisher pushes finished recommendation lists to a secondary store.
type Publisher interface {
	Publish(ctx context.Context, results []recommend.RecommendationResult) (int, error)
}

// RedisPublisher writes each user's list as JSON under
// {prefix}:recs:{user_id} with a TTL. Writes are pipelined in batches,
// paced by a token bucket and guarded by a circuit breaker.
type RedisPublisher struct {
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	batch   int
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[interface{}]
	logger  zerolog.Logger
}

// NewRedisPublisher creates a publisher on client.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRedisPublisher(client redis.Cmdable, cfg config.RedisConfig, logger zerolog.Logger) *RedisPublisher {
	perSecond := cfg.WritesPerSecond
	if perSecond <= 0 {
		perSecond = 500
	}
	logger = logger.With().Str("component", "publisher").Logger()

	metrics.CircuitBreakerState.WithLabelValues(publisherBreakerName).Set(0)
	breaker := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        publisherBreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &RedisPublisher{
		client:  client,
		prefix:  cfg.KeyPrefix,
		ttl:     cfg.TTL,
		batch:   min(publishBatchSize, perSecond),
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		breaker: breaker,
		logger:  logger,
	}
}

// Key returns the Redis key for userID.
func (p *RedisPublisher) Key(userID int) string {
	return p.prefix + ":recs:" + strconv.Itoa(userID)
}

// Publish writes results and returns the number of users published. It
// stops at the first failed batch; lists already written stay in place
// until their TTL expires. Once every batch is written, lists of users
// missing from results are deleted so the published set replaces the
// previous one.
func (p *RedisPublisher) Publish(ctx context.Context, results []recommend.RecommendationResult) (int, error) {
	published := 0
	for start := 0; start < len(results); start += p.batch {
		end := min(start+p.batch, len(results))
		chunk := results[start:end]

		if err := p.limiter.WaitN(ctx, len(chunk)); err != nil {
			return published, fmt.Errorf("rate limiter: %w", err)
		}

		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, p.writeBatch(ctx, chunk)
		})
		if err != nil {
			status := "failure"
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				status = "rejected"
			}
			metrics.PublisherWrites.WithLabelValues(status).Add(float64(len(chunk)))
			return published, fmt.Errorf("publish batch at %d: %w", start, err)
		}
		metrics.PublisherWrites.WithLabelValues("success").Add(float64(len(chunk)))
		published += len(chunk)
	}

	removed := 0
	if len(results) > 0 {
		var err error
		if removed, err = p.removeStale(ctx, results); err != nil {
			return published, fmt.Errorf("remove stale lists: %w", err)
		}
	}

	p.logger.Debug().Int("users", published).Int("stale_removed", removed).Msg("published recommendations")
	return published, nil
}

// removeStale deletes every {prefix}:recs:* key not written for results.
func (p *RedisPublisher) removeStale(ctx context.Context, results []recommend.RecommendationResult) (int, error) {
	keep := make(map[string]struct{}, len(results))
	for i := range results {
		keep[p.Key(results[i].UserID)] = struct{}{}
	}

	removed := 0
	var cursor uint64
	for {
		keys, next, err := p.client.Scan(ctx, cursor, p.prefix+":recs:*", staleScanCount).Result()
		if err != nil {
			return removed, err
		}
		if stale := staleKeys(keys, keep); len(stale) > 0 {
			n, err := p.client.Del(ctx, stale...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		if cursor = next; cursor == 0 {
			return removed, nil
		}
	}
}

func staleKeys(keys []string, keep map[string]struct{}) []string {
	var stale []string
	for _, k := range keys {
		if _, ok := keep[k]; !ok {
			stale = append(stale, k)
		}
	}
	return stale
}

func (p *RedisPublisher) writeBatch(ctx context.Context, chunk []recommend.RecommendationResult) error {
	pipe := p.client.Pipeline()
	for i := range chunk {
		data, err := json.Marshal(&chunk[i])
		if err != nil {
			return fmt.Errorf("marshal recommendations for user %d: %w", chunk[i].UserID, err)
		}
		pipe.Set(ctx, p.Key(chunk[i].UserID), data, p.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
