// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisPublisher_Key(t *testing.T) {
	p := NewRedisPublisher(unreachableClient(t), config.RedisConfig{KeyPrefix: "shelfwise", WritesPerSecond: 10}, zerolog.Nop())
	if got := p.Key(276725); got != "shelfwise:recs:276725" {
		t.Errorf("Key() = %q, want shelfwise:recs:276725", got)
	}
}

func TestRedisPublisher_BatchSize(t *testing.T) {
	tests := []struct {
		perSecond int
		want      int
	}{
		{500, publishBatchSize},
		{20, 20},
		{0, publishBatchSize},
	}
	for _, tt := range tests {
		p := NewRedisPublisher(unreachableClient(t), config.RedisConfig{WritesPerSecond: tt.perSecond}, zerolog.Nop())
		if p.batch != tt.want {
			t.Errorf("batch for %d/s = %d, want %d", tt.perSecond, p.batch, tt.want)
		}
	}
}

func TestRedisPublisher_Empty(t *testing.T) {
	p := NewRedisPublisher(unreachableClient(t), config.RedisConfig{WritesPerSecond: 10}, zerolog.Nop())
	n, err := p.Publish(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("Publish(nil) = %d, %v, want 0, nil", n, err)
	}
}

func TestStaleKeys(t *testing.T) {
	keep := map[string]struct{}{"p:recs:1": {}, "p:recs:2": {}}

	tests := []struct {
		name string
		keys []string
		want []string
	}{
		{name: "none stale", keys: []string{"p:recs:1", "p:recs:2"}, want: nil},
		{name: "dropped user", keys: []string{"p:recs:1", "p:recs:9", "p:recs:2"}, want: []string{"p:recs:9"}},
		{name: "empty page", keys: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := staleKeys(tt.keys, keep)
			if len(got) != len(tt.want) {
				t.Fatalf("staleKeys() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("staleKeys()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRedisPublisher_BreakerOpensOnFailures(t *testing.T) {
	p := NewRedisPublisher(unreachableClient(t), config.RedisConfig{
		KeyPrefix:       "test",
		TTL:             time.Minute,
		WritesPerSecond: 1000,
	}, zerolog.Nop())

	results := []recommend.RecommendationResult{
		{UserID: 1, Items: []recommend.ScoredBook{{ISBN: "A", Score: 8}}},
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := p.Publish(ctx, results)
		if err == nil {
			t.Fatalf("Publish() attempt %d error = nil, want connection error", i)
		}
		if n != 0 {
			t.Errorf("Publish() = %d, want 0", n)
		}
	}

	_, err := p.Publish(ctx, results)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Publish() after 3 failures error = %v, want ErrOpenState", err)
	}
}

func TestRedisPublisher_CancelledContext(t *testing.T) {
	p := NewRedisPublisher(unreachableClient(t), config.RedisConfig{WritesPerSecond: 1}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := []recommend.RecommendationResult{{UserID: 1}, {UserID: 2}}
	if _, err := p.Publish(ctx, results); err == nil {
		t.Error("Publish() with cancelled context error = nil, want error")
	}
}
