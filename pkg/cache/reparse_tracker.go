package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReparseTracker marks sources with a re-parse request in flight so that
// concurrent uploads of the same source can be detected across instances.
// Key format: "bookreader:reparse:{sourceID}", value is the holding request id.
type ReparseTracker struct {
	client *RedisClient
	ttl    time.Duration
}

// NewReparseTracker creates a tracker whose claims expire after ttl, so a
// crashed holder never blocks a source forever.
func NewReparseTracker(r *RedisClient, ttl time.Duration) *ReparseTracker {
	return &ReparseTracker{client: r, ttl: ttl}
}

// Begin claims sourceID for requestID and returns the request id holding the
// claim afterwards. A result other than requestID means another request
// already holds the source.
func (t *ReparseTracker) Begin(ctx context.Context, sourceID, requestID string) (string, error) {
	key := t.key(sourceID)
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := t.client.Client().SetNX(ctx, key, requestID, t.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("reparse begin: %w", err)
		}
		if ok {
			return requestID, nil
		}

		holder, err := t.client.Client().Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// released between SETNX and GET
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reparse holder: %w", err)
		}
		return holder, nil
	}
	return "", fmt.Errorf("reparse begin: claim on %s keeps changing hands", sourceID)
}

// Finish releases the claim on sourceID.
func (t *ReparseTracker) Finish(ctx context.Context, sourceID string) error {
	if err := t.client.Client().Del(ctx, t.key(sourceID)).Err(); err != nil {
		return fmt.Errorf("reparse finish: %w", err)
	}
	return nil
}

func (t *ReparseTracker) key(sourceID string) string {
	return Key("reparse", sourceID)
}
