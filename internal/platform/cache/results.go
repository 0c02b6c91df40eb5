package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Results stores JSON-encoded analytics results per user. Every key embeds
// the user's current generation number, so Invalidate retires all of a
// user's entries with one INCR and stale entries simply expire.
type Results struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResults returns a result cache under prefix. A non-positive ttl
// defaults to ten minutes.
func NewResults(c *Cache, prefix string, ttl time.Duration) *Results {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Results{client: c.Client, prefix: prefix, ttl: ttl}
}

func (r *Results) generationKey(userID string) string {
	return fmt.Sprintf("%s:gen:%s", r.prefix, userID)
}

func resultKey(prefix, userID string, gen int64, key string) string {
	return fmt.Sprintf("%s:%s:%d:%s", prefix, userID, gen, key)
}

func (r *Results) generation(ctx context.Context, userID string) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read generation: %w", err)
	}
	return gen, nil
}

// Get decodes the cached value for key into dst. It reports false on a miss.
func (r *Results) Get(ctx context.Context, userID, key string, dst any) (bool, error) {
	gen, err := r.generation(ctx, userID)
	if err != nil {
		return false, err
	}
	data, err := r.client.Get(ctx, resultKey(r.prefix, userID, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read result %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode result %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key for the user's current generation.
func (r *Results) Set(ctx context.Context, userID, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", key, err)
	}
	gen, err := r.generation(ctx, userID)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, resultKey(r.prefix, userID, gen, key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("write result %s: %w", key, err)
	}
	return nil
}

// Invalidate retires every cached result of the user.
func (r *Results) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.Incr(ctx, r.generationKey(userID)).Err(); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	return nil
}
