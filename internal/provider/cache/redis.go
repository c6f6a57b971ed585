package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shippingquote/internal/provider"
)

// RedisClient is the subset of redis.Cmdable the store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps quotes as JSON values with a Redis TTL, so several
// instances share one cache.
type RedisStore struct {
	client RedisClient
}

func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient opens a client for addr. The connection is established lazily.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]provider.Quote, bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var quotes []provider.Quote
	if err := json.Unmarshal(b, &quotes); err != nil {
		return nil, false, fmt.Errorf("decoding cached quotes: %w", err)
	}
	return quotes, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, quotes []provider.Quote, ttl time.Duration) error {
	b, err := json.Marshal(quotes)
	if err != nil {
		return fmt.Errorf("encoding quotes: %w", err)
	}
	if err := s.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
