package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for recorded action results.
	resultKeyPrefix = "events:txn:"

	// DefaultTTL bounds how long a recorded result is replayable. Client
	// retry windows are far shorter; the TTL only caps storage growth.
	DefaultTTL = 7 * 24 * time.Hour
)

// Redis is the production result store shared across instances, so a retry
// landing on a different replica still replays the recorded response.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithTTL overrides the replay retention window.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *Redis) {
		s.ttl = ttl
	}
}

// NewRedis constructs a Redis-backed result store.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Redis) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	response, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get recorded result: %w", err)
	}
	return response, true, nil
}

func (s *Redis) Put(ctx context.Context, key Key, response []byte) error {
	if err := s.client.Set(ctx, redisKey(key), response, s.ttl).Err(); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func redisKey(key Key) string {
	return resultKeyPrefix + key.EventID + ":" + key.TransactionID
}
