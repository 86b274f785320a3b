package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps recovery records in Redis without expiry. A record lives
// until the session submits or exits; abandoned records are bounded by the
// assessment duration and cheap enough to keep.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a RedisStore backed by the given client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Read(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Write(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (s *RedisStore) Erase(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("erase record: %w", err)
	}
	return nil
}
