package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Storage struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewStorage(client redis.UniversalClient, prefix string) *Storage {
	return &Storage{
		rdb:    client,
		prefix: prefix,
	}
}

func InitStorage(ctx context.Context, options *redis.Options, prefix string) (*Storage, error) {
	const op = "storage.redis.InitStorage"

	redisClient := redis.NewClient(options)

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		_ = redisClient.Close()
		return nil, errors.Wrap(err, op)
	}

	return NewStorage(redisClient, prefix), nil
}

// Client exposes the underlying connection for components sharing it,
// such as the rate limiter store.
func (s *Storage) Client() redis.UniversalClient {
	return s.rdb
}

func (s *Storage) key(key string) string {
	return s.prefix + key
}

// Get reports found=false for a missing or expired key.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const op = "storage.redis.Get"

	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		slog.Debug("cache miss", "key", key)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, op)
	}

	slog.Debug("cache hit", "key", key)

	return val, true, nil
}

func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const op = "storage.redis.Set"

	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return errors.Wrap(err, op)
	}

	slog.Debug("cache set", "key", key, "ttl", ttl)

	return nil
}

func (s *Storage) Close() error {
	return s.rdb.Close()
}
