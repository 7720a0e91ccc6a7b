package quota

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ClientSource yields the Redis client to use for the next call. A holder
// that reconnects behind the scenes satisfies this.
type ClientSource interface {
	Get() redis.UniversalClient
}

// RedisStore keeps anonymous usage counts in Redis, letting several
// instances share one ledger. Swapping it in is a config change; the
// executor never sees the difference.
type RedisStore struct {
	clients   ClientSource
	namespace string
}

func NewRedisStore(namespace string, clients ClientSource) *RedisStore {
	return &RedisStore{clients: clients, namespace: namespace}
}

func (s *RedisStore) key(k string) string { return s.namespace + ":" + k }

func (s *RedisStore) Get(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	n, err := s.clients.Get().Get(ctx, s.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	n, err := s.clients.Get().Incr(ctx, s.key(key)).Result()
	return int(n), err
}
