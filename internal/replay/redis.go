package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNoncePrefix namespaces nonce keys.
const DefaultNoncePrefix = "openapigw:nonce:"

// RedisNonceStore records nonces with SET NX so that each (accessKey, nonce)
// pair is accepted once per ttl across all gateway instances.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisNonceStore wraps client; an empty prefix selects DefaultNoncePrefix.
func NewRedisNonceStore(client redis.UniversalClient, prefix string) *RedisNonceStore {
	if prefix == "" {
		prefix = DefaultNoncePrefix
	}
	return &RedisNonceStore{client: client, prefix: prefix}
}

// Remember implements NonceStore.
func (s *RedisNonceStore) Remember(ctx context.Context, accessKey, nonce string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := s.prefix + accessKey + ":" + nonce
	ok, err := s.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}
