package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces invocation hashes.
const DefaultRedisPrefix = "openapigw:invocations:"

// Redis keeps one hash per interface with a field per caller.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps client; an empty prefix selects DefaultRedisPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(interfaceID int64) string {
	return r.prefix + strconv.FormatInt(interfaceID, 10)
}

// RecordInvocation implements metering.Counter.
func (r *Redis) RecordInvocation(ctx context.Context, interfaceID, callerID int64) error {
	key := r.key(interfaceID)
	if err := r.client.HIncrBy(ctx, key, strconv.FormatInt(callerID, 10), 1).Err(); err != nil {
		return fmt.Errorf("redis hincrby %s: %w", key, err)
	}
	return nil
}

// Count returns the number of recorded invocations for the pair.
func (r *Redis) Count(ctx context.Context, interfaceID, callerID int64) (int64, error) {
	key := r.key(interfaceID)
	n, err := r.client.HGet(ctx, key, strconv.FormatInt(callerID, 10)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return n, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
