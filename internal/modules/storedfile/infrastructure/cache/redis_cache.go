package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// noneMarker is stored for a lookup that found no derivation.
const noneMarker = "-"

// RedisDerivationCache shares derivation lookups between nodes. Each parent
// file owns one hash whose fields are derivation values.
type RedisDerivationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDerivationCache(client *redis.Client, ttl time.Duration) *RedisDerivationCache {
	return &RedisDerivationCache{client: client, ttl: ttl}
}

func derivationKey(parentID uuid.UUID) string {
	return "derivations:" + parentID.String()
}

func (c *RedisDerivationCache) Get(ctx context.Context, parentID uuid.UUID, derivationType int) (*uuid.UUID, bool, error) {
	val, err := c.client.HGet(ctx, derivationKey(parentID), strconv.Itoa(derivationType)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("derivation cache get: %w", err)
	}
	if val == noneMarker {
		return nil, true, nil
	}
	id, err := uuid.Parse(val)
	if err != nil {
		// unreadable entries are treated as a miss and overwritten later
		return nil, false, nil
	}
	return &id, true, nil
}

func (c *RedisDerivationCache) Set(ctx context.Context, parentID uuid.UUID, derivationType int, id *uuid.UUID) error {
	val := noneMarker
	if id != nil {
		val = id.String()
	}
	key := derivationKey(parentID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(derivationType), val)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("derivation cache set: %w", err)
	}
	return nil
}

func (c *RedisDerivationCache) Invalidate(ctx context.Context, parentID uuid.UUID) error {
	if err := c.client.Del(ctx, derivationKey(parentID)).Err(); err != nil {
		return fmt.Errorf("derivation cache invalidate: %w", err)
	}
	return nil
}
