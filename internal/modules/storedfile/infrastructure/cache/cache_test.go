package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

var (
	_ domain.DerivationCache = (*MemoryDerivationCache)(nil)
	_ domain.DerivationCache = (*RedisDerivationCache)(nil)
)

func TestMemoryDerivationCache(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryDerivationCache(time.Minute, clock)
	ctx := context.Background()
	parent := uuid.New()
	derived := uuid.New()

	_, found, err := c.Get(ctx, parent, 0)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, parent, 0, &derived))
	require.NoError(t, c.Set(ctx, parent, 1, nil))

	id, found, err := c.Get(ctx, parent, 0)
	require.NoError(t, err)
	assert.True(t, found)
	require.NotNil(t, id)
	assert.Equal(t, derived, *id)

	id, found, err = c.Get(ctx, parent, 1)
	require.NoError(t, err)
	assert.True(t, found, "negative answers are remembered")
	assert.Nil(t, id)

	_, found, _ = c.Get(ctx, parent, 2)
	assert.False(t, found)

	require.NoError(t, c.Invalidate(ctx, parent))
	_, found, _ = c.Get(ctx, parent, 0)
	assert.False(t, found)
}

func TestMemoryDerivationCache_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryDerivationCache(time.Minute, clock)
	ctx := context.Background()
	parent := uuid.New()

	require.NoError(t, c.Set(ctx, parent, 0, nil))
	clock.now = clock.now.Add(59 * time.Second)
	_, found, _ := c.Get(ctx, parent, 0)
	assert.True(t, found)

	clock.now = clock.now.Add(time.Second)
	_, found, _ = c.Get(ctx, parent, 0)
	assert.False(t, found)
}

func TestRedisDerivationCache_Key(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, "derivations:6ba7b810-9dad-11d1-80b4-00c04fd430c8", derivationKey(id))
}

func TestRedisDerivationCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer client.Close()
	c := NewRedisDerivationCache(client, time.Minute)
	ctx := context.Background()
	parent := uuid.New()

	_, found, err := c.Get(ctx, parent, 0)
	assert.Error(t, err)
	assert.False(t, found)
	assert.Error(t, c.Set(ctx, parent, 0, nil))
	assert.Error(t, c.Invalidate(ctx, parent))
}
