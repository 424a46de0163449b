package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

type memoryEntry struct {
	values  map[int]*uuid.UUID
	expires time.Time
}

// MemoryDerivationCache is a process-local cache, used when Redis is not
// configured and in tests.
type MemoryDerivationCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*memoryEntry
	ttl     time.Duration
	clock   domain.Clock
}

func NewMemoryDerivationCache(ttl time.Duration, clock domain.Clock) *MemoryDerivationCache {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &MemoryDerivationCache{entries: make(map[uuid.UUID]*memoryEntry), ttl: ttl, clock: clock}
}

func (c *MemoryDerivationCache) Get(_ context.Context, parentID uuid.UUID, derivationType int) (*uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[parentID]
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && !c.clock.Now().Before(e.expires) {
		delete(c.entries, parentID)
		return nil, false, nil
	}
	id, found := e.values[derivationType]
	if !found {
		return nil, false, nil
	}
	if id == nil {
		return nil, true, nil
	}
	cp := *id
	return &cp, true, nil
}

func (c *MemoryDerivationCache) Set(_ context.Context, parentID uuid.UUID, derivationType int, id *uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[parentID]
	if !ok {
		e = &memoryEntry{values: make(map[int]*uuid.UUID)}
		c.entries[parentID] = e
	}
	if id != nil {
		cp := *id
		id = &cp
	}
	e.values[derivationType] = id
	e.expires = c.clock.Now().Add(c.ttl)
	return nil
}

func (c *MemoryDerivationCache) Invalidate(_ context.Context, parentID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, parentID)
	return nil
}
