package signals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/gridready/core/logger"
	"github.com/kilianp07/gridready/core/model"
)

// Cache stores the last good snapshot per plant so a temporarily failing
// feed can be bridged.
type Cache interface {
	Load(ctx context.Context, plantID string) (model.PlantSignals, bool, error)
	Store(ctx context.Context, s model.PlantSignals) error
}

type cached struct {
	snapshot model.PlantSignals
	expires  time.Time
}

// MemoryCache is an in-process Cache with a fixed time to live.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cached
}

// NewMemoryCache creates a cache whose entries expire after ttl. A zero ttl
// keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]cached)}
}

func (c *MemoryCache) Load(_ context.Context, plantID string) (model.PlantSignals, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[plantID]
	if !ok {
		return model.PlantSignals{}, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, plantID)
		return model.PlantSignals{}, false, nil
	}
	return e.snapshot, true, nil
}

func (c *MemoryCache) Store(_ context.Context, s model.PlantSignals) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := cached{snapshot: s}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[s.PlantID] = e
	return nil
}

// CachingSource wraps a primary Source and falls back to the cache when the
// primary fails.
type CachingSource struct {
	primary Source
	cache   Cache
	log     logger.Logger
}

// NewCachingSource combines primary and cache. A nil logger disables logging.
func NewCachingSource(primary Source, cache Cache, log logger.Logger) *CachingSource {
	return &CachingSource{primary: primary, cache: cache, log: logger.OrNop(log)}
}

func (s *CachingSource) Latest(ctx context.Context, plant model.Plant) (model.PlantSignals, error) {
	snap, err := s.primary.Latest(ctx, plant)
	if err == nil {
		if cerr := s.cache.Store(ctx, snap); cerr != nil {
			s.log.Warnf("signal cache store for %s: %v", plant.ID, cerr)
		}
		return snap, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.PlantSignals{}, err
	}
	cachedSnap, ok, cerr := s.cache.Load(ctx, plant.ID)
	if cerr != nil {
		s.log.Warnf("signal cache load for %s: %v", plant.ID, cerr)
	}
	if ok {
		s.log.Warnf("signal feed for %s failing, using cached snapshot: %v", plant.ID, err)
		return cachedSnap, nil
	}
	if errors.Is(err, ErrUnavailable) {
		return model.PlantSignals{}, err
	}
	return model.PlantSignals{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
}
