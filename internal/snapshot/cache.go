package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miradorstack/alert-beacon/internal/cache"
	"github.com/miradorstack/alert-beacon/internal/models"
)

// ErrNoSnapshot is returned when the cache holds no snapshot, for example after the
// aggregator stopped publishing and the key expired.
var ErrNoSnapshot = errors.New("no snapshot published")

// CacheSink stores each snapshot under a single key with a TTL.
type CacheSink struct {
	provider cache.Provider
	key      string
	ttl      time.Duration
}

// NewCacheSink writes to key on provider.
func NewCacheSink(provider cache.Provider, key string, ttl time.Duration) *CacheSink {
	return &CacheSink{provider: provider, key: key, ttl: ttl}
}

// Publish encodes and stores the snapshot.
func (s *CacheSink) Publish(ctx context.Context, snap models.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := s.provider.Set(ctx, s.key, data, s.ttl); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// CacheSource reads the snapshot written by a CacheSink.
type CacheSource struct {
	provider cache.Provider
	key      string
}

// NewCacheSource reads key from provider.
func NewCacheSource(provider cache.Provider, key string) *CacheSource {
	return &CacheSource{provider: provider, key: key}
}

// Fetch loads and decodes the cached snapshot.
func (s *CacheSource) Fetch(ctx context.Context) (models.Snapshot, error) {
	data, err := s.provider.Get(ctx, s.key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decode(data)
}
