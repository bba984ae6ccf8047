package framestore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps frames in process memory using go-cache. Frames expire
// after the configured TTL, or never when the TTL is zero.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore creates an in-memory frame store.
//
// Parameters:
//   - ttl: How long a frame is kept after its last update; 0 keeps frames forever
//   - cleanupInterval: How often expired frames are purged; 0 disables the janitor
//
// Returns:
//   - A new MemoryStore
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	return &MemoryStore{cache: cache.New(ttl, cleanupInterval)}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, clientID string, blob string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.cache.Set(clientID, blob, cache.DefaultExpiration)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, clientID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	v, found := s.cache.Get(clientID)
	if !found {
		return "", ErrNotFound
	}

	blob, ok := v.(string)
	if !ok {
		return "", ErrNotFound
	}

	return blob, nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, clientID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, found := s.cache.Get(clientID)
	return found, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.cache.Delete(clientID)
	return nil
}

// Len implements Store. Expired frames not yet purged are not counted.
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return len(s.cache.Items()), nil
}
