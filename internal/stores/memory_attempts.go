package stores

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/callvault/authcore/internal/rate"
)

// MemoryAttemptStore implements rate.Store on an in-process cache with
// per-entry TTLs, mirroring how the Redis backend uses key expiry for
// retention.
type MemoryAttemptStore struct {
	cache *gocache.Cache
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		cache: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

func (s *MemoryAttemptStore) Get(ctx context.Context, identifier string) (rate.Window, bool, error) {
	if err := ctx.Err(); err != nil {
		return rate.Window{}, false, err
	}

	v, found := s.cache.Get(identifier)
	if !found {
		return rate.Window{}, false, nil
	}
	return v.(rate.Window), true, nil
}

func (s *MemoryAttemptStore) Put(ctx context.Context, w rate.Window, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.cache.Set(w.Identifier, w, ttl)
	return nil
}

func (s *MemoryAttemptStore) Delete(ctx context.Context, identifiers ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, id := range identifiers {
		s.cache.Delete(id)
	}
	return nil
}

func (s *MemoryAttemptStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var removed int
	for key, item := range s.cache.Items() {
		w, ok := item.Object.(rate.Window)
		if !ok {
			s.cache.Delete(key)
			removed++
			continue
		}

		last := w.LastAttempt
		if last.IsZero() {
			last = w.CreatedAt
		}
		if last.Before(olderThan) && !w.LockedUntil.After(olderThan) {
			s.cache.Delete(key)
			removed++
		}
	}
	return removed, nil
}
