package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callvault/authcore/internal/rate"
)

// ErrAttemptStoreUnavailable wraps Redis failures surfaced by the attempt
// store. The limiter treats it as a fail-open signal, never a denial.
var ErrAttemptStoreUnavailable = errors.New("attempt store unavailable")

// RedisAttemptStore implements rate.Store on Redis. One JSON window per
// identifier under <p>:aw:<identifier>, with the retention TTL applied on
// every write.
type RedisAttemptStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisAttemptStore(client redis.UniversalClient, prefix string) *RedisAttemptStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisAttemptStore{redis: client, prefix: prefix}
}

func (s *RedisAttemptStore) key(identifier string) string {
	return s.prefix + ":aw:" + identifier
}

func (s *RedisAttemptStore) Get(ctx context.Context, identifier string) (rate.Window, bool, error) {
	data, err := s.redis.Get(ctx, s.key(identifier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rate.Window{}, false, nil
	}
	if err != nil {
		return rate.Window{}, false, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
	}

	var w rate.Window
	if err := json.Unmarshal(data, &w); err != nil {
		return rate.Window{}, false, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
	}
	return w, true, nil
}

func (s *RedisAttemptStore) Put(ctx context.Context, w rate.Window, ttl time.Duration) error {
	encoded, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
	}
	if err := s.redis.Set(ctx, s.key(w.Identifier), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
	}
	return nil
}

func (s *RedisAttemptStore) Delete(ctx context.Context, identifiers ...string) error {
	if len(identifiers) == 0 {
		return nil
	}
	keys := make([]string, len(identifiers))
	for i, id := range identifiers {
		keys[i] = s.key(id)
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
	}
	return nil
}

// PurgeExpired walks the window keyspace and deletes rows whose last activity
// predates olderThan. Redis TTLs already bound retention; the sweep exists so
// an operator-triggered purge reports what it removed.
func (s *RedisAttemptStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int, error) {
	var removed int

	iter := s.redis.Scan(ctx, 0, s.prefix+":aw:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
		}

		var w rate.Window
		if err := json.Unmarshal(data, &w); err != nil {
			// Unreadable row: remove it rather than let it linger forever.
			if err := s.redis.Del(ctx, key).Err(); err == nil {
				removed++
			}
			continue
		}

		last := w.LastAttempt
		if last.IsZero() {
			last = w.CreatedAt
		}
		if last.Before(olderThan) && !w.LockedUntil.After(olderThan) {
			if err := s.redis.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrAttemptStoreUnavailable, err)
	}
	return removed, nil
}
