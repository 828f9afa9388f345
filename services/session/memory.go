package session

import (
	"context"
	"fmt"
	"time"

	"tailortalk/models"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process. Expiry is driven by ExpireStale, not
// by the cache janitor.
type MemoryStore struct {
	cache *cache.Cache
	locks *lockTable
	opts  Options
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, 0),
		locks: newLockTable(),
		opts:  opts,
	}
}

func (m *MemoryStore) Create(ctx context.Context) (*models.Session, error) {
	s := models.NewSession(newSessionID(), m.opts.now(), m.opts.TTL)
	if err := m.cache.Add(s.ID, s.Clone(), cache.NoExpiration); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	x, found := m.cache.Get(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return x.(*models.Session).Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *models.Session) error {
	m.cache.Set(s.ID, s.Clone(), cache.NoExpiration)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

func (m *MemoryStore) ExpireStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	removed := 0
	for id, item := range m.cache.Items() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		s, ok := item.Object.(*models.Session)
		if !ok || !s.Expired(now, ttl) {
			continue
		}
		unlock, ok := m.locks.tryAcquire(id)
		if !ok {
			continue
		}
		// Re-read under the lock; a turn may have refreshed it.
		if x, found := m.cache.Get(id); found && x.(*models.Session).Expired(now, ttl) {
			m.cache.Delete(id)
			removed++
		}
		unlock()
	}
	return removed, nil
}

func (m *MemoryStore) Lock(ctx context.Context, id string) (func(), error) {
	return m.locks.acquire(ctx, id)
}

// Len reports the number of stored sessions.
func (m *MemoryStore) Len() int {
	return m.cache.ItemCount()
}
