package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tailortalk/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionKeyPrefix = "booking:session:"
	lockKeyPrefix    = "booking:lock:"
)

// lockLease bounds how long a crashed turn can keep a session locked.
const lockLease = 30 * time.Second

const lockPollInterval = 25 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisStore keeps sessions as JSON blobs and locks them with SETNX leases so
// several processes can share one store.
type RedisStore struct {
	client *redis.Client
	opts   Options
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts, logger: opts.logger()}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
func lockKey(id string) string    { return lockKeyPrefix + id }

// keyTTL keeps the blob around past the logical TTL so a late turn is told the
// session expired instead of that it never existed.
func (s *RedisStore) keyTTL() time.Duration {
	if s.opts.TTL <= 0 {
		return 0
	}
	return 2 * s.opts.TTL
}

func (s *RedisStore) Create(ctx context.Context) (*models.Session, error) {
	sess := models.NewSession(newSessionID(), s.opts.now(), s.opts.TTL)
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, sessionKey(sess.ID), b, s.keyTTL()).Result()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("create session: id collision %s", sess.ID)
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *models.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(sess.ID), b, s.keyTTL()).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}

func (s *RedisStore) ExpireStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(sessionKeyPrefix):]
		sess, err := s.Get(ctx, id)
		if err != nil || !sess.Expired(now, ttl) {
			continue
		}
		unlock, ok, err := s.tryLock(ctx, id)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		if fresh, err := s.Get(ctx, id); err == nil && fresh.Expired(now, ttl) {
			if err := s.Delete(ctx, id); err != nil {
				unlock()
				return removed, err
			}
			removed++
		}
		unlock()
	}
	return removed, iter.Err()
}

func (s *RedisStore) Lock(ctx context.Context, id string) (func(), error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		unlock, ok, err := s.tryLock(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
			}
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
		case <-ticker.C:
		}
	}
}

func (s *RedisStore) tryLock(ctx context.Context, id string) (func(), bool, error) {
	token := uuid.New().String()
	ok, err := s.client.SetNX(ctx, lockKey(id), token, lockLease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock session %s: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() { s.release(id, token) }, true, nil
}

// release drops the lock only while token still owns it. A lease that ran
// out mid-turn may already belong to another caller.
func (s *RedisStore) release(id, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, s.client, []string{lockKey(id)}, token).Int()
	if err != nil {
		s.logger.Error("Failed to release session lock", zap.String("sessionId", id), zap.Error(err))
		return
	}
	if n == 0 {
		s.logger.Warn("Session lock lease expired before release", zap.String("sessionId", id))
	}
}
