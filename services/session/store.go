// Package session holds booking conversations between turns and serializes
// turns per session id.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tailortalk/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is busy with another turn")
)

// Store is the single source of truth for conversation continuity.
type Store interface {
	Create(ctx context.Context) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
	// ExpireStale removes sessions idle longer than ttl and returns how many
	// were removed. Sessions locked by an in-flight turn are skipped.
	ExpireStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
	// Lock blocks until the caller owns id or ctx ends (ErrSessionBusy).
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// Options configure both store backends.
type Options struct {
	TTL time.Duration
	Now func() time.Time
	// Logger receives lock bookkeeping failures. Nil discards them.
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func newSessionID() string {
	return uuid.New().String()
}

// keyedLock is a per-id mutex that can be abandoned when ctx ends.
type keyedLock struct {
	ch   chan struct{}
	refs int
}

type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyedLock)}
}

func (t *lockTable) ref(id string) *keyedLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		t.locks[id] = l
	}
	l.refs++
	return l
}

func (t *lockTable) unref(id string, l *keyedLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, id)
	}
}

func (t *lockTable) acquire(ctx context.Context, id string) (func(), error) {
	l := t.ref(id)
	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				t.unref(id, l)
			})
		}, nil
	case <-ctx.Done():
		t.unref(id, l)
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
}

func (t *lockTable) tryAcquire(id string) (func(), bool) {
	l := t.ref(id)
	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				t.unref(id, l)
			})
		}, true
	default:
		t.unref(id, l)
		return nil, false
	}
}
