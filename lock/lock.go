// Package lock provides a named mutual-exclusion lock whose state lives
// in the shared store, so it excludes contenders across processes.
//
// The lock is non-reentrant and offers no fairness among waiters. Each
// acquisition attempt mints a fresh owner token, and release only
// removes the key while it still holds that token. An owner whose TTL
// lapsed can therefore never drop a lock someone else re-acquired.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/flashcache/internal/keys"
	"github.com/unkn0wn-root/flashcache/store"
)

// Lock is a handle on one named lock for one logical owner. Not safe for
// concurrent use by multiple goroutines; each owner creates its own.
type Lock struct {
	store store.Store
	key   string
	ttl   time.Duration
	token []byte // owner token of the current attempt; nil when not held
}

// New creates a handle on the named lock. ttl bounds how long a crashed
// owner can leave the lock held; the store expires it after that.
func New(s store.Store, name string, ttl time.Duration) *Lock {
	return &Lock{store: s, key: keys.Lock(name), ttl: ttl}
}

// TryAcquire attempts to take the lock. Returns false without blocking
// if it is already held, including by this handle (non-reentrant).
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	token := []byte(uuid.NewString())
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil || !ok {
		return false, err
	}
	l.token = token
	return true, nil
}

// Release drops the lock iff this handle's attempt still owns it. If the
// TTL lapsed and another owner took over, the release is a silent no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == nil {
		return nil
	}
	token := l.token
	l.token = nil
	_, err := l.store.CompareAndDelete(ctx, l.key, token)
	return err
}
