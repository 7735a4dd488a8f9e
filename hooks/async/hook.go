// Package asynchook decouples hook callbacks from the hot paths that
// emit them. Events are queued to a small worker pool; when the queue is
// full the event is dropped, never the caller blocked.
package asynchook

import (
	"sync"

	fc "github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/store"
)

type Hooks struct {
	inner fc.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ fc.Hooks = (*Hooks)(nil)

func New(inner fc.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(key string)      { h.try(func() { h.inner.SelfHeal(key) }) }
func (h *Hooks) NullMarkerSet(key string) { h.try(func() { h.inner.NullMarkerSet(key) }) }
func (h *Hooks) StaleServed(key string)   { h.try(func() { h.inner.StaleServed(key) }) }
func (h *Hooks) RebuildFailed(key string, err error) {
	h.try(func() { h.inner.RebuildFailed(key, err) })
}
func (h *Hooks) MutexExhausted(key string) { h.try(func() { h.inner.MutexExhausted(key) }) }
func (h *Hooks) AdmitRejected(resourceID string, code store.AdmitCode) {
	h.try(func() { h.inner.AdmitRejected(resourceID, code) })
}
func (h *Hooks) QueueFull(resourceID string) { h.try(func() { h.inner.QueueFull(resourceID) }) }
func (h *Hooks) OrderDropped(userID, reason string) {
	h.try(func() { h.inner.OrderDropped(userID, reason) })
}
func (h *Hooks) OrderPersisted(orderID uint64) { h.try(func() { h.inner.OrderPersisted(orderID) }) }
