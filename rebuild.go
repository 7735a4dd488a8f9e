package flashcache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/flashcache/internal/keys"
)

// tryMutex takes the per-key rebuild mutex. The token ties the release
// to this acquisition: if the mutex TTL lapses and another rebuilder
// takes over, our release is a no-op instead of dropping their mutex.
func (c *cache[V]) tryMutex(ctx context.Context, key string) ([]byte, bool, error) {
	token := []byte(uuid.NewString())
	ok, err := c.store.SetNX(ctx, keys.Mutex(c.ns, key), token, c.mutexTTL)
	if err != nil || !ok {
		return nil, false, err
	}
	return token, true, nil
}

func (c *cache[V]) releaseMutex(ctx context.Context, key string, token []byte) {
	if _, err := c.store.CompareAndDelete(ctx, keys.Mutex(c.ns, key), token); err != nil {
		// TTL will clear it; the mutex stays held a little longer than needed
		c.log.Warn("rebuild mutex release failed", Fields{"key": key, "err": err})
	}
}

// rebuildPool is a fixed set of workers draining a bounded job queue.
// It is owned by the cache and drained on Close; jobs are never
// cancelled once submitted.
type rebuildPool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func newRebuildPool(workers, queue int) *rebuildPool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1
	}

	p := &rebuildPool{jobs: make(chan func(), queue)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for f := range p.jobs {
				f()
			}
		}()
	}
	return p
}

// trySubmit enqueues the job without blocking; false means the queue is
// at capacity and the caller keeps responsibility for cleanup.
func (p *rebuildPool) trySubmit(f func()) bool {
	select {
	case p.jobs <- f:
		return true
	default:
		return false
	}
}

// close stops intake and waits for queued jobs to finish.
func (p *rebuildPool) close() {
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}
