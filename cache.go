package flashcache

import (
	"context"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/flashcache/codec"
	"github.com/unkn0wn-root/flashcache/internal/keys"
	"github.com/unkn0wn-root/flashcache/internal/wire"
	st "github.com/unkn0wn-root/flashcache/store"
)

type cache[V any] struct {
	ns    string
	store st.Store
	codec c.Codec[V]
	log   Logger
	hooks Hooks

	enabled bool

	ttl        time.Duration
	nullTTL    time.Duration
	logicalTTL time.Duration

	mutexTTL time.Duration
	backoff  time.Duration
	retries  int

	pool *rebuildPool
	now  func() time.Time
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("flashcache: store is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("flashcache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("flashcache: namespace is required")
	}

	cc := &cache[V]{
		ns:      opts.Namespace,
		store:   opts.Store,
		codec:   opts.Codec,
		enabled: !opts.Disabled,
		now:     time.Now,
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.ttl = coalesce[time.Duration](opts.TTL, 30*time.Minute)
	cc.nullTTL = coalesce[time.Duration](opts.NullTTL, 2*time.Minute)
	cc.logicalTTL = coalesce[time.Duration](opts.LogicalTTL, 10*time.Minute)
	cc.mutexTTL = coalesce[time.Duration](opts.MutexTTL, 10*time.Second)
	cc.backoff = coalesce[time.Duration](opts.MutexBackoff, 50*time.Millisecond)
	cc.retries = coalesce[int](opts.MutexRetries, 20)

	workers := coalesce[int](opts.RebuildWorkers, 10)
	queue := coalesce[int](opts.RebuildQueue, 64)
	cc.pool = newRebuildPool(workers, queue)

	return cc, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(context.Context) error {
	c.pool.close()
	return nil
}

// lookup fetches and decodes the envelope stored under key.
// found=false is a plain miss. Corrupt entries are deleted and read as
// a miss so the next caller rebuilds from the source.
func (c *cache[V]) lookup(ctx context.Context, key string) (wire.Entry, bool, error) {
	k := keys.Cache(c.ns, key)
	raw, ok, err := c.store.Get(ctx, k)
	if err != nil || !ok {
		return wire.Entry{}, false, err
	}
	e, err := wire.Decode(raw)
	if err != nil {
		_ = c.store.Del(ctx, k) // self-heal
		c.hooks.SelfHeal(k)
		c.log.Debug("deleted corrupt entry", Fields{"key": key})
		return wire.Entry{}, false, nil
	}
	return e, true, nil
}

// decodePayload turns an envelope payload back into a V, self-healing
// on codec failure.
func (c *cache[V]) decodePayload(ctx context.Context, key string, e wire.Entry) (V, bool) {
	v, err := c.codec.Decode(e.Payload)
	if err != nil {
		k := keys.Cache(c.ns, key)
		_ = c.store.Del(ctx, k)
		c.hooks.SelfHeal(k)
		c.log.Debug("deleted undecodable entry", Fields{"key": key, "err": err})
		var zero V
		return zero, false
	}
	return v, true
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	e, found, err := c.lookup(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}
	if e.Kind == wire.KindNull {
		return zero, false, nil
	}
	v, ok := c.decodePayload(ctx, key, e)
	return v, ok, nil
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, keys.Cache(c.ns, key), wire.EncodePlain(payload), ttl)
}

// SetWithLogicalExpiry writes an envelope the store never expires; the
// staleness deadline travels inside the value and is judged by readers.
func (c *cache[V]) SetWithLogicalExpiry(ctx context.Context, key string, value V, d time.Duration) error {
	if !c.enabled {
		return nil
	}
	if d == 0 {
		d = c.logicalTTL
	}
	payload, err := c.codec.Encode(value)
	if err != nil {
		return err
	}
	env := wire.EncodeLogical(payload, c.now().Add(d))
	return c.store.Set(ctx, keys.Cache(c.ns, key), env, 0)
}

func (c *cache[V]) Invalidate(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	return c.store.Del(ctx, keys.Cache(c.ns, key))
}

func (c *cache[V]) QueryOrLoad(ctx context.Context, key string, loader Loader[V]) (V, bool, error) {
	var zero V
	if !c.enabled {
		return loader(ctx)
	}
	e, found, err := c.lookup(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if found {
		if e.Kind == wire.KindNull {
			// confirmed absent recently; skip the loader
			return zero, false, nil
		}
		if v, ok := c.decodePayload(ctx, key, e); ok {
			return v, true, nil
		}
		// entry self-healed; fall through to the loader
	}
	return c.loadAndFill(ctx, key, loader)
}

// loadAndFill runs the loader once and writes back either the value or
// a short-lived null marker.
func (c *cache[V]) loadAndFill(ctx context.Context, key string, loader Loader[V]) (V, bool, error) {
	var zero V
	v, ok, err := loader(ctx)
	if err != nil {
		return zero, false, fmt.Errorf("flashcache: loader: %w", err)
	}
	if !ok {
		k := keys.Cache(c.ns, key)
		if err := c.store.Set(ctx, k, wire.EncodeNull(), c.nullTTL); err != nil {
			return zero, false, err
		}
		c.hooks.NullMarkerSet(k)
		c.log.Debug("cached null marker", Fields{"key": key})
		return zero, false, nil
	}
	if err := c.Set(ctx, key, v, c.ttl); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (c *cache[V]) QueryWithMutex(ctx context.Context, key string, loader Loader[V]) (V, bool, error) {
	var zero V
	if !c.enabled {
		return loader(ctx)
	}

	for attempt := 0; attempt < c.retries; attempt++ {
		e, found, err := c.lookup(ctx, key)
		if err != nil {
			return zero, false, err
		}
		if found {
			if e.Kind == wire.KindNull {
				return zero, false, nil
			}
			if v, ok := c.decodePayload(ctx, key, e); ok {
				return v, true, nil
			}
		}

		token, locked, err := c.tryMutex(ctx, key)
		if err != nil {
			return zero, false, err
		}
		if locked {
			v, ok, err := func() (V, bool, error) {
				defer c.releaseMutex(ctx, key, token)
				return c.loadAndFill(ctx, key, loader)
			}()
			return v, ok, err
		}

		// someone else is rebuilding; back off, then re-read from the top
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-time.After(c.backoff):
		}
	}

	c.hooks.MutexExhausted(keys.Cache(c.ns, key))
	c.log.Warn("rebuild mutex contended", Fields{"key": key, "retries": c.retries})
	return zero, false, ErrContended
}

func (c *cache[V]) QueryWithLogicalExpiry(ctx context.Context, key string, loader Loader[V]) (V, bool, error) {
	var zero V
	if !c.enabled {
		return loader(ctx)
	}

	e, found, err := c.lookup(ctx, key)
	if err != nil || !found {
		// never primed (or self-healed); the caller decides what a cold
		// hot-key means; this path does not block on the loader
		return zero, false, err
	}
	if e.Kind == wire.KindNull {
		return zero, false, nil
	}
	v, ok := c.decodePayload(ctx, key, e)
	if !ok {
		return zero, false, nil
	}
	if !e.Stale(c.now()) {
		return v, true, nil
	}

	// Stale: the reader keeps the old payload; staleness schedules at
	// most one in-flight rebuild per key.
	if token, locked, merr := c.tryMutex(ctx, key); merr != nil {
		c.log.Warn("rebuild mutex unavailable", Fields{"key": key, "err": merr})
	} else if locked {
		if !c.pool.trySubmit(func() { c.rebuild(key, token, loader) }) {
			// pool saturated; hand the mutex back so a later reader retries
			c.releaseMutex(context.Background(), key, token)
			c.log.Warn("rebuild pool saturated", Fields{"key": key})
		}
	}
	c.hooks.StaleServed(keys.Cache(c.ns, key))
	return v, true, nil
}

// rebuild runs on the worker pool, detached from the originating
// request. Failures are reported and never reach the reader, who already
// returned with stale data.
func (c *cache[V]) rebuild(key string, token []byte, loader Loader[V]) {
	ctx := context.Background()
	k := keys.Cache(c.ns, key)
	defer c.releaseMutex(ctx, key, token)
	defer func() {
		if r := recover(); r != nil {
			c.hooks.RebuildFailed(k, fmt.Errorf("panic: %v", r))
			c.log.Error("cache rebuild panicked", Fields{"key": key, "panic": r})
		}
	}()

	v, ok, err := loader(ctx)
	if err != nil {
		c.hooks.RebuildFailed(k, err)
		c.log.Error("cache rebuild failed", Fields{"key": key, "err": err})
		return
	}
	if !ok {
		// source no longer has it; degrade to a null marker
		if err := c.store.Set(ctx, k, wire.EncodeNull(), c.nullTTL); err != nil {
			c.hooks.RebuildFailed(k, err)
			c.log.Error("cache rebuild null write failed", Fields{"key": key, "err": err})
			return
		}
		c.hooks.NullMarkerSet(k)
		return
	}
	if err := c.SetWithLogicalExpiry(ctx, key, v, c.logicalTTL); err != nil {
		c.hooks.RebuildFailed(k, err)
		c.log.Error("cache rebuild write failed", Fields{"key": key, "err": err})
	}
}

// Prime loads the key synchronously and writes a logical-expiry
// envelope; a confirmed absence is primed as a null marker.
func (c *cache[V]) Prime(ctx context.Context, key string, loader Loader[V]) error {
	if !c.enabled {
		return nil
	}
	v, ok, err := loader(ctx)
	if err != nil {
		return fmt.Errorf("flashcache: prime loader: %w", err)
	}
	if !ok {
		k := keys.Cache(c.ns, key)
		if err := c.store.Set(ctx, k, wire.EncodeNull(), c.nullTTL); err != nil {
			return err
		}
		c.hooks.NullMarkerSet(k)
		return nil
	}
	return c.SetWithLogicalExpiry(ctx, key, v, c.logicalTTL)
}
