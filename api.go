package flashcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/flashcache/codec"
	st "github.com/unkn0wn-root/flashcache/store"
)

// Loader fetches a value from the source-of-truth. ok=false means the
// source confirmed the key does not exist (which is cached as a null
// marker, not an error).
type Loader[V any] func(ctx context.Context) (v V, ok bool, err error)

// Cache is the high-level read-path API: cache-aside with penetration
// protection plus the two stampede-protection strategies. V is the
// caller's value type; serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool

	// Close drains the rebuild worker pool. It does not close the
	// store; the store may be shared with locks and the sale pipeline,
	// so its lifecycle belongs to the caller.
	Close(ctx context.Context) error

	// Get returns the cached payload under key no matter how it was
	// written: plain entries, logical-expiry entries (even stale ones)
	// and null markers (reported as a miss).
	Get(ctx context.Context, key string) (v V, ok bool, err error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	SetWithLogicalExpiry(ctx context.Context, key string, value V, d time.Duration) error

	// Invalidate removes the entry. Call after a source-of-truth write
	// so the next read rebuilds from fresh data.
	Invalidate(ctx context.Context, key string) error

	// QueryOrLoad is cache-aside with null-value caching: a confirmed
	// absence is cached for NullTTL so repeated misses on nonexistent
	// keys stop reaching the source.
	QueryOrLoad(ctx context.Context, key string, loader Loader[V]) (v V, ok bool, err error)

	// QueryWithMutex additionally serializes rebuilds: on a cold miss at
	// most one caller loads while the rest back off and re-read, up to
	// MutexRetries times. May block the caller between attempts.
	QueryWithMutex(ctx context.Context, key string, loader Loader[V]) (v V, ok bool, err error)

	// QueryWithLogicalExpiry never blocks on a rebuild: an existing
	// payload is returned immediately even when stale, and staleness
	// schedules at most one async rebuild per key. A key never primed
	// (see Prime) reads as a miss.
	QueryWithLogicalExpiry(ctx context.Context, key string, loader Loader[V]) (v V, ok bool, err error)

	// Prime loads the key and writes a logical-expiry envelope. Run it
	// for every hot key before an event so QueryWithLogicalExpiry has
	// an envelope to serve.
	Prime(ctx context.Context, key string, loader Loader[V]) error
}

// Options tune the generic cache. Only Namespace, Store and Codec are
// required; everything else has defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "shop", "item"
	Store     st.Store
	Codec     c.Codec[V]

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	TTL        time.Duration // positive results; 0 => 30m
	NullTTL    time.Duration // null markers; 0 => 2m. Keep well below TTL.
	LogicalTTL time.Duration // logical staleness window; 0 => 10m

	MutexTTL     time.Duration // rebuild mutex expiry; 0 => 10s
	MutexBackoff time.Duration // sleep between mutex retries; 0 => 50ms
	MutexRetries int           // attempts before ErrContended; 0 => 20

	RebuildWorkers int // async rebuild pool size; 0 => 10
	RebuildQueue   int // pending rebuild jobs; 0 => 64

	Disabled bool // default false (enabled)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
