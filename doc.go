// Package flashcache keeps a fast key-value cache consistent with a
// slower source-of-truth under read spikes, and admits flash-sale
// purchases safely under write spikes. All coordination state lives in
// one shared store (store.Store / store.Admitter: Redis in production,
// in-process for tests and single-node use).
//
// Read path:
//   - QueryOrLoad: cache-aside with null-value caching, so repeated
//     misses on nonexistent keys stop penetrating to the source.
//   - QueryWithMutex: serializes cold-miss rebuilds behind a short-TTL
//     mutex; contended callers back off and re-read, bounded by
//     MutexRetries.
//   - QueryWithLogicalExpiry: hot keys never block a reader. The store
//     TTL is infinite; a staleness deadline inside the envelope triggers
//     at most one async rebuild on a fixed worker pool while stale data
//     keeps being served.
//
// Sale path (package sale): one atomic admission decision per attempt
// (stock decrement + per-user dedup as an indivisible store operation),
// a bounded hand-off queue, and a single persister that commits accepted
// orders under a per-user distributed lock (package lock). Order IDs
// come from package idgen.
//
// Keys:
//
//	cache:<ns>:<key>  - cache entries
//	mutex:<ns>:<key>  - rebuild mutexes
//	lock:<name>       - named locks
//	seq:<part>:<day>  - ID sequence counters
//	sale:*            - admission state
package flashcache
