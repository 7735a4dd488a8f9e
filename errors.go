package flashcache

import "errors"

// ErrContended is returned by QueryWithMutex when the rebuild mutex
// stayed held for all configured retries. The bound is a capacity
// control: raising MutexRetries trades caller latency for fewer
// loader calls under contention.
var ErrContended = errors.New("flashcache: rebuild mutex contended, retries exhausted")
