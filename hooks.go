package flashcache

import "github.com/unkn0wn-root/flashcache/store"

// Hooks are lightweight callbacks for high-signal events across the
// cache read path and the sale pipeline. Implementations MUST be cheap
// and non-blocking; they are called on hot paths. Wrap with hooks/async
// if an implementation does real work.
type Hooks interface {
	// A cache entry was deleted on read because it failed to decode.
	SelfHeal(storageKey string)

	// A null marker was written after the loader confirmed absence.
	NullMarkerSet(storageKey string)

	// A logically-expired payload was returned to a reader.
	StaleServed(storageKey string)

	// An async rebuild job failed; the reader already got stale data.
	RebuildFailed(storageKey string, err error)

	// QueryWithMutex gave up after its configured retries.
	MutexExhausted(storageKey string)

	// An admission attempt was turned away (sold out or duplicate).
	AdmitRejected(resourceID string, code store.AdmitCode)

	// An admitted order could not be enqueued (queue at capacity).
	QueueFull(resourceID string)

	// An admitted order was dropped before durable commit.
	// reason is one of "lock_contended", "tx_failed".
	OrderDropped(userID, reason string)

	// An order reached durable storage.
	OrderPersisted(orderID uint64)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) SelfHeal(string)                       {}
func (NopHooks) NullMarkerSet(string)                  {}
func (NopHooks) StaleServed(string)                    {}
func (NopHooks) RebuildFailed(string, error)           {}
func (NopHooks) MutexExhausted(string)                 {}
func (NopHooks) AdmitRejected(string, store.AdmitCode) {}
func (NopHooks) QueueFull(string)                      {}
func (NopHooks) OrderDropped(string, string)           {}
func (NopHooks) OrderPersisted(uint64)                 {}
