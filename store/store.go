// Package store defines the shared key-value store abstraction that all
// coordination state lives in: cache entries, rebuild mutexes, named
// locks, sequence counters and sale admission state.
//
// Implementations MUST be safe for concurrent use and byte-for-byte
// transparent: Get must return exactly the []byte previously passed to
// Set for the same key.
package store

import (
	"context"
	"time"
)

// Store is a minimal byte store with TTLs plus the atomic primitives the
// lock and ID-generation layers are built on.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value with the given TTL iff the key is absent.
	// Returns false without blocking when the key already exists.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// IncrBy atomically adds delta to the integer held at key (missing
	// key counts as 0) and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// CompareAndDelete removes the key iff its current value equals
	// value, as one indivisible operation. Returns whether a deletion
	// occurred. A mismatch or missing key is not an error.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// AdmitCode is the tri-state outcome of a sale admission attempt.
type AdmitCode int

const (
	AdmitOK        AdmitCode = 0 // stock reserved, user recorded
	AdmitSoldOut   AdmitCode = 1 // insufficient stock
	AdmitDuplicate AdmitCode = 2 // user already holds an order for this resource
)

func (c AdmitCode) String() string {
	switch c {
	case AdmitOK:
		return "ok"
	case AdmitSoldOut:
		return "sold_out"
	case AdmitDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Admitter executes the sale admission decision as one indivisible
// operation against the store: check the per-resource dedup set, check
// remaining stock and, only if both pass, decrement stock and record the
// user. No intermediate state is observable by a concurrent attempt.
//
// The dedup check runs before the stock check, so a user who already
// holds an order sees AdmitDuplicate even after stock reaches zero.
type Admitter interface {
	Admit(ctx context.Context, resourceID, userID string) (AdmitCode, error)

	// SeedStock overwrites the reserved-stock counter for a resource.
	// Call before opening a sale; not safe to call mid-sale.
	SeedStock(ctx context.Context, resourceID string, units int64) error
}
