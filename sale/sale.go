// Package sale admits "buy one unit" requests during a flash sale and
// durably records accepted orders.
//
// The admission decision is one atomic store operation (per-user dedup
// plus stock decrement), so it is the sole gate against overselling and
// duplicate purchase. No lock is involved on the hot path. Accepted
// orders are handed to a bounded queue and committed later by a single
// persister goroutine under a per-user distributed lock. The caller sees
// the purchase as accepted as soon as the order ID is returned; durable
// persistence follows.
package sale

import (
	"context"
	"errors"
	"time"
)

// Order is the durable record of an accepted purchase. Immutable once
// committed; at most one ever reaches storage per (UserID, ResourceID).
type Order struct {
	ID         uint64
	UserID     string
	ResourceID string
	CreatedAt  time.Time
}

// OrderStore is the slice of the durable relational store the persister
// writes through.
type OrderStore interface {
	// CountOrders returns how many orders the user already holds for
	// the resource.
	CountOrders(ctx context.Context, userID, resourceID string) (int, error)

	// DecrementStock decrements durable stock iff it is still positive.
	DecrementStock(ctx context.Context, resourceID string) (bool, error)

	// InsertOrder writes the order record.
	InsertOrder(ctx context.Context, o Order) error
}

// DB adds the transaction scope: fn's writes commit atomically or not
// at all.
type DB interface {
	OrderStore
	WithTransaction(ctx context.Context, fn func(tx OrderStore) error) error
}

var (
	// ErrSoldOut: the resource has no stock left.
	ErrSoldOut = errors.New("sale: sold out")

	// ErrAlreadyOrdered: the user already holds an order for this resource.
	ErrAlreadyOrdered = errors.New("sale: user already ordered")

	// ErrQueueFull: admission passed but the hand-off queue is at
	// capacity; the attempt is rejected rather than blocking the caller.
	ErrQueueFull = errors.New("sale: order queue full")
)
