package sale

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	fc "github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/idgen"
	"github.com/unkn0wn-root/flashcache/lock"
	st "github.com/unkn0wn-root/flashcache/store"
)

// Options tune the pipeline. Store, Admitter, DB and IDs are required.
type Options struct {
	// Required
	Store    st.Store    // coordination store for per-user locks
	Admitter st.Admitter // atomic admission against the shared store
	DB       DB          // durable store
	IDs      *idgen.Generator

	Logger fc.Logger // if nil, NopLogger is used
	Hooks  fc.Hooks  // if nil, NopHooks is used

	QueueSize int           // 0 => 1024
	LockTTL   time.Duration // per-user order lock expiry; 0 => 10s
	Partition string        // ID partition key; "" => "order"
}

// Pipeline is the flash-sale front door plus its background persister.
// Construct with New, call Start once, Close after all Purchase callers
// have returned.
type Pipeline struct {
	store st.Store
	adm   st.Admitter
	db    DB
	ids   *idgen.Generator
	log   fc.Logger
	hooks fc.Hooks

	lockTTL   time.Duration
	partition string

	queue     chan Order
	done      chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("sale: store is required")
	}
	if opts.Admitter == nil {
		return nil, fmt.Errorf("sale: admitter is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("sale: db is required")
	}
	if opts.IDs == nil {
		return nil, fmt.Errorf("sale: id generator is required")
	}

	p := &Pipeline{
		store: opts.Store,
		adm:   opts.Admitter,
		db:    opts.DB,
		ids:   opts.IDs,
	}
	p.log = opts.Logger
	if p.log == nil {
		p.log = fc.NopLogger{}
	}
	p.hooks = opts.Hooks
	if p.hooks == nil {
		p.hooks = fc.NopHooks{}
	}
	p.lockTTL = opts.LockTTL
	if p.lockTTL == 0 {
		p.lockTTL = 10 * time.Second
	}
	p.partition = opts.Partition
	if p.partition == "" {
		p.partition = "order"
	}

	qs := opts.QueueSize
	if qs <= 0 {
		qs = 1024
	}
	p.queue = make(chan Order, qs)
	p.done = make(chan struct{})
	return p, nil
}

// Start launches the single persister worker. Safe to call once.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		p.started.Store(true)
		go p.run()
	})
}

// Close stops intake and blocks until every already-queued order has
// been handed to the persister. Must not race with in-flight Purchase
// calls.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		if p.started.Load() {
			<-p.done
		}
	})
}

// Purchase runs one admission attempt. On success the order ID is
// returned immediately; durable persistence happens in the background.
// Rejections (ErrSoldOut, ErrAlreadyOrdered) are normal outcomes, not
// faults.
func (p *Pipeline) Purchase(ctx context.Context, resourceID, userID string) (uint64, error) {
	code, err := p.adm.Admit(ctx, resourceID, userID)
	if err != nil {
		return 0, fmt.Errorf("sale: admission: %w", err)
	}
	switch code {
	case st.AdmitSoldOut:
		p.hooks.AdmitRejected(resourceID, code)
		return 0, ErrSoldOut
	case st.AdmitDuplicate:
		p.hooks.AdmitRejected(resourceID, code)
		return 0, ErrAlreadyOrdered
	}

	id, err := p.ids.Next(ctx, p.partition)
	if err != nil {
		// stock is already reserved in the store; this unit is lost
		// until the sale state is reconciled
		p.log.Error("order id mint failed after admission", fc.Fields{
			"resource": resourceID, "user": userID, "err": err,
		})
		return 0, fmt.Errorf("sale: order id: %w", err)
	}

	o := Order{
		ID:         id,
		UserID:     userID,
		ResourceID: resourceID,
		CreatedAt:  time.Now().UTC(),
	}

	// Bounded hand-off. A full queue rejects instead of blocking: one
	// slow consumer must not stall unrelated purchases head-of-line.
	select {
	case p.queue <- o:
		return id, nil
	default:
		p.hooks.QueueFull(resourceID)
		p.log.Error("order queue full, rejecting admitted order", fc.Fields{
			"order": id, "resource": resourceID, "user": userID,
		})
		return 0, ErrQueueFull
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	for o := range p.queue {
		p.persist(o)
	}
}

// persist commits one order under the user's lock. At-most-once: a
// dropped order is logged, never re-enqueued.
func (p *Pipeline) persist(o Order) {
	ctx := context.Background()

	l := lock.New(p.store, "order:"+o.UserID, p.lockTTL)
	ok, err := l.TryAcquire(ctx)
	if err != nil || !ok {
		p.hooks.OrderDropped(o.UserID, "lock_contended")
		p.log.Error("dropping order, user lock unavailable", fc.Fields{
			"order": o.ID, "user": o.UserID, "err": err,
		})
		return
	}
	defer func() {
		if err := l.Release(ctx); err != nil {
			p.log.Warn("order lock release failed", fc.Fields{"user": o.UserID, "err": err})
		}
	}()

	err = p.db.WithTransaction(ctx, func(tx OrderStore) error {
		// Admission already decided both checks atomically; re-verify
		// against the durable store before committing.
		n, err := tx.CountOrders(ctx, o.UserID, o.ResourceID)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("user %s already persisted for %s", o.UserID, o.ResourceID)
		}
		decremented, err := tx.DecrementStock(ctx, o.ResourceID)
		if err != nil {
			return err
		}
		if !decremented {
			return fmt.Errorf("durable stock exhausted for %s", o.ResourceID)
		}
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		p.hooks.OrderDropped(o.UserID, "tx_failed")
		p.log.Error("order transaction failed", fc.Fields{
			"order": o.ID, "user": o.UserID, "err": err,
		})
		return
	}

	p.hooks.OrderPersisted(o.ID)
	p.log.Info("order persisted", fc.Fields{
		"order": o.ID, "user": o.UserID, "resource": o.ResourceID,
	})
}
