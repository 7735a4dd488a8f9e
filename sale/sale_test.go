package sale

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	fc "github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/idgen"
	"github.com/unkn0wn-root/flashcache/lock"
	st "github.com/unkn0wn-root/flashcache/store"
	"github.com/unkn0wn-root/flashcache/store/memory"
)

// memDB is an in-memory durable store with copy-on-write transactions.
type memDB struct {
	mu     sync.Mutex
	stock  map[string]int
	orders []Order
}

var _ DB = (*memDB)(nil)

func newMemDB(stock map[string]int) *memDB {
	s := make(map[string]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &memDB{stock: s}
}

func (d *memDB) CountOrders(_ context.Context, userID, resourceID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return countOrders(d.orders, userID, resourceID), nil
}

func (d *memDB) DecrementStock(_ context.Context, resourceID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stock[resourceID] <= 0 {
		return false, nil
	}
	d.stock[resourceID]--
	return true, nil
}

func (d *memDB) InsertOrder(_ context.Context, o Order) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders = append(d.orders, o)
	return nil
}

func (d *memDB) WithTransaction(_ context.Context, fn func(tx OrderStore) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tx := &memTx{
		stock:  make(map[string]int, len(d.stock)),
		orders: append([]Order(nil), d.orders...),
	}
	for k, v := range d.stock {
		tx.stock[k] = v
	}
	if err := fn(tx); err != nil {
		return err // rollback: tx copies are discarded
	}
	d.stock = tx.stock
	d.orders = tx.orders
	return nil
}

type memTx struct {
	stock  map[string]int
	orders []Order
}

func (t *memTx) CountOrders(_ context.Context, userID, resourceID string) (int, error) {
	return countOrders(t.orders, userID, resourceID), nil
}

func (t *memTx) DecrementStock(_ context.Context, resourceID string) (bool, error) {
	if t.stock[resourceID] <= 0 {
		return false, nil
	}
	t.stock[resourceID]--
	return true, nil
}

func (t *memTx) InsertOrder(_ context.Context, o Order) error {
	t.orders = append(t.orders, o)
	return nil
}

func countOrders(orders []Order, userID, resourceID string) int {
	n := 0
	for _, o := range orders {
		if o.UserID == userID && o.ResourceID == resourceID {
			n++
		}
	}
	return n
}

// recordingHooks captures persister outcomes.
type recordingHooks struct {
	fc.NopHooks
	mu        sync.Mutex
	dropped   []string
	persisted []uint64
}

func (h *recordingHooks) OrderDropped(userID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = append(h.dropped, userID+"/"+reason)
}

func (h *recordingHooks) OrderPersisted(orderID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.persisted = append(h.persisted, orderID)
}

func newTestPipeline(t *testing.T, s *memory.Memory, db DB, optsOpt func(*Options)) *Pipeline {
	t.Helper()
	opts := Options{
		Store:    s,
		Admitter: s,
		DB:       db,
		IDs:      idgen.New(s),
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// ==============================
// Admission
// ==============================

// TestAdmissionExactlyOncePerUser: stock 5, 100 concurrent attempts
// from 10 users with per-user retries. Exactly 5 succeed, nobody twice,
// reserved stock ends at 0.
func TestAdmissionExactlyOncePerUser(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	db := newMemDB(map[string]int{"gpu": 5})
	p := newTestPipeline(t, s, db, nil)
	p.Start()

	if err := s.SeedStock(ctx, "gpu", 5); err != nil {
		t.Fatalf("SeedStock: %v", err)
	}

	const attempts = 100
	var wg sync.WaitGroup
	winners := make(chan string, attempts)
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		user := fmt.Sprintf("u%d", i%10)
		go func(user string) {
			defer wg.Done()
			id, err := p.Purchase(ctx, "gpu", user)
			switch {
			case err == nil:
				if id == 0 {
					t.Error("accepted purchase returned zero id")
				}
				winners <- user
			case errors.Is(err, ErrSoldOut), errors.Is(err, ErrAlreadyOrdered):
				// normal outcomes under contention
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(user)
	}
	wg.Wait()
	close(winners)

	seen := map[string]int{}
	for u := range winners {
		seen[u]++
	}
	total := 0
	for u, n := range seen {
		if n > 1 {
			t.Fatalf("user %s admitted %d times", u, n)
		}
		total += n
	}
	if total != 5 {
		t.Fatalf("admitted: got %d want 5", total)
	}

	p.Close()

	if n := len(db.orders); n != 5 {
		t.Fatalf("persisted orders: got %d want 5", n)
	}
	db.mu.Lock()
	stock := db.stock["gpu"]
	db.mu.Unlock()
	if stock != 0 {
		t.Fatalf("durable stock: got %d want 0", stock)
	}
}

// ==============================
// End-to-end
// ==============================

// TestEndToEndRace: stock=1, two users race. One wins and is durably
// persisted; the loser sees sold-out; a repeat attempt by the winner is
// a duplicate even though stock is gone.
func TestEndToEndRace(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	db := newMemDB(map[string]int{"gpu": 1})
	hooks := &recordingHooks{}
	p := newTestPipeline(t, s, db, func(o *Options) { o.Hooks = hooks })
	p.Start()

	if err := s.SeedStock(ctx, "gpu", 1); err != nil {
		t.Fatalf("SeedStock: %v", err)
	}

	type result struct {
		user string
		id   uint64
		err  error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for _, u := range []string{"u1", "u2"} {
		go func(u string) {
			defer wg.Done()
			id, err := p.Purchase(ctx, "gpu", u)
			results <- result{user: u, id: id, err: err}
		}(u)
	}
	wg.Wait()
	close(results)

	var winner result
	var lost int
	for r := range results {
		if r.err == nil {
			winner = r
		} else if errors.Is(r.err, ErrSoldOut) {
			lost++
		} else {
			t.Fatalf("unexpected error for %s: %v", r.user, r.err)
		}
	}
	if winner.user == "" || lost != 1 {
		t.Fatalf("expected one winner and one sold-out, got winner=%q lost=%d", winner.user, lost)
	}

	// the winner retrying is a duplicate, not sold-out
	if _, err := p.Purchase(ctx, "gpu", winner.user); !errors.Is(err, ErrAlreadyOrdered) {
		t.Fatalf("winner retry: got %v want ErrAlreadyOrdered", err)
	}

	p.Close()

	if n := len(db.orders); n != 1 {
		t.Fatalf("persisted orders: got %d want 1", n)
	}
	o := db.orders[0]
	if o.UserID != winner.user || o.ResourceID != "gpu" || o.ID != winner.id {
		t.Fatalf("persisted order mismatch: %+v vs winner %+v", o, winner)
	}
	if len(hooks.persisted) != 1 || hooks.persisted[0] != winner.id {
		t.Fatalf("OrderPersisted hook: %v", hooks.persisted)
	}
}

// ==============================
// Queue and persister edge cases
// ==============================

// TestQueueFullRejects: with capacity 1 and no consumer running, the
// second admitted order is rejected rather than blocking the caller.
func TestQueueFullRejects(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	db := newMemDB(map[string]int{"gpu": 5})
	p := newTestPipeline(t, s, db, func(o *Options) { o.QueueSize = 1 })
	// persister deliberately not started

	if err := s.SeedStock(ctx, "gpu", 5); err != nil {
		t.Fatalf("SeedStock: %v", err)
	}

	if _, err := p.Purchase(ctx, "gpu", "u1"); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if _, err := p.Purchase(ctx, "gpu", "u2"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second purchase: got %v want ErrQueueFull", err)
	}
}

// TestDropOnLockContention: if the per-user lock is held at persistence
// time the order is dropped, not retried.
func TestDropOnLockContention(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	db := newMemDB(map[string]int{"gpu": 1})
	hooks := &recordingHooks{}
	p := newTestPipeline(t, s, db, func(o *Options) { o.Hooks = hooks })

	if err := s.SeedStock(ctx, "gpu", 1); err != nil {
		t.Fatalf("SeedStock: %v", err)
	}

	// foreign holder of u1's order lock
	foreign := lock.New(s, "order:u1", time.Minute)
	if ok, _ := foreign.TryAcquire(ctx); !ok {
		t.Fatal("could not pre-hold user lock")
	}

	if _, err := p.Purchase(ctx, "gpu", "u1"); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	p.Start()
	p.Close()

	if n := len(db.orders); n != 0 {
		t.Fatalf("dropped order was persisted (%d orders)", n)
	}
	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.dropped) != 1 || hooks.dropped[0] != "u1/lock_contended" {
		t.Fatalf("OrderDropped hook: %v", hooks.dropped)
	}
}

// TestAdmitCodesMapToErrors keeps the tri-state mapping honest.
func TestAdmitCodesMapToErrors(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := newTestPipeline(t, s, newMemDB(nil), nil)

	if _, err := p.Purchase(ctx, "never-seeded", "u1"); !errors.Is(err, ErrSoldOut) {
		t.Fatalf("unseeded resource: got %v want ErrSoldOut", err)
	}
	if code, _ := s.Admit(ctx, "never-seeded", "u1"); code != st.AdmitSoldOut {
		t.Fatalf("admit code: got %v", code)
	}
}
