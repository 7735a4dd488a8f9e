package memory

import (
	"context"
	"testing"
	"time"

	st "github.com/unkn0wn-root/flashcache/store"
)

// fakeClock drives TTL expiry without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newFakeClock(s *Memory) *fakeClock {
	c := &fakeClock{t: time.Now()}
	s.SetClock(c.now)
	return c
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := New()
	clk := newFakeClock(s)

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	clk.advance(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	s := New()
	clk := newFakeClock(s)

	ok, err := s.SetNX(ctx, "k", []byte("a"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.SetNX(ctx, "k", []byte("b"), time.Minute); ok {
		t.Fatal("second SetNX succeeded on a live key")
	}

	// expired key counts as absent
	clk.advance(2 * time.Minute)
	if ok, _ := s.SetNX(ctx, "k", []byte("b"), time.Minute); !ok {
		t.Fatal("SetNX failed after expiry")
	}
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	_ = s.Set(ctx, "k", []byte("owner-a"), 0)

	if deleted, _ := s.CompareAndDelete(ctx, "k", []byte("owner-b")); deleted {
		t.Fatal("deleted with wrong value")
	}
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("key vanished after mismatched delete")
	}
	if deleted, _ := s.CompareAndDelete(ctx, "k", []byte("owner-a")); !deleted {
		t.Fatal("owner could not delete own key")
	}
	if deleted, _ := s.CompareAndDelete(ctx, "k", []byte("owner-a")); deleted {
		t.Fatal("deleted a missing key")
	}
}

func TestIncrBy(t *testing.T) {
	ctx := context.Background()
	s := New()

	if n, err := s.IncrBy(ctx, "ctr", 1); err != nil || n != 1 {
		t.Fatalf("first incr: n=%d err=%v", n, err)
	}
	if n, _ := s.IncrBy(ctx, "ctr", 5); n != 6 {
		t.Fatalf("second incr: n=%d", n)
	}
	if n, _ := s.IncrBy(ctx, "ctr", -2); n != 4 {
		t.Fatalf("negative incr: n=%d", n)
	}
}

func TestAdmitTriState(t *testing.T) {
	ctx := context.Background()
	s := New()

	// no stock seeded at all
	if code, _ := s.Admit(ctx, "r", "u1"); code != st.AdmitSoldOut {
		t.Fatalf("unseeded resource: got %v", code)
	}

	if err := s.SeedStock(ctx, "r", 1); err != nil {
		t.Fatalf("SeedStock: %v", err)
	}
	if code, _ := s.Admit(ctx, "r", "u1"); code != st.AdmitOK {
		t.Fatalf("first attempt: got %v", code)
	}
	// dedup wins over sold-out for a previous winner
	if code, _ := s.Admit(ctx, "r", "u1"); code != st.AdmitDuplicate {
		t.Fatalf("repeat attempt: got %v", code)
	}
	if code, _ := s.Admit(ctx, "r", "u2"); code != st.AdmitSoldOut {
		t.Fatalf("sold out attempt: got %v", code)
	}
}
