// Package memory implements store.Store and store.Admitter in-process.
// It backs tests and single-node deployments; every operation holds one
// mutex, so the atomicity guarantees match the Redis implementation.
package memory

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/unkn0wn-root/flashcache/internal/keys"
	st "github.com/unkn0wn-root/flashcache/store"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Memory struct {
	mu   sync.Mutex
	m    map[string]entry
	sets map[string]map[string]struct{}

	// now is the clock; replaceable in tests to simulate TTL expiry.
	now func() time.Time
}

var (
	_ st.Store    = (*Memory)(nil)
	_ st.Admitter = (*Memory)(nil)
)

func New() *Memory {
	return &Memory{
		m:    make(map[string]entry),
		sets: make(map[string]map[string]struct{}),
		now:  time.Now,
	}
}

// SetClock swaps the time source. Test hook; not safe to call
// concurrently with store operations.
func (s *Memory) SetClock(now func() time.Time) { s.now = now }

// get returns the live value for key, expiring it lazily. Caller holds mu.
func (s *Memory) get(key string) ([]byte, bool) {
	e, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && s.now().After(e.exp) {
		delete(s.m, key)
		return nil, false
	}
	return e.v, true
}

func (s *Memory) put(key string, value []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.m[key] = entry{v: append([]byte(nil), value...), exp: exp}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value, ttl)
	return nil
}

func (s *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.put(key, value, ttl)
	return true, nil
}

func (s *Memory) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *Memory) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur int64
	if v, ok := s.get(key); ok {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, err
		}
		cur = n
	}
	cur += delta
	// counters keep whatever expiry the entry already had
	e := s.m[key]
	e.v = []byte(strconv.FormatInt(cur, 10))
	s.m[key] = e
	return cur, nil
}

func (s *Memory) CompareAndDelete(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	if !ok || !bytes.Equal(v, value) {
		return false, nil
	}
	delete(s.m, key)
	return true, nil
}

func (s *Memory) Admit(_ context.Context, resourceID, userID string) (st.AdmitCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := s.sets[keys.SaleOrdered(resourceID)]
	if _, dup := ordered[userID]; dup {
		return st.AdmitDuplicate, nil
	}

	stockKey := keys.SaleStock(resourceID)
	v, ok := s.get(stockKey)
	if !ok {
		return st.AdmitSoldOut, nil
	}
	stock, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil || stock <= 0 {
		return st.AdmitSoldOut, nil
	}

	e := s.m[stockKey]
	e.v = []byte(strconv.FormatInt(stock-1, 10))
	s.m[stockKey] = e

	if ordered == nil {
		ordered = make(map[string]struct{})
		s.sets[keys.SaleOrdered(resourceID)] = ordered
	}
	ordered[userID] = struct{}{}
	return st.AdmitOK, nil
}

func (s *Memory) SeedStock(_ context.Context, resourceID string, units int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(keys.SaleStock(resourceID), []byte(strconv.FormatInt(units, 10)), 0)
	return nil
}

func (s *Memory) Close(context.Context) error { return nil }
