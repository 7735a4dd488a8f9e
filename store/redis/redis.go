// Package redis implements store.Store and store.Admitter on top of a
// go-redis client. Admission and safe compare-and-delete run as Lua
// scripts so they are atomic on the server.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flashcache/internal/keys"
	st "github.com/unkn0wn-root/flashcache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

// compareAndDelete deletes the key only when it still holds the caller's
// value. GET+DEL as two round trips would let a stale owner drop a lock
// re-acquired by someone else.
var compareAndDelete = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`)

// admit implements the tri-state admission decision. Dedup before stock:
// a previous winner must keep seeing code 2 after the sale sells out.
var admit = goredis.NewScript(`
if (redis.call('sismember', KEYS[2], ARGV[1]) == 1) then
    return 2
end
local stock = tonumber(redis.call('get', KEYS[1]))
if (stock == nil or stock <= 0) then
    return 1
end
redis.call('incrby', KEYS[1], -1)
redis.call('sadd', KEYS[2], ARGV[1])
return 0
`)

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var (
	_ st.Store    = (*Redis)(nil)
	_ st.Admitter = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0 // non-positive TTL means "no expiry" per store contract
	}
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0
	}
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *Redis) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.rdb.IncrBy(ctx, key, delta).Result()
}

func (s *Redis) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.rdb, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Redis) Admit(ctx context.Context, resourceID, userID string) (st.AdmitCode, error) {
	n, err := admit.Run(ctx, s.rdb,
		[]string{keys.SaleStock(resourceID), keys.SaleOrdered(resourceID)},
		userID,
	).Int64()
	if err != nil {
		return 0, err
	}
	return st.AdmitCode(n), nil
}

func (s *Redis) SeedStock(ctx context.Context, resourceID string, units int64) error {
	return s.rdb.Set(ctx, keys.SaleStock(resourceID), strconv.FormatInt(units, 10), 0).Err()
}

// Close releases the underlying redis client only when this store owns
// it. Safe to call multiple times; repeated calls become no-ops.
func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
