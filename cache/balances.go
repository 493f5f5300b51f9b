// Package cache provides a Redis read-through layer in front of the balance store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/saltbet-bot/telemetry"
)

// ErrMiss is returned by a cache without a backing store when the key is absent.
var ErrMiss = errors.New("cache: miss")

// Store is the durable balance gateway behind the cache.
type Store interface {
	GetBalance(ctx context.Context, user string) (int64, error)
	SetBalance(ctx context.Context, user string, balance int64) error
}

// Connect opens a Redis client for addr and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Balances caches balances in Redis. Reads try Redis first and fall back to
// the store, filling the cache on the way out; writes go to the store and
// then the cache. A Redis outage degrades to store-only access. With a nil
// store Redis is the only copy.
type Balances struct {
	rdb  *redis.Client
	next Store
	ttl  time.Duration
}

// NewBalances returns a read-through cache. ttl <= 0 keeps entries forever.
func NewBalances(rdb *redis.Client, next Store, ttl time.Duration) *Balances {
	if ttl < 0 {
		ttl = 0
	}
	return &Balances{rdb: rdb, next: next, ttl: ttl}
}

func key(user string) string {
	return "saltbet:balance:" + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(user), "@"))
}

// GetBalance returns the cached balance or loads it from the store.
func (b *Balances) GetBalance(ctx context.Context, user string) (int64, error) {
	n, err := b.rdb.Get(ctx, key(user)).Int64()
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, redis.Nil):
	default:
		telemetry.GatewayFailed("redis")
		slog.Warn("balance cache read failed", slog.String("user", user), slog.Any("err", err), slog.String("component", "cache"))
	}
	if b.next == nil {
		if err != nil && !errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("cache get %s: %w", user, err)
		}
		return 0, ErrMiss
	}
	n, err = b.next.GetBalance(ctx, user)
	if err != nil {
		return 0, err
	}
	b.fill(ctx, user, n)
	return n, nil
}

// SetBalance writes through to the store, then refreshes the cache.
func (b *Balances) SetBalance(ctx context.Context, user string, balance int64) error {
	if b.next != nil {
		if err := b.next.SetBalance(ctx, user, balance); err != nil {
			// Drop the stale entry so readers do not see a value the store rejected.
			b.rdb.Del(ctx, key(user))
			return err
		}
		b.fill(ctx, user, balance)
		return nil
	}
	if err := b.rdb.Set(ctx, key(user), balance, b.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", user, err)
	}
	return nil
}

func (b *Balances) fill(ctx context.Context, user string, balance int64) {
	if err := b.rdb.Set(ctx, key(user), balance, b.ttl).Err(); err != nil {
		telemetry.GatewayFailed("redis")
		slog.Debug("balance cache fill failed", slog.String("user", user), slog.Any("err", err), slog.String("component", "cache"))
	}
}
