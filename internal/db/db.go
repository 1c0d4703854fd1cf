// Package db defines the key-value store contract used by the quota
// and cache repositories, plus the errors its drivers return.
package db

import (
	"context"
	"time"
)

// KV is the key-value surface the repositories need. Implemented by
// the redis driver; counters are atomic on the server side.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	// IncrBy returns the counter value after the increment.
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	// Expire sets TTL on a key. When nx=true, only if it has no expiry yet.
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error

	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
