// Package matchcache caches a candidate's ranked matches in Redis so
// repeated API reads between batch runs skip the full scoring pass.
package matchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/matchd/internal/db"
	"github.com/kailas-cloud/matchd/internal/domain/match"
)

// kv is the consumer interface for cache operations (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Cache stores ranked match lists keyed by candidate id.
type Cache struct {
	kv     kv
	prefix string
	ttl    time.Duration
}

// New creates a match cache with the given key prefix and entry TTL.
func New(kv kv, prefix string, ttl time.Duration) *Cache {
	return &Cache{kv: kv, prefix: prefix, ttl: ttl}
}

// Get returns the cached matches for a candidate. The second return
// value reports a cache hit; a miss is not an error.
func (c *Cache) Get(ctx context.Context, candidateID string) ([]match.Match, bool, error) {
	data, err := c.kv.Get(ctx, c.key(candidateID))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("match cache get %s: %w", candidateID, err)
	}

	var matches []match.Match
	if err := json.Unmarshal(data, &matches); err != nil {
		// A corrupt entry behaves like a miss; the caller recomputes.
		return nil, false, nil
	}
	return matches, true, nil
}

// Put stores the candidate's ranked matches.
func (c *Cache) Put(ctx context.Context, candidateID string, matches []match.Match) error {
	data, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("match cache encode %s: %w", candidateID, err)
	}
	if err := c.kv.SetWithTTL(ctx, c.key(candidateID), data, c.ttl); err != nil {
		return fmt.Errorf("match cache put %s: %w", candidateID, err)
	}
	return nil
}

// Invalidate drops the cached entry for a candidate.
func (c *Cache) Invalidate(ctx context.Context, candidateID string) error {
	if err := c.kv.Del(ctx, c.key(candidateID)); err != nil {
		return fmt.Errorf("match cache invalidate %s: %w", candidateID, err)
	}
	return nil
}

func (c *Cache) key(candidateID string) string {
	return c.prefix + "matches:" + candidateID
}
