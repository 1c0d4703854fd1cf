// Package quota implements the storage-backed daily submission counter.
// The counter, not the preference snapshot, is the source of truth for
// "how many submissions happened today": reserve-then-confirm keeps the
// per-day cap intact when runs or workers overlap.
package quota

import (
	"context"
	"fmt"
	"time"
)

// store is the consumer interface for quota operations (ISP).
type store interface {
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store implements the run controller's QuotaReserver on top of an
// atomic counter (INCRBY with TTL). One key per candidate per UTC day.
type Store struct {
	store  store
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// New creates a quota store. ttl is the key expiry (recommended: 48h,
// long enough to outlive the day it counts).
func New(s store, prefix string, ttl time.Duration) *Store {
	return &Store{
		store:  s,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the time source (tests).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Reserve atomically takes one slot of the candidate's daily budget.
// Returns false when the day's limit is already spent; the increment is
// rolled back so a parallel reservation does not observe a phantom slot.
func (s *Store) Reserve(ctx context.Context, candidateID string, limit int) (bool, error) {
	key := s.key(candidateID)

	n, err := s.store.IncrBy(ctx, key, 1)
	if err != nil {
		return false, fmt.Errorf("quota INCRBY %s: %w", key, err)
	}

	// Set TTL only if the key has no expiry yet (NX, not reset on repeat).
	// Roll back the increment on failure so the slot is not leaked and a
	// first write never leaves an immortal counter.
	if err := s.store.Expire(ctx, key, s.ttl, true); err != nil {
		if _, rbErr := s.store.IncrBy(ctx, key, -1); rbErr != nil {
			return false, fmt.Errorf("quota EXPIRE %s: %w (rollback also failed: %w)", key, err, rbErr)
		}
		return false, fmt.Errorf("quota EXPIRE %s: %w", key, err)
	}

	if n > int64(limit) {
		if _, err := s.store.IncrBy(ctx, key, -1); err != nil {
			return false, fmt.Errorf("quota rollback %s: %w", key, err)
		}
		return false, nil
	}
	return true, nil
}

// Release hands back one reserved slot after a failed submission.
func (s *Store) Release(ctx context.Context, candidateID string) error {
	key := s.key(candidateID)
	if _, err := s.store.IncrBy(ctx, key, -1); err != nil {
		return fmt.Errorf("quota DECRBY %s: %w", key, err)
	}
	return nil
}

// key builds the per-candidate per-day counter key,
// e.g. "matchd:quota:cand-1:2026-09-01".
func (s *Store) key(candidateID string) string {
	day := s.now().UTC().Format("2006-01-02")
	return s.prefix + "quota:" + candidateID + ":" + day
}
