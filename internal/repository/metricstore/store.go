// Package metricstore persists finalized run metrics snapshots.
package metricstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/usecase/evaluation"
)

// Store implements the run controller's MetricsSink on Postgres, one
// JSONB snapshot per run.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a metrics store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Save persists the snapshot. A re-save for the same run overwrites;
// Finalize is idempotent so the last snapshot is the same snapshot.
func (s *Store) Save(ctx context.Context, snap evaluation.MetricsSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode metrics snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO run_metrics (run_id, snapshot)
		VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET snapshot = EXCLUDED.snapshot`,
		snap.RunID, data)
	if err != nil {
		return fmt.Errorf("save metrics snapshot %s: %w", snap.RunID, err)
	}
	return nil
}

// Get returns the persisted snapshot for a run.
func (s *Store) Get(ctx context.Context, runID string) (evaluation.MetricsSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT snapshot FROM run_metrics WHERE run_id = $1`, runID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return evaluation.MetricsSnapshot{}, fmt.Errorf("metrics for run %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return evaluation.MetricsSnapshot{}, fmt.Errorf("get metrics snapshot %s: %w", runID, err)
	}

	var snap evaluation.MetricsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return evaluation.MetricsSnapshot{}, fmt.Errorf("decode metrics snapshot %s: %w", runID, err)
	}
	return snap, nil
}
