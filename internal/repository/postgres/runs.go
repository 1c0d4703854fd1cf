package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/matchd/internal/domain"
)

// RunRepo persists batch run records.
type RunRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRunRepo creates a run repository.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool, now: time.Now}
}

// WithClock overrides the time source (tests).
func (r *RunRepo) WithClock(now func() time.Time) *RunRepo {
	r.now = now
	return r
}

// Create allocates a new in_progress run record.
func (r *RunRepo) Create(ctx context.Context) (domain.BatchRun, error) {
	run := domain.BatchRun{
		ID:        uuid.NewString(),
		Status:    domain.RunInProgress,
		StartedAt: r.now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO batch_runs (id, status, started_at)
		VALUES ($1, $2, $3)`,
		run.ID, run.Status, run.StartedAt)
	if err != nil {
		return domain.BatchRun{}, fmt.Errorf("insert batch run: %w", err)
	}
	return run, nil
}

// Finalize transitions a run to its terminal state. Guarded on the
// current status so a finalized run is never reopened or overwritten;
// a second finalize returns domain.ErrRunFinalized.
func (r *RunRepo) Finalize(
	ctx context.Context, runID string,
	status domain.RunStatus, stats domain.RunStats, errSummary string,
) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE batch_runs SET
			status = $2,
			completed_at = $3,
			candidates_evaluated = $4,
			matches_found = $5,
			applications_submitted = $6,
			applications_skipped = $7,
			error_summary = $8
		WHERE id = $1 AND status = 'in_progress'`,
		runID, status, r.now().UTC(),
		stats.CandidatesEvaluated, stats.MatchesFound,
		stats.ApplicationsSubmitted, stats.ApplicationsSkipped,
		errSummary)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, domain.ErrRunFinalized)
	}
	return nil
}

// Get returns one run record by id.
func (r *RunRepo) Get(ctx context.Context, runID string) (domain.BatchRun, error) {
	var (
		run         domain.BatchRun
		completedAt *time.Time
		errSummary  *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, status, started_at, completed_at,
		       candidates_evaluated, matches_found,
		       applications_submitted, applications_skipped,
		       error_summary
		FROM batch_runs
		WHERE id = $1`, runID,
	).Scan(
		&run.ID, &run.Status, &run.StartedAt, &completedAt,
		&run.Stats.CandidatesEvaluated, &run.Stats.MatchesFound,
		&run.Stats.ApplicationsSubmitted, &run.Stats.ApplicationsSkipped,
		&errSummary,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BatchRun{}, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BatchRun{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	run.CompletedAt = completedAt
	if errSummary != nil {
		run.ErrorSummary = *errSummary
	}
	return run, nil
}

// FailStale marks in_progress runs older than the cutoff as failed.
// Recovers records orphaned by a crash mid-run.
func (r *RunRepo) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := r.now().UTC().Add(-olderThan)
	tag, err := r.pool.Exec(ctx, `
		UPDATE batch_runs SET
			status = 'failed',
			completed_at = $2,
			error_summary = 'marked stale: still in_progress past cutoff'
		WHERE status = 'in_progress' AND started_at < $1`,
		cutoff, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail stale runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
