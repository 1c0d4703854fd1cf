package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/matchd/internal/domain"
)

const pgUniqueViolation = "23505"

// ApplicationRepo reads and writes submitted applications. The
// (candidate_id, job_posting_id) unique constraint is the last line of
// defense against double submission.
type ApplicationRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewApplicationRepo creates an application repository.
func NewApplicationRepo(pool *pgxpool.Pool) *ApplicationRepo {
	return &ApplicationRepo{pool: pool, now: time.Now}
}

// WithClock overrides the time source (tests).
func (r *ApplicationRepo) WithClock(now func() time.Time) *ApplicationRepo {
	r.now = now
	return r
}

// Submit inserts one application and returns its id. A unique-constraint
// violation maps to domain.ErrDuplicateApplication.
func (r *ApplicationRepo) Submit(ctx context.Context, rec domain.ApplicationRecord) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO applications (id, candidate_id, job_posting_id, match_score, source, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, rec.CandidateID, rec.JobPostingID, rec.MatchScore, rec.Source, rec.SubmittedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", fmt.Errorf("%s -> %s: %w", rec.CandidateID, rec.JobPostingID, domain.ErrDuplicateApplication)
		}
		return "", fmt.Errorf("insert application: %w", err)
	}
	return id, nil
}

// HasApplication reports whether the candidate already applied to the job.
func (r *ApplicationRepo) HasApplication(ctx context.Context, candidateID, jobID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM applications
			WHERE candidate_id = $1 AND job_posting_id = $2
		)`, candidateID, jobID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check application %s -> %s: %w", candidateID, jobID, err)
	}
	return exists, nil
}

// CountToday returns the number of applications the candidate submitted
// since UTC midnight. The quota day boundary is UTC, not local time.
func (r *ApplicationRepo) CountToday(ctx context.Context, candidateID string) (int, error) {
	midnight := r.now().UTC().Truncate(24 * time.Hour)

	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM applications
		WHERE candidate_id = $1 AND submitted_at >= $2`,
		candidateID, midnight).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count today's applications %s: %w", candidateID, err)
	}
	return n, nil
}
