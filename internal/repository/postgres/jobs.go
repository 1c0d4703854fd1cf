package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/matchd/internal/domain"
)

// JobRepo reads job postings for matching.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo creates a job repository.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `
	j.id, j.title, COALESCE(j.requirements, '[]'::jsonb),
	j.categories, j.status, j.embedding`

// Get returns one job posting by id.
func (r *JobRepo) Get(ctx context.Context, id string) (domain.JobPosting, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+jobColumns+`
		FROM job_postings j
		WHERE j.id = $1`, id)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JobPosting{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.JobPosting{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// ListOpenJobs returns every open posting with an embedding; the match
// orchestrator compares the candidate against all of them.
func (r *JobRepo) ListOpenJobs(ctx context.Context) ([]domain.JobPosting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+jobColumns+`
		FROM job_postings j
		WHERE j.status = 'open' AND j.embedding IS NOT NULL
		ORDER BY j.id`)
	if err != nil {
		return nil, fmt.Errorf("list open jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.JobPosting
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListMissingEmbeddings returns open postings without a vector, for
// the embedding backfill job.
func (r *JobRepo) ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.JobPosting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+jobColumns+`
		FROM job_postings j
		WHERE j.status = 'open' AND j.embedding IS NULL
		ORDER BY j.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs missing embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.JobPosting
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// SetEmbedding stores the vector produced by the embedding provider.
func (r *JobRepo) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE job_postings SET embedding = $2, updated_at = now()
		WHERE id = $1`, id, embedding)
	if err != nil {
		return fmt.Errorf("set job embedding %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanJob(row pgx.Row) (domain.JobPosting, error) {
	var (
		j               domain.JobPosting
		requirementsRaw []byte
	)
	err := row.Scan(
		&j.ID, &j.Title, &requirementsRaw,
		&j.Categories, &j.Status, &j.Embedding,
	)
	if err != nil {
		return domain.JobPosting{}, err
	}
	if err := json.Unmarshal(requirementsRaw, &j.Requirements); err != nil {
		return domain.JobPosting{}, fmt.Errorf("decode requirements: %w", err)
	}
	return j, nil
}
