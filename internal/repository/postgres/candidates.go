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

// CandidateRepo reads candidate profiles for matching.
type CandidateRepo struct {
	pool *pgxpool.Pool
}

// NewCandidateRepo creates a candidate repository.
func NewCandidateRepo(pool *pgxpool.Pool) *CandidateRepo {
	return &CandidateRepo{pool: pool}
}

const candidateColumns = `
	c.id, c.skills, c.preferred_categories, c.embedding,
	COALESCE(c.experience, '[]'::jsonb), COALESCE(c.education, '[]'::jsonb)`

// Get returns one candidate profile by id.
func (r *CandidateRepo) Get(ctx context.Context, id string) (domain.CandidateProfile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+candidateColumns+`
		FROM candidates c
		WHERE c.id = $1`, id)

	c, err := scanCandidate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CandidateProfile{}, fmt.Errorf("candidate %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CandidateProfile{}, fmt.Errorf("get candidate %s: %w", id, err)
	}
	return c, nil
}

// ListAutoApplyCandidates pages through candidates eligible for the
// batch run: an embedding is present and auto-apply is not explicitly
// disabled (candidates without a preference row default to enabled).
func (r *CandidateRepo) ListAutoApplyCandidates(ctx context.Context, offset, limit int) ([]domain.CandidateProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+candidateColumns+`
		FROM candidates c
		LEFT JOIN candidate_preferences p ON p.candidate_id = c.id
		WHERE c.embedding IS NOT NULL
		  AND COALESCE(p.auto_apply_enabled, TRUE)
		ORDER BY c.id
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list auto-apply candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateProfile
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCandidatesWithEmbeddings returns every candidate usable for the
// recruiter-direction match (job to candidates).
func (r *CandidateRepo) ListCandidatesWithEmbeddings(ctx context.Context) ([]domain.CandidateProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+candidateColumns+`
		FROM candidates c
		WHERE c.embedding IS NOT NULL
		ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("list candidates with embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateProfile
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListMissingEmbeddings returns candidates without a vector, for the
// embedding backfill job.
func (r *CandidateRepo) ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.CandidateProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+candidateColumns+`
		FROM candidates c
		WHERE c.embedding IS NULL
		ORDER BY c.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates missing embeddings: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateProfile
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetEmbedding stores the vector produced by the embedding provider.
func (r *CandidateRepo) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE candidates SET embedding = $2, updated_at = now()
		WHERE id = $1`, id, embedding)
	if err != nil {
		return fmt.Errorf("set candidate embedding %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("candidate %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanCandidate(row pgx.Row) (domain.CandidateProfile, error) {
	var (
		c             domain.CandidateProfile
		experienceRaw []byte
		educationRaw  []byte
	)
	err := row.Scan(
		&c.ID, &c.Skills, &c.PreferredCategories, &c.Embedding,
		&experienceRaw, &educationRaw,
	)
	if err != nil {
		return domain.CandidateProfile{}, err
	}
	if err := json.Unmarshal(experienceRaw, &c.Experience); err != nil {
		return domain.CandidateProfile{}, fmt.Errorf("decode experience: %w", err)
	}
	if err := json.Unmarshal(educationRaw, &c.Education); err != nil {
		return domain.CandidateProfile{}, fmt.Errorf("decode education: %w", err)
	}
	return c, nil
}
