package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/matchd/internal/domain"
)

// PreferenceRepo reads and writes auto-apply preferences.
type PreferenceRepo struct {
	pool *pgxpool.Pool
}

// NewPreferenceRepo creates a preference repository.
func NewPreferenceRepo(pool *pgxpool.Pool) *PreferenceRepo {
	return &PreferenceRepo{pool: pool}
}

// Get returns the stored preferences for a candidate, or
// domain.ErrNotFound when no row exists (the caller applies defaults).
func (r *PreferenceRepo) Get(ctx context.Context, candidateID string) (domain.Preferences, error) {
	var p domain.Preferences
	err := r.pool.QueryRow(ctx, `
		SELECT candidate_id, auto_apply_enabled, auto_apply_min_score, max_applications_per_day
		FROM candidate_preferences
		WHERE candidate_id = $1`, candidateID,
	).Scan(&p.CandidateID, &p.AutoApplyEnabled, &p.AutoApplyMinScore, &p.MaxApplicationsPerDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Preferences{}, fmt.Errorf("preferences for %s: %w", candidateID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("get preferences %s: %w", candidateID, err)
	}
	return p, nil
}

// Upsert stores the candidate's preferences.
func (r *PreferenceRepo) Upsert(ctx context.Context, p domain.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO candidate_preferences
			(candidate_id, auto_apply_enabled, auto_apply_min_score, max_applications_per_day, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (candidate_id) DO UPDATE SET
			auto_apply_enabled = EXCLUDED.auto_apply_enabled,
			auto_apply_min_score = EXCLUDED.auto_apply_min_score,
			max_applications_per_day = EXCLUDED.max_applications_per_day,
			updated_at = now()`,
		p.CandidateID, p.AutoApplyEnabled, p.AutoApplyMinScore, p.MaxApplicationsPerDay)
	if err != nil {
		return fmt.Errorf("upsert preferences %s: %w", p.CandidateID, err)
	}
	return nil
}
