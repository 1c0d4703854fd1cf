package run

import (
	"context"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
	"github.com/kailas-cloud/matchd/internal/usecase/evaluation"
)

// CandidatePool pages through candidates eligible for auto-apply
// (opted in, with an embedding).
type CandidatePool interface {
	ListAutoApplyCandidates(ctx context.Context, offset, limit int) ([]domain.CandidateProfile, error)
}

// Matcher produces the ranked match list for one candidate.
type Matcher interface {
	MatchCandidate(ctx context.Context, c domain.CandidateProfile) ([]match.Match, error)
}

// PreferenceStore reads candidate auto-apply preferences.
// Implementations return domain.ErrNotFound when no row exists; the
// controller then applies the documented defaults.
type PreferenceStore interface {
	Get(ctx context.Context, candidateID string) (domain.Preferences, error)
}

// ApplicationReader answers dedup and daily-count questions.
type ApplicationReader interface {
	HasApplication(ctx context.Context, candidateID, jobID string) (bool, error)
	CountToday(ctx context.Context, candidateID string) (int, error)
}

// Submitter inserts one application. Returns the new application id,
// or domain.ErrDuplicateApplication when the storage uniqueness
// constraint rejects the insert.
type Submitter interface {
	Submit(ctx context.Context, rec domain.ApplicationRecord) (string, error)
}

// RunStore allocates and finalizes batch run records.
type RunStore interface {
	Create(ctx context.Context) (domain.BatchRun, error)
	Finalize(ctx context.Context, runID string, status domain.RunStatus, stats domain.RunStats, errSummary string) error
}

// QuotaReserver is the atomic, storage-backed daily counter that keeps
// the per-day cap intact even if runs or workers overlap
// (reserve-then-confirm: reserve before insert, release on failure).
type QuotaReserver interface {
	Reserve(ctx context.Context, candidateID string, limit int) (bool, error)
	Release(ctx context.Context, candidateID string) error
}

// MetricsSink persists the finalized per-run metrics snapshot.
type MetricsSink interface {
	Save(ctx context.Context, snap evaluation.MetricsSnapshot) error
}
