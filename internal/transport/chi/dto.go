package chi

import (
	"time"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
	"github.com/kailas-cloud/matchd/internal/usecase/evaluation"
)

// Error codes returned in the error response body.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeRunInProgress    = "run_in_progress"
	codeUpstreamError    = "upstream_error"
	codeInternalError    = "internal_error"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// runResponse is the API view of a batch run record.
type runResponse struct {
	ID                    string     `json:"id"`
	Status                string     `json:"status"`
	StartedAt             time.Time  `json:"started_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CandidatesEvaluated   int        `json:"candidates_evaluated"`
	MatchesFound          int        `json:"matches_found"`
	ApplicationsSubmitted int        `json:"applications_submitted"`
	ApplicationsSkipped   int        `json:"applications_skipped"`
	ErrorSummary          string     `json:"error_summary,omitempty"`
}

func runToResponse(run domain.BatchRun) runResponse {
	return runResponse{
		ID:                    run.ID,
		Status:                string(run.Status),
		StartedAt:             run.StartedAt,
		CompletedAt:           run.CompletedAt,
		CandidatesEvaluated:   run.Stats.CandidatesEvaluated,
		MatchesFound:          run.Stats.MatchesFound,
		ApplicationsSubmitted: run.Stats.ApplicationsSubmitted,
		ApplicationsSkipped:   run.Stats.ApplicationsSkipped,
		ErrorSummary:          run.ErrorSummary,
	}
}

// matchResponse is the API view of one scored match.
type matchResponse struct {
	CandidateID  string    `json:"candidate_id"`
	JobPostingID string    `json:"job_posting_id"`
	Similarity   float64   `json:"similarity"`
	Score        int       `json:"score"`
	Reasons      []string  `json:"reasons"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

func matchToResponse(m match.Match) matchResponse {
	return matchResponse{
		CandidateID:  m.CandidateID,
		JobPostingID: m.JobPostingID,
		Similarity:   m.Similarity,
		Score:        m.Score,
		Reasons:      m.ReasonStrings(),
		EvaluatedAt:  m.EvaluatedAt,
	}
}

// matchListResponse wraps a ranked match list.
type matchListResponse struct {
	Items  []matchResponse `json:"items"`
	Total  int             `json:"total"`
	Cached bool            `json:"cached"`
}

// preferencesRequest is the preference upsert body.
type preferencesRequest struct {
	AutoApplyEnabled      *bool `json:"auto_apply_enabled" validate:"required"`
	AutoApplyMinScore     int   `json:"auto_apply_min_score" validate:"gte=0,lte=100"`
	MaxApplicationsPerDay int   `json:"max_applications_per_day" validate:"gte=0,lte=100"`
}

// preferencesResponse is the API view of stored preferences.
type preferencesResponse struct {
	CandidateID           string `json:"candidate_id"`
	AutoApplyEnabled      bool   `json:"auto_apply_enabled"`
	AutoApplyMinScore     int    `json:"auto_apply_min_score"`
	MaxApplicationsPerDay int    `json:"max_applications_per_day"`
}

func preferencesToResponse(p domain.Preferences) preferencesResponse {
	return preferencesResponse{
		CandidateID:           p.CandidateID,
		AutoApplyEnabled:      p.AutoApplyEnabled,
		AutoApplyMinScore:     p.AutoApplyMinScore,
		MaxApplicationsPerDay: p.MaxApplicationsPerDay,
	}
}

// compareRequest replays a labeled dataset through two strategies.
type compareRequest struct {
	StrategyA string          `json:"strategy_a" validate:"required,oneof=hybrid semantic keyword random"`
	StrategyB string          `json:"strategy_b" validate:"required,oneof=hybrid semantic keyword random"`
	Seed      int64           `json:"seed"`
	Records   []compareRecord `json:"records" validate:"required,min=1,dive"`
}

// compareRecord is one labeled (candidate, job) pair.
type compareRecord struct {
	Candidate  domain.CandidateProfile `json:"candidate" validate:"required"`
	Job        domain.JobPosting       `json:"job" validate:"required"`
	Similarity float64                 `json:"similarity" validate:"gte=0,lte=1"`
	Relevant   bool                    `json:"relevant"`
}

// compareResponse carries both strategy results and the head-to-head outcome.
type compareResponse struct {
	StrategyA  evaluation.StrategyResult `json:"strategy_a"`
	StrategyB  evaluation.StrategyResult `json:"strategy_b"`
	Comparison evaluation.Comparison     `json:"comparison"`
}

// backfillResponse counts one backfill pass.
type backfillResponse struct {
	CandidatesEmbedded int `json:"candidates_embedded"`
	JobsEmbedded       int `json:"jobs_embedded"`
}

// healthResponse reports component health.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
