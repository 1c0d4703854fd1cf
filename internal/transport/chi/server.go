// Package chi is the admin HTTP API: run triggering and inspection,
// match listing, preference management, strategy comparison, backfill.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
	logpkg "github.com/kailas-cloud/matchd/internal/logger"
	"github.com/kailas-cloud/matchd/internal/usecase/backfill"
	"github.com/kailas-cloud/matchd/internal/usecase/evaluation"
	"github.com/kailas-cloud/matchd/internal/usecase/matching"
)

// RunTrigger starts one batch run.
type RunTrigger interface {
	Execute(ctx context.Context) (domain.BatchRun, error)
}

// RunReader reads batch run records.
type RunReader interface {
	Get(ctx context.Context, runID string) (domain.BatchRun, error)
}

// MetricsReader reads persisted run metrics snapshots.
type MetricsReader interface {
	Get(ctx context.Context, runID string) (evaluation.MetricsSnapshot, error)
}

// CandidateReader reads candidate profiles.
type CandidateReader interface {
	Get(ctx context.Context, id string) (domain.CandidateProfile, error)
}

// JobReader reads job postings.
type JobReader interface {
	Get(ctx context.Context, id string) (domain.JobPosting, error)
}

// Matcher produces ranked matches in either direction.
type Matcher interface {
	MatchCandidate(ctx context.Context, c domain.CandidateProfile) ([]match.Match, error)
	MatchJob(ctx context.Context, j domain.JobPosting, candidates matching.CandidateSource) ([]match.Match, error)
}

// MatchCache caches ranked match lists per candidate.
type MatchCache interface {
	Get(ctx context.Context, candidateID string) ([]match.Match, bool, error)
	Put(ctx context.Context, candidateID string, matches []match.Match) error
	Invalidate(ctx context.Context, candidateID string) error
}

// PreferenceStore reads and writes auto-apply preferences.
type PreferenceStore interface {
	Get(ctx context.Context, candidateID string) (domain.Preferences, error)
	Upsert(ctx context.Context, p domain.Preferences) error
}

// Backfiller runs one embedding backfill pass.
type Backfiller interface {
	Run(ctx context.Context) (backfill.Result, error)
}

// Pinger checks one backing component's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the admin HTTP API server.
type Server struct {
	runs       RunTrigger
	runReader  RunReader
	metrics    MetricsReader
	candidates CandidateReader
	jobs       JobReader
	matcher    Matcher
	candSource matching.CandidateSource
	cache      MatchCache
	prefs      PreferenceStore
	backfiller Backfiller
	checks     map[string]Pinger
	validate   *validator.Validate
}

// NewServer creates an HTTP API server.
func NewServer(
	runs RunTrigger, runReader RunReader, metrics MetricsReader,
	candidates CandidateReader, jobs JobReader,
	matcher Matcher, candSource matching.CandidateSource, cache MatchCache,
	prefs PreferenceStore, backfiller Backfiller,
	checks map[string]Pinger,
) *Server {
	return &Server{
		runs:       runs,
		runReader:  runReader,
		metrics:    metrics,
		candidates: candidates,
		jobs:       jobs,
		matcher:    matcher,
		candSource: candSource,
		cache:      cache,
		prefs:      prefs,
		backfiller: backfiller,
		checks:     checks,
		validate:   validator.New(),
	}
}

// Mount attaches the API routes to the router.
func (s *Server) Mount(r chirouter.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chirouter.Router) {
		r.Post("/runs", s.TriggerRun)
		r.Get("/runs/{runID}", s.GetRun)
		r.Get("/runs/{runID}/metrics", s.GetRunMetrics)

		r.Get("/candidates/{candidateID}/matches", s.GetCandidateMatches)
		r.Get("/candidates/{candidateID}/preferences", s.GetPreferences)
		r.Put("/candidates/{candidateID}/preferences", s.PutPreferences)

		r.Get("/jobs/{jobID}/matches", s.GetJobMatches)

		r.Post("/evaluation/compare", s.CompareStrategies)
		r.Post("/backfill", s.RunBackfill)
	})
}

// TriggerRun handles POST /api/v1/runs. The run executes synchronously
// and the finalized record is returned; an overlapping trigger gets 409.
func (s *Server) TriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Execute(r.Context())
	if errors.Is(err, domain.ErrRunInProgress) {
		writeError(w, http.StatusConflict, codeRunInProgress, "a batch run is already in progress")
		return
	}
	if err != nil && run.ID == "" {
		s.handleDomainError(w, r, err)
		return
	}
	// A failed run is still a finalized record worth returning.
	writeJSON(w, http.StatusOK, runToResponse(run))
}

// GetRun handles GET /api/v1/runs/{runID}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runReader.Get(r.Context(), chirouter.URLParam(r, "runID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runToResponse(run))
}

// GetRunMetrics handles GET /api/v1/runs/{runID}/metrics.
func (s *Server) GetRunMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.Get(r.Context(), chirouter.URLParam(r, "runID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetCandidateMatches handles GET /api/v1/candidates/{candidateID}/matches.
// Serves from the match cache when possible; a miss recomputes and fills it.
func (s *Server) GetCandidateMatches(w http.ResponseWriter, r *http.Request) {
	candidateID := chirouter.URLParam(r, "candidateID")

	if matches, hit, err := s.cache.Get(r.Context(), candidateID); err == nil && hit {
		writeJSON(w, http.StatusOK, matchList(matches, true))
		return
	} else if err != nil {
		logpkg.FromContext(r.Context()).Warn("Match cache read failed", zap.Error(err))
	}

	cand, err := s.candidates.Get(r.Context(), candidateID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	matches, err := s.matcher.MatchCandidate(r.Context(), cand)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if err := s.cache.Put(r.Context(), candidateID, matches); err != nil {
		logpkg.FromContext(r.Context()).Warn("Match cache write failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, matchList(matches, false))
}

// GetJobMatches handles GET /api/v1/jobs/{jobID}/matches.
func (s *Server) GetJobMatches(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chirouter.URLParam(r, "jobID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	matches, err := s.matcher.MatchJob(r.Context(), job, s.candSource)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchList(matches, false))
}

// GetPreferences handles GET /api/v1/candidates/{candidateID}/preferences.
// A candidate without a stored row gets the defaults.
func (s *Server) GetPreferences(w http.ResponseWriter, r *http.Request) {
	candidateID := chirouter.URLParam(r, "candidateID")

	prefs, err := s.prefs.Get(r.Context(), candidateID)
	if errors.Is(err, domain.ErrNotFound) {
		prefs = domain.DefaultPreferences(candidateID)
	} else if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preferencesToResponse(prefs))
}

// PutPreferences handles PUT /api/v1/candidates/{candidateID}/preferences.
func (s *Server) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	prefs := domain.Preferences{
		CandidateID:           chirouter.URLParam(r, "candidateID"),
		AutoApplyEnabled:      *req.AutoApplyEnabled,
		AutoApplyMinScore:     req.AutoApplyMinScore,
		MaxApplicationsPerDay: req.MaxApplicationsPerDay,
	}
	if err := s.prefs.Upsert(r.Context(), prefs); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	// Preference changes affect ranking gates; drop the cached matches.
	if err := s.cache.Invalidate(r.Context(), prefs.CandidateID); err != nil {
		logpkg.FromContext(r.Context()).Warn("Match cache invalidation failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, preferencesToResponse(prefs))
}

// CompareStrategies handles POST /api/v1/evaluation/compare.
func (s *Server) CompareStrategies(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	records := make([]evaluation.Record, len(req.Records))
	for i, rec := range req.Records {
		records[i] = evaluation.Record{
			Candidate:  rec.Candidate,
			Job:        rec.Job,
			Similarity: rec.Similarity,
			Relevant:   rec.Relevant,
		}
	}

	resultA, err := s.runStrategy(req.StrategyA, records, req.Seed)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	resultB, err := s.runStrategy(req.StrategyB, records, req.Seed)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, compareResponse{
		StrategyA:  resultA,
		StrategyB:  resultB,
		Comparison: evaluation.CompareStrategies(resultA, resultB),
	})
}

func (s *Server) runStrategy(name string, records []evaluation.Record, seed int64) (evaluation.StrategyResult, error) {
	matches, err := evaluation.RunStrategy(name, records, seed)
	if err != nil {
		return evaluation.StrategyResult{}, err
	}
	golden := evaluation.GoldenPairs(records)
	return evaluation.EvaluateStrategy(
		name, matches, golden,
		len(records), len(records), 0, evaluation.DefaultCosts(),
	), nil
}

// RunBackfill handles POST /api/v1/backfill.
func (s *Server) RunBackfill(w http.ResponseWriter, r *http.Request) {
	res, err := s.backfiller.Run(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backfillResponse{
		CandidatesEmbedded: res.CandidatesEmbedded,
		JobsEmbedded:       res.JobsEmbedded,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := make(map[string]string, len(s.checks))
	for name, p := range s.checks {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = "unhealthy"
			status = "unhealthy"
			continue
		}
		checks[name] = "healthy"
	}

	httpStatus := http.StatusOK
	if status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: status, Checks: checks})
}

func matchList(matches []match.Match, cached bool) matchListResponse {
	items := make([]matchResponse, len(matches))
	for i, m := range matches {
		items[i] = matchToResponse(m)
	}
	return matchListResponse{Items: items, Total: len(items), Cached: cached}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrValidation,
		domain.ErrDimensionMismatch,
		domain.ErrRunInProgress,
		domain.ErrRunFinalized,
		domain.ErrDuplicateApplication,
		domain.ErrUpstreamUnavailable,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context())
	msg := safeDomainMessage(err)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, msg)
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrDimensionMismatch):
		writeError(w, http.StatusBadRequest, codeValidationFailed, msg)
	case errors.Is(err, domain.ErrRunInProgress):
		writeError(w, http.StatusConflict, codeRunInProgress, msg)
	case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrEmbeddingProviderError):
		logger.Warn("upstream error", zap.Error(err))
		writeError(w, http.StatusBadGateway, codeUpstreamError, msg)
	default:
		logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
