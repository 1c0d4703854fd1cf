package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/matchd/internal/domain"
	logpkg "github.com/kailas-cloud/matchd/internal/logger"
	"github.com/kailas-cloud/matchd/internal/domain/match"
	"github.com/kailas-cloud/matchd/internal/usecase/backfill"
	"github.com/kailas-cloud/matchd/internal/usecase/evaluation"
	"github.com/kailas-cloud/matchd/internal/usecase/matching"
)

type fakeRunTrigger struct {
	run domain.BatchRun
	err error
}

func (f *fakeRunTrigger) Execute(context.Context) (domain.BatchRun, error) {
	return f.run, f.err
}

type fakeRunReader struct {
	runs map[string]domain.BatchRun
	err  error
}

func (f *fakeRunReader) Get(_ context.Context, id string) (domain.BatchRun, error) {
	if f.err != nil {
		return domain.BatchRun{}, f.err
	}
	run, ok := f.runs[id]
	if !ok {
		return domain.BatchRun{}, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return run, nil
}

type fakeMetricsReader struct {
	snaps map[string]evaluation.MetricsSnapshot
}

func (f *fakeMetricsReader) Get(_ context.Context, id string) (evaluation.MetricsSnapshot, error) {
	snap, ok := f.snaps[id]
	if !ok {
		return evaluation.MetricsSnapshot{}, fmt.Errorf("metrics %s: %w", id, domain.ErrNotFound)
	}
	return snap, nil
}

type fakeCandidateReader struct {
	candidates map[string]domain.CandidateProfile
}

func (f *fakeCandidateReader) Get(_ context.Context, id string) (domain.CandidateProfile, error) {
	c, ok := f.candidates[id]
	if !ok {
		return domain.CandidateProfile{}, fmt.Errorf("candidate %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (f *fakeCandidateReader) ListCandidatesWithEmbeddings(context.Context) ([]domain.CandidateProfile, error) {
	var out []domain.CandidateProfile
	for _, c := range f.candidates {
		out = append(out, c)
	}
	return out, nil
}

type fakeJobReader struct {
	jobs map[string]domain.JobPosting
}

func (f *fakeJobReader) Get(_ context.Context, id string) (domain.JobPosting, error) {
	j, ok := f.jobs[id]
	if !ok {
		return domain.JobPosting{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return j, nil
}

type fakeMatcher struct {
	matches []match.Match
	calls   int
}

func (f *fakeMatcher) MatchCandidate(context.Context, domain.CandidateProfile) ([]match.Match, error) {
	f.calls++
	return f.matches, nil
}

func (f *fakeMatcher) MatchJob(context.Context, domain.JobPosting, matching.CandidateSource) ([]match.Match, error) {
	f.calls++
	return f.matches, nil
}

type fakeCache struct {
	entries     map[string][]match.Match
	invalidated []string
}

func (f *fakeCache) Get(_ context.Context, id string) ([]match.Match, bool, error) {
	m, ok := f.entries[id]
	return m, ok, nil
}

func (f *fakeCache) Put(_ context.Context, id string, matches []match.Match) error {
	if f.entries == nil {
		f.entries = make(map[string][]match.Match)
	}
	f.entries[id] = matches
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, id string) error {
	delete(f.entries, id)
	f.invalidated = append(f.invalidated, id)
	return nil
}

type fakePrefStore struct {
	prefs map[string]domain.Preferences
}

func (f *fakePrefStore) Get(_ context.Context, id string) (domain.Preferences, error) {
	p, ok := f.prefs[id]
	if !ok {
		return domain.Preferences{}, fmt.Errorf("preferences %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakePrefStore) Upsert(_ context.Context, p domain.Preferences) error {
	if f.prefs == nil {
		f.prefs = make(map[string]domain.Preferences)
	}
	f.prefs[p.CandidateID] = p
	return nil
}

type fakeBackfiller struct {
	res backfill.Result
}

func (f *fakeBackfiller) Run(context.Context) (backfill.Result, error) {
	return f.res, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	trigger *fakeRunTrigger
	runs    *fakeRunReader
	metrics *fakeMetricsReader
	cands   *fakeCandidateReader
	jobs    *fakeJobReader
	matcher *fakeMatcher
	cache   *fakeCache
	prefs   *fakePrefStore
	router  chirouter.Router
}

func newTestEnv() *testEnv {
	env := &testEnv{
		trigger: &fakeRunTrigger{},
		runs:    &fakeRunReader{runs: map[string]domain.BatchRun{}},
		metrics: &fakeMetricsReader{snaps: map[string]evaluation.MetricsSnapshot{}},
		cands:   &fakeCandidateReader{candidates: map[string]domain.CandidateProfile{}},
		jobs:    &fakeJobReader{jobs: map[string]domain.JobPosting{}},
		matcher: &fakeMatcher{},
		cache:   &fakeCache{entries: map[string][]match.Match{}},
		prefs:   &fakePrefStore{prefs: map[string]domain.Preferences{}},
	}

	server := NewServer(
		env.trigger, env.runs, env.metrics,
		env.cands, env.jobs,
		env.matcher, env.cands, env.cache,
		env.prefs, &fakeBackfiller{},
		map[string]Pinger{"postgres": &fakePinger{}},
	)
	env.router = chirouter.NewRouter()
	server.Mount(env.router)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func testMatch(t *testing.T, cid, jid string, score int) match.Match {
	t.Helper()
	m, err := match.New(cid, jid, 0.85, score, nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("match.New: %v", err)
	}
	return m
}

func TestTriggerRun_ReturnsFinalizedRun(t *testing.T) {
	env := newTestEnv()
	env.trigger.run = domain.BatchRun{
		ID: "run-1", Status: domain.RunCompleted,
		StartedAt: time.Now().UTC(),
		Stats:     domain.RunStats{CandidatesEvaluated: 3},
	}

	rr := env.do(t, "POST", "/api/v1/runs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp runResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "run-1" || resp.Status != "completed" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.CandidatesEvaluated != 3 {
		t.Errorf("candidates evaluated = %d, want 3", resp.CandidatesEvaluated)
	}
}

func TestTriggerRun_ConcurrentRuns409(t *testing.T) {
	env := newTestEnv()
	env.trigger.err = domain.ErrRunInProgress

	rr := env.do(t, "POST", "/api/v1/runs", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != codeRunInProgress {
		t.Errorf("error code = %s, want %s", errResp.Code, codeRunInProgress)
	}
}

func TestGetRun_NotFound404(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, "GET", "/api/v1/runs/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGetRunMetrics(t *testing.T) {
	env := newTestEnv()
	env.metrics.snaps["run-1"] = evaluation.MetricsSnapshot{
		RunID:     "run-1",
		Submitted: 4,
	}

	rr := env.do(t, "GET", "/api/v1/runs/run-1/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var snap evaluation.MetricsSnapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Submitted != 4 {
		t.Errorf("submitted = %d, want 4", snap.Submitted)
	}
}

func TestGetCandidateMatches_CacheMissComputesAndFills(t *testing.T) {
	env := newTestEnv()
	env.cands.candidates["c1"] = domain.CandidateProfile{ID: "c1", Embedding: []float32{1}}
	env.matcher.matches = []match.Match{testMatch(t, "c1", "j1", 90)}

	rr := env.do(t, "GET", "/api/v1/candidates/c1/matches", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp matchListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Cached {
		t.Errorf("resp = %+v, want 1 uncached match", resp)
	}
	if _, ok := env.cache.entries["c1"]; !ok {
		t.Error("cache not filled after miss")
	}
}

func TestGetCandidateMatches_CacheHitSkipsMatcher(t *testing.T) {
	env := newTestEnv()
	env.cache.entries["c1"] = []match.Match{testMatch(t, "c1", "j1", 90)}

	rr := env.do(t, "GET", "/api/v1/candidates/c1/matches", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp matchListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Cached {
		t.Error("expected cached response")
	}
	if env.matcher.calls != 0 {
		t.Error("matcher must not run on a cache hit")
	}
}

func TestGetPreferences_DefaultsWhenMissing(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, "GET", "/api/v1/candidates/c1/preferences", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp preferencesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.AutoApplyEnabled || resp.AutoApplyMinScore != 70 || resp.MaxApplicationsPerDay != 5 {
		t.Errorf("defaults not applied: %+v", resp)
	}
}

func TestPutPreferences_StoresAndInvalidatesCache(t *testing.T) {
	env := newTestEnv()
	env.cache.entries["c1"] = []match.Match{testMatch(t, "c1", "j1", 90)}

	enabled := false
	rr := env.do(t, "PUT", "/api/v1/candidates/c1/preferences", preferencesRequest{
		AutoApplyEnabled:      &enabled,
		AutoApplyMinScore:     85,
		MaxApplicationsPerDay: 2,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	stored := env.prefs.prefs["c1"]
	if stored.AutoApplyEnabled || stored.AutoApplyMinScore != 85 || stored.MaxApplicationsPerDay != 2 {
		t.Errorf("stored = %+v", stored)
	}
	if len(env.cache.invalidated) != 1 || env.cache.invalidated[0] != "c1" {
		t.Errorf("cache invalidations = %v, want [c1]", env.cache.invalidated)
	}
}

func TestPutPreferences_ValidationFailure400(t *testing.T) {
	env := newTestEnv()

	enabled := true
	rr := env.do(t, "PUT", "/api/v1/candidates/c1/preferences", preferencesRequest{
		AutoApplyEnabled:  &enabled,
		AutoApplyMinScore: 150,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCompareStrategies(t *testing.T) {
	env := newTestEnv()

	req := compareRequest{
		StrategyA: "hybrid",
		StrategyB: "random",
		Seed:      42,
		Records: []compareRecord{
			{
				Candidate:  domain.CandidateProfile{ID: "c1", Skills: []string{"Go"}},
				Job:        domain.JobPosting{ID: "j1", Status: domain.JobOpen},
				Similarity: 0.9,
				Relevant:   true,
			},
			{
				Candidate:  domain.CandidateProfile{ID: "c2", Skills: []string{"COBOL"}},
				Job:        domain.JobPosting{ID: "j1", Status: domain.JobOpen},
				Similarity: 0.2,
				Relevant:   false,
			},
		},
	}

	rr := env.do(t, "POST", "/api/v1/evaluation/compare", req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp compareResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StrategyA.Name != "hybrid" || resp.StrategyB.Name != "random" {
		t.Errorf("strategy names = %s / %s", resp.StrategyA.Name, resp.StrategyB.Name)
	}
	if resp.Comparison.Winner == "" {
		t.Error("comparison winner missing")
	}
}

func TestCompareStrategies_UnknownStrategy400(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, "POST", "/api/v1/evaluation/compare", compareRequest{
		StrategyA: "hybrid",
		StrategyB: "psychic",
		Records: []compareRecord{{
			Candidate: domain.CandidateProfile{ID: "c1"},
			Job:       domain.JobPosting{ID: "j1"},
		}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleDomainError_UsesRequestLogger(t *testing.T) {
	env := newTestEnv()
	env.runs.err = errors.New("connection refused")

	core, observed := observer.New(zapcore.WarnLevel)
	reqLogger := zap.New(core)

	req := httptest.NewRequest("GET", "/api/v1/runs/run-1", http.NoBody)
	req = req.WithContext(logpkg.ContextWithLogger(req.Context(), reqLogger))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if observed.FilterMessage("internal error").Len() != 1 {
		t.Errorf("request logger saw %d 'internal error' entries, want 1", observed.Len())
	}
}

func TestHealthCheck_Unhealthy503(t *testing.T) {
	server := NewServer(
		&fakeRunTrigger{}, &fakeRunReader{}, &fakeMetricsReader{},
		&fakeCandidateReader{}, &fakeJobReader{},
		&fakeMatcher{}, &fakeCandidateReader{}, &fakeCache{},
		&fakePrefStore{}, &fakeBackfiller{},
		map[string]Pinger{
			"postgres": &fakePinger{},
			"redis":    &fakePinger{err: errors.New("down")},
		},
	)
	router := chirouter.NewRouter()
	server.Mount(router)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["redis"] != "unhealthy" || resp.Checks["postgres"] != "healthy" {
		t.Errorf("checks = %v", resp.Checks)
	}
}
