package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
	"github.com/kailas-cloud/matchd/internal/usecase/evaluation"
	"github.com/kailas-cloud/matchd/internal/usecase/matching"
)

// --- Mocks ---

type mockPool struct {
	candidates []domain.CandidateProfile
	err        error
}

func (m *mockPool) ListAutoApplyCandidates(_ context.Context, offset, limit int) ([]domain.CandidateProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	if offset >= len(m.candidates) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.candidates) {
		end = len(m.candidates)
	}
	return m.candidates[offset:end], nil
}

type mockMatcher struct {
	matches map[string][]match.Match
	errs    map[string]error
}

func (m *mockMatcher) MatchCandidate(_ context.Context, c domain.CandidateProfile) ([]match.Match, error) {
	if err := m.errs[c.ID]; err != nil {
		return nil, err
	}
	return m.matches[c.ID], nil
}

type mockPrefs struct {
	prefs map[string]domain.Preferences
}

func (m *mockPrefs) Get(_ context.Context, candidateID string) (domain.Preferences, error) {
	p, ok := m.prefs[candidateID]
	if !ok {
		return domain.Preferences{}, domain.ErrNotFound
	}
	return p, nil
}

type mockApps struct {
	mu       sync.Mutex
	applied  map[string]bool // "cid/jid"
	today    map[string]int
	countErr error
}

func (m *mockApps) HasApplication(_ context.Context, cid, jid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[cid+"/"+jid], nil
}

func (m *mockApps) CountToday(_ context.Context, cid string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.today[cid], nil
}

type mockSubmitter struct {
	mu        sync.Mutex
	submitted []domain.ApplicationRecord
	dupes     map[string]bool // "cid/jid" -> storage-level duplicate
	err       error
}

func (m *mockSubmitter) Submit(_ context.Context, rec domain.ApplicationRecord) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.CandidateID + "/" + rec.JobPostingID
	if m.dupes[key] {
		return "", domain.ErrDuplicateApplication
	}
	if m.dupes == nil {
		m.dupes = make(map[string]bool)
	}
	m.dupes[key] = true
	m.submitted = append(m.submitted, rec)
	return fmt.Sprintf("app-%d", len(m.submitted)), nil
}

type mockRunStore struct {
	mu        sync.Mutex
	createErr error
	finalized []domain.BatchRun
}

func (m *mockRunStore) Create(_ context.Context) (domain.BatchRun, error) {
	if m.createErr != nil {
		return domain.BatchRun{}, m.createErr
	}
	return domain.BatchRun{
		ID:        "run-1",
		Status:    domain.RunInProgress,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (m *mockRunStore) Finalize(_ context.Context, runID string, status domain.RunStatus, stats domain.RunStats, errSummary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, domain.BatchRun{
		ID: runID, Status: status, Stats: stats, ErrorSummary: errSummary,
	})
	return nil
}

type mockQuota struct {
	mu       sync.Mutex
	reserved map[string]int
	limitHit bool
}

func (m *mockQuota) Reserve(_ context.Context, cid string, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved == nil {
		m.reserved = make(map[string]int)
	}
	if m.limitHit || m.reserved[cid] >= limit {
		return false, nil
	}
	m.reserved[cid]++
	return true, nil
}

func (m *mockQuota) Release(_ context.Context, cid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved[cid] > 0 {
		m.reserved[cid]--
	}
	return nil
}

type mockSink struct {
	mu    sync.Mutex
	saved []evaluation.MetricsSnapshot
}

func (m *mockSink) Save(_ context.Context, snap evaluation.MetricsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, snap)
	return nil
}

// --- Helpers ---

func candidateWithVector(id string) domain.CandidateProfile {
	return domain.CandidateProfile{
		ID:        id,
		Skills:    []string{"Go"},
		Embedding: []float32{1, 0, 0},
		Experience: []domain.WorkExperience{
			{Company: "acme", DurationMonths: 12},
		},
		Education: []domain.Education{{Institution: "uni"}},
	}
}

func rankedMatch(t *testing.T, cid, jid string, score int) match.Match {
	t.Helper()
	m, err := match.New(cid, jid, 0.9, score, nil, time.Now())
	if err != nil {
		t.Fatalf("match.New: %v", err)
	}
	return m
}

type deps struct {
	pool      *mockPool
	matcher   *mockMatcher
	prefs     *mockPrefs
	apps      *mockApps
	submitter *mockSubmitter
	runs      *mockRunStore
	quota     *mockQuota
	sink      *mockSink
}

func newDeps() *deps {
	return &deps{
		pool:      &mockPool{},
		matcher:   &mockMatcher{matches: map[string][]match.Match{}, errs: map[string]error{}},
		prefs:     &mockPrefs{prefs: map[string]domain.Preferences{}},
		apps:      &mockApps{applied: map[string]bool{}, today: map[string]int{}},
		submitter: &mockSubmitter{},
		runs:      &mockRunStore{},
		quota:     &mockQuota{},
		sink:      &mockSink{},
	}
}

func newController(d *deps) *Controller {
	return NewController(
		d.pool, d.matcher, d.prefs, d.apps, d.submitter, d.runs, d.quota, d.sink,
		zap.NewNop(),
	).WithSubmissionDelay(0).WithConcurrency(1)
}

// --- Tests ---

func TestExecute_EmptyPoolCompletes(t *testing.T) {
	d := newDeps()
	run, err := newController(d).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if run.Stats != (domain.RunStats{}) {
		t.Errorf("stats = %+v, want all zero", run.Stats)
	}
	if len(d.runs.finalized) != 1 {
		t.Fatalf("finalized %d times, want exactly once", len(d.runs.finalized))
	}
	if len(d.sink.saved) != 1 {
		t.Errorf("metrics saved %d times, want 1", len(d.sink.saved))
	}
}

func TestExecute_SubmitsEligibleMatches(t *testing.T) {
	d := newDeps()
	d.pool.candidates = []domain.CandidateProfile{candidateWithVector("c1")}
	d.matcher.matches["c1"] = []match.Match{
		rankedMatch(t, "c1", "j1", 95),
		rankedMatch(t, "c1", "j2", 85),
		rankedMatch(t, "c1", "j3", 60), // below default threshold 70
	}

	run, err := newController(d).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Stats.ApplicationsSubmitted != 2 {
		t.Errorf("submitted = %d, want 2", run.Stats.ApplicationsSubmitted)
	}
	if run.Stats.ApplicationsSkipped != 1 {
		t.Errorf("skipped = %d, want 1", run.Stats.ApplicationsSkipped)
	}
	if run.Stats.MatchesFound != 3 {
		t.Errorf("matches = %d, want 3", run.Stats.MatchesFound)
	}
	if len(d.submitter.submitted) != 2 {
		t.Errorf("store has %d applications, want 2", len(d.submitter.submitted))
	}
}

func TestExecute_RespectsDailyQuota(t *testing.T) {
	d := newDeps()
	d.pool.candidates = []domain.CandidateProfile{candidateWithVector("c1")}
	d.prefs.prefs["c1"] = domain.Preferences{
		CandidateID: "c1", AutoApplyEnabled: true,
		AutoApplyMinScore: 70, MaxApplicationsPerDay: 2,
	}
	d.matcher.matches["c1"] = []match.Match{
		rankedMatch(t, "c1", "j1", 95),
		rankedMatch(t, "c1", "j2", 90),
		rankedMatch(t, "c1", "j3", 85),
		rankedMatch(t, "c1", "j4", 80),
	}

	run, err := newController(d).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Stats.ApplicationsSubmitted != 2 {
		t.Errorf("submitted = %d, want 2 (quota)", run.Stats.ApplicationsSubmitted)
	}
	// Budget should go to the best-scoring matches.
	for i, rec := range d.submitter.submitted {
		want := []string{"j1", "j2"}[i]
		if rec.JobPostingID != want {
			t.Errorf("submission %d went to %s, want %s", i, rec.JobPostingID, want)
		}
	}
}

func TestExecute_QuotaAlreadyConsumedToday(t *testing.T) {
	d := newDeps()
	d.pool.candidates = []domain.CandidateProfile{candidateWithVector("c1")}
	d.apps.today["c1"] = 5 // default limit is 5
	d.matcher.matches["c1"] = []match.Match{rankedMatch(t, "c1", "j1", 99)}

	run, err := newController(d).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Stats.ApplicationsSubmitted != 0 {
		t.Errorf("submitted = %d, want 0", run.Stats.ApplicationsSubmitted)
	}
	if run.Stats.ApplicationsSkipped != 1 {
		t.Errorf("skipped = %d, want 1", run.Stats.ApplicationsSkipped)
	}
}

func TestExecute_OptOutSkipsEverything(t *testing.T) {
	d := newDeps()
	d.pool.candidates = []domain.CandidateProfile{candidateWithVector("c1")}
	d.prefs.prefs["c1"] = domain.Preferences{
		CandidateID: "c1", AutoApplyEnabled: false,
		AutoApplyMinScore: 70, MaxApplicationsPerDay: 5,
	}
	d.matcher.matches["c1"] = []match.Match{rankedMatch(t, "c1", "j1", 100)}

	run, err := newController(d).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Stats.ApplicationsSubmitted != 0 {
		t.Errorf("submitted = %d, want 0", run.Stats.ApplicationsSubmitted)
	}
	if len(d.submitter.submitted) != 0 {
		t.Errorf("submitter called for an opted-out candidate")
	}
}

func TestExecute_DuplicateDowngradedToSkip(t *testing.T) {
	d := newDeps()
	d.pool.candidates = []domain.CandidateProfile{candidateWithVector("c1")}
	// Dedup read misses, but the storage constraint fires on insert.
	d.submitter.dupes = map[string]bool{"c1/j1": true}
	d.matcher.matches["c1"] = []match.Match{rankedMatch(t, "c1", "j1", 95)}

	run, err := newController(d).Execute(context.Background())
	if err != nil {
		t.Fatalf("duplicate must be recovered, got: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if run.Stats.ApplicationsSkipped != 1 || run.Stats.ApplicationsSubmitted != 0 {
		t.Errorf("stats = %+v, want 1 skip, 0 submitted", run.Stats)
	}
	// The failed reservation must be handed back.
	if d.quota.reserved["c1"] != 0 {
		t.Errorf("quota not released after duplicate: %d", d.quota.reserved["c1"])
	}
}

func TestExecute_NoDoubleSubmissionAcrossRuns(t *testing.T) {
	d := newDeps()
	d.pool.candidates = []domain.CandidateProfile{candidateWithVector("c1")}
	d.matcher.matches["c1"] = []match.Match{rankedMatch(t, "c1", "j1", 95)}

	ctrl := newController(d)
	if _, err := ctrl.Execute(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second run sees the stored application through the dedup read.
	d.apps.applied["c1/j1"] = true
	if _, err := ctrl.Execute(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(d.submitter.submitted) != 1 {
		t.Errorf("total submissions across runs = %d, want 1", len(d.submitter.submitted))
	}
}

func TestExecute_CandidateFailureIsolated(t *testing.T) {
	d := newDeps()
	d.pool.candidates = []domain.CandidateProfile{
		candidateWithVector("broken"),
		candidateWithVector("ok"),
	}
	d.matcher.errs["broken"] = fmt.Errorf("%w: embedding fetch", domain.ErrUpstreamUnavailable)
	d.matcher.matches["ok"] = []match.Match{rankedMatch(t, "ok", "j1", 90)}

	run, err := newController(d).Execute(context.Background())
	if err != nil {
		t.Fatalf("per-candidate failure must not fail the run: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if run.Stats.CandidatesEvaluated != 2 {
		t.Errorf("evaluated = %d, want 2", run.Stats.CandidatesEvaluated)
	}
	if run.Stats.ApplicationsSubmitted != 1 {
		t.Errorf("submitted = %d, want 1", run.Stats.ApplicationsSubmitted)
	}

	// The persisted snapshot counts the failed candidate too, so both
	// records for this run agree.
	if len(d.sink.saved) != 1 {
		t.Fatalf("metrics saved %d times, want 1", len(d.sink.saved))
	}
	if got := d.sink.saved[0].CandidatesEvaluated; got != run.Stats.CandidatesEvaluated {
		t.Errorf("snapshot evaluated = %d, run record = %d", got, run.Stats.CandidatesEvaluated)
	}
}

func TestExecute_PoolFailureFailsRun(t *testing.T) {
	d := newDeps()
	d.pool.err = errors.New("connection refused")

	run, err := newController(d).Execute(context.Background())
	if err == nil {
		t.Fatal("expected run-level error")
	}
	if run.Status != domain.RunFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
	if run.ErrorSummary == "" {
		t.Error("error summary not recorded")
	}
	if len(d.runs.finalized) != 1 || d.runs.finalized[0].Status != domain.RunFailed {
		t.Errorf("run record not finalized as failed: %+v", d.runs.finalized)
	}
}

func TestExecute_RunAllocationFailure(t *testing.T) {
	d := newDeps()
	d.runs.createErr = errors.New("insert failed")

	_, err := newController(d).Execute(context.Background())
	if !errors.Is(err, domain.ErrRunAllocation) {
		t.Fatalf("expected ErrRunAllocation, got %v", err)
	}
	if len(d.runs.finalized) != 0 {
		t.Error("nothing to finalize when allocation fails")
	}
}

func TestExecute_ConcurrentRunsRejected(t *testing.T) {
	d := newDeps()
	// Enough candidates to keep the first run busy.
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("c%d", i)
		d.pool.candidates = append(d.pool.candidates, candidateWithVector(id))
		d.matcher.matches[id] = []match.Match{rankedMatch(t, id, "j1", 90)}
	}

	ctrl := newController(d).WithSubmissionDelay(5 * time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.Execute(context.Background())
		errCh <- err
	}()

	// Poll until the overlapping call is rejected or the first run ends.
	deadline := time.After(2 * time.Second)
	for {
		_, err := ctrl.Execute(context.Background())
		if errors.Is(err, domain.ErrRunInProgress) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("overlapping run was never rejected")
		default:
		}
	}
	if err := <-errCh; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestExecute_PagesThroughPool(t *testing.T) {
	d := newDeps()
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("c%d", i)
		d.pool.candidates = append(d.pool.candidates, candidateWithVector(id))
	}

	run, err := newController(d).WithPageSize(3).Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Stats.CandidatesEvaluated != 7 {
		t.Errorf("evaluated = %d, want 7", run.Stats.CandidatesEvaluated)
	}
}

// End-to-end through the real orchestrator: candidate and jobs share
// an embedding space, submissions flow through gate and quota.
func TestExecute_WithRealMatcher(t *testing.T) {
	d := newDeps()
	cand := candidateWithVector("c1")
	d.pool.candidates = []domain.CandidateProfile{cand}

	jobs := &staticJobs{jobs: []domain.JobPosting{
		{
			ID: "j1", Status: domain.JobOpen,
			Requirements: []domain.Requirement{{Skill: "Go", Priority: domain.PriorityMustHave}},
			Embedding:    []float32{1, 0, 0},
		},
		{
			ID: "far", Status: domain.JobOpen,
			Embedding: []float32{0, 1, 0},
		},
	}}
	matcher := matching.New(jobs)

	ctrl := NewController(
		d.pool, matcher, d.prefs, d.apps, d.submitter, d.runs, d.quota, d.sink,
		zap.NewNop(),
	).WithSubmissionDelay(0)

	run, err := ctrl.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Stats.MatchesFound != 1 {
		t.Errorf("matches = %d, want 1 (dissimilar job filtered)", run.Stats.MatchesFound)
	}
	if run.Stats.ApplicationsSubmitted != 1 {
		t.Errorf("submitted = %d, want 1", run.Stats.ApplicationsSubmitted)
	}
}

type staticJobs struct {
	jobs []domain.JobPosting
}

func (s *staticJobs) ListOpenJobs(_ context.Context) ([]domain.JobPosting, error) {
	return s.jobs, nil
}
