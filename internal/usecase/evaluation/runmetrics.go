package evaluation

import (
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
)

// RunMetrics is the per-run quality aggregate: created empty,
// progressively folded with each candidate's matches and submission
// results, finalized exactly once, then persisted as a snapshot.
// Safe for concurrent folding across candidate workers.
type RunMetrics struct {
	mu sync.Mutex

	runID     string
	startedAt time.Time

	candidatesEvaluated int
	matchesFound        int
	submitted           int
	skipped             int
	skipReasons         map[string]int

	scores        []int
	similaritySum float64
	finalized     bool
	durationMs    int64
}

// NewRunMetrics creates an empty aggregate for the given run.
func NewRunMetrics(runID string, startedAt time.Time) *RunMetrics {
	return &RunMetrics{
		runID:       runID,
		startedAt:   startedAt,
		skipReasons: make(map[string]int),
	}
}

// FoldCandidate counts one evaluated candidate. Called for every
// candidate a run touches, including those whose preferences or
// matching failed, so the snapshot agrees with the run record.
func (r *RunMetrics) FoldCandidate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return domain.ErrMetricsFinalized
	}

	r.candidatesEvaluated++
	return nil
}

// FoldMatches folds one candidate's ranked matches into the aggregate.
// Folding into a finalized aggregate is rejected.
func (r *RunMetrics) FoldMatches(matches []match.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return domain.ErrMetricsFinalized
	}

	r.matchesFound += len(matches)
	for _, m := range matches {
		r.scores = append(r.scores, m.Score)
		r.similaritySum += m.Similarity
	}
	return nil
}

// FoldSubmissions folds one candidate's submission outcomes.
func (r *RunMetrics) FoldSubmissions(results []domain.SubmissionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return domain.ErrMetricsFinalized
	}

	for _, res := range results {
		if res.Success {
			r.submitted++
		} else {
			r.skipped++
			r.skipReasons[res.Reason]++
		}
	}
	return nil
}

// MetricsSnapshot is the immutable, persistable view of a finalized run.
type MetricsSnapshot struct {
	RunID               string         `json:"run_id"`
	CandidatesEvaluated int            `json:"candidates_evaluated"`
	MatchesFound        int            `json:"matches_found"`
	Submitted           int            `json:"applications_submitted"`
	Skipped             int            `json:"applications_skipped"`
	SkipReasons         map[string]int `json:"skip_reasons"`
	MeanScore           float64        `json:"mean_score"`
	MedianScore         float64        `json:"median_score"`
	MeanSimilarity      float64        `json:"mean_similarity"`
	Histogram           ScoreHistogram `json:"histogram"`
	DurationMs          int64          `json:"duration_ms"`
	StartedAt           time.Time      `json:"started_at"`
}

// Finalize stamps the run duration and freezes the aggregate. Calling
// it again returns the same snapshot without error side effects.
func (r *RunMetrics) Finalize(completedAt time.Time) MetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.finalized {
		r.durationMs = completedAt.Sub(r.startedAt).Milliseconds()
		r.finalized = true
	}
	return r.snapshotLocked()
}

func (r *RunMetrics) snapshotLocked() MetricsSnapshot {
	snap := MetricsSnapshot{
		RunID:               r.runID,
		CandidatesEvaluated: r.candidatesEvaluated,
		MatchesFound:        r.matchesFound,
		Submitted:           r.submitted,
		Skipped:             r.skipped,
		SkipReasons:         make(map[string]int, len(r.skipReasons)),
		DurationMs:          r.durationMs,
		StartedAt:           r.startedAt,
	}
	for k, v := range r.skipReasons {
		snap.SkipReasons[k] = v
	}

	if len(r.scores) == 0 {
		return snap
	}

	sum := 0
	for _, s := range r.scores {
		sum += s
		switch {
		case s >= 80:
			snap.Histogram.High++
		case s >= RelevanceThreshold:
			snap.Histogram.Mid++
		default:
			snap.Histogram.Low++
		}
	}
	snap.MeanScore = float64(sum) / float64(len(r.scores))
	snap.MeanSimilarity = r.similaritySum / float64(len(r.scores))

	sorted := make([]int, len(r.scores))
	copy(sorted, r.scores)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		snap.MedianScore = float64(sorted[mid])
	} else {
		snap.MedianScore = float64(sorted[mid-1]+sorted[mid]) / 2
	}
	return snap
}
