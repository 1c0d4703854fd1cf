// Package matching ranks job postings for a candidate (and candidates
// for a posting) using cosine similarity plus the hybrid rule score.
package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
	"github.com/kailas-cloud/matchd/internal/domain/vector"
	"github.com/kailas-cloud/matchd/internal/usecase/scoring"
)

// Defaults for similarity gating and result truncation.
const (
	DefaultSimilarityThreshold = 0.7
	DefaultTopJobs             = 10
	DefaultTopCandidates       = 50
)

// Service is the match orchestrator for one direction of matching.
// It performs no submission side effects; submission belongs to the
// run controller.
type Service struct {
	jobs          JobSource
	threshold     float64
	topJobs       int
	topCandidates int
	now           func() time.Time
}

// New creates a matching service over the given job source.
func New(jobs JobSource) *Service {
	return &Service{
		jobs:          jobs,
		threshold:     DefaultSimilarityThreshold,
		topJobs:       DefaultTopJobs,
		topCandidates: DefaultTopCandidates,
		now:           time.Now,
	}
}

// WithThreshold overrides the minimum cosine similarity.
func (s *Service) WithThreshold(threshold float64) *Service {
	if threshold > 0 {
		s.threshold = threshold
	}
	return s
}

// WithLimits overrides the top-N truncation for both directions.
func (s *Service) WithLimits(topJobs, topCandidates int) *Service {
	if topJobs > 0 {
		s.topJobs = topJobs
	}
	if topCandidates > 0 {
		s.topCandidates = topCandidates
	}
	return s
}

// WithClock overrides the evaluation timestamp source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// MatchCandidate scores the candidate against every open posting whose
// similarity clears the threshold, ranks the results, and truncates to
// top-N. A failed job-pool read surfaces as a per-candidate error for
// the caller to isolate; no retries happen here.
func (s *Service) MatchCandidate(ctx context.Context, c domain.CandidateProfile) ([]match.Match, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !c.HasEmbedding() {
		return nil, fmt.Errorf("%w: candidate %s has no embedding", domain.ErrValidation, c.ID)
	}

	jobs, err := s.jobs.ListOpenJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list open jobs: %w", domain.ErrUpstreamUnavailable, err)
	}

	evaluatedAt := s.now().UTC()
	matches := make([]match.Match, 0, len(jobs))
	for _, j := range jobs {
		if !j.IsOpen() || !j.HasEmbedding() {
			continue
		}

		similarity, err := vector.CosineSimilarity(c.Embedding, j.Embedding)
		if err != nil {
			return nil, fmt.Errorf("candidate %s vs job %s: %w", c.ID, j.ID, err)
		}
		if similarity < s.threshold {
			continue
		}

		score, reasons := scoring.Score(c, j, similarity)
		m, err := match.New(c.ID, j.ID, similarity, score, reasons, evaluatedAt)
		if err != nil {
			return nil, fmt.Errorf("candidate %s vs job %s: %w", c.ID, j.ID, err)
		}
		matches = append(matches, m)
	}

	rank(matches, func(m match.Match) string { return m.JobPostingID })

	if len(matches) > s.topJobs {
		matches = matches[:s.topJobs]
	}
	return matches, nil
}

// MatchJob scores every supplied candidate against one posting
// (recruiter direction), with the larger top-N.
func (s *Service) MatchJob(
	ctx context.Context, j domain.JobPosting, candidates CandidateSource,
) ([]match.Match, error) {
	if !j.IsOpen() {
		return nil, nil
	}
	if !j.HasEmbedding() {
		return nil, fmt.Errorf("%w: job %s has no embedding", domain.ErrValidation, j.ID)
	}

	pool, err := candidates.ListCandidatesWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list candidates: %w", domain.ErrUpstreamUnavailable, err)
	}

	evaluatedAt := s.now().UTC()
	matches := make([]match.Match, 0, len(pool))
	for _, c := range pool {
		if !c.HasEmbedding() {
			continue
		}

		similarity, err := vector.CosineSimilarity(c.Embedding, j.Embedding)
		if err != nil {
			return nil, fmt.Errorf("candidate %s vs job %s: %w", c.ID, j.ID, err)
		}
		if similarity < s.threshold {
			continue
		}

		score, reasons := scoring.Score(c, j, similarity)
		m, err := match.New(c.ID, j.ID, similarity, score, reasons, evaluatedAt)
		if err != nil {
			return nil, fmt.Errorf("candidate %s vs job %s: %w", c.ID, j.ID, err)
		}
		matches = append(matches, m)
	}

	rank(matches, func(m match.Match) string { return m.CandidateID })

	if len(matches) > s.topCandidates {
		matches = matches[:s.topCandidates]
	}
	return matches, nil
}

// rank sorts matches by score descending, then similarity descending,
// then counterpart id ascending so equal-score results are reproducible.
func rank(matches []match.Match, tieID func(match.Match) string) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return tieID(a) < tieID(b)
	})
}
