// Package backfill fills in missing candidate and job embeddings so
// new profiles become matchable before their first batch run.
package backfill

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/metrics"
)

// CandidateStore lists candidates missing a vector and stores new ones.
type CandidateStore interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.CandidateProfile, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
}

// JobStore lists postings missing a vector and stores new ones.
type JobStore interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.JobPosting, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service runs one backfill pass over candidates and jobs.
type Service struct {
	candidates CandidateStore
	jobs       JobStore
	embedder   Embedder
	batchSize  int
	logger     *zap.Logger
}

// New creates a backfill service.
func New(candidates CandidateStore, jobs JobStore, embedder Embedder, batchSize int, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Service{
		candidates: candidates,
		jobs:       jobs,
		embedder:   embedder,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Result counts one backfill pass.
type Result struct {
	CandidatesEmbedded int
	JobsEmbedded       int
}

// Run embeds every candidate and posting missing a vector, one batch
// at a time. A batch failure stops that entity type but not the other.
func (s *Service) Run(ctx context.Context) (Result, error) {
	var res Result

	n, candErr := s.backfillCandidates(ctx)
	res.CandidatesEmbedded = n
	if candErr != nil {
		s.logger.Warn("Candidate backfill stopped early", zap.Error(candErr))
	}

	n, jobErr := s.backfillJobs(ctx)
	res.JobsEmbedded = n
	if jobErr != nil {
		s.logger.Warn("Job backfill stopped early", zap.Error(jobErr))
	}

	if candErr != nil {
		return res, candErr
	}
	return res, jobErr
}

func (s *Service) backfillCandidates(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := s.candidates.ListMissingEmbeddings(ctx, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("list candidates: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = CandidateText(c)
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embed candidate batch: %w", err)
		}

		stored := 0
		for i, c := range batch {
			if err := s.candidates.SetEmbedding(ctx, c.ID, vecs[i]); err != nil {
				metrics.BackfillProcessedTotal.WithLabelValues("candidate", "error").Inc()
				s.logger.Warn("Failed to store candidate embedding",
					zap.String("candidate_id", c.ID), zap.Error(err))
				continue
			}
			metrics.BackfillProcessedTotal.WithLabelValues("candidate", "ok").Inc()
			stored++
		}
		total += stored

		// A full batch with nothing stored would re-list the same
		// entities forever (the store keeps rejecting writes). A
		// partial batch terminates below regardless.
		if stored == 0 && len(batch) == s.batchSize {
			return total, fmt.Errorf("candidate backfill stalled: 0 of %d embeddings stored", len(batch))
		}
		if len(batch) < s.batchSize {
			return total, nil
		}
	}
}

func (s *Service) backfillJobs(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := s.jobs.ListMissingEmbeddings(ctx, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("list jobs: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		texts := make([]string, len(batch))
		for i, j := range batch {
			texts[i] = JobText(j)
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embed job batch: %w", err)
		}

		stored := 0
		for i, j := range batch {
			if err := s.jobs.SetEmbedding(ctx, j.ID, vecs[i]); err != nil {
				metrics.BackfillProcessedTotal.WithLabelValues("job", "error").Inc()
				s.logger.Warn("Failed to store job embedding",
					zap.String("job_id", j.ID), zap.Error(err))
				continue
			}
			metrics.BackfillProcessedTotal.WithLabelValues("job", "ok").Inc()
			stored++
		}
		total += stored

		if stored == 0 && len(batch) == s.batchSize {
			return total, fmt.Errorf("job backfill stalled: 0 of %d embeddings stored", len(batch))
		}
		if len(batch) < s.batchSize {
			return total, nil
		}
	}
}

// CandidateText flattens a profile into the text handed to the
// embedding model: skills, then work history, then education.
func CandidateText(c domain.CandidateProfile) string {
	var b strings.Builder
	if len(c.Skills) > 0 {
		b.WriteString("Skills: ")
		b.WriteString(strings.Join(c.Skills, ", "))
		b.WriteString(". ")
	}
	for _, e := range c.Experience {
		fmt.Fprintf(&b, "%s at %s (%d months)", e.Title, e.Company, e.DurationMonths)
		if len(e.Technologies) > 0 {
			fmt.Fprintf(&b, " using %s", strings.Join(e.Technologies, ", "))
		}
		b.WriteString(". ")
	}
	for _, e := range c.Education {
		fmt.Fprintf(&b, "%s in %s from %s. ", e.Degree, e.Field, e.Institution)
	}
	if len(c.PreferredCategories) > 0 {
		b.WriteString("Interested in: ")
		b.WriteString(strings.Join(c.PreferredCategories, ", "))
		b.WriteString(".")
	}
	return strings.TrimSpace(b.String())
}

// JobText flattens a posting into the text handed to the embedding model.
func JobText(j domain.JobPosting) string {
	var b strings.Builder
	b.WriteString(j.Title)
	b.WriteString(". ")
	for _, r := range j.Requirements {
		fmt.Fprintf(&b, "%s (%s). ", r.Skill, r.Priority)
	}
	if len(j.Categories) > 0 {
		b.WriteString("Categories: ")
		b.WriteString(strings.Join(j.Categories, ", "))
		b.WriteString(".")
	}
	return strings.TrimSpace(b.String())
}
