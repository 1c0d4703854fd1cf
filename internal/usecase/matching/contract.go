package matching

import (
	"context"

	"github.com/kailas-cloud/matchd/internal/domain"
)

// JobSource supplies the open job-posting pool with embeddings.
// During a run the pool is read-only and safe to share across workers.
type JobSource interface {
	ListOpenJobs(ctx context.Context) ([]domain.JobPosting, error)
}

// CandidateSource supplies candidates with embeddings for the
// job-to-candidates direction.
type CandidateSource interface {
	ListCandidatesWithEmbeddings(ctx context.Context) ([]domain.CandidateProfile, error)
}
