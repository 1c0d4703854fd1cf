package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch signals a vector length mismatch between candidate and job embeddings.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrDuplicateApplication signals that an application for the
	// (candidate, job) pair already exists. Recovered locally: the
	// submission is downgraded to a skip, never escalated.
	ErrDuplicateApplication = errors.New("duplicate application")
	// ErrUpstreamUnavailable signals a failed read from an external
	// candidate/job/embedding store. Per-candidate scope.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRunAllocation signals that a batch run record could not be
	// created. Run-level, aborts the run.
	ErrRunAllocation = errors.New("run allocation failed")
	// ErrRunFinalized signals an attempt to mutate a completed or failed run.
	ErrRunFinalized = errors.New("run already finalized")
	// ErrRunInProgress signals that another run is currently executing.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrValidation signals malformed profile or preference data.
	// Per-candidate scope.
	ErrValidation = errors.New("validation failed")
	// ErrMetricsFinalized signals a fold into an already finalized metrics aggregate.
	ErrMetricsFinalized = errors.New("metrics already finalized")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
