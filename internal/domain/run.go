package domain

import "time"

// RunStatus is the batch run lifecycle state.
type RunStatus string

// Run status values. Completed and failed are terminal; a run is never reopened.
const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// RunStats holds the aggregated counters of one batch run.
type RunStats struct {
	CandidatesEvaluated   int
	MatchesFound          int
	ApplicationsSubmitted int
	ApplicationsSkipped   int
}

// Add folds another stats value into s.
func (s *RunStats) Add(other RunStats) {
	s.CandidatesEvaluated += other.CandidatesEvaluated
	s.MatchesFound += other.MatchesFound
	s.ApplicationsSubmitted += other.ApplicationsSubmitted
	s.ApplicationsSkipped += other.ApplicationsSkipped
}

// BatchRun is one execution of the pipeline across the candidate pool.
type BatchRun struct {
	ID           string
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	Stats        RunStats
	ErrorSummary string
}

// IsTerminal reports whether the run reached a final state.
func (r BatchRun) IsTerminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
