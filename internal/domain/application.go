package domain

import (
	"fmt"
	"time"
)

// Skip reasons exposed to candidates. These strings are part of the
// contract with the UI and must not drift.
const (
	SkipAutoApplyDisabled = "Auto-apply disabled"
	SkipDailyLimitReached = "Daily limit reached"
	SkipAlreadyApplied    = "Already applied"
)

// SkipScoreBelowThreshold renders the below-threshold skip reason,
// e.g. "Score below threshold (75 < 80)".
func SkipScoreBelowThreshold(score, threshold int) string {
	return fmt.Sprintf("Score below threshold (%d < %d)", score, threshold)
}

// ApplicationRecord is the row handed to the application store on submission.
type ApplicationRecord struct {
	CandidateID  string
	JobPostingID string
	MatchScore   int
	Source       string // "auto" for pipeline submissions
	SubmittedAt  time.Time
}

// SubmissionResult is the outcome of one submission attempt or skip
// decision. Immutable after creation. Exactly one of ApplicationID
// (success) or Reason (skip/failure) is set.
type SubmissionResult struct {
	Success       bool
	CandidateID   string
	JobPostingID  string
	MatchScore    int
	ApplicationID string
	Reason        string
	SubmittedAt   time.Time
}

// Submitted creates a successful submission result.
func Submitted(candidateID, jobID string, score int, applicationID string, at time.Time) SubmissionResult {
	return SubmissionResult{
		Success:       true,
		CandidateID:   candidateID,
		JobPostingID:  jobID,
		MatchScore:    score,
		ApplicationID: applicationID,
		SubmittedAt:   at,
	}
}

// Skipped creates a skipped/failed submission result with the given reason.
func Skipped(candidateID, jobID string, score int, reason string, at time.Time) SubmissionResult {
	return SubmissionResult{
		CandidateID:  candidateID,
		JobPostingID: jobID,
		MatchScore:   score,
		Reason:       reason,
		SubmittedAt:  at,
	}
}
