// Package match holds the ephemeral match record produced by one
// scoring pass. A match lives for a single batch run and is immutable
// once created.
package match

import (
	"fmt"
	"math"
	"time"

	"github.com/kailas-cloud/matchd/internal/domain"
)

// Match is one scored (candidate, job) pair.
type Match struct {
	CandidateID  string
	JobPostingID string
	Similarity   float64 // embedding cosine similarity, [0,1]
	Score        int     // hybrid score, [0,100]
	Reasons      []Reason
	EvaluatedAt  time.Time
}

// New creates a match, rejecting non-finite similarity and clamping
// score to [0,100].
func New(
	candidateID, jobID string, similarity float64,
	score int, reasons []Reason, evaluatedAt time.Time,
) (Match, error) {
	if math.IsNaN(similarity) || math.IsInf(similarity, 0) {
		return Match{}, fmt.Errorf("%w: similarity is not finite", domain.ErrValidation)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Match{
		CandidateID:  candidateID,
		JobPostingID: jobID,
		Similarity:   similarity,
		Score:        score,
		Reasons:      reasons,
		EvaluatedAt:  evaluatedAt,
	}, nil
}

// ReasonStrings returns the ordered human-readable reasons list.
func (m Match) ReasonStrings() []string { return RenderReasons(m.Reasons) }
