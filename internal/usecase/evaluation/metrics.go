// Package evaluation computes information-retrieval quality metrics
// over match and submission results, runnable offline against a
// recorded dataset to compare matching strategies.
package evaluation

import (
	"math"

	"github.com/kailas-cloud/matchd/internal/domain/match"
)

// RelevanceThreshold is the hybrid score at or above which a match
// counts as relevant for binary-relevance metrics.
const RelevanceThreshold = 70

// Pair identifies a (candidate, job) match for set operations.
type Pair struct {
	CandidateID  string
	JobPostingID string
}

// PairOf extracts the identifying pair of a match.
func PairOf(m match.Match) Pair {
	return Pair{CandidateID: m.CandidateID, JobPostingID: m.JobPostingID}
}

// RelevanceFunc classifies a match as relevant or not.
type RelevanceFunc func(match.Match) bool

// BinaryRelevance is the default relevance function: score >= 70.
func BinaryRelevance(m match.Match) bool { return m.Score >= RelevanceThreshold }

// Precision returns the fraction of matches scoring at or above the
// relevance threshold. Returns 0 for an empty list.
func Precision(matches []match.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	relevant := 0
	for _, m := range matches {
		if BinaryRelevance(m) {
			relevant++
		}
	}
	return float64(relevant) / float64(len(matches))
}

// Recall returns |found ∩ golden| / |golden|, keyed by (candidate, job).
// Returns 1 when the golden set is empty.
func Recall(found []match.Match, golden []Pair) float64 {
	if len(golden) == 0 {
		return 1
	}
	foundSet := make(map[Pair]bool, len(found))
	for _, m := range found {
		foundSet[PairOf(m)] = true
	}
	hits := 0
	for _, g := range golden {
		if foundSet[g] {
			hits++
		}
	}
	return float64(hits) / float64(len(golden))
}

// NDCG returns the normalized discounted cumulative gain of the ranked
// list under binary relevance: DCG/IDCG with discount 1/log2(rank+1),
// rank 1-indexed. Returns 0 when IDCG is 0 (no relevant items).
func NDCG(ranked []match.Match, rel RelevanceFunc) float64 {
	if rel == nil {
		rel = BinaryRelevance
	}

	var dcg float64
	relevant := 0
	for i, m := range ranked {
		if rel(m) {
			relevant++
			dcg += 1 / math.Log2(float64(i+2))
		}
	}
	if relevant == 0 {
		return 0
	}

	// Ideal ranking places all relevant items first.
	var idcg float64
	for i := 0; i < relevant; i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}
	return dcg / idcg
}

// MRR returns the reciprocal rank of the first relevant match, 0 if
// none are relevant.
func MRR(ranked []match.Match, rel RelevanceFunc) float64 {
	if rel == nil {
		rel = BinaryRelevance
	}
	for i, m := range ranked {
		if rel(m) {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// MAP returns the mean of precision-at-k taken at each relevant
// position, 0 if no positions are relevant.
func MAP(ranked []match.Match, rel RelevanceFunc) float64 {
	if rel == nil {
		rel = BinaryRelevance
	}
	var sum float64
	relevant := 0
	for i, m := range ranked {
		if rel(m) {
			relevant++
			sum += float64(relevant) / float64(i+1)
		}
	}
	if relevant == 0 {
		return 0
	}
	return sum / float64(relevant)
}

// F1 returns the harmonic mean of precision and recall, 0 when both are 0.
func F1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// Prediction is one predicted-vs-actual relevance judgment.
type Prediction struct {
	Predicted bool
	Actual    bool
}

// Accuracy returns the fraction of predictions agreeing with the
// actual label. Returns 0 for an empty list.
func Accuracy(predictions []Prediction) float64 {
	if len(predictions) == 0 {
		return 0
	}
	correct := 0
	for _, p := range predictions {
		if p.Predicted == p.Actual {
			correct++
		}
	}
	return float64(correct) / float64(len(predictions))
}
