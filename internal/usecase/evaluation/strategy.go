package evaluation

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
	"github.com/kailas-cloud/matchd/internal/usecase/scoring"
)

// Costs estimates strategy cost: every candidate and job needs one
// embedding, and each produced match carries marginal compute.
type Costs struct {
	PerEmbeddingUSD float64
	PerMatchUSD     float64
}

// DefaultCosts reflects current embedding API pricing at 1536 dims.
func DefaultCosts() Costs {
	return Costs{PerEmbeddingUSD: 0.0001, PerMatchUSD: 0.00001}
}

// ScoreHistogram buckets match scores for a quick distribution view.
type ScoreHistogram struct {
	High int `json:"high"` // >= 80
	Mid  int `json:"mid"`  // 70-79
	Low  int `json:"low"`  // < 70
}

// StrategyResult packages all quality metrics for one strategy run
// over a recorded dataset.
type StrategyResult struct {
	Name             string         `json:"name"`
	Precision        float64        `json:"precision"`
	Recall           float64        `json:"recall"`
	F1               float64        `json:"f1"`
	NDCG             float64        `json:"ndcg"`
	MRR              float64        `json:"mrr"`
	MAP              float64        `json:"map"`
	Histogram        ScoreHistogram `json:"histogram"`
	MatchCount       int            `json:"match_count"`
	DatasetSize      int            `json:"dataset_size"`
	EstimatedCostUSD float64        `json:"estimated_cost_usd"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// EvaluateStrategy computes the full metric set for one strategy's
// output. golden may be nil when no labeled relevance data exists;
// recall then defaults to 1 per the empty-golden convention.
func EvaluateStrategy(
	name string, matches []match.Match, golden []Pair,
	candidates, jobs int, processingTimeMs int64, costs Costs,
) StrategyResult {
	precision := Precision(matches)
	recall := Recall(matches, golden)

	var hist ScoreHistogram
	for _, m := range matches {
		switch {
		case m.Score >= 80:
			hist.High++
		case m.Score >= RelevanceThreshold:
			hist.Mid++
		default:
			hist.Low++
		}
	}

	cost := float64(candidates+jobs)*costs.PerEmbeddingUSD + float64(len(matches))*costs.PerMatchUSD

	return StrategyResult{
		Name:             name,
		Precision:        precision,
		Recall:           recall,
		F1:               F1(precision, recall),
		NDCG:             NDCG(matches, nil),
		MRR:              MRR(matches, nil),
		MAP:              MAP(matches, nil),
		Histogram:        hist,
		MatchCount:       len(matches),
		DatasetSize:      candidates + jobs,
		EstimatedCostUSD: cost,
		ProcessingTimeMs: processingTimeMs,
	}
}

// F1TieBand is the F1 margin below which two strategies compare as a tie.
const F1TieBand = 0.01

// Comparison reports the head-to-head outcome of two strategies.
// Positive deltas favor strategy A.
type Comparison struct {
	Winner         string  `json:"winner"` // strategy name, or "tie"
	F1Delta        float64 `json:"f1_delta"`
	PrecisionDelta float64 `json:"precision_delta"`
	RecallDelta    float64 `json:"recall_delta"`
	CostDelta      float64 `json:"cost_delta"`  // negative: A is cheaper
	SpeedDeltaMs   int64   `json:"speed_delta"` // negative: A is faster
}

// CompareStrategies picks a winner by F1 margin with an insensitivity
// band; within the band the result is a tie.
func CompareStrategies(a, b StrategyResult) Comparison {
	return compareWithBand(a, b, F1TieBand)
}

func compareWithBand(a, b StrategyResult, band float64) Comparison {
	cmp := Comparison{
		F1Delta:        a.F1 - b.F1,
		PrecisionDelta: a.Precision - b.Precision,
		RecallDelta:    a.Recall - b.Recall,
		CostDelta:      a.EstimatedCostUSD - b.EstimatedCostUSD,
		SpeedDeltaMs:   a.ProcessingTimeMs - b.ProcessingTimeMs,
	}
	switch {
	case math.Abs(cmp.F1Delta) < band:
		cmp.Winner = "tie"
	case cmp.F1Delta > 0:
		cmp.Winner = a.Name
	default:
		cmp.Winner = b.Name
	}
	return cmp
}

// Record is one labeled (candidate, job) pair in a recorded dataset,
// with the embedding similarity captured at recording time.
type Record struct {
	Candidate  domain.CandidateProfile
	Job        domain.JobPosting
	Similarity float64
	Relevant   bool // human label, feeds the golden set
}

// GoldenPairs extracts the labeled-relevant pairs of a dataset.
func GoldenPairs(records []Record) []Pair {
	var golden []Pair
	for _, r := range records {
		if r.Relevant {
			golden = append(golden, Pair{CandidateID: r.Candidate.ID, JobPostingID: r.Job.ID})
		}
	}
	return golden
}

// Strategy names accepted by RunStrategy.
const (
	StrategyHybrid   = "hybrid"
	StrategySemantic = "semantic"
	StrategyKeyword  = "keyword"
	StrategyRandom   = "random"
)

// RunStrategy replays a recorded dataset through one scoring strategy
// and returns its matches in ranked order. The random baseline is
// seeded for reproducible comparisons.
func RunStrategy(name string, records []Record, seed int64) ([]match.Match, error) {
	var scoreFn func(r Record, rng *rand.Rand) int
	switch name {
	case StrategyHybrid:
		scoreFn = func(r Record, _ *rand.Rand) int {
			score, _ := scoring.Score(r.Candidate, r.Job, r.Similarity)
			return score
		}
	case StrategySemantic:
		scoreFn = func(r Record, _ *rand.Rand) int {
			return clampScore(int(math.Round(r.Similarity * 100)))
		}
	case StrategyKeyword:
		scoreFn = func(r Record, _ *rand.Rand) int { return keywordScore(r.Candidate, r.Job) }
	case StrategyRandom:
		scoreFn = func(_ Record, rng *rand.Rand) int { return rng.Intn(101) }
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrValidation, name)
	}

	rng := rand.New(rand.NewSource(seed))
	evaluatedAt := time.Now().UTC()
	matches := make([]match.Match, 0, len(records))
	for _, r := range records {
		m, err := match.New(
			r.Candidate.ID, r.Job.ID, r.Similarity,
			scoreFn(r, rng), nil, evaluatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("record %s/%s: %w", r.Candidate.ID, r.Job.ID, err)
		}
		matches = append(matches, m)
	}

	// Ranked order: score desc, similarity desc, ids asc.
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.CandidateID != b.CandidateID {
			return a.CandidateID < b.CandidateID
		}
		return a.JobPostingID < b.JobPostingID
	})
	return matches, nil
}

// keywordScore is the keyword-only baseline: the fraction of job
// requirements the candidate's skill set covers, scaled to 0-100.
func keywordScore(c domain.CandidateProfile, j domain.JobPosting) int {
	if len(j.Requirements) == 0 {
		return 0
	}
	skills := make(map[string]bool, len(c.Skills))
	for _, s := range c.Skills {
		skills[strings.ToLower(s)] = true
	}
	matched := 0
	for _, r := range j.Requirements {
		if skills[strings.ToLower(r.Skill)] {
			matched++
		}
	}
	return clampScore(matched * 100 / len(j.Requirements))
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
