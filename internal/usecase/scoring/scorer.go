// Package scoring blends embedding similarity with deterministic rule
// signals into an explainable 0-100 hybrid score.
package scoring

import (
	"math"
	"strings"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
)

// Scoring weights. Changing any of these changes score parity with
// historical match data, so they are fixed constants, not config.
const (
	baseScore            = 100
	mustHavePenaltyEach  = 3
	mustHavePenaltyCap   = 20
	niceToHaveBonusEach  = 2
	noExperiencePenalty  = 15
	noEducationPenalty   = 10
	categoryOverlapBonus = 3
	semanticWeight       = 15
)

// Score computes the hybrid score for one candidate against one job.
// The reasons list follows the fixed signal order: must-haves,
// nice-to-haves, experience, education, category overlap, semantic
// contribution. Pure and deterministic; same inputs always produce the
// identical score and reasons.
func Score(c domain.CandidateProfile, j domain.JobPosting, similarity float64) (int, []match.Reason) {
	score := baseScore
	reasons := make([]match.Reason, 0, 6)

	skills := normalizedSet(c.Skills)

	// Must-have requirements
	missing := 0
	mustHaves := j.RequirementsWithPriority(domain.PriorityMustHave)
	for _, r := range mustHaves {
		if !skills[strings.ToLower(r.Skill)] {
			missing++
		}
	}
	if missing > 0 {
		penalty := missing * mustHavePenaltyEach
		if penalty > mustHavePenaltyCap {
			penalty = mustHavePenaltyCap
		}
		score -= penalty
		reasons = append(reasons, match.Reason{
			Kind:   match.KindMissingMustHaves,
			Count:  missing,
			Points: -penalty,
		})
	} else {
		reasons = append(reasons, match.Reason{
			Kind:  match.KindMustHavesCovered,
			Count: len(mustHaves),
		})
	}

	// Nice-to-have requirements
	matched := 0
	for _, r := range j.RequirementsWithPriority(domain.PriorityNiceToHave) {
		if skills[strings.ToLower(r.Skill)] {
			matched++
		}
	}
	if matched > 0 {
		bonus := matched * niceToHaveBonusEach
		score += bonus
		reasons = append(reasons, match.Reason{
			Kind:   match.KindNiceToHaveBonus,
			Count:  matched,
			Points: bonus,
		})
	}

	// Experience signal
	if len(c.Experience) == 0 {
		score -= noExperiencePenalty
		reasons = append(reasons, match.Reason{
			Kind:   match.KindNoExperience,
			Points: -noExperiencePenalty,
		})
	} else {
		reasons = append(reasons, match.Reason{
			Kind:  match.KindExperienceListed,
			Count: len(c.Experience),
		})
	}

	// Education signal
	if len(c.Education) == 0 {
		score -= noEducationPenalty
		reasons = append(reasons, match.Reason{
			Kind:   match.KindNoEducation,
			Points: -noEducationPenalty,
		})
	} else {
		reasons = append(reasons, match.Reason{
			Kind:  match.KindEducationListed,
			Count: len(c.Education),
		})
	}

	// Category overlap
	prefs := normalizedSet(c.PreferredCategories)
	overlap := 0
	for _, cat := range j.Categories {
		if prefs[strings.ToLower(cat)] {
			overlap++
		}
	}
	if overlap > 0 {
		bonus := overlap * categoryOverlapBonus
		score += bonus
		reasons = append(reasons, match.Reason{
			Kind:   match.KindCategoryOverlap,
			Count:  overlap,
			Points: bonus,
		})
	}

	// Semantic contribution, always recorded
	semantic := int(math.Round(similarity * semanticWeight))
	score += semantic
	reasons = append(reasons, match.Reason{
		Kind:       match.KindSemanticSimilarity,
		Points:     semantic,
		Similarity: similarity,
	})

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return score, reasons
}

func normalizedSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[strings.ToLower(s)] = true
	}
	return set
}
