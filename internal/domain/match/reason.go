package match

import (
	"fmt"
	"math"
)

// ReasonKind identifies one scoring signal contributing to a match.
type ReasonKind string

// Reason kinds, in the order the scorer emits them.
const (
	KindMissingMustHaves   ReasonKind = "missing_must_haves"
	KindMustHavesCovered   ReasonKind = "must_haves_covered"
	KindNiceToHaveBonus    ReasonKind = "nice_to_have_bonus"
	KindExperienceListed   ReasonKind = "experience_listed"
	KindNoExperience       ReasonKind = "no_experience"
	KindEducationListed    ReasonKind = "education_listed"
	KindNoEducation        ReasonKind = "no_education"
	KindCategoryOverlap    ReasonKind = "category_overlap"
	KindSemanticSimilarity ReasonKind = "semantic_similarity"
)

// Reason is one structured scoring signal. The scoring core works on
// these tagged values; rendering to candidate-facing text happens only
// at the boundary, so wording stays swappable without touching scores.
type Reason struct {
	Kind       ReasonKind
	Count      int     // skills / entries / categories involved
	Points     int     // signed score contribution
	Similarity float64 // set only for KindSemanticSimilarity
}

// String renders the reason as candidate-facing text.
func (r Reason) String() string {
	switch r.Kind {
	case KindMissingMustHaves:
		return fmt.Sprintf("Missing %d must-have skill(s) (%d points)", r.Count, r.Points)
	case KindMustHavesCovered:
		return "All must-have skills covered"
	case KindNiceToHaveBonus:
		return fmt.Sprintf("Matched %d nice-to-have skill(s) (+%d points)", r.Count, r.Points)
	case KindExperienceListed:
		return fmt.Sprintf("Work experience: %d entry(ies)", r.Count)
	case KindNoExperience:
		return fmt.Sprintf("No work experience listed (%d points)", r.Points)
	case KindEducationListed:
		return "Education background present"
	case KindNoEducation:
		return fmt.Sprintf("No education listed (%d points)", r.Points)
	case KindCategoryOverlap:
		return fmt.Sprintf("Preferred category overlap: %d (+%d points)", r.Count, r.Points)
	case KindSemanticSimilarity:
		pct := int(math.Round(r.Similarity * 100))
		return fmt.Sprintf("Semantic similarity %d%% (+%d points)", pct, r.Points)
	default:
		return string(r.Kind)
	}
}

// RenderReasons converts structured reasons to display strings,
// preserving order.
func RenderReasons(reasons []Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.String()
	}
	return out
}
