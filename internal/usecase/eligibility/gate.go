// Package eligibility decides submit/skip for each ranked match of a
// candidate within one run. The gate is stateless given its inputs:
// the caller supplies a freshly-read preference snapshot and today's
// application count at run start, and reports back each successful
// submission so the remaining budget is consumed in ranked order.
package eligibility

import (
	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
)

// Decision is the gate's verdict for one match.
type Decision struct {
	Eligible   bool
	SkipReason string // set when Eligible is false
}

// Gate evaluates one candidate's matches against opt-in, quota, and
// score-threshold rules. Create one per candidate per run.
type Gate struct {
	prefs     domain.Preferences
	remaining int
	blocked   string // non-empty when the candidate-level gate failed
}

// NewGate evaluates the candidate-level gate once. todayCount is the
// number of auto-applications already submitted today (UTC window) at
// run start; the quota decision for the whole run is made from this
// single snapshot.
func NewGate(prefs domain.Preferences, todayCount int) *Gate {
	g := &Gate{prefs: prefs}

	if !prefs.AutoApplyEnabled {
		g.blocked = domain.SkipAutoApplyDisabled
		return g
	}

	g.remaining = prefs.MaxApplicationsPerDay - todayCount
	if g.remaining <= 0 {
		g.remaining = 0
		g.blocked = domain.SkipDailyLimitReached
	}
	return g
}

// Remaining returns the submission budget left for this candidate.
func (g *Gate) Remaining() int { return g.remaining }

// Evaluate gates one match. Matches must be evaluated in descending
// score order so the best matches consume the daily budget first.
// alreadyApplied is the dedup check result supplied by the caller.
func (g *Gate) Evaluate(m match.Match, alreadyApplied bool) Decision {
	if g.blocked != "" {
		return Decision{SkipReason: g.blocked}
	}
	if g.remaining <= 0 {
		return Decision{SkipReason: domain.SkipDailyLimitReached}
	}
	if m.Score < g.prefs.AutoApplyMinScore {
		return Decision{SkipReason: domain.SkipScoreBelowThreshold(m.Score, g.prefs.AutoApplyMinScore)}
	}
	if alreadyApplied {
		return Decision{SkipReason: domain.SkipAlreadyApplied}
	}
	return Decision{Eligible: true}
}

// Consume records one successful submission, decrementing the budget.
func (g *Gate) Consume() {
	if g.remaining > 0 {
		g.remaining--
	}
}
