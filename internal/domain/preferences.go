package domain

import "fmt"

// Default preference values applied when no preference row exists.
// Auto-apply defaults to enabled; the default lives here at
// construction time, not as scattered fallbacks.
const (
	DefaultAutoApplyMinScore     = 70
	DefaultMaxApplicationsPerDay = 5
)

// Preferences controls auto-apply behavior for one candidate.
// Read once at the start of the candidate's processing within a run;
// the quota decision is made from that single snapshot.
type Preferences struct {
	CandidateID           string
	AutoApplyEnabled      bool
	AutoApplyMinScore     int
	MaxApplicationsPerDay int
}

// DefaultPreferences returns the preferences used when a candidate has
// no stored preference record.
func DefaultPreferences(candidateID string) Preferences {
	return Preferences{
		CandidateID:           candidateID,
		AutoApplyEnabled:      true,
		AutoApplyMinScore:     DefaultAutoApplyMinScore,
		MaxApplicationsPerDay: DefaultMaxApplicationsPerDay,
	}
}

// Validate checks preference values are within sane bounds.
func (p Preferences) Validate() error {
	if p.CandidateID == "" {
		return fmt.Errorf("%w: preferences missing candidate id", ErrValidation)
	}
	if p.AutoApplyMinScore < 0 || p.AutoApplyMinScore > 100 {
		return fmt.Errorf("%w: min score %d out of [0,100]", ErrValidation, p.AutoApplyMinScore)
	}
	if p.MaxApplicationsPerDay < 0 {
		return fmt.Errorf("%w: max applications per day %d is negative", ErrValidation, p.MaxApplicationsPerDay)
	}
	return nil
}
