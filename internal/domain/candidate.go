package domain

// WorkExperience is a single work-history entry on a candidate profile.
type WorkExperience struct {
	Company        string   `json:"company"`
	Title          string   `json:"title"`
	DurationMonths int      `json:"duration_months"`
	Technologies   []string `json:"technologies,omitempty"`
}

// Education is a single education entry on a candidate profile.
type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
}

// CandidateProfile is a candidate as seen by the matching pipeline.
// Owned and mutated by profile-editing collaborators; read-only here.
// The embedding is produced by an external model and consumed as-is.
type CandidateProfile struct {
	ID                  string           `json:"id"`
	Skills              []string         `json:"skills"`
	Experience          []WorkExperience `json:"experience,omitempty"`
	Education           []Education      `json:"education,omitempty"`
	PreferredCategories []string         `json:"preferred_categories,omitempty"`
	Embedding           []float32        `json:"embedding,omitempty"`
}

// HasEmbedding reports whether the profile carries a vector.
func (c CandidateProfile) HasEmbedding() bool { return len(c.Embedding) > 0 }

// Validate checks the profile is usable for matching.
func (c CandidateProfile) Validate() error {
	if c.ID == "" {
		return ErrValidation
	}
	return nil
}
