package domain

// RequirementPriority classifies how strongly a job requirement weighs in scoring.
type RequirementPriority string

// Requirement priority values.
const (
	PriorityMustHave   RequirementPriority = "must_have"
	PriorityNiceToHave RequirementPriority = "nice_to_have"
	PriorityPreferable RequirementPriority = "preferable"
)

// JobStatus is the posting lifecycle state. Only open postings are matched.
type JobStatus string

// Job posting status values.
const (
	JobOpen   JobStatus = "open"
	JobClosed JobStatus = "closed"
)

// Requirement is a single skill requirement on a job posting.
type Requirement struct {
	Skill    string              `json:"skill"`
	Priority RequirementPriority `json:"priority"`
}

// JobPosting is a job as seen by the matching pipeline. Owned by the
// recruiter; read-only here.
type JobPosting struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Requirements []Requirement `json:"requirements,omitempty"`
	Categories   []string      `json:"categories,omitempty"`
	Status       JobStatus     `json:"status"`
	Embedding    []float32     `json:"embedding,omitempty"`
}

// IsOpen reports whether the posting participates in matching.
func (j JobPosting) IsOpen() bool { return j.Status == JobOpen }

// HasEmbedding reports whether the posting carries a vector.
func (j JobPosting) HasEmbedding() bool { return len(j.Embedding) > 0 }

// RequirementsWithPriority returns the requirements tagged with the given priority.
func (j JobPosting) RequirementsWithPriority(p RequirementPriority) []Requirement {
	var out []Requirement
	for _, r := range j.Requirements {
		if r.Priority == p {
			out = append(out, r)
		}
	}
	return out
}
