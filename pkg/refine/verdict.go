package refine

// Severity grades how serious a judged issue is.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// rank orders severities, critical first.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	default:
		return 3
	}
}

// Issue describes one judged defect in a candidate.
type Issue struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// Unfixable marks defects that prompt-level feedback cannot repair.
	Unfixable bool `json:"unfixable,omitempty"`
}

// Verdict is a judge's structured evaluation of one candidate. It is computed
// once per candidate and never mutated.
type Verdict struct {
	// Scores maps dimension name to a score on the 0-10 scale.
	Scores map[string]float64 `json:"scores"`

	Issues      []Issue  `json:"issues,omitempty"`
	Strengths   []string `json:"strengths,omitempty"`
	Weaknesses  []string `json:"weaknesses,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`

	// Failed marks the distinguished variant recorded when the judge call
	// itself failed; Error carries the normalized reason. History stays
	// well-formed either way.
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FailedVerdict builds the distinguished verdict recorded when a judge call
// cannot produce a usable result.
func FailedVerdict(err error) *Verdict {
	v := &Verdict{
		Scores: map[string]float64{},
		Failed: true,
	}
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

// HasUnfixable reports whether any issue is flagged as unfixable.
func (v *Verdict) HasUnfixable() bool {
	for _, issue := range v.Issues {
		if issue.Unfixable {
			return true
		}
	}
	return false
}

// IssuesBySeverity returns the verdict's issues ordered critical, major,
// minor. Ordering within a severity is preserved.
func (v *Verdict) IssuesBySeverity() []Issue {
	ordered := make([]Issue, 0, len(v.Issues))
	for rank := 0; rank <= 3; rank++ {
		for _, issue := range v.Issues {
			if issue.Severity.rank() == rank {
				ordered = append(ordered, issue)
			}
		}
	}
	return ordered
}

// Categories returns the distinct issue categories ordered by their worst
// severity, critical first.
func (v *Verdict) Categories() []string {
	seen := make(map[string]bool)
	var categories []string
	for _, issue := range v.IssuesBySeverity() {
		if issue.Category == "" || seen[issue.Category] {
			continue
		}
		seen[issue.Category] = true
		categories = append(categories, issue.Category)
	}
	return categories
}
