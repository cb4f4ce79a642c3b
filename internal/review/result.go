// Package review parses reviewer verdicts and provides the deterministic fallback reviews.
package review

// Comment severities.
const (
	SeverityBlocker = "blocker"
	SeverityMajor   = "major"
	SeverityMinor   = "minor"
)

// Checkbox statuses.
const (
	StatusTrue    = "true"
	StatusFalse   = "false"
	StatusPartial = "partial"
)

// Result sources.
const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

// Comment is a single reviewer remark.
type Comment struct {
	Severity   string `json:"severity"`
	Section    string `json:"section"`
	Comment    string `json:"comment"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Checkbox is one named criterion with its verdict.
type Checkbox struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Status    string `json:"status"`
	Rationale string `json:"rationale"`
}

// Result is a reviewer verdict.
type Result struct {
	Passed     bool       `json:"passed"`
	Comments   []Comment  `json:"comments"`
	Checkboxes []Checkbox `json:"checkboxes"`
	// Source records whether the model or the heuristic produced the result.
	Source string `json:"source,omitempty"`
}

// Blockers counts blocker comments.
func (r Result) Blockers() int {
	n := 0
	for _, c := range r.Comments {
		if c.Severity == SeverityBlocker {
			n++
		}
	}
	return n
}

// derivePassed applies the pass rule: every checkbox true or partial and no blocker.
func derivePassed(comments []Comment, boxes []Checkbox) bool {
	for _, cb := range boxes {
		if cb.Status != StatusTrue && cb.Status != StatusPartial {
			return false
		}
	}
	for _, c := range comments {
		if c.Severity == SeverityBlocker {
			return false
		}
	}
	return true
}
