package review

import (
	"fmt"
	"regexp"
	"strings"
)

// MinWords is the word count below which a draft is considered under-developed.
const MinWords = 800

var (
	inlineCode = regexp.MustCompile("`[^`]*`")
	wordRe     = regexp.MustCompile(`[\p{L}\p{N}_]+`)

	discriminatory = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(inferior|superior)\b`),
		regexp.MustCompile(`(?i)\b(race-based|racially inferior)\b`),
	}

	requiredSections = []struct {
		name  string
		terms []string
	}{
		{"Country context", []string{"country context"}},
		{"Strategic objectives / theory of change", []string{"strategic objectives", "theory of change"}},
		{"Implementation arrangements", []string{"implementation arrangements", "implementation"}},
		{"Risks and mitigation", []string{"risks", "mitigation"}},
	}
)

// WordCount counts word tokens outside inline code spans.
func WordCount(draft string) int {
	return len(wordRe.FindAllString(inlineCode.ReplaceAllString(draft, ""), -1))
}

// Compliance is the deterministic independent-evaluation review.
// It yields the word_count, structure, inclusion, safeguards and evidence checkboxes.
func Compliance(draft string) Result {
	words := WordCount(draft)
	lower := strings.ToLower(draft)

	var missing []string
	for _, s := range requiredSections {
		if !containsAny(lower, s.terms) {
			missing = append(missing, s.name)
		}
	}

	flagged := false
	for _, re := range discriminatory {
		if re.MatchString(draft) {
			flagged = true
			break
		}
	}

	hasEvidence := strings.Contains(lower, "annex: evidence excerpts") && strings.Contains(lower, "[e1]")
	hasSafeguards := strings.Contains(lower, "safeguards")

	comments := []Comment{}
	if words < MinWords {
		comments = append(comments, Comment{
			Severity:   SeverityMajor,
			Section:    "Overall",
			Comment:    fmt.Sprintf("Draft is likely under-developed (word_count=%d).", words),
			Suggestion: "Expand country context, lessons learned, and implementation arrangements with more evidence.",
		})
	}
	if len(missing) > 0 {
		comments = append(comments, Comment{
			Severity:   SeverityBlocker,
			Section:    "Structure",
			Comment:    "Missing required sections: " + strings.Join(missing, ", "),
			Suggestion: "Add the missing sections using COSOP template headings.",
		})
	}
	if flagged {
		comments = append(comments, Comment{
			Severity:   SeverityBlocker,
			Section:    "Compliance",
			Comment:    "Potential discriminatory or inappropriate language detected.",
			Suggestion: "Rewrite to ensure inclusive, non-discriminatory language consistent with IFAD values.",
		})
	}
	if !hasEvidence {
		comments = append(comments, Comment{
			Severity:   SeverityMajor,
			Section:    "Evidence",
			Comment:    "No evidence excerpts/citations detected in the annex.",
			Suggestion: "Include excerpts from uploaded materials and internal template references.",
		})
	}

	boxes := []Checkbox{
		{
			ID:        "word_count",
			Label:     "Word count meets MVP threshold (>= 800 words)",
			Status:    status(words >= MinWords, StatusFalse),
			Rationale: fmt.Sprintf("Detected approximately %d words.", words),
		},
		{
			ID:        "structure",
			Label:     "Includes core COSOP sections (context, objectives/ToC, implementation, risks)",
			Status:    status(len(missing) == 0, StatusFalse),
			Rationale: pick(len(missing) == 0, "All required headings present.", "Missing: "+strings.Join(missing, ", ")),
		},
		{
			ID:        "inclusion",
			Label:     "Inclusive / non-discriminatory language (basic heuristic)",
			Status:    status(!flagged, StatusFalse),
			Rationale: pick(!flagged, "No flagged discriminatory terms found.", "Flagged terms matched heuristic patterns."),
		},
		{
			ID:        "safeguards",
			Label:     "Mentions safeguards/inclusion risk mitigation (SECAP-relevant)",
			Status:    status(hasSafeguards, StatusPartial),
			Rationale: pick(hasSafeguards, "Detected safeguards language in risks/mitigation section.", "No explicit safeguards keyword found; may need strengthening."),
		},
		{
			ID:        "evidence",
			Label:     "Provides evidence excerpts/citations from inputs (RAG annex)",
			Status:    status(hasEvidence, StatusFalse),
			Rationale: pick(hasEvidence, "Evidence annex includes at least one excerpt.", "No evidence excerpts detected."),
		},
	}

	return Result{
		Passed:     derivePassed(comments, boxes),
		Comments:   comments,
		Checkboxes: boxes,
		Source:     SourceHeuristic,
	}
}

// Quality is the deterministic quality-assurance review.
// It yields the policy_alignment, results_chain, implementation_capacity,
// risk_mitigation and compliance_quality checkboxes.
func Quality(draft string) Result {
	lower := strings.ToLower(draft)
	hasResults := containsAny(lower, []string{"theory of change", "results"})
	hasImpl := strings.Contains(lower, "implementation arrangements")
	hasRisks := containsAny(lower, []string{"risk", "mitigation"})
	hasPolicy := containsAny(lower, []string{"ifad", "strategic"})
	hasCompliance := containsAny(lower, []string{"safeguard", "compliance"})

	comments := []Comment{}
	if !hasResults {
		comments = append(comments, Comment{
			Severity:   SeverityMajor,
			Section:    "Results",
			Comment:    "Results chain or theory of change is unclear.",
			Suggestion: "Clarify the results chain and outcomes in the strategic objectives section.",
		})
	}
	if !hasImpl {
		comments = append(comments, Comment{
			Severity:   SeverityMajor,
			Section:    "Implementation",
			Comment:    "Implementation capacity is not explicit.",
			Suggestion: "Detail implementation arrangements and partner capacities.",
		})
	}
	if !hasRisks {
		comments = append(comments, Comment{
			Severity:   SeverityMajor,
			Section:    "Risk",
			Comment:    "Risks and mitigation are not sufficiently covered.",
			Suggestion: "Strengthen the risks and mitigation section with concrete actions.",
		})
	}

	boxes := []Checkbox{
		{
			ID:        "policy_alignment",
			Label:     "Aligned with IFAD policy and COSOP mandate",
			Status:    status(hasPolicy, StatusPartial),
			Rationale: pick(hasPolicy, "Detected IFAD/strategic alignment language.", "Limited policy alignment cues found."),
		},
		{
			ID:        "results_chain",
			Label:     "Results chain / theory of change is clear",
			Status:    status(hasResults, StatusFalse),
			Rationale: pick(hasResults, "Results chain language detected.", "Missing results chain language."),
		},
		{
			ID:        "implementation_capacity",
			Label:     "Implementation capacity is addressed",
			Status:    status(hasImpl, StatusFalse),
			Rationale: pick(hasImpl, "Implementation arrangements section found.", "Implementation details missing."),
		},
		{
			ID:        "risk_mitigation",
			Label:     "Risk mitigation measures are included",
			Status:    status(hasRisks, StatusFalse),
			Rationale: pick(hasRisks, "Risk/mitigation language detected.", "No explicit risk mitigation."),
		},
		{
			ID:        "compliance_quality",
			Label:     "Compliance and quality safeguards are addressed",
			Status:    status(hasCompliance, StatusPartial),
			Rationale: pick(hasCompliance, "Safeguards/compliance language detected.", "No clear compliance statements."),
		},
	}

	return Result{
		Passed:     derivePassed(comments, boxes),
		Comments:   comments,
		Checkboxes: boxes,
		Source:     SourceHeuristic,
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func status(ok bool, otherwise string) string {
	if ok {
		return StatusTrue
	}
	return otherwise
}

func pick(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
