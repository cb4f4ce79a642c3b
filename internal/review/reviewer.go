package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/memory"
	"github.com/rs/zerolog"
)

// ReviewTokens bounds a reviewer response.
const ReviewTokens = 900

// Kind selects the checkbox set and fallback of a reviewer.
type Kind struct {
	Name      string
	Intro     string
	Checklist string
	Example   Checkbox
	Fallback  func(draft string) Result
}

// ComplianceKind is the independent-evaluation review.
var ComplianceKind = Kind{
	Name:  "compliance",
	Intro: "You are ODE. Review the COSOP draft.",
	Checklist: "Checkbox requirements (use exactly these IDs):\n" +
		"- word_count: >= 800 words\n" +
		"- structure: includes core sections (context, objectives/ToC, implementation, risks)\n" +
		"- inclusion: inclusive / non-discriminatory language\n" +
		"- safeguards: mentions safeguards/inclusion risk mitigation\n" +
		"- evidence: includes evidence excerpts/citations\n",
	Example:  Checkbox{ID: "word_count", Label: "Word count meets MVP threshold (>= 800 words)", Status: StatusTrue, Rationale: "..."},
	Fallback: Compliance,
}

// QualityKind is the quality-assurance review.
var QualityKind = Kind{
	Name:  "quality",
	Intro: "You are REN. Review the COSOP draft for quality, compliance, and results orientation.",
	Checklist: "Checkbox IDs to use:\n" +
		"- policy_alignment\n" +
		"- results_chain\n" +
		"- implementation_capacity\n" +
		"- risk_mitigation\n" +
		"- compliance_quality\n",
	Example:  Checkbox{ID: "policy_alignment", Label: "Aligned with IFAD policy and COSOP mandate", Status: StatusTrue, Rationale: "..."},
	Fallback: Quality,
}

// Reviewer asks an agent for a structured verdict and falls back to the
// deterministic review when the answer does not parse.
type Reviewer struct {
	Agent  *agent.Agent
	Kind   Kind
	Logger zerolog.Logger
}

// Review returns the verdict for draft. Backend failures are returned as errors;
// unparseable answers are not.
func (r *Reviewer) Review(ctx context.Context, draft string) (Result, error) {
	out, err := r.Agent.Chat(ctx, r.prompt(draft), ReviewTokens)
	if err != nil {
		return Result{}, fmt.Errorf("%s review: %w", r.Kind.Name, err)
	}

	res, err := Parse(out)
	if err == nil {
		return res, nil
	}
	var pErr *ParseError
	if !errors.As(err, &pErr) {
		return Result{}, err
	}
	return r.fallback(draft, pErr), nil
}

func (r *Reviewer) fallback(draft string, cause *ParseError) Result {
	r.Logger.Warn().Err(cause).Str("reviewer", r.Agent.Profile.ID).Msg("review response unusable, using heuristic review")
	mem := r.Agent.Memory
	mem.AddMessage(memory.RoleUser, "Fallback heuristic review (JSON parse failed).")
	res := r.Kind.Fallback(draft)
	mem.AddMessage(memory.RoleAssistant, fmt.Sprintf("Review complete. passed=%t", res.Passed))
	return res
}

func (r *Reviewer) prompt(draft string) string {
	var b strings.Builder
	b.WriteString(r.Kind.Intro)
	b.WriteString("\nReturn ONLY valid JSON matching this schema shape (no markdown fences):\n")
	fmt.Fprintf(&b, `{"passed": true, "comments": [{"severity": "major", "section": "Overall", "comment": "...", "suggestion": "..."}], `+
		`"checkboxes": [{"id": %q, "label": %q, "status": %q, "rationale": %q, "evidence": []}]}`,
		r.Kind.Example.ID, r.Kind.Example.Label, r.Kind.Example.Status, r.Kind.Example.Rationale)
	b.WriteString("\n\n")
	b.WriteString(r.Kind.Checklist)
	b.WriteString("\nDraft:\n")
	b.WriteString(draft)
	b.WriteString("\n")
	return b.String()
}
