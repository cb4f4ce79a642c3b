package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/metalagman/quorum/internal/llm"
	"github.com/metalagman/quorum/internal/memory"
	"github.com/metalagman/quorum/internal/retrieval"
)

// Token budgets per call type.
const (
	ReflectTokens  = 320
	PlanTokens     = 320
	ActTokens      = 900
	AdvisorTokens  = 700
	DraftTokens    = 1800
	noEvidenceText = "(No evidence retrieved.)"
)

// Brief is the project description every agent starts from.
type Brief struct {
	Country    string
	Title      string
	UserNotes  string
	OutputType string
}

// NewMemory seeds a memory for profile with the project brief.
func NewMemory(p Profile, b Brief) *memory.Memory {
	m := memory.New(p.SystemPrompt)
	m.LongTerm.Add("Responsibilities: " + strings.Join(p.Responsibilities, ", "))
	m.LongTerm.Add("Authorized knowledge scopes: " + strings.Join(p.AllowedScopes, ", "))
	if b.Country != "" {
		m.Public.Add("Country: " + b.Country)
	}
	if b.Title != "" {
		m.Public.Add("Title: " + b.Title)
	}
	m.Public.Add("Output type: " + b.OutputType)
	if b.UserNotes != "" {
		m.ShortTerm.Add("User notes: " + b.UserNotes)
	}
	return m
}

// Agent is a stakeholder that converses with a generator through its memory.
type Agent struct {
	Profile Profile
	Memory  *memory.Memory
	Gen     llm.Generator
	// ContextItems bounds how many entries per memory category enter a prompt.
	ContextItems int
}

// New creates an agent with a fresh memory for the brief.
func New(p Profile, b Brief, gen llm.Generator, contextItems int) *Agent {
	return &Agent{Profile: p, Memory: NewMemory(p, b), Gen: gen, ContextItems: contextItems}
}

// Chat sends prompt as the next user turn and records the reply.
func (a *Agent) Chat(ctx context.Context, prompt string, maxTokens int) (string, error) {
	a.Memory.AddMessage(memory.RoleUser, prompt)
	msgs := make([]llm.Message, len(a.Memory.Messages))
	for i, m := range a.Memory.Messages {
		msgs[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	out, err := a.Gen.Generate(ctx, llm.Request{
		System:          a.Memory.System,
		Messages:        msgs,
		MaxOutputTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.Profile.ID, err)
	}
	a.Memory.AddMessage(memory.RoleAssistant, out)
	return out, nil
}

// Reflect summarises the agent's view of the work so far.
func (a *Agent) Reflect(ctx context.Context, situation string) (string, error) {
	prompt := "Reflect on the current COSOP/PCN/PDR work.\n" +
		"Summarize the core logic, deviations from your role objectives, and risks.\n\n" +
		a.Memory.ContextBlock(a.ContextItems) + "\n\n" +
		"Context:\n" + situation + "\n"
	out, err := a.Chat(ctx, prompt, ReflectTokens)
	if err != nil {
		return "", err
	}
	a.Memory.Reflections.Add(out)
	return out, nil
}

// Plan formulates next steps toward goals.
func (a *Agent) Plan(ctx context.Context, goals string) (string, error) {
	prompt := "Formulate concrete next steps aligned with your role.\n" +
		"Propose revisions, initiate discussions, or reject non-compliant items.\n\n" +
		a.Memory.ContextBlock(a.ContextItems) + "\n\n" +
		"Goals:\n" + goals + "\n"
	out, err := a.Chat(ctx, prompt, PlanTokens)
	if err != nil {
		return "", err
	}
	a.Memory.Plans.Add(out)
	return out, nil
}

// Act performs task with the given evidence and extra context.
func (a *Agent) Act(ctx context.Context, task string, evidence []retrieval.Chunk, extra string, maxTokens int) (string, error) {
	if extra == "" {
		extra = "(none)"
	}
	if maxTokens <= 0 {
		maxTokens = ActTokens
	}
	prompt := "Task:\n" + task + "\n\n" +
		a.Memory.ContextBlock(a.ContextItems) + "\n\n" +
		"Extra context:\n" + extra + "\n\n" +
		"Evidence excerpts:\n" + FormatEvidence(evidence, 500, "\n") + "\n"
	return a.Chat(ctx, prompt, maxTokens)
}

// ProposePriorities asks a government advisor for priorities, constraints and red lines.
func (a *Agent) ProposePriorities(ctx context.Context, b Brief, evidence []retrieval.Chunk) (string, error) {
	country := b.Country
	if country == "" {
		country = "the country"
	}
	task := fmt.Sprintf("Provide the government's priorities, constraints, and red lines for %s.\n", country) +
		"Return concise bullet points grouped by: priorities, constraints, endorsement conditions."
	return a.Act(ctx, task, evidence, "", AdvisorTokens)
}

// TechnicalFeedback asks a CDT advisor to review the concept with the given focus.
func (a *Agent) TechnicalFeedback(ctx context.Context, concept, focus string, evidence []retrieval.Chunk) (string, error) {
	task := fmt.Sprintf("Review the concept and provide technical feedback (%s).\n", focus) +
		"Return: key risks, feasibility concerns, and suggested revisions in bullets."
	return a.Act(ctx, task, evidence, concept, AdvisorTokens)
}

// ConceptNote drafts a short concept for the document.
func (a *Agent) ConceptNote(ctx context.Context, b Brief, guidance string, evidence []retrieval.Chunk) (string, error) {
	task := fmt.Sprintf("Draft a short %s concept note (objectives, target groups, and strategic focus).", docLabel(b.OutputType))
	return a.Act(ctx, task, evidence, guidance, AdvisorTokens)
}

// DraftRequest carries everything the writer needs for one draft.
type DraftRequest struct {
	Brief         Brief
	Template      string
	Evidence      []retrieval.Chunk
	Guidance      string
	RevisionNotes string
}

// Draft writes the full document in Markdown following the template.
func (a *Agent) Draft(ctx context.Context, req DraftRequest) (string, error) {
	country := req.Brief.Country
	if country == "" {
		country = "Unknown country"
	}
	label := docLabel(req.Brief.OutputType)
	title := req.Brief.Title
	if title == "" {
		title = "Untitled " + label
	}
	guidance := req.Guidance
	if guidance == "" {
		guidance = "(none)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You must draft a %s in Markdown.\n", label)
	b.WriteString("Follow the template headings exactly. Keep it coherent and professional.\n")
	b.WriteString("Use inclusive, non-discriminatory language.\n")
	b.WriteString("Use the evidence excerpts in the annex; you may quote them and reference [E1], [E2], ... where relevant.\n\n")
	fmt.Fprintf(&b, "Country: %s\nTitle: %s\n\n", country, title)
	fmt.Fprintf(&b, "User notes:\n%s\n\n", strings.TrimSpace(req.Brief.UserNotes))
	fmt.Fprintf(&b, "Guidance from other stakeholders:\n%s\n\n", guidance)
	fmt.Fprintf(&b, "Revision notes (if any):\n%s\n\n", req.RevisionNotes)
	fmt.Fprintf(&b, "Template:\n%s\n\n", req.Template)
	fmt.Fprintf(&b, "Evidence excerpts:\n%s\n", FormatEvidence(req.Evidence, 700, "\n\n"))
	return a.Chat(ctx, b.String(), DraftTokens)
}

// FormatEvidence renders chunks as numbered excerpts truncated to limit characters.
func FormatEvidence(chunks []retrieval.Chunk, limit int, sep string) string {
	if len(chunks) == 0 {
		return noEvidenceText
	}
	lines := make([]string, 0, len(chunks))
	for i, c := range chunks {
		loc := c.Filename
		if c.Page != nil {
			loc += fmt.Sprintf(" p.%d", *c.Page)
		}
		lines = append(lines, fmt.Sprintf("[E%d] (%s) %s", i+1, loc, strings.TrimSpace(truncate(c.Text, limit))))
	}
	return strings.Join(lines, sep)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func docLabel(outputType string) string {
	if outputType == "" {
		outputType = "cosop"
	}
	return strings.ToUpper(outputType)
}
