package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/llm"
	"github.com/metalagman/quorum/internal/retrieval"
	"github.com/metalagman/quorum/internal/review"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndex struct{}

func (stubIndex) Search(_ string, _ int, scopes ...string) ([]retrieval.Hit, error) {
	if len(scopes) > 0 && scopes[0] == "public" {
		return nil, nil
	}
	return []retrieval.Hit{{Score: 0.8, Chunk: retrieval.Chunk{ID: "c1", Filename: "kb.md", Text: "evidence"}}}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Emit(_ context.Context, typ string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, typ)
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == typ {
			n++
		}
	}
	return n
}

func completeDraft() string {
	var b strings.Builder
	b.WriteString("# COSOP\n\n## Country context\n\n## Strategic objectives\n\n## Implementation arrangements\n\n")
	b.WriteString("## Risks and mitigation\nSocial safeguards apply. IFAD results framework.\n\n")
	b.WriteString(strings.Repeat("rural ", review.MinWords))
	b.WriteString("\n\n## Annex: Evidence excerpts\n[E1] (kb.md) evidence\n")
	return b.String()
}

func testConfig(t *testing.T, gen llm.Generator, rounds int) (Config, *recorder) {
	t.Helper()
	rec := &recorder{}
	return Config{
		RunID:            "run-1",
		RunDir:           t.TempDir(),
		Brief:            agent.Brief{Country: "Kenya", Title: "Rural growth", OutputType: agent.OutputCOSOP},
		Template:         "# COSOP\n## Country context",
		Profiles:         agent.DefaultProfiles(),
		Generator:        gen,
		Index:            stubIndex{},
		Emitter:          rec,
		MaxRounds:        rounds,
		ContextItems:     6,
		EnableReflection: true,
		EnablePlanning:   true,
	}, rec
}

func lastPrompt(req llm.Request) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

func TestRunStopsWhenDraftPasses(t *testing.T) {
	t.Parallel()

	gen, err := llm.NewScripted(completeDraft())
	require.NoError(t, err)
	cfg, rec := testConfig(t, gen, 3)

	cand, err := Run(context.Background(), cfg, CandidateID(1))
	require.NoError(t, err)

	assert.Equal(t, "cand_001", cand.ID)
	assert.Equal(t, 1, cand.Round)
	assert.True(t, cand.Passed)
	assert.GreaterOrEqual(t, cand.Score, 3.0)
	assert.Len(t, cand.Metrics, 5)
	assert.Equal(t, review.SourceHeuristic, cand.Review.Source)

	dir := CandidateDir(cfg.RunDir, cand.ID)
	assert.Equal(t, filepath.Join(dir, "draft_round_1.md"), cand.DraftPath)
	body, err := os.ReadFile(cand.DraftPath)
	require.NoError(t, err)
	assert.Equal(t, cand.Draft, string(body))

	snapshots, err := os.ReadDir(filepath.Join(dir, "memory"))
	require.NoError(t, err)
	assert.Len(t, snapshots, 7)

	assert.Equal(t, 1, rec.count(events.TypeRoundUpdate))
	assert.Equal(t, 1, rec.count(events.TypeDraftCreated))
	assert.Equal(t, 1, rec.count(events.TypeReviewResult))
	assert.Equal(t, 2, rec.count(events.TypeRunStatus))
}

func TestRunExhaustsRoundsWhenReviewsFail(t *testing.T) {
	t.Parallel()

	gen, err := llm.NewScripted("too short")
	require.NoError(t, err)
	cfg, rec := testConfig(t, gen, 2)

	cand, err := Run(context.Background(), cfg, CandidateID(7))
	require.NoError(t, err)

	assert.Equal(t, 2, cand.Round)
	assert.False(t, cand.Passed)
	assert.Equal(t, filepath.Join(CandidateDir(cfg.RunDir, "cand_007"), "draft_round_2.md"), cand.DraftPath)
	assert.FileExists(t, filepath.Join(CandidateDir(cfg.RunDir, "cand_007"), "draft_round_1.md"))
	assert.Equal(t, 2, rec.count(events.TypeRoundUpdate))

	var priorities, feedback, drafts []string
	for _, req := range gen.Requests() {
		p := lastPrompt(req)
		switch {
		case strings.HasPrefix(p, "Task:\nProvide the government's priorities"):
			priorities = append(priorities, p)
		case strings.HasPrefix(p, "Task:\nReview the concept"):
			feedback = append(feedback, p)
		case strings.HasPrefix(p, "You must draft"):
			drafts = append(drafts, p)
		}
	}
	assert.Len(t, priorities, 2, "government advice is gathered once")
	assert.Len(t, feedback, 2, "technical feedback is gathered once")
	require.Len(t, drafts, 2)
	assert.Contains(t, drafts[0], "Revision notes (if any):\n\n")
	assert.Contains(t, drafts[1], "Revision notes (if any):\n- [major] Results: Results chain or theory of change is unclear.")
	assert.Contains(t, drafts[1], "[MoF]\ntoo short\n\n[MoA]\ntoo short")
}

func TestRunSingleRoundIsTerminal(t *testing.T) {
	t.Parallel()

	gen, err := llm.NewScripted("too short")
	require.NoError(t, err)
	cfg, _ := testConfig(t, gen, 1)
	cfg.EnableReflection = false
	cfg.EnablePlanning = false

	cand, err := Run(context.Background(), cfg, CandidateID(1))
	require.NoError(t, err)
	assert.Equal(t, 1, cand.Round)
	assert.False(t, cand.Passed)
	for _, req := range gen.Requests() {
		assert.False(t, strings.HasPrefix(lastPrompt(req), "Reflect on"))
		assert.False(t, strings.HasPrefix(lastPrompt(req), "Formulate concrete next steps"))
	}
}

func TestRunPropagatesBackendError(t *testing.T) {
	t.Parallel()

	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
		return "", &llm.BackendError{Backend: llm.BackendOpenAI, Err: errors.New("quota exceeded")}
	})
	cfg, _ := testConfig(t, gen, 2)

	_, err := Run(context.Background(), cfg, CandidateID(1))
	var bErr *llm.BackendError
	assert.True(t, errors.As(err, &bErr), "error = %v", err)
}

func TestRunRejectsIncompleteConfig(t *testing.T) {
	t.Parallel()

	gen, err := llm.NewScripted("x")
	require.NoError(t, err)
	cfg, _ := testConfig(t, gen, 2)
	delete(cfg.Profiles, agent.ReviewerREN)

	_, err = Run(context.Background(), cfg, CandidateID(1))
	assert.ErrorContains(t, err, `profile "ren" is missing`)

	cfg, _ = testConfig(t, gen, 0)
	_, err = Run(context.Background(), cfg, CandidateID(1))
	assert.ErrorContains(t, err, "max rounds")
}

func TestRevisionNotes(t *testing.T) {
	t.Parallel()

	quality := review.Result{Comments: []review.Comment{{Severity: "major", Section: "Risk", Comment: "Thin.", Suggestion: "Expand."}}}
	compliance := review.Result{Comments: []review.Comment{{Severity: "blocker", Section: "Structure", Comment: "Missing."}}}

	got := RevisionNotes(quality, compliance)
	assert.Equal(t, "- [major] Risk: Thin. Suggestion: Expand.\n- [blocker] Structure: Missing. Suggestion:", got)
	assert.Empty(t, RevisionNotes())
}

func TestNewTopology(t *testing.T) {
	t.Parallel()

	topo := NewTopology(agent.DefaultProfiles())
	require.Len(t, topo.Nodes, 7)
	assert.Equal(t, agent.CountryDirector, topo.Nodes[0].ID)
	for _, n := range topo.Nodes {
		assert.Equal(t, NodeIdle, n.Status)
	}
	assert.Len(t, topo.Edges, 6)
}

func TestLogTagsCandidateOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var got []LogPayload
	c := &candidateRun{
		id:     "cand_002",
		logger: zerolog.New(&buf).Level(zerolog.DebugLevel).With().Str("candidate_id", "cand_002").Logger(),
		cfg: Config{Emitter: EmitterFunc(func(_ context.Context, _ string, payload any) {
			got = append(got, payload.(LogPayload))
		})},
	}

	extra := map[string]any{"round": 1}
	c.log(context.Background(), "orchestrator", "Entering round", extra)
	c.log(context.Background(), "orchestrator", "No extra", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"candidate_id"`), line)
	}
	assert.NotContains(t, extra, "candidate_id")

	require.Len(t, got, 2)
	assert.Equal(t, map[string]any{"round": 1, "candidate_id": "cand_002"}, got[0].Extra)
	assert.Equal(t, map[string]any{"candidate_id": "cand_002"}, got[1].Extra)
}
