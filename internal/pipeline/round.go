package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/logging"
	"github.com/metalagman/quorum/internal/retrieval"
	"github.com/metalagman/quorum/internal/review"
	"github.com/metalagman/quorum/internal/scoring"
	"github.com/rs/zerolog"
)

// Evidence queries per stakeholder group.
const (
	queryGovernment = "country priorities policy strategy constraints"
	queryDirector   = "cosop strategy objectives implementation risks safeguards inclusion"
	queryEconomist  = "macro economic context poverty trends fiscal space"
	queryTechnical  = "technical feasibility safeguards climate secap"
)

// Run statuses reported by a candidate.
const (
	StatusWriting   = "writing"
	StatusReviewing = "reviewing"
)

type candidateRun struct {
	cfg    Config
	id     string
	dir    string
	logger zerolog.Logger

	agents    map[string]*agent.Agent
	compliant *review.Reviewer
	quality   *review.Reviewer

	round         int
	govNotes      string
	cdtNotes      string
	revisionNotes string
	result        *Candidate
}

func newCandidateRun(cfg Config, id string) *candidateRun {
	logger := logging.ForCandidate(cfg.RunID, id)

	agents := make(map[string]*agent.Agent, len(cfg.Profiles))
	for pid, p := range cfg.Profiles {
		agents[pid] = agent.New(p, cfg.Brief, cfg.Generator, cfg.ContextItems)
	}
	return &candidateRun{
		cfg:       cfg,
		id:        id,
		dir:       CandidateDir(cfg.RunDir, id),
		logger:    logger,
		agents:    agents,
		compliant: &review.Reviewer{Agent: agents[agent.ReviewerODE], Kind: review.ComplianceKind, Logger: logger},
		quality:   &review.Reviewer{Agent: agents[agent.ReviewerREN], Kind: review.QualityKind, Logger: logger},
	}
}

// runRound executes round r and reports whether the candidate is terminal.
func (c *candidateRun) runRound(ctx context.Context, r int) (bool, error) {
	c.emit(ctx, events.TypeRoundUpdate, RoundPayload{Round: r, CandidateID: c.id})
	c.log(ctx, "orchestrator", "Entering round", map[string]any{"round": r})

	if c.govNotes == "" {
		if err := c.gatherPriorities(ctx); err != nil {
			return false, err
		}
	}

	director := c.agents[agent.CountryDirector]
	cdEvidence, err := c.evidence(queryDirector, agent.CountryDirector)
	if err != nil {
		return false, err
	}
	if c.cfg.EnableReflection {
		situation := c.govNotes
		if situation == "" {
			situation = "Government inputs not provided."
		}
		if _, err := director.Reflect(ctx, situation); err != nil {
			return false, err
		}
	}
	if c.cfg.EnablePlanning {
		if _, err := director.Plan(ctx, "Draft a coherent COSOP concept aligned with IFAD strategy and government priorities."); err != nil {
			return false, err
		}
	}
	concept, err := director.ConceptNote(ctx, c.cfg.Brief, c.govNotes, cdEvidence)
	if err != nil {
		return false, err
	}
	director.Memory.ShortTerm.Add("Concept note:\n" + concept)

	if c.cdtNotes == "" {
		if err := c.technicalFeedback(ctx, concept); err != nil {
			return false, err
		}
	}

	draft, path, err := c.writeDraft(ctx, r, concept, cdEvidence)
	if err != nil {
		return false, err
	}
	cand, err := c.review(ctx, r, draft, path)
	if err != nil {
		return false, err
	}

	if cand.Passed || r >= c.cfg.MaxRounds {
		if err := c.saveMemories(); err != nil {
			return false, err
		}
		c.result = &cand
		c.logger.Info().Int("round", r).Bool("passed", cand.Passed).Float64("score", cand.Score).Msg("candidate finished")
		return true, nil
	}

	c.revisionNotes = RevisionNotes(cand.QualityReview, cand.Review)
	c.log(ctx, "orchestrator", "Reviewers requested revisions; proceeding to next round.", nil)
	return false, nil
}

func (c *candidateRun) gatherPriorities(ctx context.Context) error {
	c.graph(ctx, map[string]string{agent.MinistryFinance: NodeConsulting, agent.MinistryAgriculture: NodeConsulting, agent.CountryDirector: NodePlanning})

	mof, moa := c.agents[agent.MinistryFinance], c.agents[agent.MinistryAgriculture]
	evidence, err := c.evidence(queryGovernment, agent.MinistryFinance)
	if err != nil {
		return err
	}
	if c.cfg.EnableReflection {
		if _, err := mof.Reflect(ctx, "Prepare government priorities for COSOP endorsement."); err != nil {
			return err
		}
		if _, err := moa.Reflect(ctx, "Prepare agriculture priorities and rural development constraints."); err != nil {
			return err
		}
	}
	if c.cfg.EnablePlanning {
		if _, err := mof.Plan(ctx, "Provide priorities, constraints, and endorsement conditions."); err != nil {
			return err
		}
		if _, err := moa.Plan(ctx, "Provide agriculture priorities and red lines."); err != nil {
			return err
		}
	}
	mofNotes, err := mof.ProposePriorities(ctx, c.cfg.Brief, evidence)
	if err != nil {
		return err
	}
	moaNotes, err := moa.ProposePriorities(ctx, c.cfg.Brief, evidence)
	if err != nil {
		return err
	}
	c.govNotes = "[MoF]\n" + mofNotes + "\n\n[MoA]\n" + moaNotes
	c.agents[agent.CountryDirector].Memory.ShortTerm.Add("Government priorities:\n" + c.govNotes)

	c.graph(ctx, map[string]string{agent.MinistryFinance: NodeIdle, agent.MinistryAgriculture: NodeIdle})
	return nil
}

func (c *candidateRun) technicalFeedback(ctx context.Context, concept string) error {
	c.graph(ctx, map[string]string{agent.CDTEconomist: NodeReviewing, agent.CDTTechnical: NodeReviewing})

	econ, tech := c.agents[agent.CDTEconomist], c.agents[agent.CDTTechnical]
	econEvidence, err := c.evidence(queryEconomist, agent.CDTEconomist)
	if err != nil {
		return err
	}
	techEvidence, err := c.evidence(queryTechnical, agent.CDTTechnical)
	if err != nil {
		return err
	}
	if c.cfg.EnableReflection {
		if _, err := econ.Reflect(ctx, concept); err != nil {
			return err
		}
		if _, err := tech.Reflect(ctx, concept); err != nil {
			return err
		}
	}
	if c.cfg.EnablePlanning {
		if _, err := econ.Plan(ctx, "Provide economic feasibility feedback and data gaps."); err != nil {
			return err
		}
		if _, err := tech.Plan(ctx, "Provide technical feasibility and safeguards feedback."); err != nil {
			return err
		}
	}
	econNotes, err := econ.TechnicalFeedback(ctx, concept, "macroeconomics", econEvidence)
	if err != nil {
		return err
	}
	techNotes, err := tech.TechnicalFeedback(ctx, concept, "technical feasibility", techEvidence)
	if err != nil {
		return err
	}
	c.cdtNotes = "[CDT Economist]\n" + econNotes + "\n\n[CDT Technical]\n" + techNotes
	c.agents[agent.CountryDirector].Memory.ShortTerm.Add("CDT feedback:\n" + c.cdtNotes)

	c.graph(ctx, map[string]string{agent.CDTEconomist: NodeIdle, agent.CDTTechnical: NodeIdle})
	return nil
}

func (c *candidateRun) writeDraft(ctx context.Context, r int, concept string, evidence []retrieval.Chunk) (string, string, error) {
	c.status(ctx, StatusWriting, r)
	c.graph(ctx, map[string]string{agent.CountryDirector: NodeWriting})
	c.log(ctx, "cd_writer", "Drafting "+strings.ToUpper(outputType(c.cfg.Brief)), map[string]any{"round": r})

	draft, err := c.agents[agent.CountryDirector].Draft(ctx, agent.DraftRequest{
		Brief:         c.cfg.Brief,
		Template:      c.cfg.Template,
		Evidence:      evidence,
		Guidance:      joinNonEmpty("\n\n", c.govNotes, concept, c.cdtNotes),
		RevisionNotes: c.revisionNotes,
	})
	if err != nil {
		return "", "", err
	}
	c.log(ctx, "cd_writer", "Draft complete", map[string]any{"chars": len([]rune(draft))})

	path := filepath.Join(c.dir, fmt.Sprintf("draft_round_%d.md", r))
	if err := os.WriteFile(path, []byte(draft), 0o644); err != nil {
		return "", "", fmt.Errorf("write draft: %w", err)
	}
	c.emit(ctx, events.TypeDraftCreated, map[string]any{"path": path, "candidate_id": c.id})
	return draft, path, nil
}

func (c *candidateRun) review(ctx context.Context, r int, draft, path string) (Candidate, error) {
	c.status(ctx, StatusReviewing, r)
	c.graph(ctx, map[string]string{agent.CountryDirector: NodeIdle, agent.ReviewerREN: NodeReviewing, agent.ReviewerODE: NodeReviewing})
	c.log(ctx, "review", "REN and ODE reviewing draft", map[string]any{"round": r})

	quality, err := c.quality.Review(ctx, draft)
	if err != nil {
		return Candidate{}, err
	}
	compliance, err := c.compliant.Review(ctx, draft)
	if err != nil {
		return Candidate{}, err
	}
	metrics, err := scoring.Metrics(c.cfg.Index, draft, compliance)
	if err != nil {
		return Candidate{}, err
	}
	score := scoring.Aggregate(metrics)
	passed := scoring.Passed(compliance, quality, score)

	c.emit(ctx, events.TypeReviewResult, map[string]any{
		"candidate_id": c.id,
		"ode_review":   reviewWithMetrics{Result: compliance, Metrics: metrics},
		"ren_review":   quality,
	})

	return Candidate{
		ID:            c.id,
		Round:         r,
		Draft:         draft,
		DraftPath:     path,
		Review:        compliance,
		QualityReview: quality,
		Metrics:       metrics,
		Score:         score,
		Passed:        passed,
		Forecast:      scoring.BuildForecast(score, passed, compliance.Blockers()),
	}, nil
}

type reviewWithMetrics struct {
	review.Result
	Metrics []scoring.Metric `json:"metrics"`
}

func (c *candidateRun) evidence(query, profileID string) ([]retrieval.Chunk, error) {
	hits, err := c.cfg.Index.Search(query, c.cfg.EvidenceTopK, c.cfg.Profiles[profileID].AllowedScopes...)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence for %s: %w", profileID, err)
	}
	chunks := make([]retrieval.Chunk, len(hits))
	for i, h := range hits {
		chunks[i] = h.Chunk
	}
	return chunks, nil
}

func (c *candidateRun) saveMemories() error {
	dir := filepath.Join(c.dir, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	for id, a := range c.agents {
		body, err := json.MarshalIndent(a.Memory.Snapshot(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s memory: %w", id, err)
		}
		if err := os.WriteFile(filepath.Join(dir, id+".json"), body, 0o644); err != nil {
			return fmt.Errorf("write %s memory: %w", id, err)
		}
	}
	return nil
}

func (c *candidateRun) emit(ctx context.Context, typ string, payload any) {
	c.cfg.Emitter.Emit(ctx, typ, payload)
}

func (c *candidateRun) status(ctx context.Context, status string, r int) {
	c.emit(ctx, events.TypeRunStatus, StatusPayload{Status: status, Round: r, CandidateID: c.id})
}

func (c *candidateRun) graph(ctx context.Context, nodes map[string]string) {
	c.emit(ctx, events.TypeGraphUpdate, GraphPayload{NodeStatus: nodes})
}

func (c *candidateRun) log(ctx context.Context, node, message string, extra map[string]any) {
	c.logger.Debug().Str("node", node).Fields(extra).Msg(message)

	// c.logger already carries candidate_id; the event payload needs it too.
	payload := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		payload[k] = v
	}
	payload["candidate_id"] = c.id
	c.emit(ctx, events.TypeLog, LogPayload{Node: node, Message: message, Extra: payload})
}

// RevisionNotes lists every reviewer comment as a bullet for the next round.
func RevisionNotes(reviews ...review.Result) string {
	var notes []string
	for _, r := range reviews {
		for _, c := range r.Comments {
			line := fmt.Sprintf("- [%s] %s: %s Suggestion: %s", c.Severity, c.Section, c.Comment, c.Suggestion)
			notes = append(notes, strings.TrimSpace(line))
		}
	}
	return strings.Join(notes, "\n")
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func outputType(b agent.Brief) string {
	if b.OutputType == "" {
		return agent.OutputCOSOP
	}
	return b.OutputType
}
