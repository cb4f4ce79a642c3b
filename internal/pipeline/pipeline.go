// Package pipeline drives the drafting rounds of a single candidate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/metalagman/quorum/internal/adkexec"
	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/llm"
	"github.com/metalagman/quorum/internal/review"
	"github.com/metalagman/quorum/internal/scoring"

	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/agent/workflowagents/loopagent"
	"google.golang.org/adk/session"
)

const (
	appName = "quorum"
	userID  = "quorum-user"

	stateRound = "round"
	stateStop  = "stop"
)

// DefaultEvidenceTopK is the number of chunks retrieved per evidence query.
const DefaultEvidenceTopK = 6

// Emitter receives the progress events of a candidate.
type Emitter interface {
	Emit(ctx context.Context, typ string, payload any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, typ string, payload any)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, typ string, payload any) { f(ctx, typ, payload) }

// Config carries everything shared by the candidates of a run.
type Config struct {
	RunID     string
	RunDir    string
	Brief     agent.Brief
	Template  string
	Profiles  agent.Profiles
	Generator llm.Generator
	Index     scoring.Searcher
	Emitter   Emitter

	MaxRounds        int
	EvidenceTopK     int
	ContextItems     int
	EnableReflection bool
	EnablePlanning   bool
}

func (c Config) validate() error {
	if c.Generator == nil {
		return errors.New("generator is required")
	}
	if c.Index == nil {
		return errors.New("index is required")
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be positive, got %d", c.MaxRounds)
	}
	for _, id := range Stakeholders {
		if _, ok := c.Profiles[id]; !ok {
			return fmt.Errorf("profile %q is missing", id)
		}
	}
	return nil
}

// Candidate is the terminal result of one simulated drafting process.
type Candidate struct {
	ID            string           `json:"candidate_id"`
	Round         int              `json:"round"`
	Draft         string           `json:"-"`
	DraftPath     string           `json:"draft_path"`
	Review        review.Result    `json:"review"`
	QualityReview review.Result    `json:"ren_review"`
	Metrics       []scoring.Metric `json:"metrics"`
	Score         float64          `json:"score"`
	Passed        bool             `json:"passed"`
	Forecast      scoring.Forecast `json:"forecast"`
}

// CandidateID formats the id of the n-th candidate, starting at 1.
func CandidateID(n int) string {
	return fmt.Sprintf("cand_%03d", n)
}

// CandidateDir is where a candidate keeps its drafts and memory snapshots.
func CandidateDir(runDir, candidateID string) string {
	return filepath.Join(runDir, "candidates", candidateID)
}

// Run simulates the drafting rounds of one candidate until it passes review
// or reaches the round limit.
func Run(ctx context.Context, cfg Config, candidateID string) (Candidate, error) {
	if err := cfg.validate(); err != nil {
		return Candidate{}, fmt.Errorf("pipeline config: %w", err)
	}
	if cfg.EvidenceTopK <= 0 {
		cfg.EvidenceTopK = DefaultEvidenceTopK
	}
	if cfg.Emitter == nil {
		cfg.Emitter = EmitterFunc(func(context.Context, string, any) {})
	}

	c := newCandidateRun(cfg, candidateID)
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return Candidate{}, fmt.Errorf("create candidate dir: %w", err)
	}

	roundAgent, err := adkagent.New(adkagent.Config{
		Name:        "RoundAgent",
		Description: "Runs one drafting round of a candidate.",
		Run:         c.Run,
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("create round agent: %w", err)
	}
	loop, err := loopagent.New(loopagent.Config{
		MaxIterations: uint(cfg.MaxRounds),
		AgentConfig: adkagent.Config{
			Name:        "CandidateLoopAgent",
			Description: "Repeats drafting rounds until the candidate passes review or runs out of rounds.",
			SubAgents:   []adkagent.Agent{roundAgent},
		},
	})
	if err != nil {
		return Candidate{}, fmt.Errorf("create loop agent: %w", err)
	}

	res, err := adkexec.Run(ctx, adkexec.Input{
		AppName:      appName,
		UserID:       userID,
		SessionID:    candidateID,
		Agent:        loop,
		InitialState: map[string]any{stateRound: 1},
	})
	if err != nil {
		return Candidate{}, err
	}
	c.logger.Debug().Int("adk_events", res.Events).Interface("state", res.State).Msg("candidate loop finished")
	if c.result == nil {
		return Candidate{}, fmt.Errorf("candidate %s finished without a result", candidateID)
	}
	return *c.result, nil
}

// Run implements the ADK agent run function for one round.
func (c *candidateRun) Run(ctx adkagent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(yield func(*session.Event, error) bool) {
		if ctx.Ended() || c.result != nil || stopped(ctx) {
			return
		}

		round := c.round + 1
		if err := ctx.Session().State().Set(stateRound, round); err != nil {
			yield(nil, fmt.Errorf("set round in session state: %w", err))
			return
		}

		done, err := c.runRound(ctx, round)
		if err != nil {
			c.logger.Error().Err(err).Int("round", round).Msg("round failed")
			yield(nil, err)
			return
		}
		c.round = round
		if done {
			if err := ctx.Session().State().Set(stateStop, true); err != nil {
				yield(nil, fmt.Errorf("set stop flag in session state: %w", err))
				return
			}
			ctx.EndInvocation()
		}
	}
}

func stopped(ctx adkagent.InvocationContext) bool {
	v, err := ctx.Session().State().Get(stateStop)
	if err != nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
