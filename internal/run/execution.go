package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/ingest"
	"github.com/metalagman/quorum/internal/pipeline"
	"github.com/metalagman/quorum/internal/retrieval"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// execution is one run in progress. Events are persisted and published under
// mu so their sequence numbers follow publish order.
type execution struct {
	m      *Manager
	logger zerolog.Logger

	mu  sync.Mutex
	run Run
}

func (e *execution) snapshot() Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.run
	r.Candidates = append([]pipeline.Candidate(nil), e.run.Candidates...)
	r.Selected = append([]string(nil), e.run.Selected...)
	r.Artifacts = make(map[string]any, len(e.run.Artifacts))
	for k, v := range e.run.Artifacts {
		r.Artifacts[k] = v
	}
	return r
}

func (e *execution) execute(ctx context.Context) error {
	start := time.Now()
	e.m.metrics.RunStarted()
	defer e.m.registry.Finish(e.run.ID)

	err := e.steps(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		e.fail(ctx, err)
	}
	e.m.metrics.RunFinished(status, time.Since(start))

	ev := e.logger.Info().Str("status", status).Dur("duration", time.Since(start))
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("run finished")
	return err
}

func (e *execution) steps(ctx context.Context) error {
	lock, err := AcquireShared(e.m.cfg.Paths.DataDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	in := e.run.Inputs
	if err := os.MkdirAll(e.run.Dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	e.Emit(ctx, events.TypeGraphUpdate, pipeline.NewTopology(e.m.profiles))
	for _, id := range pipeline.Stakeholders {
		e.log(ctx, "prompt", "Loaded agent prompt for review", map[string]any{"agent_id": id, "label": e.m.profiles[id].Label})
	}
	e.log(ctx, "orchestrator", "Simulation config", map[string]any{
		"output_type":     in.OutputType,
		"num_simulations": in.NumSimulations,
		"max_rounds":      in.MaxRounds,
		"top_candidates":  in.TopCandidates,
	})
	e.update(ctx, func(r *Run) {
		r.Artifacts["output_type"] = in.OutputType
		r.Artifacts["num_simulations"] = in.NumSimulations
		r.Artifacts["max_rounds"] = in.MaxRounds
		r.Artifacts["top_candidates"] = in.TopCandidates
	})

	index, template, err := e.ingest(ctx)
	if err != nil {
		return err
	}

	candidates, err := e.simulate(ctx, index, template)
	if err != nil {
		return err
	}
	return e.finish(ctx, candidates)
}

func (e *execution) ingest(ctx context.Context) (*retrieval.Index, string, error) {
	e.setStatus(ctx, pipeline.StatusPayload{Status: StatusIngesting})
	e.log(ctx, "ingest", "Starting ingestion: internal materials + agent KB + user uploads -> chunk -> local vector store", nil)

	in := e.run.Inputs
	template, err := agent.Template(in.OutputType, e.m.cfg.Paths.AssetsDir)
	if err != nil {
		return nil, "", err
	}
	templatePath := filepath.Join(e.run.Dir, agent.TemplateName(in.OutputType))
	if err := os.WriteFile(templatePath, []byte(template), 0o644); err != nil {
		return nil, "", fmt.Errorf("write template: %w", err)
	}

	index := retrieval.New(filepath.Join(e.run.Dir, "index"))
	ingestor := ingest.New(index, e.logger)
	ingestor.Notify = func(ctx context.Context, message string, extra map[string]any) {
		e.log(ctx, "ingest", message, extra)
	}
	if _, err := ingestor.Run(ctx, e.m.cfg.Paths.AssetsDir, templatePath, in.Uploads); err != nil {
		return nil, "", fmt.Errorf("ingest: %w", err)
	}
	return index, template, nil
}

func (e *execution) simulate(ctx context.Context, index *retrieval.Index, template string) ([]pipeline.Candidate, error) {
	in := e.run.Inputs
	rd := e.m.cfg.Run
	cfg := pipeline.Config{
		RunID:            e.run.ID,
		RunDir:           e.run.Dir,
		Brief:            in.Brief(),
		Template:         template,
		Profiles:         e.m.profiles,
		Generator:        e.m.gen,
		Index:            index,
		Emitter:          e,
		MaxRounds:        in.MaxRounds,
		EvidenceTopK:     rd.EvidenceTopK,
		ContextItems:     rd.ContextItems,
		EnableReflection: rd.EnableReflection,
		EnablePlanning:   rd.EnablePlanning,
	}

	results := make([]pipeline.Candidate, in.NumSimulations)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, rd.CandidateConcurrency))
	for i := range in.NumSimulations {
		id := pipeline.CandidateID(i + 1)
		g.Go(func() error {
			e.log(gctx, "orchestrator", "Starting candidate simulation", map[string]any{"candidate_id": id})
			cand, err := pipeline.Run(gctx, cfg, id)
			if err != nil {
				return fmt.Errorf("candidate %s: %w", id, err)
			}
			results[i] = cand
			e.m.metrics.CandidateFinished(cand.Passed, cand.Round, cand.Score)
			e.update(gctx, func(r *Run) { r.Candidates = append(r.Candidates, cand) })
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.update(ctx, func(r *Run) { r.Candidates = results })
	return results, nil
}

func (e *execution) finish(ctx context.Context, candidates []pipeline.Candidate) error {
	in := e.run.Inputs
	ranked := Rank(candidates)
	selected := Select(ranked, min(in.TopCandidates, in.NumSimulations))
	e.update(ctx, func(r *Run) { r.Selected = selected })

	e.setStatus(ctx, pipeline.StatusPayload{Status: StatusRendering, Round: e.snapshot().Round})
	e.Emit(ctx, events.TypeGraphUpdate, pipeline.GraphPayload{NodeStatus: map[string]string{
		agent.CountryDirector: pipeline.NodeIdle, agent.ReviewerREN: pipeline.NodeIdle, agent.ReviewerODE: pipeline.NodeIdle,
	}})

	outputs := map[string]string{}
	for _, c := range ranked[:len(selected)] {
		path, err := e.writeOutput(c)
		if err != nil {
			return err
		}
		outputs[c.ID] = path
		e.log(ctx, "render", "Output written", map[string]any{"candidate_id": c.ID, "path": path})
	}

	e.update(ctx, func(r *Run) {
		r.Artifacts["candidate_outputs"] = outputs
		if len(ranked) > 0 && len(selected) > 0 {
			top := ranked[0]
			review, forecast := top.Review, top.Forecast
			r.Review = &review
			r.Forecast = &forecast
			r.Artifacts["draft_md"] = top.DraftPath
			r.Artifacts["output"] = outputs[top.ID]
			r.Artifacts["top_candidate_id"] = top.ID
			memDir := filepath.Join(pipeline.CandidateDir(r.Dir, top.ID), "memory")
			r.Artifacts["cd_memory"] = filepath.Join(memDir, agent.CountryDirector+".json")
			r.Artifacts["ode_memory"] = filepath.Join(memDir, agent.ReviewerODE+".json")
		}
	})

	final := e.snapshot()
	e.setStatus(ctx, pipeline.StatusPayload{Status: StatusCompleted, Round: final.Round, Artifacts: final.Artifacts})
	e.log(ctx, "orchestrator", "Run completed", nil)
	return nil
}

// writeOutput copies the final draft of a selected candidate into the outputs folder.
func (e *execution) writeOutput(c pipeline.Candidate) (string, error) {
	dir := filepath.Join(e.run.Dir, "outputs", c.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	body, err := os.ReadFile(c.DraftPath)
	if err != nil {
		return "", fmt.Errorf("read draft of %s: %w", c.ID, err)
	}
	path := filepath.Join(dir, e.run.Inputs.OutputType+".md")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write output of %s: %w", c.ID, err)
	}
	return path, nil
}

func (e *execution) fail(ctx context.Context, cause error) {
	e.setStatus(ctx, pipeline.StatusPayload{Status: StatusFailed, Error: cause.Error()})
}

// Emit persists and publishes a run event. It implements pipeline.Emitter.
// Status and round events also update the run document.
func (e *execution) Emit(ctx context.Context, typ string, payload any) {
	ctx = context.WithoutCancel(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch p := payload.(type) {
	case pipeline.StatusPayload:
		e.run.Status = p.Status
		if p.Round > 0 {
			e.run.Round = p.Round
		}
		if p.Error != "" {
			e.run.Error = p.Error
		}
		e.saveLocked(ctx)
	case pipeline.RoundPayload:
		e.run.Round = p.Round
		e.saveLocked(ctx)
	}

	ev, err := events.New(e.run.ID, typ, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("type", typ).Msg("encode event")
		return
	}
	if logged, err := e.m.store.AppendEvent(ctx, ev); err != nil {
		e.logger.Error().Err(err).Str("type", typ).Msg("persist event")
	} else {
		ev = logged
	}
	e.m.registry.Publish(ev)
	e.m.metrics.EventPublished(typ)
}

func (e *execution) setStatus(ctx context.Context, p pipeline.StatusPayload) {
	e.Emit(ctx, events.TypeRunStatus, p)
}

func (e *execution) log(ctx context.Context, node, message string, extra map[string]any) {
	e.logger.Debug().Str("node", node).Fields(extra).Msg(message)
	e.Emit(ctx, events.TypeLog, pipeline.LogPayload{Node: node, Message: message, Extra: extra})
}

func (e *execution) update(ctx context.Context, fn func(r *Run)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.run)
	e.saveLocked(context.WithoutCancel(ctx))
}

func (e *execution) saveLocked(ctx context.Context) {
	e.run.UpdatedAt = time.Now().UTC()
	if err := e.m.store.Save(ctx, e.run); err != nil {
		e.logger.Error().Err(err).Msg("save run")
	}
}
