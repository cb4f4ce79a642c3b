// Package mcpserver exposes run operations as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/run"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// DefaultEventLimit caps list_run_events when no limit is given.
const DefaultEventLimit = 200

// Runs is the part of run.Manager the tools use.
type Runs interface {
	Create(ctx context.Context, in run.Inputs) (run.Run, error)
	Status(ctx context.Context, runID string) (run.Run, error)
	Events(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error)
}

// CreateRunInput is the argument of create_run.
type CreateRunInput struct {
	Country        string `json:"country,omitempty"         jsonschema:"country the document is written for"`
	Title          string `json:"title,omitempty"           jsonschema:"working title of the document"`
	UserNotes      string `json:"user_notes,omitempty"      jsonschema:"free-form guidance for the drafting agent"`
	OutputType     string `json:"output_type,omitempty"     jsonschema:"document type: cosop, pcn or pdr"`
	NumSimulations int    `json:"num_simulations,omitempty" jsonschema:"number of independent candidates"`
	MaxRounds      int    `json:"max_rounds,omitempty"      jsonschema:"maximum review rounds per candidate"`
	TopCandidates  int    `json:"top_candidates,omitempty"  jsonschema:"number of candidates to select"`
}

// RunInput names a run.
type RunInput struct {
	RunID string `json:"run_id" jsonschema:"run identifier returned by create_run"`
}

// ListEventsInput is the argument of list_run_events.
type ListEventsInput struct {
	RunID    string `json:"run_id"              jsonschema:"run identifier"`
	AfterSeq int64  `json:"after_seq,omitempty" jsonschema:"only return events with a higher sequence number"`
	Limit    int    `json:"limit,omitempty"     jsonschema:"maximum number of events to return"`
}

// RunSummary is the tool view of a run.
type RunSummary struct {
	RunID        string   `json:"run_id"`
	Status       string   `json:"status"`
	Round        int      `json:"round"`
	MaxRounds    int      `json:"max_rounds"`
	OutputType   string   `json:"output_type"`
	Candidates   int      `json:"candidates"`
	Selected     []string `json:"selected_candidates"`
	TopCandidate string   `json:"top_candidate,omitempty"`
	TopScore     float64  `json:"top_score,omitempty"`
	TopPassed    bool     `json:"top_passed,omitempty"`
	Output       string   `json:"output,omitempty"`
	Error        string   `json:"error,omitempty"`
	UpdatedAt    string   `json:"updated_at"`
}

// EventView is the tool view of a run event.
type EventView struct {
	Seq     int64  `json:"seq"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventList is the result of list_run_events.
type EventList struct {
	Events []EventView `json:"events"`
	// More is set when events past the limit exist.
	More bool `json:"more"`
}

type tools struct {
	runs Runs
}

// New builds the MCP server with the run tools registered.
func New(runs Runs, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "quorum", Version: version}, nil)
	t := &tools{runs: runs}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_run",
		Description: "Start a document run. Returns immediately with the queued run.",
	}, t.createRun)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_run_status",
		Description: "Get the status, round and selected candidates of a run.",
	}, t.getRunStatus)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_run_events",
		Description: "List the logged progress events of a run in sequence order.",
	}, t.listRunEvents)
	return server
}

// Serve runs the tools over stdio until the client disconnects or ctx ends.
func Serve(ctx context.Context, runs Runs, version string) error {
	log.Info().Msg("mcp server on stdio")
	return New(runs, version).Run(ctx, &mcp.StdioTransport{})
}

func (t *tools) createRun(ctx context.Context, _ *mcp.CallToolRequest, in CreateRunInput) (*mcp.CallToolResult, RunSummary, error) {
	r, err := t.runs.Create(ctx, run.Inputs{
		Country:        in.Country,
		Title:          in.Title,
		UserNotes:      in.UserNotes,
		OutputType:     in.OutputType,
		NumSimulations: in.NumSimulations,
		MaxRounds:      in.MaxRounds,
		TopCandidates:  in.TopCandidates,
	})
	if err != nil {
		return nil, RunSummary{}, err
	}
	return nil, summarize(r), nil
}

func (t *tools) getRunStatus(ctx context.Context, _ *mcp.CallToolRequest, in RunInput) (*mcp.CallToolResult, RunSummary, error) {
	r, err := t.runs.Status(ctx, in.RunID)
	if err != nil {
		return nil, RunSummary{}, err
	}
	return nil, summarize(r), nil
}

func (t *tools) listRunEvents(ctx context.Context, _ *mcp.CallToolRequest, in ListEventsInput) (*mcp.CallToolResult, EventList, error) {
	evs, err := t.runs.Events(ctx, in.RunID, in.AfterSeq)
	if err != nil {
		return nil, EventList{}, err
	}
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	out := EventList{Events: make([]EventView, 0, min(limit, len(evs)))}
	if len(evs) > limit {
		evs = evs[:limit]
		out.More = true
	}
	for _, ev := range evs {
		var payload any
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			payload = string(ev.Payload)
		}
		out.Events = append(out.Events, EventView{
			Seq:     ev.Seq,
			TS:      ev.TS.Format(time.RFC3339Nano),
			Type:    ev.Type,
			Payload: payload,
		})
	}
	return nil, out, nil
}

func summarize(r run.Run) RunSummary {
	s := RunSummary{
		RunID:      r.ID,
		Status:     r.Status,
		Round:      r.Round,
		MaxRounds:  r.MaxRounds,
		OutputType: r.Inputs.OutputType,
		Candidates: len(r.Candidates),
		Selected:   append([]string{}, r.Selected...),
		Error:      r.Error,
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
	if top, ok := r.Top(); ok {
		s.TopCandidate = top.ID
		s.TopScore = top.Score
		s.TopPassed = top.Passed
	}
	if out, ok := r.Artifacts["output"].(string); ok {
		s.Output = out
	}
	return s
}
