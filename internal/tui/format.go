// Package tui renders run progress in the terminal.
package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/pipeline"
)

type reviewSummary struct {
	CandidateID string `json:"candidate_id"`
	Compliance  struct {
		Passed bool `json:"passed"`
	} `json:"ode_review"`
	Quality struct {
		Passed bool `json:"passed"`
	} `json:"ren_review"`
}

type draftSummary struct {
	CandidateID string `json:"candidate_id"`
	Path        string `json:"path"`
}

// Describe renders an event as a single line. It reports false for events
// that carry nothing worth a line, such as the initial topology.
func Describe(ev events.Event) (string, bool) {
	switch ev.Type {
	case events.TypeLog:
		var p pipeline.LogPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", false
		}
		line := fmt.Sprintf("[%s] %s", p.Node, p.Message)
		if extra := formatExtra(p.Extra); extra != "" {
			line += " " + extra
		}
		return line, true
	case events.TypeRunStatus:
		var p pipeline.StatusPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", false
		}
		line := "status " + p.Status
		if p.Round > 0 {
			line += fmt.Sprintf(" (round %d)", p.Round)
		}
		if p.CandidateID != "" {
			line += " " + p.CandidateID
		}
		if p.Error != "" {
			line += ": " + p.Error
		}
		return line, true
	case events.TypeRoundUpdate:
		var p pipeline.RoundPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", false
		}
		return fmt.Sprintf("%s entered round %d", p.CandidateID, p.Round), true
	case events.TypeDraftCreated:
		var p draftSummary
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", false
		}
		return fmt.Sprintf("%s draft written to %s", p.CandidateID, p.Path), true
	case events.TypeReviewResult:
		var p reviewSummary
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", false
		}
		return fmt.Sprintf("%s reviewed: compliance %s, quality %s",
			p.CandidateID, verdict(p.Compliance.Passed), verdict(p.Quality.Passed)), true
	case events.TypeGraphUpdate:
		var p pipeline.GraphPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || len(p.NodeStatus) == 0 {
			return "", false
		}
		return "graph " + formatExtra(toAny(p.NodeStatus)), true
	}
	return "", false
}

func verdict(passed bool) string {
	if passed {
		return "passed"
	}
	return "revise"
}

func formatExtra(extra map[string]any) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, extra[k]))
	}
	return strings.Join(parts, " ")
}

func toAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
