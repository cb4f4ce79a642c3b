package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(t *testing.T, seq int64, typ string, payload any) events.Event {
	t.Helper()
	ev, err := events.New("r1", typ, payload)
	require.NoError(t, err)
	ev.Seq = seq
	return ev
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     string
		payload any
		want    string
		ok      bool
	}{
		{
			name:    "log with extra",
			typ:     events.TypeLog,
			payload: pipeline.LogPayload{Node: "ingest", Message: "Skipped KB file", Extra: map[string]any{"file": "a.pdf", "error": "unsupported"}},
			want:    "[ingest] Skipped KB file error=unsupported file=a.pdf",
			ok:      true,
		},
		{
			name:    "failed status",
			typ:     events.TypeRunStatus,
			payload: pipeline.StatusPayload{Status: "failed", Round: 2, Error: "boom"},
			want:    "status failed (round 2): boom",
			ok:      true,
		},
		{
			name:    "round",
			typ:     events.TypeRoundUpdate,
			payload: pipeline.RoundPayload{Round: 3, CandidateID: "cand_002"},
			want:    "cand_002 entered round 3",
			ok:      true,
		},
		{
			name:    "draft",
			typ:     events.TypeDraftCreated,
			payload: map[string]string{"candidate_id": "cand_001", "path": "/tmp/d.md"},
			want:    "cand_001 draft written to /tmp/d.md",
			ok:      true,
		},
		{
			name: "review",
			typ:  events.TypeReviewResult,
			payload: map[string]any{
				"candidate_id": "cand_001",
				"ode_review":   map[string]any{"passed": true},
				"ren_review":   map[string]any{"passed": false},
			},
			want: "cand_001 reviewed: compliance passed, quality revise",
			ok:   true,
		},
		{
			name:    "graph status",
			typ:     events.TypeGraphUpdate,
			payload: pipeline.GraphPayload{NodeStatus: map[string]string{"cd": "writing"}},
			want:    "graph cd=writing",
			ok:      true,
		},
		{
			name:    "topology is skipped",
			typ:     events.TypeGraphUpdate,
			payload: pipeline.Topology{Nodes: []pipeline.GraphNode{{ID: "cd"}}},
		},
		{
			name:    "unknown type",
			typ:     "custom",
			payload: map[string]string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Describe(event(t, 1, tc.typ, tc.payload))
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

type stubSource struct {
	evs   []events.Event
	err   error
	after []int64
}

func (s *stubSource) Events(_ context.Context, _ string, after int64) ([]events.Event, error) {
	s.after = append(s.after, after)
	if s.err != nil {
		return nil, s.err
	}
	var out []events.Event
	for _, ev := range s.evs {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

func feed(t *testing.T, w Watch, msg tea.Msg) (Watch, tea.Cmd) {
	t.Helper()
	m, cmd := w.Update(msg)
	out, ok := m.(Watch)
	require.True(t, ok)
	return out, cmd
}

func TestWatchFollowsRunUntilTerminal(t *testing.T) {
	t.Parallel()

	src := &stubSource{evs: []events.Event{
		event(t, 1, events.TypeRunStatus, pipeline.StatusPayload{Status: "ingesting"}),
		event(t, 2, events.TypeRoundUpdate, pipeline.RoundPayload{Round: 1, CandidateID: "cand_001"}),
		event(t, 3, events.TypeLog, pipeline.LogPayload{Node: "cd", Message: "Entering round"}),
	}}
	w := NewWatch(src, "r1", time.Millisecond)

	w, cmd := feed(t, w, w.fetch()())
	assert.Equal(t, "ingesting", w.Status())
	assert.Equal(t, 1, w.round)
	assert.Len(t, w.lines, 3)
	require.NotNil(t, cmd, "keeps polling")

	src.evs = append(src.evs, event(t, 4, events.TypeRunStatus, pipeline.StatusPayload{Status: "completed", Round: 2}))
	w, cmd = feed(t, w, pollMsg{})
	require.NotNil(t, cmd)
	w, cmd = feed(t, w, cmd())
	assert.Equal(t, "completed", w.Status())
	assert.Equal(t, 2, w.round)
	assert.Equal(t, []int64{0, 3}, src.after)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	view := w.View()
	assert.Contains(t, view, "run r1")
	assert.Contains(t, view, "completed")
	assert.Contains(t, view, "[cd] Entering round")
}

func TestWatchStopsOnSourceError(t *testing.T) {
	t.Parallel()

	src := &stubSource{err: errors.New("run not found")}
	w := NewWatch(src, "r1", 0)
	w, cmd := feed(t, w, w.fetch()())
	require.Error(t, w.Err())
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, strings.Contains(w.View(), "run not found"))
}

func TestWatchQuitKeyAndWindowSize(t *testing.T) {
	t.Parallel()

	w := NewWatch(&stubSource{}, "r1", time.Second)
	w, _ = feed(t, w, tea.WindowSizeMsg{Width: 40, Height: 10})
	assert.Equal(t, 5, w.visible)
	for i := range 8 {
		w.lines = append(w.lines, strings.Repeat("x", 60)+string(rune('a'+i)))
	}
	view := w.View()
	assert.Equal(t, 5, strings.Count(view, "..."))

	_, cmd := feed(t, w, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
