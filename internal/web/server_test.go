package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/metalagman/quorum/internal/config"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/run"
	"github.com/metalagman/quorum/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuns struct {
	mu          sync.Mutex
	runs        map[string]run.Run
	log         map[string][]events.Event
	reg         *events.Registry
	statusCalls int
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		runs: map[string]run.Run{},
		log:  map[string][]events.Event{},
		reg:  events.NewRegistry(4),
	}
}

func (f *fakeRuns) Create(_ context.Context, in run.Inputs) (run.Run, error) {
	in, err := in.Normalize(config.RunDefaults{NumSimulations: 1, MaxRounds: 1, TopCandidates: 1})
	if err != nil {
		return run.Run{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := run.Run{ID: fmt.Sprintf("run-%d", len(f.runs)+1), Status: run.StatusQueued, Inputs: in}
	f.runs[r.ID] = r
	f.reg.Open(r.ID)
	return r, nil
}

func (f *fakeRuns) Status(_ context.Context, id string) (run.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	r, ok := f.runs[id]
	if !ok {
		return run.Run{}, fmt.Errorf("%s: %w", id, run.ErrNotFound)
	}
	return r, nil
}

func (f *fakeRuns) List(context.Context) ([]run.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]run.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRuns) Events(_ context.Context, id string, after int64) ([]events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[id]; !ok {
		return nil, fmt.Errorf("%s: %w", id, run.ErrNotFound)
	}
	var out []events.Event
	for _, ev := range f.log[id] {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeRuns) Subscribe(id string) *events.Subscription {
	return f.reg.Subscribe(id)
}

func (f *fakeRuns) put(r run.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[r.ID] = r
}

// record appends an event to the log and optionally publishes it.
func (f *fakeRuns) record(t *testing.T, id string, publish bool) events.Event {
	t.Helper()
	ev, err := events.New(id, events.TypeLog, map[string]string{"message": "tick"})
	require.NoError(t, err)
	f.mu.Lock()
	ev.Seq = int64(len(f.log[id]) + 1)
	f.log[id] = append(f.log[id], ev)
	f.mu.Unlock()
	if publish {
		f.reg.Publish(ev)
	}
	return ev
}

func do(t *testing.T, s *Server, method, target, body string) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(out)
}

func TestCreateRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
	}{
		{name: "defaults", body: "", wantCode: http.StatusAccepted, wantBody: `"output_type":"cosop"`},
		{name: "explicit", body: `{"country":"Kenya","output_type":"PCN","num_simulations":3}`, wantCode: http.StatusAccepted, wantBody: `"num_simulations":3`},
		{name: "invalid output type", body: `{"output_type":"memo"}`, wantCode: http.StatusBadRequest, wantBody: "invalid inputs"},
		{name: "malformed body", body: `{"country":`, wantCode: http.StatusBadRequest, wantBody: "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := NewServer(newFakeRuns(), nil, time.Minute)
			code, body := do(t, s, http.MethodPost, "/api/runs", tc.body)
			assert.Equal(t, tc.wantCode, code, body)
			assert.Contains(t, body, tc.wantBody)
		})
	}
}

func TestRunStatusCachesFinishedRuns(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	runs.put(run.Run{ID: "done", Status: run.StatusCompleted, Selected: []string{"cand_001"}})
	runs.put(run.Run{ID: "busy", Status: run.StatusWriting})
	s := NewServer(runs, nil, time.Minute)

	for range 2 {
		code, body := do(t, s, http.MethodGet, "/api/runs/done", "")
		require.Equal(t, http.StatusOK, code)
		var got run.Run
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, []string{"cand_001"}, got.Selected)
	}
	assert.Equal(t, 1, runs.statusCalls)

	for range 2 {
		code, _ := do(t, s, http.MethodGet, "/api/runs/busy", "")
		require.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, 3, runs.statusCalls)

	code, body := do(t, s, http.MethodGet, "/api/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "run not found")
}

func TestRunEvents(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	runs.put(run.Run{ID: "r1", Status: run.StatusCompleted})
	for range 3 {
		runs.record(t, "r1", false)
	}
	s := NewServer(runs, nil, time.Minute)

	code, body := do(t, s, http.MethodGet, "/api/runs/r1/events?after=1", "")
	require.Equal(t, http.StatusOK, code)
	var evs []events.Event
	require.NoError(t, json.Unmarshal([]byte(body), &evs))
	require.Len(t, evs, 2)
	assert.Equal(t, int64(2), evs[0].Seq)
	assert.Equal(t, int64(3), evs[1].Seq)

	code, _ = do(t, s, http.MethodGet, "/api/runs/r1/events?after=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, s, http.MethodGet, "/api/runs/nope/events", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListRunsAndHealth(t *testing.T) {
	t.Parallel()

	runs := newFakeRuns()
	runs.put(run.Run{ID: "r1", Status: run.StatusQueued})
	s := NewServer(runs, nil, time.Minute)

	code, body := do(t, s, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"run_id":"r1"`)

	code, body = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics := telemetry.New()
	metrics.RunStarted()
	s := NewServer(newFakeRuns(), metrics, time.Minute)

	code, body := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "quorum_active_runs 1")

	code, _ = do(t, NewServer(newFakeRuns(), nil, 0), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStreamRequiresUpgrade(t *testing.T) {
	t.Parallel()

	s := NewServer(newFakeRuns(), nil, time.Minute)
	code, _ := do(t, s, http.MethodGet, "/ws/runs/r1", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}
