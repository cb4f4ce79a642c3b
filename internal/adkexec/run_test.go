package adkexec

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/session"
)

func newTestAgent(t *testing.T, events int, failWith error) agent.Agent {
	t.Helper()
	ag, err := agent.New(agent.Config{
		Name:        "Echo",
		Description: "yields a fixed number of events",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
			return func(yield func(*session.Event, error) bool) {
				for range events {
					ev := session.NewEvent(ctx.InvocationID())
					ev.Author = "Echo"
					if !yield(ev, nil) {
						return
					}
				}
				if failWith != nil {
					yield(nil, failWith)
				}
			}
		},
	})
	require.NoError(t, err)
	return ag
}

func TestRun(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name       string
		events     int
		failWith   error
		wantEvents int
		wantErr    error
	}{
		{name: "no events", events: 0, wantEvents: 0},
		{name: "counts events", events: 3, wantEvents: 3},
		{name: "agent error stops the run", events: 1, failWith: boom, wantEvents: 1, wantErr: boom},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			seen := 0
			res, err := Run(context.Background(), Input{
				SessionID:    "cand_001",
				Agent:        newTestAgent(t, tc.events, tc.failWith),
				InitialState: map[string]any{"seed": 1},
				OnEvent:      func(*session.Event) { seen++ },
			})
			assert.Equal(t, tc.wantEvents, res.Events)
			assert.Equal(t, tc.wantEvents, seen)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, 1, res.State["seed"])
		})
	}
}

func TestRunRequiresAgent(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), Input{})
	require.Error(t, err)
}
