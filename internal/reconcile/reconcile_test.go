package reconcile

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/metalagman/quorum/internal/db"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/pipeline"
	"github.com/metalagman/quorum/internal/run"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFailsInterruptedRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	database, err := db.Open(filepath.Join(t.TempDir(), db.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	store := run.NewStore(db.NewStore(database))

	now := time.Now().UTC()
	seed := []run.Run{
		{ID: "stale-writing", Status: run.StatusWriting, Round: 2, UpdatedAt: now.Add(-time.Hour)},
		{ID: "stale-queued", Status: run.StatusQueued, UpdatedAt: now.Add(-time.Hour)},
		{ID: "fresh-queued", Status: run.StatusQueued, UpdatedAt: now.Add(time.Hour)},
		{ID: "done", Status: run.StatusCompleted, UpdatedAt: now.Add(-time.Hour)},
	}
	for _, r := range seed {
		r.CreatedAt = r.UpdatedAt
		require.NoError(t, store.Save(ctx, r))
	}

	fixed, err := Run(ctx, store, now, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	tests := []struct {
		id         string
		wantStatus string
		wantEvent  bool
	}{
		{id: "stale-writing", wantStatus: run.StatusFailed, wantEvent: true},
		{id: "stale-queued", wantStatus: run.StatusFailed, wantEvent: true},
		{id: "fresh-queued", wantStatus: run.StatusQueued},
		{id: "done", wantStatus: run.StatusCompleted},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			r, err := store.Load(ctx, tc.id)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, r.Status)

			evs, err := store.Events(ctx, tc.id, 0)
			require.NoError(t, err)
			if !tc.wantEvent {
				assert.Empty(t, evs)
				return
			}
			assert.Equal(t, Interrupted, r.Error)
			require.Len(t, evs, 1)
			assert.Equal(t, events.TypeRunStatus, evs[0].Type)
			var p pipeline.StatusPayload
			require.NoError(t, json.Unmarshal(evs[0].Payload, &p))
			assert.Equal(t, run.StatusFailed, p.Status)
		})
	}

	again, err := Run(ctx, store, now, zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, again)
}
