// Package reconcile repairs run state left behind by a process that died
// mid-run.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/pipeline"
	"github.com/metalagman/quorum/internal/run"
	"github.com/rs/zerolog"
)

// Interrupted is the error recorded on runs failed by Run.
const Interrupted = "interrupted: process exited before the run finished"

// Run marks every non-terminal run last updated before cutoff as failed and
// appends a closing run_status event to its log. The caller must hold the
// exclusive data dir lock so that no live run is touched.
func Run(ctx context.Context, store *run.Store, cutoff time.Time, logger zerolog.Logger) (int, error) {
	runs, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, r := range runs {
		if run.Terminal(r.Status) || r.UpdatedAt.After(cutoff) {
			continue
		}
		logger.Warn().Str("run_id", r.ID).Str("status", r.Status).Msg("failing interrupted run")

		r.Status = run.StatusFailed
		r.Error = Interrupted
		r.UpdatedAt = time.Now().UTC()
		if err := store.Save(ctx, r); err != nil {
			return fixed, fmt.Errorf("save run %s: %w", r.ID, err)
		}
		ev, err := events.New(r.ID, events.TypeRunStatus, pipeline.StatusPayload{
			Status: run.StatusFailed,
			Round:  r.Round,
			Error:  Interrupted,
		})
		if err != nil {
			return fixed, err
		}
		if _, err := store.AppendEvent(ctx, ev); err != nil {
			return fixed, fmt.Errorf("append event for %s: %w", r.ID, err)
		}
		fixed++
	}
	return fixed, nil
}
