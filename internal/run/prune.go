package run

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/metalagman/quorum/internal/config"
	"github.com/rs/zerolog/log"
)

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
	Skipped    int
	// Pruned lists the deleted run ids, newest first. In a dry run it lists
	// the runs that would be deleted.
	Pruned []string
}

// PruneRuns deletes old terminal runs with their directories and event logs.
// Runs that are still executing are always kept.
func PruneRuns(ctx context.Context, store *Store, policy config.RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	runs, err := store.List(ctx)
	if err != nil {
		return PruneResult{}, fmt.Errorf("list runs: %w", err)
	}

	victims := expired(runs, policy, time.Now().UTC())
	res := PruneResult{Considered: len(runs), Kept: len(runs) - len(victims)}
	for _, r := range victims {
		if dryRun {
			log.Debug().Str("run_id", r.ID).Str("status", r.Status).Msg("would prune run")
			res.Deleted++
			res.Pruned = append(res.Pruned, r.ID)
			continue
		}
		if r.Dir != "" {
			if err := os.RemoveAll(r.Dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("run_id", r.ID).Msg("skip run: remove dir failed")
				res.Skipped++
				continue
			}
		}
		if err := store.Delete(ctx, r.ID); err != nil {
			return res, fmt.Errorf("delete run %s: %w", r.ID, err)
		}
		res.Deleted++
		res.Pruned = append(res.Pruned, r.ID)
	}
	return res, nil
}

// expired picks the runs the policy no longer retains. runs must be sorted
// newest first.
func expired(runs []Run, policy config.RetentionPolicy, now time.Time) []Run {
	var cutoff time.Time
	if policy.KeepDays > 0 {
		cutoff = now.Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}
	var out []Run
	for idx, r := range runs {
		switch {
		case !Terminal(r.Status):
		case policy.KeepLast > 0 && idx < policy.KeepLast:
		case policy.KeepDays > 0 && r.CreatedAt.After(cutoff):
		default:
			out = append(out, r)
		}
	}
	return out
}
