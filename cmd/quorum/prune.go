package main

import (
	"errors"
	"fmt"

	"github.com/metalagman/quorum/internal/config"
	"github.com/metalagman/quorum/internal/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func pruneCmd() *cobra.Command {
	var (
		keepLast int
		keepDays int
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:          "prune",
		Short:        "Prune old runs from disk and database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			policy := config.RetentionPolicy{KeepLast: keepLast, KeepDays: keepDays}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				policy = cfg.Retention
			}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				return errors.New("set --keep-last or --keep-days (or configure retention in the config file)")
			}

			lock, ok, err := run.TryAcquireExclusive(cfg.Paths.DataDir)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("runs are executing; try again once they finish")
			}
			defer func() { _ = lock.Release() }()

			res, err := run.PruneRuns(cmd.Context(), store, policy, dryRun)
			if err != nil {
				return err
			}
			mode := "deleted"
			if dryRun {
				mode = "would delete"
			}
			for _, id := range res.Pruned {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			log.Info().Msgf("%s %d runs (kept %d, skipped %d)", mode, res.Deleted, res.Kept, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep the newest N runs")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep runs newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}
