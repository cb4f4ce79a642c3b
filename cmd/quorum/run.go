package main

import (
	"io"
	"os"

	"github.com/metalagman/quorum/internal/run"
	"github.com/metalagman/quorum/internal/telemetry"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		in     run.Inputs
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Run a drafting simulation and wait for it to finish",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			storeDB, closeFn, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			var agentLog io.Writer = io.Discard
			if debug {
				agentLog = os.Stderr
			}
			m, err := newManager(cmd.Context(), cfg, newRunStore(storeDB), telemetry.New(), agentLog)
			if err != nil {
				return err
			}

			r, runErr := m.Execute(cmd.Context(), in)
			if r.ID == "" {
				return runErr
			}
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			} else {
				printRun(cmd.OutOrStdout(), r)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&in.Country, "country", "", "country the document is written for")
	cmd.Flags().StringVar(&in.Title, "title", "", "working title")
	cmd.Flags().StringVar(&in.UserNotes, "notes", "", "free-form guidance for the drafting agent")
	cmd.Flags().StringVarP(&in.OutputType, "output-type", "t", "", "document type: cosop, pcn or pdr")
	cmd.Flags().IntVarP(&in.NumSimulations, "simulations", "n", 0, "number of candidates (config default when 0)")
	cmd.Flags().IntVar(&in.MaxRounds, "rounds", 0, "maximum rounds per candidate (config default when 0)")
	cmd.Flags().IntVar(&in.TopCandidates, "top", 0, "candidates to select (config default when 0)")
	cmd.Flags().StringSliceVarP(&in.Uploads, "upload", "u", nil, "user document to ingest (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run as JSON")
	return cmd
}
