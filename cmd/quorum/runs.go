package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/pipeline"
	"github.com/metalagman/quorum/internal/run"
	"github.com/metalagman/quorum/internal/tui"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:          "status [run-id]",
		Short:        "Show a run, or list all runs",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			if len(args) == 0 {
				runs, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), runs)
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			}
			r, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), r)
			}
			printRun(cmd.OutOrStdout(), r)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func eventsCmd() *cobra.Command {
	var (
		after  int64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:          "events <run-id>",
		Short:        "Print the event log of a run",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			if _, err := store.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			evs, err := store.Events(cmd.Context(), args[0], after)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), evs)
			}
			for _, ev := range evs {
				if line, ok := tui.Describe(ev); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%5d %s %s\n", ev.Seq, ev.TS.Local().Format(time.TimeOnly), line)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "only events with a higher sequence number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw events as JSON")
	return cmd
}

// storeSource adapts the run store to tui.Source, failing for unknown runs.
type storeSource struct {
	store *run.Store
}

func (s storeSource) Events(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error) {
	if afterSeq == 0 {
		if _, err := s.store.Load(ctx, runID); err != nil {
			return nil, err
		}
	}
	return s.store.Events(ctx, runID, afterSeq)
}

func watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:          "watch <run-id>",
		Short:        "Follow the progress of a run",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			final, err := tea.NewProgram(tui.NewWatch(storeSource{store: store}, args[0], interval)).Run()
			if err != nil {
				return err
			}
			w, ok := final.(tui.Watch)
			if !ok {
				return nil
			}
			if w.Err() != nil {
				return w.Err()
			}
			if w.Status() == run.StatusFailed {
				return fmt.Errorf("run %s failed", args[0])
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	return cmd
}

func showCmd() *cobra.Command {
	var (
		candidate string
		raw       bool
		width     int
	)
	cmd := &cobra.Command{
		Use:          "show <run-id>",
		Short:        "Render the selected document of a run",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			r, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path, err := documentPath(r, candidate)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			if raw {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}
			renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
			if err != nil {
				return err
			}
			out, err := renderer.Render(string(body))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVarP(&candidate, "candidate", "c", "", "candidate id (defaults to the top selected candidate)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	return cmd
}

// documentPath picks the rendered output of a selected candidate, falling back
// to its last draft.
func documentPath(r run.Run, candidateID string) (string, error) {
	if candidateID == "" {
		top, ok := r.Top()
		if !ok {
			return "", fmt.Errorf("run %s has no selected candidate (status %s)", r.ID, r.Status)
		}
		candidateID = top.ID
	}
	output := filepath.Join(r.Dir, "outputs", candidateID, r.Inputs.OutputType+".md")
	if _, err := os.Stat(output); err == nil {
		return output, nil
	}
	for _, c := range r.Candidates {
		if c.ID == candidateID && c.DraftPath != "" {
			return c.DraftPath, nil
		}
	}
	if _, err := os.Stat(pipeline.CandidateDir(r.Dir, candidateID)); err == nil {
		return "", fmt.Errorf("candidate %s has no draft yet", candidateID)
	}
	return "", fmt.Errorf("candidate %s not found in run %s", candidateID, r.ID)
}
