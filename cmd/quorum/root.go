package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/metalagman/quorum/internal/config"
	"github.com/metalagman/quorum/internal/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile string
	debug   bool
	rootCmd = &cobra.Command{
		Use:           "quorum",
		Short:         "quorum drafts documents with a panel of simulated stakeholders",
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", filepath.Join(config.DirName, "config.json"), "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// a missing .env is fine; keys may come from the environment
		_ = godotenv.Load()
		logging.Init(debug)
	}
	rootCmd.AddCommand(
		runCmd(),
		statusCmd(),
		eventsCmd(),
		watchCmd(),
		showCmd(),
		serveCmd(),
		mcpCmd(),
		pruneCmd(),
		ingestCmd(),
	)
	return rootCmd.Execute()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
}
