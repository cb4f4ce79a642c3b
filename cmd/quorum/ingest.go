package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/ingest"
	"github.com/metalagman/quorum/internal/retrieval"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	var (
		uploads    []string
		outputType string
		query      string
		scopes     []string
		topK       int
	)
	cmd := &cobra.Command{
		Use:          "ingest",
		Short:        "Build the knowledge index and optionally probe it with a query",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			dir := filepath.Join(cfg.Paths.DataDir, "index")
			index := retrieval.New(dir)
			ingestor := ingest.New(index, log.Logger)
			ingestor.Notify = func(_ context.Context, message string, extra map[string]any) {
				log.Info().Fields(extra).Msg(message)
			}

			templatePath := ""
			if outputType != "" {
				templatePath = filepath.Join(dir, agent.TemplateName(outputType))
				if err := writeTemplate(templatePath, outputType, cfg.Paths.AssetsDir); err != nil {
					return err
				}
			}
			stats, err := ingestor.Run(ctx, cfg.Paths.AssetsDir, templatePath, uploads)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d internal and %d user chunks into %s\n", stats.InternalChunks, stats.UserChunks, dir)

			if strings.TrimSpace(query) == "" {
				return nil
			}
			hits, err := index.Search(query, topK, scopes...)
			if err != nil {
				return err
			}
			for i, h := range hits {
				text := strings.Join(strings.Fields(h.Chunk.Text), " ")
				if len(text) > 160 {
					text = text[:157] + "..."
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %.3f %s [%s] %s\n", i+1, h.Score, h.Chunk.Filename,
					strings.Join(h.Chunk.EffectiveScopes(), ","), text)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&uploads, "upload", "u", nil, "user document to ingest (repeatable)")
	cmd.Flags().StringVarP(&outputType, "output-type", "t", "", "also index the template of this document type")
	cmd.Flags().StringVarP(&query, "query", "q", "", "search the index after building it")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scope filter for the query (public only when empty)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of hits to print")
	return cmd
}

func writeTemplate(path, outputType, assetsDir string) error {
	text, err := agent.Template(outputType, assetsDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}
