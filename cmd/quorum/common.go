package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/config"
	"github.com/metalagman/quorum/internal/db"
	"github.com/metalagman/quorum/internal/llm"
	"github.com/metalagman/quorum/internal/reconcile"
	"github.com/metalagman/quorum/internal/run"
	"github.com/metalagman/quorum/internal/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func loadConfig() (config.Config, error) {
	return config.Load(viper.New(), cfgFile)
}

func openDB(cfg config.Config) (*sql.DB, func(), error) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, func() {}, fmt.Errorf("create data dir: %w", err)
	}
	storeDB, err := db.Open(filepath.Join(cfg.Paths.DataDir, db.FileName))
	if err != nil {
		return nil, func() {}, err
	}
	return storeDB, func() { _ = storeDB.Close() }, nil
}

func newRunStore(storeDB *sql.DB) *run.Store {
	return run.NewStore(db.NewStore(storeDB))
}

func newManager(ctx context.Context, cfg config.Config, store *run.Store, metrics *telemetry.Metrics, agentLog io.Writer) (*run.Manager, error) {
	gen, err := llm.New(ctx, cfg.Backend, cfg.Paths.DataDir, agentLog)
	if err != nil {
		return nil, fmt.Errorf("init %s backend: %w", cfg.Backend.Type, err)
	}
	profiles, err := agent.LoadProfiles(cfg.Paths.ProfilesFile, cfg.Paths.AssetsDir)
	if err != nil {
		return nil, err
	}
	return run.NewManager(run.Options{
		Config:    cfg,
		Store:     store,
		Generator: gen,
		Profiles:  profiles,
		Metrics:   metrics,
	})
}

// openStore loads config and opens the run store for read-only commands.
func openStore() (config.Config, *run.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, func() {}, err
	}
	storeDB, closeFn, err := openDB(cfg)
	if err != nil {
		return config.Config{}, nil, func() {}, err
	}
	return cfg, newRunStore(storeDB), closeFn, nil
}

// reconcileGrace protects runs that were just queued by another process and
// have not taken the shared lock yet.
const reconcileGrace = time.Minute

// reconcileRuns fails runs orphaned by a crashed process. It is skipped while
// another process holds the data dir lock.
func reconcileRuns(ctx context.Context, cfg config.Config, store *run.Store) error {
	lock, ok, err := run.TryAcquireExclusive(cfg.Paths.DataDir)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Msg("runs are executing elsewhere; skipping reconcile")
		return nil
	}
	defer func() { _ = lock.Release() }()

	fixed, err := reconcile.Run(ctx, store, time.Now().UTC().Add(-reconcileGrace), log.Logger)
	if err != nil {
		return fmt.Errorf("reconcile runs: %w", err)
	}
	if fixed > 0 {
		log.Info().Int("runs", fixed).Msg("failed interrupted runs")
	}
	return nil
}
