package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/quorum/internal/agent"
	"github.com/metalagman/quorum/internal/config"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/llm"
	"github.com/metalagman/quorum/internal/logging"
	"github.com/metalagman/quorum/internal/telemetry"
)

// Options wires a Manager.
type Options struct {
	Config    config.Config
	Store     *Store
	Registry  *events.Registry
	Generator llm.Generator
	Profiles  agent.Profiles
	Metrics   *telemetry.Metrics
}

// Manager creates runs, executes them and serves their state and events.
type Manager struct {
	cfg      config.Config
	store    *Store
	registry *events.Registry
	gen      llm.Generator
	profiles agent.Profiles
	metrics  *telemetry.Metrics

	wg sync.WaitGroup
}

// NewManager validates opts and returns a manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("run store is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if opts.Registry == nil {
		opts.Registry = events.NewRegistry(opts.Config.Server.SubscriberBuffer)
	}
	if opts.Profiles == nil {
		opts.Profiles = agent.DefaultProfiles()
	}
	if opts.Metrics != nil {
		opts.Registry.OnDrop(opts.Metrics.EventDropped)
	}
	return &Manager{
		cfg:      opts.Config,
		store:    opts.Store,
		registry: opts.Registry,
		gen:      opts.Generator,
		profiles: opts.Profiles,
		metrics:  opts.Metrics,
	}, nil
}

// Registry returns the live event registry.
func (m *Manager) Registry() *events.Registry {
	return m.registry
}

// Create records a queued run and executes it in the background. The run
// outlives ctx; it cannot be cancelled once started.
func (m *Manager) Create(ctx context.Context, in Inputs) (Run, error) {
	e, err := m.prepare(ctx, in)
	if err != nil {
		return Run{}, err
	}
	runCtx := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		e.execute(runCtx)
	}()
	return e.snapshot(), nil
}

// Execute records a run and executes it on the calling goroutine. The returned
// error reports why the run failed; the run itself is returned either way.
func (m *Manager) Execute(ctx context.Context, in Inputs) (Run, error) {
	e, err := m.prepare(ctx, in)
	if err != nil {
		return Run{}, err
	}
	runErr := e.execute(ctx)
	return e.snapshot(), runErr
}

// Wait blocks until every background run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Status returns the persisted state of a run.
func (m *Manager) Status(ctx context.Context, runID string) (Run, error) {
	return m.store.Load(ctx, runID)
}

// List returns all runs, newest first.
func (m *Manager) List(ctx context.Context) ([]Run, error) {
	return m.store.List(ctx)
}

// Events replays the logged events of a run after afterSeq.
func (m *Manager) Events(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error) {
	if _, err := m.store.Load(ctx, runID); err != nil {
		return nil, err
	}
	return m.store.Events(ctx, runID, afterSeq)
}

// Subscribe attaches to the live events of a run. The subscription is closed
// at once when the run is not executing in this process.
func (m *Manager) Subscribe(runID string) *events.Subscription {
	return m.registry.Subscribe(runID)
}

func (m *Manager) prepare(ctx context.Context, in Inputs) (*execution, error) {
	in, err := in.Normalize(m.cfg.Run)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	r := Run{
		ID:        id,
		Status:    StatusQueued,
		MaxRounds: in.MaxRounds,
		Inputs:    in,
		Artifacts: map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
		Dir:       filepath.Join(m.cfg.Paths.DataDir, "runs", id),
	}
	if err := m.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	m.registry.Open(id)
	logger := logging.ForRun(id)
	logger.Info().Str("output_type", in.OutputType).Int("num_simulations", in.NumSimulations).Msg("run queued")
	return &execution{m: m, run: r, logger: logger}, nil
}
