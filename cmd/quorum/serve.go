package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metalagman/quorum/internal/config"
	"github.com/metalagman/quorum/internal/mcpserver"
	"github.com/metalagman/quorum/internal/run"
	"github.com/metalagman/quorum/internal/telemetry"
	"github.com/metalagman/quorum/internal/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the HTTP API, event stream and metrics",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			app := fx.New(
				fx.NopLogger,
				fx.Supply(cfg),
				fx.Provide(
					provideDB,
					newRunStore,
					telemetry.New,
					provideManager,
					provideServer,
				),
				fx.Invoke(registerServer),
			)
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			sig := <-app.Done()
			log.Info().Str("signal", sig.String()).Msg("shutting down")

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func provideDB(lc fx.Lifecycle, cfg config.Config) (*sql.DB, error) {
	storeDB, closeFn, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		closeFn()
		return nil
	}})
	return storeDB, nil
}

func provideManager(lc fx.Lifecycle, cfg config.Config, store *run.Store, metrics *telemetry.Metrics) (*run.Manager, error) {
	if err := reconcileRuns(context.Background(), cfg, store); err != nil {
		return nil, err
	}
	m, err := newManager(context.Background(), cfg, store, metrics, agentLog())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		return waitRuns(ctx, m)
	}})
	return m, nil
}

func provideServer(cfg config.Config, m *run.Manager, metrics *telemetry.Metrics) *web.Server {
	return web.NewServer(m, metrics, cfg.Server.StatusCacheTTL)
}

func registerServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, s *web.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := s.Serve(ln); err != nil {
					log.Error().Err(err).Msg("http server stopped")
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: s.Shutdown,
	})
}

// waitRuns blocks until background runs finish or ctx ends.
func waitRuns(ctx context.Context, m *run.Manager) error {
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("runs still executing at shutdown")
	}
}

func agentLog() io.Writer {
	if debug {
		return os.Stderr
	}
	return io.Discard
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "mcp",
		Short:        "Serve run tools over MCP on stdio",
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

			store := newRunStore(storeDB)
			if err := reconcileRuns(cmd.Context(), cfg, store); err != nil {
				return err
			}
			m, err := newManager(cmd.Context(), cfg, store, telemetry.New(), agentLog())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErr := mcpserver.Serve(ctx, m, version)
			log.Info().Msg("mcp client gone; waiting for runs to finish")
			m.Wait()
			if errors.Is(serveErr, context.Canceled) {
				return nil
			}
			return serveErr
		},
	}
}
