package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/regions/internal/cli"
	"github.com/aretw0/regions/internal/presentation/tui"
	httpAdapter "github.com/aretw0/regions/pkg/adapters/http"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/observability"
	"github.com/aretw0/regions/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves the annotation commands of every session over HTTP, streams label
list changes as Server-Sent Events and exposes Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := cli.NewBackend(cfg, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		var metrics *observability.Metrics
		if cfg.Metrics.Enabled {
			metrics = observability.NewMetrics(reg)
		}

		streams := httpAdapter.NewStreamManager(logger)
		sessions := session.NewManager(backend.Factory(func(id string) domain.LifecycleHooks {
			return domain.ComposeHooks(streams.Hooks(id), metrics.Hooks())
		}), backend.SessionOptions()...)
		defer sessions.CloseAll()

		mux := http.NewServeMux()
		if cfg.Metrics.Enabled {
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		}
		mux.Handle("/", httpAdapter.NewHandler(sessions, streams,
			httpAdapter.WithUploader(backend.Engine),
			httpAdapter.WithLogger(logger),
		))

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tui.PrintBanner(cmd.ErrOrStderr())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("Starting regions server", "addr", srv.Addr, "store", cfg.Store.Backend)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Start shutdown")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			logger.Info("Regions server stopped gracefully")
			return nil
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("store", "memory", "Record store backend: memory or redis")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (store=redis)")
	serveCmd.Flags().Duration("window", 50*time.Millisecond, "Completion settle window")
	bindFlag(serveCmd, "server.port", "port", false)
	bindFlag(serveCmd, "store.backend", "store", false)
	bindFlag(serveCmd, "redis.addr", "redis-addr", false)
	bindFlag(serveCmd, "debounce.window", "window", false)
}
