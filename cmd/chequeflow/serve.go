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

	"github.com/aretw0/chequeflow/internal/cli"
	httpAdapter "github.com/aretw0/chequeflow/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the workflow engine in server mode, exposing sessions as a JSON API
with SSE snapshot streams. Prometheus metrics are served on /metrics when enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx := context.Background()
		stack, err := cli.NewStack(ctx, cfg, logger)
		if err != nil {
			return err
		}

		apiServer := httpAdapter.NewServer(stack.Sessions,
			httpAdapter.WithJournal(stack.Journal),
			httpAdapter.WithLogger(logger),
		)
		router := apiServer.Routes()
		if stack.Registry != nil {
			router.Handle("/metrics", promhttp.HandlerFor(stack.Registry, promhttp.HandlerOpts{}))
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("Starting chequeflow server", "addr", srv.Addr, "scenario", stack.Scenario, "metrics", stack.Registry != nil)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			_ = stack.Close(ctx)
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Graceful shutdown did not complete", "timeout", 5*time.Second, "error", err)
				if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Error killing server", "error", err)
				}
			}
			if err := stack.Close(ctx); err != nil {
				logger.Warn("Error releasing resources", "error", err)
			}
			logger.Info("chequeflow server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides http.addr)")
}
