package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raysh454/a11yscan/internal/app"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/server"
)

type serveFlags struct {
	addr        string
	storageRoot string
}

var serveOpts serveFlags

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the report API server",
	Long: `Run the HTTP server exposing GraphQL at /graphql, the REST routes and
the job WebSocket. Stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveOpts.addr != "" {
			cfg.Server.Addr = serveOpts.addr
		}
		if serveOpts.storageRoot != "" {
			cfg.StorageRoot = serveOpts.storageRoot
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveOpts.addr, "addr", "a", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveOpts.storageRoot, "storage-root", "", "Directory for the cache and saved reports (overrides config)")
}

func runServe(parent context.Context, cfg *app.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg, "a11yscan")

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	if err := application.Start(); err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr:        cfg.Server.Addr,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		Logger:            logger.With(logging.Field{Key: "component", Value: "server"}),
	}, application.Orch)
	if err != nil {
		return err
	}
	httpServer := srv.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server stopped", logging.Err(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Err(err))
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}
