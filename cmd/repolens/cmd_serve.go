package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and WebSocket API",
	Long: `Start the API server on server.addr.

Endpoints:
  POST /v1/answer          answer a question or analysis
  POST /v1/explain         preview provider selection
  GET  /v1/answer/stream   WebSocket answer with progress events
  GET  /v1/providers       provider catalogue
  GET  /v1/reports[/{id}]  archived answers`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Logger.Sync()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Start() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	if err := <-errCh; err != nil {
		return err
	}
	a.Logger.Info("server exiting")
	return nil
}
