package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amishk599/jobintel/internal/api"
	"github.com/amishk599/jobintel/internal/config"
	"github.com/amishk599/jobintel/internal/ingest"
	"github.com/amishk599/jobintel/internal/query"
	"github.com/amishk599/jobintel/internal/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ingestion and analytics HTTP API",
	Long:  "Starts the HTTP API on api.addr; blocks until SIGINT/SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := openStore(ctx, cfg, logger)
	defer s.Close()

	if err := serve(ctx, cfg, s, logger); err != nil {
		logger.Error("api server error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

// serve blocks until ctx is done or the listener fails.
func serve(ctx context.Context, cfg *config.Config, s store.Store, logger *slog.Logger) error {
	srv := api.New(ingest.NewService(s, logger), query.NewService(s), s, logger)

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(cfg.API.Addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down api", "timeout", shutdownTimeout.String())
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		return err
	}
	return <-errc
}
