package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/jobintel/internal/ingest"
	"github.com/amishk599/jobintel/internal/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run producer, consumer and API in one process",
	Long:  "Runs the scheduled producer, the consumer workers and the HTTP API against one store and queue; blocks until SIGINT/SIGTERM.",
	RunE:  runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAll(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := openStore(ctx, cfg, logger)
	defer s.Close()

	q := mustQueue(ctx, cfg, logger)
	defer q.Close()

	p := buildProducer(cfg, q, logger)
	sched, err := scheduler.New(cfg.Producer.Schedule, func(ctx context.Context) error {
		_, err := p.Run(ctx)
		return err
	}, logger)
	if err != nil {
		logger.Error("invalid producer schedule", "schedule", cfg.Producer.Schedule, "error", err)
		os.Exit(1)
	}

	// The consumer always ingests in-process here.
	c := buildConsumer(q, ingest.NewService(s, logger), cfg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx, cfg, s, logger) })
	g.Go(func() error { return c.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("pipeline error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
