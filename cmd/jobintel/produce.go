package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/jobintel/internal/scheduler"
	"github.com/spf13/cobra"
)

var produceOnce bool

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Fetch sources and publish batches to the queue",
	Long:  "Runs the producer on the configured cron schedule until SIGINT/SIGTERM. With --once, runs a single pass and exits.",
	RunE:  runProduce,
}

func init() {
	produceCmd.Flags().BoolVar(&produceOnce, "once", false, "run one producer pass and exit")
	rootCmd.AddCommand(produceCmd)
}

func runProduce(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q := mustQueue(ctx, cfg, logger)
	defer q.Close()

	p := buildProducer(cfg, q, logger)

	if produceOnce {
		rep, err := p.Run(ctx)
		logger.Info("producer pass complete",
			"fetched", rep.Fetched,
			"published", rep.Published,
			"failed", rep.Failed,
		)
		if err != nil {
			logger.Error("producer pass had failures", "error", err)
			os.Exit(1)
		}
		return nil
	}

	sched, err := scheduler.New(cfg.Producer.Schedule, func(ctx context.Context) error {
		_, err := p.Run(ctx)
		return err
	}, logger)
	if err != nil {
		logger.Error("invalid producer schedule", "schedule", cfg.Producer.Schedule, "error", err)
		os.Exit(1)
	}

	logger.Info("producer scheduled", "schedule", cfg.Producer.Schedule)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
