package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Classify queued batches and ingest them",
	Long:  "Starts the consumer workers; blocks until SIGINT/SIGTERM. In remote ingest mode batches are posted to a running `serve`.",
	RunE:  runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q := mustQueue(ctx, cfg, logger)
	defer q.Close()

	ingester, closeIngester := buildIngester(ctx, cfg, logger)
	defer closeIngester()

	c := buildConsumer(q, ingester, cfg, logger)
	logger.Info("consumer started",
		"concurrency", cfg.Consumer.Concurrency,
		"ingest_mode", cfg.Consumer.IngestMode,
	)
	if err := c.Run(ctx); err != nil {
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
