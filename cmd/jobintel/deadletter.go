package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/amishk599/jobintel/internal/deadletter"
	"github.com/amishk599/jobintel/internal/queue"
	"github.com/spf13/cobra"
)

var deadLetterLimit int

var deadLetterCmd = &cobra.Command{
	Use:     "deadletter",
	Aliases: []string{"dlq"},
	Short:   "Dead-letter subcommands",
}

var deadLetterListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print dead-lettered batches",
	RunE:  runDeadLetterList,
}

var deadLetterRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Move a dead-lettered batch back to the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeadLetterRequeue,
}

var deadLetterInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Browse dead-lettered batches interactively (TUI)",
	RunE:  runDeadLetterInspect,
}

func init() {
	deadLetterCmd.PersistentFlags().IntVar(&deadLetterLimit, "limit", 100, "maximum dead letters to load")
	deadLetterCmd.AddCommand(deadLetterListCmd, deadLetterRequeueCmd, deadLetterInspectCmd)
	rootCmd.AddCommand(deadLetterCmd)
}

func runDeadLetterList(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	q := mustQueue(ctx, cfg, logger)
	defer q.Close()

	letters, err := q.DeadLetters(ctx, deadLetterLimit)
	if err != nil {
		logger.Error("failed to list dead letters", "error", err)
		os.Exit(1)
	}
	if len(letters) == 0 {
		fmt.Println("No dead-lettered batches.")
		return nil
	}

	fmt.Printf("%-36s %-15s %5s %8s  %-20s %s\n", "ID", "Source", "Jobs", "Attempts", "Failed", "Last error")
	fmt.Println(strings.Repeat("─", 110))
	for _, dl := range letters {
		fmt.Printf("%-36s %-15s %5d %8d  %-20s %s\n",
			dl.ID, dl.Batch.Source, len(dl.Batch.Jobs), dl.Attempts,
			dl.FailedAt.Local().Format("2006-01-02 15:04:05"), dl.LastError)
	}
	fmt.Printf("\nTotal: %d dead-lettered batches\n", len(letters))
	return nil
}

func runDeadLetterRequeue(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	q := mustQueue(ctx, cfg, logger)
	defer q.Close()

	id := args[0]
	if err := q.Requeue(ctx, id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			logger.Error("no dead letter with that id", "id", id)
		} else {
			logger.Error("requeue failed", "id", id, "error", err)
		}
		os.Exit(1)
	}
	logger.Info("batch requeued", "id", id)
	return nil
}

func runDeadLetterInspect(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	// Log output before the alt-screen starts corrupts the display.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	q, err := openQueue(context.Background(), cfg, silentLogger)
	if err != nil {
		logger.Error("failed to open queue", "backend", cfg.Queue.Backend, "error", err)
		os.Exit(1)
	}
	defer q.Close()

	if err := deadletter.Run(q, deadLetterLimit); err != nil {
		logger.Error("inspector error", "error", err)
		os.Exit(1)
	}
	return nil
}
