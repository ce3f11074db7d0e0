package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amishk599/jobintel/internal/classify"
	"github.com/amishk599/jobintel/internal/producer"
	"github.com/spf13/cobra"
)

var (
	checkAll   bool
	checkLimit int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch once, print classified postings, exit",
	Long:  "One-shot preview: fetches one source per type (or all with --all), filters, normalizes and classifies, then prints the result. Nothing is published or stored.",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "check every enabled source, not one per type")
	checkCmd.Flags().IntVar(&checkLimit, "limit", 10, "postings to print per source")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	logger.Info("check mode: nothing will be published")

	sources := buildSources(cfg, logger)
	if len(sources) == 0 {
		logger.Error("no sources to fetch")
		os.Exit(1)
	}

	types := make(map[string]string, len(cfg.Sources))
	for _, s := range cfg.Sources {
		types[s.Name] = s.Type
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seen := make(map[string]bool)
	for _, src := range sources {
		typ := types[src.Name]
		if !checkAll && seen[typ] {
			logger.Info("skipping (type already checked)", "source", src.Name, "type", typ)
			continue
		}
		seen[typ] = true

		records, rep, err := producer.Preview(ctx, src, logger)
		if err != nil {
			logger.Error("check failed", "source", src.Name, "error", err)
			continue
		}

		fmt.Printf("\n%s (%s): fetched %d, filtered %d, rejected %d, normalized %d\n",
			src.Name, typ, rep.Fetched, rep.Filtered, rep.Rejected, rep.Normalized)
		for i, r := range records {
			if i == checkLimit {
				fmt.Printf("  ... %d more\n", len(records)-checkLimit)
				break
			}
			r = classify.Apply(r)
			fmt.Printf("  %-8s %-8s %-10s %s @ %s\n", r.WorkMode, r.ExperienceLevel, r.RoleCategory, r.Title, r.Company)
		}
	}

	logger.Info("check complete")
	return nil
}
