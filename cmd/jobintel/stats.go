package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/amishk599/jobintel/internal/model"
	"github.com/amishk599/jobintel/internal/query"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var statsDays int

var (
	statsTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statsLabel = lipgloss.NewStyle().Width(22)
	statsCount = lipgloss.NewStyle().Width(8).Align(lipgloss.Right).Foreground(lipgloss.Color("10"))
	statsBar   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statsBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
)

const statsBarWidth = 30

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue and job analytics",
	Long:  "Prints queue counts, the per-source summary, the classification breakdown and recent daily volume.",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "days of daily volume to show")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := openStore(ctx, cfg, logger)
	defer s.Close()
	svc := query.NewService(s)

	summary, err := svc.Summary(ctx)
	if err != nil {
		logger.Error("summary failed", "error", err)
		os.Exit(1)
	}
	breakdown, err := svc.Breakdown(ctx, query.Filter{})
	if err != nil {
		logger.Error("breakdown failed", "error", err)
		os.Exit(1)
	}
	days, err := svc.Timeseries(ctx, query.ClampDays(&statsDays))
	if err != nil {
		logger.Error("timeseries failed", "error", err)
		os.Exit(1)
	}

	var sections []string
	if q, err := openQueue(ctx, cfg, logger); err != nil {
		logger.Warn("queue unavailable, skipping queue stats", "error", err)
	} else {
		qs, err := q.Stats(ctx)
		q.Close()
		if err != nil {
			logger.Warn("queue stats failed", "error", err)
		} else {
			sections = append(sections, renderCounts("Queue", int(qs.Waiting+qs.Delayed+qs.Active+qs.Dead), []model.FacetCount{
				{Name: "waiting", Count: int(qs.Waiting)},
				{Name: "delayed", Count: int(qs.Delayed)},
				{Name: "active", Count: int(qs.Active)},
				{Name: "dead", Count: int(qs.Dead)},
			}))
		}
	}

	bySource := make([]model.FacetCount, 0, len(summary.BySource))
	for _, sc := range summary.BySource {
		bySource = append(bySource, model.FacetCount{Name: sc.Source, Count: sc.Count})
	}
	daily := make([]model.FacetCount, 0, len(days))
	for _, d := range days {
		daily = append(daily, model.FacetCount{Name: d.Day, Count: d.Count})
	}

	sections = append(sections,
		renderCounts("Jobs by source", summary.TotalJobs, bySource),
		renderCounts("Role category", breakdown.TotalJobs, breakdown.ByRoleCategory),
		renderCounts("Work mode", breakdown.TotalJobs, breakdown.ByWorkMode),
		renderCounts("Experience level", breakdown.TotalJobs, breakdown.ByExperienceLevel),
		renderCounts(fmt.Sprintf("Last %d days", query.ClampDays(&statsDays)), summary.TotalJobs, daily),
	)

	fmt.Println(statsTitle.Render(fmt.Sprintf("jobintel: %d jobs", summary.TotalJobs)))
	for _, sec := range sections {
		fmt.Println(statsBox.Render(sec))
	}
	return nil
}

// renderCounts draws one labelled bar per row, scaled to total.
func renderCounts(title string, total int, rows []model.FacetCount) string {
	var b strings.Builder
	b.WriteString(statsTitle.Render(title))
	if len(rows) == 0 {
		b.WriteString("\n")
		b.WriteString(statsBar.Render("no data"))
		return b.String()
	}
	for _, r := range rows {
		n := 0
		if total > 0 {
			n = r.Count * statsBarWidth / total
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			statsLabel.Render(r.Name),
			statsCount.Render(fmt.Sprintf("%d", r.Count)),
			" ",
			statsBar.Render(strings.Repeat("█", n)),
		))
	}
	return b.String()
}
