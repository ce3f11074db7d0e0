// Package scheduler runs a job once at start and then on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron loop around one run function.
type Scheduler struct {
	spec   string
	sched  cron.Schedule
	run    func(ctx context.Context) error
	logger *slog.Logger
}

// New validates spec (standard five-field cron or a descriptor such as
// "@every 6h") and returns a scheduler for run.
func New(spec string, run func(ctx context.Context) error, logger *slog.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, sched: sched, run: run, logger: logger}, nil
}

// Run executes one immediate cycle, then one per schedule tick. A tick that
// fires while the previous cycle is still running is skipped. It returns nil
// once ctx is cancelled and the in-flight cycle has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "schedule", s.spec)

	s.runOnce(ctx)
	if ctx.Err() != nil {
		return nil
	}

	l := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	c.Schedule(s.sched, cron.FuncJob(func() { s.runOnce(ctx) }))
	c.Start()
	s.logger.Info("next run scheduled", "at", s.sched.Next(time.Now()))

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.run(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err)
	}
}

// cronLogger routes cron's own messages through slog. Info is demoted to
// Debug because cron logs every wake-up.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
