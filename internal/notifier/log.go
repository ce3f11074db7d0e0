package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobintel/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes dead-letter alerts to the given logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each dead letter via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyDeadLetter logs the batch id, source, size and last error. It never
// fails.
func (n *LogNotifier) NotifyDeadLetter(_ context.Context, dl model.DeadLetter) error {
	n.logger.Error("batch dead-lettered",
		"batch_id", dl.ID,
		"source", dl.Batch.Source,
		"jobs", len(dl.Batch.Jobs),
		"attempts", dl.Attempts,
		"last_error", dl.LastError,
		"failed_at", dl.FailedAt,
	)
	return nil
}
