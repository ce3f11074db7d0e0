package notifier

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLogNotifier_NotifyDeadLetter(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := n.NotifyDeadLetter(context.Background(), sampleDeadLetter("Engineer", "Developer")); err != nil {
		t.Errorf("NotifyDeadLetter = %v, want nil", err)
	}
	out := buf.String()
	for _, want := range []string{"batch_id=b-123", "source=remoteok", "jobs=2", "attempts=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
