package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobintel/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts dead-letter alerts to a Slack channel via Incoming
// Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewSlackNotifier returns a notifier that posts to webhookURL.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// NotifyDeadLetter sends one Block Kit message. A 429 is retried once after
// the advertised Retry-After (at least one second).
func (s *SlackNotifier) NotifyDeadLetter(ctx context.Context, dl model.DeadLetter) error {
	body, err := json.Marshal(buildPayload(dl))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return err
	}

	retried := false
	if status == http.StatusTooManyRequests {
		wait := max(retryAfter, time.Second)
		s.logger.Warn("slack rate limited, retrying", "retry_after", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return fmt.Errorf("slack retry cancelled: %w", err)
		}
		if status, _, err = s.post(ctx, body); err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		retried = true
	}

	if status != http.StatusOK {
		return &model.HTTPError{StatusCode: status, Err: fmt.Errorf("slack webhook returned %d", status)}
	}
	s.logger.Info("slack alert sent", "batch_id", dl.ID, "retried", retried)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, model.ParseRetryAfter(resp.Header.Get("Retry-After")), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendTestAlert pushes a sample dead letter through n to verify the
// integration.
func SendTestAlert(ctx context.Context, n model.Notifier) error {
	now := time.Now().UTC()
	return n.NotifyDeadLetter(ctx, model.DeadLetter{
		ID: "test-0001",
		Batch: model.Batch{
			ID:        "test-0001",
			Source:    "test",
			FetchedAt: now,
			Jobs: []model.JobRecord{
				{Source: "test", Title: "Backend Engineer", URL: "https://example.com/jobs/1"},
			},
		},
		Attempts:  3,
		LastError: "test notification, integration verified",
		FailedAt:  now,
	})
}

// maxSampleTitles caps how many job titles are listed in an alert.
const maxSampleTitles = 3

func buildPayload(dl model.DeadLetter) slackPayload {
	failed := "unknown"
	if !dl.FailedAt.IsZero() {
		failed = dl.FailedAt.UTC().Format(time.RFC1123)
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "Dead-lettered batch from " + dl.Batch.Source},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Batch:*\n`" + dl.ID + "`"},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Jobs:*\n%d", len(dl.Batch.Jobs))},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Attempts:*\n%d", dl.Attempts)},
				{Type: "mrkdwn", Text: "*Failed:*\n" + failed},
			},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Last error:*\n```" + dl.LastError + "```"},
		},
	}

	if titles := sampleTitles(dl.Batch.Jobs); titles != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: titles},
		})
	}

	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}

func sampleTitles(jobs []model.JobRecord) string {
	var b strings.Builder
	for i, j := range jobs {
		if i == maxSampleTitles {
			fmt.Fprintf(&b, "\n+%d more", len(jobs)-maxSampleTitles)
			break
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• " + j.Title)
	}
	return b.String()
}
