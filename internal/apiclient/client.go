// Package apiclient talks to the ingestion API over HTTP. Consumers in
// remote mode use it in place of an in-process ingest.Service.
package apiclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/amishk599/jobintel/internal/model"
)

// Client is a thin resty wrapper around the /ingest endpoints.
type Client struct {
	http *resty.Client
}

type ingestRequest struct {
	Jobs []model.JobRecord `json:"jobs"`
}

type errorBody struct {
	Error string `json:"error"`
}

// New creates a client for the API at baseURL. A zero timeout means 30s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "jobintel-consumer/1.0")
	return &Client{http: c}
}

// Ingest posts jobs as one batch and returns the merge counts.
func (c *Client) Ingest(ctx context.Context, jobs []model.JobRecord) (model.IngestResult, error) {
	var out model.IngestResult
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(ingestRequest{Jobs: jobs}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/ingest/jobs")
	if err != nil {
		return model.IngestResult{}, fmt.Errorf("ingest request: %w", err)
	}
	if resp.IsError() {
		return model.IngestResult{}, statusError(resp, "ingest", apiErr.Error)
	}
	return out, nil
}

// Health succeeds when the API and its store answer.
func (c *Client) Health(ctx context.Context) error {
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&apiErr).
		Get("/ingest/health")
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	if resp.IsError() {
		return statusError(resp, "health", apiErr.Error)
	}
	return nil
}

func statusError(resp *resty.Response, op, msg string) error {
	if msg == "" {
		msg = resp.Status()
	}
	return &model.HTTPError{
		StatusCode: resp.StatusCode(),
		RetryAfter: model.ParseRetryAfter(resp.Header().Get("Retry-After")),
		Err:        fmt.Errorf("%s: %s", op, msg),
	}
}
