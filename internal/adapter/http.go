package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/amishk599/jobintel/internal/model"
)

// maxBodyBytes caps how much of a board response is read.
const maxBodyBytes = 32 << 20

// get issues a GET and returns the body of a 200 response. Any other status
// becomes a model.HTTPError so the retry decorator can classify it.
func get(ctx context.Context, client *http.Client, url string, header http.Header, label string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: model.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s: unexpected status %d", label, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", label, err)
	}
	return body, nil
}
