package adapter

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/amishk599/jobintel/internal/model"
)

func TestGet_NonOKBecomesHTTPError(t *testing.T) {
	srv := statusServer(http.StatusTooManyRequests, map[string]string{"Retry-After": "7"})
	defer srv.Close()

	_, err := get(context.Background(), serverClient(srv), "http://boards.example/x", nil, "test")
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 429 || httpErr.RetryAfter != 7*time.Second {
		t.Errorf("got status %d retry-after %v", httpErr.StatusCode, httpErr.RetryAfter)
	}
}
