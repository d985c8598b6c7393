package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPRequest is the payload for the generic HTTP replay handler: enough
// to rebuild the original mutating call. The idempotency key travels with
// the payload so a replay the server already saw is harmless.
type HTTPRequest struct {
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           json.RawMessage   `json:"body,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// NewHTTPHandler returns a Handler that replays stored HTTP requests.
// Relative URLs are resolved against baseURL. 4xx responses (except 408
// and 429) are permanent failures; 5xx and transport errors are transient.
func NewHTTPHandler(client *http.Client, baseURL string) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(baseURL, "/")

	return func(ctx context.Context, data json.RawMessage) error {
		var r HTTPRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return Permanent(fmt.Errorf("decode http payload: %w", err))
		}
		if r.Method == "" || r.URL == "" {
			return Permanent(fmt.Errorf("http payload missing method or url"))
		}

		url := r.URL
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = base + "/" + strings.TrimLeft(url, "/")
		}

		var body io.Reader
		if len(r.Body) > 0 {
			body = bytes.NewReader(r.Body)
		}

		req, err := http.NewRequestWithContext(ctx, r.Method, url, body)
		if err != nil {
			return Permanent(fmt.Errorf("build request: %w", err))
		}
		if len(r.Body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range r.Headers {
			req.Header.Set(k, v)
		}
		if r.IdempotencyKey != "" {
			req.Header.Set("Idempotency-Key", r.IdempotencyKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("replay %s %s: %w", r.Method, url, err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode < 400:
			return nil
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("replay %s %s: status %d", r.Method, url, resp.StatusCode)
		case resp.StatusCode < 500:
			return Permanent(fmt.Errorf("replay %s %s: status %d", r.Method, url, resp.StatusCode))
		default:
			return fmt.Errorf("replay %s %s: status %d", r.Method, url, resp.StatusCode)
		}
	}
}
