package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func mustPayload(t *testing.T, r HTTPRequest) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	return data
}

func TestHTTPHandlerReplaysRequest(t *testing.T) {
	type seen struct {
		method      string
		path        string
		body        string
		contentType string
		idemKey     string
	}
	var mu sync.Mutex
	var got seen

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		mu.Lock()
		got = seen{
			method:      r.Method,
			path:        r.URL.Path,
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			idemKey:     r.Header.Get("Idempotency-Key"),
		}
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := NewHTTPHandler(srv.Client(), srv.URL)
	payload := mustPayload(t, HTTPRequest{
		Method:         http.MethodPost,
		URL:            "/api/messages",
		Body:           json.RawMessage(`{"text":"hello"}`),
		IdempotencyKey: "msg-123",
	})

	if err := h(context.Background(), payload); err != nil {
		t.Fatalf("Expected replay to succeed, got: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.method != http.MethodPost || got.path != "/api/messages" {
		t.Errorf("Unexpected request: %s %s", got.method, got.path)
	}
	if got.body != `{"text":"hello"}` {
		t.Errorf("Unexpected body: %s", got.body)
	}
	if got.contentType != "application/json" {
		t.Errorf("Expected JSON content type, got %q", got.contentType)
	}
	if got.idemKey != "msg-123" {
		t.Errorf("Expected idempotency key header, got %q", got.idemKey)
	}

	t.Log("✓ The handler rebuilds and sends the stored request")
}

func TestHTTPHandlerStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		wantErr   bool
		permanent bool
	}{
		{http.StatusOK, false, false},
		{http.StatusNoContent, false, false},
		{http.StatusRequestTimeout, true, false},
		{http.StatusTooManyRequests, true, false},
		{http.StatusBadRequest, true, true},
		{http.StatusNotFound, true, true},
		{http.StatusConflict, true, true},
		{http.StatusInternalServerError, true, false},
		{http.StatusBadGateway, true, false},
	}

	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		h := NewHTTPHandler(srv.Client(), srv.URL)
		err := h(context.Background(), mustPayload(t, HTTPRequest{
			Method: http.MethodPost,
			URL:    "/op",
		}))
		srv.Close()

		if tc.wantErr && err == nil {
			t.Errorf("Status %d: expected an error", tc.status)
			continue
		}
		if !tc.wantErr && err != nil {
			t.Errorf("Status %d: expected success, got %v", tc.status, err)
			continue
		}
		if err != nil && IsPermanent(err) != tc.permanent {
			t.Errorf("Status %d: expected permanent=%v, got %v (%v)", tc.status, tc.permanent, IsPermanent(err), err)
		}
	}

	t.Log("✓ 4xx drops, 408/429/5xx retries, 2xx succeeds")
}

func TestHTTPHandlerRejectsBadPayload(t *testing.T) {
	h := NewHTTPHandler(nil, "http://localhost")

	err := h(context.Background(), json.RawMessage(`{not json`))
	if err == nil || !IsPermanent(err) {
		t.Errorf("Expected permanent error for undecodable payload, got %v", err)
	}

	err = h(context.Background(), mustPayload(t, HTTPRequest{URL: "/op"}))
	if err == nil || !IsPermanent(err) {
		t.Errorf("Expected permanent error for missing method, got %v", err)
	}

	t.Log("✓ Malformed payloads are dropped, not retried")
}

func TestHTTPHandlerResolvesRelativeURLs(t *testing.T) {
	var mu sync.Mutex
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		mu.Unlock()
	}))
	defer srv.Close()

	h := NewHTTPHandler(srv.Client(), srv.URL+"/")
	if err := h(context.Background(), mustPayload(t, HTTPRequest{
		Method: http.MethodDelete,
		URL:    "api/items/7",
	})); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/api/items/7" {
		t.Errorf("Expected /api/items/7, got %s", path)
	}

	t.Log("✓ Relative URLs resolve against the base URL")
}
