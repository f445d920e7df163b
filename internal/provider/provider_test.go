// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the streaming completion transport.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// sseServer returns an httptest server that writes the given SSE payload.
func sseServer(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, payload)
	}))
}

// collectingHandler records every event routed to it.
type collectingHandler struct {
	chunks []string
	usage  *Usage
	done   bool
	err    error
}

func (c *collectingHandler) handler() Handler {
	return Handler{
		OnChunk: func(text string) { c.chunks = append(c.chunks, text) },
		OnDone:  func(u *Usage) { c.done = true; c.usage = u },
		OnError: func(err error) { c.err = err },
	}
}

func chunkLine(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n\n"
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestClient_StreamChat(t *testing.T) {
	payload := chunkLine("Hi") +
		chunkLine(" there") +
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":3,"total_tokens":5}}` + "\n\n" +
		"data: [DONE]\n\n"

	srv := sseServer(t, payload)
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	var got collectingHandler
	client.StreamChat(context.Background(), Request{Model: "test"}, got.handler())

	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if !got.done {
		t.Fatal("OnDone never invoked")
	}
	if joined := strings.Join(got.chunks, ""); joined != "Hi there" {
		t.Errorf("chunks = %q, want 'Hi there'", joined)
	}
	if got.usage == nil || got.usage.TotalTokens != 5 {
		t.Errorf("usage = %+v, want total 5", got.usage)
	}
}

func TestClient_StreamChatSkipsMalformedFrames(t *testing.T) {
	payload := chunkLine("ok") +
		"data: {not json at all\n\n" +
		chunkLine("fine") +
		"data: [DONE]\n\n"

	srv := sseServer(t, payload)
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	var got collectingHandler
	client.StreamChat(context.Background(), Request{Model: "test"}, got.handler())

	if got.err != nil {
		t.Fatalf("malformed frame should not be fatal, got %v", got.err)
	}
	if joined := strings.Join(got.chunks, ""); joined != "okfine" {
		t.Errorf("chunks = %q, want 'okfine'", joined)
	}
}

func TestClient_StreamChatEOFWithoutDone(t *testing.T) {
	// Stream that just ends without a [DONE] marker still terminates cleanly.
	srv := sseServer(t, chunkLine("partial"))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	var got collectingHandler
	client.StreamChat(context.Background(), Request{Model: "test"}, got.handler())

	if !got.done {
		t.Error("expected OnDone on EOF")
	}
	if got.err != nil {
		t.Errorf("unexpected error: %v", got.err)
	}
}

func TestClient_StreamChatCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := sseServer(t, chunkLine("never"))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	var got collectingHandler
	client.StreamChat(ctx, Request{Model: "test"}, got.handler())

	if got.err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !IsCancellation(got.err) {
		t.Errorf("error %v should classify as cancellation", got.err)
	}
}

func TestClient_StreamChatErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrAuthFailed},
		{"payment required", http.StatusPaymentRequired, `{"error":{"message":"no credits"}}`, ErrInsufficientCredits},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrRateLimited},
		{"model missing", http.StatusNotFound, `{"error":{"message":"no such model"}}`, ErrModelNotFound},
		{"server error", http.StatusInternalServerError, `oops`, ErrUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			client := NewClient(Config{BaseURL: srv.URL})
			var got collectingHandler
			client.StreamChat(context.Background(), Request{Model: "test"}, got.handler())

			if got.err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(got.err, tc.want) {
				t.Errorf("error = %v, want %v", got.err, tc.want)
			}
			if got.done {
				t.Error("OnDone must not fire after OnError")
			}
		})
	}
}

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth", fmt.Errorf("wrap: %w", ErrAuthFailed), KindAuth},
		{"quota", ErrInsufficientCredits, KindQuota},
		{"rate limit", ErrRateLimited, KindRateLimit},
		{"network", ErrUnavailable, KindNetwork},
		{"timeout", context.DeadlineExceeded, KindNetwork},
		{"cancelled", context.Canceled, KindCancelled},
		{"generic", errors.New("weird"), KindGeneric},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestHumanize_CancellationIsSilent(t *testing.T) {
	if msg := Humanize(context.Canceled); msg != "" {
		t.Errorf("Humanize(Canceled) = %q, want empty", msg)
	}
}

func TestHumanize_NilError(t *testing.T) {
	if msg := Humanize(nil); msg != "" {
		t.Errorf("Humanize(nil) = %q, want empty", msg)
	}
}

// =============================================================================
// MODEL LISTING TESTS
// =============================================================================

func TestClient_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"m1","name":"Model One","context_length":8192,"pricing":{"prompt":"0.001","completion":"0.002"}}]}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	models := client.ListModels(context.Background())

	if len(models) != 1 {
		t.Fatalf("got %d models, want 1", len(models))
	}
	if models[0].ID != "m1" || models[0].ContextLength != 8192 {
		t.Errorf("model = %+v", models[0])
	}
}

func TestClient_ListModelsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	models := client.ListModels(context.Background())

	if len(models) == 0 {
		t.Fatal("fallback list should not be empty")
	}
	want := FallbackModels()
	if models[0].ID != want[0].ID {
		t.Errorf("fallback[0] = %q, want %q", models[0].ID, want[0].ID)
	}
}
