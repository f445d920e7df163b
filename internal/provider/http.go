// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the streaming completion transport.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// maxResponseSize limits non-streaming response bodies (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// defaultRequestTimeout applies to non-streaming requests. Streaming
	// requests rely on context cancellation instead.
	defaultRequestTimeout = 30 * time.Second
)

// =============================================================================
// HTTP CLIENT
// =============================================================================

// Config holds HTTP client configuration.
type Config struct {
	// BaseURL is the completion API base URL (e.g. an OpenRouter-compatible
	// endpoint or a local Ollama OpenAI-compat endpoint).
	BaseURL string

	// APIKey authenticates requests. Empty for local providers.
	APIKey string

	// RequestsPerSecond caps outbound request rate (0 = default of 2/s).
	RequestsPerSecond float64

	// RequestTimeout bounds non-streaming requests (0 = 30s default).
	// Streaming requests end via context cancellation instead.
	RequestTimeout time.Duration
}

// Client is the HTTP implementation of Provider for OpenAI-compatible
// chat completion APIs.
type Client struct {
	baseURL string
	apiKey  string

	// httpClient handles non-streaming requests with a timeout.
	httpClient *http.Client

	// streamClient has no timeout; streams end via context cancellation.
	streamClient *http.Client

	limiter *rate.Limiter
	logger  *log.Logger
}

// NewClient creates a new completion API client.
func NewClient(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		limiter:      rate.NewLimiter(rate.Limit(rps), 4),
		logger:       log.New(log.Writer(), "provider: ", log.LstdFlags),
	}
}

// setHeaders applies common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// wireRequest is the request body for the chat completions endpoint.
type wireRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Stream           bool          `json:"stream"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
}

// StreamChat performs a streaming chat completion request, invoking the
// handler's OnChunk for each delta and then exactly one of OnDone or OnError.
func (c *Client) StreamChat(ctx context.Context, req Request, h Handler) {
	if err := c.limiter.Wait(ctx); err != nil {
		h.OnError(err)
		return
	}

	body, err := json.Marshal(wireRequest{
		Model:            req.Model,
		Messages:         req.Messages,
		Stream:           true,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	})
	if err != nil {
		h.OnError(fmt.Errorf("marshal request: %w", err))
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		h.OnError(fmt.Errorf("create request: %w", err))
		return
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.OnError(context.Canceled)
			return
		}
		c.logger.Printf("stream request failed: %v", err)
		h.OnError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		h.OnError(c.handleErrorResponse(resp.StatusCode, respBody))
		return
	}

	c.processStream(ctx, resp.Body, h)
}

// processStream reads the SSE stream and routes events to the handler.
// Malformed frames are logged and skipped, never fatal to the session.
func (c *Client) processStream(ctx context.Context, body io.Reader, h Handler) {
	reader := newSSEReader(body)
	var usage *Usage

	for {
		select {
		case <-ctx.Done():
			h.OnError(ctx.Err())
			return
		default:
		}

		data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				h.OnDone(usage)
				return
			}
			if errors.Is(err, context.Canceled) {
				h.OnError(context.Canceled)
				return
			}
			h.OnError(fmt.Errorf("%w: %v", ErrUnavailable, err))
			return
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			h.OnDone(usage)
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			c.logger.Printf("skipping malformed stream frame: %v", err)
			continue
		}

		if chunk.Usage != nil {
			usage = chunk.Usage
		}

		if content := chunk.content(); content != "" {
			h.OnChunk(content)
		}

		if chunk.finished() {
			// Drain one more event in case usage trails the finish reason,
			// then terminate.
			if trailing, err := reader.ReadEvent(); err == nil && !bytes.Equal(trailing, []byte("[DONE]")) {
				var tail streamChunk
				if err := json.Unmarshal(trailing, &tail); err == nil && tail.Usage != nil {
					usage = tail.Usage
				}
			}
			h.OnDone(usage)
			return
		}
	}
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// apiErrorResponse is the wire structure of an API error body.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// handleErrorResponse converts HTTP error responses to classified errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		switch statusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuthFailed, apiErr.Error.Message)
		case http.StatusPaymentRequired:
			return fmt.Errorf("%w: %s", ErrInsufficientCredits, apiErr.Error.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrModelNotFound, apiErr.Error.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Error.Message)
		default:
			if statusCode >= 500 {
				return fmt.Errorf("%w: %s", ErrUnavailable, apiErr.Error.Message)
			}
			return &APIError{Code: apiErr.Error.Code, Message: apiErr.Error.Message, Status: statusCode}
		}
	}

	// Fallback for unparseable error bodies.
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrAuthFailed
	case http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if statusCode >= 500 {
			return ErrUnavailable
		}
		return &APIError{Message: string(body), Status: statusCode}
	}
}

// =============================================================================
// MODEL LISTING
// =============================================================================

// ListModels retrieves the available models. When the endpoint is
// unreachable or returns garbage, the compiled fallback list is returned so
// callers always have something to offer.
func (c *Client) ListModels(ctx context.Context) []ModelInfo {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return FallbackModels()
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("model listing unavailable, using fallback: %v", err)
		return FallbackModels()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Printf("model listing returned %d, using fallback", resp.StatusCode)
		return FallbackModels()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return FallbackModels()
	}

	var listing modelsResponse
	if err := json.Unmarshal(body, &listing); err != nil || len(listing.Data) == 0 {
		c.logger.Printf("model listing unparseable, using fallback")
		return FallbackModels()
	}

	models := make([]ModelInfo, 0, len(listing.Data))
	for _, m := range listing.Data {
		info := ModelInfo{ID: m.ID, Name: m.Name, ContextLength: m.ContextLength}
		if m.Pricing != nil {
			info.Pricing = *m.Pricing
		}
		models = append(models, info)
	}
	return models
}
