// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the streaming completion transport.
package provider

import "context"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatMessage represents a single message in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`    // "user", "assistant", or "system"
	Content string `json:"content"` // The message content
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// Request describes one streaming generation request: the full prior message
// history plus the conversation's settings snapshot.
type Request struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
}

// =============================================================================
// STREAM HANDLER
// =============================================================================

// Usage holds token accounting from the terminal event of a stream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Handler receives stream events. OnChunk is invoked zero or more times in
// delivery order, then exactly one of OnDone or OnError. OnDone's usage is nil
// when the provider reported none.
type Handler struct {
	OnChunk func(text string)
	OnDone  func(usage *Usage)
	OnError func(err error)
}

// =============================================================================
// PROVIDER INTERFACE
// =============================================================================

// Provider is the transport boundary for streaming completions.
//
// StreamChat blocks until the stream terminates. Cancellation is cooperative
// through ctx; a cancelled stream terminates with OnError(context.Canceled).
type Provider interface {
	StreamChat(ctx context.Context, req Request, h Handler)
	ListModels(ctx context.Context) []ModelInfo
}
