// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultTitle is the placeholder title given to new conversations. The title
// is auto-derived from the first user message only while it still equals this
// placeholder; after that it is never auto-rewritten.
const DefaultTitle = "New Conversation"

// TitleMaxLen is the maximum derived title length in runes before truncation.
const TitleMaxLen = 50

// MaxMessages is the maximum number of messages kept per conversation.
// When exceeded, old messages are pruned to prevent unbounded memory growth.
const MaxMessages = 1000

// =============================================================================
// CHAT SETTINGS
// =============================================================================

// ChatSettings is a per-conversation generation settings snapshot. It is
// captured from the app defaults at creation time and independently editable
// afterwards.
type ChatSettings struct {
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	TopP             float64 `json:"top_p,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"`
}

// =============================================================================
// METADATA
// =============================================================================

// Metadata holds running accounting for a conversation. It is best-effort
// during a streaming burst and exact once the store is quiescent.
type Metadata struct {
	MessageCount int `json:"message_count"`
	TotalTokens  int `json:"total_tokens"`
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages, in chronological insertion order. Never reordered.
	Messages []*Message `json:"messages"`

	// Model configuration
	Model    string       `json:"model"`
	Settings ChatSettings `json:"settings"`

	// Accounting
	Metadata Metadata `json:"metadata"`
}

// NewConversation creates a new conversation with a generated ID and the
// default placeholder title.
func NewConversation(model string, settings ChatSettings) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateConversationID(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		Model:     model,
		Settings:  settings,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message, bumps UpdatedAt and the message count, and
// applies the title derivation rule.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.Metadata.MessageCount = len(c.Messages)
	c.Touch()
	c.deriveTitle(msg)
	c.pruneOldMessages()
}

// MessageByID returns a message by its ID, or nil if absent.
func (c *Conversation) MessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// RemoveMessage removes a message by ID and decrements the message count.
// Returns false if no message with that ID exists.
func (c *Conversation) RemoveMessage(id string) bool {
	for i, msg := range c.Messages {
		if msg.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.Metadata.MessageCount = len(c.Messages)
			c.Touch()
			return true
		}
	}
	return false
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Touch bumps UpdatedAt, keeping it monotonically non-decreasing.
func (c *Conversation) Touch() {
	now := time.Now()
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// deriveTitle sets the title from the first user message, but only while the
// title still equals the default placeholder.
func (c *Conversation) deriveTitle(added *Message) {
	if c.Title != DefaultTitle {
		return
	}
	if added.Role != RoleUser || added.Content == "" {
		return
	}
	c.Title = DeriveTitle(added.Content)
}

// DeriveTitle builds a conversation title from message content: newlines are
// collapsed and the result is truncated to TitleMaxLen runes with an ellipsis.
func DeriveTitle(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", "")
	runes := []rune(content)
	if len(runes) > TitleMaxLen {
		return string(runes[:TitleMaxLen]) + "..."
	}
	return content
}

// =============================================================================
// HISTORY
// =============================================================================

// History returns the prior message history for a generation request,
// excluding empty assistant placeholders and error-flagged empties.
func (c *Conversation) History() []*Message {
	history := make([]*Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Role == RoleAssistant && msg.IsEmpty() {
			continue
		}
		history = append(history, msg)
	}
	return history
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

// Preview returns a short preview of the first user message.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Preview(80)
		}
	}
	return ""
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return &clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}

// pruneOldMessages removes old messages when the history exceeds MaxMessages.
// System messages are preserved.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	var system []*Message
	var other []*Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			other = append(other, msg)
		}
	}

	if len(other) > MaxMessages {
		other = other[len(other)-MaxMessages:]
	}

	c.Messages = make([]*Message, 0, len(system)+len(other))
	c.Messages = append(c.Messages, system...)
	c.Messages = append(c.Messages, other...)
	c.Metadata.MessageCount = len(c.Messages)
}
