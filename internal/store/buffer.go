// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"strings"
	"sync"
)

// =============================================================================
// TOKEN BUFFER
// =============================================================================

// TokenBuffer accumulates in-flight stream tokens for the message currently
// being generated. Tokens live here, not in the conversation, until the
// stream terminates; consumers render Text() for the live view.
//
// After EndStream the accumulated text stays readable until the next
// StartStream, so completion handlers can commit it to the message.
//
// Thread-safety: tokens arrive from the streaming goroutine while readers
// run on the event loop, so all operations are mutex-protected.
type TokenBuffer struct {
	mu        sync.Mutex
	buf       strings.Builder
	messageID string
	active    bool
}

// NewTokenBuffer creates an empty, inactive buffer.
func NewTokenBuffer() *TokenBuffer {
	return &TokenBuffer{}
}

// StartStream resets the buffer and binds it to a target message.
func (tb *TokenBuffer) StartStream(messageID string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.buf.Reset()
	tb.messageID = messageID
	tb.active = true
}

// AppendToken appends a token to the buffer. Tokens arriving while no
// stream is active are dropped; they belong to a stream that already
// terminated.
func (tb *TokenBuffer) AppendToken(token string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if !tb.active {
		return
	}
	tb.buf.WriteString(token)
}

// EndStream deactivates the buffer. The accumulated text remains available
// until the next StartStream.
func (tb *TokenBuffer) EndStream() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.active = false
}

// Active reports whether a stream is currently feeding the buffer.
func (tb *TokenBuffer) Active() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.active
}

// MessageID returns the id of the message the buffer is bound to.
func (tb *TokenBuffer) MessageID() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.messageID
}

// Text returns the accumulated stream content.
func (tb *TokenBuffer) Text() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.buf.String()
}

// Len returns the accumulated content length in bytes.
func (tb *TokenBuffer) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.buf.Len()
}
