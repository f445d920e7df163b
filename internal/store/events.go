// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kvale/tern/internal/provider"
)

// =============================================================================
// EVENT MESSAGES
// =============================================================================

// The store publishes Bubble Tea messages describing state transitions so a
// UI can re-render reactively. Events mirror state; the store itself is the
// source of truth, so a dropped event never loses data.

// GenerationStartedMsg signals that a generation session began.
type GenerationStartedMsg struct {
	SessionID      string
	ConversationID string
	MessageID      string
	StartTime      time.Time
}

// StreamTokenMsg delivers a new token from the active stream.
type StreamTokenMsg struct {
	SessionID string
	MessageID string
	Token     string
	IsFirst   bool
}

// GenerationDoneMsg signals that a generation session completed.
type GenerationDoneMsg struct {
	SessionID string
	MessageID string
	Usage     *provider.Usage
}

// GenerationErrorMsg signals that a generation session failed.
type GenerationErrorMsg struct {
	SessionID string
	MessageID string
	Err       error
	Human     string
}

// GenerationCancelledMsg signals that the user stopped a generation.
type GenerationCancelledMsg struct {
	SessionID string
	MessageID string
}

// SavedMsg confirms a completed persistence write.
type SavedMsg struct {
	At time.Time
}

// ModelsRefreshedMsg delivers a refreshed model listing.
type ModelsRefreshedMsg struct {
	Models []provider.ModelInfo
}

// =============================================================================
// EVENT PLUMBING
// =============================================================================

// Events returns the channel the store publishes state transitions on.
// Pair it with WaitForEvent to pump events into a Bubble Tea program.
func (s *Store) Events() <-chan tea.Msg {
	return s.events
}

// WaitForEvent returns a command that blocks for the next store event.
// Re-issue it from Update after each received message:
//
//	case store.StreamTokenMsg:
//		// render...
//		return m, store.WaitForEvent(m.store.Events())
func WaitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// emit publishes an event without blocking the caller. If the consumer has
// fallen behind and the channel is full, the event is dropped; state remains
// consistent because consumers read it from the store, not the events.
func (s *Store) emit(msg tea.Msg) {
	select {
	case s.events <- msg:
	default:
		s.logger.Printf("event channel full, dropping %T", msg)
	}
}
