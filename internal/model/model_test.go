// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"testing"
)

// =============================================================================
// TITLE DERIVATION TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "short content unchanged",
			content: "Hello there",
			want:    "Hello there",
		},
		{
			name:    "newlines collapsed",
			content: "line one\nline two",
			want:    "line one line two",
		},
		{
			name:    "long content truncated with ellipsis",
			content: strings.Repeat("a", 60),
			want:    strings.Repeat("a", 50) + "...",
		},
		{
			name:    "exactly fifty runes unchanged",
			content: strings.Repeat("b", 50),
			want:    strings.Repeat("b", 50),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.content); got != tc.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}

func TestConversation_TitleAutoSetOnce(t *testing.T) {
	conv := NewConversation("test-model", ChatSettings{})

	if conv.Title != DefaultTitle {
		t.Fatalf("Title = %q, want %q", conv.Title, DefaultTitle)
	}

	conv.AddMessage(NewUserMessage("First question"))
	if conv.Title != "First question" {
		t.Errorf("Title = %q, want 'First question'", conv.Title)
	}

	// A second user message must not rewrite the title.
	conv.AddMessage(NewUserMessage("Second question"))
	if conv.Title != "First question" {
		t.Errorf("Title rewritten to %q", conv.Title)
	}
}

func TestConversation_TitleNotDerivedAfterRename(t *testing.T) {
	conv := NewConversation("test-model", ChatSettings{})
	conv.Title = "My custom title"

	conv.AddMessage(NewUserMessage("Hello"))

	if conv.Title != "My custom title" {
		t.Errorf("Title = %q, want custom title preserved", conv.Title)
	}
}

func TestConversation_TitleNotDerivedFromAssistant(t *testing.T) {
	conv := NewConversation("test-model", ChatSettings{})
	conv.AddMessage(NewAssistantPlaceholder("test-model"))

	if conv.Title != DefaultTitle {
		t.Errorf("Title = %q, want default placeholder", conv.Title)
	}
}

// =============================================================================
// MESSAGE MANAGEMENT TESTS
// =============================================================================

func TestConversation_MessageCountTracksLength(t *testing.T) {
	conv := NewConversation("m", ChatSettings{})

	for i := 0; i < 5; i++ {
		conv.AddMessage(NewUserMessage("msg"))
	}
	if conv.Metadata.MessageCount != len(conv.Messages) {
		t.Errorf("MessageCount = %d, messages = %d", conv.Metadata.MessageCount, len(conv.Messages))
	}

	id := conv.Messages[2].ID
	if !conv.RemoveMessage(id) {
		t.Fatal("RemoveMessage returned false for existing id")
	}
	if conv.Metadata.MessageCount != 4 {
		t.Errorf("MessageCount = %d after removal, want 4", conv.Metadata.MessageCount)
	}
	if conv.MessageByID(id) != nil {
		t.Error("removed message still addressable by id")
	}
}

func TestConversation_RemoveMessageMissing(t *testing.T) {
	conv := NewConversation("m", ChatSettings{})
	if conv.RemoveMessage("msg_nope") {
		t.Error("RemoveMessage returned true for missing id")
	}
}

func TestConversation_MessageByID(t *testing.T) {
	conv := NewConversation("m", ChatSettings{})
	first := NewUserMessage("one")
	second := NewUserMessage("two")
	conv.AddMessage(first)
	conv.AddMessage(second)

	got := conv.MessageByID(second.ID)
	if got == nil || got.Content != "two" {
		t.Errorf("MessageByID returned %+v, want message 'two'", got)
	}
}

func TestConversation_HistoryExcludesEmptyPlaceholder(t *testing.T) {
	conv := NewConversation("m", ChatSettings{})
	conv.AddMessage(NewUserMessage("hello"))
	conv.AddMessage(NewAssistantPlaceholder("m"))

	history := conv.History()
	if len(history) != 1 {
		t.Fatalf("History length = %d, want 1", len(history))
	}
	if history[0].Role != RoleUser {
		t.Errorf("History[0].Role = %q, want user", history[0].Role)
	}
}

func TestConversation_UpdatedAtMonotonic(t *testing.T) {
	conv := NewConversation("m", ChatSettings{})
	before := conv.UpdatedAt

	conv.AddMessage(NewUserMessage("bump"))

	if conv.UpdatedAt.Before(before) {
		t.Error("UpdatedAt moved backwards")
	}
}

// =============================================================================
// PRUNING TESTS
// =============================================================================

func TestConversation_PruneKeepsSystemMessages(t *testing.T) {
	conv := NewConversation("m", ChatSettings{})
	conv.AddMessage(NewSystemMessage("system prompt"))

	for i := 0; i <= MaxMessages; i++ {
		conv.AddMessage(NewUserMessage("filler"))
	}

	if len(conv.Messages) != MaxMessages+1 {
		t.Errorf("message count = %d, want %d", len(conv.Messages), MaxMessages+1)
	}
	if conv.Messages[0].Role != RoleSystem {
		t.Error("system message not preserved at front after pruning")
	}
	if conv.Metadata.MessageCount != len(conv.Messages) {
		t.Errorf("MessageCount = %d, messages = %d", conv.Metadata.MessageCount, len(conv.Messages))
	}
}

// =============================================================================
// CLONE TESTS
// =============================================================================

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation("m", ChatSettings{Temperature: 0.5})
	conv.AddMessage(NewUserMessage("original"))

	clone := conv.Clone()
	clone.Messages[0].Content = "mutated"

	if conv.Messages[0].Content != "original" {
		t.Error("mutating clone affected original message")
	}
}

// =============================================================================
// APP SETTINGS TESTS
// =============================================================================

func TestDefaultAppSettings(t *testing.T) {
	s := DefaultAppSettings()

	if s.DefaultModel == "" {
		t.Error("DefaultModel should not be empty")
	}
	if s.Temperature <= 0 || s.Temperature > 2 {
		t.Errorf("Temperature = %v, want in (0, 2]", s.Temperature)
	}
	if s.MaxTokens <= 0 {
		t.Errorf("MaxTokens = %d, want positive", s.MaxTokens)
	}
}

func TestAppSettings_ChatSettings(t *testing.T) {
	s := DefaultAppSettings()
	s.SystemPrompt = "be brief"

	cs := s.ChatSettings()
	if cs.Temperature != s.Temperature {
		t.Errorf("Temperature = %v, want %v", cs.Temperature, s.Temperature)
	}
	if cs.SystemPrompt != "be brief" {
		t.Errorf("SystemPrompt = %q", cs.SystemPrompt)
	}
}
