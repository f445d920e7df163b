// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kvale/tern/internal/model"
	"github.com/kvale/tern/internal/provider"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	gw, err := NewGatewayWithDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewGatewayWithDir: %v", err)
	}
	return gw
}

// =============================================================================
// GATEWAY: CONVERSATIONS
// =============================================================================

func TestGateway_ConversationsRoundTrip(t *testing.T) {
	gw := newTestGateway(t)

	conv := model.NewConversation("test-model", model.ChatSettings{Temperature: 0.7, MaxTokens: 4096})
	conv.AddMessage(model.NewUserMessage("hello there"))
	conv.AddMessage(model.NewMessage(model.RoleAssistant, "hi, how can I help?"))

	if err := gw.SaveConversations([]*model.Conversation{conv}); err != nil {
		t.Fatalf("SaveConversations: %v", err)
	}

	loaded := gw.LoadConversations()
	if len(loaded) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(loaded))
	}

	got := loaded[0]
	if got.ID != conv.ID {
		t.Errorf("ID = %q, want %q", got.ID, conv.ID)
	}
	if got.Title != conv.Title {
		t.Errorf("Title = %q, want %q", got.Title, conv.Title)
	}
	if got.Model != "test-model" {
		t.Errorf("Model = %q, want %q", got.Model, "test-model")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "hello there" {
		t.Errorf("message content = %q", got.Messages[0].Content)
	}
	if got.Messages[1].Role != model.RoleAssistant {
		t.Errorf("message role = %q", got.Messages[1].Role)
	}
	if got.Metadata.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", got.Metadata.MessageCount)
	}
}

func TestGateway_LoadConversationsMissing(t *testing.T) {
	gw := newTestGateway(t)

	loaded := gw.LoadConversations()
	if loaded == nil {
		t.Fatal("expected non-nil slice for missing file")
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty list, got %d", len(loaded))
	}
}

func TestGateway_LoadConversationsCorrupted(t *testing.T) {
	gw := newTestGateway(t)

	path := filepath.Join(gw.BaseDir, conversationsFile)
	if err := os.WriteFile(path, []byte("{not json!!"), 0644); err != nil {
		t.Fatal(err)
	}

	loaded := gw.LoadConversations()
	if len(loaded) != 0 {
		t.Errorf("expected empty list for corrupted file, got %d", len(loaded))
	}
}

// =============================================================================
// GATEWAY: SETTINGS
// =============================================================================

func TestGateway_SettingsRoundTrip(t *testing.T) {
	gw := newTestGateway(t)

	settings := model.DefaultAppSettings()
	settings.Theme = "light"
	settings.Temperature = 0.3

	if err := gw.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	loaded := gw.LoadSettings()
	if loaded.Theme != "light" {
		t.Errorf("Theme = %q, want %q", loaded.Theme, "light")
	}
	if loaded.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", loaded.Temperature)
	}
}

func TestGateway_SettingsPartialFileFillsDefaults(t *testing.T) {
	gw := newTestGateway(t)

	// A file from an older version that only knows about theme.
	path := filepath.Join(gw.BaseDir, settingsFile)
	if err := os.WriteFile(path, []byte(`{"theme":"light"}`), 0644); err != nil {
		t.Fatal(err)
	}

	loaded := gw.LoadSettings()
	defaults := model.DefaultAppSettings()

	if loaded.Theme != "light" {
		t.Errorf("Theme = %q, want %q", loaded.Theme, "light")
	}
	if loaded.Temperature != defaults.Temperature {
		t.Errorf("Temperature = %v, want default %v", loaded.Temperature, defaults.Temperature)
	}
	if loaded.MaxTokens != defaults.MaxTokens {
		t.Errorf("MaxTokens = %d, want default %d", loaded.MaxTokens, defaults.MaxTokens)
	}
	if loaded.DefaultModel != defaults.DefaultModel {
		t.Errorf("DefaultModel = %q, want default %q", loaded.DefaultModel, defaults.DefaultModel)
	}
}

func TestGateway_SettingsCorruptedUsesDefaults(t *testing.T) {
	gw := newTestGateway(t)

	path := filepath.Join(gw.BaseDir, settingsFile)
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	loaded := gw.LoadSettings()
	if loaded != model.DefaultAppSettings() {
		t.Errorf("expected pure defaults for corrupted settings, got %+v", loaded)
	}
}

// =============================================================================
// GATEWAY: MODEL CACHE
// =============================================================================

func TestGateway_ModelCacheRoundTrip(t *testing.T) {
	gw := newTestGateway(t)

	models := []provider.ModelInfo{
		{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", ContextLength: 200000},
		{ID: "openai/gpt-4o", Name: "GPT-4o", ContextLength: 128000},
	}

	before := time.Now().Add(-time.Second)
	if err := gw.SaveModelCache(models); err != nil {
		t.Fatalf("SaveModelCache: %v", err)
	}

	loaded, fetchedAt, ok := gw.LoadModelCache()
	if !ok {
		t.Fatal("expected ok from LoadModelCache")
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 models, got %d", len(loaded))
	}
	if loaded[0].ID != "anthropic/claude-3.5-sonnet" {
		t.Errorf("model ID = %q", loaded[0].ID)
	}
	if fetchedAt.Before(before) {
		t.Errorf("fetchedAt %v is before save time", fetchedAt)
	}
}

func TestGateway_ModelCacheMissing(t *testing.T) {
	gw := newTestGateway(t)

	if _, _, ok := gw.LoadModelCache(); ok {
		t.Error("expected ok=false for missing cache")
	}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func TestSnapshot_RoundTrip(t *testing.T) {
	conv := model.NewConversation("m1", model.ChatSettings{Temperature: 0.5})
	conv.AddMessage(model.NewUserMessage("roundtrip me"))

	snap := NewSnapshot([]*model.Conversation{conv}, model.DefaultAppSettings())
	data, err := snap.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	parsed, err := ParseSnapshot(data)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	if parsed.Version != SnapshotVersion {
		t.Errorf("Version = %q, want %q", parsed.Version, SnapshotVersion)
	}
	if parsed.ExportedAt == 0 {
		t.Error("ExportedAt not set")
	}
	if len(parsed.Conversations) != 1 || parsed.Conversations[0].ID != conv.ID {
		t.Errorf("conversations not preserved: %+v", parsed.Conversations)
	}
}

func TestParseSnapshot_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"not json", "{{{", ErrInvalidJSON},
		{"empty input", "", ErrInvalidJSON},
		{"json array", `[1,2,3]`, ErrInvalidJSON},
		{"missing version", `{"conversations":[]}`, ErrInvalidStructure},
		{"missing conversations", `{"version":"1"}`, ErrInvalidStructure},
		{"wrong types", `{"version":"1","conversations":42}`, ErrInvalidStructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnapshot([]byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseSnapshot(%q) error = %v, want %v", tt.data, err, tt.wantErr)
			}
		})
	}
}

func TestParseSnapshot_Valid(t *testing.T) {
	data := `{"version":"1","conversations":[],"settings":{}}`
	snap, err := ParseSnapshot([]byte(data))
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	if snap.Conversations == nil {
		t.Error("expected non-nil conversations slice")
	}
}

func TestMergeConversations(t *testing.T) {
	a := model.NewConversation("m", model.ChatSettings{})
	b := model.NewConversation("m", model.ChatSettings{})
	c := model.NewConversation("m", model.ChatSettings{})

	// Imported copy of b must be skipped, not duplicated or overwritten.
	bCopy := b.Clone()
	bCopy.Title = "imported title"

	merged := MergeConversations(
		[]*model.Conversation{a, b},
		[]*model.Conversation{bCopy, c},
	)

	if len(merged) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(merged))
	}
	for _, conv := range merged {
		if conv.ID == b.ID && conv.Title == "imported title" {
			t.Error("existing conversation was overwritten by import")
		}
	}
	found := false
	for _, conv := range merged {
		if conv.ID == c.ID {
			found = true
		}
	}
	if !found {
		t.Error("new imported conversation missing from merge")
	}
}

// =============================================================================
// DEBOUNCER
// =============================================================================

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	deb := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	defer deb.Stop()

	for i := 0; i < 20; i++ {
		deb.Schedule()
	}

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 invocation after burst, got %d", got)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	var calls atomic.Int32
	deb := NewDebouncer(time.Hour, func() { calls.Add(1) })

	deb.Schedule()
	if !deb.Pending() {
		t.Fatal("expected pending after Schedule")
	}

	deb.Flush()
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 invocation after Flush, got %d", got)
	}
	if deb.Pending() {
		t.Error("expected no pending after Flush")
	}

	// Flush with nothing scheduled is a no-op.
	deb.Flush()
	if got := calls.Load(); got != 1 {
		t.Errorf("expected no extra invocation, got %d", got)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var calls atomic.Int32
	deb := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	deb.Schedule()
	deb.Stop()

	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("expected 0 invocations after Stop, got %d", got)
	}
}

// =============================================================================
// ATOMIC WRITE
// =============================================================================

func TestAtomicWriteFile_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")

	if err := atomicWriteFile(path, []byte("first"), 0644); err != nil {
		t.Fatalf("atomicWriteFile: %v", err)
	}
	if err := atomicWriteFile(path, []byte("second"), 0644); err != nil {
		t.Fatalf("atomicWriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in dir, found %d", len(entries))
	}
}
