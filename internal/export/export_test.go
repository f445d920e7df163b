// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/kvale/tern/internal/model"
)

func sampleConversation() *model.Conversation {
	conv := model.NewConversation("test/model", model.ChatSettings{Temperature: 0.7})
	conv.AddMessage(model.NewUserMessage("How do I read a file in Go?"))
	reply := model.NewMessage(model.RoleAssistant, "Use os.ReadFile for small files.")
	reply.Model = "test/model"
	conv.AddMessage(reply)
	return conv
}

func TestMarkdownExporter(t *testing.T) {
	conv := sampleConversation()

	content, err := NewMarkdownExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	out := string(content)

	if !strings.Contains(out, "title: "+conv.Title) {
		t.Error("frontmatter missing title")
	}
	if !strings.Contains(out, "model: test/model") {
		t.Error("frontmatter missing model")
	}
	if !strings.Contains(out, "How do I read a file in Go?") {
		t.Error("user message missing")
	}
	if !strings.Contains(out, "Use os.ReadFile for small files.") {
		t.Error("assistant message missing")
	}
	if !strings.Contains(out, "### You") || !strings.Contains(out, "### Assistant") {
		t.Error("role headings missing")
	}
}

func TestMarkdownExporter_WithoutMetadata(t *testing.T) {
	conv := sampleConversation()
	opts := &Options{IncludeMetadata: false, IncludeTimestamps: false}

	content, err := NewMarkdownExporter(opts).Export(conv)
	if err != nil {
		t.Fatal(err)
	}
	out := string(content)

	if strings.Contains(out, "---\ntitle:") {
		t.Error("frontmatter present despite IncludeMetadata=false")
	}
	if strings.Contains(out, "<sub>") {
		t.Error("timestamps present despite IncludeTimestamps=false")
	}
}

func TestMarkdownExporter_SkipsEmptyPlaceholder(t *testing.T) {
	conv := sampleConversation()
	conv.AddMessage(model.NewAssistantPlaceholder("test/model"))

	content, err := NewMarkdownExporter(nil).Export(conv)
	if err != nil {
		t.Fatal(err)
	}
	// Two role headings only; the empty placeholder contributes nothing.
	if got := strings.Count(string(content), "### "); got != 2 {
		t.Errorf("expected 2 message headings, got %d", got)
	}
}

func TestMarkdownExporter_Validation(t *testing.T) {
	if _, err := NewMarkdownExporter(nil).Export(nil); err == nil {
		t.Error("expected error for nil conversation")
	}

	empty := model.NewConversation("m", model.ChatSettings{})
	if _, err := NewMarkdownExporter(nil).Export(empty); err == nil {
		t.Error("expected error for conversation without messages")
	}
}

func TestJSONExporter_RoundTrips(t *testing.T) {
	conv := sampleConversation()

	content, err := NewJSONExporter(nil).Export(conv)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var decoded model.Conversation
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("exported JSON does not parse: %v", err)
	}
	if decoded.ID != conv.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, conv.ID)
	}
	if len(decoded.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(decoded.Messages))
	}
}

func TestExportToFile(t *testing.T) {
	conv := sampleConversation()
	opts := &Options{OutputDir: t.TempDir(), IncludeMetadata: true, IncludeTimestamps: true}

	path, err := ExportMarkdown(conv, opts)
	if err != nil {
		t.Fatalf("ExportMarkdown: %v", err)
	}
	if !strings.HasSuffix(path, ".md") {
		t.Errorf("unexpected extension: %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "os.ReadFile") {
		t.Error("file content incomplete")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Simple Title", "Simple_Title"},
		{"a/b\\c:d", "a-b-c-d"},
		{"", "conversation"},
		{"tabs\tand\nnewlines", "tabs_and_newlines"},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
