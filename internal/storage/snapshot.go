// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kvale/tern/internal/model"
)

// SnapshotVersion identifies the export format.
const SnapshotVersion = "1"

// =============================================================================
// ERRORS
// =============================================================================

// SnapshotError represents an import validation failure.
// Use errors.Is with the sentinel values below.
type SnapshotError struct {
	Message string
}

// Error implements the error interface.
func (e *SnapshotError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing snapshot errors.
func (e *SnapshotError) Is(target error) bool {
	t, ok := target.(*SnapshotError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// Import rejects malformed payloads with a distinct error per failure mode.
var (
	// ErrInvalidJSON indicates the payload is not parseable JSON.
	ErrInvalidJSON = &SnapshotError{Message: "import data is not valid JSON"}

	// ErrInvalidStructure indicates valid JSON missing required top-level fields.
	ErrInvalidStructure = &SnapshotError{Message: "import data is missing required fields"}
)

// =============================================================================
// SNAPSHOT TYPE
// =============================================================================

// Snapshot is the versioned export payload.
type Snapshot struct {
	Version       string                `json:"version"`
	ExportedAt    int64                 `json:"exported_at"` // epoch milliseconds
	Conversations []*model.Conversation `json:"conversations"`
	Settings      model.AppSettings     `json:"settings"`
}

// ImportMode selects how imported conversations combine with existing data.
type ImportMode string

const (
	// ImportReplace wipes existing conversations and installs the imported set.
	ImportReplace ImportMode = "replace"

	// ImportMerge unions by conversation id, skipping ids already present.
	ImportMerge ImportMode = "merge"
)

// =============================================================================
// EXPORT
// =============================================================================

// NewSnapshot builds a versioned snapshot of the given state.
func NewSnapshot(conversations []*model.Conversation, settings model.AppSettings) *Snapshot {
	return &Snapshot{
		Version:       SnapshotVersion,
		ExportedAt:    time.Now().UnixMilli(),
		Conversations: conversations,
		Settings:      settings,
	}
}

// Marshal serializes the snapshot as indented JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// =============================================================================
// IMPORT
// =============================================================================

// ParseSnapshot validates and decodes an exported payload. Malformed JSON and
// structurally invalid payloads are rejected with distinct errors; they are
// never silently swallowed.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if _, ok := raw["version"]; !ok {
		return nil, fmt.Errorf("%w: no version", ErrInvalidStructure)
	}
	if _, ok := raw["conversations"]; !ok {
		return nil, fmt.Errorf("%w: no conversations", ErrInvalidStructure)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStructure, err)
	}
	if snapshot.Conversations == nil {
		snapshot.Conversations = []*model.Conversation{}
	}
	return &snapshot, nil
}

// MergeConversations unions imported conversations into existing ones by id.
// Ids already present are skipped: no duplication, no overwrite.
func MergeConversations(existing, imported []*model.Conversation) []*model.Conversation {
	seen := make(map[string]bool, len(existing))
	for _, conv := range existing {
		seen[conv.ID] = true
	}

	merged := existing
	for _, conv := range imported {
		if seen[conv.ID] {
			continue
		}
		seen[conv.ID] = true
		merged = append(merged, conv)
	}
	return merged
}
