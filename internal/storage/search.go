// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/kvale/tern/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrIndexClosed   = errors.New("search index closed")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// SEARCH INDEX
// =============================================================================

// searchSchema defines the message search tables.
const searchSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// SearchIndex maintains a SQLite index over conversation messages for
// substring search across the full history. The index is derived state:
// the JSON store remains the source of truth, and the index is rebuilt
// from it on demand.
type SearchIndex struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// SearchResult is a single search hit.
type SearchResult struct {
	ConversationID    string
	ConversationTitle string
	MessageID         string
	Role              model.Role
	Snippet           string
	Timestamp         time.Time
}

// OpenSearchIndex opens (or creates) the search database at path.
func OpenSearchIndex(path string) (*SearchIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open search database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(searchSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SearchIndex{db: db, path: path}, nil
}

// IndexConversation replaces the indexed rows for a conversation with its
// current state. Safe to call repeatedly; each call is one transaction.
func (idx *SearchIndex) IndexConversation(conv *model.Conversation) error {
	if conv == nil {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.db == nil {
		return ErrIndexClosed
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM conversations WHERE id = ?", conv.ID); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, model, updated_at)
		VALUES (?, ?, ?, ?)
	`, conv.ID, conv.Title, conv.Model, conv.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	for _, msg := range conv.Messages {
		if msg.IsEmpty() {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, msg.ID, conv.ID, msg.Role.String(), msg.Content, msg.Timestamp.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// Remove deletes a conversation and its messages from the index.
func (idx *SearchIndex) Remove(conversationID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.db == nil {
		return ErrIndexClosed
	}

	_, err := idx.db.Exec("DELETE FROM conversations WHERE id = ?", conversationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Rebuild reindexes the full conversation set in one transaction.
func (idx *SearchIndex) Rebuild(conversations []*model.Conversation) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.db == nil {
		return ErrIndexClosed
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM conversations"); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	for _, conv := range conversations {
		_, err := tx.Exec(`
			INSERT INTO conversations (id, title, model, updated_at)
			VALUES (?, ?, ?, ?)
		`, conv.ID, conv.Title, conv.Model, conv.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		for _, msg := range conv.Messages {
			if msg.IsEmpty() {
				continue
			}
			_, err := tx.Exec(`
				INSERT INTO messages (id, conversation_id, role, content, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, msg.ID, conv.ID, msg.Role.String(), msg.Content, msg.Timestamp.Unix())
			if err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Search performs a case-insensitive substring search over message content
// and conversation titles, newest first, capped at limit results.
func (idx *SearchIndex) Search(query string, limit int) ([]SearchResult, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.db == nil {
		return nil, ErrIndexClosed
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	rows, err := idx.db.Query(`
		SELECT m.id, m.conversation_id, c.title, m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE LOWER(m.content) LIKE ? ESCAPE '\'
		   OR LOWER(c.title)   LIKE ? ESCAPE '\'
		ORDER BY m.created_at DESC
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r       SearchResult
			role    string
			content string
			ts      int64
		)
		if err := rows.Scan(&r.MessageID, &r.ConversationID, &r.ConversationTitle, &role, &content, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		r.Role = model.Role(role)
		r.Snippet = snippet(content, query, 80)
		r.Timestamp = time.Unix(ts, 0)
		results = append(results, r)
	}

	return results, rows.Err()
}

// Close closes the index and releases resources.
func (idx *SearchIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.db == nil {
		return nil
	}
	db := idx.db
	idx.db = nil
	return db.Close()
}

// escapeLike escapes LIKE metacharacters in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// snippet extracts a window of content around the first match of query.
func snippet(content, query string, width int) string {
	lower := strings.ToLower(content)
	pos := strings.Index(lower, strings.ToLower(query))
	if pos < 0 {
		pos = 0
	}

	start := pos - width/4
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(content) {
		end = len(content)
	}

	// Avoid splitting multi-byte runes at the window edges.
	for start > 0 && start < len(content) && !isRuneStart(content[start]) {
		start--
	}
	for end < len(content) && !isRuneStart(content[end]) {
		end++
	}

	out := content[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out = out + "..."
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
