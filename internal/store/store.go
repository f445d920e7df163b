// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kvale/tern/internal/model"
	"github.com/kvale/tern/internal/provider"
	"github.com/kvale/tern/internal/storage"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrGenerationActive     = errors.New("a generation is already in progress")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message content is empty")
)

// =============================================================================
// GATEWAY INTERFACE
// =============================================================================

// Gateway is the persistence surface the store writes through.
// *storage.Gateway is the production implementation; tests substitute
// in-memory fakes.
type Gateway interface {
	SaveConversations([]*model.Conversation) error
	LoadConversations() []*model.Conversation
	SaveSettings(model.AppSettings) error
	LoadSettings() model.AppSettings
	SaveModelCache([]provider.ModelInfo) error
	LoadModelCache() ([]provider.ModelInfo, time.Time, bool)
}

// =============================================================================
// STORE
// =============================================================================

// modelCacheTTL bounds how long a cached model listing is served without a
// refetch.
const modelCacheTTL = 24 * time.Hour

// Config configures a Store.
type Config struct {
	// Provider streams chat completions. Required.
	Provider provider.Provider

	// Gateway persists conversations and settings. Required.
	Gateway Gateway

	// Index is the optional message search index. When nil, Search
	// returns no results.
	Index *storage.SearchIndex

	// DebounceDelay is the write coalescing window for mutation bursts.
	// Zero selects storage.DefaultDebounceDelay.
	DebounceDelay time.Duration

	// EventBufferSize caps the event channel. Zero selects a default
	// sized for interactive streaming.
	EventBufferSize int
}

// Store owns all conversation state and mediates every mutation. It runs
// at most one generation session at a time, coalesces persistence writes
// behind a debouncer, and publishes state transitions as Bubble Tea
// messages on Events().
type Store struct {
	mu sync.Mutex

	conversations []*model.Conversation // ordered newest-first
	activeID      string
	settings      model.AppSettings

	session *session
	buffer  *TokenBuffer
	lastErr string

	provider  provider.Provider
	gateway   Gateway
	index     *storage.SearchIndex
	debouncer *storage.Debouncer
	dirty     map[string]bool

	lastSavedAt time.Time

	events chan tea.Msg
	logger *log.Logger
}

// New creates a store. Call LoadFromStorage to hydrate it from disk.
func New(cfg Config) (*Store, error) {
	if cfg.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("gateway is required")
	}

	bufSize := cfg.EventBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}

	s := &Store{
		conversations: []*model.Conversation{},
		settings:      model.DefaultAppSettings(),
		buffer:        NewTokenBuffer(),
		provider:      cfg.Provider,
		gateway:       cfg.Gateway,
		index:         cfg.Index,
		dirty:         make(map[string]bool),
		events:        make(chan tea.Msg, bufSize),
		logger:        log.New(log.Writer(), "store: ", log.LstdFlags),
	}
	s.debouncer = storage.NewDebouncer(cfg.DebounceDelay, s.saveNow)

	return s, nil
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// CreateConversation starts a new conversation seeded from the app
// defaults, makes it active, and returns it. An empty title selects the
// default placeholder, which is later auto-derived from the first user
// message; a non-empty title sticks, like a rename.
func (s *Store) CreateConversation(title string) *model.Conversation {
	s.mu.Lock()

	conv := model.NewConversation(s.settings.DefaultModel, s.settings.ChatSettings())
	if title = strings.TrimSpace(title); title != "" {
		conv.Title = title
	}
	s.conversations = append([]*model.Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	s.markDirtyLocked(conv.ID)
	s.scheduleSaveLocked()

	s.mu.Unlock()
	return conv
}

// Conversations returns the conversation list, newest first.
func (s *Store) Conversations() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// ActiveConversation returns the currently selected conversation, or nil.
func (s *Store) ActiveConversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeConversationLocked()
}

// SetActiveConversation selects a conversation by id.
func (s *Store) SetActiveConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conversationByIDLocked(id) == nil {
		return ErrConversationNotFound
	}
	s.activeID = id
	return nil
}

// DeleteConversation removes a conversation. Deleting the conversation
// hosting an active generation is rejected; stop it first.
func (s *Store) DeleteConversation(id string) error {
	s.mu.Lock()

	if s.session != nil && s.session.state == SessionActive && s.session.conversationID == id {
		s.mu.Unlock()
		return ErrGenerationActive
	}

	found := false
	for i, conv := range s.conversations {
		if conv.ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return ErrConversationNotFound
	}

	delete(s.dirty, id)
	if s.activeID == id {
		s.activeID = ""
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		}
	}

	index := s.index
	s.scheduleSaveLocked()
	s.mu.Unlock()

	if index != nil {
		if err := index.Remove(id); err != nil {
			s.logger.Printf("warning: could not deindex conversation %s: %v", id, err)
		}
	}
	return nil
}

// RenameConversation sets a user-chosen title. Once renamed, the title is
// never auto-derived again.
func (s *Store) RenameConversation(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationByIDLocked(id)
	if conv == nil {
		return ErrConversationNotFound
	}

	conv.Title = title
	conv.Touch()
	s.markDirtyLocked(id)
	s.scheduleSaveLocked()
	return nil
}

// UpdateConversationModel switches the model used for future sends in a
// conversation. Existing messages are untouched.
func (s *Store) UpdateConversationModel(id, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationByIDLocked(id)
	if conv == nil {
		return ErrConversationNotFound
	}

	conv.Model = modelID
	conv.Touch()
	s.markDirtyLocked(id)
	s.scheduleSaveLocked()
	return nil
}

// UpdateConversationSettings replaces a conversation's generation settings.
func (s *Store) UpdateConversationSettings(id string, settings model.ChatSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationByIDLocked(id)
	if conv == nil {
		return ErrConversationNotFound
	}

	conv.Settings = settings
	conv.Touch()
	s.markDirtyLocked(id)
	s.scheduleSaveLocked()
	return nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AddMessage appends a message to a conversation. A missing conversation
// is a logged no-op: the caller's state is already stale and there is
// nothing coherent to report back to it.
func (s *Store) AddMessage(conversationID string, msg *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationByIDLocked(conversationID)
	if conv == nil {
		s.logger.Printf("warning: add message to unknown conversation %s", conversationID)
		return
	}

	conv.AddMessage(msg)
	s.markDirtyLocked(conversationID)
	s.scheduleSaveLocked()
}

// UpdateMessageContent edits a message in place. While a generation is
// active the edit is applied in memory but not scheduled for persistence;
// the terminal save at stream end captures it.
func (s *Store) UpdateMessageContent(conversationID, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationByIDLocked(conversationID)
	if conv == nil {
		return ErrConversationNotFound
	}
	msg := conv.MessageByID(messageID)
	if msg == nil {
		return errors.New("message not found")
	}

	msg.Content = content
	conv.Touch()
	s.markDirtyLocked(conversationID)

	if s.session == nil || s.session.state != SessionActive {
		s.scheduleSaveLocked()
	}
	return nil
}

// DeleteMessage removes a message by id. The placeholder of an in-flight
// generation cannot be deleted.
func (s *Store) DeleteMessage(conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && s.session.state == SessionActive && s.session.messageID == messageID {
		return ErrGenerationActive
	}

	conv := s.conversationByIDLocked(conversationID)
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.RemoveMessage(messageID) {
		return errors.New("message not found")
	}

	s.markDirtyLocked(conversationID)
	s.scheduleSaveLocked()
	return nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// LoadFromStorage hydrates the store from disk: conversations sorted
// newest-first, the most recent one active, settings merged over defaults.
// The search index, when present, is rebuilt to match.
func (s *Store) LoadFromStorage() {
	conversations := s.gateway.LoadConversations()
	settings := s.gateway.LoadSettings()

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	s.mu.Lock()
	s.conversations = conversations
	s.settings = settings
	s.activeID = ""
	if len(conversations) > 0 {
		s.activeID = conversations[0].ID
	}
	index := s.index
	s.mu.Unlock()

	if index != nil {
		if err := index.Rebuild(conversations); err != nil {
			s.logger.Printf("warning: could not rebuild search index: %v", err)
		}
	}
}

// SaveToStorage forces an immediate write, bypassing the debounce window.
func (s *Store) SaveToStorage() {
	s.debouncer.Stop()
	s.saveNow()
}

// LastSavedAt returns the time of the last completed write.
func (s *Store) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSavedAt
}

// saveNow writes the conversation list and reindexes conversations dirtied
// since the last write. It is the debouncer's target and the terminal-save
// path at stream end.
func (s *Store) saveNow() {
	s.mu.Lock()

	if err := s.gateway.SaveConversations(s.conversations); err != nil {
		s.logger.Printf("warning: could not save conversations: %v", err)
		s.mu.Unlock()
		return
	}
	s.lastSavedAt = time.Now()

	dirty := make([]*model.Conversation, 0, len(s.dirty))
	for id := range s.dirty {
		if conv := s.conversationByIDLocked(id); conv != nil {
			dirty = append(dirty, conv)
		}
	}
	s.dirty = make(map[string]bool)
	index := s.index
	savedAt := s.lastSavedAt

	s.mu.Unlock()

	if index != nil {
		for _, conv := range dirty {
			if err := index.IndexConversation(conv); err != nil {
				s.logger.Printf("warning: could not index conversation %s: %v", conv.ID, err)
			}
		}
	}

	s.emit(SavedMsg{At: savedAt})
}

// scheduleSaveLocked arms the debounced write. Caller must hold s.mu.
func (s *Store) scheduleSaveLocked() {
	s.debouncer.Schedule()
}

// markDirtyLocked records a conversation as needing reindexing on the next
// write. Caller must hold s.mu.
func (s *Store) markDirtyLocked(id string) {
	s.dirty[id] = true
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings returns the current app settings.
func (s *Store) Settings() model.AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings replaces the app settings and persists them immediately.
// Settings changes are rare enough that debouncing buys nothing.
func (s *Store) UpdateSettings(settings model.AppSettings) error {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	return s.gateway.SaveSettings(settings)
}

// =============================================================================
// MODELS
// =============================================================================

// Models returns the available model listing, served from the persisted
// cache while it is fresh and refetched otherwise.
func (s *Store) Models(ctx context.Context) []provider.ModelInfo {
	if models, fetchedAt, ok := s.gateway.LoadModelCache(); ok && time.Since(fetchedAt) < modelCacheTTL {
		return models
	}
	return s.RefreshModels(ctx)
}

// RefreshModels fetches the model listing from the provider, refreshes the
// cache, and announces the new listing.
func (s *Store) RefreshModels(ctx context.Context) []provider.ModelInfo {
	models := s.provider.ListModels(ctx)

	if err := s.gateway.SaveModelCache(models); err != nil {
		s.logger.Printf("warning: could not cache models: %v", err)
	}
	s.emit(ModelsRefreshedMsg{Models: models})
	return models
}

// =============================================================================
// SEARCH
// =============================================================================

// Search queries the message index across the full conversation history.
// Returns no results when the store was built without an index.
func (s *Store) Search(query string, limit int) ([]storage.SearchResult, error) {
	s.mu.Lock()
	index := s.index
	s.mu.Unlock()

	if index == nil {
		return nil, nil
	}
	return index.Search(query, limit)
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// ExportData serializes the full store state as a versioned snapshot.
func (s *Store) ExportData() ([]byte, error) {
	s.mu.Lock()
	snap := storage.NewSnapshot(s.conversations, s.settings)
	data, err := snap.Marshal()
	s.mu.Unlock()
	return data, err
}

// ImportData installs a previously exported snapshot. Replace swaps the
// entire conversation set and settings; merge unions conversations by id,
// keeping existing ones untouched. Import is rejected while a generation
// is active.
func (s *Store) ImportData(data []byte, mode storage.ImportMode) error {
	snap, err := storage.ParseSnapshot(data)
	if err != nil {
		return err
	}

	s.mu.Lock()

	if s.session != nil && s.session.state == SessionActive {
		s.mu.Unlock()
		return ErrGenerationActive
	}

	switch mode {
	case storage.ImportMerge:
		s.conversations = storage.MergeConversations(s.conversations, snap.Conversations)
	default:
		s.conversations = snap.Conversations
		s.settings = snap.Settings
	}

	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].UpdatedAt.After(s.conversations[j].UpdatedAt)
	})

	s.activeID = ""
	if len(s.conversations) > 0 {
		s.activeID = s.conversations[0].ID
	}

	conversations := s.conversations
	index := s.index
	s.mu.Unlock()

	if index != nil {
		if err := index.Rebuild(conversations); err != nil {
			s.logger.Printf("warning: could not rebuild search index: %v", err)
		}
	}

	s.SaveToStorage()
	return nil
}

// =============================================================================
// ERROR STATE
// =============================================================================

// LastError returns the display form of the most recent generation error,
// or "" when the last generation was clean.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ClearError dismisses the current error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = ""
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Close stops any in-flight generation, flushes pending writes, and
// releases the search index.
func (s *Store) Close() error {
	s.StopGeneration()
	s.debouncer.Stop()
	s.saveNow()

	s.mu.Lock()
	index := s.index
	s.index = nil
	s.mu.Unlock()

	if index != nil {
		return index.Close()
	}
	return nil
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// activeConversationLocked returns the active conversation. Caller must
// hold s.mu.
func (s *Store) activeConversationLocked() *model.Conversation {
	return s.conversationByIDLocked(s.activeID)
}

// conversationByIDLocked finds a conversation by id. Caller must hold s.mu.
func (s *Store) conversationByIDLocked(id string) *model.Conversation {
	if id == "" {
		return nil
	}
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}
