// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/kvale/tern/internal/model"
	"github.com/kvale/tern/internal/provider"
)

// =============================================================================
// STORAGE KEYS
// =============================================================================

const (
	conversationsFile = "conversations.json"
	settingsFile      = "settings.json"
	modelCacheFile    = "models.json"
)

// =============================================================================
// GATEWAY
// =============================================================================

// Gateway is the only component that touches durable storage. Reads are
// corruption-tolerant: a malformed file yields the empty/default state and a
// logged warning, never an error surfaced to the caller.
type Gateway struct {
	// BaseDir is the directory holding the storage files.
	// Default: ~/.tern/
	BaseDir string

	logger *log.Logger
}

// NewGateway creates a gateway rooted at the user's home directory.
func NewGateway() (*Gateway, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewGatewayWithDir(filepath.Join(homeDir, ".tern"))
}

// NewGatewayWithDir creates a gateway with a custom directory.
func NewGatewayWithDir(baseDir string) (*Gateway, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Gateway{
		BaseDir: baseDir,
		logger:  log.New(log.Writer(), "storage: ", log.LstdFlags),
	}, nil
}

// filePath returns the path for a storage key.
func (g *Gateway) filePath(name string) string {
	return filepath.Join(g.BaseDir, name)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// SaveConversations persists the full conversation list.
func (g *Gateway) SaveConversations(conversations []*model.Conversation) error {
	data, err := json.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(g.filePath(conversationsFile), data, 0644)
}

// LoadConversations reads the persisted conversation list. Missing or
// corrupted data resolves to an empty list with a logged warning.
func (g *Gateway) LoadConversations() []*model.Conversation {
	data, err := os.ReadFile(g.filePath(conversationsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			g.logger.Printf("warning: could not read conversations: %v", err)
		}
		return []*model.Conversation{}
	}

	var conversations []*model.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		g.logger.Printf("warning: conversations data corrupted, starting empty: %v", err)
		return []*model.Conversation{}
	}
	if conversations == nil {
		conversations = []*model.Conversation{}
	}
	return conversations
}

// =============================================================================
// SETTINGS
// =============================================================================

// SaveSettings persists the app settings.
func (g *Gateway) SaveSettings(settings model.AppSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(g.filePath(settingsFile), data, 0644)
}

// LoadSettings reads the persisted settings, merging stored fields over the
// compiled defaults so fields absent from old files never surface as zero
// values. Corrupted data resolves to pure defaults.
func (g *Gateway) LoadSettings() model.AppSettings {
	settings := model.DefaultAppSettings()

	data, err := os.ReadFile(g.filePath(settingsFile))
	if err != nil {
		if !os.IsNotExist(err) {
			g.logger.Printf("warning: could not read settings: %v", err)
		}
		return settings
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		g.logger.Printf("warning: settings data corrupted, using defaults: %v", err)
		return model.DefaultAppSettings()
	}
	return settings
}

// =============================================================================
// MODEL CACHE
// =============================================================================

// modelCache is the persisted shape of a cached model listing.
type modelCache struct {
	FetchedAt time.Time            `json:"fetched_at"`
	Models    []provider.ModelInfo `json:"models"`
}

// SaveModelCache persists a fetched model listing with its fetch time.
func (g *Gateway) SaveModelCache(models []provider.ModelInfo) error {
	data, err := json.MarshalIndent(modelCache{FetchedAt: time.Now(), Models: models}, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(g.filePath(modelCacheFile), data, 0644)
}

// LoadModelCache returns the cached model listing and its fetch time.
// ok is false when no usable cache exists.
func (g *Gateway) LoadModelCache() (models []provider.ModelInfo, fetchedAt time.Time, ok bool) {
	data, err := os.ReadFile(g.filePath(modelCacheFile))
	if err != nil {
		return nil, time.Time{}, false
	}

	var cache modelCache
	if err := json.Unmarshal(data, &cache); err != nil {
		g.logger.Printf("warning: model cache corrupted, ignoring: %v", err)
		return nil, time.Time{}, false
	}
	return cache.Models, cache.FetchedAt, len(cache.Models) > 0
}
