// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tern assembles the chat engine from its parts: configuration,
// the streaming provider, durable storage, and the state store.
//
// Open is the front door:
//
//	cfg, _ := config.Load()
//	app, err := tern.Open(cfg)
//	defer app.Close()
//	app.Store.SendMessage(ctx, "hello")
package tern

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kvale/tern/internal/config"
	"github.com/kvale/tern/internal/provider"
	"github.com/kvale/tern/internal/storage"
	"github.com/kvale/tern/internal/store"
)

// searchIndexFile is the SQLite database name inside the data directory.
const searchIndexFile = "search.db"

// App bundles the wired engine components.
type App struct {
	Config *config.Config
	Store  *store.Store

	watcher *config.Watcher
}

// Open builds the engine from a configuration: provider client, storage
// gateway, optional search index, and the store, hydrated from disk.
// A nil cfg loads the configuration from its default locations.
func Open(cfg *config.Config) (*App, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	gateway, err := storage.NewGatewayWithDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var index *storage.SearchIndex
	if cfg.Storage.SearchEnabled {
		index, err = storage.OpenSearchIndex(filepath.Join(dataDir, searchIndexFile))
		if err != nil {
			return nil, fmt.Errorf("open search index: %w", err)
		}
	}

	client := provider.NewClient(provider.Config{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		RequestTimeout:    time.Duration(cfg.Provider.RequestTimeoutSecs) * time.Second,
	})

	st, err := store.New(store.Config{
		Provider:      client,
		Gateway:       gateway,
		Index:         index,
		DebounceDelay: time.Duration(cfg.Storage.DebounceMs) * time.Millisecond,
	})
	if err != nil {
		if index != nil {
			index.Close()
		}
		return nil, err
	}

	st.LoadFromStorage()

	// Config supplies the default model and theme; persisted settings keep
	// the runtime-mutable chat parameters.
	settings := st.Settings()
	settings.DefaultModel = cfg.DefaultModel
	settings.Theme = cfg.UI.Theme
	if err := st.UpdateSettings(settings); err != nil {
		return nil, err
	}

	return &App{Config: cfg, Store: st}, nil
}

// WatchConfig hot-reloads the config file at path, applying default-model
// and theme changes to the running store. Provider and storage changes
// require a restart and are ignored until then.
func (a *App) WatchConfig(path string) error {
	watcher, err := config.NewWatcher(path, func(cfg *config.Config) {
		settings := a.Store.Settings()
		settings.DefaultModel = cfg.DefaultModel
		settings.Theme = cfg.UI.Theme
		if err := a.Store.UpdateSettings(settings); err == nil {
			a.Config = cfg
		}
	})
	if err != nil {
		return err
	}
	if err := watcher.Watch(); err != nil {
		watcher.Close()
		return err
	}
	a.watcher = watcher
	return nil
}

// Close flushes pending writes and releases all resources.
func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
	// Store.Close also closes the index it owns.
	return a.Store.Close()
}
