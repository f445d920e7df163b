// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for tern.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, TERN_* environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.tern/config.toml
//   - ~/.tern/config.json
//   - Built-in defaults
//
// A Watcher can additionally hot-reload the file on change, delivering
// each valid new config to a callback and skipping invalid ones.
package config
