// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export provides conversation export functionality for tern.
// Supports exporting single conversations to Markdown and JSON with
// optional metadata and per-message timestamps.
package export
