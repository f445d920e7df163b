// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and application settings.
//
// Conversations own an ordered message history in chronological insertion
// order; all lookups and mutations address messages by stable ID, never by
// position. Title derivation, metadata accounting, and history pruning live
// here so every consumer observes the same rules.
package model
