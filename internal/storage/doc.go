// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable persistence for tern's conversation
// history, settings, and model cache.
//
// All JSON files are written atomically (temp file + fsync + rename) so a
// crash mid-write never corrupts existing data. Reads are tolerant: a
// missing or corrupted file yields empty/default state with a logged
// warning rather than an error, so the application always starts.
//
// # Key Types
//
//   - Gateway: File-backed persistence for conversations, settings, and
//     the model list cache
//   - Debouncer: Coalesces mutation bursts into a single deferred write
//   - Snapshot: Versioned export/import payload
//   - SearchIndex: SQLite-backed full-history message search
//
// # Usage
//
// Create a gateway and persist state:
//
//	gw, err := storage.NewGateway()
//	err = gw.SaveConversations(conversations)
//	conversations = gw.LoadConversations()
//
// Coalesce writes behind a debouncer:
//
//	deb := storage.NewDebouncer(500*time.Millisecond, func() {
//		gw.SaveConversations(snapshotConversations())
//	})
//	deb.Schedule() // call on every mutation
//	deb.Flush()    // force pending write on shutdown
package storage
