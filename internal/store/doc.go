// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the heart of tern: it owns all conversation state and
// mediates every mutation, streaming generation, and persistence write.
//
// # Architecture
//
//   - Store: Single authority over conversations, settings, and the
//     generation lifecycle. All mutations go through it.
//   - session: At most one streaming generation at a time, identified by
//     a unique id so events from abandoned streams are dropped.
//   - TokenBuffer: In-flight tokens accumulate here, not in the
//     conversation; the full text is committed when the stream ends.
//   - Events: State transitions are published as Bubble Tea messages for
//     reactive rendering; the store remains the source of truth.
//
// # Persistence
//
// Mutation bursts are coalesced behind a debouncer, so rapid edits
// produce one write. Stream terminations (completion, error, or cancel)
// save immediately: a finished reply must never be lost to a pending
// debounce window.
//
// # Usage
//
//	st, err := store.New(store.Config{Provider: client, Gateway: gw})
//	st.LoadFromStorage()
//	st.CreateConversation("")
//	err = st.SendMessage(ctx, "hello")
//	// consume st.Events() for StreamTokenMsg / GenerationDoneMsg
package store
