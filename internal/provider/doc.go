// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the streaming completion transport.
//
// The Provider interface is the only seam the rest of the application sees:
// StreamChat pushes chunk events through a Handler and terminates with exactly
// one of OnDone or OnError, honoring context cancellation cooperatively.
// The HTTP client targets OpenAI-compatible chat completion endpoints, parses
// Server-Sent Events, skips malformed frames, and classifies transport
// failures into a fixed taxonomy (auth, quota, rate limit, network, generic).
// Model listing falls back to a compiled list when the endpoint is down.
package provider
