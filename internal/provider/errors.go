// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the streaming completion transport.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// ERROR VARIABLES
// =============================================================================

// Error variables for common transport failures.
var (
	// ErrAuthFailed indicates authentication failed (missing or invalid API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInsufficientCredits indicates the account has insufficient balance.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrUnavailable indicates the service could not be reached or returned
	// a server error.
	ErrUnavailable = errors.New("service unavailable")
)

// APIError represents an error response from the completion API.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// Kind is the classified category of a transport failure.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindQuota     Kind = "quota"
	KindRateLimit Kind = "rate_limit"
	KindNetwork   Kind = "network"
	KindCancelled Kind = "cancelled"
	KindGeneric   Kind = "generic"
)

// Classify maps a transport error into the fixed taxonomy.
// Context cancellation is its own kind and is never user-visible as an error.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindGeneric
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrAuthFailed):
		return KindAuth
	case errors.Is(err, ErrInsufficientCredits):
		return KindQuota
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	default:
		return KindGeneric
	}
}

// Humanize returns a single human-readable message for the store's global
// error surface. A nil error humanizes to "".
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case KindAuth:
		return "Authentication failed. Check your API key."
	case KindQuota:
		return "Insufficient credits. Top up your account to continue."
	case KindRateLimit:
		return "Rate limited. Wait a moment and try again."
	case KindNetwork:
		return "The completion service is unreachable. Check your connection."
	case KindCancelled:
		return ""
	default:
		return "Generation failed: " + err.Error()
	}
}

// IsCancellation reports whether err is a user cancellation rather than a
// genuine failure.
func IsCancellation(err error) bool {
	return Classify(err) == KindCancelled
}
