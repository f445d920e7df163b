// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

// =============================================================================
// APP SETTINGS
// =============================================================================

// AppSettings holds the global defaults applied to new conversations.
//
// Loading uses default-fill semantics: the stored JSON is unmarshalled over a
// struct pre-populated with DefaultAppSettings, so fields absent from stored
// data keep their compiled-in defaults. This keeps old settings files working
// as the schema grows.
type AppSettings struct {
	Theme            string  `json:"theme"`
	DefaultModel     string  `json:"default_model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	TopP             float64 `json:"top_p,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"`
}

// DefaultAppSettings returns the compiled-in defaults.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Theme:        "dark",
		DefaultModel: "qwen2.5-coder:14b",
		Temperature:  0.7,
		MaxTokens:    4096,
		TopP:         0.9,
	}
}

// ChatSettings derives a per-conversation settings snapshot from the defaults.
func (s AppSettings) ChatSettings() ChatSettings {
	return ChatSettings{
		Temperature:      s.Temperature,
		MaxTokens:        s.MaxTokens,
		SystemPrompt:     s.SystemPrompt,
		TopP:             s.TopP,
		FrequencyPenalty: s.FrequencyPenalty,
		PresencePenalty:  s.PresencePenalty,
	}
}
