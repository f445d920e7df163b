// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the streaming completion transport.
package provider

// =============================================================================
// MODEL TYPES
// =============================================================================

// Pricing represents per-token pricing information for a model.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ModelInfo represents information about an available model.
type ModelInfo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ContextLength int     `json:"context_length"`
	Pricing       Pricing `json:"pricing"`
}

// modelsResponse is the wire structure for the model listing endpoint.
type modelsResponse struct {
	Data []struct {
		ID            string   `json:"id"`
		Name          string   `json:"name"`
		ContextLength int      `json:"context_length"`
		Pricing       *Pricing `json:"pricing"`
	} `json:"data"`
}

// =============================================================================
// STATIC FALLBACK
// =============================================================================

// FallbackModels returns the compiled model list used when the provider's
// model listing is unavailable.
func FallbackModels() []ModelInfo {
	return []ModelInfo{
		{
			ID:            "anthropic/claude-3.5-sonnet",
			Name:          "Claude 3.5 Sonnet",
			ContextLength: 200000,
			Pricing:       Pricing{Prompt: "0.000003", Completion: "0.000015"},
		},
		{
			ID:            "anthropic/claude-3.5-haiku",
			Name:          "Claude 3.5 Haiku",
			ContextLength: 200000,
			Pricing:       Pricing{Prompt: "0.000001", Completion: "0.000005"},
		},
		{
			ID:            "openai/gpt-4o",
			Name:          "GPT-4o",
			ContextLength: 128000,
			Pricing:       Pricing{Prompt: "0.0000025", Completion: "0.00001"},
		},
		{
			ID:            "openai/gpt-4o-mini",
			Name:          "GPT-4o mini",
			ContextLength: 128000,
			Pricing:       Pricing{Prompt: "0.00000015", Completion: "0.0000006"},
		},
		{
			ID:            "meta-llama/llama-3-70b-instruct",
			Name:          "Llama 3 70B Instruct",
			ContextLength: 8192,
			Pricing:       Pricing{Prompt: "0.00000059", Completion: "0.00000079"},
		},
	}
}
