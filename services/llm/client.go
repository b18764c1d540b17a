// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm abstracts the chat-completion backend behind a small
// interface so the planning agents never import a provider SDK directly.
package llm

import (
	"context"
	"errors"
	"strings"
)

// GenerationParams tunes a single generation call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// ForceJSON asks the backend for a JSON-object response when the
	// provider supports it.
	ForceJSON bool `json:"force_json"`
}

// Client defines the standard interface for any LLM backend.
type Client interface {
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error)
}

// ParseModel splits a "provider:model" reference. A bare name defaults
// to the openai provider; the special value "test" selects the offline
// stub backend.
func ParseModel(ref string) (provider, model string) {
	if ref == "test" {
		return "test", ""
	}
	if idx := strings.Index(ref, ":"); idx >= 0 {
		return ref[:idx], ref[idx+1:]
	}
	return "openai", ref
}

// ErrNoChoices is returned when the backend answers without any content.
var ErrNoChoices = errors.New("model returned no choices")
