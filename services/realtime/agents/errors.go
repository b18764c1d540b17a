// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"strings"

	"github.com/AleutianAI/meetingcanvas/services/llm"
)

// MissingAIConfigHint returns a remediation hint when the configured model
// cannot run for lack of credentials, or "" when it can.
func MissingAIConfigHint(model string) string {
	provider, _ := llm.ParseModel(model)
	if provider == "openai" && !llm.HasOpenAICredentials() {
		return "set OPENAI_API_KEY (or mount the key at /run/secrets/openai_api_key)."
	}
	return ""
}

// HumanizeAIError turns provider failures into a short operator-facing
// message. The raw error still travels in the error payload details.
func HumanizeAIError(err error, model string) string {
	if hint := MissingAIConfigHint(model); hint != "" {
		return "AI loop failed: missing provider credentials; " + hint
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") {
		return "AI loop failed: provider quota/rate limit (HTTP 429)."
	}
	if strings.Contains(lower, "invalid_api_key") || strings.Contains(lower, "401") {
		return "AI loop failed: invalid API key (HTTP 401)."
	}
	return "AI loop failed."
}
