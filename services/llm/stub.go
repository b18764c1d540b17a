// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"strings"
)

// StubClient is a deterministic Client for tests and offline runs. It
// returns canned responses keyed on prompt substring, falling back to
// Default.
type StubClient struct {
	// Responses maps a prompt substring to the response returned when
	// the substring appears in the user prompt. First match wins in
	// insertion-independent order; keep keys disjoint in tests.
	Responses map[string]string

	// Default is returned when no substring matches. Empty is allowed.
	Default string

	// Calls records each prompt received, in order.
	Calls []string

	// Err, when set, is returned from every Generate call.
	Err error
}

var _ Client = (*StubClient)(nil)

// Generate implements Client. It never calls a network.
func (s *StubClient) Generate(_ context.Context, _ string, prompt string, _ GenerationParams) (string, error) {
	s.Calls = append(s.Calls, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	lowered := strings.ToLower(prompt)
	for substr, resp := range s.Responses {
		if substr != "" && strings.Contains(lowered, strings.ToLower(substr)) {
			return resp, nil
		}
	}
	return s.Default, nil
}
