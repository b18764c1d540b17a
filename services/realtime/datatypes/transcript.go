// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the wire contracts shared by the realtime
// service: transcript events, board cards and actions, mindmap nodes and
// actions, and research task/result payloads.
//
// All types marshal to snake_case JSON. Action unions are flat structs with
// a `type` discriminator, matching the realtime protocol.
package datatypes

import "time"

// TranscriptEvent is one utterance (or partial utterance) from the
// streaming transcript feed.
type TranscriptEvent struct {
	// EventID, when set, lets a speech backend replace an interim event
	// with its finalized form in place.
	EventID    string    `json:"event_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Speaker    string    `json:"speaker,omitempty"`
	Text       string    `json:"text" validate:"required"`
	Confidence *float64  `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	IsFinal    bool      `json:"is_final"`
}

// Citation records where an externally researched fact came from.
type Citation struct {
	URL         string     `json:"url" validate:"required,url"`
	Title       string     `json:"title,omitempty"`
	RetrievedAt time.Time  `json:"retrieved_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
