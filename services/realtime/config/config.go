// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the realtime service configuration from
// MEETINGCANVAS_* environment variables, once, into an explicit struct
// that is passed to the components that need it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// MindmapBudgets caps node creation for one extractor run.
type MindmapBudgets struct {
	MaxNewNodes      int
	MaxNewRootTopics int
}

// Config is the full runtime configuration of the realtime service.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// DBPath is the BadgerDB directory for persisted state.
	DBPath string

	// Model is a "provider:model" reference; "test" selects the stub.
	Model string

	// DefaultLocation anchors location-less weather research.
	DefaultLocation string

	// NoBrowse disables external research by default; sessions may
	// override it either way.
	NoBrowse bool

	// OfflineMeetingNative forces the offline board flow even when a
	// model is configured.
	OfflineMeetingNative bool

	// OfflineMindmap disables the model-driven mindmap extractor.
	OfflineMindmap bool

	// MindmapAI enables the mindmap extractor by default; sessions may
	// override.
	MindmapAI bool

	// MindmapExtractor picks the extractor: "ai" or "stub". Empty means
	// "stub" when FakeAI is set, otherwise "ai".
	MindmapExtractor string

	// FakeAI selects stub behavior wherever a model would be called.
	FakeAI bool

	// MindmapStubMaxPhrases caps phrases per stub extraction run.
	MindmapStubMaxPhrases int

	// AIMinInterval paces board producer rounds.
	AIMinInterval time.Duration

	// MindmapAIMinInterval paces mindmap extractor rounds.
	MindmapAIMinInterval time.Duration

	// TranscriptMaxEvents / TranscriptMaxAge bound the transcript ring.
	TranscriptMaxEvents int
	TranscriptMaxAge    time.Duration

	// DedupeTitleSimilarity enables create-to-update rewriting.
	DedupeTitleSimilarity bool

	// MaxCreatesPerMinute / MinBetweenCreates gate machine card creation.
	MaxCreatesPerMinute int
	MinBetweenCreates   time.Duration

	// PersistDebounce delays durable writes to coalesce bursts.
	PersistDebounce time.Duration

	// Mindmap creation budgets by run mode.
	MindmapFinalBudgets       MindmapBudgets
	MindmapInterimBudgets     MindmapBudgets
	MindmapBeforeFinalBudgets MindmapBudgets

	// OTLPEndpoint enables trace export when non-empty.
	OTLPEndpoint string
}

// Load reads the environment. Unset or malformed variables fall back to
// the documented defaults.
func Load() Config {
	return Config{
		Addr:                  envString("MEETINGCANVAS_ADDR", ":8000"),
		DBPath:                envString("MEETINGCANVAS_DB_PATH", "meetingcanvas-data"),
		Model:                 envString("MEETINGCANVAS_MODEL", "openai:gpt-4o-mini"),
		DefaultLocation:       envString("MEETINGCANVAS_DEFAULT_LOCATION", "Seattle"),
		NoBrowse:              envBool("MEETINGCANVAS_NO_BROWSE", false),
		OfflineMeetingNative:  envBool("MEETINGCANVAS_OFFLINE_MEETING_NATIVE", false),
		OfflineMindmap:        envBool("MEETINGCANVAS_OFFLINE_MINDMAP", false),
		MindmapAI:             envBool("MEETINGCANVAS_MINDMAP_AI", true),
		MindmapExtractor:      strings.ToLower(strings.TrimSpace(envString("MEETINGCANVAS_MINDMAP_EXTRACTOR", ""))),
		FakeAI:                envBool("MEETINGCANVAS_FAKE_AI", false),
		MindmapStubMaxPhrases: envInt("MEETINGCANVAS_MINDMAP_STUB_MAX_PHRASES", 16),
		AIMinInterval:         envSeconds("MEETINGCANVAS_AI_MIN_INTERVAL_SECONDS", 10*time.Second),
		MindmapAIMinInterval:  envSeconds("MEETINGCANVAS_MINDMAP_AI_MIN_INTERVAL_SECONDS", 2500*time.Millisecond),
		TranscriptMaxEvents:   envInt("MEETINGCANVAS_TRANSCRIPT_MAX_EVENTS", 50),
		TranscriptMaxAge:      envSeconds("MEETINGCANVAS_TRANSCRIPT_MAX_SECONDS", 120*time.Second),
		DedupeTitleSimilarity: envBool("MEETINGCANVAS_DEDUPE_TITLE_SIMILARITY", true),
		MaxCreatesPerMinute:   envInt("MEETINGCANVAS_MAX_CREATE_CARDS_PER_MINUTE", 2),
		MinBetweenCreates:     envSeconds("MEETINGCANVAS_MIN_SECONDS_BETWEEN_CREATES", 20*time.Second),
		PersistDebounce:       envSeconds("MEETINGCANVAS_PERSIST_DEBOUNCE_SECONDS", 1250*time.Millisecond),
		MindmapFinalBudgets: MindmapBudgets{
			MaxNewNodes:      envInt("MEETINGCANVAS_MINDMAP_MAX_NEW_NODES_PER_RUN", 12),
			MaxNewRootTopics: envInt("MEETINGCANVAS_MINDMAP_MAX_NEW_ROOT_TOPICS_PER_RUN", 4),
		},
		MindmapInterimBudgets: MindmapBudgets{
			MaxNewNodes:      envInt("MEETINGCANVAS_MINDMAP_MAX_NEW_NODES_PER_INTERIM_RUN", 3),
			MaxNewRootTopics: envInt("MEETINGCANVAS_MINDMAP_MAX_NEW_ROOT_TOPICS_PER_INTERIM_RUN", 0),
		},
		MindmapBeforeFinalBudgets: MindmapBudgets{
			MaxNewNodes:      envInt("MEETINGCANVAS_MINDMAP_MAX_NEW_NODES_BEFORE_FINAL", 6),
			MaxNewRootTopics: envInt("MEETINGCANVAS_MINDMAP_MAX_NEW_ROOT_TOPICS_BEFORE_FINAL", 2),
		},
		OTLPEndpoint: envString("MEETINGCANVAS_OTLP_ENDPOINT", ""),
	}
}

// ExtractorMode resolves the effective extractor selection.
func (c Config) ExtractorMode() string {
	if c.MindmapExtractor != "" {
		return c.MindmapExtractor
	}
	if c.FakeAI {
		return "stub"
	}
	return "ai"
}

func envString(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	value, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envInt(name string, fallback int) int {
	value, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// envSeconds parses a float number of seconds.
func envSeconds(name string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return time.Duration(parsed * float64(time.Second))
}
