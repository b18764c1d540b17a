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
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/llm"
	"github.com/AleutianAI/meetingcanvas/services/realtime/config"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/observability"
	"github.com/AleutianAI/meetingcanvas/services/realtime/session"
)

// Mindmap extraction window shape: enough finalized context to stay
// coherent, plus at most one substantial in-flight utterance.
const (
	mindmapWindowFinals     = 18
	mindmapMinInterimLength = 24
)

// MindmapProducer runs one extraction round per scheduler request. Rounds
// that see no new transcript input return immediately.
//
// # Thread Safety
//
// Run is not safe for concurrent use; the scheduler guarantees rounds
// never overlap.
type MindmapProducer struct {
	cfg    config.Config
	mm     mindmap.Config
	store  *session.Store
	client llm.Client
	logger *slog.Logger

	lastProcessedTranscript int
	warnedMissingConfig     bool
}

// NewMindmapProducer wires a mindmap producer. client may be nil when the
// stub extractor is selected.
func NewMindmapProducer(
	cfg config.Config,
	mmCfg mindmap.Config,
	store *session.Store,
	client llm.Client,
	logger *slog.Logger,
) *MindmapProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MindmapProducer{
		cfg:                     cfg,
		mm:                      mmCfg,
		store:                   store,
		client:                  client,
		logger:                  logger.With("component", "mindmap_producer"),
		lastProcessedTranscript: -1,
	}
}

// Run executes one round. Wire this into a scheduler.Runner.
func (m *MindmapProducer) Run(ctx context.Context) {
	start := time.Now()
	outcome := m.runOnce(ctx)
	if met := observability.DefaultMetrics; met != nil {
		met.ProducerRunsTotal.WithLabelValues("mindmap", outcome).Inc()
		met.RunDurationSeconds.WithLabelValues("mindmap").Observe(time.Since(start).Seconds())
	}
	m.logger.Debug("mindmap round finished", "outcome", outcome)
}

func (m *MindmapProducer) runOnce(ctx context.Context) string {
	_, transcriptVersion, events, state, override := m.store.MindmapSnapshot()
	if len(events) == 0 {
		return "empty"
	}
	if transcriptVersion == m.lastProcessedTranscript {
		return "skipped"
	}

	enabled := m.cfg.MindmapAI
	if override != nil {
		enabled = *override
	}
	if !enabled {
		return "skipped"
	}

	window := mindmapWindow(events)
	if len(window) == 0 {
		return "empty"
	}

	var proposals []mindmap.PathProposal
	if m.cfg.ExtractorMode() == "stub" {
		m.store.Broadcast(datatypes.NewMindmapStatusPayload("running"))
		proposals = StubPathProposals(window, m.cfg.MindmapStubMaxPhrases)
		m.store.Broadcast(datatypes.NewMindmapStatusPayload("idle"))
	} else {
		if hint := MissingAIConfigHint(m.cfg.Model); hint != "" {
			if !m.warnedMissingConfig {
				m.store.Status("Mindmap AI disabled: " + hint)
				m.warnedMissingConfig = true
			}
			return "skipped"
		}
		provider, _ := llm.ParseModel(m.cfg.Model)
		if m.cfg.OfflineMindmap || provider == "test" || m.client == nil {
			return "skipped"
		}

		prompt := mindmapUserPrompt(
			FormatMindmapTranscriptWindow(window),
			mindmap.Summarize(state, 60, 12),
		)
		m.store.Broadcast(datatypes.NewMindmapStatusPayload("running"))
		raw, err := m.client.Generate(ctx, mindmapSystemPrompt, prompt, llm.GenerationParams{})
		m.store.Broadcast(datatypes.NewMindmapStatusPayload("idle"))
		if err != nil {
			m.fail(err)
			return "error"
		}
		proposals, err = DecodePathProposals(raw)
		if err != nil {
			m.fail(err)
			return "error"
		}
	}

	actions, _ := mindmap.ApplyPathProposals(state, m.mm, proposals, m.budgetsFor(events))
	if len(actions) > 0 {
		_, applied := m.store.ApplyMindmapNow(actions)
		m.store.Broadcast(datatypes.NewMindmapActionsPayload(actions, applied))
	}
	m.lastProcessedTranscript = transcriptVersion

	if len(actions) == 0 {
		return "empty"
	}
	return "applied"
}

// mindmapWindow selects the last finalized events plus the most recent
// interim one, but only when the interim is substantial and not older
// than the last final.
func mindmapWindow(events []datatypes.TranscriptEvent) []datatypes.TranscriptEvent {
	var window []datatypes.TranscriptEvent
	for _, e := range events {
		if e.IsFinal {
			window = append(window, e)
		}
	}
	if len(window) > mindmapWindowFinals {
		window = window[len(window)-mindmapWindowFinals:]
	}

	for i := len(events) - 1; i >= 0; i-- {
		if events[i].IsFinal {
			continue
		}
		interim := events[i]
		if len(window) == 0 || !interim.Timestamp.Before(window[len(window)-1].Timestamp) {
			if len(strings.TrimSpace(interim.Text)) >= mindmapMinInterimLength {
				window = append(window, interim)
			}
		}
		break
	}
	return window
}

// budgetsFor picks creation budgets by how settled the latest input is.
// Interim tail after at least one final gets the tightest budget; a
// stream that has produced no finals yet gets a middle one.
func (m *MindmapProducer) budgetsFor(events []datatypes.TranscriptEvent) mindmap.Budgets {
	chosen := m.cfg.MindmapFinalBudgets
	latest := events[len(events)-1]
	if !latest.IsFinal {
		hasFinal := false
		for _, e := range events {
			if e.IsFinal {
				hasFinal = true
				break
			}
		}
		if hasFinal {
			chosen = m.cfg.MindmapInterimBudgets
		} else {
			chosen = m.cfg.MindmapBeforeFinalBudgets
		}
	}
	return mindmap.Budgets{
		MaxNewNodes:      chosen.MaxNewNodes,
		MaxNewRootTopics: chosen.MaxNewRootTopics,
	}
}

func (m *MindmapProducer) fail(err error) {
	m.logger.Error("mindmap round failed", "error", err)
	m.store.Error(HumanizeAIError(err, m.cfg.Model), map[string]any{"error": err.Error()})
}
