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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/llm"
	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/config"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/native"
	"github.com/AleutianAI/meetingcanvas/services/realtime/observability"
	"github.com/AleutianAI/meetingcanvas/services/realtime/postprocess"
	"github.com/AleutianAI/meetingcanvas/services/realtime/research"
	"github.com/AleutianAI/meetingcanvas/services/realtime/session"
)

// maxNativeItemsPerRun caps how many new list items a single round may
// introduce through the offline/fallback extraction path.
const maxNativeItemsPerRun = 5

// BoardProducer runs one board round per scheduler request: snapshot the
// session, plan actions (model-driven or offline), post-process, and apply
// against the snapshot version.
//
// # Thread Safety
//
// Run is not safe for concurrent use; the scheduler guarantees rounds
// never overlap.
type BoardProducer struct {
	cfg      config.Config
	store    *session.Store
	client   llm.Client
	registry *research.Registry
	reducer  *board.Reducer
	proc     *postprocess.Processor
	logger   *slog.Logger

	warnedMissingConfig bool

	now func() time.Time
}

// NewBoardProducer wires a board producer. client may be nil when the
// service runs fully offline.
func NewBoardProducer(
	cfg config.Config,
	store *session.Store,
	client llm.Client,
	registry *research.Registry,
	reducer *board.Reducer,
	proc *postprocess.Processor,
	logger *slog.Logger,
) *BoardProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardProducer{
		cfg:      cfg,
		store:    store,
		client:   client,
		registry: registry,
		reducer:  reducer,
		proc:     proc,
		logger:   logger.With("component", "board_producer"),
		now:      time.Now,
	}
}

// Run executes one round. Wire this into a scheduler.Runner.
func (p *BoardProducer) Run(ctx context.Context) {
	start := time.Now()
	outcome := p.runOnce(ctx)
	if m := observability.DefaultMetrics; m != nil {
		m.ProducerRunsTotal.WithLabelValues("board", outcome).Inc()
		m.RunDurationSeconds.WithLabelValues("board").Observe(time.Since(start).Seconds())
	}
	p.logger.Debug("board round finished", "outcome", outcome)
}

func (p *BoardProducer) runOnce(ctx context.Context) string {
	version, events, boardState := p.store.BoardSnapshot()
	if len(events) == 0 {
		return "empty"
	}

	defaultLocation := p.cfg.DefaultLocation
	if loc := p.store.DefaultLocation(); loc != nil {
		defaultLocation = *loc
	}
	noBrowse := p.cfg.NoBrowse
	if ov := p.store.NoBrowseOverride(); ov != nil {
		noBrowse = *ov
	}

	hint := MissingAIConfigHint(p.cfg.Model)
	provider, _ := llm.ParseModel(p.cfg.Model)
	offline := p.cfg.OfflineMeetingNative || provider == "test" || hint != "" || p.client == nil
	if hint != "" && !p.warnedMissingConfig {
		p.store.Status("AI disabled: " + hint)
		p.warnedMissingConfig = true
	}
	if offline {
		return p.runOffline(version, events, boardState)
	}
	return p.runWithModel(ctx, version, events, boardState, defaultLocation, noBrowse)
}

// runOffline is the no-model path: regex extraction into the meeting-native
// list cards only.
func (p *BoardProducer) runOffline(version int, events []datatypes.TranscriptEvent, boardState datatypes.BoardState) string {
	items := native.ExtractItems(events)
	actions, postState := native.CreateOrUpdateActions(p.reducer, boardState, items, maxNativeItemsPerRun)
	if len(actions) == 0 {
		return "empty"
	}

	result := p.proc.Process(postState, actions, p.now())
	next, ok := p.store.ApplyBoard(version, result.Actions)
	if !ok {
		p.store.Status("Discarded meeting-native result (state changed).")
		return "conflict"
	}

	p.reportThrottle(result)
	p.store.Broadcast(datatypes.NewBoardActionsPayload(result.Actions, next))
	return "applied"
}

func (p *BoardProducer) runWithModel(
	ctx context.Context,
	version int,
	events []datatypes.TranscriptEvent,
	boardState datatypes.BoardState,
	defaultLocation string,
	noBrowse bool,
) string {
	p.store.Status("Running orchestrator…")

	transcriptWindow := FormatTranscriptWindow(events)
	boardSummary := FormatBoardSummary(boardState)

	raw, err := p.client.Generate(ctx, orchestratorSystemPrompt,
		orchestratorUserPrompt(transcriptWindow, boardSummary, defaultLocation, noBrowse),
		llm.GenerationParams{ForceJSON: true})
	if err != nil {
		p.fail(err)
		return "error"
	}
	decision, err := DecodeDecision(raw)
	if err != nil {
		p.fail(err)
		return "error"
	}

	tasks := decision.ResearchTasks
	if noBrowse && len(tasks) > 0 {
		p.store.Status(fmt.Sprintf("External research disabled; ignoring %d suggested research task(s).", len(tasks)))
		tasks = nil
		decision.ResearchTasks = nil
	}
	if !noBrowse && len(tasks) == 0 {
		texts := make([]string, 0, len(events))
		for _, e := range events {
			if e.Text != "" {
				texts = append(texts, e.Text)
			}
		}
		tasks = research.AutoSeedTasks(strings.Join(texts, "\n"), defaultLocation)
		if len(tasks) > 0 {
			decision.ResearchTasks = tasks
		}
	}

	if len(tasks) > 0 {
		p.store.Status(fmt.Sprintf("Research tasks: %d", len(tasks)))
	}
	var results []datatypes.ResearchResult
	for _, task := range tasks {
		res, err := p.registry.RunTask(ctx, task, noBrowse)
		if err != nil {
			p.store.Status(fmt.Sprintf("Research failed for %s: %v", task.Label(), err))
			if m := observability.DefaultMetrics; m != nil {
				m.ResearchTasksTotal.WithLabelValues(task.Label(), "error").Inc()
			}
			continue
		}
		if m := observability.DefaultMetrics; m != nil {
			m.ResearchTasksTotal.WithLabelValues(task.Label(), "success").Inc()
		}
		results = append(results, res)
	}

	p.store.Status("Running board planner…")
	plannerPrompt, err := plannerUserPrompt(transcriptWindow, boardSummary, decision, results, noBrowse)
	if err != nil {
		p.fail(err)
		return "error"
	}
	raw, err = p.client.Generate(ctx, plannerSystemPrompt, plannerPrompt, llm.GenerationParams{})
	if err != nil {
		p.fail(err)
		return "error"
	}
	actions, droppedInvalid, err := DecodeBoardActions(raw)
	if err != nil {
		p.fail(err)
		return "error"
	}
	if droppedInvalid > 0 {
		p.logger.Warn("planner produced invalid actions", "dropped", droppedInvalid)
	}

	// Planner updates that reference meeting-native cards a fresh board
	// doesn't have yet get their targets seeded first.
	seedActions := native.SeedActions(boardState, actions)
	postState := boardState
	if len(seedActions) > 0 {
		actions = append(seedActions, actions...)
		for _, a := range seedActions {
			postState = p.reducer.Apply(postState, a)
		}
	}

	// Whatever the planner did, the regex extraction still lands; it only
	// appends items the planner's own actions didn't already cover.
	items := native.ExtractItems(events)
	if len(items) > 0 {
		preFallback := postState
		baseIDs := native.BaseListCardIDs()
		for _, a := range actions {
			switch a.Type {
			case datatypes.ActionCreateCard:
				if a.Card != nil {
					if _, ok := baseIDs[a.Card.CardID]; ok {
						preFallback = p.reducer.Apply(preFallback, a)
					}
				}
			case datatypes.ActionUpdateCard:
				if _, ok := baseIDs[a.CardID]; ok {
					preFallback = p.reducer.Apply(preFallback, a)
				}
			}
		}

		fallbackActions, fallbackState := native.CreateOrUpdateActions(p.reducer, preFallback, items, maxNativeItemsPerRun)
		if len(fallbackActions) > 0 {
			actions = append(actions, fallbackActions...)
			postState = fallbackState
		}
	}

	result := p.proc.Process(postState, actions, p.now())
	processed := result.Actions
	if noBrowse {
		processed = p.sanitizeNoBrowse(processed)
	}

	next, ok := p.store.ApplyBoard(version, processed)
	if !ok {
		p.store.Status("Discarded AI result (state changed).")
		return "conflict"
	}

	p.reportThrottle(result)
	p.store.Broadcast(datatypes.NewBoardActionsPayload(processed, next))
	return "applied"
}

// sanitizeNoBrowse strips externally sourced material when research is
// off: creates carrying sources are dropped, updates lose citations and
// any sources patch.
func (p *BoardProducer) sanitizeNoBrowse(actions []datatypes.BoardAction) []datatypes.BoardAction {
	sanitized := make([]datatypes.BoardAction, 0, len(actions))
	dropped, stripped := 0, 0
	for _, a := range actions {
		switch a.Type {
		case datatypes.ActionCreateCard:
			if a.Card != nil && len(a.Card.Sources) > 0 {
				dropped++
				continue
			}
		case datatypes.ActionUpdateCard:
			_, hasSources := a.Patch["sources"]
			if len(a.Citations) > 0 || hasSources {
				patch := make(map[string]any, len(a.Patch))
				for k, v := range a.Patch {
					if k != "sources" {
						patch[k] = v
					}
				}
				a.Patch = patch
				a.Citations = nil
				stripped++
			}
		}
		sanitized = append(sanitized, a)
	}

	if dropped > 0 {
		p.store.Status(fmt.Sprintf("Skipped %d action(s) with external citations (external research is off).", dropped))
	}
	if stripped > 0 {
		p.store.Status(fmt.Sprintf("Removed citations from %d action(s) (external research is off).", stripped))
	}
	return sanitized
}

func (p *BoardProducer) reportThrottle(result postprocess.Result) {
	if m := observability.DefaultMetrics; m != nil {
		if result.Deduped > 0 {
			m.DedupedCreatesTotal.Add(float64(result.Deduped))
		}
		if result.Throttled > 0 {
			m.ThrottledCreatesTotal.Add(float64(result.Throttled))
		}
	}
	if result.Throttled > 0 {
		p.store.Status(result.ThrottleMessage(p.proc.Config()))
	}
}

func (p *BoardProducer) fail(err error) {
	p.logger.Error("board round failed", "error", err)
	p.store.Error(HumanizeAIError(err, p.cfg.Model), map[string]any{"error": err.Error()})
}
