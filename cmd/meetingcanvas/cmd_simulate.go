// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/meetingcanvas/pkg/logging"
	"github.com/AleutianAI/meetingcanvas/services/llm"
	"github.com/AleutianAI/meetingcanvas/services/realtime/agents"
	"github.com/AleutianAI/meetingcanvas/services/realtime/board"
	"github.com/AleutianAI/meetingcanvas/services/realtime/config"
	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/mindmap"
	"github.com/AleutianAI/meetingcanvas/services/realtime/native"
	"github.com/AleutianAI/meetingcanvas/services/realtime/postprocess"
	"github.com/AleutianAI/meetingcanvas/services/realtime/research"
	"github.com/AleutianAI/meetingcanvas/services/realtime/session"
)

var (
	simulateLocation string
	simulateNoBrowse bool
	simulateModel    string
)

// stdoutClient prints every broadcast payload the run produces, as the
// websocket frontend would receive it.
type stdoutClient struct {
	enc *json.Encoder
}

func (c *stdoutClient) SendJSON(payload any) error {
	return c.enc.Encode(payload)
}

// simulateCmd runs a single producer round against one synthetic
// transcript line, without a server or a websocket client.
var simulateCmd = &cobra.Command{
	Use:   "simulate [text]",
	Short: "Run a single board round from a prompt string",
	Long: `Feeds one final transcript line through the full board pipeline:
orchestrator decision, research, planner, and reducer. Broadcast payloads
print to stdout as the frontend would receive them.

Examples:
  meetingcanvas simulate "Let's plan the offsite in March"
  meetingcanvas simulate --no-browse "Decision: ship the beta on Friday"`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulateCommand,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateLocation, "location", "Seattle", "Default location assumption")
	simulateCmd.Flags().BoolVar(&simulateNoBrowse, "no-browse", false, "Disable external research tools")
	simulateCmd.Flags().StringVar(&simulateModel, "model", "", "Override the configured provider:model reference")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulateCommand(cmd *cobra.Command, args []string) error {
	structured := logging.Default()
	defer structured.Close()
	logger := structured.Logger

	cfg := config.Load()
	cfg.DefaultLocation = simulateLocation
	cfg.NoBrowse = simulateNoBrowse
	if simulateModel != "" {
		cfg.Model = simulateModel
	}

	var client llm.Client
	provider, modelName := llm.ParseModel(cfg.Model)
	if !cfg.FakeAI && provider == "openai" {
		c, err := llm.NewOpenAIClient(modelName, logger)
		if err != nil {
			logger.Warn("model client unavailable; running offline", "error", err)
		} else {
			client = c
		}
	}

	mmCfg := mindmap.NewConfig()
	reducer := board.NewReducer()
	store := session.New(session.DefaultConfig(), reducer, mmCfg.RootID, logger)
	store.AddClient(&stdoutClient{enc: json.NewEncoder(os.Stdout)})

	store.AddTranscriptEvent(datatypes.TranscriptEvent{
		Timestamp: time.Now().UTC(),
		Speaker:   "Participant",
		Text:      args[0],
		IsFinal:   true,
	})

	producer := agents.NewBoardProducer(cfg, store, client,
		research.DefaultRegistry(nil), reducer,
		postprocess.New(postprocess.Config{
			DedupeEnabled:     cfg.DedupeTitleSimilarity,
			MaxPerMinute:      cfg.MaxCreatesPerMinute,
			MinBetweenCreates: cfg.MinBetweenCreates,
			BypassCardIDs:     native.BaseListCardIDs(),
		}), logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	producer.Run(ctx)

	_, _, state := store.BoardSnapshot()
	cardIDs := make([]string, 0, len(state.Cards))
	for cardID := range state.Cards {
		cardIDs = append(cardIDs, cardID)
	}
	sort.Strings(cardIDs)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Board cards:", cardIDs)
	return nil
}
