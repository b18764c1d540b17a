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
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
	"github.com/AleutianAI/meetingcanvas/services/realtime/research"
)

var (
	researchLocation string
	researchMonth    int
	researchYears    int
)

// researchCmd runs one built-in research tool directly, outside any
// meeting session. Useful for checking upstream API availability.
var researchCmd = &cobra.Command{
	Use:   "research [tool]",
	Short: "Run a single research tool and print its result",
	Long: `Executes one registered research tool against the live upstream API
and prints the result as JSON.

Examples:
  meetingcanvas research weather.history_by_month --location "Portland, OR" --month 3
  meetingcanvas research news.headlines_by_month --month 11`,
	Args: cobra.ExactArgs(1),
	RunE: runResearchCommand,
}

func init() {
	researchCmd.Flags().StringVar(&researchLocation, "location", "Seattle", "Location the tool should resolve")
	researchCmd.Flags().IntVar(&researchMonth, "month", int(time.Now().Month()), "Month of interest (1-12)")
	researchCmd.Flags().IntVar(&researchYears, "years", 5, "Years of history to aggregate")
	rootCmd.AddCommand(researchCmd)
}

func runResearchCommand(cmd *cobra.Command, args []string) error {
	registry := research.DefaultRegistry(nil)

	task := datatypes.ResearchTask{
		TaskID:   uuid.NewString(),
		ToolName: args[0],
		Args: map[string]any{
			"location": researchLocation,
			"month":    researchMonth,
			"years":    researchYears,
		},
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()
	result, err := registry.RunTask(ctx, task, false)
	if err != nil {
		return fmt.Errorf("research tool %s failed: %w", args[0], err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
