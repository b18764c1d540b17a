// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package research

import (
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

// AutoSeedTasks derives research tasks from transcript text when the
// planner proposed none: an explicit ask for December temperatures or
// headlines is common enough to cover without a model round trip.
func AutoSeedTasks(text, defaultLocation string) []datatypes.ResearchTask {
	lower := strings.ToLower(text)
	var tasks []datatypes.ResearchTask

	if strings.Contains(lower, "temperature") && strings.Contains(lower, "december") {
		tasks = append(tasks, datatypes.ResearchTask{
			TaskID:   uuid.NewString(),
			Kind:     datatypes.ResearchKindWeatherDecemberHistory,
			Query:    "December average temperature history (last 10 years)",
			Location: defaultLocation,
			Month:    12,
			Years:    10,
			Assumptions: map[string]any{
				"location_inferred": true,
				"location_value":    defaultLocation,
			},
		})
	}
	if strings.Contains(lower, "headline") && strings.Contains(lower, "december") {
		tasks = append(tasks, datatypes.ResearchTask{
			TaskID:      uuid.NewString(),
			Kind:        datatypes.ResearchKindDecemberHeadlines,
			Query:       defaultLocation + " weather December headline",
			Location:    defaultLocation,
			Month:       12,
			Years:       5,
			Assumptions: map[string]any{"query_auto_seeded": true},
		})
	}
	return tasks
}
