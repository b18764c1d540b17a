// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package research executes external data-fetch tasks (historical
// weather, news headlines) through an explicit tool registry. Browsing
// can be disabled per session; browse-requiring tools then refuse to
// run instead of failing silently.
package research

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/realtime/datatypes"
)

// ErrExternalResearchDisabled is returned when a browse-requiring tool
// runs in a no-browse session.
var ErrExternalResearchDisabled = errors.New("external research is disabled (no_browse=true)")

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ToolResult is one tool invocation's payload plus its source citations.
type ToolResult struct {
	Data      datatypes.ResearchPayload
	Citations []datatypes.Citation
}

// ToolHandler executes one tool call with already-validated args.
type ToolHandler func(ctx context.Context, args map[string]any) (ToolResult, error)

// Tool is a named research capability.
type Tool struct {
	Name           string
	RequiresBrowse bool
	Handler        ToolHandler
}

// Registry maps tool names to implementations. Construct one per
// process; there is no package-level default.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(tool Tool) error {
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// ToolNames lists registered tools in sorted order.
func (r *Registry) ToolNames() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run invokes the named tool, enforcing the browse policy.
func (r *Registry) Run(ctx context.Context, toolName string, args map[string]any, noBrowse bool) (ToolResult, error) {
	tool, ok := r.tools[toolName]
	if !ok {
		return ToolResult{}, fmt.Errorf("unknown research tool: %s", toolName)
	}
	if tool.RequiresBrowse && noBrowse {
		return ToolResult{}, ErrExternalResearchDisabled
	}
	return tool.Handler(ctx, args)
}

// DefaultRegistry returns a registry with the built-in tools wired to
// client. A nil client gets a default with a sane timeout.
func DefaultRegistry(client HTTPClient) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	registry := NewRegistry()

	weather := &WeatherTool{Client: client}
	headlines := &HeadlinesTool{Client: client}

	// Registration of built-ins cannot collide.
	_ = registry.Register(Tool{
		Name:           "weather.history_by_month",
		RequiresBrowse: true,
		Handler:        weather.Handle,
	})
	_ = registry.Register(Tool{
		Name:           "news.headlines_by_month",
		RequiresBrowse: true,
		Handler:        headlines.Handle,
	})
	return registry
}

// RunTask executes one ResearchTask: named tools dispatch through the
// registry; legacy kind-tagged tasks route to the matching built-in.
func (r *Registry) RunTask(ctx context.Context, task datatypes.ResearchTask, noBrowse bool) (datatypes.ResearchResult, error) {
	if noBrowse {
		return datatypes.ResearchResult{}, ErrExternalResearchDisabled
	}

	toolName := task.ToolName
	args := task.Args

	if toolName == "" {
		switch task.Kind {
		case datatypes.ResearchKindWeatherDecemberHistory:
			if task.Location == "" {
				return datatypes.ResearchResult{}, errors.New("location is required for weather history research")
			}
			years := task.Years
			if years == 0 {
				years = 10
			}
			toolName = "weather.history_by_month"
			args = map[string]any{"location": task.Location, "month": 12, "years": years}
		case datatypes.ResearchKindDecemberHeadlines:
			years := task.Years
			if years == 0 {
				years = 5
			}
			toolName = "news.headlines_by_month"
			args = map[string]any{"query": task.Query, "month": 12, "years": years}
		default:
			return datatypes.ResearchResult{}, fmt.Errorf("unsupported research kind: %s", task.Kind)
		}
	}

	result, err := r.Run(ctx, toolName, args, noBrowse)
	if err != nil {
		return datatypes.ResearchResult{}, err
	}
	return datatypes.ResearchResult{
		TaskID:    task.TaskID,
		Result:    result.Data,
		Citations: result.Citations,
	}, nil
}
