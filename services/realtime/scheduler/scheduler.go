// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scheduler provides a coalescing single-flight runner: any
// number of Request calls while a round is in flight collapse into
// exactly one more round, and consecutive rounds are paced by a minimum
// interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner drives one background task. The run function observes fresh
// state on every round, so coalescing loses no information.
type Runner struct {
	name        string
	minInterval time.Duration
	run         func(ctx context.Context)
	logger      *slog.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration)

	mu        sync.Mutex
	pending   bool
	running   bool
	lastStart time.Time
}

// NewRunner returns an idle Runner. run must not panic; it is invoked on
// a goroutine owned by the Runner.
func NewRunner(name string, minInterval time.Duration, run func(ctx context.Context), logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		name:        name,
		minInterval: minInterval,
		run:         run,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Request marks work pending and starts the loop if it is idle. Safe to
// call from any goroutine; calls during an in-flight round coalesce.
func (r *Runner) Request(ctx context.Context) {
	r.mu.Lock()
	r.pending = true
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go r.loop(ctx)
}

func (r *Runner) loop(ctx context.Context) {
	for {
		r.mu.Lock()
		if !r.pending || ctx.Err() != nil {
			r.running = false
			r.mu.Unlock()
			return
		}
		r.pending = false
		delay := r.minInterval - r.now().Sub(r.lastStart)
		r.mu.Unlock()

		if delay > 0 {
			r.sleep(ctx, delay)
			if ctx.Err() != nil {
				continue
			}
		}

		r.mu.Lock()
		r.lastStart = r.now()
		r.mu.Unlock()

		r.logger.Debug("runner round starting", "runner", r.name)
		r.run(ctx)
	}
}
