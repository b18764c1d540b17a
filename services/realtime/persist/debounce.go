// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/meetingcanvas/services/realtime/observability"
)

// SnapshotFunc returns a fresh snapshot at flush time, so the final
// write of a mutation burst carries the newest state.
type SnapshotFunc func() Snapshot

// DebouncedPersister batches ScheduleSave calls into one store write per
// debounce interval. ScheduleClear preempts any pending save: after a
// reset nothing stale must reach disk.
//
// # Thread Safety
//
// ScheduleSave, ScheduleClear and SaveNow are safe from any goroutine.
// Run must be called exactly once, on its own goroutine.
type DebouncedPersister struct {
	store    KVStore
	snapshot SnapshotFunc
	debounce time.Duration
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)

	mu           sync.Mutex
	pendingSave  bool
	pendingClear bool
	lastOpAt     time.Time

	// wake has capacity 1: repeated schedule calls while a flush is in
	// progress collapse into one wakeup.
	wake chan struct{}
}

// NewDebouncedPersister builds a persister flushing through store. A
// non-positive debounce falls back to the production default.
func NewDebouncedPersister(store KVStore, snapshot SnapshotFunc, debounce time.Duration, logger *slog.Logger) *DebouncedPersister {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DebouncedPersister{
		store:    store,
		snapshot: snapshot,
		debounce: debounce,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
		wake:     make(chan struct{}, 1),
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

// ScheduleSave requests a debounced write of a fresh snapshot.
func (p *DebouncedPersister) ScheduleSave() {
	p.mu.Lock()
	p.pendingSave = true
	p.mu.Unlock()
	p.signal()
}

// ScheduleClear requests removal of all persisted keys, cancelling any
// save scheduled before it.
func (p *DebouncedPersister) ScheduleClear() {
	p.mu.Lock()
	p.pendingClear = true
	p.pendingSave = false
	p.mu.Unlock()
	p.signal()
}

func (p *DebouncedPersister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// SaveNow writes a fresh snapshot immediately, bypassing the debounce.
// Intended for shutdown.
func (p *DebouncedPersister) SaveNow() error {
	values, err := Encode(p.snapshot())
	if err != nil {
		recordWrite("save", err)
		return err
	}
	err = p.store.SetMany(values)
	recordWrite("save", err)
	return err
}

func (p *DebouncedPersister) clearNow() error {
	err := p.store.DeleteMany(AllKeys())
	recordWrite("clear", err)
	return err
}

func recordWrite(op string, err error) {
	m := observability.DefaultMetrics
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.PersistWritesTotal.WithLabelValues(op, status).Inc()
}

// Run services scheduled operations until ctx is cancelled. A trailing
// pending save is flushed on exit so shutdown loses nothing.
func (p *DebouncedPersister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flushPending()
			return
		case <-p.wake:
		}

		p.mu.Lock()
		doClear := p.pendingClear
		doSave := p.pendingSave && !doClear
		p.pendingClear = false
		p.pendingSave = false
		p.mu.Unlock()

		if doSave {
			if delay := p.debounce - p.now().Sub(p.lastOpAt); delay > 0 {
				p.sleep(ctx, delay)
			}
		}
		p.lastOpAt = p.now()

		switch {
		case doClear:
			if err := p.clearNow(); err != nil {
				p.logger.Warn("persisted state clear failed", "error", err)
			}
		case doSave:
			// Snapshot after the debounce window, not before: later
			// mutations in the burst are included.
			if err := p.SaveNow(); err != nil {
				p.logger.Warn("persisted state save failed", "error", err)
			}
		}
	}
}

func (p *DebouncedPersister) flushPending() {
	p.mu.Lock()
	doClear := p.pendingClear
	doSave := p.pendingSave && !doClear
	p.pendingClear = false
	p.pendingSave = false
	p.mu.Unlock()

	if doClear {
		if err := p.clearNow(); err != nil {
			p.logger.Warn("persisted state clear failed", "error", err)
		}
		return
	}
	if doSave {
		if err := p.SaveNow(); err != nil {
			p.logger.Warn("persisted state save failed", "error", err)
		}
	}
}
