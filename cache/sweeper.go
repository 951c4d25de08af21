// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper begins periodic TTL sweeping at the given interval.
//
// The sweeper runs SweepExpired, which shares the on-access expiry path,
// so a background reclaim and a foreground read can never disagree about
// whether an entry is alive. Safe to call once; subsequent calls while a
// sweeper is running are no-ops.
func (g *Engine) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}

	g.mu.Lock()
	if g.sweepStop != nil {
		g.mu.Unlock()
		return
	}
	g.sweepStop = make(chan struct{})
	g.sweepDone = make(chan struct{})
	stop, done := g.sweepStop, g.sweepDone
	g.mu.Unlock()

	go g.runSweeper(interval, stop, done)
}

// StopSweeper halts the background sweeper and waits for it to finish.
// Safe to call without a running sweeper.
func (g *Engine) StopSweeper() {
	g.mu.Lock()
	stop, done := g.sweepStop, g.sweepDone
	g.sweepStop = nil
	g.sweepDone = nil
	g.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (g *Engine) runSweeper(interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := g.SweepExpired(context.Background()); n > 0 {
				g.logger.Debug("ttl sweep reclaimed entries", slog.Int("count", n))
			}
		}
	}
}
