// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package watchdog implements the daemon's liveness window.
//
// Every subsystem is expected to Pet() the watchdog roughly once a second;
// IsAlive reports false once more than 5 seconds elapse without a Pet. The
// transition from alive to not-alive increments the watchdog_resets
// counter; going back to alive on a later Pet is idempotent.
package watchdog

import (
	"sync/atomic"
	"time"

	"github.com/maruel/detectord/stats"
)

// Timeout is the maximum silence tolerated before the watchdog considers
// the daemon unhealthy.
const Timeout = 5 * time.Second

// Clock abstracts time.Now so tests can control the passage of time
// without sleeping.
type Clock func() time.Time

// Watchdog tracks the last pet time and exposes a liveness query.
type Watchdog struct {
	now        Clock
	lastPetNs  int64
	wasAlive   int32 // 0 or 1, guards the alive->dead transition counting.
	statistics *stats.Registry
}

// New returns a Watchdog that starts alive, as if petted at construction
// time.
func New(statistics *stats.Registry) *Watchdog {
	w := &Watchdog{now: time.Now, statistics: statistics}
	w.lastPetNs = w.now().UnixNano()
	w.wasAlive = 1
	return w
}

// SetClock overrides the time source. Used by tests.
func (w *Watchdog) SetClock(c Clock) {
	w.now = c
}

// Pet records a liveness signal at the current time.
func (w *Watchdog) Pet() {
	atomic.StoreInt64(&w.lastPetNs, w.now().UnixNano())
	// Recovering from not-alive is idempotent: only flip the flag, no
	// counter increment on the way back up.
	atomic.StoreInt32(&w.wasAlive, 1)
}

// IsAlive reports whether the last Pet happened within Timeout of now. The
// first observed transition from alive to not-alive increments
// stats.WatchdogResets.
func (w *Watchdog) IsAlive() bool {
	last := atomic.LoadInt64(&w.lastPetNs)
	elapsed := w.now().Sub(time.Unix(0, last))
	alive := elapsed <= Timeout
	if !alive {
		if atomic.CompareAndSwapInt32(&w.wasAlive, 1, 0) && w.statistics != nil {
			w.statistics.Add(stats.WatchdogResets, 1)
		}
	}
	return alive
}

// LastPet returns the time of the most recent Pet.
func (w *Watchdog) LastPet() time.Time {
	return time.Unix(0, atomic.LoadInt64(&w.lastPetNs))
}
