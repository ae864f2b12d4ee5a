// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stats implements the daemon-wide named-counter aggregator.
//
// A single Registry instance is shared by every subsystem (frame ring,
// sequence engine, frame protocol, control protocol, watchdog). Get is
// lock-free; Add holds a shared read lock around its atomic update, and
// Snapshot takes the exclusive write lock across every counter read so
// GET_STATUS always observes one globally ordered point, never a mix of
// before/after values from a concurrent Add.
package stats

import (
	"sync"
	"sync/atomic"
)

// Names of the well-known counters tracked by the daemon. Unknown names
// passed to Registry.Add are silently ignored.
const (
	FramesReceived = "frames_received"
	FramesSent     = "frames_sent"
	FramesDropped  = "frames_dropped"
	Overruns       = "overruns"
	SPIErrors      = "spi_errors"
	CSI2Errors     = "csi2_errors"
	PacketsSent    = "packets_sent"
	BytesSent      = "bytes_sent"
	AuthFailures   = "auth_failures"
	WatchdogResets = "watchdog_resets"
)

var names = []string{
	FramesReceived,
	FramesSent,
	FramesDropped,
	Overruns,
	SPIErrors,
	CSI2Errors,
	PacketsSent,
	BytesSent,
	AuthFailures,
	WatchdogResets,
}

// Snapshot is a point-in-time read of every named counter.
type Snapshot struct {
	FramesReceived uint64
	FramesSent     uint64
	FramesDropped  uint64
	Overruns       uint64
	SPIErrors      uint64
	CSI2Errors     uint64
	PacketsSent    uint64
	BytesSent      uint64
	AuthFailures   uint64
	WatchdogResets uint64
}

// Registry holds the daemon's named 64 bit counters.
//
// All counters are monotonic non-decreasing under normal operation; a
// negative delta that would push a counter below zero instead saturates it
// at zero.
type Registry struct {
	// snapMu serializes Snapshot against Add: Add holds it for reading
	// (many concurrent writers still only ever touch their own counter via
	// atomic ops), Snapshot holds it for writing so no Add can land
	// between two of Snapshot's counter reads. This gives Snapshot one
	// globally ordered point instead of N independently-timed reads.
	snapMu   sync.RWMutex
	counters map[string]*uint64
}

// New returns a Registry with every well-known counter initialized to zero.
func New() *Registry {
	r := &Registry{counters: make(map[string]*uint64, len(names))}
	for _, n := range names {
		var v uint64
		r.counters[n] = &v
	}
	return r
}

// Add applies delta to the named counter. Unknown names are ignored.
//
// A negative delta larger in magnitude than the current value saturates
// the counter at zero rather than wrapping.
func (r *Registry) Add(name string, delta int64) {
	p, ok := r.counters[name]
	if !ok {
		return
	}
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	if delta >= 0 {
		atomic.AddUint64(p, uint64(delta))
		return
	}
	sub := uint64(-delta)
	for {
		cur := atomic.LoadUint64(p)
		var next uint64
		if sub >= cur {
			next = 0
		} else {
			next = cur - sub
		}
		if atomic.CompareAndSwapUint64(p, cur, next) {
			return
		}
	}
}

// Get reads a single named counter. Unknown names return 0.
func (r *Registry) Get(name string) uint64 {
	p, ok := r.counters[name]
	if !ok {
		return 0
	}
	return atomic.LoadUint64(p)
}

// Snapshot reads every counter from one consistent point in time: no Add
// can be in flight while Snapshot holds its exclusive lock, so the
// returned value is never a mix of before/after states across counters.
func (r *Registry) Snapshot() Snapshot {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	return Snapshot{
		FramesReceived: atomic.LoadUint64(r.counters[FramesReceived]),
		FramesSent:     atomic.LoadUint64(r.counters[FramesSent]),
		FramesDropped:  atomic.LoadUint64(r.counters[FramesDropped]),
		Overruns:       atomic.LoadUint64(r.counters[Overruns]),
		SPIErrors:      atomic.LoadUint64(r.counters[SPIErrors]),
		CSI2Errors:     atomic.LoadUint64(r.counters[CSI2Errors]),
		PacketsSent:    atomic.LoadUint64(r.counters[PacketsSent]),
		BytesSent:      atomic.LoadUint64(r.counters[BytesSent]),
		AuthFailures:   atomic.LoadUint64(r.counters[AuthFailures]),
		WatchdogResets: atomic.LoadUint64(r.counters[WatchdogResets]),
	}
}
