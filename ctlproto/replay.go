// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ctlproto

import "sync"

// replayCapacity bounds the number of distinct source addresses tracked
// at once; a 17th unseen source is rejected rather than evicting an
// existing one.
const replayCapacity = 16

// ReplayGuard is the per-source anti-replay admission table. It is
// exclusively owned by the control protocol dispatcher; nothing else
// mutates it. The zero value is not usable; use NewReplayGuard.
type ReplayGuard struct {
	mu   sync.Mutex
	last map[string]uint32
}

// NewReplayGuard returns an empty guard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{last: make(map[string]uint32, replayCapacity)}
}

// Admit reports whether sequence is acceptable from source: strictly
// greater than the last sequence accepted from that source, or the
// source's first sighting and a free table slot exists. On acceptance
// the source's last-accepted sequence is advanced to sequence
// immediately; there is no separate confirm step, since the spec
// observes that replay admission is not idempotent and the worked
// scenario never distinguishes "admitted" from "dispatched
// successfully" for replay-table purposes.
func (g *ReplayGuard) Admit(source string, sequence uint32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.last[source]; ok {
		if sequence <= last {
			return false
		}
		g.last[source] = sequence
		return true
	}
	if len(g.last) >= replayCapacity {
		return false
	}
	g.last[source] = sequence
	return true
}

// Len reports the number of distinct sources currently tracked.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
