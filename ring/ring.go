// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ring implements the four-slot frame buffer ring shared by the
// capture producer and the network transmit consumer.
//
// The ring never blocks: acquiring a slot to fill always succeeds. Slots
// are addressed by frame_number mod 4, and when the slot a new frame maps
// to is not FREE, the frame held there is dropped, whether or not other
// slots are FREE. This mirrors real-time ingest where falling behind the
// capture rate is preferable to stalling it.
package ring

import (
	"errors"
	"sync"
)

// State is a FrameSlot's position in its lifecycle.
type State int

const (
	Free State = iota
	Filling
	Ready
	Sending
)

func (s State) String() string {
	switch s {
	case Free:
		return "FREE"
	case Filling:
		return "FILLING"
	case Ready:
		return "READY"
	case Sending:
		return "SENDING"
	default:
		return "UNKNOWN"
	}
}

// NumSlots is the fixed number of frame slots in the ring. The spec
// explicitly does not support a different count.
const NumSlots = 4

// ErrInvalidState is returned when an operation's state-contract is
// violated by the caller, e.g. committing a slot that is not FILLING.
var ErrInvalidState = errors.New("ring: invalid slot state for operation")

// ErrNoneReady is returned by AcquireReady when no slot currently holds a
// READY frame. It is an expected, non-error condition for pollers.
var ErrNoneReady = errors.New("ring: no frame ready")

type slot struct {
	state        State
	frameNumber  uint32
	valid        bool // whether frameNumber is meaningful (slot was ever filled)
	payload      []byte
	totalPackets int
	sentPackets  int
}

// Stats mirrors the ring-owned counters from the spec's RuntimeStats.
type Stats struct {
	FramesReceived uint64
	FramesSent     uint64
	FramesDropped  uint64
	Overruns       uint64
}

// Ring is a fixed four-slot producer/consumer frame buffer with an
// oldest-drop admission policy. The zero value is not usable; use New.
type Ring struct {
	mu         sync.Mutex
	slots      [NumSlots]slot
	oldestIdx  int
	stats      Stats
	bufferSize int
}

// New allocates a Ring with four fixed-size payload buffers of
// capacity bytes each (rows * cols * ceil(bitDepth/8), computed by the
// caller).
func New(capacity int) *Ring {
	r := &Ring{bufferSize: capacity}
	for i := range r.slots {
		r.slots[i].payload = make([]byte, capacity)
	}
	return r
}

func indexOf(frameNumber uint32) int {
	return int(frameNumber) % NumSlots
}

// AcquireForFill maps frameNumber to a slot and returns its payload
// buffer for the producer to fill. If the mapped slot is not FREE, the
// oldest-drop policy forcibly frees a victim slot first. This call never
// fails.
func (r *Ring) AcquireForFill(frameNumber uint32) (buffer []byte, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := indexOf(frameNumber)
	if r.slots[idx].state != Free {
		r.forceFreeLocked(idx)
	}
	s := &r.slots[idx]
	s.state = Filling
	s.frameNumber = frameNumber
	s.valid = true
	s.totalPackets = 0
	s.sentPackets = 0
	return s.payload, r.bufferSize
}

// forceFreeLocked implements the oldest-drop admission policy. Because
// frames are addressed by frame_number mod NumSlots, the slot a new
// frame must occupy is always idx itself; there is exactly one physical
// candidate to evict, whatever lifecycle state it is caught in. The
// spec's SENDING > READY > FILLING preference order therefore only
// matters when choosing which in-flight work to sacrifice in a redesign
// with non-deterministic slot assignment; under strict mod-4 addressing
// it degenerates to "evict idx, whatever its state" (confirmed by the
// spec's own worked example, where the victim and the new frame's mapped
// slot coincide). oldestIdx advances when the freed slot was the oldest.
func (r *Ring) forceFreeLocked(idx int) {
	r.slots[idx].state = Free
	r.stats.FramesDropped++
	r.stats.Overruns++
	if idx == r.oldestIdx {
		r.oldestIdx = (r.oldestIdx + 1) % NumSlots
	}
}

// CommitFilled transitions the slot mapped from frameNumber from FILLING
// to READY. It fails with ErrInvalidState if the slot is not FILLING or
// does not currently hold frameNumber (e.g. it was dropped meanwhile).
func (r *Ring) CommitFilled(frameNumber uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(frameNumber)
	s := &r.slots[idx]
	if s.state != Filling || s.frameNumber != frameNumber {
		return ErrInvalidState
	}
	s.state = Ready
	r.stats.FramesReceived++
	return nil
}

// AcquireReady scans for the READY slot holding the smallest
// frame_number (FIFO by producer ordering) and transitions it to
// SENDING. It returns ErrNoneReady, a normal condition, when no slot is
// READY.
func (r *Ring) AcquireReady() (buffer []byte, length int, frameNumber uint32, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := -1
	for step := 0; step < NumSlots; step++ {
		i := (r.oldestIdx + step) % NumSlots
		if r.slots[i].state != Ready {
			continue
		}
		if best == -1 || r.slots[i].frameNumber < r.slots[best].frameNumber {
			best = i
		}
	}
	if best == -1 {
		return nil, 0, 0, ErrNoneReady
	}
	s := &r.slots[best]
	s.state = Sending
	return s.payload, len(s.payload), s.frameNumber, nil
}

// ReleaseSent transitions the slot mapped from frameNumber from SENDING
// to FREE. It fails with ErrInvalidState if the slot is not SENDING or
// does not currently hold frameNumber.
func (r *Ring) ReleaseSent(frameNumber uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(frameNumber)
	s := &r.slots[idx]
	if s.state != Sending || s.frameNumber != frameNumber {
		return ErrInvalidState
	}
	s.state = Free
	r.stats.FramesSent++
	if idx == r.oldestIdx {
		r.oldestIdx = (r.oldestIdx + 1) % NumSlots
	}
	return nil
}

// SnapshotStats returns the ring-owned counters. It never fails.
func (r *Ring) SnapshotStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// SlotState returns the current state of the slot frameNumber maps to;
// useful for tests and diagnostics.
func (r *Ring) SlotState(frameNumber uint32) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[indexOf(frameNumber)].state
}
