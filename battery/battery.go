// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package battery defines the battery-gauge collaborator and a
// once-a-second caching poller: the SMBus transport itself (the
// bq40z50 fuel gauge) is out of this repository's scope, but the state
// of charge and voltage it reports are in scope as GET_STATUS payload
// fields, so the status snapshotter needs a cheap, non-blocking read.
package battery

import (
	"sync"
	"time"
)

// Reader is the battery-gauge collaborator.
type Reader interface {
	ReadSoC() (percent uint8, millivolts uint16, err error)
}

// PollInterval is how often Gauge refreshes its cached reading.
const PollInterval = time.Second

// Gauge polls a Reader on a fixed interval and serves the last-known
// reading to callers without blocking on the transport, matching the
// status snapshotter's "reads cached values only" requirement.
type Gauge struct {
	reader Reader

	mu         sync.Mutex
	percent    uint8
	millivolts uint16
	lastErr    error

	stop chan struct{}
	done chan struct{}
}

// NewGauge returns a Gauge that has not yet polled; call Start to begin
// the background refresh loop.
func NewGauge(reader Reader) *Gauge {
	return &Gauge{reader: reader}
}

// Start launches the background polling goroutine. tick may be nil to
// use time.Tick at PollInterval; tests inject a faster ticker.
func (g *Gauge) Start(tick <-chan time.Time) {
	if tick == nil {
		tick = time.Tick(PollInterval)
	}
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	g.refresh()
	go func() {
		defer close(g.done)
		for {
			select {
			case <-tick:
				g.refresh()
			case <-g.stop:
				return
			}
		}
	}()
}

// Stop halts the background polling goroutine and waits for it to exit.
func (g *Gauge) Stop() {
	if g.stop == nil {
		return
	}
	close(g.stop)
	<-g.done
}

func (g *Gauge) refresh() {
	percent, millivolts, err := g.reader.ReadSoC()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.lastErr = err
		return
	}
	g.percent = percent
	g.millivolts = millivolts
	g.lastErr = nil
}

// Cached returns the most recently polled reading without touching the
// transport; err is non-nil if the most recent poll itself failed.
func (g *Gauge) Cached() (percent uint8, millivolts uint16, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.percent, g.millivolts, g.lastErr
}
