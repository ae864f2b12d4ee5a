// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package spiregs implements the write-then-read-verify register
// transport used to program the detector's FPGA over SPI.
//
// It wraps a periph.io/x/periph/conn/mmr.Dev8 8-bit register space rather
// than driving spidev ioctls directly, the way lepton/bus.go's SPI type
// does: periph already abstracts bus acquisition, chip-select and speed
// negotiation across platforms, so there is no reason to hand-roll it
// again here.
package spiregs

import (
	"errors"

	"github.com/maruel/detectord/stats"
	"periph.io/x/periph/conn/mmr"
)

// MaxWriteAttempts bounds the write-then-read-verify retry loop.
const MaxWriteAttempts = 3

// ErrVerifyFailed is returned once a register write fails its readback
// check MaxWriteAttempts times in a row.
var ErrVerifyFailed = errors.New("spiregs: write verify failed after retries")

// Transport is the register-level collaborator the Sequence Engine uses
// to drive the FPGA (the seqengine.RegisterWriter implementations are
// built on top of it). reg is a periph mmr.Dev8 bound to an SPI conn.Conn.
type Transport struct {
	reg     mmr.Dev8
	statist *stats.Registry
}

// New wraps reg for register access with write-verify retries. statistics
// may be nil to disable counter updates.
func New(reg mmr.Dev8, statistics *stats.Registry) *Transport {
	return &Transport{reg: reg, statist: statistics}
}

// RegRead reads the 16 bit register at addr.
func (t *Transport) RegRead(addr uint8) (uint16, error) {
	v, err := t.reg.ReadUint16(addr)
	if err != nil {
		t.addStat(stats.SPIErrors, 1)
	}
	return v, err
}

// RegWrite writes data to the register at addr, then reads it back to
// confirm the value latched; on mismatch it retries up to
// MaxWriteAttempts times before giving up with ErrVerifyFailed. This is
// the same write-then-getFlag-verify shape as lepton/bus.go's
// SPI.setFlag, generalized to a bounded retry instead of a single
// immediate failure.
func (t *Transport) RegWrite(addr uint8, data uint16) error {
	var lastErr error
	for attempt := 0; attempt < MaxWriteAttempts; attempt++ {
		if err := t.reg.WriteUint16(addr, data); err != nil {
			lastErr = err
			t.addStat(stats.SPIErrors, 1)
			continue
		}
		readBack, err := t.reg.ReadUint16(addr)
		if err != nil {
			lastErr = err
			t.addStat(stats.SPIErrors, 1)
			continue
		}
		if readBack == data {
			return nil
		}
		lastErr = ErrVerifyFailed
		t.addStat(stats.SPIErrors, 1)
	}
	if lastErr == nil {
		lastErr = ErrVerifyFailed
	}
	return lastErr
}

func (t *Transport) addStat(name string, delta int64) {
	if t.statist != nil {
		t.statist.Add(name, delta)
	}
}
