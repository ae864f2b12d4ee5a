// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package spiregs

import "github.com/maruel/detectord/seqengine"

// Register addresses on the acquisition FPGA's control block. The exact
// layout is a hardware detail outside this repository's scope; these are
// the three registers the Sequence Engine needs to drive a scan, plus
// the read-only status register exposing temperature telemetry for
// GET_STATUS.
const (
	RegScanConfig  uint8 = 0x00
	RegScanArm     uint8 = 0x02
	RegScanStop    uint8 = 0x04
	RegTemperature uint8 = 0x06
)

// Command words written to the control registers to trigger each
// transition. The values themselves are arbitrary placeholders for the
// real FPGA bitstream's register map. Bits 2-3 are reserved for the scan
// mode (§6: 0=SINGLE, 1=CONTINUOUS, 2=CALIBRATION); modeWord masks them
// out of the placeholder word before OR-ing in the scan's actual mode.
const (
	cmdConfig uint16 = 0xC0F6
	cmdArm    uint16 = 0xA44D
	cmdStop   uint16 = 0x5704

	modeMask uint16 = 0x000C
)

// modeWord clears base's mode bits (2-3) and sets them to mode.
func modeWord(base uint16, mode seqengine.Mode) uint16 {
	return (base &^ modeMask) | (uint16(mode)&0x3)<<2
}

// FPGA implements seqengine.RegisterWriter over a Transport, giving the
// Sequence Engine a concrete register-level collaborator instead of the
// package's built-in no-op default.
type FPGA struct {
	tr *Transport
}

var _ TemperatureReader = (*FPGA)(nil)

// NewFPGA wraps tr as a seqengine.RegisterWriter.
func NewFPGA(tr *Transport) *FPGA {
	return &FPGA{tr: tr}
}

// WriteConfig programs the scan configuration registers, encoding mode
// into the control word's bits 2-3, and arms the FPGA's CONFIGURE state.
func (f *FPGA) WriteConfig(mode seqengine.Mode) error {
	return f.tr.RegWrite(RegScanConfig, modeWord(cmdConfig, mode))
}

// WriteArm triggers the FPGA's ARM sequence, re-asserting mode in the
// same bits so a CALIBRATION scan's repeated STREAMING->ARM loop (§4.2)
// never leaves the FPGA holding a stale mode from a previous scan.
func (f *FPGA) WriteArm(mode seqengine.Mode) error {
	return f.tr.RegWrite(RegScanArm, modeWord(cmdArm, mode))
}

// WriteStop aborts any in-flight scan and returns the FPGA to idle.
func (f *FPGA) WriteStop() error {
	return f.tr.RegWrite(RegScanStop, cmdStop)
}

// ReadTemperature reads the FPGA's temperature telemetry register,
// reporting tenths of a degree Celsius per §6's GET_STATUS payload.
func (f *FPGA) ReadTemperature() (int16, error) {
	v, err := f.tr.RegRead(RegTemperature)
	return int16(v), err
}
