// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package spiregs

import (
	"testing"

	"github.com/maruel/detectord/seqengine"
)

var _ seqengine.RegisterWriter = (*FPGA)(nil)

func TestFPGAWriteConfigArmStop(t *testing.T) {
	c := newFakeConn()
	tr := newTransport(c, nil)
	f := NewFPGA(tr)
	if err := f.WriteConfig(seqengine.Single); err != nil {
		t.Fatal(err)
	}
	if err := f.WriteArm(seqengine.Single); err != nil {
		t.Fatal(err)
	}
	if err := f.WriteStop(); err != nil {
		t.Fatal(err)
	}
	if c.regs[RegScanConfig] != modeWord(cmdConfig, seqengine.Single) {
		t.Fatalf("config register = %#x, want %#x", c.regs[RegScanConfig], modeWord(cmdConfig, seqengine.Single))
	}
	if c.regs[RegScanArm] != modeWord(cmdArm, seqengine.Single) {
		t.Fatalf("arm register = %#x, want %#x", c.regs[RegScanArm], modeWord(cmdArm, seqengine.Single))
	}
	if c.regs[RegScanStop] != cmdStop {
		t.Fatalf("stop register = %#x, want %#x", c.regs[RegScanStop], cmdStop)
	}
}

func TestFPGAWriteConfigArmEncodesScanMode(t *testing.T) {
	for _, mode := range []seqengine.Mode{seqengine.Single, seqengine.Continuous, seqengine.Calibration} {
		c := newFakeConn()
		tr := newTransport(c, nil)
		f := NewFPGA(tr)
		if err := f.WriteConfig(mode); err != nil {
			t.Fatal(err)
		}
		if err := f.WriteArm(mode); err != nil {
			t.Fatal(err)
		}
		gotConfigMode := seqengine.Mode((c.regs[RegScanConfig] & modeMask) >> 2)
		if gotConfigMode != mode {
			t.Fatalf("mode %s: config register mode bits = %s, want %s", mode, gotConfigMode, mode)
		}
		gotArmMode := seqengine.Mode((c.regs[RegScanArm] & modeMask) >> 2)
		if gotArmMode != mode {
			t.Fatalf("mode %s: arm register mode bits = %s, want %s", mode, gotArmMode, mode)
		}
	}
}

func TestFPGAReadTemperature(t *testing.T) {
	c := newFakeConn()
	c.regs[RegTemperature] = uint16(int16(-55)) // -5.5C as tenths of a degree.
	tr := newTransport(c, nil)
	f := NewFPGA(tr)
	got, err := f.ReadTemperature()
	if err != nil {
		t.Fatal(err)
	}
	if got != -55 {
		t.Fatalf("ReadTemperature() = %d, want -55", got)
	}
}
