// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package battery

// FakeReader is a hardware-free Reader standing in for the real bq40z50
// SMBus gauge, in the same spirit as lepton/fake_lepton.go.
type FakeReader struct {
	Percent    uint8
	Millivolts uint16
	Err        error
}

// ReadSoC returns the configured fixed reading, or Err if set.
func (f *FakeReader) ReadSoC() (uint8, uint16, error) {
	return f.Percent, f.Millivolts, f.Err
}
