// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package spiregs

// TemperatureReader is the FPGA temperature-telemetry collaborator
// GET_STATUS reads from (§6): tenths of a degree Celsius. *FPGA
// implements it over the real SPI transport; FakeTemperatureReader
// stands in for it when no SPI hardware is bound, in the same spirit as
// capture.FakeSource and battery.FakeReader.
type TemperatureReader interface {
	ReadTemperature() (int16, error)
}

// FakeTemperatureReader always returns a fixed tenths-of-a-degree value.
type FakeTemperatureReader struct {
	TenthsC int16
	Err     error
}

// ReadTemperature returns the configured fixed reading, or Err if set.
func (f *FakeTemperatureReader) ReadTemperature() (int16, error) {
	return f.TenthsC, f.Err
}
