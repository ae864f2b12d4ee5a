// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"math/rand"
	"time"
)

// vector is one moving hotspot in the synthetic raster, the same
// technique lepton/fake_lepton.go uses to fake a thermal scene: a handful
// of Gaussian blobs that drift frame to frame.
type vector struct {
	intensity float64
	x, y      float64
}

// FakeSource generates synthetic rows x cols 16-bit-per-pixel frames at
// roughly the given frame period, for development and tests without a
// detector attached.
type FakeSource struct {
	rows, cols int
	period     time.Duration
	rnd        *rand.Rand
	vectors    []vector
	seq        uint32
}

// NewFakeSource returns a FakeSource producing frames of rows x cols
// pixels no faster than period apart.
func NewFakeSource(rows, cols int, period time.Duration) *FakeSource {
	f := &FakeSource{rows: rows, cols: cols, period: period, rnd: rand.New(rand.NewSource(0))}
	f.vectors = make([]vector, 10)
	for i := range f.vectors {
		f.vectors[i].intensity = f.rnd.NormFloat64() * 1000
		f.vectors[i].x = f.rnd.NormFloat64()*float64(cols)/6 + float64(cols)/2
		f.vectors[i].y = f.rnd.NormFloat64()*float64(rows)/6 + float64(rows)/2
	}
	return f
}

// Capture ignores timeoutMs (generation is always fast enough) and
// returns the next synthetic frame after pacing to period.
func (f *FakeSource) Capture(timeoutMs int) (Frame, error) {
	time.Sleep(f.period)
	for i := range f.vectors {
		f.vectors[i].intensity += f.rnd.NormFloat64() * 10
		f.vectors[i].x += f.rnd.NormFloat64()
		f.vectors[i].y += f.rnd.NormFloat64()
	}
	buf := make([]byte, f.rows*f.cols*2)
	const base = 8192
	const dynamicRange = 2048
	idx := 0
	for y := 0; y < f.rows; y++ {
		fy := float64(y)
		for x := 0; x < f.cols; x++ {
			fx := float64(x)
			value := float64(base)
			for _, v := range f.vectors {
				dist := (v.x-fx)*(v.x-fx) + (v.y-fy)*(v.y-fy) + 1
				value += v.intensity / dist
			}
			if value > base+dynamicRange {
				value = base + dynamicRange
			}
			if value < base-dynamicRange {
				value = base - dynamicRange
			}
			px := uint16(value)
			buf[idx] = byte(px)
			buf[idx+1] = byte(px >> 8)
			idx += 2
		}
	}
	f.seq++
	return Frame{
		Payload:     buf,
		BytesUsed:   len(buf),
		Sequence:    f.seq,
		TimestampNs: uint64(time.Now().UnixNano()),
	}, nil
}

// Release is a no-op: FakeSource allocates a fresh buffer per frame.
func (f *FakeSource) Release(frame Frame) error {
	return nil
}
