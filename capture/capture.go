// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package capture defines the frame-producer collaborator: the opaque
// kernel video-capture dequeue mechanism the core treats as a bounded
// blocking source of fixed-format raster frames (§6). The real
// implementation (V4L2/CSI-2 dequeue, memory-mapped buffers) is out of
// this repository's scope; this package only fixes the interface and
// supplies a synthetic, hardware-free Source for development and tests.
package capture

import "errors"

// ErrTimeout is returned by Source.Capture when no frame became
// available within the requested window.
var ErrTimeout = errors.New("capture: timed out waiting for a frame")

// Frame is one dequeued raster: Payload is the opaque 16-bit-per-pixel
// buffer at the configured rows x cols, BytesUsed is the portion
// actually written by the producer, Sequence is the producer's own
// monotonic frame counter, and TimestampNs is the capture timestamp.
type Frame struct {
	Payload     []byte
	BytesUsed   int
	Sequence    uint32
	TimestampNs uint64
}

// Source is the frame-producer collaborator. Capture blocks up to
// timeoutMs waiting for the next frame; Release returns a Frame's buffer
// to the producer's pool once the core is done copying it into the ring.
type Source interface {
	Capture(timeoutMs int) (Frame, error)
	Release(f Frame) error
}
