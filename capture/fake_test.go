// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package capture

import (
	"testing"
	"time"
)

func TestFakeSourceProducesExpectedSize(t *testing.T) {
	f := NewFakeSource(64, 64, time.Millisecond)
	frame, err := f.Capture(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame.Payload) != 64*64*2 {
		t.Fatalf("payload len = %d, want %d", len(frame.Payload), 64*64*2)
	}
	if frame.BytesUsed != len(frame.Payload) {
		t.Fatalf("bytes_used = %d, want %d", frame.BytesUsed, len(frame.Payload))
	}
}

func TestFakeSourceSequenceIncrements(t *testing.T) {
	f := NewFakeSource(8, 8, time.Millisecond)
	f1, _ := f.Capture(0)
	f2, _ := f.Capture(0)
	if f2.Sequence != f1.Sequence+1 {
		t.Fatalf("sequence = %d, want %d", f2.Sequence, f1.Sequence+1)
	}
}

func TestFakeSourceReleaseIsNoop(t *testing.T) {
	f := NewFakeSource(8, 8, time.Millisecond)
	frame, _ := f.Capture(0)
	if err := f.Release(frame); err != nil {
		t.Fatal(err)
	}
}
