// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frameproto

import "testing"

func TestFragmentBasicScenario(t *testing.T) {
	// rows=2048, cols=2048, bit_depth=16, P=8160 (=8192-32).
	// N = 8_388_608 bytes; ceil(N/8160) = 1029, and the last packet carries
	// 8_388_608 - 1028*8160 = 128 bytes.
	const rows, cols = 2048, 2048
	payload := make([]byte, rows*cols*2)
	packets, err := Fragment(1, payload, 8160, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 1029 {
		t.Fatalf("total_packets = %d, want 1029", len(packets))
	}
	first := packets[0]
	if first.Header.Flags&FlagFirstPacket == 0 || first.Header.Flags&FlagLastPacket != 0 {
		t.Fatalf("packet 0 flags = %x, want FIRST only", first.Header.Flags)
	}
	if first.Header.PayloadLen != 8160 {
		t.Fatalf("packet 0 payload_len = %d, want 8160", first.Header.PayloadLen)
	}
	last := packets[1028]
	if last.Header.Flags&FlagLastPacket == 0 || last.Header.Flags&FlagFirstPacket != 0 {
		t.Fatalf("packet 1028 flags = %x, want LAST only", last.Header.Flags)
	}
	if last.Header.PayloadLen != 128 {
		t.Fatalf("packet 1028 payload_len = %d, want 128", last.Header.PayloadLen)
	}
}

func TestFragmentExactMultipleYieldsOnePacketWithBothFlags(t *testing.T) {
	payload := make([]byte, 100)
	packets, err := Fragment(1, payload, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 1 {
		t.Fatalf("total_packets = %d, want 1", len(packets))
	}
	want := FlagFirstPacket | FlagLastPacket
	if packets[0].Header.Flags != want {
		t.Fatalf("flags = %x, want %x", packets[0].Header.Flags, want)
	}
}

func TestFragmentOneByteOverCapYieldsTwoPackets(t *testing.T) {
	payload := make([]byte, 101)
	packets, err := Fragment(1, payload, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 2 {
		t.Fatalf("total_packets = %d, want 2", len(packets))
	}
	if packets[0].Header.PayloadLen != 100 {
		t.Fatalf("packet 0 payload_len = %d, want 100", packets[0].Header.PayloadLen)
	}
	if packets[1].Header.PayloadLen != 1 {
		t.Fatalf("packet 1 payload_len = %d, want 1", packets[1].Header.PayloadLen)
	}
}

func TestFragmentEmptyPayloadYieldsOnePacket(t *testing.T) {
	packets, err := Fragment(1, nil, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(packets) != 1 {
		t.Fatalf("total_packets = %d, want 1", len(packets))
	}
	want := FlagFirstPacket | FlagLastPacket
	if packets[0].Header.Flags != want {
		t.Fatalf("flags = %x, want %x", packets[0].Header.Flags, want)
	}
}

func TestFragmentFrameNumberWrap(t *testing.T) {
	packets, err := Fragment(0xFFFFFFFF, make([]byte, 1), 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if packets[0].Header.FrameNumber != 0xFFFFFFFF {
		t.Fatalf("frame_number = %d", packets[0].Header.FrameNumber)
	}
}

func TestFragmentRejectsNonPositiveCap(t *testing.T) {
	if _, err := Fragment(0, make([]byte, 10), 0, 0); err != ErrEmptyPayloadCap {
		t.Fatalf("got %v, want ErrEmptyPayloadCap", err)
	}
}

func TestEncodedRoundTrip(t *testing.T) {
	packets, err := Fragment(7, []byte("hello world"), 5, 42)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range packets {
		buf := Encoded(p, nil)
		h, valid, err := Decode(buf[:HeaderSize])
		if err != nil {
			t.Fatal(err)
		}
		if !valid {
			t.Fatal("expected crc_valid = true")
		}
		if h.PayloadLen != uint16(len(p.Payload)) {
			t.Fatalf("payload_len mismatch: %d vs %d", h.PayloadLen, len(p.Payload))
		}
		gotPayload := buf[HeaderSize:]
		if string(gotPayload) != string(p.Payload) {
			t.Fatalf("payload mismatch: %q vs %q", gotPayload, p.Payload)
		}
	}
}
