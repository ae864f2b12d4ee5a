// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package frameproto

import "errors"

// ErrEmptyPayloadCap is returned when the configured per-packet payload
// budget is not positive.
var ErrEmptyPayloadCap = errors.New("frameproto: payload cap must be > 0")

// Packet is one fragment of an encoded frame: a complete header followed
// by this fragment's share of the payload.
type Packet struct {
	Header  FrameHeader
	Payload []byte
}

// Fragment splits payload into the packets needed to carry it, given a
// per-packet payload cap (the configured MTU budget minus HeaderSize).
// Packet i (0-indexed) carries payload bytes [i*cap, min((i+1)*cap,
// len(payload))). A zero-length payload still yields exactly one packet.
func Fragment(frameNumber uint32, payload []byte, cap_ int, timestampNs uint64) ([]Packet, error) {
	if cap_ <= 0 {
		return nil, ErrEmptyPayloadCap
	}
	n := len(payload)
	total := (n + cap_ - 1) / cap_
	if total == 0 {
		total = 1
	}
	packets := make([]Packet, total)
	for i := 0; i < total; i++ {
		start := i * cap_
		end := start + cap_
		if end > n {
			end = n
		}
		var flags uint16
		if i == 0 {
			flags |= FlagFirstPacket
		}
		if i == total-1 {
			flags |= FlagLastPacket
		}
		packets[i] = Packet{
			Header: FrameHeader{
				FrameNumber:  frameNumber,
				PacketIndex:  uint16(i),
				TotalPackets: uint16(total),
				PayloadLen:   uint16(end - start),
				Flags:        flags,
				TimestampNs:  timestampNs,
			},
			Payload: payload[start:end],
		}
	}
	return packets, nil
}

// Encoded returns the wire bytes (header + payload) for packet p. buf, if
// non-nil and large enough, is reused to avoid an allocation; otherwise a
// new buffer is allocated.
func Encoded(p Packet, buf []byte) []byte {
	need := HeaderSize + len(p.Payload)
	if cap(buf) < need {
		buf = make([]byte, need)
	} else {
		buf = buf[:need]
	}
	Encode(&p.Header, buf[:HeaderSize])
	copy(buf[HeaderSize:], p.Payload)
	return buf
}
