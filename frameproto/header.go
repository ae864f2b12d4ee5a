// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package frameproto implements the wire framing used to stream captured
// detector frames to the host: a fixed 32 byte header protected by a
// CRC-16/CCITT checksum, and the fragmentation/reassembly rules that split
// one captured frame across as many UDP packets as the configured MTU
// budget requires.
package frameproto

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed, wire-exact size of FrameHeader.
//
// Layout (all little-endian):
//
//	offset  size  field
//	0       4     magic
//	4       4     frame_number
//	8       2     packet_index
//	10      2     total_packets
//	12      2     payload_len
//	14      2     flags
//	16      4     reserved, always zero
//	20      8     timestamp_ns (monotonic nanoseconds)
//	28      2     crc16, over bytes 0..27
//	30      2     reserved, always zero
//
// The source this daemon is modeled on carried two incompatible ideas of
// this field: a 32 bit timestamp truncated at encode time, and a 64 bit
// nanosecond value used elsewhere. The encode/decode pair here is
// authoritative and keeps the full 8 byte nanosecond value, which is why
// the reserved span at offset 16 shrank from 8 bytes to 4 relative to a
// naively-summed field list: the total header size, and the CRC's
// coverage and position, do not move.
const HeaderSize = 32

// Magic identifies a well-formed frame header.
const Magic uint32 = 0xD7E01234

// Flag bits carried in FrameHeader.Flags.
const (
	FlagFirstPacket   uint16 = 1 << 0
	FlagLastPacket    uint16 = 1 << 1
	FlagDropIndicator uint16 = 1 << 15
)

// ErrInvalidMagic is returned by Decode when the leading 4 bytes don't
// match Magic. Decoding stops immediately; no other field is populated.
var ErrInvalidMagic = errors.New("frameproto: invalid magic")

// ErrShortBuffer is returned by Decode when the input is smaller than
// HeaderSize.
var ErrShortBuffer = errors.New("frameproto: buffer shorter than header")

// FrameHeader is the fixed 32 byte little-endian record prefixed to every
// fragment of a captured frame.
type FrameHeader struct {
	FrameNumber  uint32
	PacketIndex  uint16
	TotalPackets uint16
	PayloadLen   uint16
	Flags        uint16
	TimestampNs  uint64
	CRC16        uint16
}

// Encode writes h into buf[:HeaderSize], computing the CRC over bytes
// 0..27 and storing it both at offset 28 of buf and in h.CRC16. buf must
// be at least HeaderSize bytes.
func Encode(h *FrameHeader, buf []byte) {
	_ = buf[HeaderSize-1]
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.FrameNumber)
	binary.LittleEndian.PutUint16(buf[8:10], h.PacketIndex)
	binary.LittleEndian.PutUint16(buf[10:12], h.TotalPackets)
	binary.LittleEndian.PutUint16(buf[12:14], h.PayloadLen)
	binary.LittleEndian.PutUint16(buf[14:16], h.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], 0) // reserved
	binary.LittleEndian.PutUint64(buf[20:28], h.TimestampNs)
	crc := crc16CCITT(buf[0:28])
	binary.LittleEndian.PutUint16(buf[28:30], crc)
	binary.LittleEndian.PutUint16(buf[30:32], 0) // reserved
	h.CRC16 = crc
}

// Decode parses buf[:HeaderSize] into a FrameHeader. crcValid reports
// whether the recomputed CRC over bytes 0..27 matches the header's stored
// CRC16 field; a caller may still choose to consume a packet whose CRC is
// invalid (the spec leaves that choice to the caller).
//
// Decode fails fast with ErrInvalidMagic on a bad magic without parsing
// any further field, and with ErrShortBuffer if buf is too small to hold
// a header.
func Decode(buf []byte) (h FrameHeader, crcValid bool, err error) {
	if len(buf) < HeaderSize {
		return FrameHeader{}, false, ErrShortBuffer
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != Magic {
		return FrameHeader{}, false, ErrInvalidMagic
	}
	h.FrameNumber = binary.LittleEndian.Uint32(buf[4:8])
	h.PacketIndex = binary.LittleEndian.Uint16(buf[8:10])
	h.TotalPackets = binary.LittleEndian.Uint16(buf[10:12])
	h.PayloadLen = binary.LittleEndian.Uint16(buf[12:14])
	h.Flags = binary.LittleEndian.Uint16(buf[14:16])
	h.TimestampNs = binary.LittleEndian.Uint64(buf[20:28])
	h.CRC16 = binary.LittleEndian.Uint16(buf[28:30])
	expected := crc16CCITT(buf[0:28])
	crcValid = expected == h.CRC16
	return h, crcValid, nil
}
