// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ctlproto implements the authenticated command/response protocol
// carried over the control UDP socket: HMAC-SHA256 framing plus a
// per-source anti-replay admission table.
package ctlproto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// Wire magics, distinct so a misdirected response is never mistaken for a
// command.
const (
	CommandMagic  uint32 = 0xBEEFCAFE
	ResponseMagic uint32 = 0xCAFEBEEF
)

// Command identifiers.
const (
	CmdStartScan uint16 = 0x01
	CmdStopScan  uint16 = 0x02
	CmdGetStatus uint16 = 0x10
	CmdSetConfig uint16 = 0x20
	CmdReset     uint16 = 0x30
)

// Response status codes.
const (
	StatusOK         uint16 = 0x0000
	StatusError      uint16 = 0x0001
	StatusBusy       uint16 = 0x0002
	StatusInvalidCmd uint16 = 0x0003
	StatusAuthFailed uint16 = 0x0004
	StatusReplay     uint16 = 0x0005
)

// HeaderSize is the size in bytes of the fixed command/response header:
// magic(4) + sequence(4) + cmd_id_or_status(2) + payload_len(2) + hmac(32).
const HeaderSize = 44

// macInputSize is the span of the header that is covered by the HMAC: the
// header fields up to but excluding the hmac field itself.
const macInputSize = 12

var (
	// ErrShortBuffer is returned for datagrams shorter than HeaderSize; per
	// the spec this is a silent-drop condition, not a response.
	ErrShortBuffer = errors.New("ctlproto: buffer shorter than header size")
	// ErrInvalidMagic is returned for a command whose magic does not match
	// CommandMagic; also a silent-drop condition.
	ErrInvalidMagic = errors.New("ctlproto: invalid magic")
)

// CommandFrame is a parsed incoming command, before authentication.
type CommandFrame struct {
	Sequence  uint32
	CommandID uint16
	Payload   []byte
}

// ResponseFrame is an outgoing response, before HMAC is attached.
type ResponseFrame struct {
	Sequence uint32
	Status   uint16
	Payload  []byte
}

// ParseCommand validates the datagram's length and magic and extracts its
// fields. It does not verify the HMAC; call VerifyHMAC separately, since a
// structurally valid-but-unauthenticated frame still needs its sequence
// number decoded for anti-replay bookkeeping decisions made by the caller.
func ParseCommand(buf []byte) (CommandFrame, error) {
	if len(buf) < HeaderSize {
		return CommandFrame{}, ErrShortBuffer
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != CommandMagic {
		return CommandFrame{}, ErrInvalidMagic
	}
	f := CommandFrame{
		Sequence:  binary.LittleEndian.Uint32(buf[4:8]),
		CommandID: binary.LittleEndian.Uint16(buf[8:10]),
	}
	payloadLen := binary.LittleEndian.Uint16(buf[10:12])
	payload := buf[HeaderSize:]
	if int(payloadLen) > len(payload) {
		return CommandFrame{}, ErrShortBuffer
	}
	f.Payload = payload[:payloadLen]
	return f, nil
}

// VerifyHMAC reports whether buf's hmac field matches the HMAC-SHA256 of
// the header's first 12 bytes concatenated with the payload, using key.
// Comparison is constant-time via hmac.Equal (itself backed by
// crypto/subtle.ConstantTimeCompare).
func VerifyHMAC(buf []byte, key []byte) bool {
	if len(buf) < HeaderSize {
		return false
	}
	want := buf[macInputSize:HeaderSize]
	got := computeHMAC(buf[0:macInputSize], buf[HeaderSize:], key)
	return hmac.Equal(want, got)
}

func computeHMAC(head, payload, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(head)
	mac.Write(payload)
	return mac.Sum(nil)
}

// EncodeResponse serializes f into a freshly authenticated wire datagram.
func EncodeResponse(f ResponseFrame, key []byte) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], ResponseMagic)
	binary.LittleEndian.PutUint32(buf[4:8], f.Sequence)
	binary.LittleEndian.PutUint16(buf[8:10], f.Status)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	mac := computeHMAC(buf[0:macInputSize], f.Payload, key)
	copy(buf[macInputSize:HeaderSize], mac)
	return buf
}

// EncodeCommand serializes f into a freshly authenticated wire datagram.
// Used by test harnesses and any future client tooling exercising the
// control protocol.
func EncodeCommand(f CommandFrame, key []byte) []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], CommandMagic)
	binary.LittleEndian.PutUint32(buf[4:8], f.Sequence)
	binary.LittleEndian.PutUint16(buf[8:10], f.CommandID)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	mac := computeHMAC(buf[0:macInputSize], f.Payload, key)
	copy(buf[macInputSize:HeaderSize], mac)
	return buf
}
