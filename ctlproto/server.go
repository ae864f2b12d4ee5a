// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ctlproto

import "github.com/maruel/detectord/stats"

// Handler dispatches an authenticated, replay-admitted command to its
// target subsystem: the Sequence Engine for the scan-lifecycle commands,
// or a status/config snapshotter for the rest. Implementations live
// outside this package so ctlproto stays ignorant of seqengine specifics.
type Handler interface {
	StartScan(payload []byte) (status uint16, respPayload []byte)
	StopScan() (status uint16, respPayload []byte)
	GetStatus() (status uint16, respPayload []byte)
	SetConfig(payload []byte) (status uint16, respPayload []byte)
	Reset() (status uint16, respPayload []byte)
}

// Server glues frame parsing, HMAC authentication, anti-replay admission
// and command dispatch into the single per-datagram pipeline described by
// the spec's dispatch order.
type Server struct {
	key     []byte
	handler Handler
	replay  *ReplayGuard
	statist *stats.Registry
}

// NewServer returns a Server authenticating with key and dispatching
// admitted commands to handler. statistics may be nil to disable counter
// updates.
func NewServer(key []byte, handler Handler, statistics *stats.Registry) *Server {
	return &Server{key: key, handler: handler, replay: NewReplayGuard(), statist: statistics}
}

// HandleDatagram runs the full per-datagram pipeline for a command
// received from source and returns the wire bytes of the response to
// send back, or nil if the datagram must be silently dropped (failed
// length or magic validation, per the spec's failure semantics).
func (s *Server) HandleDatagram(source string, buf []byte) []byte {
	cmd, err := ParseCommand(buf)
	if err != nil {
		return nil
	}

	if !VerifyHMAC(buf, s.key) {
		s.addStat(stats.AuthFailures, 1)
		return s.respond(cmd.Sequence, StatusAuthFailed, nil)
	}

	if !s.replay.Admit(source, cmd.Sequence) {
		return s.respond(cmd.Sequence, StatusReplay, nil)
	}

	status, payload := s.dispatch(cmd)
	return s.respond(cmd.Sequence, status, payload)
}

func (s *Server) dispatch(cmd CommandFrame) (uint16, []byte) {
	switch cmd.CommandID {
	case CmdStartScan:
		return s.handler.StartScan(cmd.Payload)
	case CmdStopScan:
		return s.handler.StopScan()
	case CmdGetStatus:
		return s.handler.GetStatus()
	case CmdSetConfig:
		return s.handler.SetConfig(cmd.Payload)
	case CmdReset:
		return s.handler.Reset()
	default:
		return StatusInvalidCmd, nil
	}
}

func (s *Server) respond(sequence uint32, status uint16, payload []byte) []byte {
	return EncodeResponse(ResponseFrame{Sequence: sequence, Status: status, Payload: payload}, s.key)
}

func (s *Server) addStat(name string, delta int64) {
	if s.statist != nil {
		s.statist.Add(name, delta)
	}
}
