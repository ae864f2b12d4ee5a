// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package seqengine implements the scan control state machine: a seven
// state lifecycle, three scan modes, and a bounded retry policy for
// recovering from ERROR.
//
// The engine is single-threaded cooperative: every transition runs under
// one mutex, so callers on any goroutine may Submit events and always
// observe a totally ordered sequence of transitions, with no re-entrant
// dispatch. This mirrors the teacher's "own the state, others submit"
// idiom (the private-state-behind-a-lock shape of cmd/lepton/server.go's
// WebServer and lepton/lepton.go's Dev).
package seqengine

import (
	"errors"
	"sync"

	"github.com/maruel/detectord/stats"
)

// State is one of the seven lifecycle states of a scan.
type State int

const (
	Idle State = iota
	Configure
	Arm
	Scanning
	Streaming
	Complete
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Configure:
		return "CONFIGURE"
	case Arm:
		return "ARM"
	case Scanning:
		return "SCANNING"
	case Streaming:
		return "STREAMING"
	case Complete:
		return "COMPLETE"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Mode is the scan mode selected at START_SCAN and held immutable for the
// scan's duration.
type Mode int

const (
	Single Mode = iota
	Continuous
	Calibration
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "SINGLE"
	case Continuous:
		return "CONTINUOUS"
	case Calibration:
		return "CALIBRATION"
	default:
		return "UNKNOWN"
	}
}

// EventKind identifies a synthetic event submitted to the engine.
type EventKind int

const (
	StartScan EventKind = iota
	ConfigDone
	ArmDone
	FrameReady
	CompleteEvt
	StopScan
	ErrorEvt
	ErrorCleared
)

func (k EventKind) String() string {
	switch k {
	case StartScan:
		return "START_SCAN"
	case ConfigDone:
		return "CONFIG_DONE"
	case ArmDone:
		return "ARM_DONE"
	case FrameReady:
		return "FRAME_READY"
	case CompleteEvt:
		return "COMPLETE"
	case StopScan:
		return "STOP_SCAN"
	case ErrorEvt:
		return "ERROR"
	case ErrorCleared:
		return "ERROR_CLEARED"
	default:
		return "UNKNOWN"
	}
}

// Event is submitted to the engine by any goroutine. Mode is only
// meaningful for StartScan.
type Event struct {
	Kind EventKind
	Mode Mode
}

// MaxRetryBudget is the largest value RetryBudget will reach before
// ERROR_CLEARED fails with RETRY_EXHAUSTED.
const MaxRetryBudget = 3

var (
	// ErrBusy is returned when START_SCAN arrives while the engine is
	// neither IDLE nor COMPLETE.
	ErrBusy = errors.New("seqengine: busy")
	// ErrRetryExhausted is returned when ERROR_CLEARED arrives after the
	// retry budget has already been spent; the engine stays in ERROR.
	ErrRetryExhausted = errors.New("seqengine: retry budget exhausted")
	// ErrInvalidTransition is returned for any (state, event) pair the
	// transition table doesn't define; it is a no-op, not a fault.
	ErrInvalidTransition = errors.New("seqengine: invalid transition")
)

// RegisterWriter is the FPGA control-register collaborator (§6): the
// engine writes control bits through it but never reads hardware status
// directly; SPI register semantics live in the out-of-scope transport.
// WriteConfig and WriteArm take the scan mode selected at START_SCAN so
// the collaborator can encode it into the control register's mode bits
// (§6: bits 2-3, 0=SINGLE, 1=CONTINUOUS, 2=CALIBRATION).
type RegisterWriter interface {
	WriteConfig(mode Mode) error
	WriteArm(mode Mode) error
	WriteStop() error
}

// noopRegisterWriter is used when the engine is constructed without a
// register writer, e.g. in unit tests exercising only the FSM.
type noopRegisterWriter struct{}

func (noopRegisterWriter) WriteConfig(Mode) error { return nil }
func (noopRegisterWriter) WriteArm(Mode) error     { return nil }
func (noopRegisterWriter) WriteStop() error        { return nil }

// Engine drives the scan lifecycle. The zero value is not usable; use
// New. All exported methods are safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	state       State
	mode        Mode
	retryBudget int
	regs        RegisterWriter
	statist     *stats.Registry
	onDispatch  func()
}

// New constructs an Engine in IDLE. statistics may be nil to disable
// counter updates (e.g. in isolated FSM tests); regs may be nil to use a
// no-op register writer.
func New(regs RegisterWriter, statistics *stats.Registry) *Engine {
	if regs == nil {
		regs = noopRegisterWriter{}
	}
	return &Engine{state: Idle, regs: regs, statist: statistics}
}

// OnDispatch registers a callback invoked after every successfully
// applied transition (including no-op STOP_SCAN-while-already-IDLE
// cases only when the table says so); used by the daemon's main loop to
// pet the watchdog on engine activity.
func (e *Engine) OnDispatch(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDispatch = f
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Mode returns the scan mode recorded at the last START_SCAN.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// RetryBudget returns the number of ERROR_CLEARED recoveries already
// spent in the current scan session.
func (e *Engine) RetryBudget() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryBudget
}

// Submit dispatches one event, serialized against all other callers.
func (e *Engine) Submit(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := e.transition(ev)
	if err != nil {
		return err
	}
	e.state = next
	if e.onDispatch != nil {
		e.onDispatch()
	}
	return nil
}

// transition implements the table from the spec. Must be called with
// e.mu held.
func (e *Engine) transition(ev Event) (State, error) {
	switch {
	case e.state == Idle && ev.Kind == StartScan:
		e.retryBudget = 0
		e.mode = ev.Mode
		return Configure, nil

	case e.state == Configure && ev.Kind == ConfigDone:
		if err := e.regs.WriteConfig(e.mode); err != nil {
			return e.state, err
		}
		return Arm, nil

	case e.state == Arm && ev.Kind == ArmDone:
		if err := e.regs.WriteArm(e.mode); err != nil {
			return e.state, err
		}
		return Scanning, nil

	case e.state == Scanning && ev.Kind == FrameReady:
		e.addStat("frames_received", 1)
		return Streaming, nil

	case e.state == Streaming && ev.Kind == CompleteEvt:
		e.addStat("frames_sent", 1)
		switch e.mode {
		case Single:
			return Complete, nil
		case Continuous:
			return Scanning, nil
		case Calibration:
			return Arm, nil
		}
		return e.state, ErrInvalidTransition

	case e.state == Complete && ev.Kind == StopScan:
		return Idle, nil

	case ev.Kind == StopScan && e.state != Idle:
		if err := e.regs.WriteStop(); err != nil {
			return e.state, err
		}
		return Idle, nil

	case ev.Kind == StopScan && e.state == Idle:
		// STOP_SCAN twice in a row is idempotent: already IDLE, no-op
		// success.
		return Idle, nil

	case isConfigureArmScanningStreaming(e.state) && ev.Kind == ErrorEvt:
		return Error, nil

	case e.state == Error && ev.Kind == ErrorCleared:
		if e.retryBudget >= MaxRetryBudget {
			return Error, ErrRetryExhausted
		}
		e.retryBudget++
		return Scanning, nil

	case e.state != Idle && e.state != Complete && ev.Kind == StartScan:
		return e.state, ErrBusy

	default:
		return e.state, ErrInvalidTransition
	}
}

func isConfigureArmScanningStreaming(s State) bool {
	switch s {
	case Configure, Arm, Scanning, Streaming:
		return true
	default:
		return false
	}
}

func (e *Engine) addStat(name string, delta int64) {
	if e.statist != nil {
		e.statist.Add(name, delta)
	}
}
