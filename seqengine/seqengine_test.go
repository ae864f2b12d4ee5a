// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package seqengine

import (
	"errors"
	"testing"

	"github.com/maruel/detectord/stats"
)

type fakeRegs struct {
	configCalls, armCalls, stopCalls int
	failConfig, failArm, failStop    error
	lastConfigMode, lastArmMode      Mode
}

func (f *fakeRegs) WriteConfig(mode Mode) error {
	f.configCalls++
	f.lastConfigMode = mode
	return f.failConfig
}
func (f *fakeRegs) WriteArm(mode Mode) error {
	f.armCalls++
	f.lastArmMode = mode
	return f.failArm
}
func (f *fakeRegs) WriteStop() error { f.stopCalls++; return f.failStop }

func runScan(t *testing.T, e *Engine, mode Mode) {
	t.Helper()
	if err := e.Submit(Event{Kind: StartScan, Mode: mode}); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	if err := e.Submit(Event{Kind: ConfigDone}); err != nil {
		t.Fatalf("ConfigDone: %v", err)
	}
	if err := e.Submit(Event{Kind: ArmDone}); err != nil {
		t.Fatalf("ArmDone: %v", err)
	}
	if err := e.Submit(Event{Kind: FrameReady}); err != nil {
		t.Fatalf("FrameReady: %v", err)
	}
}

func TestSingleModeGoesIdleThroughComplete(t *testing.T) {
	e := New(nil, nil)
	runScan(t, e, Single)
	if err := e.Submit(Event{Kind: CompleteEvt}); err != nil {
		t.Fatal(err)
	}
	if e.State() != Complete {
		t.Fatalf("state = %s, want COMPLETE", e.State())
	}
	if err := e.Submit(Event{Kind: StopScan}); err != nil {
		t.Fatal(err)
	}
	if e.State() != Idle {
		t.Fatalf("state = %s, want IDLE", e.State())
	}
}

func TestContinuousModeLoopsBackToScanning(t *testing.T) {
	e := New(nil, nil)
	runScan(t, e, Continuous)
	if err := e.Submit(Event{Kind: CompleteEvt}); err != nil {
		t.Fatal(err)
	}
	if e.State() != Scanning {
		t.Fatalf("state = %s, want SCANNING", e.State())
	}
	// Loop again without another START_SCAN.
	if err := e.Submit(Event{Kind: FrameReady}); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(Event{Kind: CompleteEvt}); err != nil {
		t.Fatal(err)
	}
	if e.State() != Scanning {
		t.Fatalf("state = %s, want SCANNING after second loop", e.State())
	}
}

func TestCalibrationModeReturnsToArm(t *testing.T) {
	e := New(nil, nil)
	runScan(t, e, Calibration)
	if err := e.Submit(Event{Kind: CompleteEvt}); err != nil {
		t.Fatal(err)
	}
	if e.State() != Arm {
		t.Fatalf("state = %s, want ARM", e.State())
	}
}

func TestStopScanFromAnyNonIdleStateReturnsToIdle(t *testing.T) {
	states := []struct {
		name  string
		setup func(e *Engine)
	}{
		{"CONFIGURE", func(e *Engine) {
			e.Submit(Event{Kind: StartScan, Mode: Single})
		}},
		{"ARM", func(e *Engine) {
			e.Submit(Event{Kind: StartScan, Mode: Single})
			e.Submit(Event{Kind: ConfigDone})
		}},
		{"SCANNING", func(e *Engine) {
			e.Submit(Event{Kind: StartScan, Mode: Single})
			e.Submit(Event{Kind: ConfigDone})
			e.Submit(Event{Kind: ArmDone})
		}},
		{"STREAMING", func(e *Engine) {
			e.Submit(Event{Kind: StartScan, Mode: Single})
			e.Submit(Event{Kind: ConfigDone})
			e.Submit(Event{Kind: ArmDone})
			e.Submit(Event{Kind: FrameReady})
		}},
	}
	for _, s := range states {
		e := New(nil, nil)
		s.setup(e)
		if err := e.Submit(Event{Kind: StopScan}); err != nil {
			t.Fatalf("%s: StopScan: %v", s.name, err)
		}
		if e.State() != Idle {
			t.Fatalf("%s: state = %s, want IDLE", s.name, e.State())
		}
	}
}

func TestStopScanIdempotentWhileIdle(t *testing.T) {
	e := New(nil, nil)
	if err := e.Submit(Event{Kind: StopScan}); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(Event{Kind: StopScan}); err != nil {
		t.Fatal(err)
	}
	if e.State() != Idle {
		t.Fatalf("state = %s, want IDLE", e.State())
	}
}

func TestStartScanWhileBusyFails(t *testing.T) {
	e := New(nil, nil)
	e.Submit(Event{Kind: StartScan, Mode: Single})
	if err := e.Submit(Event{Kind: StartScan, Mode: Single}); err != ErrBusy {
		t.Fatalf("got %v, want ErrBusy", err)
	}
	if e.State() != Configure {
		t.Fatalf("state = %s, want CONFIGURE (unaffected by rejected event)", e.State())
	}
}

// Retry budget worked example from the spec: three ERROR -> ERROR_CLEARED
// recoveries succeed, consuming the full budget; the fourth fails with
// RETRY_EXHAUSTED and the engine stays in ERROR.
func TestRetryBudgetExhaustionScenario(t *testing.T) {
	e := New(nil, nil)
	e.Submit(Event{Kind: StartScan, Mode: Continuous})
	e.Submit(Event{Kind: ConfigDone})
	e.Submit(Event{Kind: ArmDone})

	for i := 0; i < MaxRetryBudget; i++ {
		if err := e.Submit(Event{Kind: ErrorEvt}); err != nil {
			t.Fatalf("iteration %d: ErrorEvt: %v", i, err)
		}
		if e.State() != Error {
			t.Fatalf("iteration %d: state = %s, want ERROR", i, e.State())
		}
		if err := e.Submit(Event{Kind: ErrorCleared}); err != nil {
			t.Fatalf("iteration %d: ErrorCleared: %v", i, err)
		}
		if e.State() != Scanning {
			t.Fatalf("iteration %d: state = %s, want SCANNING", i, e.State())
		}
		if e.RetryBudget() != i+1 {
			t.Fatalf("iteration %d: retry budget = %d, want %d", i, e.RetryBudget(), i+1)
		}
	}

	if err := e.Submit(Event{Kind: ErrorEvt}); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(Event{Kind: ErrorCleared}); err != ErrRetryExhausted {
		t.Fatalf("got %v, want ErrRetryExhausted", err)
	}
	if e.State() != Error {
		t.Fatalf("state = %s, want ERROR (stays put on exhaustion)", e.State())
	}
}

func TestRetryBudgetResetsOnNewScan(t *testing.T) {
	e := New(nil, nil)
	e.Submit(Event{Kind: StartScan, Mode: Single})
	e.Submit(Event{Kind: ConfigDone})
	e.Submit(Event{Kind: ArmDone})
	e.Submit(Event{Kind: ErrorEvt})
	e.Submit(Event{Kind: ErrorCleared})
	if e.RetryBudget() != 1 {
		t.Fatalf("retry budget = %d, want 1", e.RetryBudget())
	}
	e.Submit(Event{Kind: StopScan})
	e.Submit(Event{Kind: StartScan, Mode: Single})
	if e.RetryBudget() != 0 {
		t.Fatalf("retry budget = %d, want 0 after new START_SCAN", e.RetryBudget())
	}
}

func TestInvalidTransitionIsNoop(t *testing.T) {
	e := New(nil, nil)
	if err := e.Submit(Event{Kind: ConfigDone}); err != ErrInvalidTransition {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if e.State() != Idle {
		t.Fatalf("state = %s, want IDLE (unchanged)", e.State())
	}
}

func TestRegisterWriterFailurePreventsTransition(t *testing.T) {
	regs := &fakeRegs{failConfig: errors.New("spi timeout")}
	e := New(regs, nil)
	e.Submit(Event{Kind: StartScan, Mode: Single})
	if err := e.Submit(Event{Kind: ConfigDone}); err == nil {
		t.Fatal("expected error from WriteConfig failure")
	}
	if e.State() != Configure {
		t.Fatalf("state = %s, want CONFIGURE (transition aborted)", e.State())
	}
	if regs.configCalls != 1 {
		t.Fatalf("configCalls = %d, want 1", regs.configCalls)
	}
}

func TestRegisterWriterReceivesScanMode(t *testing.T) {
	regs := &fakeRegs{}
	e := New(regs, nil)
	runScan(t, e, Calibration)
	if regs.lastConfigMode != Calibration {
		t.Fatalf("lastConfigMode = %s, want CALIBRATION", regs.lastConfigMode)
	}
	if regs.lastArmMode != Calibration {
		t.Fatalf("lastArmMode = %s, want CALIBRATION", regs.lastArmMode)
	}
}

func TestStatsUpdatedOnFrameEvents(t *testing.T) {
	reg := stats.New()
	e := New(nil, reg)
	runScan(t, e, Single)
	e.Submit(Event{Kind: CompleteEvt})
	snap := reg.Snapshot()
	if snap.FramesReceived != 1 {
		t.Fatalf("FramesReceived = %d, want 1", snap.FramesReceived)
	}
	if snap.FramesSent != 1 {
		t.Fatalf("FramesSent = %d, want 1", snap.FramesSent)
	}
}

func TestOnDispatchCalledAfterSuccessfulTransition(t *testing.T) {
	e := New(nil, nil)
	calls := 0
	e.OnDispatch(func() { calls++ })
	e.Submit(Event{Kind: StartScan, Mode: Single})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	// A rejected event must not invoke the callback.
	e.Submit(Event{Kind: ConfigDone, Mode: Single})
	e.Submit(Event{Kind: StartScan, Mode: Single}) // busy, rejected
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (rejected START_SCAN must not dispatch)", calls)
	}
}
