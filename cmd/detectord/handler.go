// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"time"

	"github.com/maruel/detectord/battery"
	"github.com/maruel/detectord/config"
	"github.com/maruel/detectord/ctlproto"
	"github.com/maruel/detectord/seqengine"
	"github.com/maruel/detectord/spiregs"
	"github.com/maruel/detectord/stats"
	"github.com/maruel/detectord/watchdog"
)

// statusPayload is the JSON body returned by GET_STATUS: the full
// RuntimeStats snapshot plus engine/watchdog/battery state, daemon
// uptime and FPGA temperature (§6).
type statusPayload struct {
	EngineState    string `json:"engine_state"`
	RetryBudget    int    `json:"retry_budget"`
	WatchdogAlive  bool   `json:"watchdog_alive"`
	BatteryPercent uint8  `json:"battery_percent"`
	BatteryMV      uint16 `json:"battery_millivolts"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	TemperatureC10 int16  `json:"temperature_tenths_c"`
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesDropped  uint64 `json:"frames_dropped"`
	SPIErrors      uint64 `json:"spi_errors"`
	CSI2Errors     uint64 `json:"csi2_errors"`
	PacketsSent    uint64 `json:"packets_sent"`
	BytesSent      uint64 `json:"bytes_sent"`
	AuthFailures   uint64 `json:"auth_failures"`
	WatchdogResets uint64 `json:"watchdog_resets"`
}

// detectordHandler implements ctlproto.Handler, dispatching authenticated
// commands to the Sequence Engine, building a status snapshot from the
// stats registry, watchdog, battery gauge and FPGA temperature, and
// applying SET_CONFIG candidates against the daemon's live configuration.
type detectordHandler struct {
	engine    *seqengine.Engine
	wd        *watchdog.Watchdog
	gauge     *battery.Gauge
	stats     *stats.Registry
	temp      spiregs.TemperatureReader
	startTime time.Time

	// getConfig/setConfig close over the daemon's cfgMu-guarded *config.Config
	// the same way reloadLoop's apply does, so SET_CONFIG and SIGHUP/fsnotify
	// reloads enforce the identical cold/hot split against the same state.
	getConfig func() *config.Config
	setConfig func(*config.Config)
}

func (h *detectordHandler) StartScan(payload []byte) (uint16, []byte) {
	mode := seqengine.Single
	if len(payload) >= 1 {
		switch payload[0] {
		case 1:
			mode = seqengine.Continuous
		case 2:
			mode = seqengine.Calibration
		}
	}
	if err := h.engine.Submit(seqengine.Event{Kind: seqengine.StartScan, Mode: mode}); err != nil {
		if err == seqengine.ErrBusy {
			return ctlproto.StatusBusy, nil
		}
		return ctlproto.StatusError, nil
	}
	return ctlproto.StatusOK, nil
}

func (h *detectordHandler) StopScan() (uint16, []byte) {
	if err := h.engine.Submit(seqengine.Event{Kind: seqengine.StopScan}); err != nil {
		return ctlproto.StatusError, nil
	}
	return ctlproto.StatusOK, nil
}

func (h *detectordHandler) GetStatus() (uint16, []byte) {
	snap := h.stats.Snapshot()
	percent, mv, _ := h.gauge.Cached()
	var tenthsC int16
	if h.temp != nil {
		tenthsC, _ = h.temp.ReadTemperature()
	}
	payload := statusPayload{
		EngineState:    h.engine.State().String(),
		RetryBudget:    h.engine.RetryBudget(),
		WatchdogAlive:  h.wd.IsAlive(),
		BatteryPercent: percent,
		BatteryMV:      mv,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		TemperatureC10: tenthsC,
		FramesReceived: snap.FramesReceived,
		FramesSent:     snap.FramesSent,
		FramesDropped:  snap.FramesDropped,
		SPIErrors:      snap.SPIErrors,
		CSI2Errors:     snap.CSI2Errors,
		PacketsSent:    snap.PacketsSent,
		BytesSent:      snap.BytesSent,
		AuthFailures:   snap.AuthFailures,
		WatchdogResets: snap.WatchdogResets,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return ctlproto.StatusError, nil
	}
	return ctlproto.StatusOK, b
}

// SetConfig decodes payload as a candidate JSON configuration and runs it
// through config.Apply against the live configuration, gated on the
// engine's idle state exactly like reloadLoop's SIGHUP/fsnotify path; a
// cold-parameter change while scanning is rejected with StatusError
// rather than silently accepted.
func (h *detectordHandler) SetConfig(payload []byte) (uint16, []byte) {
	var next config.Config
	if err := json.Unmarshal(payload, &next); err != nil {
		return ctlproto.StatusError, nil
	}
	current := h.getConfig()
	applied, err := config.Apply(current, &next, func() bool { return h.engine.State() == seqengine.Idle })
	if err != nil {
		return ctlproto.StatusError, nil
	}
	h.setConfig(applied)
	return ctlproto.StatusOK, nil
}

func (h *detectordHandler) Reset() (uint16, []byte) {
	h.engine.Submit(seqengine.Event{Kind: seqengine.StopScan})
	h.wd.Pet()
	return ctlproto.StatusOK, nil
}
