// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command detectord drives the flat-panel detector's acquisition pipeline:
// frame capture and ring buffering, fragmentation onto the data UDP
// socket, the scan sequence engine, the authenticated control socket, and
// the watchdog/stats/battery health loop.
//
// Usage: detectord [-debug-ws addr] <config.json>
//
// TERM and INT trigger a graceful shutdown; HUP reloads the hot
// parameters of the configuration file; USR1 logs a debug snapshot of
// every subsystem's current state. -debug-ws optionally starts a local
// HTTP/WebSocket diagnostic server (see the diag package).
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/maruel/detectord/battery"
	"github.com/maruel/detectord/capture"
	"github.com/maruel/detectord/config"
	"github.com/maruel/detectord/ctlproto"
	"github.com/maruel/detectord/diag"
	"github.com/maruel/detectord/frameproto"
	"github.com/maruel/detectord/logging"
	"github.com/maruel/detectord/ring"
	"github.com/maruel/detectord/seqengine"
	"github.com/maruel/detectord/spiregs"
	"github.com/maruel/detectord/stats"
	"github.com/maruel/detectord/watchdog"

	"github.com/maruel/interrupt"
)

// pidFilePath follows the SPI/PID-file convention of the daemon's
// original C implementation: a lock-free "last writer wins" file dropped
// next to the config, removed again on clean shutdown.
func pidFilePath(configPath string) string {
	return configPath + ".pid"
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// daemon bundles every long-lived subsystem so the goroutines started in
// mainImpl have one place to reach into for shutdown and debug snapshots.
type daemon struct {
	log *logging.Logger

	statist *stats.Registry
	ringBuf *ring.Ring
	engine  *seqengine.Engine
	wd      *watchdog.Watchdog
	gauge   *battery.Gauge
	source  capture.Source

	ctl      *ctlproto.Server
	dataConn *net.UDPConn
	dataAddr *net.UDPAddr

	diag *diag.Server

	cfgMu sync.RWMutex
	cfg   *config.Config
}

func (d *daemon) currentConfig() *config.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

func (d *daemon) setConfig(cfg *config.Config) {
	d.cfgMu.Lock()
	d.cfg = cfg
	d.cfgMu.Unlock()
}

// debugSnapshot logs one line per subsystem, the USR1 handler's payload.
func (d *daemon) debugSnapshot() {
	snap := d.statist.Snapshot()
	ringStats := d.ringBuf.SnapshotStats()
	percent, mv, battErr := d.gauge.Cached()
	d.log.Infof("snapshot: engine=%s mode=%s retry_budget=%d watchdog_alive=%v",
		d.engine.State(), d.engine.Mode(), d.engine.RetryBudget(), d.wd.IsAlive())
	d.log.Infof("snapshot: ring received=%d sent=%d dropped=%d overruns=%d",
		ringStats.FramesReceived, ringStats.FramesSent, ringStats.FramesDropped, ringStats.Overruns)
	d.log.Infof("snapshot: stats packets_sent=%d bytes_sent=%d spi_errors=%d csi2_errors=%d auth_failures=%d watchdog_resets=%d",
		snap.PacketsSent, snap.BytesSent, snap.SPIErrors, snap.CSI2Errors, snap.AuthFailures, snap.WatchdogResets)
	d.log.Infof("snapshot: battery percent=%d millivolts=%d err=%v", percent, mv, battErr)
}

// shutdown runs the daemon's best-effort graceful stop (§5): the control
// loop has already stopped accepting new datagrams by the time this runs
// (it exits on the same interrupt.Channel close mainImpl reacts to), so
// from here this only needs to stop the engine, drain whatever frames are
// already sitting READY in the ring, and log a final watchdog/stats
// snapshot. Every step is best-effort: a stuck consumer must not prevent
// the daemon from exiting.
func (d *daemon) shutdown() {
	if err := d.engine.Submit(seqengine.Event{Kind: seqengine.StopScan}); err != nil {
		d.log.Warningf("shutdown: STOP_SCAN: %v", err)
	}
	drained := 0
	for i := 0; i < ring.NumSlots; i++ {
		payload, _, frameNumber, err := d.ringBuf.AcquireReady()
		if err == ring.ErrNoneReady {
			break
		}
		cfg := d.currentConfig()
		payloadCap := cfg.MTU - frameproto.HeaderSize
		if payloadCap <= 0 {
			payloadCap = 1024
		}
		if packets, err := frameproto.Fragment(frameNumber, payload, payloadCap, uint64(time.Now().UnixNano())); err == nil {
			var wireBuf []byte
			for _, p := range packets {
				wireBuf = frameproto.Encoded(p, wireBuf)
				d.dataConn.WriteToUDP(wireBuf, d.dataAddr)
			}
		}
		d.ringBuf.ReleaseSent(frameNumber)
		drained++
	}
	d.log.Infof("shutdown: drained %d READY frame(s) from the ring", drained)
	d.debugSnapshot()
}

// producerLoop captures frames and hands them to the ring whenever the
// sequence engine is mid-scan, pacing itself off the capture source and
// notifying the engine so SCANNING can advance to STREAMING.
func (d *daemon) producerLoop() {
	for {
		select {
		case <-interrupt.Channel:
			return
		default:
		}
		frame, err := d.source.Capture(1000)
		if err == capture.ErrTimeout {
			continue
		}
		if err != nil {
			d.log.Errorf("capture: %v", err)
			d.statist.Add(stats.CSI2Errors, 1)
			continue
		}
		if d.engine.State() != seqengine.Scanning {
			d.source.Release(frame)
			continue
		}
		buf, _ := d.ringBuf.AcquireForFill(frame.Sequence)
		copy(buf, frame.Payload[:frame.BytesUsed])
		if err := d.ringBuf.CommitFilled(frame.Sequence); err != nil {
			d.log.Warningf("commit frame %d: %v", frame.Sequence, err)
		}
		d.source.Release(frame)
		if err := d.engine.Submit(seqengine.Event{Kind: seqengine.FrameReady}); err != nil {
			d.log.Warningf("FRAME_READY rejected: %v", err)
		}
		d.wd.Pet()
	}
}

// consumerLoop drains READY ring slots, fragments them onto the data UDP
// socket, and reports COMPLETE back to the engine once a frame is fully
// sent, closing the STREAMING -> {SCANNING,ARM,COMPLETE} loop.
func (d *daemon) consumerLoop() {
	var wireBuf []byte
	for {
		select {
		case <-interrupt.Channel:
			return
		default:
		}
		payload, _, frameNumber, err := d.ringBuf.AcquireReady()
		if err == ring.ErrNoneReady {
			time.Sleep(time.Millisecond)
			continue
		}
		cfg := d.currentConfig()
		payloadCap := cfg.MTU - frameproto.HeaderSize
		if payloadCap <= 0 {
			payloadCap = 1024
		}
		packets, err := frameproto.Fragment(frameNumber, payload, payloadCap, uint64(time.Now().UnixNano()))
		if err != nil {
			d.log.Errorf("fragment frame %d: %v", frameNumber, err)
			d.ringBuf.ReleaseSent(frameNumber)
			continue
		}
		for _, p := range packets {
			wireBuf = frameproto.Encoded(p, wireBuf)
			if _, err := d.dataConn.WriteToUDP(wireBuf, d.dataAddr); err != nil {
				d.log.Errorf("send frame %d packet %d: %v", frameNumber, p.Header.PacketIndex, err)
				continue
			}
			d.statist.Add(stats.PacketsSent, 1)
			d.statist.Add(stats.BytesSent, int64(len(wireBuf)))
		}
		if d.diag != nil {
			d.diag.PushFrame(payload)
		}
		if err := d.ringBuf.ReleaseSent(frameNumber); err != nil {
			d.log.Warningf("release frame %d: %v", frameNumber, err)
		}
		if err := d.engine.Submit(seqengine.Event{Kind: seqengine.CompleteEvt}); err != nil {
			d.log.Warningf("COMPLETE rejected: %v", err)
		}
		d.wd.Pet()
	}
}

// controlLoop serves the authenticated command/response protocol over
// the control UDP socket.
func (d *daemon) controlLoop(conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-interrupt.Channel:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		resp := d.ctl.HandleDatagram(addr.String(), buf[:n])
		if resp != nil {
			conn.WriteToUDP(resp, addr)
		}
		d.wd.Pet()
	}
}

// healthLoop checks the watchdog once a second, independent of frame
// traffic, and logs a CRITICAL record on every check that finds it not
// alive. It does not pet the watchdog itself, so when the other loops
// stop petting, the lapse shows up as a watchdog reset.
func (d *daemon) healthLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-interrupt.Channel:
			return
		case <-ticker.C:
			if !d.wd.IsAlive() {
				d.log.Criticalf("watchdog: no liveness signal within %s", watchdog.Timeout)
			}
		}
	}
}

// reloadLoop watches the config file for hot-parameter changes signaled
// either by SIGHUP or by fsnotify, matching cmd/lepton/watch_linux.go's
// single-events-channel shape generalized to two trigger sources.
func (d *daemon) reloadLoop(configPath string, hup <-chan os.Signal) {
	w, err := config.NewWatcher(configPath)
	if err != nil {
		d.log.Warningf("config watcher disabled: %v", err)
		w = nil
	}
	var reloaded <-chan *config.Config
	if w != nil {
		ch := make(chan *config.Config)
		reloaded = ch
		go w.Run(func(cfg *config.Config, err error) {
			if err != nil {
				d.log.Warningf("config reload: %v", err)
				return
			}
			ch <- cfg
		})
		defer w.Close()
	}
	apply := func(next *config.Config) {
		current := d.currentConfig()
		idle := func() bool { return d.engine.State() == seqengine.Idle }
		applied, err := config.Apply(current, next, idle)
		if err != nil {
			d.log.Warningf("config reload rejected: %v", err)
			return
		}
		d.setConfig(applied)
		d.log.Infof("config reloaded")
	}
	for {
		select {
		case <-interrupt.Channel:
			return
		case <-hup:
			if cfg, err := config.Load(configPath); err != nil {
				d.log.Warningf("SIGHUP reload: %v", err)
			} else {
				apply(cfg)
			}
		case cfg, ok := <-reloaded:
			if !ok {
				reloaded = nil
				continue
			}
			apply(cfg)
		}
	}
}

func mainImpl() error {
	debugAddr := flag.String("debug-ws", "", "optional diagnostic HTTP/WebSocket address (e.g. :6060); serves /status and /stream. Disabled when empty")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("usage: detectord [-debug-ws addr] <config.json>")
	}
	configPath := flag.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", configPath, err)
	}

	log := logging.New("detectord", os.Stderr)
	if lvl, ok := parseLevel(cfg.LogLevel); ok {
		log.SetThreshold(lvl)
	}

	pidPath := pidFilePath(configPath)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer os.Remove(pidPath)

	statist := stats.New()
	bufCapacity := cfg.Rows * cfg.Cols * ((cfg.BitDepth + 7) / 8)
	ringBuf := ring.New(bufCapacity)
	wd := watchdog.New(statist)

	// SPI-to-FPGA programming is out of this repository's scope (§1); the
	// engine runs against the built-in no-op RegisterWriter until a real
	// periph.io SPI conn.Conn is wired in by the platform-specific build
	// that owns bus acquisition.
	engine := seqengine.New(nil, statist)
	engine.OnDispatch(wd.Pet)

	source := capture.NewFakeSource(cfg.Rows, cfg.Cols, time.Second/time.Duration(maxFloat(cfg.FrameRate, 1)))
	gauge := battery.NewGauge(&battery.FakeReader{Percent: 100, Millivolts: 8400})
	gauge.Start(nil)
	defer gauge.Stop()

	dataAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.HostIP, strconv.Itoa(cfg.DataPort)))
	if err != nil {
		return fmt.Errorf("resolving data address: %w", err)
	}
	dataConn, err := net.DialUDP("udp", nil, dataAddr)
	if err != nil {
		return fmt.Errorf("dialing data socket: %w", err)
	}
	defer dataConn.Close()

	ctlAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort("", strconv.Itoa(cfg.ControlPort)))
	if err != nil {
		return fmt.Errorf("resolving control address: %w", err)
	}
	ctlConn, err := net.ListenUDP("udp", ctlAddr)
	if err != nil {
		return fmt.Errorf("listening on control socket: %w", err)
	}
	defer ctlConn.Close()

	d := &daemon{
		log:      log,
		statist:  statist,
		ringBuf:  ringBuf,
		engine:   engine,
		wd:       wd,
		gauge:    gauge,
		source:   source,
		dataConn: dataConn,
		dataAddr: dataAddr,
		cfg:      cfg,
	}
	// Real SPI/FPGA temperature telemetry is out of this repository's
	// scope along with the rest of the hardware transport (§1); GET_STATUS
	// still reports a reading via the same fake-collaborator stand-in used
	// for capture and battery until a real spiregs.FPGA is wired in.
	handler := &detectordHandler{
		engine:    engine,
		wd:        wd,
		gauge:     gauge,
		stats:     statist,
		temp:      &spiregs.FakeTemperatureReader{TenthsC: 412},
		startTime: time.Now(),
		getConfig: d.currentConfig,
		setConfig: d.setConfig,
	}
	d.ctl = ctlproto.NewServer([]byte(cfg.PSK), handler, statist)

	if *debugAddr != "" {
		d.diag = diag.New(cfg.Rows, cfg.Cols, engine, ringBuf, statist, wd)
		go func() {
			if err := d.diag.ListenAndServe(*debugAddr); err != nil {
				log.Warningf("diagnostic server stopped: %v", err)
			}
		}()
		log.Infof("diagnostic HTTP/WebSocket server listening on %s", *debugAddr)
	}

	interrupt.HandleCtrlC()
	sigTerm := make(chan os.Signal, 1)
	signal.Notify(sigTerm, syscall.SIGTERM)
	sigHup := make(chan os.Signal, 1)
	signal.Notify(sigHup, syscall.SIGHUP)
	sigUsr1 := make(chan os.Signal, 1)
	signal.Notify(sigUsr1, syscall.SIGUSR1)

	go d.producerLoop()
	go d.consumerLoop()
	go d.controlLoop(ctlConn)
	go d.healthLoop()
	go d.reloadLoop(configPath, sigHup)

	log.Infof("detectord started, data=%s control=%s", dataAddr, ctlConn.LocalAddr())

	for !interrupt.IsSet() {
		select {
		case <-sigTerm:
			log.Infof("SIGTERM received, shutting down")
			d.shutdown()
			return nil
		case <-sigUsr1:
			d.debugSnapshot()
		case <-time.After(time.Second):
		}
	}
	log.Infof("shutting down")
	d.shutdown()
	return nil
}

func parseLevel(s string) (logging.Level, bool) {
	switch s {
	case "DEBUG":
		return logging.Debug, true
	case "INFO":
		return logging.Info, true
	case "WARNING":
		return logging.Warning, true
	case "ERROR":
		return logging.Error, true
	case "CRITICAL":
		return logging.Critical, true
	default:
		return 0, false
	}
}

func maxFloat(v float64, min float64) float64 {
	if v < min {
		return min
	}
	return v
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "detectord: %s\n", err)
		os.Exit(1)
	}
}
