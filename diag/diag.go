// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package diag implements the optional, additive diagnostic HTTP and
// WebSocket endpoints: an HTML status page rendering the same
// GET_STATUS snapshot the control protocol serves in binary form, and a
// live frame stream for an operator's browser. Neither endpoint sits on
// the scan lifecycle's critical path; the daemon runs identically with
// diag disabled.
//
// The live stream reuses cmd/lepton/server.go's WebServer shape
// verbatim: one sync.Cond broadcasts to every connected reader, each
// reader holds the lock except while doing the actual blocking I/O.
package diag

import (
	"html/template"
	"image"
	"log"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/maruel/detectord/ring"
	"github.com/maruel/detectord/seqengine"
	"github.com/maruel/detectord/stats"
	"github.com/maruel/detectord/visualize"
	"github.com/maruel/detectord/watchdog"

	"github.com/maruel/interrupt"
)

// numBufferedFrames is how many recently-sent frames the live stream
// keeps around for a newly connecting client to catch up on.
const numBufferedFrames = 30

// Server serves /status (HTML) and /stream (WebSocket, AGC'd PNG
// frames). The zero value is not usable; use New.
type Server struct {
	cond   sync.Cond
	rows   int
	cols   int
	frames [numBufferedFrames]*visualize.Frame
	lastIndex int

	engine  *seqengine.Engine
	ringBuf *ring.Ring
	statist *stats.Registry
	wd      *watchdog.Watchdog
}

// New returns a Server rendering rows x cols frames and reporting the
// given subsystems' live state.
func New(rows, cols int, engine *seqengine.Engine, ringBuf *ring.Ring, statistics *stats.Registry, wd *watchdog.Watchdog) *Server {
	return &Server{
		cond:    *sync.NewCond(&sync.Mutex{}),
		rows:    rows,
		cols:    cols,
		lastIndex: -1,
		engine:  engine,
		ringBuf: ringBuf,
		statist: statistics,
		wd:      wd,
	}
}

// PushFrame decodes a just-transmitted frame's raw payload and makes it
// available to /stream clients, waking anyone waiting on a new frame.
func (s *Server) PushFrame(payload []byte) {
	f, err := visualize.NewFrame(s.rows, s.cols, payload)
	if err != nil {
		return
	}
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.lastIndex = (s.lastIndex + 1) % len(s.frames)
	s.frames[s.lastIndex] = f
	s.cond.Broadcast()
}

// Handler returns the mux serving /status and /stream.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.status)
	mux.Handle("/stream", websocket.Handler(s.stream))
	return mux
}

// ListenAndServe blocks serving Handler() on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

type statusView struct {
	EngineState    string
	Mode           string
	RetryBudget    int
	WatchdogAlive  bool
	FramesReceived uint64
	FramesSent     uint64
	FramesDropped  uint64
	Overruns       uint64
	AuthFailures   uint64
	WatchdogResets uint64
}

var statusTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>detectord status</title></head>
<body>
<h1>detectord</h1>
<table>
<tr><td>engine state</td><td>{{.EngineState}}</td></tr>
<tr><td>mode</td><td>{{.Mode}}</td></tr>
<tr><td>retry budget</td><td>{{.RetryBudget}}</td></tr>
<tr><td>watchdog alive</td><td>{{.WatchdogAlive}}</td></tr>
<tr><td>frames received</td><td>{{.FramesReceived}}</td></tr>
<tr><td>frames sent</td><td>{{.FramesSent}}</td></tr>
<tr><td>frames dropped</td><td>{{.FramesDropped}}</td></tr>
<tr><td>overruns</td><td>{{.Overruns}}</td></tr>
<tr><td>auth failures</td><td>{{.AuthFailures}}</td></tr>
<tr><td>watchdog resets</td><td>{{.WatchdogResets}}</td></tr>
</table>
<p><a href="/stream">live stream (WebSocket)</a></p>
</body>
</html>
`))

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ringStats := s.ringBuf.SnapshotStats()
	snap := s.statist.Snapshot()
	view := statusView{
		EngineState:    s.engine.State().String(),
		Mode:           s.engine.Mode().String(),
		RetryBudget:    s.engine.RetryBudget(),
		WatchdogAlive:  s.wd.IsAlive(),
		FramesReceived: ringStats.FramesReceived,
		FramesSent:     ringStats.FramesSent,
		FramesDropped:  ringStats.FramesDropped,
		Overruns:       ringStats.Overruns,
		AuthFailures:   snap.AuthFailures,
		WatchdogResets: snap.WatchdogResets,
	}
	w.Header().Set("Content-Type", "text/html")
	statusTmpl.Execute(w, view)
}

// stream sends each newly pushed frame as an AGC-stretched PNG, one
// WebSocket message per frame, to a single connected client. The
// Cond.Wait/Broadcast loop and the "unlock for I/O, relock to check the
// index" shape are unchanged from cmd/lepton/server.go's WebServer.stream.
func (s *Server) stream(conn *websocket.Conn) {
	log.Printf("diag: stream connected")
	defer conn.Close()
	lastIndex := -1
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	var err error
	for !interrupt.IsSet() && err == nil {
		s.cond.Wait()
		for !interrupt.IsSet() && err == nil && lastIndex != s.lastIndex {
			lastIndex = (lastIndex + 1) % len(s.frames)
			f := s.frames[lastIndex]
			s.cond.L.Unlock()
			if f != nil {
				img := image.NewGray(image.Rect(0, 0, f.Cols, f.Rows))
				f.AGCGray(img)
				err = visualize.EncodePNG(conn, img)
			}
			s.cond.L.Lock()
		}
	}
	if err != nil {
		log.Printf("diag: stream closed: %v", err)
	}
}
