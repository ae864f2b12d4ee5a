// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package diag

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maruel/detectord/ring"
	"github.com/maruel/detectord/seqengine"
	"github.com/maruel/detectord/stats"
	"github.com/maruel/detectord/watchdog"
)

func newTestServer() *Server {
	statist := stats.New()
	engine := seqengine.New(nil, statist)
	ringBuf := ring.New(4 * 4 * 2)
	wd := watchdog.New(statist)
	return New(4, 4, engine, ringBuf, statist, wd)
}

func TestStatusServesHTMLWithEngineState(t *testing.T) {
	s := newTestServer()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "text/html", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Body.String(), "IDLE")
}

func TestPushFrameAdvancesRingIndexAndBroadcasts(t *testing.T) {
	s := newTestServer()
	require.Equal(t, -1, s.lastIndex)

	payload := make([]byte, 4*4*2)
	s.PushFrame(payload)
	require.Equal(t, 0, s.lastIndex)
	require.NotNil(t, s.frames[0])

	s.PushFrame(payload)
	require.Equal(t, 1, s.lastIndex)
}

func TestPushFrameIgnoresShortPayload(t *testing.T) {
	s := newTestServer()
	s.PushFrame([]byte{1, 2, 3})
	require.Equal(t, -1, s.lastIndex)
}
