// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func alwaysIdle() bool { return true }
func neverIdle() bool  { return false }

func writeConfig(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "detectord.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesAllFields(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"rows": 2048, "cols": 2048, "bit_depth": 16,
		"csi2_lane_speed": 1500, "csi2_lane_count": 4, "mtu": 8192, "psk": "secret",
		"frame_rate": 9.0, "host_ip": "192.0.2.10", "data_port": 8000,
		"control_port": 8001, "log_level": "INFO"
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rows != 2048 || cfg.Cols != 2048 || cfg.BitDepth != 16 {
		t.Fatalf("unexpected cold fields: %+v", cfg)
	}
	if cfg.HostIP != "192.0.2.10" || cfg.DataPort != 8000 {
		t.Fatalf("unexpected hot fields: %+v", cfg)
	}
}

func TestApplyAllowedWhileIdle(t *testing.T) {
	current := &Config{Rows: 2048}
	next := &Config{Rows: 1024}
	got, err := Apply(current, next, alwaysIdle)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rows != 1024 {
		t.Fatalf("Rows = %d, want 1024", got.Rows)
	}
}

func TestApplyRejectsColdParameterWhileNotIdle(t *testing.T) {
	current := &Config{Rows: 2048}
	next := &Config{Rows: 1024}
	if _, err := Apply(current, next, neverIdle); err != ErrColdParameterChanged {
		t.Fatalf("got %v, want ErrColdParameterChanged", err)
	}
}

func TestApplyAllowsHotParameterWhileNotIdle(t *testing.T) {
	current := &Config{FrameRate: 9.0, HostIP: "192.0.2.1"}
	next := &Config{FrameRate: 15.0, HostIP: "192.0.2.2"}
	got, err := Apply(current, next, neverIdle)
	if err != nil {
		t.Fatal(err)
	}
	if got.FrameRate != 15.0 || got.HostIP != "192.0.2.2" {
		t.Fatalf("got %+v", got)
	}
}

func TestApplyRejectsMixedColdAndHotChangeWhileNotIdle(t *testing.T) {
	current := &Config{Rows: 2048, FrameRate: 9.0}
	next := &Config{Rows: 1024, FrameRate: 15.0}
	if _, err := Apply(current, next, neverIdle); err != ErrColdParameterChanged {
		t.Fatalf("got %v, want ErrColdParameterChanged (cold field present alongside hot field)", err)
	}
}

func TestApplyNoopChangeAlwaysSucceeds(t *testing.T) {
	current := &Config{Rows: 2048, FrameRate: 9.0}
	next := &Config{Rows: 2048, FrameRate: 9.0}
	if _, err := Apply(current, next, neverIdle); err != nil {
		t.Fatalf("identical config should never be rejected: %v", err)
	}
}
