// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	fsnotify "gopkg.in/fsnotify.v1"
)

// Watcher watches the config file for writes and invokes onReload with
// the freshly parsed Config on every change, the same select-on-a-single-
// events-channel shape as cmd/lepton/watch_linux.go uses to watch its own
// executable for updates.
type Watcher struct {
	fsw  *fsnotify.Watcher
	path string
	done chan struct{}
}

// NewWatcher starts watching path (the config file) for writes.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw, path: path, done: make(chan struct{})}, nil
}

// Run blocks, calling onReload(cfg, err) each time the watched file
// changes and is re-parsed (err is non-nil if the reload failed to parse,
// in which case cfg is nil), until Close is called.
func (w *Watcher) Run(onReload func(cfg *Config, err error)) {
	for {
		select {
		case <-w.done:
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			onReload(nil, err)
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			cfg, err := Load(w.path)
			onReload(cfg, err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
