// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging provides the daemon's structured log record on top of
// the standard library's log.Logger, matching the teacher's habit of
// sticking to plain log.Printf/fmt.Printf call sites rather than reaching
// for a third-party logging library anywhere in device code.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

// Level is one of the five severities a record can carry.
type Level int32

const (
	Debug Level = iota
	Info
	Warning
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Logger emits {timestamp, module, level, message} records through an
// underlying *log.Logger, filtering anything below a runtime-settable
// threshold. The zero value is not usable; use New.
type Logger struct {
	std       *log.Logger
	module    string
	threshold int32 // Level, accessed atomically so SetThreshold is safe
	// to call from any goroutine while other goroutines log concurrently.
}

// New returns a Logger tagging every record with module, writing to w
// (os.Stderr if w is nil). The initial threshold is Info.
func New(module string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		std:       log.New(w, "", 0),
		module:    module,
		threshold: int32(Info),
	}
}

// SetThreshold changes the minimum level that will be emitted.
func (l *Logger) SetThreshold(level Level) {
	atomic.StoreInt32(&l.threshold, int32(level))
}

// Threshold returns the current minimum emitted level.
func (l *Logger) Threshold() Level {
	return Level(atomic.LoadInt32(&l.threshold))
}

// With returns a Logger sharing the same sink but tagging records with a
// different module name; used to scope a logger to a single subsystem
// without constructing a brand new sink. The child starts with a copy of
// l's current threshold; a later SetThreshold on either logger does not
// change the other's.
func (l *Logger) With(module string) *Logger {
	return &Logger{std: l.std, module: module, threshold: atomic.LoadInt32(&l.threshold)}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.Threshold() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("%s module=%s level=%s msg=%q", time.Now().UTC().Format(time.RFC3339Nano), l.module, level, msg)
}

func (l *Logger) Debugf(format string, args ...interface{})    { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})     { l.log(Info, format, args...) }
func (l *Logger) Warningf(format string, args ...interface{})  { l.log(Warning, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})    { l.log(Error, format, args...) }
func (l *Logger) Criticalf(format string, args ...interface{}) { l.log(Critical, format, args...) }
