// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging provides the leveled logger used throughout the
// pipeline, a thin wrapper over the standard library "log" package in
// the same spirit as the teacher's plain log.Printf calls
// (cmd/lepton/main.go, cmd/lepton/server.go) rather than reaching for
// a structured logging library the corpus never imports.
package logging

import (
	"log"
	"os"
)

// Level orders log severities; higher is more severe.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?"
	}
}

// Logger wraps *log.Logger with a minimum level filter.
type Logger struct {
	min  Level
	std  *log.Logger
}

// New returns a Logger writing to os.Stderr with the given prefix and
// minimum level.
func New(prefix string, min Level) *Logger {
	return &Logger{min: min, std: log.New(os.Stderr, prefix, log.LstdFlags|log.Lmicroseconds)}
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.min {
		return
	}
	l.std.Printf("["+level.String()+"] "+format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(Error, format, args...) }
