// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package trigger

import "sync"

// Signal lets a camera.LiveStereo observe when this Controller has
// actually issued Start/Stop, satisfying camera.Trigger's Subscribe
// contract without camera importing package trigger directly. The
// camera source must already be listening before Start fires, per
// spec.md §4.1's testable ordering invariant — callers
// are responsible for calling Source.StartGrabbing before Signal.Start.
type Signal struct {
	mu    sync.Mutex
	start chan struct{}
	stop  chan struct{}
}

// NewSignal returns a Signal ready for one Subscribe call.
func NewSignal() *Signal {
	return &Signal{
		start: make(chan struct{}),
		stop:  make(chan struct{}),
	}
}

// Subscribe returns the start/stop notification channels. Implements
// camera.Trigger.
func (s *Signal) Subscribe() (start <-chan struct{}, stop <-chan struct{}) {
	return s.start, s.stop
}

// Start closes the start channel, waking any subscriber exactly once.
// Safe to call only once per Signal lifetime; construct a fresh Signal
// for a subsequent run.
func (s *Signal) Start() {
	close(s.start)
}

// Stop closes the stop channel, waking any subscriber exactly once.
func (s *Signal) Stop() {
	close(s.stop)
}
