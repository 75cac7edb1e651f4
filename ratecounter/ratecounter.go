// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ratecounter implements the one-second sliding-window FPS
// estimator usable on any frame source (spec.md §4.5, C14).
package ratecounter

import (
	"sync"
	"time"
)

// Counter counts events (frame emissions) over a trailing one-second
// window. It is a plain slice of timestamps trimmed on each FrameCount,
// deliberately not a ring buffer or generic container — the window is
// small (at most a few hundred entries at >100 FPS) and a slice keeps
// the implementation obvious.
type Counter struct {
	mu    sync.Mutex
	times []time.Time
	now   func() time.Time
}

// New returns an empty Counter using the real wall clock.
func New() *Counter {
	return &Counter{now: time.Now}
}

// Mark records one event at the current time.
func (c *Counter) Mark() {
	c.mu.Lock()
	c.times = append(c.times, c.now())
	c.mu.Unlock()
}

// FPS returns the count of events in the trailing one-second window
// divided by one second, trimming events older than the window.
func (c *Counter) FPS() float64 {
	return float64(c.FrameCount())
}

// FrameCount returns the number of events in the trailing one-second
// window, trimming stale entries as a side effect.
func (c *Counter) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-time.Second)
	i := 0
	for i < len(c.times) && c.times[i].Before(cutoff) {
		i++
	}
	c.times = c.times[i:]
	return len(c.times)
}

// Reporter drives FPS/FrameCount signals once per second on its own
// goroutine, matching spec.md §4.5's "once per second" cadence. fps and
// frameCount are called with the Counter's lock already released.
type Reporter struct {
	counter *Counter
	fps     func(float64)
	count   func(int)

	stop chan struct{}
	done chan struct{}
}

// NewReporter wires a Counter to the two per-second callback signals.
func NewReporter(counter *Counter, fps func(float64), count func(int)) *Reporter {
	return &Reporter{counter: counter, fps: fps, count: count}
}

// Start begins the one-second reporting ticker. Idempotent.
func (r *Reporter) Start() {
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stop, r.done)
}

// Stop halts the reporting ticker and waits for it to drain. Idempotent.
func (r *Reporter) Stop() {
	if r.stop == nil {
		return
	}
	stop, done := r.stop, r.done
	r.stop = nil
	r.done = nil
	close(stop)
	<-done
}

func (r *Reporter) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n := r.counter.FrameCount()
			if r.count != nil {
				r.count(n)
			}
			if r.fps != nil {
				r.fps(float64(n))
			}
		}
	}
}
