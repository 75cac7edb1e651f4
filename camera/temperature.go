// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"sync"
	"time"

	"periph.io/x/periph/devices"
)

// DefaultTemperaturePollInterval matches the original PupilEXT's
// periodic camera temperature check cadence (SPEC_FULL.md §9).
const DefaultTemperaturePollInterval = 30 * time.Second

// TemperatureSource is implemented by a camera able to report its own
// temperature, polled by the Temperature-monitor thread of spec.md §5.
type TemperatureSource interface {
	Temperature() (devices.Celsius, error)
}

// TemperatureRecorder is the subset of eventtracker.Tracker the poller
// needs, kept as a local interface so package camera does not import
// package eventtracker.
type TemperatureRecorder interface {
	AddTemperatureCheck(ts int64, temps []devices.Celsius)
}

// TemperaturePoller runs the Temperature-monitor thread: it samples one
// or more cameras on an interval and appends a temperature-check event
// (spec.md §3, §5). A failed read is a Transient error: coalesced and
// skipped, the pipeline continues (spec.md §7).
type TemperaturePoller struct {
	sources  []TemperatureSource
	recorder TemperatureRecorder
	interval time.Duration
	clock    Clock

	mu      sync.Mutex
	failures int

	stop chan struct{}
	done chan struct{}
}

// NewTemperaturePoller polls sources (one entry per physical camera)
// every interval (DefaultTemperaturePollInterval when zero).
func NewTemperaturePoller(sources []TemperatureSource, recorder TemperatureRecorder, interval time.Duration, clock Clock) *TemperaturePoller {
	if interval <= 0 {
		interval = DefaultTemperaturePollInterval
	}
	if clock == nil {
		clock = defaultClock
	}
	return &TemperaturePoller{sources: sources, recorder: recorder, interval: interval, clock: clock}
}

// Start begins polling on its own goroutine. Idempotent: calling Start
// while already running is a no-op.
func (p *TemperaturePoller) Start() {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stop, p.done
	p.mu.Unlock()
	go p.run(stop, done)
}

// Stop drains the polling goroutine before returning; idempotent.
func (p *TemperaturePoller) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop = nil
	p.done = nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (p *TemperaturePoller) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *TemperaturePoller) poll() {
	temps := make([]devices.Celsius, 0, len(p.sources))
	for _, s := range p.sources {
		t, err := s.Temperature()
		if err != nil {
			p.mu.Lock()
			p.failures++
			p.mu.Unlock()
			continue
		}
		temps = append(temps, t)
	}
	if len(temps) == 0 {
		return
	}
	p.recorder.AddTemperatureCheck(p.clock(), temps)
}

// Failures returns the count of temperature reads that errored.
func (p *TemperaturePoller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}
