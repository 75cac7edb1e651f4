// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package trigger speaks the hardware-trigger wire protocol to the
// microcontroller that drives the external camera-clock signal, and
// pools the serial connection it runs over so the trigger and the
// serial streamer transport never contend for the same port
// (spec.md §4.4, §5).
package trigger

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"
)

// ErrOpen is a Device error: the serial port failed to open.
var ErrOpen = errors.New("trigger: serial open failed")

// ErrWrite is a Device error: a command could not be written to the
// port.
var ErrWrite = errors.New("trigger: serial write failed")

// DefaultBaud matches the microcontroller firmware's fixed rate.
const DefaultBaud = 115200

// Controller owns one open serial connection to the trigger
// microcontroller and issues the start/stop commands of spec.md §6's
// wire protocol. It does not read or interpret responses: "microcontroller
// responses are ignored by the core."
type Controller struct {
	conn io.ReadWriteCloser
	port string
}

// Open dials the named serial port at the fixed firmware baud rate.
func Open(port string) (*Controller, error) {
	c, err := serial.OpenPort(&serial.Config{Name: port, Baud: DefaultBaud})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, port, err)
	}
	return &Controller{conn: c, port: port}, nil
}

// Close releases the underlying serial connection.
func (c *Controller) Close() error {
	return c.conn.Close()
}

// Start issues "<TX{count}X{delayMicros}>": begin a burst of count
// pulses (0 = unbounded) with delayMicros microseconds between
// half-periods, so one frame period is 2*delayMicros (spec.md §9's
// codified reading of the open protocol question: delay is the
// inter-half-period time, not the full frame period — verify against
// firmware before reusing this controller with different hardware).
func (c *Controller) Start(count int, delayMicros int) error {
	if count < 0 {
		return fmt.Errorf("trigger: count must be >= 0, got %d", count)
	}
	if delayMicros < 1 {
		return fmt.Errorf("trigger: delayMicros must be >= 1, got %d", delayMicros)
	}
	cmd := fmt.Sprintf("<TX%dX%d>", count, delayMicros)
	if _, err := c.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Stop issues "<SX>". The protocol is ack-less; callers treat the
// absence of further frames within 2x the expected inter-frame
// interval as confirmation (spec.md §5's cancellation note) rather
// than waiting on this call.
func (c *Controller) Stop() error {
	if _, err := c.conn.Write([]byte("<SX>")); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// WriteRaw writes raw bytes to the serial port, bypassing the trigger
// protocol. Used by streamer.SerialTransport, which shares this
// Controller's port through the same Pool (spec.md §4.4/§4.11/§5).
func (c *Controller) WriteRaw(b []byte) error {
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// FrameRateHz returns the frame rate implied by delayMicros under the
// "delay is half-period" interpretation: 1e6 / (2*delayMicros).
func FrameRateHz(delayMicros int) float64 {
	if delayMicros <= 0 {
		return 0
	}
	return 1e6 / (2 * float64(delayMicros))
}

// Pool is the named-resource connection pool of spec.md §4.4/§5: the
// serial connection to a given port is the only cross-thread mutable
// shared resource in the whole system, so every writer (trigger start/
// stop, streamer.SerialTransport) takes the port's mutex for the
// duration of one command.
type Pool struct {
	mu    sync.Mutex
	ports map[string]*pooledPort
}

type pooledPort struct {
	mu   sync.Mutex
	ctrl *Controller
}

// NewPool returns an empty connection pool.
func NewPool() *Pool {
	return &Pool{ports: make(map[string]*pooledPort)}
}

// Acquire opens (or reuses an already-open) controller for port and
// returns a handle whose Command method serializes access across all
// callers sharing this Pool.
func (p *Pool) Acquire(port string) (*Handle, error) {
	p.mu.Lock()
	pp, ok := p.ports[port]
	if !ok {
		ctrl, err := Open(port)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		pp = &pooledPort{ctrl: ctrl}
		p.ports[port] = pp
	}
	p.mu.Unlock()
	return &Handle{pool: p, port: port, pp: pp}, nil
}

// Close closes every pooled port.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for port, pp := range p.ports {
		if err := pp.ctrl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.ports, port)
	}
	return firstErr
}

// Handle is a pool-mediated reference to one serial port. Only one
// Command call across all Handles sharing the same port executes at a
// time.
type Handle struct {
	pool *Pool
	port string
	pp   *pooledPort
}

// Command runs fn with the port's mutex held, guaranteeing exclusive
// access for the duration of one command (spec.md §5's shared-resource
// policy).
func (h *Handle) Command(fn func(c *Controller) error) error {
	h.pp.mu.Lock()
	defer h.pp.mu.Unlock()
	return fn(h.pp.ctrl)
}
