// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"image"
	"sync"
	"time"
)

// DefaultPairWindow is the default maximum timestamp difference between
// a primary and secondary grab that still qualifies as one
// hardware-triggered pair (spec.md §4.2).
const DefaultPairWindow = 5 * time.Millisecond

// rawFrame is one per-camera grab before pairing: a timestamp, frame
// number and image, not yet wrapped as a camera.Image.
type rawFrame struct {
	timestamp int64 // milliseconds
	frameNum  int64
	img       *image.Gray
}

// Pairer binds two independently grabbed per-camera frame streams into
// one Image by monotonic timestamp window (spec.md §4.2, C4). It owns
// two bounded FIFOs (capacity >= 4) fed by the primary/secondary
// grabber goroutines; frames beyond a FIFO's capacity are dropped
// oldest first and counted in Dropped.
type Pairer struct {
	window   time.Duration
	capacity int

	mu      sync.Mutex
	primary []rawFrame
	second  []rawFrame

	paired  chan Image
	dropped int
}

// NewPairer returns a Pairer with the given pair window and FIFO
// capacity (clamped to at least 4, per spec.md §4.2).
func NewPairer(window time.Duration, capacity int) *Pairer {
	if window <= 0 {
		window = DefaultPairWindow
	}
	if capacity < 4 {
		capacity = 4
	}
	return &Pairer{
		window:   window,
		capacity: capacity,
		primary:  make([]rawFrame, 0, capacity),
		second:   make([]rawFrame, 0, capacity),
		paired:   make(chan Image, capacity),
	}
}

// PushPrimary enqueues a frame from the primary camera, evaluating the
// pairing algorithm afterward.
func (p *Pairer) PushPrimary(ts, frameNum int64, img *image.Gray) {
	p.mu.Lock()
	p.primary = append(p.primary, rawFrame{ts, frameNum, img})
	p.evaluate()
	p.mu.Unlock()
}

// PushSecondary enqueues a frame from the secondary camera.
func (p *Pairer) PushSecondary(ts, frameNum int64, img *image.Gray) {
	p.mu.Lock()
	p.second = append(p.second, rawFrame{ts, frameNum, img})
	p.evaluate()
	p.mu.Unlock()
}

// evaluate runs spec.md §4.2's peek/consume/drop algorithm while both
// FIFOs are non-empty. Must be called with mu held.
func (p *Pairer) evaluate() {
	for len(p.primary) > 0 && len(p.second) > 0 {
		a := p.primary[0]
		b := p.second[0]
		diff := a.timestamp - b.timestamp
		if diff < 0 {
			diff = -diff
		}
		if time.Duration(diff)*time.Millisecond <= p.window {
			p.primary = p.primary[1:]
			p.second = p.second[1:]
			out := Image{
				Timestamp:   a.timestamp,
				Kind:        KindLiveStereo,
				FrameNumber: a.frameNum,
				Primary:     a.img,
				Secondary:   b.img,
			}
			select {
			case p.paired <- out:
			default:
				// Consumer too slow: drop the oldest pending output to
				// keep memory bounded; this is telemetry, not a pairing
				// failure, so it does not count against Dropped.
				<-p.paired
				p.paired <- out
			}
			continue
		}
		// Drop the older head and count the skip.
		if a.timestamp < b.timestamp {
			p.primary = p.primary[1:]
		} else {
			p.second = p.second[1:]
		}
		p.dropped++
	}
	// A FIFO only grows while the other is empty; keep it within its
	// capacity by dropping its oldest, still unpaired frames.
	for len(p.primary) > p.capacity {
		p.primary = p.primary[1:]
		p.dropped++
	}
	for len(p.second) > p.capacity {
		p.second = p.second[1:]
		p.dropped++
	}
}

// Paired is the emitted stream of paired Images.
func (p *Pairer) Paired() <-chan Image { return p.paired }

// Dropped returns the count of frames dropped because no partner
// arrived within the pair window.
func (p *Pairer) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
