// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package playback

import (
	"sync"

	"github.com/openpupil/pupilcore/camera"
	"github.com/openpupil/pupilcore/eventtracker"
)

// Synchronizer couples file-playback cadence to detector completion
// (spec.md §4.12, C13) so no frame is skipped: the reader blocks after
// publishing a frame until the scheduler signals it finished
// processing. When detection is stopped, the synchronizer
// short-circuits the processed signal so playback still runs at the
// target FPS.
//
// Mechanism: a pair of sync.Cond-backed handshakes (image-published,
// image-processed) under one mutex, matching spec.md §4.12's
// condition-variable description directly rather than reaching for
// channels, since the handshake is a classic producer/consumer rendezvous.
type Synchronizer struct {
	mu         sync.Mutex
	published  *sync.Cond
	processed  *sync.Cond
	pubSeq     int64
	procSeq    int64
	detecting  bool
	tracker    *eventtracker.Tracker
}

// NewSynchronizer returns a Synchronizer. tracker, if non-nil, receives
// a synthetic trial-reset event on every loop wrap (spec.md §4.8/§4.12).
func NewSynchronizer(tracker *eventtracker.Tracker) *Synchronizer {
	s := &Synchronizer{tracker: tracker}
	s.published = sync.NewCond(&s.mu)
	s.processed = sync.NewCond(&s.mu)
	return s
}

// SetDetecting toggles whether the scheduler is currently consuming
// frames. While false, waitProcessed returns immediately so playback
// free-runs at target FPS (spec.md §4.12).
func (s *Synchronizer) SetDetecting(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detecting = on
	if !on {
		s.processed.Broadcast()
	}
}

// waitPublish announces a newly emitted frame to anything waiting on
// the image-published condition (e.g. a UI preview synchronized to
// playback, not just the scheduler).
func (s *Synchronizer) waitPublish(img camera.Image, stop <-chan struct{}) {
	s.mu.Lock()
	s.pubSeq++
	s.published.Broadcast()
	s.mu.Unlock()
}

// waitProcessed blocks the Playback thread until the scheduler calls
// NotifyProcessed for this frame, or detection is toggled off, or stop
// fires. Returns false if stop fired while waiting.
func (s *Synchronizer) waitProcessed(stop <-chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.detecting {
		return true
	}
	target := s.pubSeq
	done := make(chan struct{})
	go func() {
		select {
		case <-stop:
			s.mu.Lock()
			s.processed.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()
	for s.procSeq < target && s.detecting {
		select {
		case <-stop:
			close(done)
			return false
		default:
		}
		s.processed.Wait()
	}
	close(done)
	select {
	case <-stop:
		return false
	default:
		return true
	}
}

// NotifyProcessed signals that the scheduler finished processing the
// most recently published frame, waking the Playback thread.
func (s *Synchronizer) NotifyProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procSeq++
	s.processed.Broadcast()
}

// onLoopWrap is called by Reader.advance on a loop wrap with the
// wall-clock timestamp of the wrap; it injects a synthetic trial-reset
// event so a consumer watching processed data sees the trial number
// return to 0 exactly once per wrap (spec.md §4.3 scenario 3). The
// wrap happens strictly between the last pre-wrap frame's emission and
// the first post-wrap frame's emission, so a reading taken at the
// moment of wrap sits correctly between their timestamps.
func (s *Synchronizer) onLoopWrap(ts int64) {
	if s.tracker == nil {
		return
	}
	s.tracker.InjectLoopReset(ts)
}
