// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package eventtracker

// TrialCounter is the monotone non-negative trial counter scoped to
// one camera's open/close lifetime (spec.md §3): created when a camera
// opens, destroyed on close, its value otherwise persisting across
// detection start/stop. It is a thin, timestamp-stamping facade over
// Tracker's two trial-affecting operations.
type TrialCounter struct {
	tracker *Tracker
}

// NewTrialCounter binds a TrialCounter to tracker. Call this when the
// owning camera source opens; simply drop the value when it closes.
func NewTrialCounter(tracker *Tracker) *TrialCounter {
	return &TrialCounter{tracker: tracker}
}

// IncrementAt appends a trial-increment event at t.
func (c *TrialCounter) IncrementAt(t int64) {
	c.tracker.AddTrialIncrement(t)
}

// ResetAt appends a trial-reset event at t, refused (no-op) while a
// writer/streamer is active.
func (c *TrialCounter) ResetAt(t int64) (refused bool) {
	return c.tracker.ResetTrialCounter(t)
}

// Value returns the trial number in force at t.
func (c *TrialCounter) Value(t int64) int {
	return c.tracker.TrialNumberAt(t)
}
