// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package autoparam implements the one-shot adaptation of detection
// parameters from a target "expected maximum pupil size" fraction of
// the image's shorter axis (spec.md §4.7, C8).
package autoparam

import "image"

// MinPercent and MaxPercent bound the valid input range (spec.md §4.7,
// §6): 20-100, default 50.
const (
	MinPercent     = 20
	MaxPercent     = 100
	DefaultPercent = 50
)

// Tunable is implemented by a detect.Strategy whose parameters can be
// derived from the tuner's scalar. Strategies that don't implement it
// are skipped: the mapping from percent to per-strategy parameters is
// strategy-private, so the tuner only guarantees delivery, not
// interpretation.
type Tunable interface {
	ApplyAutoParams(params map[string]float64)
}

// Tuner computes strategy-private parameters from percent (the
// expected maximum pupil size as a percentage of the shorter image
// axis) and imageSize, and applies them to every Tunable strategy
// exactly once per invocation.
type Tuner struct{}

// New returns a Tuner. It carries no state: the mapping is a pure
// function of (percent, imageSize, strategy).
func New() *Tuner { return &Tuner{} }

// Tune derives generic ellipse-axis bounds and a search-window size
// from percent and imageSize, then calls ApplyAutoParams on every
// strategy that implements Tunable. It is the caller's responsibility
// (scheduler.Scheduler) to invoke Tune exactly once per schedule-flag
// toggle and before detection runs on the triggering frame, per
// spec.md §4.7.
func (t *Tuner) Tune(percent int, imageSize image.Point, strategies ...Tunable) map[string]float64 {
	if percent < MinPercent {
		percent = MinPercent
	}
	if percent > MaxPercent {
		percent = MaxPercent
	}
	shortAxis := imageSize.X
	if imageSize.Y < shortAxis {
		shortAxis = imageSize.Y
	}
	maxDiameter := float64(shortAxis) * float64(percent) / 100
	params := map[string]float64{
		"maxAxis":      maxDiameter,
		"minAxis":      maxDiameter * 0.1,
		"searchWindow": maxDiameter * 1.5,
	}
	for _, s := range strategies {
		if s == nil {
			continue
		}
		s.ApplyAutoParams(params)
	}
	return params
}
