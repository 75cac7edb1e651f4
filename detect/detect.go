// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package detect defines the pluggable pupil-detection strategy
// contract. Concrete algorithms (the mathematics of finding an ellipse
// in a grayscale image) are external to the core, per spec.md §1; this
// package only fixes the interface they must implement.
package detect

import (
	"image"

	"github.com/openpupil/pupilcore/pupil"
)

// Strategy transforms a grayscale sub-image into zero or one Pupil.
// Implementations must be safe to invoke from the single detection
// thread only; the scheduler never calls a Strategy concurrently with
// itself, but the same Strategy instance may be reused across ROI
// roles within one frame (spec.md §4.6).
type Strategy interface {
	// Name identifies the algorithm, used in the data-writer metadata
	// sidecar (spec.md §4.9).
	Name() string

	// Detect searches img (already cropped to the ROI) for a pupil
	// ellipse. It returns ok=false when no pupil was found; it must
	// never return an error for "no pupil found", only for a genuine
	// operational failure.
	Detect(img *image.Gray) (p pupil.Pupil, ok bool, err error)
}

// Tunable is optionally implemented by a Strategy whose parameters can
// be derived from the auto-parameter tuner's scalar "expected maximum
// pupil size" percentage (spec.md §4.7). Strategies that do not
// implement Tunable are skipped by the tuner.
type Tunable interface {
	// ApplyAutoParams receives strategy-private parameters computed by
	// an autoparam.Tuner from a percentage of the shorter image axis.
	ApplyAutoParams(params map[string]float64)
}
