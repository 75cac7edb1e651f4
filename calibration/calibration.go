// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package calibration defines the read-only calibration contract the
// core consumes. Calibration mathematics (camera intrinsics,
// undistortion, stereo triangulation) are an external collaborator per
// spec.md §1; this package only fixes the two operations the scheduler
// and data writer call.
package calibration

import (
	"image"

	"github.com/openpupil/pupilcore/pupil"
)

// Calibration is attached to the detection scheduler and treated as
// read-only for the scheduler's lifetime. It may be nil, in which case
// derived physical/undistorted fields are simply left unset.
type Calibration interface {
	// Undistort maps a point in raw image coordinates to its
	// undistorted position.
	Undistort(p pupil.Point) pupil.Point

	// PhysicalDiameterMM derives a real-world pupil diameter in
	// millimeters from the same pupil observed in each of a stereo
	// pair's two views, given the shared image size.
	PhysicalDiameterMM(view1, view2 pupil.Pupil, imageSize image.Point) (mm float64, ok bool)
}
