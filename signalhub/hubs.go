// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package signalhub

import (
	"github.com/openpupil/pupilcore/camera"
	"github.com/openpupil/pupilcore/procmode"
	"github.com/openpupil/pupilcore/pupil"
)

// ProcessedImage is the payload of the processed_image signal:
// spec.md §4.6's throttled preview carrying the frame alongside the
// ROIs and pupils the scheduler used to produce it.
type ProcessedImage struct {
	Image camera.Image
	Mode  procmode.Mode
	ROIs  []RectF
	Pupils []pupil.Pupil
}

// RectF is a discrete ROI snapshot in pixel coordinates, decoupled from
// package roi so signalhub has no import-cycle risk with scheduler.
type RectF struct {
	X0, Y0, X1, Y1 int
}

// ProcessedPupilData is the payload of the processed_pupil_data
// signal: spec.md §4.6 step 7's unthrottled, per-frame data emission.
type ProcessedPupilData struct {
	Timestamp int64
	Mode      procmode.Mode
	Pupils    []pupil.Pupil
	ImageID   int64
	Trial     int
}

// Hubs bundles the five named signals of spec.md §4.13: a fan-out
// point per signal so each has its own independent subscriber set and
// backpressure behavior.
type Hubs struct {
	NewGrabResult     *Hub[camera.Image]
	CameraFPS         *Hub[float64]
	CameraFrameCount  *Hub[int]
	ProcessedImage    *Hub[ProcessedImage]
	ProcessedPupilData *Hub[ProcessedPupilData]
}

// NewHubs constructs all five signal hubs.
func NewHubs() *Hubs {
	return &Hubs{
		NewGrabResult:      New[camera.Image](),
		CameraFPS:          New[float64](),
		CameraFrameCount:   New[int](),
		ProcessedImage:     New[ProcessedImage](),
		ProcessedPupilData: New[ProcessedPupilData](),
	}
}
