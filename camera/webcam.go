// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"errors"
	"image"
)

// ErrWebcamUnsupported is returned by LiveWebcam's ROI/binning setters:
// a consumer webcam exposes a fixed format, matching the reduced
// capability set the original PupilEXT's webcam settings dialog
// configured (SPEC_FULL.md §9).
var ErrWebcamUnsupported = errors.New("camera: webcam does not support this operation")

// LiveWebcam is a single low-rate source with a fixed frame format: no
// ROI or binning control, per spec.md §3's live-webcam source kind.
type LiveWebcam struct {
	*LiveSingle
}

// NewLiveWebcam wraps grab as a reduced-capability webcam source. Its
// embedded LiveSingle is constructed with KindLiveWebcam so every
// Image it emits, not just Source.Kind(), reports the true source.
func NewLiveWebcam(grab Grabber, clock Clock) *LiveWebcam {
	return &LiveWebcam{LiveSingle: newLiveSingle(grab, clock, KindLiveWebcam)}
}

func (w *LiveWebcam) SetImageROI(r image.Rectangle) error {
	return ErrWebcamUnsupported
}

func (w *LiveWebcam) SetBinning(n int) error {
	return ErrWebcamUnsupported
}
