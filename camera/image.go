// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package camera implements the uniform frame-producing abstraction:
// live single, live stereo, live webcam, or file-playback sources all
// emit the same Image type on a hot stream (spec.md §4.1).
package camera

import (
	"image"

	"github.com/openpupil/pupilcore/procmode"
)

// Kind is the closed source-kind enumeration of spec.md §3.
type Kind = procmode.SourceKind

// Re-exported for callers that only import package camera.
const (
	KindLiveSingle = procmode.KindLiveSingle
	KindLiveStereo = procmode.KindLiveStereo
	KindLiveWebcam = procmode.KindLiveWebcam
	KindFileSingle = procmode.KindFileSingle
	KindFileStereo = procmode.KindFileStereo
)

// Image is one acquired frame, or frame pair, per spec.md §3.
//
// Timestamp is milliseconds since epoch, stamped by the grabbing
// goroutine at buffer completion — never recomputed by a receiver.
// For live sources FrameNumber increases monotonically per source and
// never resets (spec.md §9's frame-number open question). For file
// playback it is the index of the file being played, so it wraps to 0
// on a loop and also follows Seek, Stop and Close.
type Image struct {
	Timestamp   int64
	Kind        Kind
	FrameNumber int64
	Primary     *image.Gray
	Secondary   *image.Gray // only set for stereo kinds
	Filename    string      // only set for file kinds
}

// Stereo reports whether this image carries two views.
func (im Image) Stereo() bool {
	return im.Secondary != nil
}

// Clock produces the monotonic acquisition timestamp used to stamp new
// images, in milliseconds since epoch. Overridable in tests exactly as
// the teacher's fake sources override wall-clock time.
type Clock func() int64
