// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package procmode defines the closed enumeration of processing modes
// the detection scheduler can run under, and the source kinds each mode
// is compatible with.
package procmode

import "fmt"

// Mode selects how a camera.Image is to be interpreted by the detection
// scheduler: how many images it carries and how many pupils to look for
// in each.
type Mode int

// The closed set of processing modes.
const (
	Undetermined Mode = iota
	SingleOne         // one image, one pupil
	SingleTwo         // one image, two pupils in two disjoint halves
	StereoOne         // two views, one pupil
	StereoTwo         // two views, two pupils
)

func (m Mode) String() string {
	switch m {
	case SingleOne:
		return "single-one"
	case SingleTwo:
		return "single-two"
	case StereoOne:
		return "stereo-one"
	case StereoTwo:
		return "stereo-two"
	default:
		return "undetermined"
	}
}

// SlotCount returns the fixed number of result-vector slots this mode
// produces, per spec.md §4.6's slot order table.
func (m Mode) SlotCount() int {
	switch m {
	case SingleOne:
		return 1
	case SingleTwo:
		return 2
	case StereoOne:
		return 2
	case StereoTwo:
		return 4
	default:
		return 0
	}
}

// Stereo reports whether this mode requires a stereo (two-image) source.
func (m Mode) Stereo() bool {
	return m == StereoOne || m == StereoTwo
}

// ROICount returns how many ROIs this mode declares, by role.
func (m Mode) ROICount() int {
	switch m {
	case SingleOne:
		return 1
	case SingleTwo:
		return 2
	case StereoOne:
		return 2
	case StereoTwo:
		return 4
	default:
		return 0
	}
}

// SourceKind mirrors camera.Kind without importing package camera, to
// avoid an import cycle between camera and scheduler (both need mode
// compatibility checks).
type SourceKind int

const (
	KindLiveSingle SourceKind = iota
	KindLiveStereo
	KindLiveWebcam
	KindFileSingle
	KindFileStereo
)

func (k SourceKind) String() string {
	switch k {
	case KindLiveSingle:
		return "live-single"
	case KindLiveStereo:
		return "live-stereo"
	case KindLiveWebcam:
		return "live-webcam"
	case KindFileSingle:
		return "file-single"
	case KindFileStereo:
		return "file-stereo"
	default:
		return "unknown"
	}
}

func (k SourceKind) stereo() bool {
	return k == KindLiveStereo || k == KindFileStereo
}

// Compatible reports whether mode m can run against a source of kind k.
// Selecting an incompatible combination is a configuration error that
// must be surfaced to the caller before detection may start, per
// spec.md §3 and §7.
func (m Mode) Compatible(k SourceKind) bool {
	if m == Undetermined {
		return false
	}
	return m.Stereo() == k.stereo()
}

// ErrIncompatible is returned when a ProcMode is set against a source
// kind that cannot supply the images it requires.
type ErrIncompatible struct {
	Mode Mode
	Kind SourceKind
}

func (e *ErrIncompatible) Error() string {
	return fmt.Sprintf("procmode: mode %s is incompatible with source kind %s", e.Mode, e.Kind)
}
