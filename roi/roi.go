// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package roi implements the region-of-interest rectangle: persisted as
// a fraction of the image size, materialized to discrete pixel
// coordinates per frame.
package roi

import (
	"errors"
	"image"
	"math"
)

// Rational is an ROI expressed as fractions of the image dimensions,
// the form persisted to configuration.
type Rational struct {
	X, Y, W, H float64 // each in [0, 1]
}

// ErrOutOfBounds is returned by Discretize and by Role validation when
// an ROI does not fit within the image it is applied to.
var ErrOutOfBounds = errors.New("roi: out of bounds")

// Discretize materializes a Rational ROI into discrete pixel
// coordinates for an image of the given size. Offset and size are each
// rounded to whole pixels, and the far edge is clamped to the image so
// rounding cannot push it outside. A Rational that does not fit within
// the unit square is rejected with ErrOutOfBounds, not clamped.
func (r Rational) Discretize(imgSize image.Point) (image.Rectangle, error) {
	if r.W <= 0 || r.H <= 0 || r.X < 0 || r.Y < 0 || r.X+r.W > 1 || r.Y+r.H > 1 {
		return image.Rectangle{}, ErrOutOfBounds
	}
	x0 := int(math.Round(r.X * float64(imgSize.X)))
	y0 := int(math.Round(r.Y * float64(imgSize.Y)))
	x1 := x0 + int(math.Round(r.W*float64(imgSize.X)))
	y1 := y0 + int(math.Round(r.H*float64(imgSize.Y)))
	if x1 > imgSize.X {
		x1 = imgSize.X
	}
	if y1 > imgSize.Y {
		y1 = imgSize.Y
	}
	rect := image.Rect(x0, y0, x1, y1)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return image.Rectangle{}, ErrOutOfBounds
	}
	bounds := image.Rect(0, 0, imgSize.X, imgSize.Y)
	if !rect.In(bounds) {
		return image.Rectangle{}, ErrOutOfBounds
	}
	return rect, nil
}

// Role identifies which pupil/view slot an ROI serves within a
// processing mode (e.g. "A" and "B" for single-two, "view1"/"view2" for
// stereo-one).
type Role string

const (
	RoleMain  Role = "main"
	RoleA     Role = "A"
	RoleB     Role = "B"
	RoleView1 Role = "view1"
	RoleView2 Role = "view2"
)

// Assignment pairs a Role with its Rational ROI.
type Assignment struct {
	Role Role
	ROI  Rational
}

// NonOverlapping reports whether the discrete rectangles of the given
// assignments, materialized against imgSize, may touch at a border but
// never overlap in interior area — the invariant spec.md §3 requires
// for ROIs assigned to distinct pupils in the same image.
func NonOverlapping(assignments []Assignment, imgSize image.Point) (bool, error) {
	rects := make([]image.Rectangle, 0, len(assignments))
	for _, a := range assignments {
		r, err := a.ROI.Discretize(imgSize)
		if err != nil {
			return false, err
		}
		rects = append(rects, r)
	}
	for i := 0; i < len(rects); i++ {
		for j := i + 1; j < len(rects); j++ {
			if overlapsInterior(rects[i], rects[j]) {
				return false, nil
			}
		}
	}
	return true, nil
}

// overlapsInterior reports true only for an overlap with positive
// area; rectangles that merely share a border edge do not overlap.
func overlapsInterior(a, b image.Rectangle) bool {
	inter := a.Intersect(b)
	return !inter.Empty() && inter.Dx() > 0 && inter.Dy() > 0
}

// SplitHorizontal returns the rational left/right halves of the full
// image, used by procmode.SingleTwo: role A occupies the left half,
// role B the right half (spec.md §4.6 slot order table).
func SplitHorizontal() (left, right Rational) {
	return Rational{X: 0, Y: 0, W: 0.5, H: 1},
		Rational{X: 0.5, Y: 0, W: 0.5, H: 1}
}
