// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package detect

import (
	"image"
	"math/rand"

	"github.com/openpupil/pupilcore/pupil"
)

// FakeStrategy is a deterministic stand-in for a real detection
// algorithm, used by tests and, alongside camera.FakeGrabber, by
// cmd/pupilcore to exercise the scheduler without hardware or a vision
// library, mirroring how the
// teacher's leptontest.LeptonFake renders synthetic noise instead of
// reading a real sensor.
type FakeStrategy struct {
	rnd    *rand.Rand
	params map[string]float64
}

// NewFakeStrategy returns a FakeStrategy seeded for reproducible tests.
func NewFakeStrategy(seed int64) *FakeStrategy {
	return &FakeStrategy{rnd: rand.New(rand.NewSource(seed))}
}

func (f *FakeStrategy) Name() string { return "fake" }

// Detect succeeds for any non-empty img (an empty one yields ok=false),
// returning an ellipse centered in img with a
// size jittered by the seeded PRNG so repeated calls are stable across
// a fixed seed but not degenerate.
func (f *FakeStrategy) Detect(img *image.Gray) (pupil.Pupil, bool, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return pupil.Pupil{}, false, nil
	}
	cx := float64(b.Dx()) / 2
	cy := float64(b.Dy()) / 2
	base := float64(min(b.Dx(), b.Dy())) * 0.3
	jitter := f.rnd.NormFloat64() * base * 0.05
	p := pupil.Pupil{
		Center:            pupil.Point{X: cx, Y: cy},
		Size:              pupil.Size{Width: base + jitter, Height: base*0.9 + jitter},
		Angle:             0,
		Confidence:        0.9,
		OutlineConfidence: 0.85,
	}
	return p, true, nil
}

// ApplyAutoParams records the last tuned parameters; FakeStrategy does
// not otherwise change behavior based on them.
func (f *FakeStrategy) ApplyAutoParams(params map[string]float64) {
	f.params = params
}
