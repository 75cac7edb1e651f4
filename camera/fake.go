// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"image"
	"image/color"
	"math/rand"
	"time"
)

// FakeGrabber is a deterministic stand-in for a physical camera SDK,
// used by tests and the file-less "no hardware" demo mode. It renders
// a hard-edged dark disc that drifts frame to frame, mirroring the way the
// teacher's fakeLepton/LeptonFake render synthetic noise instead of
// reading real sensor data.
type FakeGrabber struct {
	rnd       *rand.Rand
	roi       image.Rectangle
	maxROI    image.Rectangle
	binning   int
	exposure  time.Duration
	gain      float64
	opened    bool
	frameRate time.Duration

	blobX, blobY float64
}

// NewFakeGrabber returns a FakeGrabber with a sensor of the given size
// and a PRNG seeded for reproducible tests.
func NewFakeGrabber(sensorW, sensorH int, seed int64) *FakeGrabber {
	max := image.Rect(0, 0, sensorW, sensorH)
	return &FakeGrabber{
		rnd:       rand.New(rand.NewSource(seed)),
		roi:       max,
		maxROI:    max,
		binning:   1,
		exposure:  5 * time.Millisecond,
		gain:      1,
		frameRate: 10 * time.Millisecond,
		blobX:     float64(sensorW) / 2,
		blobY:     float64(sensorH) / 2,
	}
}

func (f *FakeGrabber) Open() error  { f.opened = true; return nil }
func (f *FakeGrabber) Close() error { f.opened = false; return nil }

func (f *FakeGrabber) ROIMax() image.Rectangle { return f.maxROI }

func (f *FakeGrabber) SetROI(r image.Rectangle) error {
	f.roi = r
	return nil
}

func (f *FakeGrabber) Binning() int { return f.binning }

func (f *FakeGrabber) SetBinning(n int) error {
	old := f.maxROI
	f.maxROI = image.Rect(0, 0, old.Dx()*f.binning/n, old.Dy()*f.binning/n)
	f.binning = n
	// Clamp offset first, then size, per spec.md §4.1.
	off := f.roi.Min
	if off.X > f.maxROI.Dx() {
		off.X = f.maxROI.Dx()
	}
	if off.Y > f.maxROI.Dy() {
		off.Y = f.maxROI.Dy()
	}
	size := f.roi.Size()
	if off.X+size.X > f.maxROI.Dx() {
		size.X = f.maxROI.Dx() - off.X
	}
	if off.Y+size.Y > f.maxROI.Dy() {
		size.Y = f.maxROI.Dy() - off.Y
	}
	f.roi = image.Rectangle{Min: off, Max: off.Add(size)}
	return nil
}

func (f *FakeGrabber) Exposure() time.Duration { return f.exposure }
func (f *FakeGrabber) Gain() float64           { return f.gain }

// GrabOne blocks for a simulated exposure/readout interval and returns
// a synthetic grayscale frame the size of the current ROI.
func (f *FakeGrabber) GrabOne() (*image.Gray, bool, error) {
	if !f.opened {
		return nil, false, ErrNotOpen
	}
	time.Sleep(f.frameRate)
	w, h := f.roi.Dx(), f.roi.Dy()
	if w <= 0 || h <= 0 {
		w, h = 64, 64
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	f.blobX += f.rnd.NormFloat64() * 0.3
	f.blobY += f.rnd.NormFloat64() * 0.3
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - f.blobX
			dy := float64(y) - f.blobY
			d2 := dx*dx + dy*dy
			radius := float64(min(w, h)) * 0.15
			v := uint8(200)
			if d2 < radius*radius {
				v = 40
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img, true, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
