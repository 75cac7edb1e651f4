// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"
)

// ErrDeviceOpen is raised when a camera fails to open (spec.md §7,
// Device error class).
var ErrDeviceOpen = errors.New("camera: device open failed")

// ErrNotOpen is returned by operations that require an open device.
var ErrNotOpen = errors.New("camera: not open")

// ErrBinning is a Configuration error: binning must be 1, 2 or 4
// (spec.md §4.1/§7).
var ErrBinning = errors.New("camera: binning must be 1, 2 or 4")

// ErrROIOutOfBounds is a Configuration error returned by SetImageROI.
var ErrROIOutOfBounds = errors.New("camera: roi out of bounds")

// Grabber is the external per-camera driver collaborator: it knows how
// to open a physical (or emulated) device and pull one completed frame
// buffer at a time. The physical SDK is out of core scope per spec.md
// §1; FakeGrabber (camera/fake.go) is the in-repo test double.
type Grabber interface {
	Open() error
	Close() error
	ROIMax() image.Rectangle
	SetROI(r image.Rectangle) error
	Binning() int
	SetBinning(n int) error
	Exposure() time.Duration
	Gain() float64

	// GrabOne blocks until one buffer completes. ok=false with a nil
	// error means the driver reported a skipped/incomplete buffer: the
	// caller must not emit a partial frame, only telemetry.
	GrabOne() (img *image.Gray, ok bool, err error)
}

// Source is the uniform camera abstraction of spec.md §4.1. All kinds
// (live single/stereo/webcam, file single/stereo playback) implement
// it, so the detection scheduler is agnostic of source kind.
type Source interface {
	Open() error
	Close() error
	IsOpen() bool
	StartGrabbing() error
	StopGrabbing() error
	Kind() Kind

	ImageROI() (image.Rectangle, error)
	ImageROIMax() image.Rectangle
	SetImageROI(r image.Rectangle) error
	Binning() int
	SetBinning(n int) error
	Exposure() time.Duration
	Gain() float64
	ResultingFrameRate() float64

	// Frames is the on_new_image stream.
	Frames() <-chan Image
	// ImagesSkipped is on_images_skipped, coalesced: at most one signal
	// per contiguous run of skipped buffers.
	ImagesSkipped() <-chan struct{}
	// DeviceRemoved is on_device_removed; the source transitions to
	// closed once it fires.
	DeviceRemoved() <-chan struct{}

	SkippedCount() int
}

// LiveSingle is a single live camera: Grabber-primary thread owner of
// spec.md §5's thread table.
type LiveSingle struct {
	grab  Grabber
	clock Clock
	kind  Kind

	mu          sync.Mutex
	open        bool
	grabbing    bool
	frameNumber int64
	skipped     int

	frames        chan Image
	imagesSkipped chan struct{}
	deviceRemoved chan struct{}
	stop          chan struct{}
	done          chan struct{}
}

// NewLiveSingle wraps grab behind the Source contract. clock defaults
// to a wall-clock millisecond source when nil.
func NewLiveSingle(grab Grabber, clock Clock) *LiveSingle {
	return newLiveSingle(grab, clock, KindLiveSingle)
}

// newLiveSingle is the shared constructor behind NewLiveSingle and
// NewLiveWebcam: both are single-grabber sources that differ only in
// which Kind they report and emit on every Image, so a reduced-
// capability webcam's frames carry KindLiveWebcam rather than
// KindLiveSingle (spec.md §3).
func newLiveSingle(grab Grabber, clock Clock, kind Kind) *LiveSingle {
	if clock == nil {
		clock = defaultClock
	}
	return &LiveSingle{
		grab:          grab,
		clock:         clock,
		kind:          kind,
		frames:        make(chan Image, 4),
		imagesSkipped: make(chan struct{}, 1),
		deviceRemoved: make(chan struct{}, 1),
	}
}

func defaultClock() int64 { return time.Now().UnixMilli() }

func (s *LiveSingle) Kind() Kind { return s.kind }

func (s *LiveSingle) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	if err := s.grab.Open(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}
	s.open = true
	return nil
}

func (s *LiveSingle) Close() error {
	s.mu.Lock()
	grabbing := s.grabbing
	s.mu.Unlock()
	if grabbing {
		if err := s.StopGrabbing(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	return s.grab.Close()
}

func (s *LiveSingle) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *LiveSingle) StartGrabbing() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return ErrNotOpen
	}
	if s.grabbing {
		s.mu.Unlock()
		return nil
	}
	s.grabbing = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()
	go s.run(s.stop, s.done)
	return nil
}

func (s *LiveSingle) StopGrabbing() error {
	s.mu.Lock()
	if !s.grabbing {
		s.mu.Unlock()
		return nil
	}
	stop, done := s.stop, s.done
	s.grabbing = false
	s.mu.Unlock()
	close(stop)
	<-done
	return nil
}

func (s *LiveSingle) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	skipping := false
	for {
		select {
		case <-stop:
			return
		default:
		}
		img, ok, err := s.grab.GrabOne()
		if err != nil {
			s.signalDeviceRemoved()
			return
		}
		if !ok {
			s.mu.Lock()
			s.skipped++
			s.mu.Unlock()
			if !skipping {
				skipping = true
				select {
				case s.imagesSkipped <- struct{}{}:
				default:
				}
			}
			continue
		}
		skipping = false
		s.mu.Lock()
		s.frameNumber++
		fn := s.frameNumber
		s.mu.Unlock()
		out := Image{
			Timestamp:   s.clock(),
			Kind:        s.kind,
			FrameNumber: fn,
			Primary:     img,
		}
		select {
		case s.frames <- out:
		case <-stop:
			return
		}
	}
}

func (s *LiveSingle) signalDeviceRemoved() {
	s.mu.Lock()
	s.open = false
	s.grabbing = false
	s.mu.Unlock()
	select {
	case s.deviceRemoved <- struct{}{}:
	default:
	}
}

func (s *LiveSingle) ImageROI() (image.Rectangle, error) {
	if !s.IsOpen() {
		return image.Rectangle{}, ErrNotOpen
	}
	return s.grab.ROIMax(), nil
}

func (s *LiveSingle) ImageROIMax() image.Rectangle { return s.grab.ROIMax() }

// SetImageROI validates that width/height are multiples of 16 and fit
// within the sensor per spec.md §4.1, then applies it via a
// stop-grab/apply/start-grab cycle that is atomic from the caller's
// view. The monotonic frame-number counter is not reset.
func (s *LiveSingle) SetImageROI(r image.Rectangle) error {
	max := s.grab.ROIMax()
	if r.Dx()%16 != 0 || r.Dy()%16 != 0 {
		return ErrROIOutOfBounds
	}
	if !r.In(max) {
		return ErrROIOutOfBounds
	}
	s.mu.Lock()
	wasGrabbing := s.grabbing
	s.mu.Unlock()
	if wasGrabbing {
		if err := s.StopGrabbing(); err != nil {
			return err
		}
	}
	if err := s.grab.SetROI(r); err != nil {
		return err
	}
	if wasGrabbing {
		return s.StartGrabbing()
	}
	return nil
}

func (s *LiveSingle) Binning() int { return s.grab.Binning() }

func (s *LiveSingle) SetBinning(n int) error {
	if n != 1 && n != 2 && n != 4 {
		return ErrBinning
	}
	s.mu.Lock()
	wasGrabbing := s.grabbing
	s.mu.Unlock()
	if wasGrabbing {
		if err := s.StopGrabbing(); err != nil {
			return err
		}
	}
	if err := s.grab.SetBinning(n); err != nil {
		return err
	}
	if wasGrabbing {
		return s.StartGrabbing()
	}
	return nil
}

func (s *LiveSingle) Exposure() time.Duration { return s.grab.Exposure() }
func (s *LiveSingle) Gain() float64           { return s.grab.Gain() }

// ResultingFrameRate estimates the achievable frame rate from exposure
// time alone; the real value ultimately depends on the driver.
func (s *LiveSingle) ResultingFrameRate() float64 {
	e := s.grab.Exposure()
	if e <= 0 {
		return 0
	}
	return float64(time.Second) / float64(e)
}

func (s *LiveSingle) Frames() <-chan Image              { return s.frames }
func (s *LiveSingle) ImagesSkipped() <-chan struct{}    { return s.imagesSkipped }
func (s *LiveSingle) DeviceRemoved() <-chan struct{}    { return s.deviceRemoved }
func (s *LiveSingle) SkippedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}
