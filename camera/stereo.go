// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package camera

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// Trigger is the minimal contract LiveStereo needs from the hardware
// trigger controller (trigger.Controller implements it): a start/stop
// signal gating acquisition, per spec.md §4.1's hardware-trigger
// integration note. Kept as a local interface to avoid camera
// depending on package trigger.
type Trigger interface {
	Subscribe() (start <-chan struct{}, stop <-chan struct{})
}

// LiveStereo is a pair of physically synchronized cameras gated by one
// shared hardware trigger pulse (spec.md §4.1/§4.2). Grabber-primary
// and Grabber-secondary each run on their own goroutine per spec.md §5.
type LiveStereo struct {
	primary, secondary Grabber
	clock              Clock
	pairer             *Pairer
	trig               Trigger

	mu       sync.Mutex
	open     bool
	grabbing bool

	imagesSkipped chan struct{}
	deviceRemoved chan struct{}
	out           chan Image
	stop          chan struct{}
	done          chan struct{}

	primCount, secCount int64
}

// NewLiveStereo wires two Grabbers through a Pairer. Grabbing begins
// at StartGrabbing, not at the trigger's start signal; if trig is
// non-nil, its stop signal stops grabbing (see watchTrigger). Per
// spec.md §4.1's testable ordering invariant, callers must call
// StartGrabbing before the controller issues its first pulse.
func NewLiveStereo(primary, secondary Grabber, pairer *Pairer, trig Trigger, clock Clock) *LiveStereo {
	if clock == nil {
		clock = defaultClock
	}
	return &LiveStereo{
		primary:       primary,
		secondary:     secondary,
		clock:         clock,
		pairer:        pairer,
		trig:          trig,
		imagesSkipped: make(chan struct{}, 1),
		deviceRemoved: make(chan struct{}, 1),
		out:           pairer.paired,
	}
}

func (s *LiveStereo) Kind() Kind { return KindLiveStereo }

func (s *LiveStereo) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}
	if err := s.primary.Open(); err != nil {
		return fmt.Errorf("%w: primary: %v", ErrDeviceOpen, err)
	}
	if err := s.secondary.Open(); err != nil {
		s.primary.Close()
		return fmt.Errorf("%w: secondary: %v", ErrDeviceOpen, err)
	}
	s.open = true
	return nil
}

func (s *LiveStereo) Close() error {
	if err := s.StopGrabbing(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	err1 := s.primary.Close()
	err2 := s.secondary.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *LiveStereo) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// StartGrabbing begins both grabber goroutines immediately. This must
// happen before any hardware trigger pulse is issued by the caller's
// trigger.Controller, otherwise the first frame(s) arrive on only one
// physical camera and the pairing window drops them (spec.md §4.1).
func (s *LiveStereo) StartGrabbing() error {
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
	s.done = make(chan struct{}, 2)
	s.mu.Unlock()

	go s.runOne(s.primary, true, s.stop, s.done)
	go s.runOne(s.secondary, false, s.stop, s.done)
	if s.trig != nil {
		go s.watchTrigger(s.stop)
	}
	return nil
}

// watchTrigger wires the external trigger's fire-and-forget stop
// signal (spec.md §5/§6: the protocol is ack-less) to StopGrabbing, so
// a caller that commands the microcontroller through
// trigger.Controller.Stop and then closes its Signal tears this source
// down the same way a device removal would. It does not gate Start:
// by the time a caller issues the trigger's start command, this
// source's grabbing goroutines must already be listening, per spec.md
// §4.1's ordering invariant — that ordering is the caller's
// responsibility (see trigger.Signal's doc comment), not something
// this source can enforce after the fact.
func (s *LiveStereo) watchTrigger(stop <-chan struct{}) {
	_, trigStop := s.trig.Subscribe()
	select {
	case <-trigStop:
		s.StopGrabbing()
	case <-stop:
	}
}

func (s *LiveStereo) StopGrabbing() error {
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
	<-done
	return nil
}

func (s *LiveStereo) runOne(g Grabber, primary bool, stop <-chan struct{}, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	skipping := false
	for {
		select {
		case <-stop:
			return
		default:
		}
		img, ok, err := g.GrabOne()
		if err != nil {
			s.signalDeviceRemoved()
			return
		}
		if !ok {
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
		var frameNum int64
		if primary {
			s.primCount++
			frameNum = s.primCount
		} else {
			s.secCount++
			frameNum = s.secCount
		}
		s.mu.Unlock()
		ts := s.clock()
		if primary {
			s.pairer.PushPrimary(ts, frameNum, img)
		} else {
			s.pairer.PushSecondary(ts, frameNum, img)
		}
	}
}

func (s *LiveStereo) signalDeviceRemoved() {
	s.mu.Lock()
	s.open = false
	s.grabbing = false
	s.mu.Unlock()
	select {
	case s.deviceRemoved <- struct{}{}:
	default:
	}
}

func (s *LiveStereo) ImageROI() (image.Rectangle, error) {
	if !s.IsOpen() {
		return image.Rectangle{}, ErrNotOpen
	}
	return s.primary.ROIMax(), nil
}

func (s *LiveStereo) ImageROIMax() image.Rectangle { return s.primary.ROIMax() }

func (s *LiveStereo) SetImageROI(r image.Rectangle) error {
	if r.Dx()%16 != 0 || r.Dy()%16 != 0 {
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
	if err := s.primary.SetROI(r); err != nil {
		return err
	}
	if err := s.secondary.SetROI(r); err != nil {
		return err
	}
	if wasGrabbing {
		return s.StartGrabbing()
	}
	return nil
}

func (s *LiveStereo) Binning() int { return s.primary.Binning() }

func (s *LiveStereo) SetBinning(n int) error {
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
	if err := s.primary.SetBinning(n); err != nil {
		return err
	}
	if err := s.secondary.SetBinning(n); err != nil {
		return err
	}
	if wasGrabbing {
		return s.StartGrabbing()
	}
	return nil
}

func (s *LiveStereo) Exposure() time.Duration { return s.primary.Exposure() }
func (s *LiveStereo) Gain() float64           { return s.primary.Gain() }

func (s *LiveStereo) ResultingFrameRate() float64 {
	e := s.primary.Exposure()
	if e <= 0 {
		return 0
	}
	return float64(time.Second) / float64(e)
}

func (s *LiveStereo) Frames() <-chan Image           { return s.out }
func (s *LiveStereo) ImagesSkipped() <-chan struct{} { return s.imagesSkipped }
func (s *LiveStereo) DeviceRemoved() <-chan struct{} { return s.deviceRemoved }
func (s *LiveStereo) SkippedCount() int              { return s.pairer.Dropped() }
