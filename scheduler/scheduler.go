// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package scheduler implements the detection scheduler (spec.md §4.6,
// C7): a single worker goroutine that owns the active ProcMode, up to
// four ROIs, one or two detection strategies, an optional calibration,
// and a reference to the event tracker, and that applies the
// per-frame procedure of spec.md §4.6 to every frame handed to it
// through a single-slot, drop-newest-retains-latest mailbox so a slow
// detector never blocks the producer.
package scheduler

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/openpupil/pupilcore/autoparam"
	"github.com/openpupil/pupilcore/calibration"
	"github.com/openpupil/pupilcore/camera"
	"github.com/openpupil/pupilcore/detect"
	"github.com/openpupil/pupilcore/eventtracker"
	"github.com/openpupil/pupilcore/procmode"
	"github.com/openpupil/pupilcore/pupil"
	"github.com/openpupil/pupilcore/ratecounter"
	"github.com/openpupil/pupilcore/roi"
	"github.com/openpupil/pupilcore/signalhub"
)

// ErrNoSource is returned by Start when no camera source is attached.
var ErrNoSource = errors.New("scheduler: no source attached")

// DefaultPreviewHz is the maximum rate of the low-FPS preview signal,
// independent of detection throughput (spec.md §4.6).
const DefaultPreviewHz = 30.0

// ImageSelector identifies which half of a (possibly stereo) Image a
// Slot crops its detection region from.
type ImageSelector int

const (
	Primary ImageSelector = iota
	Secondary
)

// Slot is one fixed position in the mode's result vector (spec.md
// §4.6's slot-order table): a role, the ROI it crops, which image it
// crops from, and the strategy instance it hands the crop to. Two
// pupils in the same mode get distinct Strategy instances; one pupil
// observed across two stereo views reuses the same instance for both
// slots.
type Slot struct {
	Role     roi.Role
	ROI      roi.Rational
	Image    ImageSelector
	Strategy detect.Strategy
}

// DefaultSlots builds the standard slot layout for mode from one or
// two strategy instances: strategyA is always used, strategyB only
// for modes with a second pupil (single-two, stereo-two). Callers
// needing non-default ROI placement construct []Slot by hand instead.
func DefaultSlots(mode procmode.Mode, strategyA, strategyB detect.Strategy) ([]Slot, error) {
	full := roi.Rational{X: 0, Y: 0, W: 1, H: 1}
	left, right := roi.SplitHorizontal()
	switch mode {
	case procmode.SingleOne:
		return []Slot{{Role: roi.RoleMain, ROI: full, Image: Primary, Strategy: strategyA}}, nil
	case procmode.SingleTwo:
		return []Slot{
			{Role: roi.RoleA, ROI: left, Image: Primary, Strategy: strategyA},
			{Role: roi.RoleB, ROI: right, Image: Primary, Strategy: strategyB},
		}, nil
	case procmode.StereoOne:
		return []Slot{
			{Role: roi.RoleView1, ROI: full, Image: Primary, Strategy: strategyA},
			{Role: roi.RoleView2, ROI: full, Image: Secondary, Strategy: strategyA},
		}, nil
	case procmode.StereoTwo:
		return []Slot{
			{Role: roi.RoleA, ROI: left, Image: Primary, Strategy: strategyA},
			{Role: roi.RoleA, ROI: left, Image: Secondary, Strategy: strategyA},
			{Role: roi.RoleB, ROI: right, Image: Primary, Strategy: strategyB},
			{Role: roi.RoleB, ROI: right, Image: Secondary, Strategy: strategyB},
		}, nil
	default:
		return nil, fmt.Errorf("scheduler: no default slot layout for mode %s", mode)
	}
}

// Config is the scheduler's mutable configuration; Scheduler methods
// swap it under a mutex so SetMode/AttachCalibration are safe
// to call while the worker is running (spec.md §4.6: "changing
// ProcMode while running is allowed but causes the next frame to be
// processed under the new mode; in-flight result bundles retain their
// original mode").
type Config struct {
	Mode  procmode.Mode
	Slots []Slot
}

// Synchronizer is the subset of playback.Synchronizer the scheduler
// notifies after each frame, kept as a local interface to avoid
// scheduler depending on package playback.
type Synchronizer interface {
	NotifyProcessed()
}

// Scheduler is the Detector thread owner of spec.md §5's thread table.
type Scheduler struct {
	mu          sync.Mutex
	cfg         Config
	calib       calibration.Calibration
	tracker     *eventtracker.Tracker
	hubs        *signalhub.Hubs
	previewHz   float64
	autoTuner   *autoparam.Tuner
	autoPercent int
	autoDue     bool
	sync        Synchronizer

	source      camera.Source
	mbox        *mailbox
	fps         *ratecounter.Counter
	fpsReporter *ratecounter.Reporter

	running bool
	stop    chan struct{}
	done    chan struct{}

	lastPreview time.Time

	finished chan struct{}
}

// New returns a Scheduler with the given initial configuration. hubs
// must not be nil; tracker may be nil only if callers never need trial
// numbers populated (records then carry trial 0).
func New(cfg Config, tracker *eventtracker.Tracker, hubs *signalhub.Hubs) *Scheduler {
	s := &Scheduler{
		cfg:         cfg,
		tracker:     tracker,
		hubs:        hubs,
		previewHz:   DefaultPreviewHz,
		autoTuner:   autoparam.New(),
		autoPercent: autoparam.DefaultPercent,
		mbox:        newMailbox(),
		fps:         ratecounter.New(),
		finished:    make(chan struct{}, 1),
	}
	s.fpsReporter = ratecounter.NewReporter(s.fps, func(v float64) {
		if s.hubs != nil {
			s.hubs.CameraFPS.Publish(v)
		}
	}, func(n int) {
		if s.hubs != nil {
			s.hubs.CameraFrameCount.Publish(n)
		}
	})
	return s
}

// AttachSource binds the camera source the scheduler subscribes to. It
// is an error to start without one; attaching while running requires a
// prior Stop.
func (s *Scheduler) AttachSource(src camera.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler: cannot attach a source while running")
	}
	if !s.cfg.Mode.Compatible(src.Kind()) {
		return &procmode.ErrIncompatible{Mode: s.cfg.Mode, Kind: src.Kind()}
	}
	s.source = src
	return nil
}

// AttachCalibration sets (or clears, with nil) the read-only
// calibration consulted during detection.
func (s *Scheduler) AttachCalibration(c calibration.Calibration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calib = c
}

// AttachPlaybackSync wires a playback synchronizer so the scheduler
// notifies it after each frame completes (spec.md §4.12).
func (s *Scheduler) AttachPlaybackSync(sync Synchronizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync = sync
}

// SetMode changes the active ProcMode, validating against the
// attached source's kind (spec.md §3: "selecting a mode that is
// incompatible with the current source kind is an error"). It replaces
// Slots together with the mode: slots must hold mode.SlotCount()
// entries (DefaultSlots builds a matching layout).
func (s *Scheduler) SetMode(mode procmode.Mode, slots []Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source != nil && !mode.Compatible(s.source.Kind()) {
		return &procmode.ErrIncompatible{Mode: mode, Kind: s.source.Kind()}
	}
	if len(slots) != mode.SlotCount() {
		return fmt.Errorf("scheduler: %d slots given, mode %s needs %d", len(slots), mode, mode.SlotCount())
	}
	s.cfg = Config{Mode: mode, Slots: slots}
	return nil
}

// ScheduleAutoParams arms the one-shot auto-parameter tuner: the next
// processed frame runs Tune before detection, then clears the flag
// (spec.md §4.7).
func (s *Scheduler) ScheduleAutoParams(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPercent = percent
	s.autoDue = true
}

// Start transitions the scheduler into running, subscribing to the
// attached source's Frames() and spawning the Detector goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.source == nil {
		s.mu.Unlock()
		return ErrNoSource
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	src := s.source
	s.mu.Unlock()

	s.fpsReporter.Start()
	go s.feed(src, stop)
	go s.work(stop, done)
	return nil
}

// feed copies frames from the source into the mailbox, coalescing
// under load per the drop-newest-retains-latest contract.
func (s *Scheduler) feed(src camera.Source, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case img, ok := <-src.Frames():
			if !ok {
				return
			}
			if s.hubs != nil {
				s.hubs.NewGrabResult.Publish(img)
			}
			s.mbox.Put(img)
		}
	}
}

// work is the Detector thread body: waits on the mailbox and processes
// whatever is latest, draining fully before reporting stopped.
func (s *Scheduler) work(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			s.drain()
			select {
			case s.finished <- struct{}{}:
			default:
			}
			return
		case <-s.mbox.notify:
			img, ok := s.mbox.Take()
			if !ok {
				continue
			}
			s.processFrame(img)
		}
	}
}

// drain processes any frame still waiting in the mailbox, per Stop's
// contract to finish in-flight work before reporting stopped.
func (s *Scheduler) drain() {
	if img, ok := s.mbox.Take(); ok {
		s.processFrame(img)
	}
}

// Stop drains the mailbox and emits processing_finished. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stop, done := s.stop, s.done
	s.running = false
	s.mu.Unlock()
	close(stop)
	<-done
	s.fpsReporter.Stop()
	return nil
}

// ProcessingFinished fires once per Stop, after the mailbox has
// drained (spec.md §4.6).
func (s *Scheduler) ProcessingFinished() <-chan struct{} { return s.finished }

// processFrame runs the seven-step per-frame procedure of spec.md
// §4.6.
func (s *Scheduler) processFrame(img camera.Image) {
	s.mu.Lock()
	cfg := s.cfg
	calib := s.calib
	autoDue := s.autoDue
	percent := s.autoPercent
	s.autoDue = false
	sync := s.sync
	s.mu.Unlock()

	// Step 1: snapshot+discretize ROIs against this frame's dimensions.
	primBounds := img.Primary.Bounds().Size()
	rects := make([]image.Rectangle, len(cfg.Slots))
	for i, slot := range cfg.Slots {
		size := primBounds
		if slot.Image == Secondary && img.Secondary != nil {
			size = img.Secondary.Bounds().Size()
		}
		rect, err := slot.ROI.Discretize(image.Point{X: size.X, Y: size.Y})
		if err != nil {
			rects[i] = image.Rectangle{}
			continue
		}
		rects[i] = rect
	}

	// Step 2: one-shot auto-param adaptation, before detection.
	if autoDue {
		tunables := make([]autoparam.Tunable, 0, len(cfg.Slots))
		seen := map[detect.Strategy]bool{}
		for _, slot := range cfg.Slots {
			if slot.Strategy == nil || seen[slot.Strategy] {
				continue
			}
			seen[slot.Strategy] = true
			if t, ok := slot.Strategy.(autoparam.Tunable); ok {
				tunables = append(tunables, t)
			}
		}
		s.autoTuner.Tune(percent, primBounds, tunables...)
	}

	// Step 3: crop + detect + translate to image coordinates.
	pupils := make([]pupil.Pupil, len(cfg.Slots))
	for i, slot := range cfg.Slots {
		src := img.Primary
		if slot.Image == Secondary {
			src = img.Secondary
		}
		if src == nil || slot.Strategy == nil || rects[i].Empty() {
			pupils[i] = pupil.Invalid()
			continue
		}
		crop := cropGray(src, rects[i])
		p, ok, err := slot.Strategy.Detect(crop)
		if err != nil || !ok {
			pupils[i] = pupil.Invalid()
			continue
		}
		pupils[i] = p.Translate(float64(rects[i].Min.X), float64(rects[i].Min.Y))
	}

	// Step 4: calibration-derived fields.
	if calib != nil {
		for i := range cfg.Slots {
			if !pupils[i].Valid(-2) {
				continue
			}
			pupils[i] = withUndistortedDiameter(pupils[i], calib)
		}
		applyStereoPhysicalDiameter(cfg.Mode, pupils, calib, img)
	}

	// Step 5: result vector is already slot-stable length len(cfg.Slots).

	// Step 6: trial number at this frame's timestamp.
	trial := 0
	if s.tracker != nil {
		trial = s.tracker.TrialNumberAt(img.Timestamp)
	}

	// Step 7: emit, throttling the image-carrying signal to preview
	// rate and leaving the data signal unthrottled.
	s.fps.Mark()
	if s.hubs != nil {
		now := time.Now()
		if s.previewHz <= 0 || now.Sub(s.lastPreview) >= time.Duration(float64(time.Second)/s.previewHz) {
			s.lastPreview = now
			previewROIs := make([]signalhub.RectF, len(rects))
			for i, r := range rects {
				previewROIs[i] = signalhub.RectF{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y}
			}
			s.hubs.ProcessedImage.Publish(signalhub.ProcessedImage{
				Image:  img,
				Mode:   cfg.Mode,
				ROIs:   previewROIs,
				Pupils: pupils,
			})
		}
		s.hubs.ProcessedPupilData.Publish(signalhub.ProcessedPupilData{
			Timestamp: img.Timestamp,
			Mode:      cfg.Mode,
			Pupils:    pupils,
			ImageID:   img.FrameNumber,
			Trial:     trial,
		})
	}

	if sync != nil {
		sync.NotifyProcessed()
	}
}

// cropGray returns a new *image.Gray containing only rect's pixels,
// translated to a zero origin so strategies always see ROI-local
// coordinates, per spec.md §4.6 step 3.
func cropGray(src *image.Gray, rect image.Rectangle) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		srcOff := src.PixOffset(rect.Min.X, rect.Min.Y+y)
		dstOff := out.PixOffset(0, y)
		copy(out.Pix[dstOff:dstOff+rect.Dx()], src.Pix[srcOff:srcOff+rect.Dx()])
	}
	return out
}

// withUndistortedDiameter populates UndistortedDiameterPx by
// undistorting the pupil's center and a point one (major-axis radius)
// away along the x axis, then doubling the undistorted separation.
// Undistort is defined over points, not diameters (spec.md §3), so
// this is the core's only way to derive a distorted-aware size.
func withUndistortedDiameter(p pupil.Pupil, calib calibration.Calibration) pupil.Pupil {
	center := calib.Undistort(p.Center)
	edge := calib.Undistort(pupil.Point{X: p.Center.X + p.MajorAxis()/2, Y: p.Center.Y})
	dx := edge.X - center.X
	dy := edge.Y - center.Y
	p.UndistortedDiameterPx = 2 * math.Sqrt(dx*dx+dy*dy)
	p.HasUndistortedDiameter = true
	return p
}

// applyStereoPhysicalDiameter populates PhysicalDiameterMM for stereo
// modes from the paired view pupils, per spec.md §4.6 step 4. Invalid
// pupils never receive a physical diameter (spec.md §8).
func applyStereoPhysicalDiameter(mode procmode.Mode, pupils []pupil.Pupil, calib calibration.Calibration, img camera.Image) {
	if !mode.Stereo() || img.Secondary == nil {
		return
	}
	size := img.Primary.Bounds().Size()
	pair := func(i, j int) {
		if !pupils[i].Valid(-2) || !pupils[j].Valid(-2) {
			return
		}
		mm, ok := calib.PhysicalDiameterMM(pupils[i], pupils[j], image.Point{X: size.X, Y: size.Y})
		if !ok {
			return
		}
		pupils[i].PhysicalDiameterMM = mm
		pupils[i].HasPhysicalDiameter = true
		pupils[j].PhysicalDiameterMM = mm
		pupils[j].HasPhysicalDiameter = true
	}
	switch mode {
	case procmode.StereoOne:
		pair(0, 1)
	case procmode.StereoTwo:
		pair(0, 1)
		pair(2, 3)
	}
}

// mailbox is the single-slot, drop-newest-retains-latest hand-off of
// spec.md §4.6: while the worker is busy on frame N, a frame N+1
// replaces any waiting frame instead of queueing behind it.
type mailbox struct {
	mu      sync.Mutex
	pending *camera.Image
	notify  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) Put(img camera.Image) {
	m.mu.Lock()
	m.pending = &img
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) Take() (camera.Image, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return camera.Image{}, false
	}
	img := *m.pending
	m.pending = nil
	return img, true
}
