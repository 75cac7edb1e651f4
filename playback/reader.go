// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package playback implements the file-playback camera source (C5) and
// the playback synchronizer (C13) that couples its cadence to detector
// completion, per spec.md §4.3 and §4.12.
package playback

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/openpupil/pupilcore/camera"
)

// ErrDirectoryMismatch is a Configuration error: the two stereo
// subdirectories must contain the same number of files, paired by
// alphabetical position (spec.md §4.3).
var ErrDirectoryMismatch = errors.New("playback: stereo subdirectories have a mismatched file count")

// ErrEmpty is returned when a playback directory has no images to read.
var ErrEmpty = errors.New("playback: directory is empty")

// Reader enumerates an image directory (single mode) or its "0/" and
// "1/" subdirectories (stereo mode) and emulates live camera cadence.
// It implements camera.Source so the scheduler is agnostic of source
// kind.
type Reader struct {
	stereo    bool
	primary   []string
	secondary []string

	mu       sync.Mutex
	index    int
	targetFPS float64
	loop      bool
	open      bool
	grabbing  bool
	startWall time.Time
	lastEmit  time.Time

	sync *Synchronizer

	frames        chan camera.Image
	imagesSkipped chan struct{}
	deviceRemoved chan struct{}
	endReached    chan struct{}
	stop          chan struct{}
	done          chan struct{}
}

// NewSingle returns a Reader enumerating a flat directory of images.
func NewSingle(dir string, targetFPS float64, loop bool) (*Reader, error) {
	files, err := listImages(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrEmpty
	}
	return newReader(files, nil, targetFPS, loop), nil
}

// NewStereo returns a Reader pairing dir/0/*.ext with dir/1/*.ext by
// alphabetical position; filenames must be zero-padded so lexicographic
// order equals temporal order (spec.md §4.3).
func NewStereo(dir string, targetFPS float64, loop bool) (*Reader, error) {
	primary, err := listImages(filepath.Join(dir, "0"))
	if err != nil {
		return nil, err
	}
	secondary, err := listImages(filepath.Join(dir, "1"))
	if err != nil {
		return nil, err
	}
	if len(primary) == 0 || len(secondary) == 0 {
		return nil, ErrEmpty
	}
	if len(primary) != len(secondary) {
		return nil, ErrDirectoryMismatch
	}
	return newReader(primary, secondary, targetFPS, loop), nil
}

func newReader(primary, secondary []string, targetFPS float64, loop bool) *Reader {
	return &Reader{
		stereo:        secondary != nil,
		primary:       primary,
		secondary:     secondary,
		targetFPS:     targetFPS,
		loop:          loop,
		frames:        make(chan camera.Image, 4),
		imagesSkipped: make(chan struct{}, 1),
		deviceRemoved: make(chan struct{}, 1),
		endReached:    make(chan struct{}, 1),
	}
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
	}
	return out, nil
}

// AttachSynchronizer couples this Reader to a playback synchronizer
// (spec.md §4.12); when attached, the Reader blocks after publishing
// each frame until the scheduler signals it processed.
func (r *Reader) AttachSynchronizer(s *Synchronizer) { r.sync = s }

func (r *Reader) Kind() camera.Kind {
	if r.stereo {
		return camera.KindFileStereo
	}
	return camera.KindFileSingle
}

func (r *Reader) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = true
	return nil
}

func (r *Reader) Close() error {
	if err := r.StopGrabbing(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	r.index = 0
	return nil
}

func (r *Reader) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// StartGrabbing begins emission on a dedicated goroutine (the Playback
// thread of spec.md §5).
func (r *Reader) StartGrabbing() error {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return camera.ErrNotOpen
	}
	if r.grabbing {
		r.mu.Unlock()
		return nil
	}
	r.grabbing = true
	r.startWall = time.Now()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()
	go r.run(stop, done)
	return nil
}

func (r *Reader) StopGrabbing() error {
	r.mu.Lock()
	if !r.grabbing {
		r.mu.Unlock()
		return nil
	}
	stop, done := r.stop, r.done
	r.grabbing = false
	r.mu.Unlock()
	close(stop)
	<-done
	return nil
}

// timestampForIndex returns the synthesized timestamp for frame i:
// wall-clock at start plus i/targetFPS, so an already-emitted timestamp
// before a seek remains queryable (spec.md §4.3).
func (r *Reader) timestampForIndex(i int) int64 {
	offset := time.Duration(float64(i) / r.targetFPS * float64(time.Second))
	return r.startWall.Add(offset).UnixMilli()
}

func (r *Reader) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	period := time.Duration(float64(time.Second) / r.targetFPS)
	for {
		select {
		case <-stop:
			return
		default:
		}
		r.mu.Lock()
		i := r.index
		r.mu.Unlock()

		img, img2, err := r.loadIndex(i)
		if err != nil {
			select {
			case r.imagesSkipped <- struct{}{}:
			default:
			}
			if !r.advance(stop) {
				return
			}
			continue
		}

		// Pace emission: sleep until last_emit + 1/target_fps <= now.
		if !r.lastEmit.IsZero() {
			wait := r.lastEmit.Add(period).Sub(time.Now())
			if wait > 0 {
				select {
				case <-time.After(wait):
				case <-stop:
					return
				}
			}
		}
		r.lastEmit = time.Now()

		out := camera.Image{
			Timestamp:   r.timestampForIndex(i),
			Kind:        r.Kind(),
			FrameNumber: int64(i),
			Primary:     img,
			Secondary:   img2,
			Filename:    r.primary[i],
		}
		if r.sync != nil {
			r.sync.waitPublish(out, stop)
		}
		select {
		case r.frames <- out:
		case <-stop:
			return
		}
		if r.sync != nil {
			if !r.sync.waitProcessed(stop) {
				return
			}
		}
		if !r.advance(stop) {
			return
		}
	}
}

// advance moves to the next index, handling end-of-sequence per
// spec.md §4.3: stop and emit end_reached when loop=false, or wrap to 0
// (triggering a synthetic trial reset, via the Synchronizer) when
// loop=true. Returns false if the reader should stop running.
func (r *Reader) advance(stop <-chan struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index++
	if r.index >= len(r.primary) {
		if !r.loop {
			r.index = len(r.primary) - 1
			r.grabbing = false
			select {
			case r.endReached <- struct{}{}:
			default:
			}
			return false
		}
		r.index = 0
		r.startWall = time.Now()
		r.lastEmit = time.Time{}
		if r.sync != nil {
			r.sync.onLoopWrap(r.startWall.UnixMilli())
		}
	}
	return true
}

func (r *Reader) loadIndex(i int) (primary, secondary *image.Gray, err error) {
	primary, err = loadGray(r.primary[i])
	if err != nil {
		return nil, nil, err
	}
	if r.stereo {
		secondary, err = loadGray(r.secondary[i])
		if err != nil {
			return nil, nil, err
		}
	}
	return primary, secondary, nil
}

func loadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, img.At(x, y))
		}
	}
	return g, nil
}

// Still returns the raw image at index i without advancing the
// cadence, for UI previews. It is intentionally not ordered against
// the grabbing stream (spec.md §4.3).
func (r *Reader) Still(i int) (*image.Gray, error) {
	r.mu.Lock()
	n := len(r.primary)
	r.mu.Unlock()
	if i < 0 || i >= n {
		return nil, fmt.Errorf("playback: index %d out of range [0,%d)", i, n)
	}
	return loadGray(r.primary[i])
}

// Pause stops emission while retaining the current index.
func (r *Reader) Pause() error { return r.StopGrabbing() }

// Stop halts emission and rewinds to the first frame, distinct from
// Close: the device stays open and ready for a fresh StartGrabbing,
// only the playback position resets (spec.md §4.3's pause/stop
// distinction).
func (r *Reader) Stop() error {
	if err := r.StopGrabbing(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = 0
	r.startWall = time.Time{}
	r.lastEmit = time.Time{}
	return nil
}

// Seek places the current index arbitrarily; the next emission uses
// the stored per-index timestamp (spec.md §4.3).
func (r *Reader) Seek(i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.primary) {
		return fmt.Errorf("playback: seek index %d out of range", i)
	}
	r.index = i
	return nil
}

func (r *Reader) Frames() <-chan camera.Image           { return r.frames }
func (r *Reader) ImagesSkipped() <-chan struct{}        { return r.imagesSkipped }
func (r *Reader) DeviceRemoved() <-chan struct{}        { return r.deviceRemoved }
func (r *Reader) EndReached() <-chan struct{}           { return r.endReached }
func (r *Reader) SkippedCount() int                     { return 0 }

func (r *Reader) ImageROI() (image.Rectangle, error) { return image.Rectangle{}, nil }
func (r *Reader) ImageROIMax() image.Rectangle       { return image.Rectangle{} }
func (r *Reader) SetImageROI(image.Rectangle) error  { return nil }
func (r *Reader) Binning() int                       { return 1 }
func (r *Reader) SetBinning(n int) error {
	if n != 1 && n != 2 && n != 4 {
		return camera.ErrBinning
	}
	return nil
}
func (r *Reader) Exposure() time.Duration { return 0 }
func (r *Reader) Gain() float64           { return 0 }
func (r *Reader) ResultingFrameRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targetFPS
}

var _ camera.Source = (*Reader)(nil)
