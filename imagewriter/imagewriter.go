// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package imagewriter implements the asynchronous image-to-disk sink
// with backpressure: when its queue is full, new images are dropped
// and counted, never blocked, since the acquisition path is the
// producer of record (spec.md §4.10, C11).
package imagewriter

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/openpupil/pupilcore/camera"
)

// ErrNonEmptyDir signals that the target archive directory already has
// content; per spec.md §4.10 the caller (an external collaborator) must
// confirm before Open proceeds with overwrite.
var ErrNonEmptyDir = errors.New("imagewriter: target directory is non-empty")

// DefaultQueueDepth is the bounded queue capacity (spec.md §4.10).
const DefaultQueueDepth = 64

// Writer is the Image-writer thread owner of spec.md §5's thread
// table. It consumes raw frames from the signal hub directly, not from
// the scheduler, so archiving never depends on detection keeping up.
type Writer struct {
	dir    string
	stereo bool

	mu      sync.Mutex
	dropped int

	in   chan camera.Image
	done chan struct{}
}

// Open prepares dir (and its 0/, 1/ subdirectories for stereo) as an
// image archive. If confirmOverwrite is false and dir already contains
// files, ErrNonEmptyDir is returned so the external collaborator can
// prompt the user, per spec.md §4.10. meta, if non-nil, is written as
// the imagerec_meta.xml sidecar at the archive root (metadata-snapshots-
// enabled per spec.md §6); pass nil to skip it.
func Open(dir string, stereo bool, confirmOverwrite bool, meta *Meta) (*Writer, error) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) > 0 && !confirmOverwrite {
		return nil, ErrNonEmptyDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagewriter: %w", err)
	}
	if stereo {
		for _, sub := range []string{"0", "1"} {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
				return nil, fmt.Errorf("imagewriter: %w", err)
			}
		}
	}
	if meta != nil {
		if err := WriteMeta(dir, *meta); err != nil {
			return nil, err
		}
	}
	w := &Writer{
		dir:    dir,
		stereo: stereo,
		in:     make(chan camera.Image, DefaultQueueDepth),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Submit enqueues img for writing. If the bounded queue is full, img
// is dropped and counted rather than blocking the caller (spec.md
// §4.10): the acquisition path must never stall on disk I/O.
func (w *Writer) Submit(img camera.Image) {
	select {
	case w.in <- img:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
	}
}

// Dropped returns the count of images dropped due to queue overflow.
func (w *Writer) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *Writer) run() {
	defer close(w.done)
	for img := range w.in {
		w.writeOne(img)
	}
}

// writeOne writes the primary (and, for stereo, secondary) image to
// zero-padded-index files sharing the same base name, per spec.md §6's
// image archive layout.
func (w *Writer) writeOne(img camera.Image) {
	name := fmt.Sprintf("%06d.png", img.FrameNumber)
	if w.stereo && img.Secondary != nil {
		w.writePNG(filepath.Join(w.dir, "0", name), img.Primary)
		w.writePNG(filepath.Join(w.dir, "1", name), img.Secondary)
		return
	}
	w.writePNG(filepath.Join(w.dir, name), img.Primary)
}

func (w *Writer) writePNG(path string, im *image.Gray) {
	if im == nil {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	png.Encode(f, im)
}

// Close drains the queue and stops the writer goroutine.
func (w *Writer) Close() error {
	close(w.in)
	<-w.done
	return nil
}
