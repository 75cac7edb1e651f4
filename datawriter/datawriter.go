// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package datawriter implements the CSV sink consuming
// (timestamp, mode, pupils, image-id) result bundles from the
// detection scheduler (spec.md §4.9, C10).
package datawriter

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/openpupil/pupilcore/procmode"
	"github.com/openpupil/pupilcore/pupil"
)

// Record is one emitted result bundle, mirroring
// signalhub.ProcessedPupilData without importing package signalhub (so
// datawriter stays usable standalone, e.g. from a test harness).
type Record struct {
	Trial     int
	Timestamp int64
	ImageID   int64
	Mode      procmode.Mode
	Pupils    []pupil.Pupil
}

// Meta describes the sidecar metadata recorded at open time (spec.md
// §4.9's "human-readable metadata sidecar").
type Meta struct {
	SourceKind     string
	ROISnapshot    string
	StrategyNames  []string
	HasCalibration bool
	TimeBase       string
}

// Writer is the CSV sink. On open it writes a header row sized by
// ProcMode, then one row per Record through an unbounded, slice-backed
// queue so the scheduler never blocks — Qt-style queued delivery per
// spec.md §4.9: the queue grows as needed, a drain goroutine is the
// consuming slot.
type Writer struct {
	f    *os.File
	w    *csv.Writer
	mode procmode.Mode

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Record
	closed bool

	done chan struct{}
	errs chan error
}

// Open creates path, writes the header row for mode, and optionally a
// metadata sidecar at metaPath (skipped if metaPath is empty, matching
// the metadata-snapshots-enabled config flag of spec.md §6).
func Open(path string, mode procmode.Mode, metaPath string, meta Meta) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("datawriter: %w", err)
	}
	w := &Writer{
		f:    f,
		w:    csv.NewWriter(f),
		mode: mode,
		done: make(chan struct{}),
		errs: make(chan error, 1),
	}
	w.cond = sync.NewCond(&w.mu)
	if err := w.w.Write(header(mode)); err != nil {
		f.Close()
		return nil, fmt.Errorf("datawriter: header: %w", err)
	}
	w.w.Flush()
	if metaPath != "" {
		if err := writeMeta(metaPath, meta); err != nil {
			f.Close()
			return nil, err
		}
	}
	go w.run()
	return w, nil
}

func header(mode procmode.Mode) []string {
	cols := []string{"trial", "timestamp_ms", "image_id"}
	for i := 0; i < mode.SlotCount(); i++ {
		p := fmt.Sprintf("pupil%d_", i)
		cols = append(cols,
			p+"center_x", p+"center_y", p+"major", p+"minor", p+"angle",
			p+"confidence", p+"outline_confidence", p+"diameter",
			p+"undistorted_diameter", p+"physical_diameter_mm", p+"valid")
	}
	return cols
}

// Write enqueues a record for asynchronous serialization. Never blocks
// the caller on disk I/O: the queue is a plain slice that grows as
// needed rather than a fixed-depth channel, so a slow disk cannot ever
// make the scheduler's publishing goroutine wait (spec.md §4.9's
// unbounded queued delivery).
func (w *Writer) Write(r Record) {
	w.mu.Lock()
	w.queue = append(w.queue, r)
	w.mu.Unlock()
	w.cond.Signal()
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.closed {
			w.mu.Unlock()
			return
		}
		r := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		row := rowFor(r)
		if err := w.w.Write(row); err != nil {
			select {
			case w.errs <- err:
			default:
			}
			continue
		}
		w.w.Flush()
	}
}

func rowFor(r Record) []string {
	row := []string{
		strconv.Itoa(r.Trial),
		strconv.FormatInt(r.Timestamp, 10),
		strconv.FormatInt(r.ImageID, 10),
	}
	for _, p := range r.Pupils {
		row = append(row,
			ftoa(p.Center.X), ftoa(p.Center.Y), ftoa(p.Size.Width), ftoa(p.Size.Height), ftoa(p.Angle),
			ftoa(p.Confidence), ftoa(p.OutlineConfidence), ftoa(p.Diameter()),
			ftoa(p.UndistortedDiameterPx), ftoa(p.PhysicalDiameterMM),
			strconv.FormatBool(p.Valid(0)))
	}
	return row
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Close flushes pending records, stops the drain goroutine and fsyncs
// the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Signal()
	<-w.done
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

// Err returns a pending write error from the drain goroutine, if any
// (Resource-class, reported rather than fatal per spec.md §7). At most
// one error is held; errors arriving while one is pending are
// discarded, and errors are not counted.
func (w *Writer) Err() error {
	select {
	case err := <-w.errs:
		return err
	default:
		return nil
	}
}

// xmlMeta is the sidecar document shape, matching the image archive's
// imagerec_meta.xml format for consistency (spec.md §4.9/§6).
type xmlMeta struct {
	XMLName        xml.Name `xml:"datawriterMeta"`
	SourceKind     string   `xml:"sourceKind"`
	ROISnapshot    string   `xml:"roiSnapshot"`
	StrategyNames  []string `xml:"strategyName"`
	HasCalibration bool     `xml:"hasCalibration"`
	TimeBase       string   `xml:"timeBase"`
}

func writeMeta(path string, m Meta) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("datawriter: meta: %w", err)
	}
	defer f.Close()
	doc := xmlMeta{
		SourceKind:     m.SourceKind,
		ROISnapshot:    m.ROISnapshot,
		StrategyNames:  m.StrategyNames,
		HasCalibration: m.HasCalibration,
		TimeBase:       m.TimeBase,
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(&doc)
}
