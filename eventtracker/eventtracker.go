// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package eventtracker implements the monotonic, append-only log of
// trial increments, resets, messages and temperature checks, queryable
// by timestamp, that lets downstream analysis align pupil measurements
// with experimental stimuli (spec.md §4.8, C9).
package eventtracker

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"sync"

	"periph.io/x/periph/devices"
)

// Kind is the tagged-union discriminator for Event.
type Kind int

const (
	TrialIncrement Kind = iota
	TrialReset
	Message
	TemperatureCheck
)

func (k Kind) String() string {
	switch k {
	case TrialIncrement:
		return "trial-increment"
	case TrialReset:
		return "trial-reset"
	case Message:
		return "message"
	case TemperatureCheck:
		return "temperature-check"
	default:
		return "unknown"
	}
}

// Event is one committed record in the log (spec.md §3's tagged
// union). Only the fields relevant to Kind are populated.
type Event struct {
	Kind        Kind
	Timestamp   int64
	Text        string
	Temperatures []devices.Celsius
	trialAfter  int // trial number in force immediately after this event
}

// Tracker is the append-only event log, guarded by a single mutex per
// spec.md §4.8. Reads take the read lock only; writers serialize on
// the write lock.
type Tracker struct {
	mu      sync.RWMutex
	events  []Event
	trial   int
	writersActive func() bool
}

// New returns an empty Tracker. writersActive, if non-nil, is
// consulted by ResetTrialCounter: resets are refused while any writer
// or streamer reports itself active, per spec.md §4.8's invariant.
func New(writersActive func() bool) *Tracker {
	return &Tracker{writersActive: writersActive}
}

// AddTrialIncrement appends a trial-increment event at t; the trial
// number in force becomes prev+1.
func (t *Tracker) AddTrialIncrement(ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trial++
	t.events = append(t.events, Event{Kind: TrialIncrement, Timestamp: ts, trialAfter: t.trial})
}

// ResetTrialCounter appends a trial-reset event at t, returning
// refused=true (no-op) if a writer/streamer is reported active.
func (t *Tracker) ResetTrialCounter(ts int64) (refused bool) {
	if t.writersActive != nil && t.writersActive() {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trial = 0
	t.events = append(t.events, Event{Kind: TrialReset, Timestamp: ts, trialAfter: 0})
	return false
}

// injectReset is used internally (playback loop wrap) to force a
// reset regardless of writersActive — spec.md §4.12 requires the
// synthetic reset on loop wrap unconditionally.
func (t *Tracker) injectReset(ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trial = 0
	t.events = append(t.events, Event{Kind: TrialReset, Timestamp: ts, trialAfter: 0})
}

// InjectLoopReset records the synthetic trial-reset event that a
// playback wrap injects between the last pre-wrap and first post-wrap
// frame (spec.md §4.3, §4.12).
func (t *Tracker) InjectLoopReset(ts int64) {
	t.injectReset(ts)
}

// AddMessage appends a free-form message event.
func (t *Tracker) AddMessage(ts int64, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{Kind: Message, Timestamp: ts, Text: text, trialAfter: t.trial})
}

// AddTemperatureCheck appends a per-camera temperature-check event.
func (t *Tracker) AddTemperatureCheck(ts int64, temps []devices.Celsius) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]devices.Celsius, len(temps))
	copy(cp, temps)
	t.events = append(t.events, Event{Kind: TemperatureCheck, Timestamp: ts, Temperatures: cp, trialAfter: t.trial})
}

// TrialNumberAt returns the trial number in force at time t: the
// value established by the last trial-increment/reset event with
// Timestamp <= t, or 0 if none. Implemented as a binary search over
// the append-only, timestamp-ordered event slice.
func (t *Tracker) TrialNumberAt(ts int64) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := 0
	i := sort.Search(len(t.events), func(i int) bool {
		return t.events[i].Timestamp > ts
	})
	for j := i - 1; j >= 0; j-- {
		e := t.events[j]
		if e.Kind == TrialIncrement || e.Kind == TrialReset {
			result = e.trialAfter
			break
		}
	}
	return result
}

// Events returns an immutable snapshot of events with t0 <= Timestamp
// <= t1, in committed order.
func (t *Tracker) Events(t0, t1 int64) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Event
	for _, e := range t.events {
		if e.Timestamp >= t0 && e.Timestamp <= t1 {
			out = append(out, e)
		}
	}
	return out
}

// xmlLog/xmlEvent mirror the offline event-log file format of spec.md
// §6: an XML document with one element per event, tagged with kind and
// timestamp. encoding/xml is used deliberately: XML serialization
// schemas are named out of core scope by spec.md §1, and no pack
// example ships a third-party XML library, so the stdlib encoder is
// the ecosystem-standard choice here (DESIGN.md).
type xmlLog struct {
	XMLName xml.Name   `xml:"eventLog"`
	Events  []xmlEvent `xml:"event"`
}

type xmlEvent struct {
	Kind         string  `xml:"kind,attr"`
	Timestamp    int64   `xml:"timestamp,attr"`
	Text         string  `xml:"text,omitempty"`
	Temperatures []float64 `xml:"temperature,omitempty"`
}

// SaveOfflineLog serializes the [t0,t1] window to an XML file at path.
func (t *Tracker) SaveOfflineLog(t0, t1 int64, path string) error {
	events := t.Events(t0, t1)
	doc := xmlLog{Events: make([]xmlEvent, len(events))}
	for i, e := range events {
		xe := xmlEvent{Kind: e.Kind.String(), Timestamp: e.Timestamp, Text: e.Text}
		for _, c := range e.Temperatures {
			xe.Temperatures = append(xe.Temperatures, c.Float64())
		}
		doc.Events[i] = xe
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("eventtracker: save offline log: %w", err)
	}
	defer f.Close()
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	return enc.Encode(&doc)
}

// LoadOfflineLog replaces the in-memory log from a prior XML snapshot,
// used by file-playback to replay trial alignment (spec.md §4.8).
func (t *Tracker) LoadOfflineLog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("eventtracker: load offline log: %w", err)
	}
	defer f.Close()
	var doc xmlLog
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return fmt.Errorf("eventtracker: load offline log: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = t.events[:0]
	t.trial = 0
	for _, xe := range doc.Events {
		var kind Kind
		switch xe.Kind {
		case "trial-increment":
			kind = TrialIncrement
			t.trial++
		case "trial-reset":
			kind = TrialReset
			t.trial = 0
		case "message":
			kind = Message
		case "temperature-check":
			kind = TemperatureCheck
		default:
			continue
		}
		ev := Event{Kind: kind, Timestamp: xe.Timestamp, Text: xe.Text, trialAfter: t.trial}
		for _, c := range xe.Temperatures {
			ev.Temperatures = append(ev.Temperatures, devices.Celsius(c*1000))
		}
		t.events = append(t.events, ev)
	}
	return nil
}
