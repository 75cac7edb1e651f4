// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package streamer implements the UDP and serial fan-out of per-frame
// detection records using a user-declared field template (spec.md
// §4.11, C12).
package streamer

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/openpupil/pupilcore/procmode"
	"github.com/openpupil/pupilcore/pupil"
	"github.com/openpupil/pupilcore/trigger"
)

// Field identifies one column of the menu fixed by spec.md §6's
// streaming line format.
type Field string

const (
	FieldTrial                Field = "trial"
	FieldTimestamp            Field = "timestamp_ms"
	FieldFilename             Field = "filename"
	FieldCenterX              Field = "center_x"
	FieldCenterY              Field = "center_y"
	FieldMajor                Field = "major"
	FieldMinor                Field = "minor"
	FieldConfidence           Field = "confidence"
	FieldOutlineConfidence    Field = "outline_confidence"
	FieldDiameter             Field = "diameter"
	FieldUndistortedDiameter  Field = "undistorted_diameter"
	FieldPhysicalDiameterMM   Field = "physical_diameter_mm"
)

// DefaultTemplate is the full field set in the order given by spec.md
// §6.
var DefaultTemplate = []Field{
	FieldTrial, FieldTimestamp, FieldFilename, FieldCenterX, FieldCenterY,
	FieldMajor, FieldMinor, FieldConfidence, FieldOutlineConfidence,
	FieldDiameter, FieldUndistortedDiameter, FieldPhysicalDiameterMM,
}

// Record is one detection result to render, independent of
// signalhub.ProcessedPupilData so streamer stays importable standalone.
type Record struct {
	Trial     int
	Timestamp int64
	Filename  string
	Mode      procmode.Mode
	Pupils    []pupil.Pupil
}

// Template renders a Record as one `;`-separated, `\n`-terminated text
// line per spec.md §6: the per-record fields are written once, then
// the per-pupil fields repeat once for every pupil the mode emits, the
// same "more columns, not more rows" shape datawriter.go uses for its
// CSV row.
type Template struct {
	recordFields []Field
	pupilFields  []Field
}

// NewTemplate returns a Template for the given field order; nil or
// empty defaults to DefaultTemplate. Fields are split into the
// per-record group (written once) and the per-pupil group (repeated
// per pupil) by whether renderField needs a pupil to resolve them.
func NewTemplate(fields []Field) Template {
	if len(fields) == 0 {
		fields = DefaultTemplate
	}
	t := Template{}
	for _, f := range fields {
		if isPupilField(f) {
			t.pupilFields = append(t.pupilFields, f)
		} else {
			t.recordFields = append(t.recordFields, f)
		}
	}
	return t
}

func isPupilField(f Field) bool {
	switch f {
	case FieldCenterX, FieldCenterY, FieldMajor, FieldMinor, FieldConfidence,
		FieldOutlineConfidence, FieldDiameter, FieldUndistortedDiameter, FieldPhysicalDiameterMM:
		return true
	default:
		return false
	}
}

// Render formats r as one `\n`-terminated line: the record fields
// once, followed by the pupil fields once per pupil in r.Pupils, all
// `;`-separated, bit-exact for the enabled fields.
func (t Template) Render(r Record) string {
	var sb strings.Builder
	first := true
	for _, f := range t.recordFields {
		if !first {
			sb.WriteByte(';')
		}
		first = false
		sb.WriteString(t.renderField(f, r, pupil.Pupil{}))
	}
	for _, p := range r.Pupils {
		for _, f := range t.pupilFields {
			if !first {
				sb.WriteByte(';')
			}
			first = false
			sb.WriteString(t.renderField(f, r, p))
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

func (t Template) renderField(f Field, r Record, p pupil.Pupil) string {
	switch f {
	case FieldTrial:
		return strconv.Itoa(r.Trial)
	case FieldTimestamp:
		return strconv.FormatInt(r.Timestamp, 10)
	case FieldFilename:
		return r.Filename
	case FieldCenterX:
		return ftoa(p.Center.X)
	case FieldCenterY:
		return ftoa(p.Center.Y)
	case FieldMajor:
		return ftoa(p.MajorAxis())
	case FieldMinor:
		return ftoa(p.MinorAxis())
	case FieldConfidence:
		return ftoa(p.Confidence)
	case FieldOutlineConfidence:
		return ftoa(p.OutlineConfidence)
	case FieldDiameter:
		return ftoa(p.Diameter())
	case FieldUndistortedDiameter:
		return ftoa(p.UndistortedDiameterPx)
	case FieldPhysicalDiameterMM:
		return ftoa(p.PhysicalDiameterMM)
	default:
		return ""
	}
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// Transport is one fan-out destination: UDP or serial.
type Transport interface {
	Send(line string) error
	Close() error
}

// UDPTransport sends best-effort, no-retry UDP datagrams, per spec.md
// §4.11.
type UDPTransport struct {
	conn net.Conn
}

// DialUDP opens a best-effort UDP transport to addr ("host:port").
func DialUDP(addr string) (*UDPTransport, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("streamer: udp dial: %w", err)
	}
	return &UDPTransport{conn: conn}, nil
}

func (u *UDPTransport) Send(line string) error {
	_, err := u.conn.Write([]byte(line))
	return err
}

func (u *UDPTransport) Close() error { return u.conn.Close() }

// SerialTransport writes through the shared trigger.Pool so serial
// writes from the streamer and from the hardware trigger controller
// never interleave mid-command (spec.md §4.4/§4.11/§5).
type SerialTransport struct {
	handle *trigger.Handle
	mu     sync.Mutex
}

// NewSerialTransport acquires port through pool.
func NewSerialTransport(pool *trigger.Pool, port string) (*SerialTransport, error) {
	h, err := pool.Acquire(port)
	if err != nil {
		return nil, err
	}
	return &SerialTransport{handle: h}, nil
}

func (s *SerialTransport) Send(line string) error {
	return s.handle.Command(func(c *trigger.Controller) error {
		return c.WriteRaw([]byte(line))
	})
}

func (s *SerialTransport) Close() error { return nil }

// Streamer fans one detection record out to every enabled transport,
// formatting one line via Template per transport (spec.md §4.11).
type Streamer struct {
	mu         sync.Mutex
	transports map[string]Transport
	template   Template
}

// New returns a Streamer with no transports enabled.
func New(tpl Template) *Streamer {
	return &Streamer{transports: make(map[string]Transport), template: tpl}
}

// Enable registers a named transport (e.g. "udp", "serial").
func (s *Streamer) Enable(name string, t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports[name] = t
}

// Disable removes and closes a named transport.
func (s *Streamer) Disable(name string) error {
	s.mu.Lock()
	t, ok := s.transports[name]
	delete(s.transports, name)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return t.Close()
}

// Publish renders r and writes it to every enabled transport. Send
// errors from any transport, UDP or serial, are collected and
// returned; a failing transport does not stop the others from being
// attempted, and no send is retried.
func (s *Streamer) Publish(r Record) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := s.template.Render(r)
	var errs []error
	for _, t := range s.transports {
		if err := t.Send(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Stop flushes pending serial writes by closing every transport.
func (s *Streamer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, t := range s.transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.transports, name)
	}
	return firstErr
}
