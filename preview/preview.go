// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package preview streams the detection scheduler's throttled,
// PNG-encoded preview frames to any number of connected operator UIs
// over one websocket per subscriber (SPEC_FULL.md §5's domain-stack
// addition), generalizing the teacher's single WebServer.stream
// handler (cmd/lepton/server.go) from one sync.Cond consumer to N
// independent signalhub subscribers.
package preview

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/openpupil/pupilcore/signalhub"
)

// Meta is sent as one JSON line ahead of the raw PNG bytes on every
// frame, following the teacher's "metadata, then raw image" order
// (cmd/lepton/server.go's stream handler). The JSON line and the PNG
// bytes go out as separate websocket writes, not as one packet.
type Meta struct {
	Timestamp   int64  `json:"timestamp_ms"`
	FrameNumber int64  `json:"frame_number"`
	Mode        string `json:"mode"`
	PupilCount  int    `json:"pupil_count"`
}

// Server publishes signalhub.ProcessedImage values to connected
// websocket clients. Each client gets its own Hub subscription so one
// slow viewer cannot stall another (spec.md §4.13).
type Server struct {
	hub *signalhub.Hub[signalhub.ProcessedImage]
}

// New wraps hub, the scheduler's already-throttled (<=30Hz) preview
// signal (spec.md §4.6).
func New(hub *signalhub.Hub[signalhub.ProcessedImage]) *Server {
	return &Server{hub: hub}
}

// Handler returns the "/preview" websocket handler to mount on an
// http.ServeMux.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.stream)
}

func (s *Server) stream(conn *websocket.Conn) {
	log.Printf("preview: websocket %s connected", conn.Request().RemoteAddr)
	sub := s.hub.Subscribe(4)
	defer sub.Unsubscribe()
	for frame := range sub.C() {
		meta := Meta{
			Timestamp:   frame.Image.Timestamp,
			FrameNumber: frame.Image.FrameNumber,
			Mode:        frame.Mode.String(),
			PupilCount:  len(frame.Pupils),
		}
		if err := json.NewEncoder(conn).Encode(&meta); err != nil {
			break
		}
		if frame.Image.Primary == nil {
			continue
		}
		if err := png.Encode(conn, frame.Image.Primary); err != nil {
			break
		}
	}
	log.Printf("preview: websocket %s closed", conn.Request().RemoteAddr)
}

// ListenAndServe mounts the preview handler at "/preview" and serves
// it on addr. Blocks; run it on its own goroutine.
func ListenAndServe(addr string, hub *signalhub.Hub[signalhub.ProcessedImage]) error {
	mux := http.NewServeMux()
	mux.Handle("/preview", New(hub).Handler())
	return fmt.Errorf("preview: %w", http.ListenAndServe(addr, mux))
}
