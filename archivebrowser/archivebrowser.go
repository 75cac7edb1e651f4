// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package archivebrowser serves a completed image archive (spec.md
// §6: the flat or 0/,1/ image tree plus imagerec_meta.xml,
// offline_event_log.xml and the CSV log) read-only over HTTP for
// offline inspection (SPEC_FULL.md §5/§6's domain-stack addition).
// It is a static file server, not windowing or menu logic, so it
// stays outside the GUI non-goal.
package archivebrowser

import (
	"fmt"
	"net/http"

	"github.com/maruel/serve-dir/loghttp"
)

// Server serves one archive root directory.
type Server struct {
	root string
	mux  *http.ServeMux
}

// New returns a Server rooted at dir. "/" lists the directory (via
// http.FileServer's built-in index), "/files/" serves file contents.
func New(dir string) *Server {
	s := &Server{root: dir, mux: http.NewServeMux()}
	fs := http.FileServer(http.Dir(dir))
	s.mux.Handle("/files/", http.StripPrefix("/files/", fs))
	s.mux.Handle("/", fs)
	return s
}

// Handler returns the request-logged handler, mirroring the teacher's
// use of the same loghttp wrapper referenced by go-lepton's server
// (cmd/lepton/server.go's inline loggingHandler is "Inspired by" this
// exact package per google-periph's periph-web, which names it
// directly).
func (s *Server) Handler() http.Handler {
	return &loghttp.Handler{Handler: s.mux}
}

// ListenAndServe serves the archive rooted at dir on addr. Blocks; run
// it on its own goroutine.
func ListenAndServe(addr, dir string) error {
	return fmt.Errorf("archivebrowser: %w", http.ListenAndServe(addr, New(dir).Handler()))
}
