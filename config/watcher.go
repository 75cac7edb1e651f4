// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	fsnotify "gopkg.in/fsnotify.v1"
)

// Watcher watches the on-disk YAML config file for external edits and
// re-validates it on change, generalizing the teacher's
// self-restart-on-rebuild watch (cmd/lepton/watch_linux.go) from "did
// the binary change" to "did the config file change, and if so does it
// still hot-validate" (spec.md §6's replace-with-default/one-shot
// write-back rule, re-applied on every external edit, not just load).
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	onLoad  func(Config)
	onError func(error)

	stop chan struct{}
	done chan struct{}
}

// NewWatcher opens an fsnotify watch on path. onLoad is called with
// the freshly re-validated Config after every external write; onError
// is called for a watcher or reload failure.
func NewWatcher(path string, onLoad func(Config), onError func(error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{path: path, fsw: fsw, onLoad: onLoad, onError: onError}, nil
}

// Start begins watching on its own goroutine.
func (w *Watcher) Start() {
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(w.stop, w.done)
}

// Stop halts the watch goroutine and closes the underlying fsnotify
// watcher. Idempotent.
func (w *Watcher) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
	w.fsw.Close()
	w.stop = nil
}

func (w *Watcher) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case err := <-w.fsw.Errors:
			if w.onError != nil {
				w.onError(err)
			}
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			if cfg.NeedsWriteBack() {
				_ = cfg.Save(w.path)
			}
			if w.onLoad != nil {
				w.onLoad(cfg)
			}
		}
	}
}
