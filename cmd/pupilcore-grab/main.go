// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// pupilcore-grab captures a single frame from a camera source (live or
// file-playback) and saves it as PNG, mirroring the teacher's
// lepton-grab still-capture utility.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/openpupil/pupilcore/camera"
	"github.com/openpupil/pupilcore/playback"
)

func mainImpl() error {
	playbackDir := flag.String("playback-dir", "", "grab from a pre-recorded image directory instead of a live camera")
	fps := flag.Float64("fps", 30, "playback cadence, only used with -playback-dir")
	sensorW := flag.Int("w", 1280, "fake sensor width, only used without -playback-dir")
	sensorH := flag.Int("h", 1024, "fake sensor height, only used without -playback-dir")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("supply path to PNG to save")
	}

	var src camera.Source
	if *playbackDir != "" {
		reader, err := playback.NewSingle(*playbackDir, *fps, false)
		if err != nil {
			return err
		}
		src = reader
	} else {
		grabber := camera.NewFakeGrabber(*sensorW, *sensorH, time.Now().UnixNano())
		src = camera.NewLiveSingle(grabber, nil)
	}

	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()
	if err := src.StartGrabbing(); err != nil {
		return err
	}
	defer src.StopGrabbing()

	select {
	case img, ok := <-src.Frames():
		if !ok {
			return errors.New("pupilcore-grab: source closed before a frame arrived")
		}
		f, err := os.Create(flag.Args()[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return png.Encode(f, img.Primary)
	case <-time.After(5 * time.Second):
		return errors.New("pupilcore-grab: timed out waiting for a frame")
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\npupilcore-grab: %s.\n", err)
		os.Exit(1)
	}
}
