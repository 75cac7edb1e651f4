// Copyright 2026 The Pupilcore Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// pupilcore runs the full real-time pupillometry acquisition and
// processing pipeline: a camera source feeds the detection scheduler,
// whose results fan out to a CSV log, an image archive, and UDP/serial
// streams, while an operator can watch the throttled preview over a
// websocket and browse a finished archive over HTTP.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/maruel/interrupt"

	"github.com/openpupil/pupilcore/archivebrowser"
	"github.com/openpupil/pupilcore/camera"
	"github.com/openpupil/pupilcore/config"
	"github.com/openpupil/pupilcore/datawriter"
	"github.com/openpupil/pupilcore/detect"
	"github.com/openpupil/pupilcore/eventtracker"
	"github.com/openpupil/pupilcore/imagewriter"
	"github.com/openpupil/pupilcore/playback"
	"github.com/openpupil/pupilcore/preview"
	"github.com/openpupil/pupilcore/procmode"
	"github.com/openpupil/pupilcore/scheduler"
	"github.com/openpupil/pupilcore/signalhub"
	"github.com/openpupil/pupilcore/streamer"
	"github.com/openpupil/pupilcore/trigger"
)

func mainImpl() error {
	configPath := flag.String("config", "", "path to a YAML config file; defaults are used if absent")
	playbackDir := flag.String("playback-dir", "", "directory of pre-recorded images to play back instead of a live camera")
	udpAddr := flag.String("udp", "", "host:port to stream detection results to over UDP (disabled if empty)")
	serialPort := flag.String("serial", "", "serial port shared by the hardware trigger and the streamer's serial transport (disabled if empty)")
	previewAddr := flag.String("preview-addr", ":8081", "address to serve the live preview websocket on")
	archiveAddr := flag.String("archive-addr", "", "address to serve the image archive for offline browsing on (disabled if empty)")
	writeConfig := flag.Bool("write-config", false, "write a default config file to -config and exit")
	flag.Parse()
	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	if *writeConfig {
		if *configPath == "" {
			return fmt.Errorf("-write-config requires -config")
		}
		cfg := config.Default()
		return cfg.Save(*configPath)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if cfg.NeedsWriteBack() {
			if err := cfg.Save(*configPath); err != nil {
				log.Printf("pupilcore: config write-back failed: %v", err)
			}
		}
	}

	interrupt.HandleCtrlC()

	hubs := signalhub.NewHubs()
	tracker := eventtracker.New(nil)

	var source camera.Source
	var playbackSync *playback.Synchronizer
	if *playbackDir != "" {
		reader, err := playback.NewSingle(*playbackDir, cfg.Playback.FPS, cfg.Playback.Loop)
		if err != nil {
			return err
		}
		playbackSync = playback.NewSynchronizer(tracker)
		reader.AttachSynchronizer(playbackSync)
		source = reader
	} else {
		grabber := camera.NewFakeGrabber(1280, 1024, time.Now().UnixNano())
		source = camera.NewLiveSingle(grabber, nil)
	}

	mode, err := parseMode(cfg.ProcMode)
	if err != nil {
		return err
	}

	strategyA := detect.NewFakeStrategy(1)
	slots, err := scheduler.DefaultSlots(mode, strategyA, detect.NewFakeStrategy(2))
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{Mode: mode, Slots: slots}, tracker, hubs)
	if playbackSync != nil {
		sched.AttachPlaybackSync(playbackSync)
	}

	if err := source.Open(); err != nil {
		return err
	}
	defer source.Close()
	if err := sched.AttachSource(source); err != nil {
		return err
	}
	if err := source.StartGrabbing(); err != nil {
		return err
	}
	defer source.StopGrabbing()

	csvPath := cfg.Paths.PupilDataCSVPath
	if csvPath == "" {
		csvPath = "pupildata.csv"
	}
	var metaPath string
	if cfg.MetadataSnapshotsEnabled {
		metaPath = csvPath + ".meta.xml"
	}
	dw, err := datawriter.Open(csvPath, mode, metaPath, datawriter.Meta{
		SourceKind:     source.Kind().String(),
		StrategyNames:  []string{strategyA.Name()},
		HasCalibration: false,
		TimeBase:       "milliseconds since epoch, monotonic per source",
	})
	if err != nil {
		return err
	}
	defer dw.Close()

	var iw *imagewriter.Writer
	if cfg.Paths.OutputDirectory != "" {
		var meta *imagewriter.Meta
		if cfg.MetadataSnapshotsEnabled {
			roi, _ := source.ImageROI()
			meta = &imagewriter.Meta{
				SourceKind:     source.Kind().String(),
				Binning:        source.Binning(),
				ROI:            fmt.Sprintf("%v", roi),
				StartTimestamp: time.Now().UnixMilli(),
			}
		}
		iw, err = imagewriter.Open(cfg.Paths.OutputDirectory, mode.Stereo(), true, meta)
		if err != nil {
			return err
		}
		defer iw.Close()
	}

	var trigPool *trigger.Pool
	st := streamer.New(streamer.NewTemplate(streamer.DefaultTemplate))
	if *udpAddr != "" {
		udp, err := streamer.DialUDP(*udpAddr)
		if err != nil {
			return err
		}
		st.Enable("udp", udp)
	}
	if *serialPort != "" {
		trigPool = trigger.NewPool()
		serialT, err := streamer.NewSerialTransport(trigPool, *serialPort)
		if err != nil {
			return err
		}
		st.Enable("serial", serialT)
	}
	defer st.Stop()
	if trigPool != nil {
		defer trigPool.Close()
	}

	dataSub := hubs.ProcessedPupilData.Subscribe(64)
	defer dataSub.Unsubscribe()
	go func() {
		for rec := range dataSub.C() {
			dw.Write(datawriter.Record{Trial: rec.Trial, Timestamp: rec.Timestamp, ImageID: rec.ImageID, Mode: rec.Mode, Pupils: rec.Pupils})
			st.Publish(streamer.Record{Trial: rec.Trial, Timestamp: rec.Timestamp, Mode: rec.Mode, Pupils: rec.Pupils})
		}
	}()

	if iw != nil {
		grabSub := hubs.NewGrabResult.Subscribe(64)
		defer grabSub.Unsubscribe()
		go func() {
			for img := range grabSub.C() {
				iw.Submit(img)
			}
		}()
	}

	if *previewAddr != "" {
		go func() {
			if err := preview.ListenAndServe(*previewAddr, hubs.ProcessedImage); err != nil {
				log.Printf("pupilcore: preview server: %v", err)
			}
		}()
	}
	if *archiveAddr != "" && cfg.Paths.OutputDirectory != "" {
		go func() {
			if err := archivebrowser.ListenAndServe(*archiveAddr, cfg.Paths.OutputDirectory); err != nil {
				log.Printf("pupilcore: archive browser: %v", err)
			}
		}()
	}

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(newCfg config.Config) {
			newMode, err := parseMode(newCfg.ProcMode)
			if err != nil {
				log.Printf("pupilcore: config reload: %v", err)
				return
			}
			newSlots, err := scheduler.DefaultSlots(newMode, strategyA, detect.NewFakeStrategy(2))
			if err != nil {
				log.Printf("pupilcore: config reload: %v", err)
				return
			}
			if err := sched.SetMode(newMode, newSlots); err != nil {
				log.Printf("pupilcore: config reload: %v", err)
				return
			}
			log.Printf("pupilcore: config reloaded, mode=%s", newMode)
		}, func(err error) {
			log.Printf("pupilcore: config watch: %v", err)
		})
		if err != nil {
			return err
		}
		watcher.Start()
		defer watcher.Stop()
	}

	if playbackSync != nil {
		playbackSync.SetDetecting(true)
	}
	if err := sched.Start(); err != nil {
		return err
	}
	log.Printf("pupilcore: running mode=%s source=%s", mode, source.Kind())

	for !interrupt.IsSet() {
		time.Sleep(200 * time.Millisecond)
	}
	log.Printf("pupilcore: shutting down")
	if playbackSync != nil {
		playbackSync.SetDetecting(false)
	}
	sched.Stop()
	<-sched.ProcessingFinished()
	return nil
}

func parseMode(s string) (procmode.Mode, error) {
	switch s {
	case "single-one":
		return procmode.SingleOne, nil
	case "single-two":
		return procmode.SingleTwo, nil
	case "stereo-one":
		return procmode.StereoOne, nil
	case "stereo-two":
		return procmode.StereoTwo, nil
	default:
		return procmode.Undetermined, fmt.Errorf("pupilcore: unknown proc mode %q", s)
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\npupilcore: %s.\n", err)
		os.Exit(1)
	}
}
