package camera

import (
	"image"
	"testing"
	"time"
)

func TestLiveSingleEmitsFramesInOrder(t *testing.T) {
	g := NewFakeGrabber(64, 64, 1)
	var tick int64
	clock := func() int64 {
		tick += 10
		return tick
	}
	s := NewLiveSingle(g, clock)
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.StartGrabbing(); err != nil {
		t.Fatal(err)
	}
	var last int64
	for i := 0; i < 5; i++ {
		select {
		case im := <-s.Frames():
			if im.Timestamp <= last {
				t.Fatalf("timestamp did not increase: %d <= %d", im.Timestamp, last)
			}
			if im.FrameNumber != int64(i+1) {
				t.Fatalf("frame number = %d, want %d", im.FrameNumber, i+1)
			}
			last = im.Timestamp
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
}

func TestSetImageROIRejectsNonMultipleOf16(t *testing.T) {
	g := NewFakeGrabber(640, 480, 1)
	s := NewLiveSingle(g, nil)
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	err := s.SetImageROI(image.Rect(0, 0, 100, 100))
	if err != ErrROIOutOfBounds {
		t.Fatalf("err = %v, want ErrROIOutOfBounds", err)
	}
}

func TestSetBinningRejectsInvalidValue(t *testing.T) {
	g := NewFakeGrabber(640, 480, 1)
	s := NewLiveSingle(g, nil)
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.SetBinning(3); err != ErrBinning {
		t.Fatalf("err = %v, want ErrBinning", err)
	}
}

func TestLiveWebcamRejectsROIAndBinning(t *testing.T) {
	g := NewFakeGrabber(320, 240, 1)
	w := NewLiveWebcam(g, nil)
	if err := w.SetImageROI(image.Rect(0, 0, 16, 16)); err != ErrWebcamUnsupported {
		t.Fatalf("SetImageROI err = %v", err)
	}
	if err := w.SetBinning(2); err != ErrWebcamUnsupported {
		t.Fatalf("SetBinning err = %v", err)
	}
	if w.Kind() != KindLiveWebcam {
		t.Fatalf("Kind = %v", w.Kind())
	}

	if err := w.Open(); err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.StartGrabbing(); err != nil {
		t.Fatal(err)
	}
	select {
	case im := <-w.Frames():
		if im.Kind != KindLiveWebcam {
			t.Fatalf("emitted Image.Kind = %v, want KindLiveWebcam", im.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestStopGrabbingIsIdempotent(t *testing.T) {
	g := NewFakeGrabber(64, 64, 1)
	s := NewLiveSingle(g, nil)
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.StopGrabbing(); err != nil {
		t.Fatalf("stop on never-started source: %v", err)
	}
	if err := s.StartGrabbing(); err != nil {
		t.Fatal(err)
	}
	if err := s.StopGrabbing(); err != nil {
		t.Fatal(err)
	}
	if err := s.StopGrabbing(); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}

func TestPairerEmitsWithinWindow(t *testing.T) {
	p := NewPairer(5*time.Millisecond, 4)
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	// spec.md §8 scenario 2: primary at 0,10,20,30ms; secondary at 0,30ms.
	p.PushPrimary(0, 1, img)
	p.PushSecondary(0, 1, img)
	p.PushPrimary(10, 2, img)
	p.PushPrimary(20, 3, img)
	p.PushSecondary(30, 2, img)
	p.PushPrimary(30, 4, img)

	var got []int64
	for i := 0; i < 2; i++ {
		select {
		case im := <-p.Paired():
			got = append(got, im.Timestamp)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for paired frame")
		}
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 30 {
		t.Fatalf("paired timestamps = %v, want [0 30]", got)
	}
	if p.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", p.Dropped())
	}
}

func TestLiveStereoEmitsPairedFrames(t *testing.T) {
	primary := NewFakeGrabber(64, 64, 1)
	secondary := NewFakeGrabber(64, 64, 2)
	pairer := NewPairer(50*time.Millisecond, 8)
	s := NewLiveStereo(primary, secondary, pairer, nil, nil)
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Kind() != KindLiveStereo {
		t.Fatalf("Kind = %v, want KindLiveStereo", s.Kind())
	}
	if err := s.StartGrabbing(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		select {
		case im := <-s.Frames():
			if im.Kind != KindLiveStereo {
				t.Fatalf("emitted Image.Kind = %v, want KindLiveStereo", im.Kind)
			}
			if !im.Stereo() {
				t.Fatal("expected a stereo image with a secondary view")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for paired frame")
		}
	}
	if err := s.StopGrabbing(); err != nil {
		t.Fatal(err)
	}
}

func TestPairerEmittedTimestampIsPrimary(t *testing.T) {
	p := NewPairer(5*time.Millisecond, 4)
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	p.PushSecondary(2, 9, img)
	p.PushPrimary(0, 1, img)
	select {
	case im := <-p.Paired():
		if im.Timestamp != 0 {
			t.Fatalf("emitted timestamp = %d, want primary's 0", im.Timestamp)
		}
		if im.FrameNumber != 1 {
			t.Fatalf("emitted frame number = %d, want primary's 1", im.FrameNumber)
		}
		if !im.Stereo() {
			t.Fatal("expected a stereo image")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
