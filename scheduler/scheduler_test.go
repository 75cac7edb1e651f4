package scheduler

import (
	"image"
	"testing"
	"time"

	"github.com/openpupil/pupilcore/camera"
	"github.com/openpupil/pupilcore/detect"
	"github.com/openpupil/pupilcore/procmode"
	"github.com/openpupil/pupilcore/pupil"
	"github.com/openpupil/pupilcore/signalhub"
)

// fakeSource is a minimal camera.Source test double that lets the test
// push frames directly onto the channel the scheduler subscribes to,
// mirroring camera.FakeGrabber's role of standing in for a physical
// driver without hardware.
type fakeSource struct {
	kind   camera.Kind
	frames chan camera.Image
}

func newFakeSource(kind camera.Kind) *fakeSource {
	return &fakeSource{kind: kind, frames: make(chan camera.Image, 8)}
}

func (f *fakeSource) Open() error                              { return nil }
func (f *fakeSource) Close() error                             { return nil }
func (f *fakeSource) IsOpen() bool                             { return true }
func (f *fakeSource) StartGrabbing() error                     { return nil }
func (f *fakeSource) StopGrabbing() error                      { return nil }
func (f *fakeSource) Kind() camera.Kind                        { return f.kind }
func (f *fakeSource) ImageROI() (image.Rectangle, error)       { return image.Rectangle{}, nil }
func (f *fakeSource) ImageROIMax() image.Rectangle             { return image.Rectangle{} }
func (f *fakeSource) SetImageROI(image.Rectangle) error        { return nil }
func (f *fakeSource) Binning() int                             { return 1 }
func (f *fakeSource) SetBinning(int) error                     { return nil }
func (f *fakeSource) Exposure() time.Duration                  { return 0 }
func (f *fakeSource) Gain() float64                            { return 0 }
func (f *fakeSource) ResultingFrameRate() float64              { return 0 }
func (f *fakeSource) Frames() <-chan camera.Image              { return f.frames }
func (f *fakeSource) ImagesSkipped() <-chan struct{}           { return nil }
func (f *fakeSource) DeviceRemoved() <-chan struct{}           { return nil }
func (f *fakeSource) SkippedCount() int                        { return 0 }

func grayImage(w, h int) *image.Gray {
	return image.NewGray(image.Rect(0, 0, w, h))
}

// TestResultVectorLengthMatchesSlotCount covers spec.md §8's
// "for all processed results r, |pupils(r)| == slot_count(mode(r))".
func TestResultVectorLengthMatchesSlotCount(t *testing.T) {
	src := newFakeSource(camera.KindLiveSingle)
	slots, err := DefaultSlots(procmode.SingleTwo, detect.NewFakeStrategy(1), detect.NewFakeStrategy(2))
	if err != nil {
		t.Fatal(err)
	}
	hubs := signalhub.NewHubs()
	sched := New(Config{Mode: procmode.SingleTwo, Slots: slots}, nil, hubs)
	if err := sched.AttachSource(src); err != nil {
		t.Fatal(err)
	}
	sub := hubs.ProcessedPupilData.Subscribe(4)
	defer sub.Unsubscribe()
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	src.frames <- camera.Image{Timestamp: 1, FrameNumber: 1, Primary: grayImage(64, 32)}
	select {
	case data := <-sub.C():
		if len(data.Pupils) != procmode.SingleTwo.SlotCount() {
			t.Fatalf("pupils = %d, want %d", len(data.Pupils), procmode.SingleTwo.SlotCount())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for processed data")
	}
}

// TestMailboxRetainsLatestUnderLoad covers the single-slot,
// drop-newest-retains-latest mailbox contract of spec.md §4.6: pushing
// several frames while the worker is busy must not process every one
// of them, and the last one processed must be the most recently
// pushed frame, not an intermediate one.
func TestMailboxRetainsLatestUnderLoad(t *testing.T) {
	src := newFakeSource(camera.KindLiveSingle)
	slow := &slowStrategy{delay: 50 * time.Millisecond}
	slots, err := DefaultSlots(procmode.SingleOne, slow, nil)
	if err != nil {
		t.Fatal(err)
	}
	hubs := signalhub.NewHubs()
	sched := New(Config{Mode: procmode.SingleOne, Slots: slots}, nil, hubs)
	if err := sched.AttachSource(src); err != nil {
		t.Fatal(err)
	}
	sub := hubs.ProcessedPupilData.Subscribe(8)
	defer sub.Unsubscribe()
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	// First frame starts processing immediately (worker was idle);
	// give it time to be picked up, then flood more frames than the
	// mailbox can hold while it is busy.
	src.frames <- camera.Image{Timestamp: 1, FrameNumber: 1, Primary: grayImage(8, 8)}
	time.Sleep(10 * time.Millisecond)
	for i := int64(2); i <= 5; i++ {
		src.frames <- camera.Image{Timestamp: i, FrameNumber: i, Primary: grayImage(8, 8)}
	}

	var got []int64
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case data := <-sub.C():
			got = append(got, data.ImageID)
		case <-timeout:
			t.Fatalf("timed out, only got %v", got)
		}
	}
	if got[len(got)-1] != 5 {
		t.Fatalf("last processed frame id = %d, want 5 (the latest)", got[len(got)-1])
	}
	if len(got) >= 5 {
		t.Fatalf("mailbox should have dropped intermediate frames, but all %d were processed", len(got))
	}
}

// TestSetModeRejectsIncompatibleSource covers spec.md §3/§8 scenario 4:
// selecting a mode incompatible with the source kind is refused and
// the scheduler's mode is unchanged.
func TestSetModeRejectsIncompatibleSource(t *testing.T) {
	src := newFakeSource(camera.KindLiveSingle)
	slots, _ := DefaultSlots(procmode.SingleOne, detect.NewFakeStrategy(1), nil)
	hubs := signalhub.NewHubs()
	sched := New(Config{Mode: procmode.SingleOne, Slots: slots}, nil, hubs)
	if err := sched.AttachSource(src); err != nil {
		t.Fatal(err)
	}
	err := sched.SetMode(procmode.StereoOne, nil)
	if _, ok := err.(*procmode.ErrIncompatible); !ok {
		t.Fatalf("err = %v, want *procmode.ErrIncompatible", err)
	}
	if sched.cfg.Mode != procmode.SingleOne {
		t.Fatalf("mode after refused SetMode = %s, want single-one", sched.cfg.Mode)
	}
}

// TestStopDrainsMailboxBeforeFinishing covers spec.md §4.6/§5: Stop
// must process any frame still waiting in the mailbox before emitting
// ProcessingFinished.
func TestStopDrainsMailboxBeforeFinishing(t *testing.T) {
	src := newFakeSource(camera.KindLiveSingle)
	slow := &slowStrategy{delay: 30 * time.Millisecond}
	slots, _ := DefaultSlots(procmode.SingleOne, slow, nil)
	hubs := signalhub.NewHubs()
	sched := New(Config{Mode: procmode.SingleOne, Slots: slots}, nil, hubs)
	if err := sched.AttachSource(src); err != nil {
		t.Fatal(err)
	}
	sub := hubs.ProcessedPupilData.Subscribe(4)
	defer sub.Unsubscribe()
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}

	src.frames <- camera.Image{Timestamp: 1, FrameNumber: 1, Primary: grayImage(8, 8)}
	time.Sleep(5 * time.Millisecond)
	src.frames <- camera.Image{Timestamp: 2, FrameNumber: 2, Primary: grayImage(8, 8)}

	if err := sched.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-sched.ProcessingFinished():
	default:
		t.Fatal("ProcessingFinished did not fire after Stop")
	}

	drained := 0
loop:
	for {
		select {
		case <-sub.C():
			drained++
		default:
			break loop
		}
	}
	if drained == 0 {
		t.Fatal("expected the mailbox-held frame to have been processed before stopping")
	}
}

// slowStrategy simulates a detection algorithm slower than the
// producer, so the scheduler's mailbox must coalesce frames.
type slowStrategy struct {
	delay time.Duration
}

func (s *slowStrategy) Name() string { return "slow" }

func (s *slowStrategy) Detect(img *image.Gray) (pupil.Pupil, bool, error) {
	time.Sleep(s.delay)
	b := img.Bounds()
	return pupil.Pupil{
		Center: pupil.Point{X: float64(b.Dx()) / 2, Y: float64(b.Dy()) / 2},
		Size:   pupil.Size{Width: 4, Height: 4},
	}, true, nil
}
