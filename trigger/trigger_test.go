package trigger

import (
	"sync"
	"testing"
)

// fakeConn is an in-memory io.ReadWriteCloser standing in for the
// serial port, so these tests exercise the wire protocol without a
// real microcontroller.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (f *fakeConn) Read(p []byte) (int, error) { return 0, nil }

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConn) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return ""
	}
	return string(f.writes[len(f.writes)-1])
}

func newTestController() (*Controller, *fakeConn) {
	conn := &fakeConn{}
	return &Controller{conn: conn, port: "test"}, conn
}

func TestStartWritesBitExactCommand(t *testing.T) {
	c, conn := newTestController()
	if err := c.Start(0, 5000); err != nil {
		t.Fatal(err)
	}
	if got := conn.last(); got != "<TX0X5000>" {
		t.Fatalf("wrote %q, want <TX0X5000>", got)
	}
}

func TestStartRejectsInvalidArguments(t *testing.T) {
	c, _ := newTestController()
	if err := c.Start(-1, 100); err == nil {
		t.Fatal("expected error for negative count")
	}
	if err := c.Start(10, 0); err == nil {
		t.Fatal("expected error for delayMicros < 1")
	}
}

func TestStopWritesBitExactCommand(t *testing.T) {
	c, conn := newTestController()
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := conn.last(); got != "<SX>" {
		t.Fatalf("wrote %q, want <SX>", got)
	}
}

func TestFrameRateHzMatchesHalfPeriodInterpretation(t *testing.T) {
	// spec.md §9: frame period = 2*delay, so count = runtime/(2*delay)
	// and rate = 1e6/(2*delay).
	if got := FrameRateHz(5000); got != 100 {
		t.Fatalf("FrameRateHz(5000) = %v, want 100", got)
	}
	if got := FrameRateHz(0); got != 0 {
		t.Fatalf("FrameRateHz(0) = %v, want 0", got)
	}
}

func TestPoolSerializesCommandsAcrossHandles(t *testing.T) {
	// Exercise the pool without a real serial port by pre-seeding it.
	p := NewPool()
	conn := &fakeConn{}
	p.ports["test"] = &pooledPort{ctrl: &Controller{conn: conn, port: "test"}}

	h1, err := p.Acquire("test")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := p.Acquire("test")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h1.Command(func(c *Controller) error { return c.Start(0, 1000) })
	}()
	go func() {
		defer wg.Done()
		h2.Command(func(c *Controller) error { return c.Stop() })
	}()
	wg.Wait()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(conn.writes))
	}
}

func TestHandleWriteRawSharesPortWithStreamer(t *testing.T) {
	p := NewPool()
	conn := &fakeConn{}
	p.ports["test"] = &pooledPort{ctrl: &Controller{conn: conn, port: "test"}}
	h, err := p.Acquire("test")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Command(func(c *Controller) error { return c.WriteRaw([]byte("trial;1\n")) }); err != nil {
		t.Fatal(err)
	}
	if got := conn.last(); got != "trial;1\n" {
		t.Fatalf("wrote %q", got)
	}
}

func TestSignalStartWakesListeningSubscriber(t *testing.T) {
	// Follows the ordering invariant of spec.md §4.1: Subscribe is
	// called (the camera source is listening) before Start fires, and
	// Start then wakes the waiting subscriber.
	s := NewSignal()
	start, _ := s.Subscribe()
	done := make(chan struct{})
	go func() {
		<-start
		close(done)
	}()
	s.Start()
	<-done
}

func TestSignalStopWakesSubscriberExactlyOnce(t *testing.T) {
	s := NewSignal()
	_, stop := s.Subscribe()
	s.Stop()
	select {
	case <-stop:
	default:
		t.Fatal("stop channel was not closed")
	}
}
