package eventtracker

import (
	"os"
	"path/filepath"
	"testing"

	"periph.io/x/periph/devices"
)

// TestTrialNumberAtBinarySearch covers spec.md §8's invariant: for any
// two consecutive trial-changing events at t1 < t2, TrialNumberAt(t)
// for t1 <= t < t2 equals the trial number established at t1.
func TestTrialNumberAtBinarySearch(t *testing.T) {
	tr := New(nil)
	if got := tr.TrialNumberAt(0); got != 0 {
		t.Fatalf("empty log TrialNumberAt(0) = %d, want 0", got)
	}
	tr.AddTrialIncrement(100) // trial 1 at t=100
	tr.AddTrialIncrement(200) // trial 2 at t=200
	tr.AddTrialIncrement(300) // trial 3 at t=300

	cases := []struct {
		ts   int64
		want int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{150, 1},
		{200, 2},
		{250, 2},
		{300, 3},
		{1000, 3},
	}
	for _, c := range cases {
		if got := tr.TrialNumberAt(c.ts); got != c.want {
			t.Errorf("TrialNumberAt(%d) = %d, want %d", c.ts, got, c.want)
		}
	}
}

// TestResetRefusedWhileWriterActive covers spec.md §4.8's invariant
// that ResetTrialCounter is refused while any writer reports itself
// active, leaving the trial counter untouched.
func TestResetRefusedWhileWriterActive(t *testing.T) {
	active := true
	tr := New(func() bool { return active })
	tr.AddTrialIncrement(10)

	if refused := tr.ResetTrialCounter(20); !refused {
		t.Fatal("ResetTrialCounter should have been refused while a writer is active")
	}
	if got := tr.TrialNumberAt(20); got != 1 {
		t.Fatalf("trial after refused reset = %d, want 1 (unchanged)", got)
	}

	active = false
	if refused := tr.ResetTrialCounter(30); refused {
		t.Fatal("ResetTrialCounter should have succeeded once the writer went inactive")
	}
	if got := tr.TrialNumberAt(30); got != 0 {
		t.Fatalf("trial after accepted reset = %d, want 0", got)
	}
}

// TestInjectLoopReset covers spec.md §4.3/§4.12: a playback loop wrap
// injects a trial-reset unconditionally, even while a writer is
// reported active (unlike the operator-initiated ResetTrialCounter).
func TestInjectLoopReset(t *testing.T) {
	tr := New(func() bool { return true })
	tr.AddTrialIncrement(10)
	tr.AddTrialIncrement(20)
	tr.InjectLoopReset(25)
	tr.AddTrialIncrement(30)

	if got := tr.TrialNumberAt(25); got != 0 {
		t.Fatalf("trial at loop wrap = %d, want 0", got)
	}
	if got := tr.TrialNumberAt(30); got != 1 {
		t.Fatalf("trial after post-wrap increment = %d, want 1", got)
	}
}

// TestSaveLoadOfflineLogRoundTrip covers spec.md §8's offline-log law:
// saving a window and loading it back reproduces the same trial
// alignment for timestamps in that window.
func TestSaveLoadOfflineLogRoundTrip(t *testing.T) {
	tr := New(nil)
	tr.AddTrialIncrement(10)
	tr.AddMessage(15, "fixation cross shown")
	tr.AddTemperatureCheck(18, []devices.Celsius{devices.Celsius(36500), devices.Celsius(36700)})
	tr.AddTrialIncrement(20)
	tr.ResetTrialCounter(25)
	tr.AddTrialIncrement(30)

	path := filepath.Join(t.TempDir(), "offline_event_log.xml")
	if err := tr.SaveOfflineLog(0, 100, path); err != nil {
		t.Fatalf("SaveOfflineLog: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}

	reloaded := New(nil)
	if err := reloaded.LoadOfflineLog(path); err != nil {
		t.Fatalf("LoadOfflineLog: %v", err)
	}

	for _, ts := range []int64{5, 10, 15, 20, 25, 30, 99} {
		want := tr.TrialNumberAt(ts)
		got := reloaded.TrialNumberAt(ts)
		if got != want {
			t.Errorf("TrialNumberAt(%d) after round-trip = %d, want %d", ts, got, want)
		}
	}

	events := reloaded.Events(0, 100)
	foundMessage := false
	foundTemp := false
	for _, e := range events {
		switch e.Kind {
		case Message:
			if e.Text != "fixation cross shown" {
				t.Errorf("message text = %q, want %q", e.Text, "fixation cross shown")
			}
			foundMessage = true
		case TemperatureCheck:
			if len(e.Temperatures) != 2 {
				t.Errorf("temperature count = %d, want 2", len(e.Temperatures))
			}
			foundTemp = true
		}
	}
	if !foundMessage {
		t.Error("round-tripped log is missing the message event")
	}
	if !foundTemp {
		t.Error("round-tripped log is missing the temperature-check event")
	}
}
