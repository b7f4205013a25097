package acquire

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tiagocoutinho/hamamatsu/dcam"
)

func simDevice(t *testing.T) *dcam.Device {
	t.Helper()
	reg := dcam.NewRegistry(dcam.NewSim(1))
	if err := reg.Open(); err != nil {
		t.Fatalf("registry open: %v", err)
	}
	t.Cleanup(reg.Close)
	dev, err := OpenDevice(reg, 0)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	if _, err := dev.SetExposureTime(2 * time.Millisecond); err != nil {
		t.Fatalf("set exposure: %v", err)
	}
	return dev
}

// countingSink records the sequence numbers it is handed.
type countingSink struct {
	mu   sync.Mutex
	seqs []int
	fail int // fail on this sequence number; -1 disables
}

func newCountingSink() *countingSink { return &countingSink{fail: -1} }

func (c *countingSink) FrameReady(seq int, frame *dcam.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq == c.fail {
		return errors.New("sink full")
	}
	c.seqs = append(c.seqs, seq)
	return nil
}

func (c *countingSink) sequence() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.seqs...)
}

func TestSessionFiniteRun(t *testing.T) {
	dev := simDevice(t)
	sink := newCountingSink()
	s, err := Start(dev, sink, Config{NFrames: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("State() = %v, want Ready", s.State())
	}
	if s.AcquiredFrames() != 5 {
		t.Errorf("AcquiredFrames() = %d, want 5", s.AcquiredFrames())
	}
	seqs := sink.sequence()
	if len(seqs) != 5 {
		t.Fatalf("sink saw %v", seqs)
	}
	for i, seq := range seqs {
		if seq != i {
			t.Fatalf("sink saw %v, want 0..4 in order", seqs)
		}
	}
}

func TestSessionStopJoins(t *testing.T) {
	dev := simDevice(t)
	sink := newCountingSink()
	s, err := Start(dev, sink, Config{RingSize: 8})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.AcquiredFrames() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("no frames acquired")
		}
		time.Sleep(time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// after the join nothing else may reach the sink
	n := s.AcquiredFrames()
	time.Sleep(20 * time.Millisecond)
	if got := s.AcquiredFrames(); got != n {
		t.Errorf("frames moved from %d to %d after Stop", n, got)
	}
	if len(sink.sequence()) != n {
		t.Errorf("sink saw %d frames, session counted %d", len(sink.sequence()), n)
	}
	if s.State() != StateReady {
		t.Errorf("State() = %v, want Ready", s.State())
	}
}

func TestSessionSinkErrorFaults(t *testing.T) {
	dev := simDevice(t)
	sink := newCountingSink()
	sink.fail = 2
	s, err := Start(dev, sink, Config{NFrames: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Wait(); err == nil {
		t.Fatal("wait returned nil, want sink error")
	}
	if s.State() != StateFault {
		t.Errorf("State() = %v, want Fault", s.State())
	}
	if s.Err() == nil {
		t.Error("Err() = nil after fault")
	}
	if got := len(sink.sequence()); got != 2 {
		t.Errorf("sink saw %d frames before the fault, want 2", got)
	}
}

// With a software trigger source and nobody firing, the per-frame
// budget runs out and the session faults rather than hanging.
func TestSessionFrameTimeoutFaults(t *testing.T) {
	dev := simDevice(t)
	trig, err := dev.CapByName("trigger_source")
	if err != nil {
		t.Fatalf("trigger source: %v", err)
	}
	if _, err := trig.WriteText("SOFTWARE"); err != nil {
		t.Fatalf("write text: %v", err)
	}
	s, err := Start(dev, newCountingSink(), Config{NFrames: 1, FrameTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = s.Wait()
	if !dcam.IsTimeout(err) {
		t.Fatalf("wait err = %v, want timeout", err)
	}
	if s.State() != StateFault {
		t.Errorf("State() = %v, want Fault", s.State())
	}
}

// A second session on the same device must work after the first one is
// stopped; resources are fully released on join.
func TestSessionSequential(t *testing.T) {
	dev := simDevice(t)
	for i := 0; i < 2; i++ {
		sink := newCountingSink()
		s, err := Start(dev, sink, Config{NFrames: 3})
		if err != nil {
			t.Fatalf("run %d start: %v", i, err)
		}
		if err := s.Wait(); err != nil {
			t.Fatalf("run %d wait: %v", i, err)
		}
		if got := len(sink.sequence()); got != 3 {
			t.Fatalf("run %d delivered %d frames", i, got)
		}
	}
}
