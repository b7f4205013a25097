package dcam

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// scriptStep is one canned wait result.  count is the transfer cursor
// value visible from the moment this wake is delivered.
type scriptStep struct {
	ev    EWaitEvent
	err   EError
	count int
}

// scriptAPI plays back a fixed sequence of wait results so stream
// behavior can be pinned down deterministically.  Once the script is
// exhausted, waits block until aborted or timed out.
type scriptAPI struct {
	mu     sync.Mutex
	steps  []scriptStep
	count  int
	locked []int
	abort  chan struct{}
	once   sync.Once
}

func newScriptAPI(steps ...scriptStep) *scriptAPI {
	return &scriptAPI{steps: steps, abort: make(chan struct{})}
}

func (f *scriptAPI) Init() (int, error)                  { return 1, nil }
func (f *scriptAPI) Uninit() error                       { return nil }
func (f *scriptAPI) DevOpen(index int) (Handle, error)   { return Handle(1), nil }
func (f *scriptAPI) DevClose(h Handle) error             { return nil }
func (f *scriptAPI) DevGetString(h Handle, id EIDString) (string, error) {
	return "script", nil
}
func (f *scriptAPI) CapStart(h Handle, mode EStart) error { return nil }
func (f *scriptAPI) CapStop(h Handle) error               { return nil }
func (f *scriptAPI) CapStatus(h Handle) (EStatus, error)  { return StatusBusy, nil }
func (f *scriptAPI) CapFireTrigger(h Handle) error        { return nil }

func (f *scriptAPI) CapTransferInfo(h Handle) (TransferInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return TransferInfo{NewestFrameIndex: f.count - 1, FrameCount: f.count}, nil
}

func (f *scriptAPI) BufAlloc(h Handle, n int) error { return nil }
func (f *scriptAPI) BufRelease(h Handle) error      { return nil }

func (f *scriptAPI) BufLockFrame(h Handle, index int) (Frame, error) {
	f.mu.Lock()
	f.locked = append(f.locked, index)
	f.mu.Unlock()
	return Frame{
		Index: index, Width: 4, Height: 2, RowBytes: 4,
		PixelType: PixelMono8,
		buf:       []byte{byte(index), 0, 0, 0, 0, 0, 0, byte(index)},
	}, nil
}

func (f *scriptAPI) WaitOpen(h Handle) (WaitHandle, error) { return WaitHandle(1), nil }

func (f *scriptAPI) WaitStart(w WaitHandle, mask EWaitEvent, timeout time.Duration) (EWaitEvent, error) {
	f.mu.Lock()
	if len(f.steps) > 0 {
		st := f.steps[0]
		f.steps = f.steps[1:]
		f.count = st.count
		f.mu.Unlock()
		if st.err != 0 {
			return 0, Check(st.err, "dcamwait_start")
		}
		return st.ev, nil
	}
	f.mu.Unlock()
	if timeout < 0 {
		<-f.abort
		return 0, Check(ErrAbort, "dcamwait_start")
	}
	select {
	case <-f.abort:
		return 0, Check(ErrAbort, "dcamwait_start")
	case <-time.After(timeout):
		return 0, Check(ErrTimeout, "dcamwait_start")
	}
}

func (f *scriptAPI) WaitAbort(w WaitHandle) error {
	f.once.Do(func() { close(f.abort) })
	return nil
}

func (f *scriptAPI) WaitClose(w WaitHandle) error { return nil }

func (f *scriptAPI) PropGetNextID(h Handle, id EProp, opt EPropOption) (EProp, error) {
	return 0, Check(ErrOutOfRange, "dcamprop_getnextid")
}
func (f *scriptAPI) PropGetName(h Handle, id EProp) (string, error) {
	return "", Check(ErrInvalidPropertyID, "dcamprop_getname")
}
func (f *scriptAPI) PropGetAttr(h Handle, id EProp) (PropAttr, error) {
	return PropAttr{}, Check(ErrInvalidPropertyID, "dcamprop_getattr")
}
func (f *scriptAPI) PropGetValue(h Handle, id EProp) (float64, error) {
	return 0, Check(ErrInvalidPropertyID, "dcamprop_getvalue")
}
func (f *scriptAPI) PropSetGetValue(h Handle, id EProp, value float64) (float64, error) {
	return 0, Check(ErrInvalidPropertyID, "dcamprop_setgetvalue")
}
func (f *scriptAPI) PropQueryValue(h Handle, id EProp, value float64, opt EPropOption) (float64, error) {
	return 0, Check(ErrInvalidPropertyID, "dcamprop_queryvalue")
}
func (f *scriptAPI) PropGetValueText(h Handle, id EProp, value float64) (string, error) {
	return "", Check(ErrInvalidPropertyID, "dcamprop_getvaluetext")
}

func scriptDevice(t *testing.T, f *scriptAPI) *Device {
	t.Helper()
	reg := NewRegistry(f)
	if err := reg.Open(); err != nil {
		t.Fatalf("registry open: %v", err)
	}
	t.Cleanup(reg.Close)
	dev, err := reg.Device(0)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if err := dev.Open(); err != nil {
		t.Fatalf("device open: %v", err)
	}
	return dev
}

// collect pulls frames until the stream ends, returning the slot order.
func collect(t *testing.T, s *Stream) []int {
	t.Helper()
	var slots []int
	for {
		f, err := s.Next()
		if err == io.EOF {
			return slots
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		slots = append(slots, f.Index)
	}
}

func TestStreamDeliversInOrder(t *testing.T) {
	f := newScriptAPI(
		scriptStep{ev: WaitCapFrameReady, count: 1},
		scriptStep{ev: WaitCapFrameReady, count: 2},
		scriptStep{ev: WaitCapFrameReady, count: 3},
	)
	dev := scriptDevice(t, f)
	s, err := dev.NewStream(3)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	slots := collect(t, s)
	want := []int{0, 1, 2}
	if len(slots) != len(want) {
		t.Fatalf("delivered %v, want %v", slots, want)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("delivered %v, want %v", slots, want)
		}
	}
	if s.Delivered() != 3 {
		t.Errorf("Delivered() = %d, want 3", s.Delivered())
	}
	if s.State() != StreamClosed {
		t.Errorf("State() = %v, want Closed", s.State())
	}
}

// A single wake can report that several frames completed; each pending
// slot must come out individually, in slot order.
func TestStreamDrainsBacklog(t *testing.T) {
	f := newScriptAPI(
		scriptStep{ev: WaitCapFrameReady, count: 1},
		scriptStep{ev: WaitCapFrameReady, count: 3},
		scriptStep{ev: WaitCapStopped, count: 3},
	)
	dev := scriptDevice(t, f)
	s, err := dev.NewContinuousStream(3)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	slots := collect(t, s)
	if len(slots) != 3 || slots[0] != 0 || slots[1] != 1 || slots[2] != 2 {
		t.Fatalf("delivered %v, want [0 1 2]", slots)
	}
}

// A wake without cursor movement emits nothing.
func TestStreamSpuriousWake(t *testing.T) {
	f := newScriptAPI(
		scriptStep{ev: WaitCapFrameReady, count: 0},
		scriptStep{ev: WaitCapFrameReady, count: 1},
		scriptStep{ev: WaitCapStopped, count: 1},
	)
	dev := scriptDevice(t, f)
	s, err := dev.NewContinuousStream(2)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	slots := collect(t, s)
	if len(slots) != 1 || slots[0] != 0 {
		t.Fatalf("delivered %v, want [0]", slots)
	}
}

// Capture stopping before the requested count is a clean early end, not
// an error.
func TestStreamEarlyStop(t *testing.T) {
	f := newScriptAPI(
		scriptStep{ev: WaitCapFrameReady, count: 1},
		scriptStep{ev: WaitCapFrameReady, count: 2},
		scriptStep{ev: WaitCapStopped, count: 2},
	)
	dev := scriptDevice(t, f)
	s, err := dev.NewStream(5)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	slots := collect(t, s)
	if len(slots) != 2 {
		t.Fatalf("delivered %v, want 2 frames", slots)
	}
	if s.Delivered() != 2 {
		t.Errorf("Delivered() = %d, want 2", s.Delivered())
	}
}

// Frames that completed before the stop landed still come out before
// the stream ends.
func TestStreamStopDrainsCompleted(t *testing.T) {
	f := newScriptAPI(
		scriptStep{ev: WaitCapFrameReady, count: 1},
		scriptStep{ev: WaitCapStopped, count: 3},
	)
	dev := scriptDevice(t, f)
	s, err := dev.NewContinuousStream(3)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	slots := collect(t, s)
	if len(slots) != 3 || slots[2] != 2 {
		t.Fatalf("delivered %v, want [0 1 2]", slots)
	}
}

// A wait timeout surfaces without tearing the stream down; the next
// call picks up where it left off.
func TestStreamTimeoutRecoverable(t *testing.T) {
	f := newScriptAPI(
		scriptStep{err: ErrTimeout},
		scriptStep{ev: WaitCapFrameReady, count: 1},
		scriptStep{ev: WaitCapStopped, count: 1},
	)
	dev := scriptDevice(t, f)
	s, err := dev.NewContinuousStream(2)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	if _, err := s.Next(); !IsTimeout(err) {
		t.Fatalf("first Next err = %v, want timeout", err)
	}
	if s.State() != StreamStreaming {
		t.Fatalf("State() after timeout = %v, want Streaming", s.State())
	}
	frame, err := s.Next()
	if err != nil {
		t.Fatalf("Next after timeout: %v", err)
	}
	if frame.Index != 0 {
		t.Errorf("frame.Index = %d, want 0", frame.Index)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("final Next err = %v, want EOF", err)
	}
}

// Abort from another goroutine ends a blocked stream cleanly.
func TestStreamConcurrentAbort(t *testing.T) {
	f := newScriptAPI()
	dev := scriptDevice(t, f)
	s, err := dev.NewContinuousStream(2)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Abort()
	}()
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("Next err = %v, want EOF", err)
	}
	if s.State() != StreamClosed {
		t.Errorf("State() = %v, want Closed", s.State())
	}
}

// The cursor advancing past the ring means unemitted slots were
// overwritten; that breaks the gap-free guarantee and is fatal.
func TestStreamLostFrames(t *testing.T) {
	f := newScriptAPI(
		scriptStep{ev: WaitCapFrameReady, count: 5},
	)
	dev := scriptDevice(t, f)
	s, err := dev.NewContinuousStream(2)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	_, err = s.Next()
	var de *DCAMError
	if !errors.As(err, &de) || de.Code != ErrLostFrame {
		t.Fatalf("Next err = %v, want LOSTFRAME", err)
	}
	// the failure is sticky
	if _, err2 := s.Next(); err2 != err {
		t.Errorf("second Next err = %v, want the same failure", err2)
	}
}

func TestStreamFatalError(t *testing.T) {
	f := newScriptAPI(
		scriptStep{err: ErrFailReadCamera},
	)
	dev := scriptDevice(t, f)
	s, err := dev.NewContinuousStream(2)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	_, err = s.Next()
	if err == nil || IsTimeout(err) || IsAborted(err) {
		t.Fatalf("Next err = %v, want a fatal failure", err)
	}
	if s.State() != StreamClosed {
		t.Errorf("State() = %v, want Closed", s.State())
	}
}

func TestStreamCloseIdempotent(t *testing.T) {
	f := newScriptAPI()
	dev := scriptDevice(t, f)
	s, err := dev.NewStream(2)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	s.Close()
	s.Close()
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("Next after Close err = %v, want EOF", err)
	}
}

func TestStreamRejectsBadSize(t *testing.T) {
	f := newScriptAPI()
	dev := scriptDevice(t, f)
	if _, err := dev.NewStream(0); err == nil {
		t.Error("NewStream(0) succeeded, want error")
	}
	if _, err := dev.NewContinuousStream(0); err == nil {
		t.Error("NewContinuousStream(0) succeeded, want error")
	}
}
