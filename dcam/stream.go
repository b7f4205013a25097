package dcam

import (
	"io"
	"time"
)

// StreamState tracks an acquisition stream's lifecycle.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamArmed
	StreamStreaming
	StreamDraining
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "Idle"
	case StreamArmed:
		return "Armed"
	case StreamStreaming:
		return "Streaming"
	case StreamDraining:
		return "Draining"
	case StreamClosed:
		return "Closed"
	}
	return "Unknown"
}

// Stream is a single-owner, in-order, at-most-once sequence of frame
// views over one acquisition session.
//
// Construction arms the stream: the buffer ring is allocated and the
// wait channel opened.  The caller then starts capture on the device
// and pulls frames with Next until it returns io.EOF (clean end) or an
// error (fatal to the session).  A stream is not restartable; construct
// a fresh one per session.
//
// Next must be called from a single goroutine.  Abort may be called
// from any goroutine to end the stream early; that surfaces as a clean
// io.EOF, never as an error.
type Stream struct {
	// Timeout bounds each individual wait.  Defaults to
	// TimeoutInfinite; a timeout surfaces from Next as a TIMEOUT error
	// and is recoverable: the stream stays live and Next may be called
	// again.
	Timeout time.Duration

	dev  *Device
	ring *BufferRing
	wait *WaitChannel

	// frames is the requested count; 0 means unbounded (continuous).
	frames int

	state     StreamState
	delivered int
	lastSlot  int
	backlog   int
	stopping  bool
	err       error
}

// NewStream arms a finite acquisition of nframes frames, with a buffer
// ring of the same size.  The device's capture is for the caller to
// start (after this returns) and stop.
func (d *Device) NewStream(nframes int) (*Stream, error) {
	if nframes < 1 {
		return nil, Check(ErrInvalidParam, "Device.NewStream")
	}
	return d.newStream(nframes, nframes)
}

// NewContinuousStream arms an unbounded acquisition over a ring of
// ringSize slots.  The stream ends when capture stops or Abort is
// called.
func (d *Device) NewContinuousStream(ringSize int) (*Stream, error) {
	if ringSize < 1 {
		return nil, Check(ErrInvalidParam, "Device.NewContinuousStream")
	}
	return d.newStream(0, ringSize)
}

func (d *Device) newStream(nframes, ringSize int) (*Stream, error) {
	ring, err := d.AllocRing(ringSize)
	if err != nil {
		return nil, err
	}
	wait, err := d.OpenWait()
	if err != nil {
		ring.Release()
		return nil, err
	}
	return &Stream{
		Timeout:  TimeoutInfinite,
		dev:      d,
		ring:     ring,
		wait:     wait,
		frames:   nframes,
		state:    StreamArmed,
		lastSlot: -1,
	}, nil
}

// Next blocks until the next frame completes and returns a borrowed
// view of its slot.  The view is valid until the following Next or
// Close call.  Next returns io.EOF when the sequence ends cleanly:
// the requested count was reached, capture stopped, or Abort was
// called.  Any other error is fatal to the stream.
func (s *Stream) Next() (Frame, error) {
	if s.err != nil {
		return Frame{}, s.err
	}
	switch s.state {
	case StreamIdle, StreamDraining, StreamClosed:
		return Frame{}, io.EOF
	case StreamArmed:
		s.state = StreamStreaming
	}
	for {
		if s.backlog > 0 {
			return s.emit()
		}
		if s.stopping || (s.frames > 0 && s.delivered >= s.frames) {
			s.drain()
			return Frame{}, io.EOF
		}
		ev, err := s.wait.Wait(DefaultWaitMask, s.Timeout)
		if err != nil {
			if IsAborted(err) {
				// stop requested from another goroutine; same clean
				// termination as a CAP_STOPPED event
				s.drain()
				return Frame{}, io.EOF
			}
			if IsTimeout(err) {
				return Frame{}, err
			}
			return Frame{}, s.fail(err)
		}
		if ev&WaitCapStopped != 0 {
			// pick up frames that completed before the stop landed,
			// then end the sequence
			s.stopping = true
			if ti, err := s.dev.TransferInfo(); err == nil {
				s.advance(ti)
			}
			continue
		}
		// Frame-ready, or an event bit this stream does not consume.
		// Poll the cursor either way: it is level-triggered, and a wake
		// without cursor movement (spurious wake) emits nothing.
		ti, err := s.dev.TransferInfo()
		if err != nil {
			return Frame{}, s.fail(err)
		}
		if err := s.advance(ti); err != nil {
			return Frame{}, err
		}
	}
}

// advance turns the level-triggered cursor snapshot into an
// edge-triggered backlog of frames to emit.  The global frame count
// never wraps; slot indices wrap modulo the ring size at emission.
func (s *Stream) advance(ti TransferInfo) error {
	if ti.FrameCount <= s.delivered+s.backlog {
		return nil
	}
	backlog := ti.FrameCount - s.delivered
	if s.frames > 0 && s.delivered+backlog > s.frames {
		backlog = s.frames - s.delivered
	}
	if backlog > s.ring.Size() {
		// the camera overwrote slots we never emitted; the gap-free
		// guarantee is broken and the session is unrecoverable
		s.fail(Check(ErrLostFrame, "Stream.Next"))
		return s.err
	}
	s.backlog = backlog
	return nil
}

func (s *Stream) emit() (Frame, error) {
	slot := s.delivered % s.ring.Size()
	f, err := s.ring.Lock(slot)
	if err != nil {
		return Frame{}, s.fail(err)
	}
	s.backlog--
	s.delivered++
	s.lastSlot = slot
	return f, nil
}

// fail records a fatal error and tears the stream down.  The same error
// is returned by every subsequent Next call.
func (s *Stream) fail(err error) error {
	s.err = err
	s.drain()
	return err
}

// drain releases the buffer ring and closes the wait channel, in that
// order.  Teardown errors are logged and swallowed; the device may
// already be stopped or unstable.
func (s *Stream) drain() {
	if s.state == StreamDraining || s.state == StreamClosed {
		return
	}
	s.state = StreamDraining
	s.ring.Release()
	s.wait.Close()
	s.state = StreamClosed
}

// Close ends the stream and releases its resources.  Idempotent; safe
// to defer at construction time.
func (s *Stream) Close() {
	s.drain()
}

// Abort requests early termination from another goroutine.  A blocked
// Next returns promptly with io.EOF.
func (s *Stream) Abort() {
	s.wait.Abort()
}

// Delivered returns the number of frames emitted so far.  Callers that
// need completeness compare this against the count they requested.
func (s *Stream) Delivered() int { return s.delivered }

// LastSlot returns the slot index of the most recently emitted frame,
// or -1 before the first.
func (s *Stream) LastSlot() int { return s.lastSlot }

// State returns the stream's lifecycle state.
func (s *Stream) State() StreamState { return s.state }
