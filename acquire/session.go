package acquire

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tiagocoutinho/hamamatsu/dcam"
)

// State is the acquisition session state.
type State int

const (
	// StateReady means the session is not acquiring: either finished
	// cleanly or not yet started.
	StateReady State = iota
	// StateExposure means the session is waiting for the next frame.
	StateExposure
	// StateReadout means a frame is being handed to the sink.
	StateReadout
	// StateFault means the session died on a device error.
	StateFault
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateExposure:
		return "Exposure"
	case StateReadout:
		return "Readout"
	case StateFault:
		return "Fault"
	}
	return "Unknown"
}

// FrameSink receives each acquired frame with its global sequence
// number, starting at 0.  The frame view is only valid for the duration
// of the call; sinks that keep pixels copy them out with
// dcam.CopyFrame.  A sink error ends the session.
type FrameSink interface {
	FrameReady(seq int, frame *dcam.Frame) error
}

// FrameSinkFunc adapts a function to the FrameSink interface.
type FrameSinkFunc func(seq int, frame *dcam.Frame) error

func (f FrameSinkFunc) FrameReady(seq int, frame *dcam.Frame) error {
	return f(seq, frame)
}

// Config parameterizes a session.
type Config struct {
	// NFrames is the frame count for a finite acquisition; 0 means
	// acquire continuously until Stop.
	NFrames int

	// RingSize is the buffer ring size for continuous acquisition.
	// Ignored for finite acquisitions, which size the ring to NFrames.
	// Defaults to 16.
	RingSize int

	// FrameTimeout bounds the wait for each frame.  Zero means the
	// current exposure time plus one second of grace; exceeding it is a
	// fault, not a retry.
	FrameTimeout time.Duration
}

// Session is one background acquisition run.  Start launches it; Stop
// aborts it and joins.  A session is single-use.
type Session struct {
	ID uuid.UUID

	dev    *dcam.Device
	sink   FrameSink
	stream *dcam.Stream
	g      errgroup.Group

	mu     sync.Mutex
	state  State
	frames int
	err    error
}

// Start arms and launches an acquisition session.  The device must be
// open and idle.
func Start(dev *dcam.Device, sink FrameSink, cfg Config) (*Session, error) {
	if cfg.FrameTimeout == 0 {
		exp, err := dev.GetExposureTime()
		if err != nil {
			return nil, err
		}
		cfg.FrameTimeout = exp + time.Second
	}
	continuous := cfg.NFrames == 0
	var stream *dcam.Stream
	var err error
	if continuous {
		ring := cfg.RingSize
		if ring == 0 {
			ring = 16
		}
		stream, err = dev.NewContinuousStream(ring)
	} else {
		stream, err = dev.NewStream(cfg.NFrames)
	}
	if err != nil {
		return nil, err
	}
	stream.Timeout = cfg.FrameTimeout
	if err := dev.Start(continuous); err != nil {
		stream.Close()
		return nil, err
	}
	s := &Session{
		ID:     uuid.New(),
		dev:    dev,
		sink:   sink,
		stream: stream,
		state:  StateExposure,
	}
	sessionsStarted.Inc()
	log.WithFields(log.Fields{
		"session": s.ID,
		"device":  dev.Index(),
		"frames":  cfg.NFrames,
	}).Info("acquisition started")
	s.g.Go(s.run)
	return s, nil
}

func (s *Session) run() error {
	defer func() {
		if err := s.dev.Stop(); err != nil {
			log.WithError(err).WithField("session", s.ID).Warn("could not stop capture")
		}
		s.stream.Close()
	}()
	for {
		s.setState(StateExposure)
		frame, err := s.stream.Next()
		if err == io.EOF {
			s.setState(StateReady)
			log.WithFields(log.Fields{
				"session": s.ID,
				"frames":  s.AcquiredFrames(),
			}).Info("acquisition finished")
			return nil
		}
		if err != nil {
			s.fault(err)
			return err
		}
		s.setState(StateReadout)
		seq := s.nextSeq()
		if err := s.sink.FrameReady(seq, &frame); err != nil {
			s.fault(err)
			return err
		}
		framesDelivered.Inc()
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fault(err error) {
	s.mu.Lock()
	s.state = StateFault
	s.err = err
	s.mu.Unlock()
	sessionsFaulted.Inc()
	log.WithError(err).WithField("session", s.ID).Error("acquisition fault")
}

func (s *Session) nextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.frames
	s.frames++
	return seq
}

// Stop ends the session early and joins the acquisition goroutine.  It
// returns whatever the run returned: nil for a clean or aborted run,
// the fault otherwise.  Safe to call after the session already ended.
func (s *Session) Stop() error {
	if s.State() == StateExposure || s.State() == StateReadout {
		sessionsAborted.Inc()
	}
	s.stream.Abort()
	return s.g.Wait()
}

// Wait joins the session without stopping it, returning once the run
// ends on its own.
func (s *Session) Wait() error {
	return s.g.Wait()
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AcquiredFrames returns the number of frames handed to the sink.
func (s *Session) AcquiredFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Err returns the fault that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
