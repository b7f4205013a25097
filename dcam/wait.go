package dcam

import (
	"sync"
	"time"
)

// DefaultWaitMask covers the two events the acquisition core consumes.
const DefaultWaitMask = WaitCapFrameReady | WaitCapStopped

// WaitChannel is a blocking, cancelable event source bound to one
// device.  Wait blocks the calling goroutine; Abort may be called from
// any other goroutine and makes an in-flight Wait return promptly with
// an ABORT outcome instead of running out its timeout.
type WaitChannel struct {
	api API
	dev *Device

	mu     sync.Mutex
	handle WaitHandle
	open   bool
}

// OpenWait creates a wait channel bound to the device handle.
func (d *Device) OpenWait() (*WaitChannel, error) {
	h, err := d.h()
	if err != nil {
		return nil, err
	}
	wh, err := d.api.WaitOpen(h)
	if err != nil {
		return nil, err
	}
	return &WaitChannel{api: d.api, dev: d, handle: wh, open: true}, nil
}

func (w *WaitChannel) wh() (WaitHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return 0, Check(ErrInvalidWaitHandle, "WaitChannel")
	}
	return w.handle, nil
}

// Wait blocks until one of the bits in mask fires or timeout elapses,
// returning the bits that actually fired.  A timeout fails with a
// TIMEOUT code (recoverable, wait again); an abort fails with ABORT,
// which callers treat as a clean end-of-stream signal.
func (w *WaitChannel) Wait(mask EWaitEvent, timeout time.Duration) (EWaitEvent, error) {
	wh, err := w.wh()
	if err != nil {
		return 0, err
	}
	return w.api.WaitStart(wh, mask, timeout)
}

// Abort forces any in-flight Wait to return.  Safe to call from any
// goroutine, and on a closed channel.
func (w *WaitChannel) Abort() {
	wh, err := w.wh()
	if err != nil {
		return
	}
	// abort errors are unactionable from the stopping goroutine
	w.api.WaitAbort(wh)
}

// Close aborts any waiter and releases the channel.  Idempotent; Wait
// after Close fails with INVALIDWAITHANDLE.
func (w *WaitChannel) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return nil
	}
	w.open = false
	w.api.WaitAbort(w.handle)
	return w.api.WaitClose(w.handle)
}
