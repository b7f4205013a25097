package dcam

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// BufferRing owns the N native frame slots the camera captures into.
// Allocate while the device is idle, lock slots while streaming,
// release after capture has stopped.  A Frame obtained from Lock is a
// borrowed view that dies with the ring.
type BufferRing struct {
	api API
	dev *Device
	n   int

	mu        sync.Mutex
	allocated bool
}

// AllocRing reserves n frame slots sized for the device's current image
// geometry.  Must not be called mid-acquisition.
func (d *Device) AllocRing(n int) (*BufferRing, error) {
	h, err := d.h()
	if err != nil {
		return nil, err
	}
	if err := d.api.BufAlloc(h, n); err != nil {
		return nil, err
	}
	return &BufferRing{api: d.api, dev: d, n: n, allocated: true}, nil
}

// Size returns the number of slots in the ring.
func (r *BufferRing) Size() int { return r.n }

// Lock returns a borrowed view of one slot.
func (r *BufferRing) Lock(index int) (Frame, error) {
	r.mu.Lock()
	allocated := r.allocated
	r.mu.Unlock()
	if !allocated {
		return Frame{}, Check(ErrInvalidFrameIndex, "BufferRing.Lock")
	}
	h, err := r.dev.h()
	if err != nil {
		return Frame{}, err
	}
	return r.api.BufLockFrame(h, index)
}

// Release frees all slots.  It is idempotent and never fails: callers
// invoke it on teardown paths where the device may already be stopped
// or unstable, so errors are logged and swallowed.
func (r *BufferRing) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.allocated {
		return
	}
	r.allocated = false
	h, err := r.dev.h()
	if err != nil {
		log.WithError(err).Warn("releasing buffer ring on closed device")
		return
	}
	if err := r.api.BufRelease(h); err != nil {
		log.WithError(err).Warn("could not release buffer ring")
	}
}
