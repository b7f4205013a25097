package dcam

import "time"

// Handle is an opaque reference to an open camera (HDCAM).
type Handle uintptr

// WaitHandle is an opaque reference to an open wait channel (HDCAMWAIT).
type WaitHandle uintptr

// TransferInfo is a snapshot of capture transfer progress, from
// dcamcap_transferinfo.  NewestFrameIndex is the slot index of the most
// recently completed buffer and wraps modulo the ring size; FrameCount
// is the total number of completed frames and never wraps within a
// session.  The query is level-triggered: repeated calls return the
// current snapshot, nothing is consumed.
type TransferInfo struct {
	NewestFrameIndex int
	FrameCount       int
}

// PropAttr describes one property: range, permissions, unit and value
// type, from dcamprop_getattr.
type PropAttr struct {
	Attribute EPropAttr
	Unit      EUnit
	Min       float64
	Max       float64
	Step      float64
	Default   float64
}

// API enumerates every native DCAM entry point used by this package as
// a typed call.  Each implementation checks the raw status code and
// returns a DCAMError carrying the entry point name, so callers never
// see an unchecked native return.
//
// The cgo binding (build tag "dcam") talks to the vendor library; Sim
// is a pure-Go implementation used by tests and simulated runs.
type API interface {
	// Init initializes the library and returns the device count.
	Init() (int, error)
	// Uninit finalizes the library.
	Uninit() error

	DevOpen(index int) (Handle, error)
	DevClose(h Handle) error
	DevGetString(h Handle, id EIDString) (string, error)

	CapStart(h Handle, mode EStart) error
	CapStop(h Handle) error
	CapStatus(h Handle) (EStatus, error)
	CapTransferInfo(h Handle) (TransferInfo, error)
	CapFireTrigger(h Handle) error

	// BufAlloc reserves n frame slots sized for the current image
	// geometry.  Only legal while the device is not capturing.
	BufAlloc(h Handle, n int) error
	// BufRelease frees all slots.  Only legal when the device is not
	// busy.
	BufRelease(h Handle) error
	// BufLockFrame returns a borrowed view of one slot.  The view is
	// valid until BufRelease.
	BufLockFrame(h Handle, index int) (Frame, error)

	WaitOpen(h Handle) (WaitHandle, error)
	// WaitStart blocks until one of the bits in mask fires or timeout
	// elapses, returning the bits that actually fired.  WaitAbort from
	// any goroutine makes an in-flight WaitStart return ABORT promptly.
	WaitStart(w WaitHandle, mask EWaitEvent, timeout time.Duration) (EWaitEvent, error)
	WaitAbort(w WaitHandle) error
	WaitClose(w WaitHandle) error

	PropGetNextID(h Handle, id EProp, opt EPropOption) (EProp, error)
	PropGetName(h Handle, id EProp) (string, error)
	PropGetAttr(h Handle, id EProp) (PropAttr, error)
	PropGetValue(h Handle, id EProp) (float64, error)
	PropSetGetValue(h Handle, id EProp, value float64) (float64, error)
	PropQueryValue(h Handle, id EProp, value float64, opt EPropOption) (float64, error)
	PropGetValueText(h Handle, id EProp, value float64) (string, error)
}

// TimeoutInfinite makes WaitStart block until an event fires or the
// channel is aborted.
const TimeoutInfinite = time.Duration(-1)
