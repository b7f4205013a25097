/*Package dcam exposes control of Hamamatsu cameras in Go via DCAM-API.

The package is organized around an explicit API interface enumerating
every native entry point; a Registry owning library initialization and
one Device per camera index; and the acquisition primitives built on
top of them: BufferRing, WaitChannel and Stream.
*/
package dcam

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Registry owns library initialization and hands out at most one
// Device per camera index.  Open and Close are reference counted so
// nested users (CLI commands, HTTP handlers, tests) can pair them
// freely; the library is finalized when the last reference drops.
type Registry struct {
	api API

	mu      sync.Mutex
	refs    int
	count   int
	devices map[int]*Device
}

// NewRegistry creates a registry over the given API binding.
func NewRegistry(api API) *Registry {
	return &Registry{api: api, devices: map[int]*Device{}}
}

// Open initializes the library on the first call and bumps the
// reference count on subsequent ones.
func (r *Registry) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs > 0 {
		r.refs++
		return nil
	}
	n, err := r.api.Init()
	if err != nil {
		return err
	}
	r.refs = 1
	r.count = n
	return nil
}

// Close drops one reference; the last close finalizes the library and
// closes any devices still open.  Errors on this cleanup path are
// logged and swallowed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == 0 {
		return
	}
	r.refs--
	if r.refs > 0 {
		return
	}
	for _, d := range r.devices {
		if err := d.Close(); err != nil {
			log.WithError(err).Warn("closing device during registry teardown")
		}
	}
	r.devices = map[int]*Device{}
	if err := r.api.Uninit(); err != nil {
		log.WithError(err).Warn("finalizing DCAM library")
	}
}

// NumDevices returns the device count reported at initialization.
func (r *Registry) NumDevices() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Device returns the device at the given index, creating it on first
// use.  The same *Device is returned for the same index for the life of
// the registry.
func (r *Registry) Device(index int) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == 0 {
		return nil, Check(ErrNoResource, "Registry.Device")
	}
	if index < 0 || index >= r.count {
		return nil, fmt.Errorf("device %d not present, %d device(s) found", index, r.count)
	}
	d, ok := r.devices[index]
	if !ok {
		d = &Device{api: r.api, index: index}
		r.devices[index] = d
	}
	return d, nil
}

// Device is an open connection to one camera.  All other entities
// (capabilities, rings, wait channels, streams) borrow its handle and
// must not outlive it.
type Device struct {
	api   API
	index int

	mu     sync.Mutex
	open   bool
	handle Handle

	caps    map[EProp]*Capability
	capName map[string]*Capability
	info    map[EIDString]string
}

// Index returns the camera index this device was opened at.
func (d *Device) Index() int { return d.index }

// IsOpen reports whether the device handle is valid.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Open connects to the camera and builds its capability table.  Open on
// an already-open device is a no-op.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil
	}
	h, err := d.api.DevOpen(d.index)
	if err != nil {
		return err
	}
	d.handle = h
	d.open = true
	d.buildCapabilities()
	return nil
}

// Close releases the device handle.  Idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	err := d.api.DevClose(d.handle)
	d.open = false
	d.handle = 0
	d.caps = nil
	d.capName = nil
	d.info = nil
	return err
}

func (d *Device) h() (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, Check(ErrInvalidHandle, "Device")
	}
	return d.handle, nil
}

// Info returns the device identification strings (vendor, model,
// serial, bus, versions).  The result is cached for the life of the
// open session; identifiers the camera does not implement are omitted.
func (d *Device) Info() (map[EIDString]string, error) {
	h, err := d.h()
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	cached := d.info
	d.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	info := map[EIDString]string{}
	for _, id := range infoStrings {
		s, err := d.api.DevGetString(h, id)
		if err != nil {
			continue
		}
		info[id] = s
	}
	d.mu.Lock()
	d.info = info
	d.mu.Unlock()
	return info, nil
}

// Status returns the current capture status.
func (d *Device) Status() (EStatus, error) {
	h, err := d.h()
	if err != nil {
		return StatusError, err
	}
	return d.api.CapStatus(h)
}

// Start begins capture.  Continuous capture wraps around the buffer
// ring forever; non-continuous capture stops by itself once every slot
// has been filled.  The buffer ring must be allocated first.
func (d *Device) Start(continuous bool) error {
	h, err := d.h()
	if err != nil {
		return err
	}
	mode := StartSnap
	if continuous {
		mode = StartSequence
	}
	return d.api.CapStart(h, mode)
}

// Stop halts capture.  Safe to call when not capturing.
func (d *Device) Stop() error {
	h, err := d.h()
	if err != nil {
		return err
	}
	return d.api.CapStop(h)
}

// FireTrigger issues one software trigger.
func (d *Device) FireTrigger() error {
	h, err := d.h()
	if err != nil {
		return err
	}
	return d.api.CapFireTrigger(h)
}

// TransferInfo queries the transfer cursor.
func (d *Device) TransferInfo() (TransferInfo, error) {
	h, err := d.h()
	if err != nil {
		return TransferInfo{}, err
	}
	return d.api.CapTransferInfo(h)
}

// GetExposureTime returns the programmed exposure time as a duration.
func (d *Device) GetExposureTime() (time.Duration, error) {
	v, err := d.Get(PropExposureTime)
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}

// SetExposureTime programs the exposure time.  The camera may round the
// value; the rounded duration is returned.
func (d *Device) SetExposureTime(t time.Duration) (time.Duration, error) {
	v, err := d.Set(PropExposureTime, t.Seconds())
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}

// PixelSize returns the physical size (w, h) of one detector pixel in
// meters.
func (d *Device) PixelSize() (float64, float64, error) {
	w, err := d.CapByID(PropDetectorPixelW)
	if err != nil {
		return 0, 0, err
	}
	h, err := d.CapByID(PropDetectorPixelH)
	if err != nil {
		return 0, 0, err
	}
	wv, err := w.Read()
	if err != nil {
		return 0, 0, err
	}
	hv, err := h.Read()
	if err != nil {
		return 0, 0, err
	}
	return w.Unit.ToSI(wv), h.Unit.ToSI(hv), nil
}

// ImageGeometry reads the current frame geometry: width, height and
// pixel type.
func (d *Device) ImageGeometry() (width, height int, pix EImagePixelType, err error) {
	w, err := d.Get(PropImageWidth)
	if err != nil {
		return 0, 0, PixelNone, err
	}
	h, err := d.Get(PropImageHeight)
	if err != nil {
		return 0, 0, PixelNone, err
	}
	p, err := d.Get(PropImagePixelType)
	if err != nil {
		return 0, 0, PixelNone, err
	}
	return int(w), int(h), EImagePixelType(int32(p)), nil
}
