//go:build dcam

package dcam

/*
#cgo CFLAGS: -I/usr/local/include/dcamsdk4
#cgo LDFLAGS: -ldcamapi
#include <stdlib.h>
#include <string.h>
#include "dcamapi4.h"
*/
import "C"
import (
	"time"
	"unsafe"
)

// nativeAPI binds the API surface to the vendor library.  Every call
// funnels its raw status through Check so callers get a DCAMError with
// the entry point name attached.
type nativeAPI struct{}

// Native returns the vendor-library binding.
func Native() (API, error) {
	return nativeAPI{}, nil
}

func (nativeAPI) Init() (int, error) {
	var par C.DCAMAPI_INIT
	par.size = C.int32(unsafe.Sizeof(par))
	err := Check(EError(C.dcamapi_init(&par)), "dcamapi_init")
	if err != nil {
		return 0, err
	}
	return int(par.iDeviceCount), nil
}

func (nativeAPI) Uninit() error {
	return Check(EError(C.dcamapi_uninit()), "dcamapi_uninit")
}

func (nativeAPI) DevOpen(index int) (Handle, error) {
	var par C.DCAMDEV_OPEN
	par.size = C.int32(unsafe.Sizeof(par))
	par.index = C.int32(index)
	err := Check(EError(C.dcamdev_open(&par)), "dcamdev_open")
	if err != nil {
		return 0, err
	}
	return Handle(uintptr(unsafe.Pointer(par.hdcam))), nil
}

func (nativeAPI) DevClose(h Handle) error {
	return Check(EError(C.dcamdev_close(C.HDCAM(unsafe.Pointer(h)))), "dcamdev_close")
}

func (nativeAPI) DevGetString(h Handle, id EIDString) (string, error) {
	var buf [256]C.char
	var par C.DCAMDEV_STRING
	par.size = C.int32(unsafe.Sizeof(par))
	par.iString = C.int32(id)
	par.text = &buf[0]
	par.textbytes = C.int32(len(buf))
	err := Check(EError(C.dcamdev_getstring(C.HDCAM(unsafe.Pointer(h)), &par)), "dcamdev_getstring")
	if err != nil {
		return "", err
	}
	return C.GoString(&buf[0]), nil
}

func (nativeAPI) CapStart(h Handle, mode EStart) error {
	return Check(EError(C.dcamcap_start(C.HDCAM(unsafe.Pointer(h)), C.int32(mode))), "dcamcap_start")
}

func (nativeAPI) CapStop(h Handle) error {
	return Check(EError(C.dcamcap_stop(C.HDCAM(unsafe.Pointer(h)))), "dcamcap_stop")
}

func (nativeAPI) CapStatus(h Handle) (EStatus, error) {
	var status C.int32
	err := Check(EError(C.dcamcap_status(C.HDCAM(unsafe.Pointer(h)), &status)), "dcamcap_status")
	if err != nil {
		return StatusError, err
	}
	return EStatus(status), nil
}

func (nativeAPI) CapTransferInfo(h Handle) (TransferInfo, error) {
	var par C.DCAMCAP_TRANSFERINFO
	par.size = C.int32(unsafe.Sizeof(par))
	err := Check(EError(C.dcamcap_transferinfo(C.HDCAM(unsafe.Pointer(h)), &par)), "dcamcap_transferinfo")
	if err != nil {
		return TransferInfo{}, err
	}
	return TransferInfo{
		NewestFrameIndex: int(par.nNewestFrameIndex),
		FrameCount:       int(par.nFrameCount),
	}, nil
}

func (nativeAPI) CapFireTrigger(h Handle) error {
	return Check(EError(C.dcamcap_firetrigger(C.HDCAM(unsafe.Pointer(h)), 0)), "dcamcap_firetrigger")
}

func (nativeAPI) BufAlloc(h Handle, n int) error {
	return Check(EError(C.dcambuf_alloc(C.HDCAM(unsafe.Pointer(h)), C.int32(n))), "dcambuf_alloc")
}

func (nativeAPI) BufRelease(h Handle) error {
	return Check(EError(C.dcambuf_release(C.HDCAM(unsafe.Pointer(h)), 0)), "dcambuf_release")
}

func (nativeAPI) BufLockFrame(h Handle, index int) (Frame, error) {
	var par C.DCAMBUF_FRAME
	par.size = C.int32(unsafe.Sizeof(par))
	par.iFrame = C.int32(index)
	err := Check(EError(C.dcambuf_lockframe(C.HDCAM(unsafe.Pointer(h)), &par)), "dcambuf_lockframe")
	if err != nil {
		return Frame{}, err
	}
	n := int(par.rowbytes) * int(par.height)
	return Frame{
		Index:      index,
		RowBytes:   int(par.rowbytes),
		Width:      int(par.width),
		Height:     int(par.height),
		PixelType:  EImagePixelType(par._type),
		Timestamp:  int64(par.timestamp.sec)*1e6 + int64(par.timestamp.microsec),
		Framestamp: int32(par.framestamp),
		buf:        unsafe.Slice((*byte)(par.buf), n),
	}, nil
}

func (nativeAPI) WaitOpen(h Handle) (WaitHandle, error) {
	var par C.DCAMWAIT_OPEN
	par.size = C.int32(unsafe.Sizeof(par))
	par.hdcam = C.HDCAM(unsafe.Pointer(h))
	err := Check(EError(C.dcamwait_open(&par)), "dcamwait_open")
	if err != nil {
		return 0, err
	}
	return WaitHandle(uintptr(unsafe.Pointer(par.hwait))), nil
}

func (nativeAPI) WaitStart(w WaitHandle, mask EWaitEvent, timeout time.Duration) (EWaitEvent, error) {
	var par C.DCAMWAIT_START
	par.size = C.int32(unsafe.Sizeof(par))
	par.eventmask = C.int32(mask)
	if timeout < 0 {
		par.timeout = C.int32(-0x80000000) // DCAMWAIT_TIMEOUT_INFINITE
	} else {
		par.timeout = C.int32(timeout / time.Millisecond)
	}
	err := Check(EError(C.dcamwait_start(C.HDCAMWAIT(unsafe.Pointer(w)), &par)), "dcamwait_start")
	if err != nil {
		return 0, err
	}
	return EWaitEvent(par.eventhappened), nil
}

func (nativeAPI) WaitAbort(w WaitHandle) error {
	return Check(EError(C.dcamwait_abort(C.HDCAMWAIT(unsafe.Pointer(w)))), "dcamwait_abort")
}

func (nativeAPI) WaitClose(w WaitHandle) error {
	return Check(EError(C.dcamwait_close(C.HDCAMWAIT(unsafe.Pointer(w)))), "dcamwait_close")
}

func (nativeAPI) PropGetNextID(h Handle, id EProp, opt EPropOption) (EProp, error) {
	prop := C.int32(id)
	err := Check(EError(C.dcamprop_getnextid(C.HDCAM(unsafe.Pointer(h)), &prop, C.int32(opt))), "dcamprop_getnextid")
	if err != nil {
		return 0, err
	}
	return EProp(prop), nil
}

func (nativeAPI) PropGetName(h Handle, id EProp) (string, error) {
	var buf [64]C.char
	err := Check(EError(C.dcamprop_getname(C.HDCAM(unsafe.Pointer(h)), C.int32(id), &buf[0], C.int32(len(buf)))), "dcamprop_getname")
	if err != nil {
		return "", err
	}
	return C.GoString(&buf[0]), nil
}

func (nativeAPI) PropGetAttr(h Handle, id EProp) (PropAttr, error) {
	var par C.DCAMPROP_ATTR
	par.cbSize = C.int32(unsafe.Sizeof(par))
	par.iProp = C.int32(id)
	err := Check(EError(C.dcamprop_getattr(C.HDCAM(unsafe.Pointer(h)), &par)), "dcamprop_getattr")
	if err != nil {
		return PropAttr{}, err
	}
	return PropAttr{
		Attribute: EPropAttr(par.attribute),
		Unit:      EUnit(par.iUnit),
		Min:       float64(par.valuemin),
		Max:       float64(par.valuemax),
		Step:      float64(par.valuestep),
		Default:   float64(par.valuedefault),
	}, nil
}

func (nativeAPI) PropGetValue(h Handle, id EProp) (float64, error) {
	var v C.double
	err := Check(EError(C.dcamprop_getvalue(C.HDCAM(unsafe.Pointer(h)), C.int32(id), &v)), "dcamprop_getvalue")
	if err != nil {
		return 0, err
	}
	return float64(v), nil
}

func (nativeAPI) PropSetGetValue(h Handle, id EProp, value float64) (float64, error) {
	v := C.double(value)
	err := Check(EError(C.dcamprop_setgetvalue(C.HDCAM(unsafe.Pointer(h)), C.int32(id), &v, 0)), "dcamprop_setgetvalue")
	if err != nil {
		return 0, err
	}
	return float64(v), nil
}

func (nativeAPI) PropQueryValue(h Handle, id EProp, value float64, opt EPropOption) (float64, error) {
	v := C.double(value)
	err := Check(EError(C.dcamprop_queryvalue(C.HDCAM(unsafe.Pointer(h)), C.int32(id), &v, C.int32(opt))), "dcamprop_queryvalue")
	if err != nil {
		return 0, err
	}
	return float64(v), nil
}

func (nativeAPI) PropGetValueText(h Handle, id EProp, value float64) (string, error) {
	var buf [64]C.char
	var par C.DCAMPROP_VALUETEXT
	par.cbSize = C.int32(unsafe.Sizeof(par))
	par.iProp = C.int32(id)
	par.value = C.double(value)
	par.text = &buf[0]
	par.textbytes = C.int32(len(buf))
	err := Check(EError(C.dcamprop_getvaluetext(C.HDCAM(unsafe.Pointer(h)), &par)), "dcamprop_getvaluetext")
	if err != nil {
		return "", err
	}
	return C.GoString(&buf[0]), nil
}
