package dcam

import (
	"errors"
	"fmt"
)

// EError is a DCAM-API status code.  Codes with the sign bit set are
// failures; SUCCESS (1) and NONE (0) are benign.
type EError uint32

// DCAM-API status codes, from dcamapi4.h.
const (
	ErrNone    EError = 0x00000000
	ErrSuccess EError = 0x00000001

	// status errors
	ErrBusy      EError = 0x80000101
	ErrNotReady  EError = 0x80000103
	ErrNotStable EError = 0x80000104
	ErrUnstable  EError = 0x80000105
	ErrNotBusy   EError = 0x80000107
	ErrExcluded  EError = 0x80000110

	// wait errors
	ErrAbort        EError = 0x80000102
	ErrTimeout      EError = 0x80000106
	ErrLostFrame    EError = 0x80000301
	ErrMissingFrame EError = 0x80000F06
	ErrInvalidImage EError = 0x80000321

	// initialization errors
	ErrNoResource    EError = 0x80000201
	ErrNoMemory      EError = 0x80000203
	ErrNoModule      EError = 0x80000204
	ErrNoDriver      EError = 0x80000205
	ErrNoCamera      EError = 0x80000206
	ErrNoGrabber     EError = 0x80000207
	ErrInvalidModule EError = 0x80000211
	ErrFailOpenBus   EError = 0x81001001
	ErrFailOpenCam   EError = 0x82001001

	// calling errors
	ErrInvalidCamera     EError = 0x80000806
	ErrInvalidHandle     EError = 0x80000807
	ErrInvalidParam      EError = 0x80000808
	ErrInvalidValue      EError = 0x80000821
	ErrOutOfRange        EError = 0x80000822
	ErrNotWritable       EError = 0x80000823
	ErrNotReadable       EError = 0x80000824
	ErrInvalidPropertyID EError = 0x80000825
	ErrAccessDeny        EError = 0x8000082C
	ErrNoValueText       EError = 0x8000082D
	ErrNoProperty        EError = 0x80000828
	ErrInvalidFrameIndex EError = 0x80000833
	ErrNotSupport        EError = 0x80000F03

	// camera or bus trouble
	ErrFailReadCamera  EError = 0x83001002
	ErrFailWriteCamera EError = 0x83001003

	// wait handle errors
	ErrInvalidWaitHandle EError = 0x84002001

	// internal errors
	ErrUnreach      EError = 0x80000F01
	ErrNotImplement EError = 0x80000F02
	ErrUnloaded     EError = 0x80000F04
	ErrNoConnection EError = 0x80000F07
)

// errNames maps codes to the names used in the DCAM documentation.
var errNames = map[EError]string{
	ErrNone:              "NONE",
	ErrSuccess:           "SUCCESS",
	ErrBusy:              "BUSY",
	ErrNotReady:          "NOTREADY",
	ErrNotStable:         "NOTSTABLE",
	ErrUnstable:          "UNSTABLE",
	ErrNotBusy:           "NOTBUSY",
	ErrExcluded:          "EXCLUDED",
	ErrAbort:             "ABORT",
	ErrTimeout:           "TIMEOUT",
	ErrLostFrame:         "LOSTFRAME",
	ErrMissingFrame:      "MISSINGFRAME_TROUBLE",
	ErrInvalidImage:      "INVALIDIMAGE",
	ErrNoResource:        "NORESOURCE",
	ErrNoMemory:          "NOMEMORY",
	ErrNoModule:          "NOMODULE",
	ErrNoDriver:          "NODRIVER",
	ErrNoCamera:          "NOCAMERA",
	ErrNoGrabber:         "NOGRABBER",
	ErrInvalidModule:     "INVALIDMODULE",
	ErrFailOpenBus:       "FAILOPENBUS",
	ErrFailOpenCam:       "FAILOPENCAMERA",
	ErrInvalidCamera:     "INVALIDCAMERA",
	ErrInvalidHandle:     "INVALIDHANDLE",
	ErrInvalidParam:      "INVALIDPARAM",
	ErrInvalidValue:      "INVALIDVALUE",
	ErrOutOfRange:        "OUTOFRANGE",
	ErrNotWritable:       "NOTWRITABLE",
	ErrNotReadable:       "NOTREADABLE",
	ErrInvalidPropertyID: "INVALIDPROPERTYID",
	ErrAccessDeny:        "ACCESSDENY",
	ErrNoValueText:       "NOVALUETEXT",
	ErrNoProperty:        "NOPROPERTY",
	ErrInvalidFrameIndex: "INVALIDFRAMEINDEX",
	ErrNotSupport:        "NOTSUPPORT",
	ErrFailReadCamera:    "FAILREADCAMERA",
	ErrFailWriteCamera:   "FAILWRITECAMERA",
	ErrInvalidWaitHandle: "INVALIDWAITHANDLE",
	ErrUnreach:           "UNREACH",
	ErrNotImplement:      "NOTIMPLEMENT",
	ErrUnloaded:          "UNLOADED",
	ErrNoConnection:      "NOCONNECTION",
}

func (e EError) String() string {
	if s, ok := errNames[e]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_ERROR_CODE_0x%08X", uint32(e))
}

// failed reports whether a code is a failure; DCAM returns codes as
// signed 32-bit values and anything negative is an error.
func (e EError) failed() bool {
	return e != ErrSuccess && int32(e) < 0
}

// DCAMError is a failed DCAM call, carrying the status code and the name
// of the native entry point that produced it.
type DCAMError struct {
	Code EError
	Op   string
}

func (e *DCAMError) Error() string {
	return fmt.Sprintf("%s: %s (0x%08X)", e.Op, e.Code, uint32(e.Code))
}

// Check converts a raw status code into a Go error, attaching the
// operation name.  Benign codes yield nil.
func Check(code EError, op string) error {
	if !code.failed() {
		return nil
	}
	return &DCAMError{Code: code, Op: op}
}

// ErrSizeMismatch is returned by CopyFrame when the destination buffer
// is too small for the frame.  The copy is all-or-nothing; nothing is
// written to the destination when this error is returned.
var ErrSizeMismatch = errors.New("destination buffer smaller than frame")

// codeIs reports whether err is a DCAMError with the given code.
func codeIs(err error, code EError) bool {
	var de *DCAMError
	return errors.As(err, &de) && de.Code == code
}

// IsTimeout reports whether err is a wait timeout.  Timeouts are
// recoverable; the caller may wait again.
func IsTimeout(err error) bool { return codeIs(err, ErrTimeout) }

// IsAborted reports whether err is a cooperative wait abort.  Aborts are
// a normal termination signal, not a fault.
func IsAborted(err error) bool { return codeIs(err, ErrAbort) }

// IsBusy reports whether err indicates the camera rejected a call
// because of its current capture status.
func IsBusy(err error) bool {
	return codeIs(err, ErrBusy) || codeIs(err, ErrNotReady) || codeIs(err, ErrExcluded)
}
