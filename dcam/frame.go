package dcam

import (
	"fmt"
	"unsafe"
)

// Frame is a borrowed view of one slot in the frame buffer ring,
// from dcambuf_lockframe.  The pixel data is owned by the ring and the
// view is only valid until the ring is released; copy it out with
// CopyFrame before then if it must outlive the ring.
type Frame struct {
	// Index is the slot index in the ring, 0..N-1.
	Index int

	// RowBytes is the stride of one padded row in the slot.
	RowBytes int

	Width     int
	Height    int
	PixelType EImagePixelType

	// Timestamp and Framestamp are the counters attached by the
	// camera, when it produces them.
	Timestamp  int64
	Framestamp int32

	buf []byte
}

// Bytes returns the raw strided slot data.  The slice aliases ring
// memory; see the ownership note on Frame.
func (f *Frame) Bytes() []byte { return f.buf }

// PixelBuffer is an owned copy of one frame, packed (no row padding).
type PixelBuffer struct {
	Bytes     []byte
	Width     int
	Height    int
	PixelType EImagePixelType
}

// Uint8 returns the pixel data as 8-bit samples.  Only meaningful for
// MONO8.
func (p PixelBuffer) Uint8() []uint8 { return p.Bytes }

// Uint16 reinterprets the pixel data as 16-bit samples without
// copying.  Only meaningful for MONO16.
func (p PixelBuffer) Uint16() []uint16 {
	if len(p.Bytes) < 2 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&p.Bytes[0])), len(p.Bytes)/2)
}

// Typed reports whether the pixel layout maps onto a fixed Go element
// type.  Unrecognized formats stay raw bytes; that is a deliberate
// fallback, not a failure.
func (p PixelBuffer) Typed() bool {
	return p.PixelType == PixelMono8 || p.PixelType == PixelMono16
}

// CopyFrame packs a locked frame into dst, stripping row padding.  When
// dst is nil a buffer of exactly the required size is allocated.  The
// copy is all-or-nothing: if dst is smaller than the frame requires,
// CopyFrame fails with ErrSizeMismatch before writing anything.
func CopyFrame(f *Frame, dst []byte) (PixelBuffer, error) {
	need, err := f.PixelType.FrameBytes(f.Width, f.Height)
	if err != nil {
		return PixelBuffer{}, err
	}
	if need == 0 {
		return PixelBuffer{Width: f.Width, Height: f.Height, PixelType: f.PixelType}, nil
	}
	if dst == nil {
		dst = make([]byte, need)
	} else if len(dst) < need {
		return PixelBuffer{}, fmt.Errorf("copy frame %d: %w: need %d bytes, have %d",
			f.Index, ErrSizeMismatch, need, len(dst))
	}
	rowBytes := need / f.Height
	src := f.buf
	for row := 0; row < f.Height; row++ {
		copy(dst[row*rowBytes:(row+1)*rowBytes], src[row*f.RowBytes:])
	}
	return PixelBuffer{
		Bytes:     dst[:need],
		Width:     f.Width,
		Height:    f.Height,
		PixelType: f.PixelType,
	}, nil
}
