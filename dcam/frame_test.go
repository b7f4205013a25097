package dcam

import (
	"errors"
	"testing"
)

func gradientFrame(w, h, rowBytes int, pt EImagePixelType) Frame {
	buf := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := x + y
			switch pt {
			case PixelMono8:
				buf[y*rowBytes+x] = byte(v)
			case PixelMono16:
				buf[y*rowBytes+2*x] = byte(v)
				buf[y*rowBytes+2*x+1] = byte(v >> 8)
			}
		}
	}
	return Frame{Width: w, Height: h, RowBytes: rowBytes, PixelType: pt, buf: buf}
}

func TestCopyFrameStripsPadding(t *testing.T) {
	// 6-pixel rows padded to a 16-byte stride
	f := gradientFrame(6, 4, 16, PixelMono8)
	pix, err := CopyFrame(&f, nil)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if len(pix.Bytes) != 6*4 {
		t.Fatalf("packed size = %d, want %d", len(pix.Bytes), 6*4)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			if got := pix.Uint8()[y*6+x]; got != uint8(x+y) {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, x+y)
			}
		}
	}
}

func TestCopyFrameUint16(t *testing.T) {
	f := gradientFrame(4, 2, 8, PixelMono16)
	pix, err := CopyFrame(&f, nil)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if !pix.Typed() {
		t.Fatal("MONO16 should map onto a typed view")
	}
	samples := pix.Uint16()
	if len(samples) != 8 {
		t.Fatalf("sample count = %d, want 8", len(samples))
	}
	if samples[5] != 2 { // (x=1, y=1)
		t.Errorf("samples[5] = %d, want 2", samples[5])
	}
}

// An undersized destination fails before anything is written.
func TestCopyFrameAllOrNothing(t *testing.T) {
	f := gradientFrame(4, 4, 4, PixelMono8)
	dst := make([]byte, 8)
	for i := range dst {
		dst[i] = 0xEE
	}
	_, err := CopyFrame(&f, dst)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("err = %v, want ErrSizeMismatch", err)
	}
	for i, b := range dst {
		if b != 0xEE {
			t.Fatalf("dst[%d] modified to 0x%02X on failed copy", i, b)
		}
	}
}

func TestCopyFrameIntoProvidedBuffer(t *testing.T) {
	f := gradientFrame(4, 4, 4, PixelMono8)
	dst := make([]byte, 32) // oversized is fine
	pix, err := CopyFrame(&f, dst)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if len(pix.Bytes) != 16 {
		t.Fatalf("packed size = %d, want 16", len(pix.Bytes))
	}
	if &pix.Bytes[0] != &dst[0] {
		t.Error("copy did not use the provided buffer")
	}
}

func TestFrameBytesPackedFormats(t *testing.T) {
	if n, err := PixelMono12.FrameBytes(4, 2); err != nil || n != 12 {
		t.Errorf("MONO12 4x2 = %d, %v, want 12", n, err)
	}
	// 3x3 MONO12 pixels do not pack to whole bytes
	if _, err := PixelMono12.FrameBytes(3, 3); err == nil {
		t.Error("MONO12 3x3 accepted, want INVALIDVALUE")
	}
	if n, err := PixelMono16.FrameBytes(10, 10); err != nil || n != 200 {
		t.Errorf("MONO16 10x10 = %d, %v, want 200", n, err)
	}
}
