package dcam

import (
	"io"
	"testing"
	"time"
)

func simDeviceT(t *testing.T) *Device {
	t.Helper()
	reg := NewRegistry(NewSim(1))
	if err := reg.Open(); err != nil {
		t.Fatalf("registry open: %v", err)
	}
	t.Cleanup(reg.Close)
	dev, err := reg.Device(0)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if err := dev.Open(); err != nil {
		t.Fatalf("device open: %v", err)
	}
	return dev
}

func TestSimSnapAcquisition(t *testing.T) {
	dev := simDeviceT(t)
	if _, err := dev.SetExposureTime(time.Millisecond); err != nil {
		t.Fatalf("set exposure: %v", err)
	}
	const n = 5
	s, err := dev.NewStream(n)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()
	if err := dev.Start(false); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer dev.Stop()

	for i := 0; i < n; i++ {
		f, err := s.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Framestamp != int32(i) {
			t.Fatalf("frame %d has framestamp %d", i, f.Framestamp)
		}
		if f.Index != i {
			t.Errorf("frame %d in slot %d", i, f.Index)
		}
		pix, err := CopyFrame(&f, nil)
		if err != nil {
			t.Fatalf("copy frame %d: %v", i, err)
		}
		// first sample of frame i carries the gradient offset i
		if got := pix.Uint16()[0]; got != uint16(i) {
			t.Errorf("frame %d first sample = %d, want %d", i, got, i)
		}
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("after last frame err = %v, want EOF", err)
	}
	if s.Delivered() != n {
		t.Errorf("Delivered() = %d, want %d", s.Delivered(), n)
	}
}

func TestSimContinuousAbort(t *testing.T) {
	dev := simDeviceT(t)
	// slow enough that the consumer never falls a full ring behind
	if _, err := dev.SetExposureTime(5 * time.Millisecond); err != nil {
		t.Fatalf("set exposure: %v", err)
	}
	s, err := dev.NewContinuousStream(4)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()
	if err := dev.Start(true); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer dev.Stop()

	last := int32(-1)
	for s.Delivered() < 10 {
		f, err := s.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if f.Framestamp != last+1 {
			t.Fatalf("framestamp %d after %d", f.Framestamp, last)
		}
		last = f.Framestamp
	}
	s.Abort()
	for {
		_, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next after abort: %v", err)
		}
	}
}

func TestSimCapabilityTable(t *testing.T) {
	dev := simDeviceT(t)
	caps := dev.Capabilities()
	if len(caps) == 0 {
		t.Fatal("no capabilities discovered")
	}
	for i := 1; i < len(caps); i++ {
		if caps[i].ID <= caps[i-1].ID {
			t.Fatalf("capabilities out of order at %d", i)
		}
	}

	exp, err := dev.CapByName("EXPOSURE TIME")
	if err != nil {
		t.Fatalf("by raw name: %v", err)
	}
	if exp2, err := dev.CapByName("exposure_time"); err != nil || exp2 != exp {
		t.Fatalf("normalized lookup gave %v, %v", exp2, err)
	}
	if exp.DTypeName() != "real" || !exp.Writable() {
		t.Errorf("exposure: type %s writable %v", exp.DTypeName(), exp.Writable())
	}
	if exp.Unit != UnitSecond {
		t.Errorf("exposure unit = %v", exp.Unit)
	}

	trig, err := dev.CapByName("trigger_source")
	if err != nil {
		t.Fatalf("trigger source: %v", err)
	}
	if trig.Enum["SOFTWARE"] != float64(TriggerSoftware) {
		t.Errorf("enum = %v", trig.Enum)
	}
	if got := trig.Format(float64(TriggerInternal)); got != "INTERNAL" {
		t.Errorf("Format = %q", got)
	}
	if _, err := trig.WriteText("SOFTWARE"); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if v, err := trig.Read(); err != nil || v != float64(TriggerSoftware) {
		t.Fatalf("read back = %v, %v", v, err)
	}
	if _, err := trig.WriteText("BOGUS"); err == nil {
		t.Error("bogus label accepted")
	}
}

func TestSimSoftwareTrigger(t *testing.T) {
	dev := simDeviceT(t)
	trig, err := dev.CapByName("trigger_source")
	if err != nil {
		t.Fatalf("trigger source: %v", err)
	}
	if _, err := trig.WriteText("SOFTWARE"); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if _, err := dev.SetExposureTime(time.Millisecond); err != nil {
		t.Fatalf("set exposure: %v", err)
	}
	s, err := dev.NewStream(2)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()
	if err := dev.Start(false); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer dev.Stop()

	// no trigger, no frame
	s.Timeout = 50 * time.Millisecond
	if _, err := s.Next(); !IsTimeout(err) {
		t.Fatalf("Next without trigger err = %v, want timeout", err)
	}

	s.Timeout = 5 * time.Second
	for i := 0; i < 2; i++ {
		if err := dev.FireTrigger(); err != nil {
			t.Fatalf("fire trigger: %v", err)
		}
		f, err := s.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Framestamp != int32(i) {
			t.Errorf("frame %d framestamp = %d", i, f.Framestamp)
		}
	}
	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("after snap err = %v, want EOF", err)
	}
}

func TestSimGeometryFollowsSubarray(t *testing.T) {
	dev := simDeviceT(t)
	w, h, pt, err := dev.ImageGeometry()
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	if w != 256 || h != 192 || pt != PixelMono16 {
		t.Fatalf("geometry = %dx%d %v", w, h, pt)
	}
	for id, v := range map[EProp]float64{
		PropSubarrayHSize: 64,
		PropSubarrayVSize: 32,
		PropSubarrayMode:  2,
	} {
		if _, err := dev.Set(id, v); err != nil {
			t.Fatalf("set 0x%X: %v", int32(id), err)
		}
	}
	w, h, _, err = dev.ImageGeometry()
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	if w != 64 || h != 32 {
		t.Fatalf("subarray geometry = %dx%d", w, h)
	}
	fb, err := dev.Get(PropImageFrameBytes)
	if err != nil {
		t.Fatalf("frame bytes: %v", err)
	}
	if fb != 64*32*2 {
		t.Errorf("frame bytes = %g", fb)
	}
}

func TestSimSnap(t *testing.T) {
	dev := simDeviceT(t)
	if _, err := dev.SetExposureTime(time.Millisecond); err != nil {
		t.Fatalf("set exposure: %v", err)
	}
	pix, err := dev.Snap(5 * time.Second)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}
	if pix.Width != 256 || pix.Height != 192 || pix.PixelType != PixelMono16 {
		t.Fatalf("snap geometry = %dx%d %v", pix.Width, pix.Height, pix.PixelType)
	}
	if len(pix.Bytes) != 256*192*2 {
		t.Fatalf("snap size = %d", len(pix.Bytes))
	}
	// a second snap must work on the same device
	if _, err := dev.Snap(5 * time.Second); err != nil {
		t.Fatalf("second snap: %v", err)
	}
}

func TestSimDeviceInfo(t *testing.T) {
	dev := simDeviceT(t)
	info, err := dev.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info[IDStrVendor] != "Hamamatsu" {
		t.Errorf("vendor = %q", info[IDStrVendor])
	}
	if info[IDStrModel] == "" {
		t.Error("model missing")
	}
}

func TestSimExclusiveOpen(t *testing.T) {
	sim := NewSim(1)
	reg := NewRegistry(sim)
	if err := reg.Open(); err != nil {
		t.Fatalf("registry open: %v", err)
	}
	defer reg.Close()
	dev, err := reg.Device(0)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if err := dev.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := sim.DevOpen(0); !IsBusy(err) {
		t.Fatalf("second open err = %v, want BUSY", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	h, err := sim.DevOpen(0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	sim.DevClose(h)
}
