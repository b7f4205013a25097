package dcam

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Sim is a pure-Go API implementation backed by synthetic cameras.  It
// honors the same capture lifecycle as the native library: buffers must
// be allocated before capture, the transfer cursor advances one slot
// per completed frame, snap mode stops after the ring fills, and stop
// or abort wake blocked waiters.  Frames carry a deterministic gradient
// pattern so image paths can be verified byte for byte.
type Sim struct {
	mu       sync.Mutex
	inited   bool
	devs     []*simDevice
	handles  map[Handle]*simDevice
	waiters  map[WaitHandle]*simWaiter
	nextWait WaitHandle
}

// NewSim builds a simulator exposing n cameras.
func NewSim(n int) *Sim {
	s := &Sim{
		handles: make(map[Handle]*simDevice),
		waiters: make(map[WaitHandle]*simWaiter),
	}
	for i := 0; i < n; i++ {
		s.devs = append(s.devs, newSimDevice(i))
	}
	return s
}

func (s *Sim) Init() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.devs) == 0 {
		return 0, Check(ErrNoCamera, "dcamapi_init")
	}
	s.inited = true
	return len(s.devs), nil
}

func (s *Sim) Uninit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = false
	return nil
}

func (s *Sim) DevOpen(index int) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inited {
		return 0, Check(ErrNoResource, "dcamdev_open")
	}
	if index < 0 || index >= len(s.devs) {
		return 0, Check(ErrInvalidCamera, "dcamdev_open")
	}
	d := s.devs[index]
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return 0, Check(ErrBusy, "dcamdev_open")
	}
	d.open = true
	h := Handle(index + 1)
	s.handles[h] = d
	return h, nil
}

func (s *Sim) DevClose(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.handles[h]
	if !ok {
		return Check(ErrInvalidHandle, "dcamdev_close")
	}
	d.stopCapture()
	d.mu.Lock()
	d.open = false
	d.ring = nil
	d.meta = nil
	d.mu.Unlock()
	delete(s.handles, h)
	return nil
}

func (s *Sim) dev(h Handle, op string) (*simDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.handles[h]
	if !ok {
		return nil, Check(ErrInvalidHandle, op)
	}
	return d, nil
}

func (s *Sim) DevGetString(h Handle, id EIDString) (string, error) {
	d, err := s.dev(h, "dcamdev_getstring")
	if err != nil {
		return "", err
	}
	v, ok := d.info[id]
	if !ok {
		return "", Check(ErrNotSupport, "dcamdev_getstring")
	}
	return v, nil
}

func (s *Sim) CapStart(h Handle, mode EStart) error {
	d, err := s.dev(h, "dcamcap_start")
	if err != nil {
		return err
	}
	return d.startCapture(mode)
}

func (s *Sim) CapStop(h Handle) error {
	d, err := s.dev(h, "dcamcap_stop")
	if err != nil {
		return err
	}
	d.stopCapture()
	return nil
}

func (s *Sim) CapStatus(h Handle) (EStatus, error) {
	d, err := s.dev(h, "dcamcap_status")
	if err != nil {
		return StatusError, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, nil
}

func (s *Sim) CapTransferInfo(h Handle) (TransferInfo, error) {
	d, err := s.dev(h, "dcamcap_transferinfo")
	if err != nil {
		return TransferInfo{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	newest := -1
	if d.count > 0 && len(d.ring) > 0 {
		newest = (d.count - 1) % len(d.ring)
	}
	return TransferInfo{NewestFrameIndex: newest, FrameCount: d.count}, nil
}

func (s *Sim) CapFireTrigger(h Handle) error {
	d, err := s.dev(h, "dcamcap_firetrigger")
	if err != nil {
		return err
	}
	d.mu.Lock()
	busy := d.status == StatusBusy
	trigger := d.trigger
	d.mu.Unlock()
	if !busy {
		return Check(ErrNotBusy, "dcamcap_firetrigger")
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
	return nil
}

func (s *Sim) BufAlloc(h Handle, n int) error {
	d, err := s.dev(h, "dcambuf_alloc")
	if err != nil {
		return err
	}
	if n < 1 {
		return Check(ErrInvalidParam, "dcambuf_alloc")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusBusy {
		return Check(ErrBusy, "dcambuf_alloc")
	}
	size := d.frameBytesLocked()
	d.ring = make([][]byte, n)
	d.meta = make([]Frame, n)
	for i := range d.ring {
		d.ring[i] = make([]byte, size)
	}
	d.count = 0
	d.status = StatusReady
	return nil
}

func (s *Sim) BufRelease(h Handle) error {
	d, err := s.dev(h, "dcambuf_release")
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusBusy {
		return Check(ErrBusy, "dcambuf_release")
	}
	d.ring = nil
	d.meta = nil
	d.status = StatusUnstable
	return nil
}

func (s *Sim) BufLockFrame(h Handle, index int) (Frame, error) {
	d, err := s.dev(h, "dcambuf_lockframe")
	if err != nil {
		return Frame{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ring == nil {
		return Frame{}, Check(ErrNotReady, "dcambuf_lockframe")
	}
	if index < 0 || index >= len(d.ring) {
		return Frame{}, Check(ErrInvalidFrameIndex, "dcambuf_lockframe")
	}
	f := d.meta[index]
	f.buf = d.ring[index]
	return f, nil
}

func (s *Sim) WaitOpen(h Handle) (WaitHandle, error) {
	d, err := s.dev(h, "dcamwait_open")
	if err != nil {
		return 0, err
	}
	w := &simWaiter{notify: make(chan struct{}, 1)}
	d.mu.Lock()
	d.eventSinks = append(d.eventSinks, w)
	d.mu.Unlock()
	s.mu.Lock()
	s.nextWait++
	wh := s.nextWait
	s.waiters[wh] = w
	s.mu.Unlock()
	return wh, nil
}

func (s *Sim) waiter(wh WaitHandle, op string) (*simWaiter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.waiters[wh]
	if !ok {
		return nil, Check(ErrInvalidWaitHandle, op)
	}
	return w, nil
}

func (s *Sim) WaitStart(wh WaitHandle, mask EWaitEvent, timeout time.Duration) (EWaitEvent, error) {
	w, err := s.waiter(wh, "dcamwait_start")
	if err != nil {
		return 0, err
	}
	var deadline <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		w.mu.Lock()
		if w.aborted {
			w.aborted = false
			w.mu.Unlock()
			return 0, Check(ErrAbort, "dcamwait_start")
		}
		if fired := w.pending & mask; fired != 0 {
			w.pending &^= fired
			w.mu.Unlock()
			return fired, nil
		}
		w.mu.Unlock()
		select {
		case <-w.notify:
		case <-deadline:
			return 0, Check(ErrTimeout, "dcamwait_start")
		}
	}
}

func (s *Sim) WaitAbort(wh WaitHandle) error {
	w, err := s.waiter(wh, "dcamwait_abort")
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.aborted = true
	w.mu.Unlock()
	w.wake()
	return nil
}

func (s *Sim) WaitClose(wh WaitHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waiters[wh]; !ok {
		return Check(ErrInvalidWaitHandle, "dcamwait_close")
	}
	delete(s.waiters, wh)
	return nil
}

func (s *Sim) PropGetNextID(h Handle, id EProp, opt EPropOption) (EProp, error) {
	d, err := s.dev(h, "dcamprop_getnextid")
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if opt&PropOptionNext == 0 && id == 0 {
		return 0, Check(ErrInvalidParam, "dcamprop_getnextid")
	}
	for _, next := range d.order {
		if next > id {
			return next, nil
		}
	}
	return 0, Check(ErrOutOfRange, "dcamprop_getnextid")
}

func (s *Sim) PropGetName(h Handle, id EProp) (string, error) {
	d, err := s.dev(h, "dcamprop_getname")
	if err != nil {
		return "", err
	}
	p, err := d.prop(id, "dcamprop_getname")
	if err != nil {
		return "", err
	}
	return p.name, nil
}

func (s *Sim) PropGetAttr(h Handle, id EProp) (PropAttr, error) {
	d, err := s.dev(h, "dcamprop_getattr")
	if err != nil {
		return PropAttr{}, err
	}
	p, err := d.prop(id, "dcamprop_getattr")
	if err != nil {
		return PropAttr{}, err
	}
	return p.attr, nil
}

func (s *Sim) PropGetValue(h Handle, id EProp) (float64, error) {
	d, err := s.dev(h, "dcamprop_getvalue")
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getValueLocked(id)
}

func (s *Sim) PropSetGetValue(h Handle, id EProp, value float64) (float64, error) {
	d, err := s.dev(h, "dcamprop_setgetvalue")
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.prop(id, "dcamprop_setgetvalue")
	if err != nil {
		return 0, err
	}
	if p.attr.Attribute&PropAttrWritable == 0 {
		return 0, Check(ErrNotWritable, "dcamprop_setgetvalue")
	}
	if d.status == StatusBusy && p.attr.Attribute&PropAttrAccessBusy == 0 {
		return 0, Check(ErrAccessDeny, "dcamprop_setgetvalue")
	}
	if len(p.texts) > 0 {
		if _, ok := p.texts[value]; !ok {
			return 0, Check(ErrInvalidValue, "dcamprop_setgetvalue")
		}
	} else {
		if value < p.attr.Min {
			value = p.attr.Min
		}
		if value > p.attr.Max {
			value = p.attr.Max
		}
	}
	p.value = value
	return value, nil
}

func (s *Sim) PropQueryValue(h Handle, id EProp, value float64, opt EPropOption) (float64, error) {
	d, err := s.dev(h, "dcamprop_queryvalue")
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.prop(id, "dcamprop_queryvalue")
	if err != nil {
		return 0, err
	}
	if len(p.texts) == 0 {
		return 0, Check(ErrNotSupport, "dcamprop_queryvalue")
	}
	keys := p.textKeys()
	switch {
	case opt&PropOptionNext != 0:
		for _, k := range keys {
			if k > value {
				return k, nil
			}
		}
	case opt == PropOptionPrior:
		for i := len(keys) - 1; i >= 0; i-- {
			if keys[i] < value {
				return keys[i], nil
			}
		}
	default:
		if _, ok := p.texts[value]; ok {
			return value, nil
		}
	}
	return 0, Check(ErrOutOfRange, "dcamprop_queryvalue")
}

func (s *Sim) PropGetValueText(h Handle, id EProp, value float64) (string, error) {
	d, err := s.dev(h, "dcamprop_getvaluetext")
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.prop(id, "dcamprop_getvaluetext")
	if err != nil {
		return "", err
	}
	if len(p.texts) == 0 {
		return "", Check(ErrNoValueText, "dcamprop_getvaluetext")
	}
	t, ok := p.texts[value]
	if !ok {
		return "", Check(ErrOutOfRange, "dcamprop_getvaluetext")
	}
	return t, nil
}

type simProp struct {
	name  string
	attr  PropAttr
	value float64
	texts map[float64]string
}

func (p *simProp) textKeys() []float64 {
	keys := make([]float64, 0, len(p.texts))
	for k := range p.texts {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	return keys
}

type simDevice struct {
	index int
	info  map[EIDString]string

	mu         sync.Mutex
	open       bool
	props      map[EProp]*simProp
	order      []EProp
	status     EStatus
	ring       [][]byte
	meta       []Frame
	count      int
	cancel     context.CancelFunc
	done       chan struct{}
	trigger    chan struct{}
	eventSinks []*simWaiter
}

type simWaiter struct {
	mu      sync.Mutex
	pending EWaitEvent
	aborted bool
	notify  chan struct{}
}

func (w *simWaiter) post(ev EWaitEvent) {
	w.mu.Lock()
	w.pending |= ev
	w.mu.Unlock()
	w.wake()
}

func (w *simWaiter) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

const simSensorW, simSensorH = 256, 192

func newSimDevice(index int) *simDevice {
	d := &simDevice{
		index:   index,
		status:  StatusUnstable,
		trigger: make(chan struct{}, 1),
		info: map[EIDString]string{
			IDStrBus:           "SIM",
			IDStrCameraID:      fmt.Sprintf("S/N: 3903%03d", index),
			IDStrVendor:        "Hamamatsu",
			IDStrModel:         "C13440-20CU SIM",
			IDStrCameraVersion: "4.20.B",
			IDStrDriverVersion: "1.0.0",
			IDStrModuleVersion: "20.7.641",
			IDStrAPIVersion:    "4.0",
			IDStrSeriesName:    "ORCA-Flash4.0 V3",
		},
		props: make(map[EProp]*simProp),
	}
	rw := PropAttrReadable | PropAttrWritable | PropAttrHasRange
	ro := PropAttrReadable
	add := func(id EProp, name string, typ, access EPropAttr, unit EUnit, min, max, step, def float64, texts map[float64]string) {
		attr := PropAttr{
			Attribute: typ | access,
			Unit:      unit,
			Min:       min, Max: max, Step: step, Default: def,
		}
		if step != 0 {
			attr.Attribute |= PropAttrHasStep
		}
		if texts != nil {
			attr.Attribute |= PropAttrHasValueText
		}
		d.props[id] = &simProp{name: name, attr: attr, value: def, texts: texts}
		d.order = append(d.order, id)
	}
	add(PropTriggerSource, "TRIGGER SOURCE", PropTypeMode, rw, UnitNone, 1, 3, 1, float64(TriggerInternal), map[float64]string{
		float64(TriggerInternal): "INTERNAL",
		float64(TriggerExternal): "EXTERNAL",
		float64(TriggerSoftware): "SOFTWARE",
	})
	add(PropExposureTime, "EXPOSURE TIME", PropTypeReal, rw|PropAttrAccessBusy, UnitSecond, 1e-5, 10, 0, 0.01, nil)
	add(PropSensorTemperature, "SENSOR TEMPERATURE", PropTypeReal, ro|PropAttrVolatile, UnitCelsius, 0, 0, 0, -10, nil)
	add(PropBinning, "BINNING", PropTypeMode, rw, UnitNone, 1, 4, 0, 1, map[float64]string{1: "1x1", 2: "2x2", 4: "4x4"})
	add(PropSubarrayHPos, "SUBARRAY HPOS", PropTypeLong, rw, UnitNone, 0, simSensorW-4, 4, 0, nil)
	add(PropSubarrayHSize, "SUBARRAY HSIZE", PropTypeLong, rw, UnitNone, 4, simSensorW, 4, simSensorW, nil)
	add(PropSubarrayVPos, "SUBARRAY VPOS", PropTypeLong, rw, UnitNone, 0, simSensorH-4, 4, 0, nil)
	add(PropSubarrayVSize, "SUBARRAY VSIZE", PropTypeLong, rw, UnitNone, 4, simSensorH, 4, simSensorH, nil)
	add(PropSubarrayMode, "SUBARRAY MODE", PropTypeMode, rw, UnitNone, 1, 2, 1, 1, map[float64]string{1: "OFF", 2: "ON"})
	add(PropTimingReadoutTime, "TIMING READOUT TIME", PropTypeReal, ro, UnitSecond, 0, 0, 0, 0.002, nil)
	add(PropInternalFrameRate, "INTERNAL FRAME RATE", PropTypeReal, ro|PropAttrVolatile, UnitPerSecond, 0, 0, 0, 100, nil)
	add(PropImagePixelType, "IMAGE PIXEL TYPE", PropTypeMode, rw, UnitNone, 1, 2, 1, float64(PixelMono16), map[float64]string{
		float64(PixelMono8):  "MONO8",
		float64(PixelMono16): "MONO16",
	})
	add(PropBitsPerChannel, "BIT PER CHANNEL", PropTypeLong, ro, UnitNone, 8, 16, 0, 16, nil)
	add(PropImageWidth, "IMAGE WIDTH", PropTypeLong, ro, UnitNone, 4, simSensorW, 4, simSensorW, nil)
	add(PropImageHeight, "IMAGE HEIGHT", PropTypeLong, ro, UnitNone, 4, simSensorH, 4, simSensorH, nil)
	add(PropImageRowBytes, "IMAGE ROWBYTES", PropTypeLong, ro, UnitNone, 0, 0, 0, 0, nil)
	add(PropImageFrameBytes, "IMAGE FRAMEBYTES", PropTypeLong, ro, UnitNone, 0, 0, 0, 0, nil)
	add(PropDetectorPixelW, "IMAGE DETECTOR PIXEL WIDTH", PropTypeReal, ro, UnitMicrometer, 0, 0, 0, 6.5, nil)
	add(PropDetectorPixelH, "IMAGE DETECTOR PIXEL HEIGHT", PropTypeReal, ro, UnitMicrometer, 0, 0, 0, 6.5, nil)
	add(PropTimestampProducer, "TIME STAMP PRODUCER", PropTypeMode, ro, UnitNone, 1, 1, 0, 1, map[float64]string{1: "IMAGING DEVICE"})
	add(PropFramestampProd, "FRAME STAMP PRODUCER", PropTypeMode, ro, UnitNone, 1, 1, 0, 1, map[float64]string{1: "IMAGING DEVICE"})
	add(PropSystemAlive, "SYSTEM ALIVE", PropTypeMode, ro, UnitNone, 1, 2, 0, 2, map[float64]string{1: "OFFLINE", 2: "ONLINE"})
	sort.Slice(d.order, func(i, j int) bool { return d.order[i] < d.order[j] })
	return d
}

func (d *simDevice) prop(id EProp, op string) (*simProp, error) {
	p, ok := d.props[id]
	if !ok {
		return nil, Check(ErrInvalidPropertyID, op)
	}
	return p, nil
}

// getValueLocked resolves derived values for geometry and rate
// properties; everything else reads the stored value.
func (d *simDevice) getValueLocked(id EProp) (float64, error) {
	p, err := d.prop(id, "dcamprop_getvalue")
	if err != nil {
		return 0, err
	}
	switch id {
	case PropImageWidth:
		return float64(d.widthLocked()), nil
	case PropImageHeight:
		return float64(d.heightLocked()), nil
	case PropImageRowBytes:
		return float64(d.rowBytesLocked()), nil
	case PropImageFrameBytes:
		return float64(d.frameBytesLocked()), nil
	case PropInternalFrameRate:
		return 1 / d.props[PropExposureTime].value, nil
	}
	return p.value, nil
}

func (d *simDevice) widthLocked() int {
	if d.props[PropSubarrayMode].value == 2 {
		return int(d.props[PropSubarrayHSize].value)
	}
	return simSensorW
}

func (d *simDevice) heightLocked() int {
	if d.props[PropSubarrayMode].value == 2 {
		return int(d.props[PropSubarrayVSize].value)
	}
	return simSensorH
}

func (d *simDevice) pixelTypeLocked() EImagePixelType {
	return EImagePixelType(d.props[PropImagePixelType].value)
}

func (d *simDevice) rowBytesLocked() int {
	num, den := d.pixelTypeLocked().BytesPerPixel()
	return d.widthLocked() * num / den
}

func (d *simDevice) frameBytesLocked() int {
	return d.rowBytesLocked() * d.heightLocked()
}

func (d *simDevice) startCapture(mode EStart) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusBusy {
		return Check(ErrBusy, "dcamcap_start")
	}
	if d.ring == nil {
		return Check(ErrNotReady, "dcamcap_start")
	}
	if mode != StartSnap && mode != StartSequence {
		return Check(ErrInvalidParam, "dcamcap_start")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.count = 0
	d.status = StatusBusy
	go d.capture(ctx, mode, d.done)
	return nil
}

func (d *simDevice) stopCapture() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.mu.Lock()
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()
}

// capture is the frame producer.  It paces exposures with a rate
// limiter, fills one ring slot per frame, and posts FRAMEREADY per
// completion and STOPPED once on exit.
func (d *simDevice) capture(ctx context.Context, mode EStart, done chan struct{}) {
	defer close(done)
	d.mu.Lock()
	exposure := d.props[PropExposureTime].value
	software := ETriggerSource(d.props[PropTriggerSource].value) == TriggerSoftware
	slots := len(d.ring)
	d.mu.Unlock()
	lim := rate.NewLimiter(rate.Limit(1/exposure), 1)
	for n := 0; ; n++ {
		if mode == StartSnap && n == slots {
			break
		}
		if software {
			select {
			case <-d.trigger:
			case <-ctx.Done():
			}
		}
		if err := lim.Wait(ctx); err != nil {
			break
		}
		d.fill(n)
		d.post(WaitCapFrameReady)
	}
	d.mu.Lock()
	d.status = StatusReady
	d.mu.Unlock()
	d.post(WaitCapStopped)
}

// fill writes frame n's pixel pattern into its ring slot and records
// the frame metadata.  The pattern is a diagonal gradient offset by the
// frame number.
func (d *simDevice) fill(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	slot := n % len(d.ring)
	w, h := d.widthLocked(), d.heightLocked()
	pt := d.pixelTypeLocked()
	rowBytes := d.rowBytesLocked()
	buf := d.ring[slot]
	for y := 0; y < h; y++ {
		row := buf[y*rowBytes:]
		for x := 0; x < w; x++ {
			v := x + y + n
			switch pt {
			case PixelMono8:
				row[x] = byte(v)
			case PixelMono16:
				row[2*x] = byte(v)
				row[2*x+1] = byte(v >> 8)
			}
		}
	}
	d.meta[slot] = Frame{
		Index:      slot,
		RowBytes:   rowBytes,
		Width:      w,
		Height:     h,
		PixelType:  pt,
		Timestamp:  time.Now().UnixMicro(),
		Framestamp: int32(n),
	}
	d.count = n + 1
}

func (d *simDevice) post(ev EWaitEvent) {
	d.mu.Lock()
	sinks := append([]*simWaiter(nil), d.eventSinks...)
	d.mu.Unlock()
	for _, w := range sinks {
		w.post(ev)
	}
}
