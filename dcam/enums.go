package dcam

import "strings"

// EStatus is a capture status, from dcamcap_status.
type EStatus int32

const (
	StatusError    EStatus = 0x0000
	StatusBusy     EStatus = 0x0001
	StatusReady    EStatus = 0x0002
	StatusStable   EStatus = 0x0003
	StatusUnstable EStatus = 0x0004
)

func (s EStatus) String() string {
	switch s {
	case StatusError:
		return "ERROR"
	case StatusBusy:
		return "BUSY"
	case StatusReady:
		return "READY"
	case StatusStable:
		return "STABLE"
	case StatusUnstable:
		return "UNSTABLE"
	}
	return "UNKNOWN"
}

// EWaitEvent is a bitmask describing why a wait call returned.  Only the
// capture bits are consumed by this package; recording bits are carried
// for completeness and ignored.
type EWaitEvent int32

const (
	WaitCapTransferred EWaitEvent = 0x0001
	WaitCapFrameReady  EWaitEvent = 0x0002
	WaitCapCycleEnd    EWaitEvent = 0x0004
	WaitCapExposureEnd EWaitEvent = 0x0008
	WaitCapStopped     EWaitEvent = 0x0010

	WaitRecStopped    EWaitEvent = 0x0100
	WaitRecWarning    EWaitEvent = 0x0200
	WaitRecMissed     EWaitEvent = 0x0400
	WaitRecDiskFull   EWaitEvent = 0x1000
	WaitRecWriteFault EWaitEvent = 0x2000
	WaitRecSkipped    EWaitEvent = 0x4000
	WaitRecWriteFrame EWaitEvent = 0x8000
)

var waitEventNames = []struct {
	bit  EWaitEvent
	name string
}{
	{WaitCapTransferred, "CAP_TRANSFERRED"},
	{WaitCapFrameReady, "CAP_FRAMEREADY"},
	{WaitCapCycleEnd, "CAP_CYCLEEND"},
	{WaitCapExposureEnd, "CAP_EXPOSUREEND"},
	{WaitCapStopped, "CAP_STOPPED"},
	{WaitRecStopped, "REC_STOPPED"},
	{WaitRecWarning, "REC_WARNING"},
	{WaitRecMissed, "REC_MISSED"},
	{WaitRecDiskFull, "REC_DISKFULL"},
	{WaitRecWriteFault, "REC_WRITEFAULT"},
	{WaitRecSkipped, "REC_SKIPPED"},
	{WaitRecWriteFrame, "REC_WRITEFRAME"},
}

func (e EWaitEvent) String() string {
	if e == 0 {
		return "NONE"
	}
	parts := []string{}
	for _, we := range waitEventNames {
		if e&we.bit != 0 {
			parts = append(parts, we.name)
		}
	}
	return strings.Join(parts, "|")
}

// EStart selects the capture mode passed to dcamcap_start.
type EStart int32

const (
	// StartSequence captures continuously, wrapping around the buffer ring.
	StartSequence EStart = -1
	// StartSnap captures until the buffer ring is full, then stops.
	StartSnap EStart = 0
)

// EIDString identifies a device information string for dcamdev_getstring.
type EIDString int32

const (
	IDStrBus           EIDString = 0x04000101
	IDStrCameraID      EIDString = 0x04000102
	IDStrVendor        EIDString = 0x04000103
	IDStrModel         EIDString = 0x04000104
	IDStrCameraVersion EIDString = 0x04000105
	IDStrDriverVersion EIDString = 0x04000106
	IDStrModuleVersion EIDString = 0x04000107
	IDStrAPIVersion    EIDString = 0x04000108
	IDStrSeriesName    EIDString = 0x0400012C
)

func (s EIDString) String() string {
	switch s {
	case IDStrBus:
		return "Bus"
	case IDStrCameraID:
		return "CameraID"
	case IDStrVendor:
		return "Vendor"
	case IDStrModel:
		return "Model"
	case IDStrCameraVersion:
		return "CameraVersion"
	case IDStrDriverVersion:
		return "DriverVersion"
	case IDStrModuleVersion:
		return "ModuleVersion"
	case IDStrAPIVersion:
		return "DCAMAPIVersion"
	case IDStrSeriesName:
		return "SeriesName"
	}
	return "UNKNOWN"
}

// infoStrings are the identifiers collected by Device.Info.
var infoStrings = []EIDString{
	IDStrBus,
	IDStrCameraID,
	IDStrVendor,
	IDStrModel,
	IDStrCameraVersion,
	IDStrDriverVersion,
	IDStrModuleVersion,
	IDStrAPIVersion,
	IDStrSeriesName,
}

// EImagePixelType tags the pixel layout of a frame buffer.
type EImagePixelType int32

const (
	PixelNone   EImagePixelType = 0x00000000
	PixelMono8  EImagePixelType = 0x00000001
	PixelMono16 EImagePixelType = 0x00000002
	PixelMono12 EImagePixelType = 0x00000003
	// PixelMono12P packs two 12-bit samples into three bytes.
	PixelMono12P EImagePixelType = 0x00000005
	PixelRGB24   EImagePixelType = 0x00000021
	PixelRGB48   EImagePixelType = 0x00000022
	PixelBGR24   EImagePixelType = 0x00000029
	PixelBGR48   EImagePixelType = 0x0000002A
)

func (p EImagePixelType) String() string {
	switch p {
	case PixelNone:
		return "NONE"
	case PixelMono8:
		return "MONO8"
	case PixelMono16:
		return "MONO16"
	case PixelMono12:
		return "MONO12"
	case PixelMono12P:
		return "MONO12P"
	case PixelRGB24:
		return "RGB24"
	case PixelRGB48:
		return "RGB48"
	case PixelBGR24:
		return "BGR24"
	case PixelBGR48:
		return "BGR48"
	}
	return "UNKNOWN"
}

// BytesPerPixel returns the storage cost of one pixel as a ratio num/den.
// The packed 12-bit formats cost 1.5 bytes per pixel, so the ratio keeps
// byte arithmetic exact.
func (p EImagePixelType) BytesPerPixel() (num, den int) {
	switch p {
	case PixelMono8:
		return 1, 1
	case PixelMono16:
		return 2, 1
	case PixelMono12, PixelMono12P:
		return 3, 2
	case PixelRGB24, PixelBGR24:
		return 3, 1
	case PixelRGB48, PixelBGR48:
		return 6, 1
	}
	return 0, 1
}

// FrameBytes returns the exact byte count of a width x height frame.
// It errors with INVALIDVALUE when the dimensions do not yield an
// integral byte count for a sub-byte packed format.
func (p EImagePixelType) FrameBytes(width, height int) (int, error) {
	num, den := p.BytesPerPixel()
	total := width * height * num
	if total%den != 0 {
		return 0, Check(ErrInvalidValue, "FrameBytes")
	}
	return total / den, nil
}

// EUnit is the physical unit attached to a property value.
type EUnit int32

const (
	UnitNone           EUnit = 0
	UnitSecond         EUnit = 1
	UnitCelsius        EUnit = 2
	UnitKelvin         EUnit = 3
	UnitMeterPerSecond EUnit = 4
	UnitPerSecond      EUnit = 5
	UnitDegree         EUnit = 6
	UnitMicrometer     EUnit = 7
)

func (u EUnit) String() string {
	switch u {
	case UnitSecond:
		return "s"
	case UnitCelsius:
		return "degC"
	case UnitKelvin:
		return "K"
	case UnitMeterPerSecond:
		return "m/s"
	case UnitPerSecond:
		return "1/s"
	case UnitDegree:
		return "deg"
	case UnitMicrometer:
		return "um"
	}
	return ""
}

// ToSI converts a raw property value in this unit to SI.
func (u EUnit) ToSI(v float64) float64 {
	switch u {
	case UnitCelsius:
		return v + 273.15
	case UnitMicrometer:
		return v * 1e-6
	case UnitDegree:
		return v * 3.14159265358979323846 / 180
	}
	return v
}

// EPropAttr is the attribute bitfield of a property.
type EPropAttr int32

const (
	PropAttrHasRange     EPropAttr = -0x80000000
	PropAttrHasStep      EPropAttr = 0x40000000
	PropAttrHasDefault   EPropAttr = 0x20000000
	PropAttrHasValueText EPropAttr = 0x10000000
	PropAttrAutoRounding EPropAttr = 0x00800000
	PropAttrDataStream   EPropAttr = 0x00200000
	PropAttrVolatile     EPropAttr = 0x00080000
	PropAttrWritable     EPropAttr = 0x00020000
	PropAttrReadable     EPropAttr = 0x00010000
	PropAttrAccessReady  EPropAttr = 0x00002000
	PropAttrAccessBusy   EPropAttr = 0x00001000

	PropTypeNone EPropAttr = 0x00000000
	PropTypeMode EPropAttr = 0x00000001
	PropTypeLong EPropAttr = 0x00000002
	PropTypeReal EPropAttr = 0x00000003
	PropTypeMask EPropAttr = 0x0000000F
)

// EPropOption is the direction/option flag for property id and value
// iteration.
type EPropOption int32

const (
	PropOptionNone    EPropOption = 0x00000000
	PropOptionSupport EPropOption = 0x00000000
	PropOptionNext    EPropOption = 0x01000000
	PropOptionPrior   EPropOption = -0x01000000 // 0xFF000000 as int32
)

// ETriggerSource enumerates trigger sources for the TRIGGERSOURCE
// property.
type ETriggerSource int32

const (
	TriggerInternal    ETriggerSource = 1
	TriggerExternal    ETriggerSource = 2
	TriggerSoftware    ETriggerSource = 3
	TriggerMasterPulse ETriggerSource = 4
)

// EProp identifies a camera property.  Only the subset used by this
// package is enumerated; the capability walk discovers the full set the
// connected camera supports.
type EProp int32

const (
	PropTriggerSource     EProp = 0x00100110
	PropTriggerActive     EProp = 0x00100120
	PropTriggerMode       EProp = 0x00100210
	PropTriggerPolarity   EProp = 0x00100220
	PropTriggerDelay      EProp = 0x00100260
	PropExposureTime      EProp = 0x001F0110
	PropSensorTemperature EProp = 0x00200310
	PropSensorCooler      EProp = 0x00200320
	PropSensorMode        EProp = 0x00400210
	PropReadoutSpeed      EProp = 0x00400110
	PropBinning           EProp = 0x00401110
	PropSubarrayHPos      EProp = 0x00402110
	PropSubarrayHSize     EProp = 0x00402120
	PropSubarrayVPos      EProp = 0x00402130
	PropSubarrayVSize     EProp = 0x00402140
	PropSubarrayMode      EProp = 0x00402150
	PropTimingReadoutTime EProp = 0x00403010
	PropInternalFrameRate EProp = 0x00403810
	PropTimestampProducer EProp = 0x00410A10
	PropFramestampProd    EProp = 0x00410A20
	PropColorType         EProp = 0x00420120
	PropBitsPerChannel    EProp = 0x00420130
	PropImageWidth        EProp = 0x00420210
	PropImageHeight       EProp = 0x00420220
	PropImageRowBytes     EProp = 0x00420230
	PropImageFrameBytes   EProp = 0x00420240
	PropImagePixelType    EProp = 0x00420270
	PropBufferRowBytes    EProp = 0x00420330
	PropBufferFrameBytes  EProp = 0x00420340
	PropBufferPixelType   EProp = 0x00420360
	PropDetectorPixelW    EProp = 0x00420810
	PropDetectorPixelH    EProp = 0x00420820
	PropSystemAlive       EProp = 0x00FF0010
)
