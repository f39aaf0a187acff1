// Package ds3 implements the DualShock 3 HID protocol emulator: the
// feature-report table, the input-report builder, and the output-report
// parser described in spec.md §4.1. It is transport-independent; the wired
// and wireless transport packages each call into it.
package ds3

const (
	DefaultVID = 0x054C
	DefaultPID = 0x0268
)

// Feature report IDs. 0xF2 and 0xF5 have their MAC slots rewritten at
// runtime; 0xEF echoes back whatever the console last wrote.
const (
	FeatureCapabilities = 0x01
	FeatureOwnMAC       = 0xF2
	FeaturePairing      = 0xF5
	FeatureCalibration  = 0xF7
	FeatureStatus       = 0xF8
	FeatureConfigEcho   = 0xEF

	FeatureEnable = 0xF4
)

const (
	InputReportSize = 49
	FeatureTableRow = 64
)

// Input report button-byte bit assignments (spec.md §4.1 / §6).
const (
	BtnSelect uint8 = 0x01
	BtnL3     uint8 = 0x02
	BtnR3     uint8 = 0x04
	BtnStart  uint8 = 0x08
	BtnUp     uint8 = 0x10
	BtnRight  uint8 = 0x20
	BtnDown   uint8 = 0x40
	BtnLeft   uint8 = 0x80

	BtnL2       uint8 = 0x01
	BtnR2       uint8 = 0x02
	BtnL1       uint8 = 0x04
	BtnR1       uint8 = 0x08
	BtnTriangle uint8 = 0x10
	BtnCircle   uint8 = 0x20
	BtnCross    uint8 = 0x40
	BtnSquare   uint8 = 0x80

	BtnHome uint8 = 0x01
)

// Offsets into the 49-byte input report.
const (
	OffReportID   = 0
	OffButtons1   = 2
	OffButtons2   = 3
	OffHome       = 4
	OffStickLX    = 6
	OffStickLY    = 7
	OffStickRX    = 8
	OffStickRY    = 9
	OffDPadUp     = 10
	OffDPadRight  = 11
	OffDPadDown   = 12
	OffDPadLeft   = 13
	OffTriggerL2  = 18
	OffTriggerR2  = 19
	OffPressureL1 = 20
	OffPressureR1 = 21
	OffTriangle   = 22
	OffCircle     = 23
	OffCross      = 24
	OffSquare     = 25
	OffPlugged    = 29
	OffBattery    = 30
	OffConnection = 31
	OffSignature  = 36
	OffMotion     = 40
	OffTrailer    = 48
)

// Byte 29 (plugged/unplugged).
const (
	PluggedUSB     uint8 = 0x02
	PluggedWireless uint8 = 0x03
)

// Byte 30 battery/charge levels.
const (
	BatteryCharging uint8 = 0xEE
	BatteryFull     uint8 = 0xEF
)

// Byte 31 connection class.
const (
	ConnUSB         uint8 = 0x12
	ConnUSBRumble   uint8 = 0x10
	ConnBT          uint8 = 0x16
	ConnBTRumble    uint8 = 0x14
)

// Signature bytes captured from real hardware at offsets 36-39.
var Signature = [4]byte{0x33, 0x04, 0x77, 0x01}

const trailerByte = 0x02

// Output report (from console).
const (
	OutOffRumbleRightFlag = 3
	OutOffRumbleLeft      = 5
	OutOffPlayerLEDs      = 10
)

// HID handshake error codes used by both transports for protocol errors.
const (
	HandshakeOK               = 0x00
	HandshakeInvalidReportID   = 0x02
)
