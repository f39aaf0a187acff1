// Package snapshot defines the capability-tagged generic controller state
// that flows between the driver layer and the console emulators. Types here
// are copied by value across the shared-state boundary (see package state);
// none of them hold references into driver-owned buffers.
package snapshot

import "encoding/binary"

// Button is a bit position in the abstract button enumeration. Every driver
// maps its own physical layout onto this fixed 19-slot set; an emulator never
// needs to know which physical pad produced the bits.
type Button uint32

const (
	South Button = 1 << iota
	East
	West
	North
	L1
	R1
	L2Button
	R2Button
	L3
	R3
	Select
	Start
	Home
	Touchpad
	Mute
	DPadUp
	DPadDown
	DPadLeft
	DPadRight
)

// Capability flags a driver's hardware supports. Fields in InputSnapshot
// corresponding to an unset capability MUST be zero/neutral and ignored by
// every downstream consumer.
type Capability uint16

const (
	CapButtons Capability = 1 << iota
	CapSticks
	CapTriggers
	CapRumble
	CapMotion
	CapTouchpad
	CapLightbar
	CapPlayerLEDs
	CapBattery
	CapAudio
)

// Input report byte layout constants shared by every driver and emulator:
// analog sticks are unsigned with 0x80 as center.
const (
	StickCenter    uint8 = 0x80
	AccelCountsPerG       = 8192
	GyroCountsPerDps      = 1024
)

// InputSnapshot is a single immutable-valued observation of a controller at
// one point in time. Produced exclusively by the active driver; consumed
// read-only by any emulator.
type InputSnapshot struct {
	Buttons Button

	LX, LY uint8
	RX, RY uint8
	L2, R2 uint8

	// Motion values are in calibrated units: AccelCountsPerG per g,
	// GyroCountsPerDps per degree-per-second.
	AccelX, AccelY, AccelZ int16
	GyroX, GyroY, GyroZ    int16

	Touch1Active bool
	Touch1X      uint16 // 12-bit
	Touch1Y      uint16 // 12-bit
	Touch2Active bool
	Touch2X      uint16 // 12-bit
	Touch2Y      uint16 // 12-bit

	BatteryPercent uint8 // 0-100
	Charging       bool
	Full           bool

	TimestampMs uint64
}

// Neutral returns the at-rest snapshot: sticks centered, nothing pressed.
func Neutral() InputSnapshot {
	return InputSnapshot{
		LX: StickCenter, LY: StickCenter,
		RX: StickCenter, RY: StickCenter,
	}
}

const inputWireSize = 39

// MarshalBinary encodes the snapshot for the local IPC byte stream (little-endian,
// fixed width) used to inject synthetic input without JSON/reflection overhead.
func (s InputSnapshot) MarshalBinary() ([]byte, error) {
	b := make([]byte, inputWireSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(s.Buttons))
	b[4], b[5], b[6], b[7] = s.LX, s.LY, s.RX, s.RY
	b[8], b[9] = s.L2, s.R2
	binary.LittleEndian.PutUint16(b[10:12], uint16(s.AccelX))
	binary.LittleEndian.PutUint16(b[12:14], uint16(s.AccelY))
	binary.LittleEndian.PutUint16(b[14:16], uint16(s.AccelZ))
	binary.LittleEndian.PutUint16(b[16:18], uint16(s.GyroX))
	binary.LittleEndian.PutUint16(b[18:20], uint16(s.GyroY))
	binary.LittleEndian.PutUint16(b[20:22], uint16(s.GyroZ))
	putBool(b, 22, s.Touch1Active)
	binary.LittleEndian.PutUint16(b[23:25], s.Touch1X)
	binary.LittleEndian.PutUint16(b[25:27], s.Touch1Y)
	putBool(b, 27, s.Touch2Active)
	binary.LittleEndian.PutUint16(b[28:30], s.Touch2X)
	binary.LittleEndian.PutUint16(b[30:32], s.Touch2Y)
	b[32] = s.BatteryPercent
	putBool(b, 33, s.Charging)
	putBool(b, 34, s.Full)
	binary.LittleEndian.PutUint32(b[35:39], uint32(s.TimestampMs))
	return b, nil
}

// UnmarshalBinary decodes a snapshot produced by MarshalBinary.
func (s *InputSnapshot) UnmarshalBinary(data []byte) error {
	if len(data) < inputWireSize {
		return errShortRead
	}
	s.Buttons = Button(binary.LittleEndian.Uint32(data[0:4]))
	s.LX, s.LY, s.RX, s.RY = data[4], data[5], data[6], data[7]
	s.L2, s.R2 = data[8], data[9]
	s.AccelX = int16(binary.LittleEndian.Uint16(data[10:12]))
	s.AccelY = int16(binary.LittleEndian.Uint16(data[12:14]))
	s.AccelZ = int16(binary.LittleEndian.Uint16(data[14:16]))
	s.GyroX = int16(binary.LittleEndian.Uint16(data[16:18]))
	s.GyroY = int16(binary.LittleEndian.Uint16(data[18:20]))
	s.GyroZ = int16(binary.LittleEndian.Uint16(data[20:22]))
	s.Touch1Active = data[22] != 0
	s.Touch1X = binary.LittleEndian.Uint16(data[23:25])
	s.Touch1Y = binary.LittleEndian.Uint16(data[25:27])
	s.Touch2Active = data[27] != 0
	s.Touch2X = binary.LittleEndian.Uint16(data[28:30])
	s.Touch2Y = binary.LittleEndian.Uint16(data[30:32])
	s.BatteryPercent = data[32]
	s.Charging = data[33] != 0
	s.Full = data[34] != 0
	s.TimestampMs = uint64(binary.LittleEndian.Uint32(data[35:39]))
	return nil
}

func putBool(b []byte, i int, v bool) {
	if v {
		b[i] = 1
	} else {
		b[i] = 0
	}
}
