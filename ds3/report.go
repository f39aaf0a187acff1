package ds3

import (
	"encoding/binary"

	"github.com/rosettapad/rosettapad/snapshot"
)

// Transport tells BuildInput which framing and connection-class bytes to
// use; the wire layout is otherwise identical between wired and wireless.
type Transport int

const (
	TransportWired Transport = iota
	TransportWireless
)

// BuildInput translates an InputSnapshot into the fixed 49-octet DS3 input
// report. Deterministic: identical snapshot and transport always produce a
// byte-identical report (spec.md §8, property 3).
func BuildInput(s snapshot.InputSnapshot, t Transport, rumbleActive bool) []byte {
	b := make([]byte, InputReportSize)
	b[OffReportID] = FeatureCapabilities // 0x01

	var b1, b2 uint8
	if s.Buttons&snapshot.Select != 0 {
		b1 |= BtnSelect
	}
	if s.Buttons&snapshot.L3 != 0 {
		b1 |= BtnL3
	}
	if s.Buttons&snapshot.R3 != 0 {
		b1 |= BtnR3
	}
	if s.Buttons&snapshot.Start != 0 {
		b1 |= BtnStart
	}
	if s.Buttons&snapshot.DPadUp != 0 {
		b1 |= BtnUp
	}
	if s.Buttons&snapshot.DPadRight != 0 {
		b1 |= BtnRight
	}
	if s.Buttons&snapshot.DPadDown != 0 {
		b1 |= BtnDown
	}
	if s.Buttons&snapshot.DPadLeft != 0 {
		b1 |= BtnLeft
	}
	if s.Buttons&snapshot.L2Button != 0 {
		b2 |= BtnL2
	}
	if s.Buttons&snapshot.R2Button != 0 {
		b2 |= BtnR2
	}
	if s.Buttons&snapshot.L1 != 0 {
		b2 |= BtnL1
	}
	if s.Buttons&snapshot.R1 != 0 {
		b2 |= BtnR1
	}
	if s.Buttons&snapshot.North != 0 {
		b2 |= BtnTriangle
	}
	if s.Buttons&snapshot.East != 0 {
		b2 |= BtnCircle
	}
	if s.Buttons&snapshot.South != 0 {
		b2 |= BtnCross
	}
	if s.Buttons&snapshot.West != 0 {
		b2 |= BtnSquare
	}
	b[OffButtons1] = b1
	b[OffButtons2] = b2

	if s.Buttons&snapshot.Home != 0 {
		b[OffHome] = BtnHome
	}

	b[OffStickLX] = s.LX
	b[OffStickLY] = s.LY
	b[OffStickRX] = s.RX
	b[OffStickRY] = s.RY

	b[OffDPadUp] = pressureByte(s.Buttons&snapshot.DPadUp != 0)
	b[OffDPadRight] = pressureByte(s.Buttons&snapshot.DPadRight != 0)
	b[OffDPadDown] = pressureByte(s.Buttons&snapshot.DPadDown != 0)
	b[OffDPadLeft] = pressureByte(s.Buttons&snapshot.DPadLeft != 0)

	b[OffTriggerL2] = s.L2
	b[OffTriggerR2] = s.R2
	b[OffPressureL1] = pressureByte(s.Buttons&snapshot.L1 != 0)
	b[OffPressureR1] = pressureByte(s.Buttons&snapshot.R1 != 0)
	b[OffTriangle] = pressureByte(s.Buttons&snapshot.North != 0)
	b[OffCircle] = pressureByte(s.Buttons&snapshot.East != 0)
	b[OffCross] = pressureByte(s.Buttons&snapshot.South != 0)
	b[OffSquare] = pressureByte(s.Buttons&snapshot.West != 0)

	switch t {
	case TransportWireless:
		b[OffPlugged] = PluggedWireless
		b[OffConnection] = connectionClass(true, rumbleActive)
	default:
		b[OffPlugged] = PluggedUSB
		b[OffConnection] = connectionClass(false, rumbleActive)
	}
	b[OffBattery] = batteryLevel(s.BatteryPercent, s.Charging, s.Full)

	copy(b[OffSignature:OffSignature+4], Signature[:])

	accelX := scaleAccel(s.AccelX)
	accelY := scaleAccel(s.AccelY)
	accelZ := scaleAccel(s.AccelZ)
	gyro := scaleGyro(s.GyroX)

	motion := [4]uint16{accelX, accelY, accelZ, gyro}
	for i, v := range motion {
		off := OffMotion + i*2
		if t == TransportWireless {
			binary.BigEndian.PutUint16(b[off:off+2], v)
		} else {
			binary.LittleEndian.PutUint16(b[off:off+2], v)
		}
	}

	b[OffTrailer] = trailerByte
	return b
}

func pressureByte(pressed bool) uint8 {
	if pressed {
		return 0xFF
	}
	return 0x00
}

// batteryLevel derives the 6-step enum from a percentage, with override
// codes for charging/full (spec.md §4.1 thresholds: 5/15/35/60/85).
func batteryLevel(pct uint8, charging, full bool) uint8 {
	if full {
		return BatteryFull
	}
	if charging {
		return BatteryCharging
	}
	switch {
	case pct < 5:
		return 0x00
	case pct < 15:
		return 0x01
	case pct < 35:
		return 0x02
	case pct < 60:
		return 0x03
	case pct < 85:
		return 0x04
	default:
		return 0x05
	}
}

func connectionClass(wireless, rumbleActive bool) uint8 {
	if wireless {
		if rumbleActive {
			return ConnBTRumble
		}
		return ConnBT
	}
	if rumbleActive {
		return ConnUSBRumble
	}
	return ConnUSB
}

// scaleAccel converts a calibrated accelerometer value (AccelCountsPerG per
// g) into the report's 10-bit unsigned range centered at 512.
func scaleAccel(raw int16) uint16 {
	return scaleMotion(raw, snapshot.AccelCountsPerG, 512)
}

// scaleGyro converts a calibrated gyroscope value (GyroCountsPerDps per
// deg/s) into the report's 10-bit unsigned range centered at 498.
func scaleGyro(raw int16) uint16 {
	return scaleMotion(raw, snapshot.GyroCountsPerDps, 498)
}

func scaleMotion(raw int16, countsPerUnit int, center int) uint16 {
	// Map the full-scale calibrated range onto 10 bits (0..1023), clamped.
	scaled := center + (int(raw)*512)/countsPerUnit
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 1023 {
		scaled = 1023
	}
	return uint16(scaled)
}
