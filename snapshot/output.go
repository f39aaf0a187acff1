package snapshot

import "errors"

var errShortRead = errors.New("snapshot: short read")

// OutputSnapshot is the generic form of an inbound console output report:
// rumble motor intensities, lightbar color, and player-LED state. Produced
// by a console emulator (or the lightbar IPC file); consumed by the active
// driver's emit path.
type OutputSnapshot struct {
	RumbleLeft  uint8
	RumbleRight uint8

	LightbarRed   uint8
	LightbarGreen uint8
	LightbarBlue  uint8

	PlayerLEDs          uint8 // bitmask, bits 1..4 -> players 1..4
	PlayerLEDBrightness float32
}

const outputWireSize = 9

// MarshalBinary encodes the snapshot for the local IPC byte stream.
func (o OutputSnapshot) MarshalBinary() ([]byte, error) {
	b := make([]byte, outputWireSize)
	b[0] = o.RumbleLeft
	b[1] = o.RumbleRight
	b[2] = o.LightbarRed
	b[3] = o.LightbarGreen
	b[4] = o.LightbarBlue
	b[5] = o.PlayerLEDs
	brightness := uint32(o.PlayerLEDBrightness * 0xFFFFFF)
	b[6] = byte(brightness)
	b[7] = byte(brightness >> 8)
	b[8] = byte(brightness >> 16)
	return b, nil
}

// UnmarshalBinary decodes a snapshot produced by MarshalBinary.
func (o *OutputSnapshot) UnmarshalBinary(data []byte) error {
	if len(data) < outputWireSize {
		return errShortRead
	}
	o.RumbleLeft = data[0]
	o.RumbleRight = data[1]
	o.LightbarRed = data[2]
	o.LightbarGreen = data[3]
	o.LightbarBlue = data[4]
	o.PlayerLEDs = data[5]
	brightness := uint32(data[6]) | uint32(data[7])<<8 | uint32(data[8])<<16
	o.PlayerLEDBrightness = float32(brightness) / 0xFFFFFF
	return nil
}
