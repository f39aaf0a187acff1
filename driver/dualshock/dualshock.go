// Package dualshock implements the generic DualShock/DS4-layout controller
// driver: raw-HID discovery, parsing, motion calibration, and rumble/LED
// output for a real DS4-class pad used as RosettaPad's input source (not
// to be confused with package ds3, which emulates a DS3 *to the console*).
package dualshock

import (
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/rosettapad/rosettapad/driver"
	"github.com/rosettapad/rosettapad/snapshot"
)

const (
	vendorSony  = 0x054C
	productDS4  = 0x05C4
	endpointIn  = 0x84
	endpointOut = 0x03

	reportSize             = 64
	calibrationFeatureSize = 41
)

func init() {
	driver.Register("dualshock4", New())
}

type usbHandle struct {
	dev  *gousb.Device
	done func()
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

func (h *usbHandle) Close() error {
	if h.done != nil {
		h.done()
	}
	if h.dev != nil {
		return h.dev.Close()
	}
	return nil
}

// Driver talks to a real DualShock 4 as a generic capability-tagged input
// source, with motion calibration read at discovery per spec.md §4.5.
type Driver struct {
	ctx         *gousb.Context
	calibration driver.Calibration
	touch       driver.TouchpadTracker
}

func New() *Driver { return &Driver{calibration: driver.DefaultCalibration()} }

func (d *Driver) Metadata() driver.Metadata {
	return driver.Metadata{
		Name:      "dualshock4",
		VendorID:  vendorSony,
		ProductID: productDS4,
		Capabilities: snapshot.CapButtons | snapshot.CapSticks | snapshot.CapTriggers |
			snapshot.CapRumble | snapshot.CapMotion | snapshot.CapTouchpad |
			snapshot.CapLightbar | snapshot.CapBattery,
	}
}

func (d *Driver) Init() error {
	d.ctx = gousb.NewContext()
	return nil
}

func (d *Driver) Shutdown() {
	if d.ctx != nil {
		_ = d.ctx.Close()
		d.ctx = nil
	}
}

func (d *Driver) Match(vid, pid uint16) bool {
	return vid == vendorSony && pid == productDS4
}

func (d *Driver) FindDevice() (driver.Handle, error) {
	if d.ctx == nil {
		return nil, fmt.Errorf("dualshock4: driver not initialized")
	}
	devs, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == vendorSony && uint16(desc.Product) == productDS4
	})
	if err != nil {
		return nil, fmt.Errorf("dualshock4: scan failed: %w", err)
	}
	if len(devs) == 0 {
		return nil, nil
	}
	for _, extra := range devs[1:] {
		_ = extra.Close()
	}
	dev := devs[0]

	cfg, err := dev.Config(1)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("dualshock4: claim config: %w", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		_ = cfg.Close()
		_ = dev.Close()
		return nil, fmt.Errorf("dualshock4: claim interface: %w", err)
	}
	in, err := intf.InEndpoint(endpointIn)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		_ = dev.Close()
		return nil, fmt.Errorf("dualshock4: open IN endpoint: %w", err)
	}
	out, err := intf.OutEndpoint(endpointOut)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		_ = dev.Close()
		return nil, fmt.Errorf("dualshock4: open OUT endpoint: %w", err)
	}

	buf := make([]byte, calibrationFeatureSize)
	if n, cerr := dev.Control(0xA1, 0x01, (0x03<<8)|0x02, 0, buf); cerr == nil && n > 0 {
		d.calibration = driver.DecodeCalibration(buf[:n])
	}

	return &usbHandle{
		dev: dev,
		in:  in,
		out: out,
		done: func() {
			intf.Close()
			_ = cfg.Close()
		},
	}, nil
}

func (d *Driver) ReadInput(h driver.Handle, buf []byte) (int, error) {
	uh, ok := h.(*usbHandle)
	if !ok || uh.in == nil {
		return 0, fmt.Errorf("dualshock4: wrong handle type")
	}
	return uh.in.Read(buf)
}

func (d *Driver) ParseInput(raw []byte) (snapshot.InputSnapshot, error) {
	if len(raw) < reportSize {
		return snapshot.InputSnapshot{}, fmt.Errorf("dualshock4: short report: %d bytes", len(raw))
	}
	s := snapshot.Neutral()

	s.LX, s.LY, s.RX, s.RY = raw[1], raw[2], raw[3], raw[4]

	dpad := raw[5] & 0x0F
	switch dpad {
	case 0:
		s.Buttons |= snapshot.DPadUp
	case 1:
		s.Buttons |= snapshot.DPadUp | snapshot.DPadRight
	case 2:
		s.Buttons |= snapshot.DPadRight
	case 3:
		s.Buttons |= snapshot.DPadRight | snapshot.DPadDown
	case 4:
		s.Buttons |= snapshot.DPadDown
	case 5:
		s.Buttons |= snapshot.DPadDown | snapshot.DPadLeft
	case 6:
		s.Buttons |= snapshot.DPadLeft
	case 7:
		s.Buttons |= snapshot.DPadLeft | snapshot.DPadUp
	}

	if raw[5]&0x10 != 0 {
		s.Buttons |= snapshot.West
	}
	if raw[5]&0x20 != 0 {
		s.Buttons |= snapshot.South
	}
	if raw[5]&0x40 != 0 {
		s.Buttons |= snapshot.East
	}
	if raw[5]&0x80 != 0 {
		s.Buttons |= snapshot.North
	}

	if raw[6]&0x01 != 0 {
		s.Buttons |= snapshot.L1
	}
	if raw[6]&0x02 != 0 {
		s.Buttons |= snapshot.R1
	}
	if raw[6]&0x04 != 0 {
		s.Buttons |= snapshot.L2Button
	}
	if raw[6]&0x08 != 0 {
		s.Buttons |= snapshot.R2Button
	}
	if raw[6]&0x10 != 0 {
		s.Buttons |= snapshot.Select
	}
	if raw[6]&0x20 != 0 {
		s.Buttons |= snapshot.Start
	}
	if raw[6]&0x40 != 0 {
		s.Buttons |= snapshot.L3
	}
	if raw[6]&0x80 != 0 {
		s.Buttons |= snapshot.R3
	}
	if raw[7]&0x01 != 0 {
		s.Buttons |= snapshot.Home
	}
	if raw[7]&0x02 != 0 {
		s.Buttons |= snapshot.Touchpad
	}

	s.L2 = raw[8]
	s.R2 = raw[9]

	gyroX := int16(raw[13]) | int16(raw[14])<<8
	gyroY := int16(raw[15]) | int16(raw[16])<<8
	gyroZ := int16(raw[17]) | int16(raw[18])<<8
	accelX := int16(raw[19]) | int16(raw[20])<<8
	accelY := int16(raw[21]) | int16(raw[22])<<8
	accelZ := int16(raw[23]) | int16(raw[24])<<8

	s.GyroX = d.calibration.Apply(3, gyroX)
	s.GyroY = d.calibration.Apply(4, gyroY)
	s.GyroZ = d.calibration.Apply(5, gyroZ)
	s.AccelX = d.calibration.Apply(0, accelX)
	s.AccelY = d.calibration.Apply(1, accelY)
	s.AccelZ = d.calibration.Apply(2, accelZ)

	s.Touch1Active = raw[35]&0x80 == 0
	s.Touch1X, s.Touch1Y = decodeTouch(raw[36:39])
	s.Touch2Active = raw[39]&0x80 == 0
	s.Touch2X, s.Touch2Y = decodeTouch(raw[40:43])

	d.touch.Apply(&s)

	s.BatteryPercent = batteryPercent(raw[30])
	s.Charging = raw[30]&0x10 != 0

	s.TimestampMs = uint64(time.Now().UnixMilli())
	return s, nil
}

func decodeTouch(b []byte) (x, y uint16) {
	x = uint16(b[0]) | (uint16(b[1]&0x0F) << 8)
	y = (uint16(b[1]) >> 4) | (uint16(b[2]) << 4)
	return x, y
}

func batteryPercent(b byte) uint8 {
	level := b & 0x0F
	pct := int(level) * 100 / 11
	if pct > 100 {
		pct = 100
	}
	return uint8(pct)
}

func (d *Driver) EmitOutput(h driver.Handle, out snapshot.OutputSnapshot) error {
	uh, ok := h.(*usbHandle)
	if !ok {
		return fmt.Errorf("dualshock4: wrong handle type")
	}
	if uh.out == nil {
		return nil
	}
	report := make([]byte, 32)
	report[0] = 0x05
	report[1] = 0xFF
	report[4] = out.RumbleRight
	report[5] = out.RumbleLeft
	report[6] = out.LightbarRed
	report[7] = out.LightbarGreen
	report[8] = out.LightbarBlue
	_, err := uh.out.Write(report)
	return err
}

func (d *Driver) OnDisconnect() {}

func (d *Driver) EnterLowPower(_ driver.Handle) error { return nil }
