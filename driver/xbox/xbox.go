// Package xbox implements the generic Xbox-layout controller driver:
// raw-HID discovery and parsing for the common wired Xbox-360/Xbox One HID
// report shape, via github.com/google/gousb (the same library the
// reference pack's USB-accessory bridge uses for raw control/interrupt
// transfers).
package xbox

import (
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/rosettapad/rosettapad/driver"
	"github.com/rosettapad/rosettapad/snapshot"
)

const (
	vendorMicrosoft = 0x045E
	productXboxOne  = 0x02FF

	interruptInEndpoint = 0x81
	reportSize          = 20
)

func init() {
	driver.Register("xbox", New())
}

// Driver talks to a generic Microsoft-layout gamepad over a raw USB
// interrupt-IN endpoint.
type Driver struct {
	ctx   *gousb.Context
	touch driver.TouchpadTracker
}

// New returns an uninitialized xbox driver; call Init before FindDevice.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) Metadata() driver.Metadata {
	return driver.Metadata{
		Name:         "xbox",
		VendorID:     vendorMicrosoft,
		ProductID:    productXboxOne,
		Capabilities: snapshot.CapButtons | snapshot.CapSticks | snapshot.CapTriggers | snapshot.CapRumble,
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
	return vid == vendorMicrosoft && pid == productXboxOne
}

// usbHandle wraps the open gousb device and the claimed interface so
// Shutdown/Close can release both in order.
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

func (d *Driver) FindDevice() (driver.Handle, error) {
	if d.ctx == nil {
		return nil, fmt.Errorf("xbox: driver not initialized")
	}
	devs, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == vendorMicrosoft && uint16(desc.Product) == productXboxOne
	})
	if err != nil {
		return nil, fmt.Errorf("xbox: scan failed: %w", err)
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
		return nil, fmt.Errorf("xbox: claim config: %w", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		_ = cfg.Close()
		_ = dev.Close()
		return nil, fmt.Errorf("xbox: claim interface: %w", err)
	}
	in, err := intf.InEndpoint(interruptInEndpoint)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		_ = dev.Close()
		return nil, fmt.Errorf("xbox: open IN endpoint: %w", err)
	}

	return &usbHandle{
		dev: dev,
		in:  in,
		done: func() {
			intf.Close()
			_ = cfg.Close()
		},
	}, nil
}

func (d *Driver) ReadInput(h driver.Handle, buf []byte) (int, error) {
	uh, ok := h.(*usbHandle)
	if !ok || uh.in == nil {
		return 0, fmt.Errorf("xbox: wrong handle type")
	}
	return uh.in.Read(buf)
}

func (d *Driver) ParseInput(raw []byte) (snapshot.InputSnapshot, error) {
	if len(raw) < reportSize {
		return snapshot.InputSnapshot{}, fmt.Errorf("xbox: short report: %d bytes", len(raw))
	}
	s := snapshot.Neutral()

	buttons := uint16(raw[2]) | uint16(raw[3])<<8
	if buttons&0x0001 != 0 {
		s.Buttons |= snapshot.DPadUp
	}
	if buttons&0x0002 != 0 {
		s.Buttons |= snapshot.DPadDown
	}
	if buttons&0x0004 != 0 {
		s.Buttons |= snapshot.DPadLeft
	}
	if buttons&0x0008 != 0 {
		s.Buttons |= snapshot.DPadRight
	}
	if buttons&0x0010 != 0 {
		s.Buttons |= snapshot.Start
	}
	if buttons&0x0020 != 0 {
		s.Buttons |= snapshot.Select
	}
	if buttons&0x0040 != 0 {
		s.Buttons |= snapshot.L3
	}
	if buttons&0x0080 != 0 {
		s.Buttons |= snapshot.R3
	}
	if buttons&0x0100 != 0 {
		s.Buttons |= snapshot.L1
	}
	if buttons&0x0200 != 0 {
		s.Buttons |= snapshot.R1
	}
	if buttons&0x1000 != 0 {
		s.Buttons |= snapshot.South
	}
	if buttons&0x2000 != 0 {
		s.Buttons |= snapshot.East
	}
	if buttons&0x4000 != 0 {
		s.Buttons |= snapshot.West
	}
	if buttons&0x8000 != 0 {
		s.Buttons |= snapshot.North
	}

	s.L2 = raw[4]
	s.R2 = raw[5]

	s.LX = centerAxis(int16(raw[6]) | int16(raw[7])<<8)
	s.LY = centerAxis(int16(raw[8]) | int16(raw[9])<<8)
	s.RX = centerAxis(int16(raw[10]) | int16(raw[11])<<8)
	s.RY = centerAxis(int16(raw[12]) | int16(raw[13])<<8)

	d.touch.Apply(&s)

	s.TimestampMs = uint64(time.Now().UnixMilli())
	return s, nil
}

// centerAxis maps a signed 16-bit joystick sample onto the DS3 wire's
// unsigned 8-bit range centered at 0x80, with a small deadzone.
func centerAxis(raw int16) uint8 {
	const deadzone = 1500
	if raw > -deadzone && raw < deadzone {
		raw = 0
	}
	return uint8(int32(raw)/256 + 128)
}

func (d *Driver) EmitOutput(h driver.Handle, out snapshot.OutputSnapshot) error {
	uh, ok := h.(*usbHandle)
	if !ok {
		return fmt.Errorf("xbox: wrong handle type")
	}
	if uh.out == nil {
		return nil
	}
	report := []byte{0x00, 0x08, 0x00, out.RumbleLeft, out.RumbleRight, 0x00, 0x00, 0x00}
	_, err := uh.out.Write(report)
	return err
}

func (d *Driver) OnDisconnect() {}

func (d *Driver) EnterLowPower(_ driver.Handle) error {
	return nil
}
