// Package driver defines the capability-tagged controller driver contract
// (spec.md §4.5): a small interface every physical-controller backend
// implements, discovered and dispatched through a name-keyed registry
// (Register/Get/List) the way the reference bridge dispatches device-type
// handlers.
package driver

import (
	"io"

	"github.com/rosettapad/rosettapad/snapshot"
)

// Metadata is the static block a driver declares about itself: identity and
// capability bitset. It carries no list of the transports a driver supports.
type Metadata struct {
	Name         string
	VendorID     uint16
	ProductID    uint16
	Capabilities snapshot.Capability
}

// Handle is an open physical controller connection. Drivers decide what's
// behind it (a gousb device, a file, …); the framework only ever closes it.
type Handle interface {
	io.Closer
}

// Driver is the capability table every controller backend implements. It is
// deliberately a small interface (Go's "dyn"/trait-object equivalent, per
// spec.md §9) rather than a class hierarchy: the scanner and the bridge
// never know which concrete driver they're holding.
type Driver interface {
	Metadata() Metadata

	Init() error
	Shutdown()

	// Match is a cheap predicate for the scanner: does this VID/PID belong
	// to this driver?
	Match(vid, pid uint16) bool

	// FindDevice scans for and opens a matching physical device. Returns
	// (nil, nil) if none is currently present.
	FindDevice() (Handle, error)

	// ReadInput blocks for one raw input report from h and returns the
	// number of bytes read. The framework owns the read loop; drivers own
	// only the endpoint/file behind the handle.
	ReadInput(h Handle, buf []byte) (int, error)

	// ParseInput is the driver's only source of truth for button mapping,
	// stick centering/deadzone, motion calibration, and touchpad-to-right-
	// stick emulation. Must populate the timestamp. The shipped drivers run
	// the touchpad emulation on every report with an active contact; no
	// driver consults state.Flags.TouchpadAsRightStick.
	ParseInput(raw []byte) (snapshot.InputSnapshot, error)

	// EmitOutput sends rumble and LED state to the physical controller.
	EmitOutput(h Handle, out snapshot.OutputSnapshot) error

	OnDisconnect()
	EnterLowPower(h Handle) error
}
