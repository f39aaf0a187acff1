// Package synthetic provides a deterministic driver that injects known
// InputSnapshots without real hardware. The run command falls back to it
// when no physical controller is found at startup.
package synthetic

import (
	"errors"
	"sync"
	"time"

	"github.com/rosettapad/rosettapad/driver"
	"github.com/rosettapad/rosettapad/snapshot"
)

func init() {
	driver.Register("synthetic", New())
}

type handle struct{}

func (handle) Close() error { return nil }

// Driver feeds back whatever snapshot was last pushed via Push, so tests
// can drive the emulator/transport layers without a physical device.
type Driver struct {
	mu   sync.Mutex
	next snapshot.InputSnapshot
}

// New returns a synthetic driver seeded with the neutral snapshot.
func New() *Driver {
	return &Driver{next: snapshot.Neutral()}
}

// Push sets the snapshot ParseInput will return on its next call,
// stamping the timestamp the way a real driver would.
func (d *Driver) Push(s snapshot.InputSnapshot) {
	s.TimestampMs = uint64(time.Now().UnixMilli())
	d.mu.Lock()
	d.next = s
	d.mu.Unlock()
}

func (d *Driver) Metadata() driver.Metadata {
	return driver.Metadata{
		Name:         "synthetic",
		Capabilities: snapshot.CapButtons | snapshot.CapSticks | snapshot.CapTriggers | snapshot.CapMotion | snapshot.CapTouchpad | snapshot.CapBattery,
	}
}

func (d *Driver) Init() error  { return nil }
func (d *Driver) Shutdown()    {}
func (d *Driver) Match(_, _ uint16) bool { return false }

func (d *Driver) FindDevice() (driver.Handle, error) { return handle{}, nil }

// ReadInput has no real endpoint to block on; it paces itself at roughly
// the wired input pump's cadence so callers get a steady stream of frames
// rather than a tight spin loop.
func (d *Driver) ReadInput(_ driver.Handle, buf []byte) (int, error) {
	time.Sleep(4 * time.Millisecond)
	if len(buf) == 0 {
		return 0, nil
	}
	return 1, nil
}

func (d *Driver) ParseInput(_ []byte) (snapshot.InputSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next, nil
}

func (d *Driver) EmitOutput(_ driver.Handle, _ snapshot.OutputSnapshot) error { return nil }

func (d *Driver) OnDisconnect() {}

func (d *Driver) EnterLowPower(_ driver.Handle) error { return errors.New("synthetic: no low power state") }
