package ds3

import (
	"sync"

	"github.com/rosettapad/rosettapad/snapshot"
)

// Emulator is the transport-independent DS3 protocol state machine: it
// holds the feature table and the most recently built input report, and
// answers the console's enumeration/configuration traffic the way a real
// DualShock 3 would (spec.md §4.1).
type Emulator struct {
	features *FeatureTable

	cacheMu     sync.Mutex
	cachedInput []byte

	// OnPairing is invoked with the console's wireless MAC each time a
	// SET_REPORT 0xF5 of at least 8 bytes arrives. May be nil.
	OnPairing func(consoleMAC [6]byte)
	// OnEnable is invoked when SET_REPORT 0xF4 arrives (the console has
	// "activated" the device). On wireless transport this gates the
	// input-report cadence from slow-init to full-rate. May be nil.
	OnEnable func()
}

// New builds an emulator with the bridge's own wireless MAC baked into the
// 0xF2 feature response.
func New(ownMAC [6]byte) *Emulator {
	return &Emulator{features: NewFeatureTable(ownMAC)}
}

// GetFeature looks up a canned response by report ID. The bool is false for
// unknown IDs; callers must answer with a HID handshake "invalid report ID"
// error rather than treat it as a transport failure (spec.md §4.1).
func (e *Emulator) GetFeature(id uint8) ([]byte, bool) {
	return e.features.Get(id)
}

// HandleSetReport mutates emulator state according to report ID. Unknown
// IDs are accepted without error: the console is permitted to probe.
func (e *Emulator) HandleSetReport(id uint8, payload []byte) error {
	switch id {
	case FeaturePairing:
		if len(payload) < 8 {
			return nil
		}
		var mac [6]byte
		copy(mac[:], payload[2:8])
		e.features.SetPairingMAC(mac)
		if e.OnPairing != nil {
			e.OnPairing(mac)
		}
	case FeatureConfigEcho:
		e.features.SetConfigEcho(payload)
	case FeatureEnable:
		if e.OnEnable != nil {
			e.OnEnable()
		}
	}
	return nil
}

// BuildInput renders a fresh input report from the snapshot and caches it
// under the report's own mutex (spec.md §5: "DS3 input-report cache ...
// mutex; send uses a stack-local copy").
func (e *Emulator) BuildInput(s snapshot.InputSnapshot, t Transport, rumbleActive bool) []byte {
	report := BuildInput(s, t, rumbleActive)
	e.cacheMu.Lock()
	e.cachedInput = report
	e.cacheMu.Unlock()
	out := make([]byte, len(report))
	copy(out, report)
	return out
}

// LastInput returns a copy of the most recently built input report, or nil
// if none has been built yet.
func (e *Emulator) LastInput() []byte {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.cachedInput == nil {
		return nil
	}
	out := make([]byte, len(e.cachedInput))
	copy(out, e.cachedInput)
	return out
}

// ParseOutput consumes an output report and returns the generic snapshot.
func (e *Emulator) ParseOutput(b []byte) (snapshot.OutputSnapshot, error) {
	return ParseOutput(b)
}
