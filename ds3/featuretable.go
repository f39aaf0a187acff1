package ds3

import "sync"

// FeatureTable holds the six canned 64-byte feature-report responses keyed
// by report ID, plus the dynamic state two of them carry (the console's
// paired MAC and the bridge's own MAC). It has its own mutex, per spec.md
// §5 ("DS3 feature table ... its own mutex") — never shared with the
// input-report cache or the session state.
type FeatureTable struct {
	mu   sync.Mutex
	rows map[uint8][]byte
}

// NewFeatureTable builds the default table. ownMAC is the bridge's own
// wireless MAC, baked into the 0xF2 response at construction; it never
// changes after that (unlike the console's MAC in 0xF5, learned at runtime).
func NewFeatureTable(ownMAC [6]byte) *FeatureTable {
	t := &FeatureTable{rows: make(map[uint8][]byte)}

	capabilities := make([]byte, FeatureTableRow)
	capabilities[0] = FeatureCapabilities
	t.rows[FeatureCapabilities] = capabilities

	ownMACRow := make([]byte, FeatureTableRow)
	ownMACRow[0] = FeatureOwnMAC
	copy(ownMACRow[2:8], ownMAC[:])
	t.rows[FeatureOwnMAC] = ownMACRow

	pairingRow := make([]byte, FeatureTableRow)
	pairingRow[0] = FeaturePairing
	t.rows[FeaturePairing] = pairingRow

	calibrationRow := make([]byte, FeatureTableRow)
	calibrationRow[0] = FeatureCalibration
	t.rows[FeatureCalibration] = calibrationRow

	statusRow := make([]byte, FeatureTableRow)
	statusRow[0] = FeatureStatus
	t.rows[FeatureStatus] = statusRow

	echoRow := make([]byte, FeatureTableRow)
	echoRow[0] = FeatureConfigEcho
	t.rows[FeatureConfigEcho] = echoRow

	return t
}

// Get looks up a canned response by report ID. The returned slice is a copy;
// callers may not mutate the table through it.
func (t *FeatureTable) Get(id uint8) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(row))
	copy(out, row)
	return out, true
}

// SetPairingMAC overwrites the 6-byte MAC slot of the 0xF5 response so a
// subsequent GET_REPORT reflects the paired host.
func (t *FeatureTable) SetPairingMAC(mac [6]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copy(t.rows[FeaturePairing][2:8], mac[:])
}

// SetConfigEcho replaces the 0xEF response with the console's last write
// (the "echo" requirement is load-bearing for enumeration, per spec.md §4.1).
func (t *FeatureTable) SetConfigEcho(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row := t.rows[FeatureConfigEcho]
	row[0] = FeatureConfigEcho
	n := copy(row[1:], payload)
	for i := 1 + n; i < len(row); i++ {
		row[i] = 0
	}
}
