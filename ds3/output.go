package ds3

import (
	"errors"

	"github.com/rosettapad/rosettapad/snapshot"
)

var ErrOutputReportTooShort = errors.New("ds3: output report too short")

// ParseOutput consumes the console's output report (rumble + LED bitmask)
// and populates an OutputSnapshot. Never panics (spec.md §8 property 5):
// a too-short report is rejected with an error instead.
func ParseOutput(b []byte) (snapshot.OutputSnapshot, error) {
	var o snapshot.OutputSnapshot
	if len(b) <= OutOffRumbleLeft {
		return o, ErrOutputReportTooShort
	}
	if b[OutOffRumbleRightFlag] != 0 {
		o.RumbleRight = 0xFF
	}
	o.RumbleLeft = b[OutOffRumbleLeft]
	if len(b) > OutOffPlayerLEDs {
		o.PlayerLEDs = b[OutOffPlayerLEDs]
	}
	return o, nil
}
