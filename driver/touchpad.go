package driver

import "github.com/rosettapad/rosettapad/snapshot"

// TouchpadSensitivityPixels is the delta, in touchpad pixels, that maps to
// full stick deflection (spec.md §4.5: "≈400 pixels = full deflection").
const TouchpadSensitivityPixels = 400.0

// TouchpadTracker turns a single touch contact's movement since its initial
// touch point into right-stick axis overrides. One instance per physical
// controller; Reset whenever the contact goes inactive so the next touch
// starts a fresh origin.
type TouchpadTracker struct {
	active   bool
	originX  uint16
	originY  uint16
}

// Apply overrides RX/RY in s with the scaled touchpad delta when a contact
// is active, and does nothing otherwise. It has no enable switch of its own;
// the emulation is off only for a caller that does not call Apply.
func (t *TouchpadTracker) Apply(s *snapshot.InputSnapshot) {
	if !s.Touch1Active {
		t.active = false
		return
	}
	if !t.active {
		t.active = true
		t.originX = s.Touch1X
		t.originY = s.Touch1Y
	}
	dx := float64(int32(s.Touch1X) - int32(t.originX))
	dy := float64(int32(s.Touch1Y) - int32(t.originY))
	s.RX = scaleTouchDelta(dx)
	s.RY = scaleTouchDelta(dy)
}

func scaleTouchDelta(delta float64) uint8 {
	v := 128 + (delta/TouchpadSensitivityPixels)*128
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
