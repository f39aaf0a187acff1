package driver

import "math"

// Calibration holds the per-axis zero-bias and sensitivity scale derived
// from a controller's vendor-specific calibration feature report (spec.md
// §3/§4.5). Axis order: accelX, accelY, accelZ, gyroX, gyroY, gyroZ.
type Calibration struct {
	Bias  [6]int16
	Numer [6]int32
	Denom [6]int32
}

// DefaultCalibration returns an identity-ish calibration used when a driver
// has no motion sensors, or discovery failed to read the real calibration
// report. Sensitivity is sensible but not vendor-accurate, roughly
// full-scale / max-signed-16 per spec.md §3.
func DefaultCalibration() Calibration {
	var c Calibration
	for i := range c.Denom {
		c.Numer[i] = math.MaxInt16
		c.Denom[i] = math.MaxInt16
	}
	return c
}

// Apply converts a raw sensor sample for axis i into calibrated counts,
// falling back to the identity transform if the denominator is zero
// (spec.md §3 invariant: denominator must never be used as zero).
func (c Calibration) Apply(axis int, raw int16) int16 {
	denom := c.Denom[axis]
	if denom == 0 {
		return raw
	}
	v := (int64(raw) - int64(c.Bias[axis])) * int64(c.Numer[axis]) / int64(denom)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// DecodeCalibration parses the 41-octet vendor-specific calibration feature
// report read from the physical controller at discovery. The layout here
// follows the common 6-axis bias+scale convention; a driver with a
// different vendor layout should decode it itself and construct Calibration
// directly.
func DecodeCalibration(report []byte) Calibration {
	if len(report) < 41 {
		return DefaultCalibration()
	}
	c := DefaultCalibration()
	off := 1 // byte 0 is typically the report ID
	for axis := 0; axis < 6; axis++ {
		bias := int16(report[off]) | int16(report[off+1])<<8
		numer := int32(report[off+2]) | int32(report[off+3])<<8
		denom := int32(report[off+4]) | int32(report[off+5])<<8
		c.Bias[axis] = bias
		if denom != 0 {
			c.Numer[axis] = numer
			c.Denom[axis] = denom
		}
		off += 6
	}
	return c
}
