package frame

// Telemetry scaling. The wire carries compact fixed-point fields; these
// helpers convert to engineering units, bit-exact with deployed firmware.

// IntensityPercent converts the wire intensity (hundredths of a percent,
// little-endian) to a percentage. 0x2710 (10000) is the 100.00% saturation
// point; larger values clamp.
func IntensityPercent(raw uint16) float64 {
	if raw > 10000 {
		raw = 10000
	}
	return float64(raw) / 100.0
}

// IntensityRaw converts a percentage to the wire representation, clamped to
// [0, 100].
func IntensityRaw(percent float64) uint16 {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return uint16(percent*100.0 + 0.5)
}

// PowerWatts converts the wire power field (tenths of a watt) to watts.
func PowerWatts(raw uint16) float64 {
	return float64(raw) / 10.0
}

// SupplyVolts converts the wire supply-voltage field (0.2 V steps) to
// volts.
func SupplyVolts(raw uint8) float64 {
	return float64(raw) * 0.2
}

// RippleVolts converts the wire supply-ripple field (0.1 V steps) to
// volts.
func RippleVolts(raw uint8) float64 {
	return float64(raw) * 0.1
}
