package model

import "math"

// Confidence values are 0–1 floats everywhere inside the pipeline. The
// legacy rule service speaks a 0–100 integer scale; these helpers convert
// at that boundary so the two scales are never mixed internally.

// ConfidenceToPercent converts an internal 0–1 confidence to the legacy
// 0–100 integer scale, clamping out-of-range input.
func ConfidenceToPercent(c float64) int {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return int(math.Round(c * 100))
}

// PercentToConfidence converts a legacy 0–100 integer confidence to the
// internal 0–1 scale, clamping out-of-range input.
func PercentToConfidence(p int) float64 {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return float64(p) / 100
}
