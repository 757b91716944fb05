package core

import "math"

// EffectiveNoise returns the noise term a contribution is measured against:
// the larger of its noise floor and the receiver sensitivity, both in mW.
func EffectiveNoise(noiseFloorMW, receiverSensitivityMW float64) float64 {
	return math.Max(noiseFloorMW, receiverSensitivityMW)
}

// ComputeSINR returns the linear signal to interference plus noise ratio for a
// signal of rxPowerMW measured against noiseMW and interferenceMW. A zero
// denominator yields +Inf for a positive signal and 0 otherwise.
func ComputeSINR(rxPowerMW, noiseMW, interferenceMW float64) float64 {
	denom := noiseMW + interferenceMW
	if denom <= 0 {
		if rxPowerMW > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return rxPowerMW / denom
}
