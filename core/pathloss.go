package core

import "math"

// FreeSpacePathLossDB returns the free-space path loss in dB for a distance in
// km at a carrier frequency in Hz:
//
//	92.45 + 20 log10(d_km) + 20 log10(f_GHz)
//
// Distances below 1 m are treated as 1 m. A zero frequency falls back to
// 2.4 GHz.
func FreeSpacePathLossDB(distanceKm float64, frequencyHz uint64) float64 {
	if distanceKm < 0.001 {
		distanceKm = 0.001
	}
	fGHz := float64(frequencyHz) / 1e9
	if fGHz <= 0 {
		fGHz = 2.4
	}
	return 92.45 + 20*math.Log10(distanceKm) + 20*math.Log10(fGHz)
}

// ReceivedPowerDBm applies gains and path loss to a transmit power.
func ReceivedPowerDBm(txPowerDBm, txGainDBi, rxGainDBi, pathLossDB float64) float64 {
	return txPowerDBm + txGainDBi + rxGainDBi - pathLossDB
}
