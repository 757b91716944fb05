package core

import "math"

// Decibel values derived from linear quantities are clamped to this range so
// zero or unbounded ratios stay representable in statistics.
const (
	MinDB = -200.0
	MaxDB = 200.0
)

// LinearToDB converts a power ratio to dB, clamped to [MinDB, MaxDB].
func LinearToDB(ratio float64) float64 {
	if math.IsNaN(ratio) || ratio <= 0 {
		return MinDB
	}
	return clampDB(10 * math.Log10(ratio))
}

// DBToLinear converts dB to a power ratio.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// MilliwattsToDBm converts a power in mW to dBm, clamped to [MinDB, MaxDB].
func MilliwattsToDBm(mw float64) float64 {
	return LinearToDB(mw)
}

// DBmToMilliwatts converts a power in dBm to mW.
func DBmToMilliwatts(dbm float64) float64 {
	return DBToLinear(dbm)
}

func clampDB(db float64) float64 {
	switch {
	case db < MinDB:
		return MinDB
	case db > MaxDB:
		return MaxDB
	default:
		return db
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
