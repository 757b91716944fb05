package core

// LinkQuality is a coarse, human-readable classification of link quality
// derived from the SINR.
type LinkQuality string

const (
	LinkQualityDown      LinkQuality = "down"
	LinkQualityPoor      LinkQuality = "poor"
	LinkQualityFair      LinkQuality = "fair"
	LinkQualityGood      LinkQuality = "good"
	LinkQualityExcellent LinkQuality = "excellent"
)

// ClassifySINR buckets a SINR in dB. Thresholds are soft and for
// reporting only; acceptance uses the configured SINR threshold.
func ClassifySINR(sinrDB float64) LinkQuality {
	switch {
	case sinrDB < 0:
		return LinkQualityDown
	case sinrDB < 5:
		return LinkQualityPoor
	case sinrDB < 10:
		return LinkQualityFair
	case sinrDB < 20:
		return LinkQualityGood
	default:
		return LinkQualityExcellent
	}
}
