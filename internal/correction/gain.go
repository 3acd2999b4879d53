package correction

// GainEstimate returns the ratio used to pick the sensor's analog gain stage.
// In HBR mode it is aux*1000/raw; otherwise aux*1000/corrected. A larger
// estimate means a higher gain stage. Non-positive inputs give 0.
func GainEstimate(hbr bool, raw, corrected, aux float64) float64 {
	den := corrected
	if hbr {
		den = raw
	}
	if den <= 0 || aux <= 0 {
		return 0
	}
	return aux * 1000 / den
}

// SelectGain returns the inverse gain for the last breakpoint the estimate
// exceeds, or inverse[0] if it exceeds none.
func SelectGain(estimate float64, points, inverse [4]float64) float64 {
	return inverse[gainIndex(estimate, points)]
}

func gainIndex(estimate float64, points [4]float64) int {
	idx := 0
	for i, p := range points {
		if estimate > p {
			idx = i
		}
	}
	return idx
}
