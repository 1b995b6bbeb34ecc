package consensus

import (
	"math"
	"time"
)

// Decay returns the multiplicative factor for a vote that is ageHours old.
// Negative ages (clock skew between writers) count as zero.
func Decay(ageHours float64) float64 {
	if ageHours <= 0 {
		return 1
	}
	return math.Exp(-DecayRate * ageHours)
}

func hoursBetween(from time.Time, to time.Time) float64 {
	return to.Sub(from).Hours()
}
