package consensus

import (
	"math"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
)

// Aggregate reduces a ledger to decayed weight sums and a confidence score
// evaluated at now.
func Aggregate(votes []entities.Vote, now time.Time) entities.Aggregate {
	var total, yes, no float64
	for _, vote := range votes {
		effective := vote.Weight * Decay(hoursBetween(vote.CastAt, now))
		total += effective
		switch vote.Choice {
		case entities.ChoiceYes:
			yes += effective
		case entities.ChoiceNo:
			no += effective
		}
	}

	participation := math.Min(1, total/(RequiredWeight*participationFactor)) * scoreHalf
	agreement := (yes / safeTotal(total)) * scoreHalf
	return entities.Aggregate{
		TotalWeight:     total,
		YesWeight:       yes,
		NoWeight:        no,
		ConfidenceScore: math.Min(maxConfidence, participation+agreement),
	}
}

// safeTotal guards the agreement ratio against division by zero.
func safeTotal(total float64) float64 {
	return math.Max(1, total)
}
