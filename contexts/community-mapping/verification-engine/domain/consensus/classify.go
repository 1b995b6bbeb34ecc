package consensus

import (
	"math"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
)

// Classify maps an aggregate and its ledger to a status. Rules are checked in
// priority order: verified, rejected, disputed, pending.
func Classify(aggregate entities.Aggregate, votes []entities.Vote) entities.Status {
	total := aggregate.TotalWeight
	yes := aggregate.YesWeight
	no := aggregate.NoWeight

	if total >= RequiredWeight && yes/safeTotal(total) >= verifiedAgreement {
		return entities.StatusVerified
	}
	if no >= RequiredWeight*rejectedNoFraction {
		return entities.StatusRejected
	}
	if math.Abs(yes-no) < disputeMargin && total >= disputeMinTotal && HasRealConflict(aggregate, votes) {
		return entities.StatusDisputed
	}
	return entities.StatusPending
}

// HasRealConflict reports whether a near-tie is a genuine split. A lopsided
// margin or a single leader vote on a leading side of weight >= 4 resolves the
// apparent tie.
func HasRealConflict(aggregate entities.Aggregate, votes []entities.Vote) bool {
	yes := aggregate.YesWeight
	no := aggregate.NoWeight
	diff := math.Abs(yes - no)

	if diff >= lopsidedMargin {
		return false
	}
	for _, vote := range votes {
		if vote.Weight < LeaderWeight {
			continue
		}
		switch vote.Choice {
		case entities.ChoiceYes:
			if yes >= decisiveSideWeight && yes > no {
				return false
			}
		case entities.ChoiceNo:
			if no >= decisiveSideWeight && no > yes {
				return false
			}
		}
	}
	return diff < disputeMargin && aggregate.TotalWeight >= disputeMinTotal
}

// Evaluate runs the full pipeline over a ledger at now.
func Evaluate(votes []entities.Vote, now time.Time) (entities.Aggregate, entities.Status) {
	aggregate := Aggregate(votes, now)
	return aggregate, Classify(aggregate, votes)
}
