package consensus

// Policy constants. The thresholds are tuned values and must not be
// rearranged into "equivalent" expressions.
const (
	RequiredWeight = 5.6
	DecayRate      = 0.005

	LeaderWeight  = 4.0
	TrustedWeight = 2.0
	BaseWeight    = 1.0

	trustedReputationScore = 70

	participationFactor = 1.5
	scoreHalf           = 50.0
	maxConfidence       = 100.0

	verifiedAgreement  = 0.8
	rejectedNoFraction = 0.6
	disputeMargin      = 3.0
	disputeMinTotal    = 3.0
	lopsidedMargin     = 4.0
	decisiveSideWeight = 4.0
)
