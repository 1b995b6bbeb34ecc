package consensus

import "wayfinder/contexts/community-mapping/verification-engine/domain/entities"

// Weight maps a voter profile, as it is at cast time, to a vote weight.
func Weight(profile entities.VoterProfile) float64 {
	if profile.IsCommunityLeader {
		return LeaderWeight
	}
	landmarks := profile.VerifiedLandmarkCount
	routes := profile.VerifiedRouteCount
	if landmarks >= 2 || routes >= 2 || (landmarks >= 1 && routes >= 1) {
		return TrustedWeight
	}
	if profile.ReputationScore >= trustedReputationScore {
		return TrustedWeight
	}
	return BaseWeight
}
