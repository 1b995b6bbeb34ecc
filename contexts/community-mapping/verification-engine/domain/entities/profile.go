package entities

// VoterProfile is a projection of the identity subsystem's user record.
type VoterProfile struct {
	UserID                string
	IsCommunityLeader     bool
	VerifiedLandmarkCount int
	VerifiedRouteCount    int
	ReputationScore       int
}

// WithVerifiedContribution returns the profile after one more verified
// submission of the given kind.
func (p VoterProfile) WithVerifiedContribution(kind EntityKind) VoterProfile {
	switch kind {
	case EntityKindLandmark:
		p.VerifiedLandmarkCount++
	case EntityKindRoute:
		p.VerifiedRouteCount++
	}
	return p
}
