package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
)

func TestWeightTiers(t *testing.T) {
	tests := []struct {
		name    string
		profile entities.VoterProfile
		want    float64
	}{
		{"newcomer", entities.VoterProfile{}, BaseWeight},
		{"leader", entities.VoterProfile{IsCommunityLeader: true}, LeaderWeight},
		{"leader beats every other rule", entities.VoterProfile{IsCommunityLeader: true, VerifiedLandmarkCount: 10, ReputationScore: 100}, LeaderWeight},
		{"two verified landmarks", entities.VoterProfile{VerifiedLandmarkCount: 2}, TrustedWeight},
		{"two verified routes", entities.VoterProfile{VerifiedRouteCount: 2}, TrustedWeight},
		{"one of each", entities.VoterProfile{VerifiedLandmarkCount: 1, VerifiedRouteCount: 1}, TrustedWeight},
		{"single landmark only", entities.VoterProfile{VerifiedLandmarkCount: 1}, BaseWeight},
		{"single route only", entities.VoterProfile{VerifiedRouteCount: 1}, BaseWeight},
		{"reputation at threshold", entities.VoterProfile{ReputationScore: 70}, TrustedWeight},
		{"reputation below threshold", entities.VoterProfile{ReputationScore: 69}, BaseWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Weight(tt.profile))
		})
	}
}
