package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerUpsertReplacesInPlace(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger := NewLedger(nil)

	assert.False(t, ledger.Upsert(Vote{VoterID: "a", Choice: ChoiceYes, Weight: 1, CastAt: t0}))
	assert.False(t, ledger.Upsert(Vote{VoterID: "b", Choice: ChoiceYes, Weight: 2, CastAt: t0.Add(time.Minute)}))
	assert.True(t, ledger.Upsert(Vote{VoterID: "a", Choice: ChoiceNo, Weight: 4, CastAt: t0.Add(time.Hour)}))

	votes := ledger.Votes()
	require.Len(t, votes, 2)
	assert.Equal(t, "a", votes[0].VoterID)
	assert.Equal(t, ChoiceNo, votes[0].Choice)
	assert.Equal(t, 4.0, votes[0].Weight)
	assert.Equal(t, t0.Add(time.Hour), votes[0].CastAt)
	assert.Equal(t, t0, votes[0].FirstCastAt)
	assert.Equal(t, "b", votes[1].VoterID)
}

func TestNewLedgerCollapsesDuplicateVoters(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger := NewLedger([]Vote{
		{VoterID: "a", Choice: ChoiceYes, CastAt: t0},
		{VoterID: "a", Choice: ChoiceNo, CastAt: t0.Add(time.Minute)},
	})
	require.Equal(t, 1, ledger.Len())
	vote, ok := ledger.Get("a")
	require.True(t, ok)
	assert.Equal(t, ChoiceNo, vote.Choice)
}

func TestLedgerCloneIsIndependent(t *testing.T) {
	ledger := NewLedger([]Vote{{VoterID: "a", Choice: ChoiceYes}})
	clone := ledger.Clone()
	clone.Upsert(Vote{VoterID: "b", Choice: ChoiceNo})

	assert.Equal(t, 1, ledger.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestZeroLedgerAcceptsVotes(t *testing.T) {
	var ledger Ledger
	ledger.Upsert(Vote{VoterID: "a", Choice: ChoiceYes})
	assert.Equal(t, 1, ledger.Len())
}

func TestVerifiedContributionBumpsMatchingCounter(t *testing.T) {
	profile := VoterProfile{UserID: "u"}
	profile = profile.WithVerifiedContribution(EntityKindLandmark)
	profile = profile.WithVerifiedContribution(EntityKindRoute)
	profile = profile.WithVerifiedContribution(EntityKindRoute)
	assert.Equal(t, 1, profile.VerifiedLandmarkCount)
	assert.Equal(t, 2, profile.VerifiedRouteCount)
}
