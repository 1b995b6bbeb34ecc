package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
)

func classifyLedger(votes ...entities.Vote) entities.Status {
	_, status := Evaluate(votes, evalTime)
	return status
}

func TestClassifyEmptyLedgerIsPending(t *testing.T) {
	assert.Equal(t, entities.StatusPending, classifyLedger())
}

func TestClassifyTwoLeadersYesIsVerified(t *testing.T) {
	votes := []entities.Vote{
		vote("leader-1", entities.ChoiceYes, LeaderWeight, 0),
		vote("leader-2", entities.ChoiceYes, LeaderWeight, 0),
	}
	agg := Aggregate(votes, evalTime)
	assert.Equal(t, 8.0, agg.TotalWeight)
	assert.Equal(t, 8.0, agg.YesWeight)
	assert.Equal(t, 0.0, agg.NoWeight)
	assert.Equal(t, entities.StatusVerified, Classify(agg, votes))
}

func TestClassifyLeaderNoVotesReject(t *testing.T) {
	assert.Equal(t, entities.StatusRejected, classifyLedger(
		vote("leader-1", entities.ChoiceNo, LeaderWeight, 0),
	))
	assert.Equal(t, entities.StatusRejected, classifyLedger(
		vote("leader-1", entities.ChoiceNo, LeaderWeight, 0),
		vote("leader-2", entities.ChoiceNo, LeaderWeight, 0),
	))
}

func TestClassifyRejectedThresholdBoundary(t *testing.T) {
	// three base "no" votes reach 3.0, below 5.6*0.6.
	assert.Equal(t, entities.StatusPending, classifyLedger(
		vote("a", entities.ChoiceNo, BaseWeight, 0),
		vote("b", entities.ChoiceNo, BaseWeight, 0),
		vote("c", entities.ChoiceNo, BaseWeight, 0),
	))
	assert.Equal(t, entities.StatusRejected, classifyLedger(
		vote("a", entities.ChoiceNo, TrustedWeight, 0),
		vote("b", entities.ChoiceNo, TrustedWeight, 0),
	))
}

func TestClassifyBaseTieBelowMinimumTotalStaysPending(t *testing.T) {
	assert.Equal(t, entities.StatusPending, classifyLedger(
		vote("a", entities.ChoiceYes, BaseWeight, 0),
		vote("b", entities.ChoiceNo, BaseWeight, 0),
	))
}

func TestClassifyThirdBaseVoteMakesDispute(t *testing.T) {
	assert.Equal(t, entities.StatusDisputed, classifyLedger(
		vote("a", entities.ChoiceYes, BaseWeight, 0),
		vote("b", entities.ChoiceNo, BaseWeight, 0),
		vote("c", entities.ChoiceYes, BaseWeight, 0),
	))
}

func TestClassifyLeaderResolvesNearTie(t *testing.T) {
	votes := []entities.Vote{
		vote("a", entities.ChoiceYes, BaseWeight, 0),
		vote("b", entities.ChoiceNo, BaseWeight, 0),
		vote("c", entities.ChoiceYes, BaseWeight, 0),
		vote("leader", entities.ChoiceYes, LeaderWeight, 0),
	}
	agg := Aggregate(votes, evalTime)
	assert.Equal(t, 6.0, agg.YesWeight)
	assert.Equal(t, 1.0, agg.NoWeight)
	assert.False(t, HasRealConflict(agg, votes))
	assert.Equal(t, entities.StatusVerified, Classify(agg, votes))
}

func TestHasRealConflictLopsidedMargin(t *testing.T) {
	agg := entities.Aggregate{TotalWeight: 6, YesWeight: 5, NoWeight: 1}
	assert.False(t, HasRealConflict(agg, nil))
}

func TestHasRealConflictDecisiveLeaderOnLeadingSide(t *testing.T) {
	votes := []entities.Vote{
		vote("leader", entities.ChoiceNo, LeaderWeight, 0),
		vote("a", entities.ChoiceYes, TrustedWeight, 0),
		vote("b", entities.ChoiceYes, BaseWeight, 0),
	}
	agg := entities.Aggregate{TotalWeight: 7, YesWeight: 3, NoWeight: 4}
	assert.False(t, HasRealConflict(agg, votes))
}

func TestHasRealConflictLeaderOnTrailingSideDoesNotResolve(t *testing.T) {
	votes := []entities.Vote{
		vote("leader", entities.ChoiceYes, LeaderWeight, 0),
		vote("a", entities.ChoiceNo, TrustedWeight, 0),
		vote("b", entities.ChoiceNo, TrustedWeight, 0),
		vote("c", entities.ChoiceNo, BaseWeight, 0),
	}
	agg := entities.Aggregate{TotalWeight: 9, YesWeight: 4, NoWeight: 5}
	assert.True(t, HasRealConflict(agg, votes))
}

func TestHasRealConflictDecayedLeaderSideBelowFourDoesNotResolve(t *testing.T) {
	votes := []entities.Vote{
		vote("leader", entities.ChoiceYes, LeaderWeight, 0),
		vote("a", entities.ChoiceNo, TrustedWeight, 0),
	}
	agg := entities.Aggregate{TotalWeight: 5.5, YesWeight: 3.5, NoWeight: 2}
	assert.True(t, HasRealConflict(agg, votes))
}

func TestHasRealConflictRequiresMinimumTotal(t *testing.T) {
	agg := entities.Aggregate{TotalWeight: 2, YesWeight: 1, NoWeight: 1}
	assert.False(t, HasRealConflict(agg, nil))
}
