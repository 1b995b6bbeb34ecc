package commands

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/adapters/memory"
	"wayfinder/contexts/community-mapping/verification-engine/domain/consensus"
	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	domainerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"
	"wayfinder/contexts/community-mapping/verification-engine/ports"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var castTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingObserver struct {
	mu          sync.Mutex
	results     map[string]int
	transitions []string
	verified    map[entities.EntityKind]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		results:  make(map[string]int),
		verified: make(map[entities.EntityKind]int),
	}
}

func (o *recordingObserver) ObserveVote(result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[result]++
}

func (o *recordingObserver) ObserveTransition(from entities.Status, to entities.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, string(from)+"->"+string(to))
}

func (o *recordingObserver) ObserveVerifiedContribution(kind entities.EntityKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verified[kind]++
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, entityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, entityID)
	return nil
}

type fixture struct {
	store    *memory.Store
	clock    *clockwork.FakeClock
	observer *recordingObserver
	cache    *recordingCache
	useCase  VerificationUseCase
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore(nil)
	clock := clockwork.NewFakeClockAt(castTime)
	observer := newRecordingObserver()
	cache := &recordingCache{}

	store.SetEntity(entities.NewPendingEntity("lm-1", entities.EntityKindLandmark, "Old well", "alice", castTime.Add(-time.Hour)))
	store.SetEntity(entities.NewPendingEntity("rt-1", entities.EntityKindRoute, "Ridge path", "alice", castTime.Add(-time.Hour)))
	store.SetVoterProfile(entities.VoterProfile{UserID: "alice"})
	store.SetVoterProfile(entities.VoterProfile{UserID: "leader-1", IsCommunityLeader: true})
	store.SetVoterProfile(entities.VoterProfile{UserID: "leader-2", IsCommunityLeader: true})
	store.SetVoterProfile(entities.VoterProfile{UserID: "trusted-1", ReputationScore: 85})
	for _, id := range []string{"member-1", "member-2", "member-3", "member-4"} {
		store.SetVoterProfile(entities.VoterProfile{UserID: id})
	}

	return fixture{
		store:    store,
		clock:    clock,
		observer: observer,
		cache:    cache,
		useCase: VerificationUseCase{
			Transactor: store,
			Cache:      cache,
			Observer:   observer,
			Clock:      clock,
			IDGen:      store,
		},
	}
}

func (f fixture) cast(t *testing.T, entityID string, voterID string, choice entities.Choice) CastVoteResult {
	t.Helper()
	result, err := f.useCase.CastVote(context.Background(), CastVoteCommand{
		EntityID: entityID,
		VoterID:  voterID,
		Choice:   choice,
	})
	require.NoError(t, err)
	return result
}

func TestCastVoteTwoLeadersVerify(t *testing.T) {
	f := newFixture(t)

	first := f.cast(t, "lm-1", "leader-1", entities.ChoiceYes)
	assert.Equal(t, entities.StatusPending, first.Status)
	assert.Equal(t, consensus.LeaderWeight, first.VoterWeight)

	second := f.cast(t, "lm-1", "leader-2", entities.ChoiceYes)
	assert.Equal(t, entities.StatusVerified, second.Status)
	assert.Equal(t, entities.StatusPending, second.PreviousStatus)
	assert.True(t, second.BecameVerified)
	assert.InDelta(t, 8.0, second.Aggregate.TotalWeight, 1e-9)

	alice, err := f.store.GetVoterProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.VerifiedLandmarkCount)
	assert.Equal(t, 0, alice.VerifiedRouteCount)

	stored, err := f.store.GetEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	require.NotNil(t, stored.VerifiedAt)
	assert.True(t, stored.VerifiedAt.Equal(castTime))
	assert.Equal(t, int64(2), stored.Version)

	assert.Equal(t, 2, f.observer.results[ResultAccepted])
	assert.Equal(t, []string{"pending->verified"}, f.observer.transitions)
	assert.Equal(t, 1, f.observer.verified[entities.EntityKindLandmark])
	assert.Equal(t, []string{"lm-1", "lm-1"}, f.cache.invalidated)
}

func TestCastVoteRouteIncrementsRouteCounter(t *testing.T) {
	f := newFixture(t)

	f.cast(t, "rt-1", "leader-1", entities.ChoiceYes)
	result := f.cast(t, "rt-1", "leader-2", entities.ChoiceYes)
	require.Equal(t, entities.StatusVerified, result.Status)

	alice, err := f.store.GetVoterProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.VerifiedRouteCount)
	assert.Equal(t, 0, alice.VerifiedLandmarkCount)
}

func TestCastVoteReturnsPersistedAggregate(t *testing.T) {
	f := newFixture(t)

	f.cast(t, "lm-1", "member-1", entities.ChoiceYes)
	f.clock.Advance(10 * time.Hour)
	result := f.cast(t, "lm-1", "trusted-1", entities.ChoiceNo)

	stored, err := f.store.GetEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	assert.Equal(t, stored.Aggregate, result.Aggregate)
	assert.Equal(t, stored.Status, result.Status)

	fresh, status := consensus.Evaluate(stored.Votes(), castTime.Add(10*time.Hour))
	assert.Equal(t, fresh, stored.Aggregate)
	assert.Equal(t, status, stored.Status)
	assert.Equal(t, consensus.TrustedWeight, result.VoterWeight)
}

func TestCastVoteRevoteIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first := f.cast(t, "lm-1", "member-1", entities.ChoiceYes)
	assert.False(t, first.WasUpdate)
	second := f.cast(t, "lm-1", "member-1", entities.ChoiceYes)
	assert.True(t, second.WasUpdate)

	assert.Equal(t, first.Aggregate, second.Aggregate)
	assert.Equal(t, first.Status, second.Status)

	stored, err := f.store.GetEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Ledger.Len())
}

func TestCastVoteChangeOfMindReplacesEntry(t *testing.T) {
	f := newFixture(t)

	f.cast(t, "lm-1", "member-1", entities.ChoiceYes)
	f.cast(t, "lm-1", "member-2", entities.ChoiceYes)
	f.clock.Advance(time.Minute)
	result := f.cast(t, "lm-1", "member-1", entities.ChoiceNo)
	assert.True(t, result.WasUpdate)

	stored, err := f.store.GetEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	votes := stored.Votes()
	require.Len(t, votes, 2)
	assert.Equal(t, "member-1", votes[0].VoterID)
	assert.Equal(t, entities.ChoiceNo, votes[0].Choice)
	assert.True(t, votes[0].FirstCastAt.Equal(castTime))
	assert.True(t, votes[0].CastAt.Equal(castTime.Add(time.Minute)))
}

func TestCastVoteSelfVoteForbiddenWithoutMutation(t *testing.T) {
	f := newFixture(t)
	before, err := f.store.GetEntity(context.Background(), "lm-1")
	require.NoError(t, err)

	_, err = f.useCase.CastVote(context.Background(), CastVoteCommand{
		EntityID: "lm-1",
		VoterID:  " alice ",
		Choice:   entities.ChoiceYes,
	})
	require.ErrorIs(t, err, domainerrors.ErrSelfVoteForbidden)

	after, err := f.store.GetEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Votes(), after.Votes())
	assert.Equal(t, 1, f.observer.results[ResultSelfVote])
	assert.Empty(t, f.cache.invalidated)

	pending, err := f.store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCastVoteSelfVoteMatchesExactID(t *testing.T) {
	f := newFixture(t)
	f.store.SetVoterProfile(entities.VoterProfile{UserID: "Alice"})

	result := f.cast(t, "lm-1", "Alice", entities.ChoiceYes)
	assert.Equal(t, int64(1), result.Version)
	assert.Equal(t, consensus.BaseWeight, result.VoterWeight)
	assert.Equal(t, 0, f.observer.results[ResultSelfVote])
}

func TestCastVoteErrors(t *testing.T) {
	tests := []struct {
		name   string
		cmd    CastVoteCommand
		want   error
		result string
	}{
		{
			name:   "invalid choice",
			cmd:    CastVoteCommand{EntityID: "lm-1", VoterID: "member-1", Choice: "maybe"},
			want:   domainerrors.ErrInvalidVote,
			result: ResultInvalid,
		},
		{
			name:   "empty voter",
			cmd:    CastVoteCommand{EntityID: "lm-1", VoterID: "  ", Choice: entities.ChoiceYes},
			want:   domainerrors.ErrInvalidVote,
			result: ResultInvalid,
		},
		{
			name:   "empty entity",
			cmd:    CastVoteCommand{VoterID: "member-1", Choice: entities.ChoiceYes},
			want:   domainerrors.ErrInvalidVote,
			result: ResultInvalid,
		},
		{
			name:   "unknown entity",
			cmd:    CastVoteCommand{EntityID: "lm-404", VoterID: "member-1", Choice: entities.ChoiceYes},
			want:   domainerrors.ErrEntityNotFound,
			result: ResultNotFound,
		},
		{
			name:   "kind mismatch",
			cmd:    CastVoteCommand{EntityID: "lm-1", Kind: entities.EntityKindRoute, VoterID: "member-1", Choice: entities.ChoiceYes},
			want:   domainerrors.ErrEntityNotFound,
			result: ResultNotFound,
		},
		{
			name:   "unknown voter",
			cmd:    CastVoteCommand{EntityID: "lm-1", VoterID: "ghost", Choice: entities.ChoiceYes},
			want:   domainerrors.ErrVoterNotFound,
			result: ResultNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.useCase.CastVote(context.Background(), tt.cmd)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, f.observer.results[tt.result])

			stored, err := f.store.GetEntity(context.Background(), "lm-1")
			require.NoError(t, err)
			assert.Equal(t, int64(0), stored.Version)
		})
	}
}

func TestCastVoteLeaderNoRejects(t *testing.T) {
	f := newFixture(t)

	result := f.cast(t, "lm-1", "leader-1", entities.ChoiceNo)
	assert.Equal(t, entities.StatusRejected, result.Status)
}

func TestCastVoteBaseVotesDispute(t *testing.T) {
	f := newFixture(t)

	f.cast(t, "lm-1", "member-1", entities.ChoiceYes)
	assert.Equal(t, entities.StatusPending, f.cast(t, "lm-1", "member-2", entities.ChoiceNo).Status)
	result := f.cast(t, "lm-1", "member-3", entities.ChoiceYes)
	assert.Equal(t, entities.StatusDisputed, result.Status)

	settled := f.cast(t, "lm-1", "leader-1", entities.ChoiceYes)
	assert.Equal(t, entities.StatusVerified, settled.Status)
	assert.Equal(t, entities.StatusDisputed, settled.PreviousStatus)
}

func TestCastVoteOutboxEvents(t *testing.T) {
	f := newFixture(t)

	f.cast(t, "lm-1", "leader-1", entities.ChoiceYes)
	f.cast(t, "lm-1", "leader-2", entities.ChoiceYes)

	pending, err := f.store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 4)

	types := make([]string, 0, len(pending))
	for _, row := range pending {
		types = append(types, row.EventType)
		assert.Equal(t, "lm-1", row.PartitionKey)
	}
	assert.Equal(t, []string{EventVoteCast, EventVoteCast, EventEntityStatusChanged, EventEntityVerified}, types)

	var envelope ports.EventEnvelope
	require.NoError(t, json.Unmarshal(pending[2].Payload, &envelope))
	var data map[string]any
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "pending", data["previous_status"])
	assert.Equal(t, "verified", data["status"])
	assert.Equal(t, "verification-engine", envelope.SourceService)
}

func TestCastVoteConcurrentVerifyingVotesIncrementOnce(t *testing.T) {
	f := newFixture(t)
	voters := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		id := "leader-c" + string(rune('a'+i))
		f.store.SetVoterProfile(entities.VoterProfile{UserID: id, IsCommunityLeader: true})
		voters = append(voters, id)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(voters))
	for _, voterID := range voters {
		wg.Add(1)
		go func(voterID string) {
			defer wg.Done()
			_, err := f.useCase.CastVote(context.Background(), CastVoteCommand{
				EntityID: "lm-1",
				VoterID:  voterID,
				Choice:   entities.ChoiceYes,
			})
			errs <- err
		}(voterID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.store.GetEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusVerified, stored.Status)
	assert.Equal(t, len(voters), stored.Ledger.Len())
	assert.Equal(t, int64(len(voters)), stored.Version)

	alice, err := f.store.GetVoterProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.VerifiedLandmarkCount)
	assert.Equal(t, 1, f.observer.verified[entities.EntityKindLandmark])
}

func TestCastVoteConcurrentVerificationsOfOneSubmitterAccumulate(t *testing.T) {
	f := newFixture(t)
	f.store.SetEntity(entities.NewPendingEntity("lm-2", entities.EntityKindLandmark, "Stone bridge", "alice", castTime.Add(-time.Hour)))

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for _, entityID := range []string{"lm-1", "lm-2"} {
		for _, voterID := range []string{"leader-1", "leader-2"} {
			wg.Add(1)
			go func(entityID string, voterID string) {
				defer wg.Done()
				_, err := f.useCase.CastVote(context.Background(), CastVoteCommand{
					EntityID: entityID,
					VoterID:  voterID,
					Choice:   entities.ChoiceYes,
				})
				errs <- err
			}(entityID, voterID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	alice, err := f.store.GetVoterProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, alice.VerifiedLandmarkCount)
	assert.Equal(t, 2, f.observer.verified[entities.EntityKindLandmark])
}

func TestCastVoteAbandonedLockWaitReturnsConflict(t *testing.T) {
	f := newFixture(t)
	f.store.SetLockTimeout(time.Second)

	release, err := f.store.LockEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.useCase.CastVote(ctx, CastVoteCommand{
		EntityID: "lm-1",
		VoterID:  "leader-1",
		Choice:   entities.ChoiceYes,
	})
	require.ErrorIs(t, err, domainerrors.ErrTransactionConflict)
	assert.Equal(t, 1, f.observer.results[ResultConflict])
	assert.Equal(t, 0, f.observer.results[ResultError])
}

func TestCastVoteLockTimeoutReturnsConflict(t *testing.T) {
	f := newFixture(t)
	f.store.SetLockTimeout(20 * time.Millisecond)

	release, err := f.store.LockEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	defer release()

	_, err = f.useCase.CastVote(context.Background(), CastVoteCommand{
		EntityID: "lm-1",
		VoterID:  "leader-1",
		Choice:   entities.ChoiceYes,
	})
	require.ErrorIs(t, err, domainerrors.ErrTransactionConflict)
	assert.Equal(t, 1, f.observer.results[ResultConflict])

	stored, err := f.store.GetEntity(context.Background(), "lm-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Ledger.Len())

	// Other entities are not blocked by the held lock.
	result := f.cast(t, "rt-1", "leader-1", entities.ChoiceYes)
	assert.Equal(t, entities.StatusPending, result.Status)
}
