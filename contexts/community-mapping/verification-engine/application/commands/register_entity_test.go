package commands

import (
	"context"
	"testing"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/adapters/memory"
	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	domainerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEntityCreatesPendingEntity(t *testing.T) {
	store := memory.NewStore(nil)
	uc := RegistrationUseCase{Registry: store, Clock: clockwork.NewFakeClockAt(castTime)}

	result, err := uc.RegisterEntity(context.Background(), RegisterEntityCommand{
		EntityID:  " rt-9 ",
		Kind:      entities.EntityKindRoute,
		Title:     "Canal towpath",
		CreatedBy: "bob",
	})
	require.NoError(t, err)
	assert.True(t, result.Created)

	stored, err := store.GetEntity(context.Background(), "rt-9")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusPending, stored.Status)
	assert.Equal(t, entities.Aggregate{}, stored.Aggregate)
	assert.Equal(t, 0, stored.Ledger.Len())
	assert.True(t, stored.CreatedAt.Equal(castTime))
	assert.Nil(t, stored.VerifiedAt)
}

func TestRegisterEntityReplayIsNoop(t *testing.T) {
	store := memory.NewStore(nil)
	clock := clockwork.NewFakeClockAt(castTime)
	uc := RegistrationUseCase{Registry: store, Clock: clock}
	cmd := RegisterEntityCommand{EntityID: "lm-9", Kind: entities.EntityKindLandmark, Title: "Bell tower", CreatedBy: "bob"}

	_, err := uc.RegisterEntity(context.Background(), cmd)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	replay, err := uc.RegisterEntity(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, replay.Created)

	stored, err := store.GetEntity(context.Background(), "lm-9")
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(castTime))
}

func TestRegisterEntityRejectsClashAndBadInput(t *testing.T) {
	store := memory.NewStore(nil)
	uc := RegistrationUseCase{Registry: store}

	_, err := uc.RegisterEntity(context.Background(), RegisterEntityCommand{EntityID: "lm-9", Kind: entities.EntityKindLandmark, CreatedBy: "bob"})
	require.NoError(t, err)

	_, err = uc.RegisterEntity(context.Background(), RegisterEntityCommand{EntityID: "lm-9", Kind: entities.EntityKindRoute, CreatedBy: "bob"})
	assert.ErrorIs(t, err, domainerrors.ErrEntityConflict)

	_, err = uc.RegisterEntity(context.Background(), RegisterEntityCommand{EntityID: "lm-10", Kind: "building", CreatedBy: "bob"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidEntityInput)

	_, err = uc.RegisterEntity(context.Background(), RegisterEntityCommand{EntityID: "lm-10", Kind: entities.EntityKindLandmark})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidEntityInput)
}
