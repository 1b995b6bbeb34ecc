package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "wayfinder/contexts/community-mapping/verification-engine/application"
	"wayfinder/contexts/community-mapping/verification-engine/domain/consensus"
	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	domainerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
)

// Vote outcome labels reported to the VoteObserver.
const (
	ResultAccepted = "accepted"
	ResultInvalid  = "invalid"
	ResultSelfVote = "self_vote"
	ResultNotFound = "not_found"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// CastVoteCommand is the write-model input for casting or changing a vote.
// Kind is optional; when set the entity must be of that kind.
type CastVoteCommand struct {
	EntityID string
	Kind     entities.EntityKind
	VoterID  string
	Choice   entities.Choice
}

// CastVoteResult echoes the aggregate and status exactly as persisted.
type CastVoteResult struct {
	EntityID       string
	Kind           entities.EntityKind
	Status         entities.Status
	PreviousStatus entities.Status
	Aggregate      entities.Aggregate
	VoterWeight    float64
	Version        int64
	WasUpdate      bool
	BecameVerified bool
}

// VerificationUseCase is the consensus service. Every vote is applied inside
// one entity transaction: ledger upsert, re-aggregation, classification,
// persistence, the submitter's verified counter and outbox events commit or
// abort together.
type VerificationUseCase struct {
	Transactor ports.EntityTransactor
	Cache      ports.EntityCache
	Observer   ports.VoteObserver
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

// CastVote records voterID's choice on an entity and recomputes its status.
// Re-voting replaces the voter's previous entry. The call never retries on
// ErrTransactionConflict; callers decide whether to back off and try again.
func (uc VerificationUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ScopedLogger(uc.Logger, application.LayerApplication)
	started := time.Now()
	entityID := strings.TrimSpace(cmd.EntityID)
	voterID := strings.TrimSpace(cmd.VoterID)

	logger.Debug("vote cast processing started",
		"event", "verification_vote_cast_started",
		"entity_id", entityID,
		"voter_id", voterID,
		"choice", string(cmd.Choice),
	)
	if entityID == "" || voterID == "" || !cmd.Choice.Valid() {
		logger.Warn("vote cast validation failed",
			"event", "verification_vote_cast_validation_failed",
			"entity_id", entityID,
			"voter_id", voterID,
			"choice", string(cmd.Choice),
		)
		uc.observe(ResultInvalid, started)
		return CastVoteResult{}, domainerrors.ErrInvalidVote
	}

	var result CastVoteResult
	err := uc.Transactor.WithinEntityTransaction(ctx, entityID, func(ctx context.Context, tx ports.EntityTx) error {
		entity := tx.Entity()
		if cmd.Kind != "" && entity.Kind != cmd.Kind {
			return domainerrors.ErrEntityNotFound
		}
		if strings.TrimSpace(entity.CreatedBy) == voterID {
			return domainerrors.ErrSelfVoteForbidden
		}
		profile, err := tx.GetVoterProfile(ctx, voterID)
		if err != nil {
			return err
		}

		// Time is read after the lock is held so castAt follows commit order.
		now := uc.now()
		weight := consensus.Weight(profile)
		ledger := entity.Ledger.Clone()
		replaced := ledger.Upsert(entities.Vote{
			VoterID: voterID,
			Choice:  cmd.Choice,
			Weight:  weight,
			CastAt:  now,
		})
		aggregate, status := consensus.Evaluate(ledger.Votes(), now)

		previous := entity.Status
		entity.Ledger = ledger
		entity.Aggregate = aggregate
		entity.Status = status
		entity.Version++
		entity.UpdatedAt = now
		becameVerified := previous != entities.StatusVerified && status == entities.StatusVerified
		if becameVerified && entity.VerifiedAt == nil {
			verifiedAt := now
			entity.VerifiedAt = &verifiedAt
		}

		if err := tx.SaveEntity(ctx, entity); err != nil {
			return err
		}
		if becameVerified {
			if err := tx.IncrementVerifiedCount(ctx, entity.CreatedBy, entity.Kind); err != nil {
				return err
			}
		}
		if err := uc.appendVoteEvents(ctx, tx, entity, previous, voterID, cmd.Choice, weight, now); err != nil {
			return err
		}

		result = CastVoteResult{
			EntityID:       entity.EntityID,
			Kind:           entity.Kind,
			Status:         status,
			PreviousStatus: previous,
			Aggregate:      aggregate,
			VoterWeight:    weight,
			Version:        entity.Version,
			WasUpdate:      replaced,
			BecameVerified: becameVerified,
		}
		return nil
	})
	if err != nil {
		label := classifyFailure(err)
		uc.observe(label, started)
		logger.Warn("vote cast rejected",
			"event", "verification_vote_cast_rejected",
			"entity_id", entityID,
			"voter_id", voterID,
			"result", label,
			"error", err.Error(),
		)
		return CastVoteResult{}, err
	}

	uc.observe(ResultAccepted, started)
	if uc.Observer != nil && result.PreviousStatus != result.Status {
		uc.Observer.ObserveTransition(result.PreviousStatus, result.Status)
	}
	if uc.Observer != nil && result.BecameVerified {
		uc.Observer.ObserveVerifiedContribution(result.Kind)
	}
	if uc.Cache != nil {
		if err := uc.Cache.Invalidate(ctx, entityID); err != nil {
			logger.Warn("entity cache invalidation failed",
				"event", "verification_cache_invalidate_failed",
				"entity_id", entityID,
				"error", err.Error(),
			)
		}
	}

	logger.Info("vote cast",
		"event", "verification_vote_cast",
		"entity_id", result.EntityID,
		"voter_id", voterID,
		"choice", string(cmd.Choice),
		"weight", result.VoterWeight,
		"was_update", result.WasUpdate,
		"previous_status", string(result.PreviousStatus),
		"status", string(result.Status),
		"total_weight", result.Aggregate.TotalWeight,
		"confidence", result.Aggregate.ConfidenceScore,
		"version", result.Version,
	)
	return result, nil
}

func (uc VerificationUseCase) appendVoteEvents(
	ctx context.Context,
	tx ports.EntityTx,
	entity entities.VotableEntity,
	previous entities.Status,
	voterID string,
	choice entities.Choice,
	weight float64,
	now time.Time,
) error {
	base := map[string]any{
		"entity_id":        entity.EntityID,
		"entity_kind":      string(entity.Kind),
		"version":          entity.Version,
		"status":           string(entity.Status),
		"total_weight":     entity.Aggregate.TotalWeight,
		"yes_weight":       entity.Aggregate.YesWeight,
		"no_weight":        entity.Aggregate.NoWeight,
		"confidence_score": entity.Aggregate.ConfidenceScore,
		"occurred_at":      now.Format(time.RFC3339),
	}

	if err := uc.appendEvent(ctx, tx, EventVoteCast, entity.EntityID, now, base, map[string]any{
		"voter_id": voterID,
		"choice":   string(choice),
		"weight":   weight,
	}); err != nil {
		return err
	}
	if previous == entity.Status {
		return nil
	}
	if err := uc.appendEvent(ctx, tx, EventEntityStatusChanged, entity.EntityID, now, base, map[string]any{
		"previous_status": string(previous),
	}); err != nil {
		return err
	}
	if entity.Status != entities.StatusVerified {
		return nil
	}
	return uc.appendEvent(ctx, tx, EventEntityVerified, entity.EntityID, now, base, map[string]any{
		"created_by": entity.CreatedBy,
	})
}

func (uc VerificationUseCase) appendEvent(
	ctx context.Context,
	tx ports.EntityTx,
	eventType string,
	entityID string,
	now time.Time,
	base map[string]any,
	extra map[string]any,
) error {
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		data[key] = value
	}
	for key, value := range extra {
		data[key] = value
	}
	envelope, err := newVerificationEnvelope(eventID, eventType, entityID, now, data)
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, envelope)
}

func (uc VerificationUseCase) observe(result string, started time.Time) {
	if uc.Observer == nil {
		return
	}
	uc.Observer.ObserveVote(result, time.Since(started))
}

func (uc VerificationUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func classifyFailure(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidVote):
		return ResultInvalid
	case errors.Is(err, domainerrors.ErrSelfVoteForbidden):
		return ResultSelfVote
	case errors.Is(err, domainerrors.ErrEntityNotFound), errors.Is(err, domainerrors.ErrVoterNotFound):
		return ResultNotFound
	case errors.Is(err, domainerrors.ErrTransactionConflict):
		return ResultConflict
	default:
		return ResultError
	}
}
