package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "wayfinder/contexts/community-mapping/verification-engine/application"
	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	domainerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
)

// RegisterEntityCommand opens a submitted landmark or route for voting.
type RegisterEntityCommand struct {
	EntityID  string
	Kind      entities.EntityKind
	Title     string
	CreatedBy string
}

type RegisterEntityResult struct {
	Entity  entities.VotableEntity
	Created bool
}

// RegistrationUseCase creates pending entities with an empty ledger.
type RegistrationUseCase struct {
	Registry ports.EntityRegistry
	Clock    ports.Clock
	Logger   *slog.Logger
}

// RegisterEntity is replay-safe: registering the same entity twice is a
// no-op, registering a different entity under a used id is a conflict.
func (uc RegistrationUseCase) RegisterEntity(ctx context.Context, cmd RegisterEntityCommand) (RegisterEntityResult, error) {
	logger := application.ScopedLogger(uc.Logger, application.LayerApplication)
	entityID := strings.TrimSpace(cmd.EntityID)
	createdBy := strings.TrimSpace(cmd.CreatedBy)
	if entityID == "" || createdBy == "" || !cmd.Kind.Valid() {
		logger.Warn("entity registration validation failed",
			"event", "verification_entity_register_validation_failed",
			"entity_id", entityID,
			"kind", string(cmd.Kind),
		)
		return RegisterEntityResult{}, domainerrors.ErrInvalidEntityInput
	}

	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	entity := entities.NewPendingEntity(entityID, cmd.Kind, strings.TrimSpace(cmd.Title), createdBy, now)
	created, err := uc.Registry.CreateEntity(ctx, entity)
	if err != nil {
		logger.Error("entity registration failed",
			"event", "verification_entity_register_failed",
			"entity_id", entityID,
			"error", err.Error(),
		)
		return RegisterEntityResult{}, err
	}

	logger.Info("entity registered",
		"event", "verification_entity_registered",
		"entity_id", entityID,
		"kind", string(cmd.Kind),
		"created_by", createdBy,
		"created", created,
	)
	return RegisterEntityResult{Entity: entity, Created: created}, nil
}
