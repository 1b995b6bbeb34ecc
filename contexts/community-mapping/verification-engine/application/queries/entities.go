package queries

import (
	"context"
	"strings"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	domainerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// EntityQueries serves the map layer. It only returns stored status and
// aggregate values; it never recomputes them.
type EntityQueries struct {
	Reader ports.EntityReader
}

// GetEntity loads one entity; a non-empty kind must match the stored kind.
func (q EntityQueries) GetEntity(ctx context.Context, entityID string, kind entities.EntityKind) (entities.VotableEntity, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return entities.VotableEntity{}, domainerrors.ErrEntityNotFound
	}
	entity, err := q.Reader.GetEntity(ctx, entityID)
	if err != nil {
		return entities.VotableEntity{}, err
	}
	if kind != "" && entity.Kind != kind {
		return entities.VotableEntity{}, domainerrors.ErrEntityNotFound
	}
	return entity, nil
}

func (q EntityQueries) ListEntities(ctx context.Context, filter ports.EntityFilter) ([]entities.VotableEntity, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, domainerrors.ErrInvalidEntityInput
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domainerrors.ErrInvalidEntityInput
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	return q.Reader.ListEntities(ctx, filter)
}
