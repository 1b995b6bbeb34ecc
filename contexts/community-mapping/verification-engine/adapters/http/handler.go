package httpadapter

import (
	"context"
	"log/slog"

	"wayfinder/contexts/community-mapping/verification-engine/application/commands"
	"wayfinder/contexts/community-mapping/verification-engine/application/queries"
	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
	httptransport "wayfinder/contexts/community-mapping/verification-engine/transport/http"
)

type Handler struct {
	Votes        commands.VerificationUseCase
	Registration commands.RegistrationUseCase
	Entities     queries.EntityQueries
	Logger       *slog.Logger
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	kind entities.EntityKind,
	entityID string,
	voterID string,
	req httptransport.CastVoteRequest,
) (httptransport.CastVoteResponse, error) {
	result, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		EntityID: entityID,
		Kind:     kind,
		VoterID:  voterID,
		Choice:   entities.Choice(req.Choice),
	})
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	return httptransport.CastVoteResponse{
		Success:     true,
		Status:      string(result.Status),
		Aggregate:   mapAggregate(result.Aggregate),
		VoterWeight: result.VoterWeight,
	}, nil
}

func (h Handler) RegisterEntityHandler(
	ctx context.Context,
	kind entities.EntityKind,
	submitterID string,
	req httptransport.RegisterEntityRequest,
) (httptransport.RegisterEntityResponse, error) {
	result, err := h.Registration.RegisterEntity(ctx, commands.RegisterEntityCommand{
		EntityID:  req.ID,
		Kind:      kind,
		Title:     req.Title,
		CreatedBy: submitterID,
	})
	if err != nil {
		return httptransport.RegisterEntityResponse{}, err
	}
	return httptransport.RegisterEntityResponse{
		Success: true,
		Created: result.Created,
		Entity:  mapEntity(result.Entity, false),
	}, nil
}

func (h Handler) GetEntityHandler(
	ctx context.Context,
	kind entities.EntityKind,
	entityID string,
) (httptransport.EntityResponse, error) {
	entity, err := h.Entities.GetEntity(ctx, entityID, kind)
	if err != nil {
		return httptransport.EntityResponse{}, err
	}
	return mapEntity(entity, true), nil
}

func (h Handler) ListEntitiesHandler(
	ctx context.Context,
	kind entities.EntityKind,
	status string,
	limit int,
) (httptransport.ListEntitiesResponse, error) {
	items, err := h.Entities.ListEntities(ctx, ports.EntityFilter{
		Kind:   kind,
		Status: entities.Status(status),
		Limit:  limit,
	})
	if err != nil {
		return httptransport.ListEntitiesResponse{}, err
	}
	response := httptransport.ListEntitiesResponse{
		Items: make([]httptransport.EntityResponse, 0, len(items)),
	}
	for _, item := range items {
		response.Items = append(response.Items, mapEntity(item, false))
	}
	return response, nil
}

func mapAggregate(aggregate entities.Aggregate) httptransport.AggregateDTO {
	return httptransport.AggregateDTO{
		TotalWeight:     aggregate.TotalWeight,
		YesWeight:       aggregate.YesWeight,
		NoWeight:        aggregate.NoWeight,
		ConfidenceScore: aggregate.ConfidenceScore,
	}
}

func mapEntity(entity entities.VotableEntity, withVotes bool) httptransport.EntityResponse {
	response := httptransport.EntityResponse{
		EntityID:   entity.EntityID,
		Kind:       string(entity.Kind),
		Title:      entity.Title,
		CreatedBy:  entity.CreatedBy,
		Status:     string(entity.Status),
		Aggregate:  mapAggregate(entity.Aggregate),
		VoteCount:  entity.Ledger.Len(),
		Version:    entity.Version,
		CreatedAt:  entity.CreatedAt,
		UpdatedAt:  entity.UpdatedAt,
		VerifiedAt: entity.VerifiedAt,
	}
	if !withVotes {
		return response
	}
	votes := entity.Votes()
	response.Votes = make([]httptransport.VoteDTO, 0, len(votes))
	for _, vote := range votes {
		response.Votes = append(response.Votes, httptransport.VoteDTO{
			VoterID:     vote.VoterID,
			Choice:      string(vote.Choice),
			Weight:      vote.Weight,
			CastAt:      vote.CastAt,
			FirstCastAt: vote.FirstCastAt,
		})
	}
	return response
}
