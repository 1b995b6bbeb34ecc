package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "wayfinder/contexts/community-mapping/verification-engine/application"
	"wayfinder/contexts/community-mapping/verification-engine/application/commands"
	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	domainerrors "wayfinder/contexts/community-mapping/verification-engine/domain/errors"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
)

const (
	landmarkSubmittedTopic = "landmark.submitted"
	routeSubmittedTopic    = "route.submitted"
	defaultSubmissionCG    = "verification-engine-submission-cg"
)

// SubmissionConsumer opens newly submitted landmarks and routes for voting.
type SubmissionConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Registration  commands.RegistrationUseCase
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

type submissionPayload struct {
	EntityID    string `json:"entity_id"`
	LandmarkID  string `json:"landmark_id"`
	RouteID     string `json:"route_id"`
	Title       string `json:"title"`
	SubmittedBy string `json:"submitted_by"`
}

func (c SubmissionConsumer) Start(ctx context.Context) error {
	logger := application.ScopedLogger(c.Logger, application.LayerWorker)
	if c.Disabled {
		logger.Info("submission consumer disabled by feature flag",
			"event", "verification_submission_consumer_disabled",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultSubmissionCG
	}

	subscriptions := []struct {
		topic string
		kind  entities.EntityKind
	}{
		{topic: landmarkSubmittedTopic, kind: entities.EntityKindLandmark},
		{topic: routeSubmittedTopic, kind: entities.EntityKindRoute},
	}
	for _, sub := range subscriptions {
		kind := sub.kind
		handler := func(ctx context.Context, event ports.EventEnvelope) error {
			return c.handleSubmitted(ctx, kind, event)
		}
		if err := c.Subscriber.Subscribe(ctx, sub.topic, group, handler); err != nil {
			logger.Error("submission consumer subscribe failed",
				"event", "verification_submission_consumer_subscribe_failed",
				"topic", sub.topic,
				"consumer_group", group,
				"error", err.Error(),
			)
			return err
		}
	}
	logger.Info("submission consumer subscriptions active",
		"event", "verification_submission_consumer_started",
		"consumer_group", group,
	)
	return nil
}

func (c SubmissionConsumer) handleSubmitted(ctx context.Context, kind entities.EntityKind, event ports.EventEnvelope) error {
	logger := application.ScopedLogger(c.Logger, application.LayerWorker)
	alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), c.now().Add(c.dedupTTL()))
	if err != nil {
		logger.Error("submission event dedupe failed",
			"event", "verification_submission_dedupe_failed",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err.Error(),
		)
		return err
	}
	if alreadyProcessed {
		logger.Debug("submission event replay skipped",
			"event", "verification_submission_replayed",
			"event_id", event.EventID,
		)
		return nil
	}

	var payload submissionPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Warn("submission payload decode failed, event dropped",
			"event", "verification_submission_decode_failed",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return nil
	}

	entityID := firstNonEmpty(payload.EntityID, payload.LandmarkID, payload.RouteID, event.PartitionKey)
	_, err = c.Registration.RegisterEntity(ctx, commands.RegisterEntityCommand{
		EntityID:  entityID,
		Kind:      kind,
		Title:     payload.Title,
		CreatedBy: payload.SubmittedBy,
	})
	switch {
	case err == nil:
	case errors.Is(err, domainerrors.ErrInvalidEntityInput), errors.Is(err, domainerrors.ErrEntityConflict):
		// Redelivery cannot fix a malformed or clashing submission.
		logger.Warn("submission event dropped",
			"event", "verification_submission_dropped",
			"event_id", event.EventID,
			"entity_id", entityID,
			"error", err.Error(),
		)
		return nil
	default:
		// Free the reservation so the redelivery registers the entity.
		if releaseErr := c.Dedup.ReleaseEvent(ctx, event.EventID); releaseErr != nil {
			logger.Error("submission event reservation release failed",
				"event", "verification_submission_release_failed",
				"event_id", event.EventID,
				"error", releaseErr.Error(),
			)
		}
		return err
	}

	logger.Info("submission event consumed",
		"event", "verification_submission_consumed",
		"event_id", event.EventID,
		"entity_id", entityID,
		"kind", string(kind),
	)
	return nil
}

func (c SubmissionConsumer) now() time.Time {
	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}
	return now
}

func (c SubmissionConsumer) dedupTTL() time.Duration {
	if c.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.DedupTTL
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
