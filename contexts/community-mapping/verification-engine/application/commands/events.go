package commands

import (
	"encoding/json"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/ports"
)

const (
	EventVoteCast            = "vote.cast"
	EventEntityStatusChanged = "entity.status_changed"
	EventEntityVerified      = "entity.verified"
)

func newVerificationEnvelope(
	eventID string,
	eventType string,
	entityID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Partitioned by entity so consumers see one entity's events in order.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "verification-engine",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "entity_id",
		PartitionKey:     entityID,
		Data:             payload,
	}, nil
}
