package ports

import (
	"context"
	"time"

	"wayfinder/contexts/community-mapping/verification-engine/domain/entities"
	"wayfinder/internal/shared/events"
)

// EntityTx is the view of one entity transaction. The entity row is locked
// for the lifetime of the transaction; writes become visible only on commit.
type EntityTx interface {
	Entity() entities.VotableEntity
	GetVoterProfile(ctx context.Context, userID string) (entities.VoterProfile, error)
	SaveEntity(ctx context.Context, entity entities.VotableEntity) error
	IncrementVerifiedCount(ctx context.Context, userID string, kind entities.EntityKind) error
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

// EntityTransactor runs fn inside an atomic transaction scoped to one
// entity. A nil return commits; any error aborts and discards every staged
// write. Lock acquisition is bounded and reports ErrTransactionConflict.
type EntityTransactor interface {
	WithinEntityTransaction(ctx context.Context, entityID string, fn func(ctx context.Context, tx EntityTx) error) error
}

type EntityFilter struct {
	Kind   entities.EntityKind
	Status entities.Status
	Limit  int
}

type EntityReader interface {
	GetEntity(ctx context.Context, entityID string) (entities.VotableEntity, error)
	ListEntities(ctx context.Context, filter EntityFilter) ([]entities.VotableEntity, error)
}

type EntityRegistry interface {
	// CreateEntity inserts a new pending entity. It returns (false, nil)
	// when an identical entity already exists.
	CreateEntity(ctx context.Context, entity entities.VotableEntity) (bool, error)
}

// EntityCache is notified after a committed vote so cached reads never
// outlive the write.
type EntityCache interface {
	Invalidate(ctx context.Context, entityID string) error
}

// VoteObserver receives the outcome of every CastVote call.
type VoteObserver interface {
	ObserveVote(result string, duration time.Duration)
	ObserveTransition(from entities.Status, to entities.Status)
	ObserveVerifiedContribution(kind entities.EntityKind)
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
	// ReleaseEvent drops a reservation so a redelivery is processed again.
	ReleaseEvent(ctx context.Context, eventID string) error
}

type EventEnvelope = events.Envelope

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
