package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "wayfinder/contexts/community-mapping/verification-engine/application"
	"wayfinder/contexts/community-mapping/verification-engine/ports"
)

const defaultOutboxBatchSize = 100

// OutboxRelay publishes vote and status events recorded inside entity
// transactions to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes one batch in creation order. A row is marked published
// only after the publish succeeded; the first failure stops the batch so the
// next cycle resumes from that row.
func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ScopedLogger(r.Logger, application.LayerWorker)
	limit := r.BatchSize
	if limit <= 0 {
		limit = defaultOutboxBatchSize
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("verification outbox list failed",
			"event", "verification_outbox_list_failed",
			"error", err.Error(),
		)
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	published := 0
	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("verification outbox decode failed",
				"event", "verification_outbox_decode_failed",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("verification outbox publish failed",
				"event", "verification_outbox_publish_failed",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return published, err
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, now); err != nil {
			logger.Error("verification outbox mark published failed",
				"event", "verification_outbox_mark_published_failed",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return published, err
		}
		published++
	}

	logger.Info("verification outbox relay cycle completed",
		"event", "verification_outbox_relay_completed",
		"published_count", published,
	)
	return published, nil
}

// Run polls the outbox until ctx is cancelled. Cycle errors are logged and
// retried on the next tick.
func (r OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	logger := application.ScopedLogger(r.Logger, application.LayerWorker)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("verification outbox relay cycle failed",
				"event", "verification_outbox_relay_cycle_failed",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
