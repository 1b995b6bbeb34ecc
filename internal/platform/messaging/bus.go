package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wayfinder/internal/platform/retry"
	"wayfinder/internal/shared/events"
)

// DeliveryPolicy bounds redelivery of an event whose handler failed.
var DeliveryPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     time.Second,
}

type subscription struct {
	group string
	queue chan events.Envelope
}

// Bus delivers events between components of one process. Each consumer
// group gets one queue per topic; a full queue drops the event for that
// group. Cross-process delivery goes through StreamBus.
type Bus struct {
	mu         sync.RWMutex
	topics     map[string][]*subscription
	bufferSize int
	policy     retry.Policy
	logger     *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics:     make(map[string][]*subscription),
		bufferSize: 128,
		policy:     DeliveryPolicy,
		logger:     logger,
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, event events.Envelope) error {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.topics[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.queue <- event:
		default:
			b.logger.Warn("event dropped for full consumer queue",
				"event", "bus_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", sub.group,
				"event_id", event.EventID,
			)
		}
	}
	return nil
}

// Subscribe runs handler for every event on topic until ctx is cancelled.
// A failing handler is retried per DeliveryPolicy before the event is
// given up.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	sub := &subscription{group: consumerGroup, queue: make(chan events.Envelope, b.bufferSize)}

	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], sub)
	b.mu.Unlock()

	go func() {
		defer b.unsubscribe(topic, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-sub.queue:
				b.deliver(ctx, topic, sub.group, event, handler)
			}
		}
	}()
	return nil
}

func (b *Bus) deliver(
	ctx context.Context,
	topic string,
	group string,
	event events.Envelope,
	handler func(context.Context, events.Envelope) error,
) {
	policy := b.policy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		b.logger.Warn("event handler failed, redelivering",
			"event", "bus_redeliver",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"consumer_group", group,
			"event_id", event.EventID,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err.Error(),
		)
	}
	err := retry.DoVoid(ctx, policy, retry.Always, func(ctx context.Context) error {
		return handler(ctx, event)
	})
	if err != nil {
		b.logger.Error("event handler gave up",
			"event", "bus_consume_failed",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"topic", topic,
			"consumer_group", group,
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err.Error(),
		)
	}
}

func (b *Bus) unsubscribe(topic string, target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.topics[topic]
	kept := items[:0:0]
	for _, item := range items {
		if item != target {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		delete(b.topics, topic)
		return
	}
	b.topics[topic] = kept
}

func (b *Bus) subscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
