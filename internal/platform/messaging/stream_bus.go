package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"wayfinder/internal/shared/events"

	goredis "github.com/redis/go-redis/v9"
)

const envelopeField = "envelope"

// StreamOptions tunes StreamBus. Zero values select the defaults.
type StreamOptions struct {
	// Consumer names this process inside every consumer group.
	Consumer string
	// MaxLen caps each stream approximately.
	MaxLen int64
	// Block is how long one read waits for new entries.
	Block time.Duration
	// BatchSize is the number of entries read at once.
	BatchSize int64
	// MaxDeliveries is how often a failing entry is handed to the handler
	// before it is acknowledged and dropped.
	MaxDeliveries int
	// RetryDelay is the pause before failed entries are read again.
	RetryDelay time.Duration
}

func (o StreamOptions) withDefaults() StreamOptions {
	if strings.TrimSpace(o.Consumer) == "" {
		host, _ := os.Hostname()
		o.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if o.MaxLen <= 0 {
		o.MaxLen = 100_000
	}
	if o.Block <= 0 {
		o.Block = 2 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.MaxDeliveries <= 0 {
		o.MaxDeliveries = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// StreamBus carries events between processes on Redis Streams, one stream
// per topic. Consumer groups share a stream; an entry is acknowledged only
// after its handler succeeds, so a crash or handler error leaves it pending
// for redelivery.
type StreamBus struct {
	rdb    goredis.Cmdable
	opts   StreamOptions
	logger *slog.Logger
}

func NewStreamBus(rdb goredis.Cmdable, opts StreamOptions, logger *slog.Logger) *StreamBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamBus{rdb: rdb, opts: opts.withDefaults(), logger: logger}
}

func StreamKey(topic string) string {
	return "events:" + topic
}

func (b *StreamBus) Publish(ctx context.Context, topic string, event events.Envelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.EventID, err)
	}
	if err := b.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(topic),
		MaxLen: b.opts.MaxLen,
		Approx: true,
		Values: map[string]any{envelopeField: payload},
	}).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventID, topic, err)
	}
	return nil
}

// Subscribe creates the consumer group if needed and consumes topic until
// ctx is cancelled.
func (b *StreamBus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	stream := StreamKey(topic)
	err := b.rdb.XGroupCreateMkStream(ctx, stream, consumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", consumerGroup, stream, err)
	}

	c := &streamConsumer{
		bus:      b,
		stream:   stream,
		group:    consumerGroup,
		handler:  handler,
		failures: make(map[string]int),
	}
	go c.run(ctx)
	return nil
}

type streamConsumer struct {
	bus     *StreamBus
	stream  string
	group   string
	handler func(context.Context, events.Envelope) error

	mu       sync.Mutex
	failures map[string]int
}

func (c *streamConsumer) run(ctx context.Context) {
	opts := c.bus.opts
	// "0" replays entries this consumer holds but never acknowledged; ">"
	// asks for new ones.
	cursor := "0"
	for ctx.Err() == nil {
		block := opts.Block
		if cursor == "0" {
			block = -1
		}
		streams, err := c.bus.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    c.group,
			Consumer: opts.Consumer,
			Streams:  []string{c.stream, cursor},
			Count:    opts.BatchSize,
			Block:    block,
		}).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logWarn("stream read failed", "bus_stream_read_failed", "", err)
			sleep(ctx, opts.RetryDelay)
			continue
		}

		read, failed := 0, 0
		for _, stream := range streams {
			for _, message := range stream.Messages {
				read++
				if !c.handle(ctx, message) {
					failed++
				}
			}
		}
		switch {
		case failed > 0:
			cursor = "0"
			sleep(ctx, opts.RetryDelay)
		case cursor == "0" && read == 0:
			cursor = ">"
		}
	}
}

// handle reports whether the entry is done with, either handled or dropped.
func (c *streamConsumer) handle(ctx context.Context, message goredis.XMessage) bool {
	event, err := decodeEnvelope(message)
	if err != nil {
		c.logWarn("undecodable stream entry dropped", "bus_stream_decode_failed", message.ID, err)
		c.ack(ctx, message.ID)
		return true
	}

	if err := c.handler(ctx, event); err != nil {
		c.mu.Lock()
		c.failures[message.ID]++
		attempts := c.failures[message.ID]
		c.mu.Unlock()
		if attempts < c.bus.opts.MaxDeliveries {
			c.logWarn("stream handler failed, entry stays pending", "bus_stream_handler_failed", message.ID, err)
			return false
		}
		c.bus.logger.Error("stream entry dropped after repeated failures",
			"event", "bus_stream_entry_dropped",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"stream", c.stream,
			"consumer_group", c.group,
			"entry_id", message.ID,
			"event_id", event.EventID,
			"attempts", attempts,
			"error", err.Error(),
		)
	}
	c.ack(ctx, message.ID)
	return true
}

func (c *streamConsumer) ack(ctx context.Context, id string) {
	c.mu.Lock()
	delete(c.failures, id)
	c.mu.Unlock()
	if err := c.bus.rdb.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		c.logWarn("stream ack failed", "bus_stream_ack_failed", id, err)
	}
}

func (c *streamConsumer) logWarn(msg string, event string, entryID string, err error) {
	c.bus.logger.Warn(msg,
		"event", event,
		"module", "internal/platform/messaging",
		"layer", "platform",
		"stream", c.stream,
		"consumer_group", c.group,
		"entry_id", entryID,
		"error", err.Error(),
	)
}

func decodeEnvelope(message goredis.XMessage) (events.Envelope, error) {
	raw, ok := message.Values[envelopeField]
	if !ok {
		return events.Envelope{}, fmt.Errorf("entry %s has no %s field", message.ID, envelopeField)
	}
	var data []byte
	switch value := raw.(type) {
	case string:
		data = []byte(value)
	case []byte:
		data = value
	default:
		return events.Envelope{}, fmt.Errorf("entry %s: unexpected %T", message.ID, raw)
	}
	var event events.Envelope
	if err := json.Unmarshal(data, &event); err != nil {
		return events.Envelope{}, fmt.Errorf("entry %s: %w", message.ID, err)
	}
	return event, nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
