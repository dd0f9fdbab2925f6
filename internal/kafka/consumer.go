package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventHandler processes one decoded ticket lifecycle event. A handler error
// stops consumption, so the message is redelivered after a restart.
type EventHandler func(ctx context.Context, event TicketEvent) error

// Consumer reads ticket lifecycle events from a consumer group and hands the
// decoded payload to a handler. Payloads that do not decode are skipped; they
// would fail identically on every redelivery.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		event, err := decodeTicketEvent(msg.Value)
		if err != nil {
			continue
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
}

func decodeTicketEvent(value []byte) (TicketEvent, error) {
	var event TicketEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return TicketEvent{}, fmt.Errorf("failed to decode ticket event: %w", err)
	}
	return event, nil
}
