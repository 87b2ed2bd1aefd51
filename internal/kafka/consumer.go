package kafka

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Consumer reads deal events from the deals topic and hands the decoded
// event to a handler. Messages that fail to decode are logged and skipped
// so one malformed payload cannot wedge the group.
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

// Consume blocks reading deal events until the context ends or the handler
// returns an error.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, DealEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.handleMessage(ctx, msg, handler); err != nil {
			return err
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message, handler func(context.Context, DealEvent) error) error {
	var event DealEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("decode deal event (offset %d): %v", msg.Offset, err)
		return nil
	}
	return handler(ctx, event)
}
