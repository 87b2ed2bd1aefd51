package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mverdun/farewatch/internal/domain"
)

// DealEvent is published for every deal persisted by a search run. The
// price-history worker consumes these to build per-route trend data.
type DealEvent struct {
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	DepartureDate string    `json:"departure_date"`
	ReturnDate    string    `json:"return_date"`
	Price         float64   `json:"price"`
	Airline       string    `json:"airline"`
	Source        string    `json:"source"`
	URL           string    `json:"url"`
	FoundAt       time.Time `json:"found_at"`
}

func NewDealEvent(d domain.StoredDeal) DealEvent {
	return DealEvent{
		Origin:        d.Origin,
		Destination:   d.Destination,
		DepartureDate: d.DepartureDate,
		ReturnDate:    d.ReturnDate,
		Price:         d.Price,
		Airline:       d.Airline,
		Source:        d.Source,
		URL:           d.URL,
		FoundAt:       d.FoundAt,
	}
}

// RouteKey is the partition key, so every event for a route lands on the
// same partition and stays ordered.
func (e DealEvent) RouteKey() string {
	return e.Origin + "-" + e.Destination
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
