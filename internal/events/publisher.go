package events

import (
	"context"

	"mnemosyne/internal/adapters/kafka"
	"mnemosyne/pkg/logger"
)

// Publisher publishes events to Kafka as JSON
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

// PublishUsage publishes a model usage event, keyed by model for balanced
// per-model partitioning
func (p *Publisher) PublishUsage(ctx context.Context, event *UsageEvent) error {
	return p.producer.Publish(ctx, kafka.TopicModelUsage, event.ModelID, event)
}
