package consumers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	kafkaadapter "mnemosyne/internal/adapters/kafka"
	"mnemosyne/internal/domain/usage"
	"mnemosyne/internal/events"
	chrepo "mnemosyne/internal/repository/clickhouse"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// UsageConsumer reads model usage events from Kafka and writes them to
// ClickHouse in batches. This decouples the request path from ClickHouse:
// a slow or absent analytics store never delays a query.
type UsageConsumer struct {
	consumer  *kafkaadapter.Consumer
	usageRepo *chrepo.UsageRepository
	log       *logger.Logger
}

// NewUsageConsumer creates a new usage consumer
func NewUsageConsumer(consumer *kafkaadapter.Consumer, usageRepo *chrepo.UsageRepository) *UsageConsumer {
	return &UsageConsumer{
		consumer:  consumer,
		usageRepo: usageRepo,
		log:       logger.Get().With("component", "usage_consumer"),
	}
}

// Start begins consuming usage events. Blocks until ctx is cancelled.
func (c *UsageConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting usage consumer...")

	c.usageRepo.Start(ctx)

	defer func() {
		if err := c.consumer.Close(); err != nil {
			c.log.Error("Failed to close usage consumer", "error", err)
		}
	}()

	// Flush whatever is buffered before the process exits
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.usageRepo.Stop(stopCtx); err != nil {
			c.log.Error("Failed to stop usage batch writer", "error", err)
		}
	}()

	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Usage consumer stopping (context cancelled)")
				return nil
			}
			c.log.Debug("Failed to read usage event", "error", err)
			continue
		}

		processCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.handleUsageEvent(processCtx, msg); err != nil {
			c.log.Error("Failed to handle usage event",
				"topic", msg.Topic,
				"error", err,
			)
		}
		cancel()

		if ctx.Err() != nil {
			c.log.Info("Usage consumer stopping after current message")
			return nil
		}
	}
}

// handleUsageEvent converts one JSON event into a ClickHouse row
func (c *UsageConsumer) handleUsageEvent(ctx context.Context, msg kafka.Message) error {
	var event events.UsageEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "unmarshal usage event")
	}

	record := &usage.Record{
		Timestamp: event.Timestamp,
		EventID:   event.EventID,
		QueryID:   event.QueryID,
		UserID:    event.UserID,
		ContextID: event.ContextID,

		Provider:    event.Provider,
		ModelID:     event.ModelID,
		ModelFamily: event.ModelFamily,

		PromptTokens:     uint32(event.PromptTokens),
		CompletionTokens: uint32(event.CompletionTokens),
		TotalTokens:      uint32(event.TotalTokens),

		InputCostUSD:  event.InputCostUSD,
		OutputCostUSD: event.OutputCostUSD,
		TotalCostUSD:  event.TotalCostUSD,

		LatencyMs: uint32(event.LatencyMs),

		IsStream:   event.Stream,
		IsFallback: event.Fallback,
		IsSuccess:  event.Success,

		CreatedAt: time.Now().UTC(),
	}

	return c.usageRepo.Store(ctx, record)
}
