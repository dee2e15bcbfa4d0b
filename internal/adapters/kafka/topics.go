package kafka

// Topic definitions for Kafka event streaming
const (
	// Model usage accounting, consumed into ClickHouse
	TopicModelUsage = "ai.usage"
)
