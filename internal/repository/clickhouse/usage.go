package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"mnemosyne/internal/domain/usage"
	"mnemosyne/pkg/clickhouse"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// Compile-time check
var _ usage.Repository = (*UsageRepository)(nil)

// UsageRepository implements usage.Repository for ClickHouse.
// Writes go through the batch writer; one INSERT per flush, never per row.
type UsageRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter
}

// UsageRepositoryConfig tunes batching behavior
type UsageRepositoryConfig struct {
	MaxBatchSize int
	MaxAge       time.Duration
}

// NewUsageRepository creates a usage repository with a batch writer
func NewUsageRepository(conn driver.Conn, cfg UsageRepositoryConfig) *UsageRepository {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Second
	}

	repo := &UsageRepository{conn: conn}
	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig{
		FlushFunc:    repo.flushBatch,
		TableName:    "model_usage",
		MaxBatchSize: cfg.MaxBatchSize,
		MaxAge:       cfg.MaxAge,
	})
	return repo
}

// Start begins the background flush loop
func (r *UsageRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes pending records and shuts the batch writer down
func (r *UsageRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Store buffers a usage record (flushed by size or age, not immediately)
func (r *UsageRepository) Store(ctx context.Context, record *usage.Record) error {
	return r.batchWriter.Add(ctx, record)
}

// flushBatch executes one batch INSERT for the buffered records
func (r *UsageRepository) flushBatch(ctx context.Context, batch []interface{}) error {
	if len(batch) == 0 {
		return nil
	}

	log := logger.Get().With("component", "usage_batch")

	query := `
		INSERT INTO model_usage (
			timestamp, event_id, query_id, user_id, context_id,
			provider, model_id, model_family,
			prompt_tokens, completion_tokens, total_tokens,
			input_cost_usd, output_cost_usd, total_cost_usd,
			latency_ms, is_stream, is_fallback, is_success, created_at
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?
		)
	`

	start := time.Now()

	stmt, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	rows := 0
	for _, item := range batch {
		record, ok := item.(*usage.Record)
		if !ok {
			log.Warnf("Skipping invalid item type: %T", item)
			continue
		}

		err := stmt.Append(
			record.Timestamp, record.EventID, record.QueryID, record.UserID, record.ContextID,
			record.Provider, record.ModelID, record.ModelFamily,
			record.PromptTokens, record.CompletionTokens, record.TotalTokens,
			record.InputCostUSD, record.OutputCostUSD, record.TotalCostUSD,
			record.LatencyMs, record.IsStream, record.IsFallback, record.IsSuccess, record.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
		rows++
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	log.Debugf("Batch inserted %d usage records in %v", rows, time.Since(start))
	return nil
}

// TotalsByModel aggregates usage per model since the given time
func (r *UsageRepository) TotalsByModel(ctx context.Context, since time.Time) ([]*usage.ModelTotals, error) {
	var totals []*usage.ModelTotals

	query := `
		SELECT
			provider,
			model_id,
			count() AS requests,
			countIf(NOT is_success) AS failures,
			sum(total_tokens) AS total_tokens,
			sum(total_cost_usd) AS total_cost_usd,
			avg(latency_ms) AS avg_latency_ms
		FROM model_usage
		WHERE timestamp >= ?
		GROUP BY provider, model_id
		ORDER BY total_cost_usd DESC
	`

	if err := r.conn.Select(ctx, &totals, query, since); err != nil {
		return nil, errors.Wrap(err, "query model totals")
	}
	return totals, nil
}

// TotalsByDay aggregates usage per calendar day since the given time
func (r *UsageRepository) TotalsByDay(ctx context.Context, since time.Time) ([]*usage.DailyTotals, error) {
	var totals []*usage.DailyTotals

	query := `
		SELECT
			toStartOfDay(timestamp) AS day,
			count() AS requests,
			sum(total_tokens) AS total_tokens,
			sum(total_cost_usd) AS total_cost_usd
		FROM model_usage
		WHERE timestamp >= ?
		GROUP BY day
		ORDER BY day
	`

	if err := r.conn.Select(ctx, &totals, query, since); err != nil {
		return nil, errors.Wrap(err, "query daily totals")
	}
	return totals, nil
}

// TotalsByContext aggregates spend per context since the given time
func (r *UsageRepository) TotalsByContext(ctx context.Context, since time.Time, limit int) ([]*usage.ContextTotals, error) {
	if limit <= 0 {
		limit = 50
	}
	var totals []*usage.ContextTotals

	query := `
		SELECT
			context_id,
			count() AS requests,
			sum(total_tokens) AS total_tokens,
			sum(total_cost_usd) AS total_cost_usd
		FROM model_usage
		WHERE timestamp >= ?
		GROUP BY context_id
		ORDER BY total_cost_usd DESC
		LIMIT ?
	`

	if err := r.conn.Select(ctx, &totals, query, since, limit); err != nil {
		return nil, errors.Wrap(err, "query context totals")
	}
	return totals, nil
}
