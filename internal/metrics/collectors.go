package metrics

import (
	"context"
	"time"

	"mnemosyne/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// StoreCollector collects content store gauges at scrape time
type StoreCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB

	totalContexts *prometheus.Desc
	totalItems    *prometheus.Desc
	embeddedItems *prometheus.Desc
	storedTokens  *prometheus.Desc
}

// NewStoreCollector creates a collector over the Postgres content store
func NewStoreCollector(log *logger.Logger, postgres *sqlx.DB) *StoreCollector {
	return &StoreCollector{
		log:      log,
		postgres: postgres,

		totalContexts: prometheus.NewDesc(
			"mnemosyne_total_contexts",
			"Total number of stored contexts",
			nil, nil,
		),
		totalItems: prometheus.NewDesc(
			"mnemosyne_total_content_items",
			"Total number of content items by kind",
			[]string{"kind"}, nil,
		),
		embeddedItems: prometheus.NewDesc(
			"mnemosyne_embedded_content_items",
			"Number of content items with a stored embedding",
			nil, nil,
		),
		storedTokens: prometheus.NewDesc(
			"mnemosyne_stored_content_tokens",
			"Sum of cached token counts across content items",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalContexts
	ch <- c.totalItems
	ch <- c.embeddedItems
	ch <- c.storedTokens
}

// Collect implements prometheus.Collector
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectContextCount(ctx, ch)
	c.collectItemStats(ctx, ch)
	c.collectEmbeddingStats(ctx, ch)
}

func (c *StoreCollector) collectContextCount(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int
	err := c.postgres.GetContext(ctx, &count, "SELECT COUNT(*) FROM contexts")
	if err != nil {
		c.log.Error("Failed to collect context count metric", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.totalContexts,
		prometheus.GaugeValue,
		float64(count),
	)
}

func (c *StoreCollector) collectItemStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type ItemStat struct {
		Kind  string `db:"kind"`
		Count int    `db:"count"`
	}

	var stats []ItemStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT kind, COUNT(*) as count
		FROM content_items
		GROUP BY kind
	`)
	if err != nil {
		c.log.Error("Failed to collect content item stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.totalItems,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Kind,
		)
	}
}

func (c *StoreCollector) collectEmbeddingStats(ctx context.Context, ch chan<- prometheus.Metric) {
	var embedded int
	err := c.postgres.GetContext(ctx, &embedded, "SELECT COUNT(*) FROM content_items WHERE embedding IS NOT NULL")
	if err == nil {
		ch <- prometheus.MustNewConstMetric(
			c.embeddedItems,
			prometheus.GaugeValue,
			float64(embedded),
		)
	}

	var tokenSum int64
	err = c.postgres.GetContext(ctx, &tokenSum, "SELECT COALESCE(SUM(token_count), 0) FROM content_items")
	if err == nil {
		ch <- prometheus.MustNewConstMetric(
			c.storedTokens,
			prometheus.GaugeValue,
			float64(tokenSum),
		)
	}
}

// RegisterStoreCollector registers the store collector
func RegisterStoreCollector(collector *StoreCollector) {
	prometheus.MustRegister(collector)
}
