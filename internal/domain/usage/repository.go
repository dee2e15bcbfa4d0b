package usage

import (
	"context"
	"time"
)

// Repository defines durable usage storage and aggregate reads
type Repository interface {
	// Store buffers a usage record for batched insertion
	Store(ctx context.Context, record *Record) error

	// TotalsByModel aggregates usage per model since the given time
	TotalsByModel(ctx context.Context, since time.Time) ([]*ModelTotals, error)

	// TotalsByDay aggregates usage per calendar day since the given time
	TotalsByDay(ctx context.Context, since time.Time) ([]*DailyTotals, error)

	// TotalsByContext aggregates spend per context since the given time
	TotalsByContext(ctx context.Context, since time.Time, limit int) ([]*ContextTotals, error)
}
