package chatctx

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ContextStore defines data access for contexts and their item listings
type ContextStore interface {
	// Create creates a new context
	Create(ctx context.Context, c *Context) error

	// GetByID retrieves a context by primary key
	GetByID(ctx context.Context, id uuid.UUID) (*Context, error)

	// List retrieves all contexts for a user, newest first
	List(ctx context.Context, userID uuid.UUID) ([]*Context, error)

	// Update updates name and description
	Update(ctx context.Context, c *Context) error

	// Delete removes a context and its content items
	Delete(ctx context.Context, id uuid.UUID) error

	// ScoredItems retrieves the context's content items ranked for a query.
	// With a query embedding, relevance is cosine similarity against stored
	// item embeddings; without one, items fall back to a position-based
	// score. Results are ordered by relevance descending, ties in stored
	// item order.
	ScoredItems(ctx context.Context, contextID uuid.UUID, queryEmbedding *pgvector.Vector, limit int) ([]*ScoredItem, error)
}

// ContentStore defines data access for individual content items
type ContentStore interface {
	// CreateItem adds a content item to a context
	CreateItem(ctx context.Context, item *ContentItem) error

	// GetItem retrieves a content item by primary key
	GetItem(ctx context.Context, id uuid.UUID) (*ContentItem, error)

	// GetBody retrieves only the body text of a content item
	GetBody(ctx context.Context, id uuid.UUID) (string, error)

	// ListItems retrieves all items of a context in stored order
	ListItems(ctx context.Context, contextID uuid.UUID) ([]*ContentItem, error)

	// DeleteItem removes a content item
	DeleteItem(ctx context.Context, id uuid.UUID) error

	// SaveTokenCount persists a lazily computed token count so later
	// queries skip recounting
	SaveTokenCount(ctx context.Context, id uuid.UUID, tokenCount int) error
}

// Repository combines both stores; the Postgres implementation backs both
type Repository interface {
	ContextStore
	ContentStore
}
