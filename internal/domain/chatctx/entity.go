package chatctx

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Context is a named collection of content items a query can be grounded on
type Context struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ContentKind defines the type of a content item's body
type ContentKind string

const (
	KindText ContentKind = "text"
	KindCode ContentKind = "code"
)

// Valid checks if content kind is supported
func (k ContentKind) Valid() bool {
	switch k {
	case KindText, KindCode:
		return true
	}
	return false
}

// String returns string representation
func (k ContentKind) String() string {
	return string(k)
}

// ContentItem is one piece of groundable content inside a context.
// TokenCount is computed lazily on first packing and cached; zero means
// not yet counted.
type ContentItem struct {
	ID        uuid.UUID   `db:"id"`
	ContextID uuid.UUID   `db:"context_id"`
	Title     string      `db:"title"`
	Body      string      `db:"body"`
	Kind      ContentKind `db:"kind"`

	TokenCount int `db:"token_count"`

	// Embedding is NULL until the embeddings provider has processed the body
	Embedding *pgvector.Vector `db:"embedding"`

	Position  int       `db:"ordinal"`
	CreatedAt time.Time `db:"created_at"`
}

// Empty reports whether the item has no extractable text
func (i *ContentItem) Empty() bool {
	return strings.TrimSpace(i.Body) == ""
}

// ScoredItem pairs a content item with its relevance for one query.
// Transient: created per query, never persisted.
type ScoredItem struct {
	Item      *ContentItem
	Relevance float64
}
