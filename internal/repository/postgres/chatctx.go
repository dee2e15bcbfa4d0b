package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"mnemosyne/internal/domain/chatctx"
	"mnemosyne/pkg/errors"
)

// Compile-time check
var _ chatctx.Repository = (*ChatContextRepository)(nil)

// ChatContextRepository implements chatctx.Repository using sqlx and pgvector
type ChatContextRepository struct {
	db DBTX
}

// NewChatContextRepository creates a new context repository
func NewChatContextRepository(db DBTX) *ChatContextRepository {
	return &ChatContextRepository{db: db}
}

// Create inserts a new context
func (r *ChatContextRepository) Create(ctx context.Context, c *chatctx.Context) error {
	query := `
		INSERT INTO contexts (id, user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, c.Description, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert context")
	}
	return nil
}

// GetByID retrieves a context by primary key
func (r *ChatContextRepository) GetByID(ctx context.Context, id uuid.UUID) (*chatctx.Context, error) {
	var c chatctx.Context

	err := r.db.GetContext(ctx, &c, `SELECT * FROM contexts WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get context")
	}
	return &c, nil
}

// List retrieves all contexts for a user, newest first
func (r *ChatContextRepository) List(ctx context.Context, userID uuid.UUID) ([]*chatctx.Context, error) {
	var contexts []*chatctx.Context

	err := r.db.SelectContext(ctx, &contexts, `
		SELECT * FROM contexts
		WHERE user_id = $1
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list contexts")
	}
	return contexts, nil
}

// Update updates name and description
func (r *ChatContextRepository) Update(ctx context.Context, c *chatctx.Context) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE contexts
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1`,
		c.ID, c.Name, c.Description, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "update context")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// Delete removes a context; content items cascade at the schema level
func (r *ChatContextRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contexts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete context")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// scoredItemRow flattens a content item with its computed relevance
type scoredItemRow struct {
	chatctx.ContentItem
	Relevance float64 `db:"relevance"`
}

// ScoredItems retrieves the context's items ranked for a query. With a
// query embedding, relevance is cosine similarity against item embeddings
// (unembedded items score zero); without one, relevance decays linearly
// with stored position so earlier items rank higher. Ordering is relevance
// descending with position as the stable tiebreak.
func (r *ChatContextRepository) ScoredItems(ctx context.Context, contextID uuid.UUID, queryEmbedding *pgvector.Vector, limit int) ([]*chatctx.ScoredItem, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []*scoredItemRow
	var err error

	if queryEmbedding != nil {
		query := `
			SELECT *,
			       CASE WHEN embedding IS NULL THEN 0
			            ELSE greatest(0, 1 - (embedding <=> $2))
			       END AS relevance
			FROM content_items
			WHERE context_id = $1
			ORDER BY relevance DESC, ordinal ASC
			LIMIT $3`
		err = r.db.SelectContext(ctx, &rows, query, contextID, *queryEmbedding, limit)
	} else {
		query := `
			SELECT *,
			       1.0 / (1 + ordinal) AS relevance
			FROM content_items
			WHERE context_id = $1
			ORDER BY ordinal ASC
			LIMIT $2`
		err = r.db.SelectContext(ctx, &rows, query, contextID, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "score content items")
	}

	items := make([]*chatctx.ScoredItem, 0, len(rows))
	for _, row := range rows {
		item := row.ContentItem
		items = append(items, &chatctx.ScoredItem{Item: &item, Relevance: row.Relevance})
	}
	return items, nil
}

// CreateItem adds a content item to a context
func (r *ChatContextRepository) CreateItem(ctx context.Context, item *chatctx.ContentItem) error {
	query := `
		INSERT INTO content_items (
			id, context_id, title, body, kind, token_count, embedding, ordinal, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			COALESCE((SELECT MAX(ordinal) + 1 FROM content_items WHERE context_id = $2), 0),
			$8
		)`

	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.ContextID, item.Title, item.Body, item.Kind,
		item.TokenCount, item.Embedding, item.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert content item")
	}
	return nil
}

// GetItem retrieves a content item by primary key
func (r *ChatContextRepository) GetItem(ctx context.Context, id uuid.UUID) (*chatctx.ContentItem, error) {
	var item chatctx.ContentItem

	err := r.db.GetContext(ctx, &item, `SELECT * FROM content_items WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get content item")
	}
	return &item, nil
}

// GetBody retrieves only the body text of a content item
func (r *ChatContextRepository) GetBody(ctx context.Context, id uuid.UUID) (string, error) {
	var body string

	err := r.db.GetContext(ctx, &body, `SELECT body FROM content_items WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return "", errors.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "get content body")
	}
	return body, nil
}

// ListItems retrieves all items of a context in stored order
func (r *ChatContextRepository) ListItems(ctx context.Context, contextID uuid.UUID) ([]*chatctx.ContentItem, error) {
	var items []*chatctx.ContentItem

	err := r.db.SelectContext(ctx, &items, `
		SELECT * FROM content_items
		WHERE context_id = $1
		ORDER BY ordinal ASC`, contextID)
	if err != nil {
		return nil, errors.Wrap(err, "list content items")
	}
	return items, nil
}

// DeleteItem removes a content item
func (r *ChatContextRepository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM content_items WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete content item")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// SaveTokenCount persists a lazily computed token count
func (r *ChatContextRepository) SaveTokenCount(ctx context.Context, id uuid.UUID, tokenCount int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE content_items SET token_count = $2 WHERE id = $1`, id, tokenCount)
	if err != nil {
		return errors.Wrap(err, "save token count")
	}
	return nil
}
