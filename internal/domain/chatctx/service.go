package chatctx

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"mnemosyne/internal/adapters/embeddings"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// Service handles context and content business logic (domain layer).
// The embedder is optional: without one, items are stored unembedded and
// query-time relevance falls back to stored item order.
type Service struct {
	repo     Repository
	embedder embeddings.Provider
	log      *logger.Logger
}

// NewService creates a new context domain service
func NewService(repo Repository, embedder embeddings.Provider) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		log:      logger.Get().With("component", "chatctx_service"),
	}
}

// CreateContext creates a new context
func (s *Service) CreateContext(ctx context.Context, c *Context) error {
	if c == nil || c.Name == "" {
		return errors.ErrInvalidInput
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	return s.repo.Create(ctx, c)
}

// GetContext retrieves a context by ID
func (s *Service) GetContext(ctx context.Context, id uuid.UUID) (*Context, error) {
	if id == uuid.Nil {
		return nil, errors.ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

// ListContexts retrieves all contexts for a user
func (s *Service) ListContexts(ctx context.Context, userID uuid.UUID) ([]*Context, error) {
	return s.repo.List(ctx, userID)
}

// UpdateContext updates context name and description
func (s *Service) UpdateContext(ctx context.Context, c *Context) error {
	if c == nil || c.ID == uuid.Nil || c.Name == "" {
		return errors.ErrInvalidInput
	}
	c.UpdatedAt = time.Now().UTC()
	return s.repo.Update(ctx, c)
}

// DeleteContext removes a context and all its content items
func (s *Service) DeleteContext(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.ErrInvalidInput
	}
	return s.repo.Delete(ctx, id)
}

// AddItem validates and stores a content item, embedding its body when an
// embeddings provider is configured. Embedding failures degrade to an
// unembedded item rather than failing the write.
func (s *Service) AddItem(ctx context.Context, item *ContentItem) error {
	if item == nil || item.ContextID == uuid.Nil {
		return errors.ErrInvalidInput
	}
	if item.Title == "" {
		return errors.NewValidationError("title", "title is required", item.Title)
	}
	if item.Empty() {
		return errors.NewValidationError("body", "body is required", "")
	}
	if item.Kind == "" {
		item.Kind = KindText
	}
	if !item.Kind.Valid() {
		return errors.NewValidationError("kind", "unsupported content kind", item.Kind.String())
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = time.Now().UTC()

	if s.embedder != nil {
		vec, err := s.embedder.GenerateEmbedding(ctx, item.Body)
		if err != nil {
			s.log.Warnw("Embedding generation failed, storing item unembedded",
				"item", item.ID, "error", err)
		} else {
			v := pgvector.NewVector(vec)
			item.Embedding = &v
		}
	}

	return s.repo.CreateItem(ctx, item)
}

// GetItem retrieves a content item by ID
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*ContentItem, error) {
	if id == uuid.Nil {
		return nil, errors.ErrInvalidInput
	}
	return s.repo.GetItem(ctx, id)
}

// ListItems retrieves all items of a context in stored order
func (s *Service) ListItems(ctx context.Context, contextID uuid.UUID) ([]*ContentItem, error) {
	if contextID == uuid.Nil {
		return nil, errors.ErrInvalidInput
	}
	return s.repo.ListItems(ctx, contextID)
}

// DeleteItem removes a content item
func (s *Service) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.ErrInvalidInput
	}
	return s.repo.DeleteItem(ctx, id)
}

// ScoredItems ranks a context's content for the given query text. The query
// is embedded when possible; an embedding failure falls back to positional
// relevance instead of failing the query.
func (s *Service) ScoredItems(ctx context.Context, contextID uuid.UUID, query string) ([]*ScoredItem, error) {
	if contextID == uuid.Nil {
		return nil, errors.ErrInvalidInput
	}

	var queryEmbedding *pgvector.Vector
	if s.embedder != nil && query != "" {
		vec, err := s.embedder.GenerateEmbedding(ctx, query)
		if err != nil {
			s.log.Warnw("Query embedding failed, falling back to positional relevance",
				"context", contextID, "error", err)
		} else {
			v := pgvector.NewVector(vec)
			queryEmbedding = &v
		}
	}

	return s.repo.ScoredItems(ctx, contextID, queryEmbedding, 0)
}

// SaveTokenCount persists a token count computed during packing
func (s *Service) SaveTokenCount(ctx context.Context, id uuid.UUID, tokenCount int) error {
	if id == uuid.Nil || tokenCount < 0 {
		return errors.ErrInvalidInput
	}
	return s.repo.SaveTokenCount(ctx, id, tokenCount)
}
