package embeddings

import "context"

// Provider generates vector embeddings for context items and queries
type Provider interface {
	// GenerateEmbedding embeds a single text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateBatchEmbeddings embeds multiple texts in one call
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced embeddings
	Dimensions() int

	// Name identifies the backing service
	Name() string
}
