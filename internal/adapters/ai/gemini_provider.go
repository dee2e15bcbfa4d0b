package ai

import (
	"context"
	"time"

	"google.golang.org/genai"

	"mnemosyne/pkg/errors"
)

// GeminiConnector serves a single Google Gemini model through the official
// genai SDK.
type GeminiConnector struct {
	client     *genai.Client
	descriptor ModelDescriptor
	timeout    time.Duration
	limiter    RateLimiter
	initErr    error // client construction failure, reported on first use
}

// Ensure GeminiConnector implements Connector
var _ Connector = (*GeminiConnector)(nil)

// NewGeminiConnector creates a connector bound to modelID. Client
// construction failures are deferred to the first call so wiring stays
// infallible.
func NewGeminiConnector(apiKey, modelID string, timeout time.Duration, limiter RateLimiter) *GeminiConnector {
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}

	conn := &GeminiConnector{
		descriptor: geminiDescriptor(modelID),
		timeout:    timeout,
		limiter:    limiter,
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		conn.initErr = errors.Wrap(err, "initialize gemini client")
		return conn
	}
	conn.client = client
	return conn
}

// Descriptor returns static model metadata.
func (c *GeminiConnector) Descriptor() ModelDescriptor {
	return c.descriptor
}

// ListAvailableModels returns the supported model set. The served set for
// an API key matches the public catalog, so no remote call is made.
func (c *GeminiConnector) ListAvailableModels(_ context.Context) ([]string, error) {
	return catalogIDs(geminiCatalog()), nil
}

func (c *GeminiConnector) ready() error {
	if c.initErr != nil {
		return c.initErr
	}
	if c.client == nil {
		return errors.Wrap(errors.ErrUnavailable, "gemini client not initialized")
	}
	return nil
}

func geminiCatalog() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID:               ModelGemini20Flash,
			Provider:         ProviderNameGoogle,
			Family:           "gemini-2.0",
			MaxContextTokens: 1048576,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityVision, CapabilityJSON},
		},
		{
			ID:               ModelGemini15Pro,
			Provider:         ProviderNameGoogle,
			Family:           "gemini-1.5",
			MaxContextTokens: 2097152,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityVision},
		},
	}
}

func geminiDescriptor(modelID string) ModelDescriptor {
	for _, d := range geminiCatalog() {
		if d.ID == modelID {
			return d
		}
	}
	return ModelDescriptor{
		ID:               modelID,
		Provider:         ProviderNameGoogle,
		Family:           "gemini",
		MaxContextTokens: 1048576,
		Capabilities:     []string{CapabilityChat, CapabilityStreaming},
	}
}
