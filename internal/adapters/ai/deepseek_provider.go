package ai

import (
	"context"
	"net/http"
	"time"
)

const defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekConnector serves a single DeepSeek model. The API is
// OpenAI-compatible, so the shared protocol core does the work.
type DeepSeekConnector struct {
	openAICompat
}

// Ensure DeepSeekConnector implements Connector
var _ Connector = (*DeepSeekConnector)(nil)

// NewDeepSeekConnector creates a connector bound to modelID. A nil limiter
// disables rate limiting.
func NewDeepSeekConnector(apiKey, modelID string, timeout time.Duration, limiter RateLimiter) *DeepSeekConnector {
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}
	return &DeepSeekConnector{openAICompat{
		provider:   ProviderNameDeepSeek,
		apiKey:     apiKey,
		baseURL:    defaultDeepSeekBaseURL,
		descriptor: deepSeekDescriptor(modelID),
		timeout:    timeout,
		limiter:    limiter,
		client:     &http.Client{},
	}}
}

// Descriptor returns static model metadata.
func (c *DeepSeekConnector) Descriptor() ModelDescriptor {
	return c.descriptor
}

// ListAvailableModels queries the DeepSeek models endpoint, falling back to
// the static catalog when discovery fails.
func (c *DeepSeekConnector) ListAvailableModels(ctx context.Context) ([]string, error) {
	ids, err := c.listModels(ctx)
	if err != nil {
		return catalogIDs(deepSeekCatalog()), nil
	}
	return ids, nil
}

func deepSeekCatalog() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID:               ModelDeepSeekChat,
			Provider:         ProviderNameDeepSeek,
			Family:           "deepseek",
			MaxContextTokens: 65536,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityCode, CapabilityJSON},
		},
		{
			ID:               ModelDeepSeekReasoner,
			Provider:         ProviderNameDeepSeek,
			Family:           "deepseek",
			MaxContextTokens: 65536,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityCode},
		},
	}
}

func deepSeekDescriptor(modelID string) ModelDescriptor {
	for _, d := range deepSeekCatalog() {
		if d.ID == modelID {
			return d
		}
	}
	return ModelDescriptor{
		ID:               modelID,
		Provider:         ProviderNameDeepSeek,
		Family:           "deepseek",
		MaxContextTokens: 65536,
		Capabilities:     []string{CapabilityChat, CapabilityStreaming},
	}
}
