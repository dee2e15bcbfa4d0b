package ai

import (
	"context"
	"net/http"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConnector serves a single OpenAI model over the chat completions API.
type OpenAIConnector struct {
	openAICompat
}

// Ensure OpenAIConnector implements Connector
var _ Connector = (*OpenAIConnector)(nil)

// NewOpenAIConnector creates a connector bound to modelID. A nil limiter
// disables rate limiting.
func NewOpenAIConnector(apiKey, modelID string, timeout time.Duration, limiter RateLimiter) *OpenAIConnector {
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}
	return &OpenAIConnector{openAICompat{
		provider:   ProviderNameOpenAI,
		apiKey:     apiKey,
		baseURL:    defaultOpenAIBaseURL,
		descriptor: openAIDescriptor(modelID),
		timeout:    timeout,
		limiter:    limiter,
		client:     &http.Client{},
	}}
}

// Descriptor returns static model metadata.
func (c *OpenAIConnector) Descriptor() ModelDescriptor {
	return c.descriptor
}

// ListAvailableModels queries the OpenAI models endpoint, falling back to
// the static catalog when discovery fails.
func (c *OpenAIConnector) ListAvailableModels(ctx context.Context) ([]string, error) {
	ids, err := c.listModels(ctx)
	if err != nil {
		return catalogIDs(openAICatalog()), nil
	}
	return ids, nil
}

func openAICatalog() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID:               ModelGPT51,
			Provider:         ProviderNameOpenAI,
			Family:           "gpt-5",
			MaxContextTokens: 400000,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityVision, CapabilityCode, CapabilityJSON},
		},
		{
			ID:               ModelGPT4o,
			Provider:         ProviderNameOpenAI,
			Family:           "gpt-4o",
			MaxContextTokens: 128000,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityVision, CapabilityJSON},
		},
		{
			ID:               ModelGPT4oMini,
			Provider:         ProviderNameOpenAI,
			Family:           "gpt-4o",
			MaxContextTokens: 128000,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityJSON},
		},
	}
}

func openAIDescriptor(modelID string) ModelDescriptor {
	for _, d := range openAICatalog() {
		if d.ID == modelID {
			return d
		}
	}
	return ModelDescriptor{
		ID:               modelID,
		Provider:         ProviderNameOpenAI,
		Family:           "gpt",
		MaxContextTokens: 128000,
		Capabilities:     []string{CapabilityChat, CapabilityStreaming},
	}
}
