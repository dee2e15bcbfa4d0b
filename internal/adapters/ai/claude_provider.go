package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"mnemosyne/pkg/errors"
)

const (
	defaultClaudeBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion  = "2023-06-01"
)

// ClaudeConnector serves a single Anthropic model over the Messages API.
type ClaudeConnector struct {
	apiKey     string
	baseURL    string
	descriptor ModelDescriptor
	timeout    time.Duration
	limiter    RateLimiter
	client     *http.Client
}

// Ensure ClaudeConnector implements Connector
var _ Connector = (*ClaudeConnector)(nil)

// NewClaudeConnector creates a connector bound to modelID. A nil limiter
// disables rate limiting.
func NewClaudeConnector(apiKey, modelID string, timeout time.Duration, limiter RateLimiter) *ClaudeConnector {
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}

	// No client-level timeout: streams outlive any sane request deadline,
	// blocking calls get a per-call context deadline instead.
	return &ClaudeConnector{
		apiKey:     apiKey,
		baseURL:    defaultClaudeBaseURL,
		descriptor: claudeDescriptor(modelID),
		timeout:    timeout,
		limiter:    limiter,
		client:     &http.Client{},
	}
}

// Descriptor returns static model metadata.
func (c *ClaudeConnector) Descriptor() ModelDescriptor {
	return c.descriptor
}

// ListAvailableModels queries the Anthropic models endpoint, falling back
// to the static catalog when discovery fails.
func (c *ClaudeConnector) ListAvailableModels(ctx context.Context) ([]string, error) {
	ids, err := c.discoverModels(ctx)
	if err != nil {
		return catalogIDs(claudeCatalog()), nil
	}
	return ids, nil
}

func (c *ClaudeConnector) discoverModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, errors.Wrap(err, "create models request")
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderNameAnthropic, c.descriptor.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newProviderError(ProviderNameAnthropic, c.descriptor.ID, resp.StatusCode, string(body))
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode models response")
	}

	ids := make([]string, 0, len(payload.Data))
	for _, m := range payload.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func claudeCatalog() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID:               ModelClaude45Sonnet,
			Provider:         ProviderNameAnthropic,
			Family:           "claude-4",
			MaxContextTokens: 200000,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityVision, CapabilityCode},
		},
		{
			ID:               ModelClaude45Haiku,
			Provider:         ProviderNameAnthropic,
			Family:           "claude-4",
			MaxContextTokens: 200000,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityVision},
		},
		{
			ID:               ModelClaude41Opus,
			Provider:         ProviderNameAnthropic,
			Family:           "claude-4",
			MaxContextTokens: 200000,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityVision, CapabilityCode},
		},
	}
}

// claudeDescriptor resolves modelID against the static catalog. Unknown IDs
// still get a descriptor with the provider default context window so newly
// released models work without a code change.
func claudeDescriptor(modelID string) ModelDescriptor {
	for _, d := range claudeCatalog() {
		if d.ID == modelID {
			return d
		}
	}
	return ModelDescriptor{
		ID:               modelID,
		Provider:         ProviderNameAnthropic,
		Family:           "claude",
		MaxContextTokens: 200000,
		Capabilities:     []string{CapabilityChat, CapabilityStreaming},
	}
}
