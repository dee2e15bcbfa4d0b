package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"mnemosyne/pkg/errors"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaConnector serves a single model hosted by a local Ollama server.
// No API key is involved; the server either has the model pulled or it
// does not.
type OllamaConnector struct {
	baseURL    string
	descriptor ModelDescriptor
	timeout    time.Duration
	limiter    RateLimiter
	client     *http.Client
}

// Ensure OllamaConnector implements Connector
var _ Connector = (*OllamaConnector)(nil)

// NewOllamaConnector creates a connector bound to modelID. An empty baseURL
// falls back to the standard local port.
func NewOllamaConnector(baseURL, modelID string, timeout time.Duration, limiter RateLimiter) *OllamaConnector {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}
	return &OllamaConnector{
		baseURL:    strings.TrimRight(baseURL, "/"),
		descriptor: ollamaDescriptor(modelID),
		timeout:    timeout,
		limiter:    limiter,
		client:     &http.Client{},
	}
}

// Descriptor returns static model metadata.
func (c *OllamaConnector) Descriptor() ModelDescriptor {
	return c.descriptor
}

// ListAvailableModels queries the server for locally pulled models. When the
// server is unreachable only the bound model is reported.
func (c *OllamaConnector) ListAvailableModels(ctx context.Context) ([]string, error) {
	names, err := c.discoverModels(ctx)
	if err != nil {
		return []string{c.descriptor.ID}, nil
	}
	return names, nil
}

func (c *OllamaConnector) discoverModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, errors.Wrap(err, "create tags request")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderNameOllama, c.descriptor.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newProviderError(ProviderNameOllama, c.descriptor.ID, resp.StatusCode, ollamaErrorMessage(body))
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode tags response")
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func ollamaCatalog() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID:               ModelLlama32,
			Provider:         ProviderNameOllama,
			Family:           "llama",
			MaxContextTokens: 131072,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming},
		},
		{
			ID:               ModelQwen25Coder,
			Provider:         ProviderNameOllama,
			Family:           "qwen",
			MaxContextTokens: 32768,
			Capabilities:     []string{CapabilityChat, CapabilityStreaming, CapabilityCode},
		},
	}
}

// ollamaDescriptor resolves modelID against the static catalog. Anything
// can be pulled into a local server, so unknown IDs get a conservative
// default window.
func ollamaDescriptor(modelID string) ModelDescriptor {
	for _, d := range ollamaCatalog() {
		if d.ID == modelID {
			return d
		}
	}
	return ModelDescriptor{
		ID:               modelID,
		Provider:         ProviderNameOllama,
		Family:           "ollama",
		MaxContextTokens: 8192,
		Capabilities:     []string{CapabilityChat, CapabilityStreaming},
	}
}
