package ai

import "context"

// Model capability identifiers carried by ModelDescriptor.Capabilities.
const (
	CapabilityChat      = "chat"
	CapabilityStreaming = "streaming"
	CapabilityVision    = "vision"
	CapabilityCode      = "code"
	CapabilityJSON      = "json"
)

// ModelDescriptor describes one registered model. Immutable once registered.
type ModelDescriptor struct {
	ID               string       // Registry key, e.g. "claude-sonnet-4-5"
	Provider         ProviderName // Owning provider
	Family           string       // Family/category name (e.g., "claude-4")
	MaxContextTokens int          // Maximum context window length
	Capabilities     []string     // Capability identifiers, see Capability* constants
}

// HasCapability reports whether the model advertises the given capability
func (d ModelDescriptor) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Connector is the uniform request surface over one provider-hosted model.
// Implementations are safe for concurrent use: per-call state never leaks
// into the connector itself.
type Connector interface {
	// Descriptor returns immutable model metadata. Pure, never fails.
	Descriptor() ModelDescriptor

	// Chat sends a blocking completion request.
	// Failures are normalized to *ProviderError.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream begins a streaming completion. Chunks arrive on the first
	// channel in provider-emission order; the channel is closed after the
	// terminal chunk. At most one error is delivered on the second channel,
	// after which no further chunks follow. Content already delivered before
	// a mid-stream failure is not retracted. Cancelling ctx aborts the
	// upstream call and closes both channels.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatStreamChunk, <-chan error)

	// ListAvailableModels queries the provider for currently served model
	// ids. Best effort: callers fall back to the static catalog on error
	// instead of failing registration.
	ListAvailableModels(ctx context.Context) ([]string, error)
}
