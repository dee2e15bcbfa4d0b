package ai

import (
	"mnemosyne/pkg/errors"
)

// ProviderOptions carries provider-specific request knobs as a tagged
// union. At most one variant may be set, and it must match the provider
// of the connector receiving the request. Connectors validate at the
// call boundary and reject mismatches before any network I/O.
type ProviderOptions struct {
	Anthropic *AnthropicOptions
	OpenAI    *OpenAIOptions
	Gemini    *GeminiOptions
	Ollama    *OllamaOptions
}

// AnthropicOptions tunes requests against the Anthropic Messages API.
type AnthropicOptions struct {
	TopK          int
	StopSequences []string
}

// OpenAIOptions tunes requests against OpenAI-compatible chat APIs.
// DeepSeek accepts the same knobs.
type OpenAIOptions struct {
	PresencePenalty  float64
	FrequencyPenalty float64
	JSONMode         bool
}

// GeminiOptions tunes requests against the Gemini API.
type GeminiOptions struct {
	TopK int
}

// OllamaOptions tunes requests against a local Ollama server.
type OllamaOptions struct {
	NumCtx    int
	KeepAlive string
}

// IsZero reports whether no variant is set
func (o ProviderOptions) IsZero() bool {
	return o.Anthropic == nil && o.OpenAI == nil && o.Gemini == nil && o.Ollama == nil
}

// Validate checks the union holds at most one variant and that it
// matches the given provider. DeepSeek shares the OpenAI variant.
func (o ProviderOptions) Validate(provider ProviderName) error {
	set := 0
	var matched bool

	if o.Anthropic != nil {
		set++
		matched = matched || provider == ProviderNameAnthropic
	}
	if o.OpenAI != nil {
		set++
		matched = matched || provider == ProviderNameOpenAI || provider == ProviderNameDeepSeek
	}
	if o.Gemini != nil {
		set++
		matched = matched || provider == ProviderNameGoogle
	}
	if o.Ollama != nil {
		set++
		matched = matched || provider == ProviderNameOllama
	}

	if set == 0 {
		return nil
	}
	if set > 1 {
		return errors.NewValidationError("options", "multiple provider option variants set", set)
	}
	if !matched {
		return errors.NewValidationError("options", "provider options do not match connector provider", provider.String())
	}
	return nil
}
