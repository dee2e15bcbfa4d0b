package ai

import (
	"testing"

	"mnemosyne/pkg/errors"
)

func TestProviderOptionsZeroIsValidEverywhere(t *testing.T) {
	var opts ProviderOptions
	if !opts.IsZero() {
		t.Fatal("expected zero options")
	}
	for _, provider := range AllProviderNames() {
		if err := opts.Validate(provider); err != nil {
			t.Errorf("zero options rejected for %s: %v", provider, err)
		}
	}
}

func TestProviderOptionsMatchingVariant(t *testing.T) {
	tests := []struct {
		provider ProviderName
		opts     ProviderOptions
	}{
		{ProviderNameAnthropic, ProviderOptions{Anthropic: &AnthropicOptions{TopK: 40}}},
		{ProviderNameOpenAI, ProviderOptions{OpenAI: &OpenAIOptions{JSONMode: true}}},
		{ProviderNameDeepSeek, ProviderOptions{OpenAI: &OpenAIOptions{PresencePenalty: 0.5}}},
		{ProviderNameGoogle, ProviderOptions{Gemini: &GeminiOptions{TopK: 20}}},
		{ProviderNameOllama, ProviderOptions{Ollama: &OllamaOptions{NumCtx: 8192}}},
	}

	for _, tt := range tests {
		if err := tt.opts.Validate(tt.provider); err != nil {
			t.Errorf("valid options rejected for %s: %v", tt.provider, err)
		}
	}
}

func TestProviderOptionsMismatchedVariant(t *testing.T) {
	opts := ProviderOptions{Anthropic: &AnthropicOptions{TopK: 40}}

	err := opts.Validate(ProviderNameOpenAI)
	if err == nil {
		t.Fatal("expected mismatch error")
	}

	var validationErr *errors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestProviderOptionsMultipleVariants(t *testing.T) {
	opts := ProviderOptions{
		Anthropic: &AnthropicOptions{TopK: 40},
		OpenAI:    &OpenAIOptions{JSONMode: true},
	}

	if err := opts.Validate(ProviderNameAnthropic); err == nil {
		t.Fatal("expected error when two variants are set")
	}
}

func TestOllamaRejectsOpenAIOptions(t *testing.T) {
	opts := ProviderOptions{OpenAI: &OpenAIOptions{JSONMode: true}}
	if err := opts.Validate(ProviderNameOllama); err == nil {
		t.Fatal("expected mismatch error for ollama")
	}
}
