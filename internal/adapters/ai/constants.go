package ai

// ProviderName represents an AI provider identifier
type ProviderName string

// Provider name constants
const (
	ProviderNameAnthropic ProviderName = "anthropic"
	ProviderNameOpenAI    ProviderName = "openai"
	ProviderNameGoogle    ProviderName = "google"
	ProviderNameDeepSeek  ProviderName = "deepseek"
	ProviderNameOllama    ProviderName = "ollama"
)

// String returns the string representation of the provider name
func (p ProviderName) String() string {
	return string(p)
}

// IsValid checks if the provider name is supported
func (p ProviderName) IsValid() bool {
	switch p {
	case ProviderNameAnthropic, ProviderNameOpenAI, ProviderNameGoogle, ProviderNameDeepSeek, ProviderNameOllama:
		return true
	default:
		return false
	}
}

// AllProviderNames returns all supported provider names
func AllProviderNames() []ProviderName {
	return []ProviderName{
		ProviderNameAnthropic,
		ProviderNameOpenAI,
		ProviderNameGoogle,
		ProviderNameDeepSeek,
		ProviderNameOllama,
	}
}

// Model ID constants for the static catalogs
const (
	ModelClaude45Sonnet = "claude-sonnet-4-5"
	ModelClaude45Haiku  = "claude-haiku-4-5"
	ModelClaude41Opus   = "claude-opus-4-1"

	ModelGPT51     = "gpt-5.1"
	ModelGPT4o     = "gpt-4o"
	ModelGPT4oMini = "gpt-4o-mini"

	ModelDeepSeekChat     = "deepseek-chat"
	ModelDeepSeekReasoner = "deepseek-reasoner"

	ModelGemini20Flash = "gemini-2.0-flash"
	ModelGemini15Pro   = "gemini-1.5-pro"

	ModelLlama32     = "llama3.2"
	ModelQwen25Coder = "qwen2.5-coder"
)

// catalogIDs extracts the model IDs from a static catalog
func catalogIDs(catalog []ModelDescriptor) []string {
	ids := make([]string, 0, len(catalog))
	for _, d := range catalog {
		ids = append(ids, d.ID)
	}
	return ids
}
