package ai

// ChatRequest represents a completion request against the connector's
// bound model. Options carries provider-specific knobs and must match
// the receiving connector's provider.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
	Options     ProviderOptions
}

// Message represents a single message in the conversation.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatResponse represents the reply from a blocking completion.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason FinishReason
	Usage        Usage
}

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
	FinishReasonError  FinishReason = "error"
)

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatStreamChunk is one unit of a streaming response.
// The terminal chunk has Done set; Usage is attached to it when the
// provider reports exact counts, nil otherwise.
type ChatStreamChunk struct {
	Content      string
	Done         bool
	FinishReason FinishReason
	Usage        *Usage
}
