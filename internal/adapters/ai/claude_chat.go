package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"mnemosyne/pkg/errors"
)

// Chat sends a blocking completion request to the Anthropic Messages API.
func (c *ClaudeConnector) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "anthropic API key not configured")
	}
	if err := req.Options.Validate(ProviderNameAnthropic); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(c.buildRequest(req, false))
	if err != nil {
		return nil, errors.Wrap(err, "marshal anthropic request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderNameAnthropic, c.descriptor.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderNameAnthropic, c.descriptor.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError(ProviderNameAnthropic, c.descriptor.ID, resp.StatusCode, claudeErrorMessage(respBody))
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return nil, errors.Wrap(err, "unmarshal anthropic response")
	}
	return c.convertResponse(&claudeResp), nil
}

// ChatStream begins a streaming completion over SSE.
func (c *ClaudeConnector) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatStreamChunk, <-chan error) {
	chunks := make(chan ChatStreamChunk)
	errs := make(chan error, 1)

	fail := func(err error) (<-chan ChatStreamChunk, <-chan error) {
		errs <- err
		close(errs)
		close(chunks)
		return chunks, errs
	}

	if c.apiKey == "" {
		return fail(errors.Wrap(errors.ErrInvalidInput, "anthropic API key not configured"))
	}
	if err := req.Options.Validate(ProviderNameAnthropic); err != nil {
		return fail(err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fail(err)
	}

	body, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return fail(errors.Wrap(err, "marshal anthropic request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fail(errors.Wrap(err, "create anthropic request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fail(transportError(ProviderNameAnthropic, c.descriptor.ID, err))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return fail(newProviderError(ProviderNameAnthropic, c.descriptor.ID, resp.StatusCode, claudeErrorMessage(respBody)))
	}

	go c.consumeStream(ctx, resp.Body, chunks, errs)
	return chunks, errs
}

// consumeStream walks the Anthropic SSE event sequence and forwards text
// deltas. Usage arrives split across message_start (input tokens) and
// message_delta (output tokens); both halves are stitched onto the terminal
// chunk.
func (c *ClaudeConnector) consumeStream(ctx context.Context, body io.ReadCloser, chunks chan<- ChatStreamChunk, errs chan<- error) {
	defer close(chunks)
	defer close(errs)
	defer func() { _ = body.Close() }()

	var usage Usage
	finish := FinishReasonStop

	scanner := newSSEScanner(body)
	for scanner.Next() {
		ev := scanner.Event()
		switch ev.Type {
		case "message_start":
			var payload struct {
				Message struct {
					Usage claudeUsage `json:"usage"`
				} `json:"message"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &payload); err == nil {
				usage.PromptTokens = payload.Message.Usage.InputTokens
			}

		case "content_block_delta":
			var payload struct {
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
				continue
			}
			if payload.Delta.Type != "text_delta" || payload.Delta.Text == "" {
				continue
			}
			select {
			case chunks <- ChatStreamChunk{Content: payload.Delta.Text}:
			case <-ctx.Done():
				return
			}

		case "message_delta":
			var payload struct {
				Delta struct {
					StopReason string `json:"stop_reason"`
				} `json:"delta"`
				Usage claudeUsage `json:"usage"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &payload); err == nil {
				usage.CompletionTokens = payload.Usage.OutputTokens
				if payload.Delta.StopReason == "max_tokens" {
					finish = FinishReasonLength
				}
			}

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			final := usage
			select {
			case chunks <- ChatStreamChunk{Done: true, FinishReason: finish, Usage: &final}:
			case <-ctx.Done():
			}
			return

		case "error":
			var payload struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			msg := ev.Data
			if err := json.Unmarshal([]byte(ev.Data), &payload); err == nil && payload.Error.Message != "" {
				msg = payload.Error.Message
			}
			errs <- &ProviderError{
				Provider: ProviderNameAnthropic,
				Model:    c.descriptor.ID,
				Kind:     claudeStreamErrorKind(payload.Error.Type),
				Message:  msg,
			}
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		errs <- transportError(ProviderNameAnthropic, c.descriptor.ID, err)
		return
	}
	errs <- errors.Wrapf(errors.ErrStreamInterrupted, "anthropic stream for %s ended without message_stop", c.descriptor.ID)
}

// Anthropic API types
type claudeRequest struct {
	Model         string          `json:"model"`
	Messages      []claudeMessage `json:"messages"`
	System        string          `json:"system,omitempty"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   float64         `json:"temperature,omitempty"`
	TopP          float64         `json:"top_p,omitempty"`
	TopK          int             `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

type claudeResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Content    []claudeContent `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Usage      claudeUsage     `json:"usage"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// buildRequest converts our request format to Anthropic's. The system
// message travels in the dedicated top-level field, not the message list.
func (c *ClaudeConnector) buildRequest(req ChatRequest, stream bool) claudeRequest {
	claudeReq := claudeRequest{
		Model:       c.descriptor.ID,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      stream,
	}

	if claudeReq.MaxTokens == 0 {
		claudeReq.MaxTokens = 4096 // Default
	}

	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			claudeReq.System = msg.Content
			continue
		}
		claudeReq.Messages = append(claudeReq.Messages, claudeMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	if opts := req.Options.Anthropic; opts != nil {
		claudeReq.TopK = opts.TopK
		claudeReq.StopSequences = opts.StopSequences
	}

	return claudeReq
}

// convertResponse converts Anthropic's reply to our format.
func (c *ClaudeConnector) convertResponse(resp *claudeResponse) *ChatResponse {
	var textParts []string
	for _, content := range resp.Content {
		if content.Type == "text" {
			textParts = append(textParts, content.Text)
		}
	}

	finishReason := FinishReasonStop
	if resp.StopReason == "max_tokens" {
		finishReason = FinishReasonLength
	}

	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      strings.Join(textParts, "\n"),
		FinishReason: finishReason,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// claudeErrorMessage extracts the message from an Anthropic error body,
// falling back to the raw payload.
func claudeErrorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Type + ": " + errResp.Error.Message
	}
	return string(body)
}

func claudeStreamErrorKind(errType string) ErrorKind {
	switch errType {
	case "rate_limit_error":
		return ErrorKindRateLimit
	case "authentication_error", "permission_error":
		return ErrorKindAuth
	case "overloaded_error", "api_error":
		return ErrorKindServer
	default:
		return ErrorKindUnknown
	}
}
