package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"mnemosyne/pkg/errors"
)

// openAICompat implements the OpenAI chat completions protocol. OpenAI and
// DeepSeek connectors embed it; the two APIs differ only in base URL and
// model catalog.
type openAICompat struct {
	provider   ProviderName
	apiKey     string
	baseURL    string // includes the version prefix, e.g. "https://api.openai.com/v1"
	descriptor ModelDescriptor
	timeout    time.Duration
	limiter    RateLimiter
	client     *http.Client
}

// Chat sends a blocking completion request.
func (o *openAICompat) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if o.apiKey == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "%s API key not configured", o.provider)
	}
	if err := req.Options.Validate(o.provider); err != nil {
		return nil, err
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	body, err := json.Marshal(o.buildRequest(req, false))
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s request", o.provider)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "create %s request", o.provider)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, transportError(o.provider, o.descriptor.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(o.provider, o.descriptor.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError(o.provider, o.descriptor.ID, resp.StatusCode, openAIErrorMessage(respBody))
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s response", o.provider)
	}
	return o.convertResponse(&openAIResp), nil
}

// ChatStream begins a streaming completion over SSE. Usage is requested via
// stream_options and arrives on the last data frame before [DONE].
func (o *openAICompat) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatStreamChunk, <-chan error) {
	chunks := make(chan ChatStreamChunk)
	errs := make(chan error, 1)

	fail := func(err error) (<-chan ChatStreamChunk, <-chan error) {
		errs <- err
		close(errs)
		close(chunks)
		return chunks, errs
	}

	if o.apiKey == "" {
		return fail(errors.Wrapf(errors.ErrInvalidInput, "%s API key not configured", o.provider))
	}
	if err := req.Options.Validate(o.provider); err != nil {
		return fail(err)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return fail(err)
	}

	body, err := json.Marshal(o.buildRequest(req, true))
	if err != nil {
		return fail(errors.Wrapf(err, "marshal %s request", o.provider))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fail(errors.Wrapf(err, "create %s request", o.provider))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return fail(transportError(o.provider, o.descriptor.ID, err))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return fail(newProviderError(o.provider, o.descriptor.ID, resp.StatusCode, openAIErrorMessage(respBody)))
	}

	go o.consumeStream(ctx, resp.Body, chunks, errs)
	return chunks, errs
}

func (o *openAICompat) consumeStream(ctx context.Context, body io.ReadCloser, chunks chan<- ChatStreamChunk, errs chan<- error) {
	defer close(chunks)
	defer close(errs)
	defer func() { _ = body.Close() }()

	var usage *Usage
	finish := FinishReasonStop

	scanner := newSSEScanner(body)
	for scanner.Next() {
		data := strings.TrimSpace(scanner.Event().Data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			select {
			case chunks <- ChatStreamChunk{Done: true, FinishReason: finish, Usage: usage}:
			case <-ctx.Done():
			}
			return
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = &Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason == "length" {
			finish = FinishReasonLength
		}
		if choice.Delta.Content == "" {
			continue
		}
		select {
		case chunks <- ChatStreamChunk{Content: choice.Delta.Content}:
		case <-ctx.Done():
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		errs <- transportError(o.provider, o.descriptor.ID, err)
		return
	}
	errs <- errors.Wrapf(errors.ErrStreamInterrupted, "%s stream for %s ended without [DONE]", o.provider, o.descriptor.ID)
}

// listModels queries the provider's models endpoint.
func (o *openAICompat) listModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return nil, errors.Wrap(err, "create models request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, transportError(o.provider, o.descriptor.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newProviderError(o.provider, o.descriptor.ID, resp.StatusCode, openAIErrorMessage(body))
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

// OpenAI-compatible API types
type openAIRequest struct {
	Model            string                `json:"model"`
	Messages         []openAIMessage       `json:"messages"`
	Temperature      float64               `json:"temperature,omitempty"`
	TopP             float64               `json:"top_p,omitempty"`
	MaxTokens        int                   `json:"max_tokens,omitempty"`
	PresencePenalty  float64               `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64               `json:"frequency_penalty,omitempty"`
	ResponseFormat   *openAIResponseFormat `json:"response_format,omitempty"`
	Stream           bool                  `json:"stream,omitempty"`
	StreamOptions    *openAIStreamOptions  `json:"stream_options,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIStreamChunk struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage"`
}

type openAIStreamChoice struct {
	Delta        openAIDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type openAIDelta struct {
	Content string `json:"content"`
}

func (o *openAICompat) buildRequest(req ChatRequest, stream bool) openAIRequest {
	out := openAIRequest{
		Model:       o.descriptor.ID,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}

	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, openAIMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	if opts := req.Options.OpenAI; opts != nil {
		out.PresencePenalty = opts.PresencePenalty
		out.FrequencyPenalty = opts.FrequencyPenalty
		if opts.JSONMode {
			out.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
		}
	}

	if stream {
		out.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}

	return out
}

func (o *openAICompat) convertResponse(resp *openAIResponse) *ChatResponse {
	out := &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: FinishReasonStop,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Content = choice.Message.Content
		if choice.FinishReason == "length" {
			out.FinishReason = FinishReasonLength
		}
	}
	return out
}

// openAIErrorMessage extracts the message from an OpenAI-style error body,
// falling back to the raw payload.
func openAIErrorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return errResp.Error.Type + ": " + errResp.Error.Message
		}
		return errResp.Error.Message
	}
	return string(body)
}
