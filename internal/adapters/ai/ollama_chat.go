package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"mnemosyne/pkg/errors"
)

// Chat sends a blocking completion request to the Ollama chat endpoint.
func (c *OllamaConnector) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := req.Options.Validate(ProviderNameOllama); err != nil {
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
		return nil, errors.Wrap(err, "marshal ollama request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create ollama request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderNameOllama, c.descriptor.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderNameOllama, c.descriptor.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newProviderError(ProviderNameOllama, c.descriptor.ID, resp.StatusCode, ollamaErrorMessage(respBody))
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, errors.Wrap(err, "unmarshal ollama response")
	}

	return &ChatResponse{
		Model:        ollamaResp.Model,
		Content:      ollamaResp.Message.Content,
		FinishReason: ollamaFinishReason(ollamaResp.DoneReason),
		Usage: Usage{
			PromptTokens:     ollamaResp.PromptEvalCount,
			CompletionTokens: ollamaResp.EvalCount,
			TotalTokens:      ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
		},
	}, nil
}

// ChatStream begins a streaming completion. Ollama streams newline-delimited
// JSON objects; the final object has done set and carries the token counts.
func (c *OllamaConnector) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatStreamChunk, <-chan error) {
	chunks := make(chan ChatStreamChunk)
	errs := make(chan error, 1)

	fail := func(err error) (<-chan ChatStreamChunk, <-chan error) {
		errs <- err
		close(errs)
		close(chunks)
		return chunks, errs
	}

	if err := req.Options.Validate(ProviderNameOllama); err != nil {
		return fail(err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fail(err)
	}

	body, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return fail(errors.Wrap(err, "marshal ollama request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fail(errors.Wrap(err, "create ollama request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fail(transportError(ProviderNameOllama, c.descriptor.ID, err))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return fail(newProviderError(ProviderNameOllama, c.descriptor.ID, resp.StatusCode, ollamaErrorMessage(respBody)))
	}

	go c.consumeStream(ctx, resp.Body, chunks, errs)
	return chunks, errs
}

func (c *OllamaConnector) consumeStream(ctx context.Context, body io.ReadCloser, chunks chan<- ChatStreamChunk, errs chan<- error) {
	defer close(chunks)
	defer close(errs)
	defer func() { _ = body.Close() }()

	decoder := json.NewDecoder(body)
	for {
		var line ollamaChatResponse
		if err := decoder.Decode(&line); err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				errs <- errors.Wrapf(errors.ErrStreamInterrupted, "ollama stream for %s ended without done", c.descriptor.ID)
				return
			}
			errs <- transportError(ProviderNameOllama, c.descriptor.ID, err)
			return
		}

		if line.Error != "" {
			errs <- &ProviderError{
				Provider: ProviderNameOllama,
				Model:    c.descriptor.ID,
				Kind:     ErrorKindServer,
				Message:  line.Error,
			}
			return
		}

		if line.Done {
			usage := &Usage{
				PromptTokens:     line.PromptEvalCount,
				CompletionTokens: line.EvalCount,
				TotalTokens:      line.PromptEvalCount + line.EvalCount,
			}
			select {
			case chunks <- ChatStreamChunk{Done: true, FinishReason: ollamaFinishReason(line.DoneReason), Usage: usage}:
			case <-ctx.Done():
			}
			return
		}

		if line.Message.Content == "" {
			continue
		}
		select {
		case chunks <- ChatStreamChunk{Content: line.Message.Content}:
		case <-ctx.Done():
			return
		}
	}
}

// Ollama API types
type ollamaChatRequest struct {
	Model     string                 `json:"model"`
	Messages  []ollamaMessage        `json:"messages"`
	Stream    bool                   `json:"stream"`
	Options   map[string]interface{} `json:"options,omitempty"`
	KeepAlive string                 `json:"keep_alive,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

func (c *OllamaConnector) buildRequest(req ChatRequest, stream bool) ollamaChatRequest {
	out := ollamaChatRequest{
		Model:  c.descriptor.ID,
		Stream: stream,
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, ollamaMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	options := make(map[string]interface{})
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if opts := req.Options.Ollama; opts != nil {
		if opts.NumCtx > 0 {
			options["num_ctx"] = opts.NumCtx
		}
		out.KeepAlive = opts.KeepAlive
	}
	if len(options) > 0 {
		out.Options = options
	}

	return out
}

func ollamaFinishReason(doneReason string) FinishReason {
	if doneReason == "length" {
		return FinishReasonLength
	}
	return FinishReasonStop
}

// ollamaErrorMessage extracts the message from an Ollama error body,
// falling back to the raw payload.
func ollamaErrorMessage(body []byte) string {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(body)
}
