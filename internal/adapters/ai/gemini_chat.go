package ai

import (
	"context"

	"google.golang.org/genai"

	"mnemosyne/pkg/errors"
)

// Chat sends a blocking completion request through the genai SDK.
func (c *GeminiConnector) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if err := req.Options.Validate(ProviderNameGoogle); err != nil {
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

	contents, config := c.buildRequest(req)
	response, err := c.client.Models.GenerateContent(ctx, c.descriptor.ID, contents, config)
	if err != nil {
		return nil, geminiError(c.descriptor.ID, err)
	}

	out := &ChatResponse{
		Model:        c.descriptor.ID,
		Content:      response.Text(),
		FinishReason: FinishReasonStop,
	}
	if len(response.Candidates) > 0 && response.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		out.FinishReason = FinishReasonLength
	}
	if response.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(response.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// ChatStream begins a streaming completion. The SDK exposes the stream as
// an iterator; each yielded response carries a text fragment and the last
// ones carry usage metadata.
func (c *GeminiConnector) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatStreamChunk, <-chan error) {
	chunks := make(chan ChatStreamChunk)
	errs := make(chan error, 1)

	fail := func(err error) (<-chan ChatStreamChunk, <-chan error) {
		errs <- err
		close(errs)
		close(chunks)
		return chunks, errs
	}

	if err := c.ready(); err != nil {
		return fail(err)
	}
	if err := req.Options.Validate(ProviderNameGoogle); err != nil {
		return fail(err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fail(err)
	}

	contents, config := c.buildRequest(req)

	go func() {
		defer close(chunks)
		defer close(errs)

		var usage *Usage
		finish := FinishReasonStop

		for response, err := range c.client.Models.GenerateContentStream(ctx, c.descriptor.ID, contents, config) {
			if err != nil {
				if ctx.Err() == nil {
					errs <- geminiError(c.descriptor.ID, err)
				}
				return
			}

			if response.UsageMetadata != nil {
				usage = &Usage{
					PromptTokens:     int(response.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(response.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int(response.UsageMetadata.TotalTokenCount),
				}
			}
			if len(response.Candidates) > 0 && response.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
				finish = FinishReasonLength
			}

			if text := response.Text(); text != "" {
				select {
				case chunks <- ChatStreamChunk{Content: text}:
				case <-ctx.Done():
					return
				}
			}
		}

		if ctx.Err() != nil {
			return
		}
		select {
		case chunks <- ChatStreamChunk{Done: true, FinishReason: finish, Usage: usage}:
		case <-ctx.Done():
		}
	}()

	return chunks, errs
}

// buildRequest converts our request format to genai contents plus config.
// The system message travels as the config's system instruction.
func (c *GeminiConnector) buildRequest(req ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		config.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if opts := req.Options.Gemini; opts != nil && opts.TopK > 0 {
		config.TopK = genai.Ptr(float32(opts.TopK))
	}

	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(msg.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents, config
}

// geminiError normalizes SDK failures. API errors carry an HTTP status
// code; everything else is treated as a transport failure.
func geminiError(model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newProviderError(ProviderNameGoogle, model, apiErr.Code, apiErr.Message)
	}
	return transportError(ProviderNameGoogle, model, err)
}
