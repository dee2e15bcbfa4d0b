package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mnemosyne/pkg/errors"
)

func newTestClaudeConnector(t *testing.T, handler http.HandlerFunc) *ClaudeConnector {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conn := NewClaudeConnector("test-key", ModelClaude45Sonnet, 5*time.Second, nil)
	conn.baseURL = server.URL
	return conn
}

func TestClaudeChat(t *testing.T) {
	conn := newTestClaudeConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("missing version header")
		}

		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "be helpful" {
			t.Errorf("system message not extracted, got %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.MaxTokens != 4096 {
			t.Errorf("expected default max_tokens 4096, got %d", req.MaxTokens)
		}
		if req.Stream {
			t.Error("blocking request must not set stream")
		}

		_ = json.NewEncoder(w).Encode(claudeResponse{
			ID:         "msg_1",
			Model:      ModelClaude45Sonnet,
			StopReason: "end_turn",
			Content:    []claudeContent{{Type: "text", Text: "hello there"}},
			Usage:      claudeUsage{InputTokens: 12, OutputTokens: 4},
		})
	})

	resp, err := conn.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if resp.Content != "hello there" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.FinishReason != FinishReasonStop {
		t.Errorf("unexpected finish reason: %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestClaudeChatRateLimited(t *testing.T) {
	conn := newTestClaudeConnector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := conn.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if pe.Kind != ErrorKindRateLimit {
		t.Fatalf("expected rate limit kind, got %s", pe.Kind)
	}
	if !errors.Is(err, errors.ErrRateLimitExceeded) {
		t.Fatal("expected ErrRateLimitExceeded sentinel match")
	}
}

func TestClaudeChatMissingKey(t *testing.T) {
	conn := NewClaudeConnector("", ModelClaude45Sonnet, time.Second, nil)

	_, err := conn.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClaudeChatRejectsForeignOptions(t *testing.T) {
	conn := NewClaudeConnector("key", ModelClaude45Sonnet, time.Second, nil)

	_, err := conn.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Options:  ProviderOptions{OpenAI: &OpenAIOptions{JSONMode: true}},
	})

	var validationErr *errors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestClaudeChatStream(t *testing.T) {
	conn := newTestClaudeConnector(t, func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("streaming request must set stream")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":12,\"output_tokens\":1}}}\n\n")
		fmt.Fprint(w, "event: ping\ndata: {\"type\":\"ping\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		fmt.Fprint(w, "event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":5}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	})

	chunks, errs := conn.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var content string
	var final *ChatStreamChunk
	for chunk := range chunks {
		if chunk.Done {
			c := chunk
			final = &c
			continue
		}
		content += chunk.Content
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	if content != "Hello" {
		t.Errorf("expected assembled content Hello, got %q", content)
	}
	if final == nil {
		t.Fatal("expected terminal chunk")
	}
	if final.FinishReason != FinishReasonStop {
		t.Errorf("unexpected finish reason: %s", final.FinishReason)
	}
	if final.Usage == nil || final.Usage.PromptTokens != 12 || final.Usage.CompletionTokens != 5 {
		t.Errorf("unexpected usage: %+v", final.Usage)
	}
}

func TestClaudeChatStreamError(t *testing.T) {
	conn := newTestClaudeConnector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"partial\"}}\n\n")
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"overloaded\"}}\n\n")
	})

	chunks, errs := conn.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var content string
	for chunk := range chunks {
		if chunk.Done {
			t.Error("no terminal chunk after a stream error")
		}
		content += chunk.Content
	}

	err := <-errs
	if err == nil {
		t.Fatal("expected stream error")
	}
	pe, ok := AsProviderError(err)
	if !ok || pe.Kind != ErrorKindServer {
		t.Fatalf("expected server error kind, got %v", err)
	}

	// Content delivered before the failure stands
	if content != "partial" {
		t.Errorf("expected partial content preserved, got %q", content)
	}
}

func TestClaudeChatStreamTruncated(t *testing.T) {
	conn := newTestClaudeConnector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"cut\"}}\n\n")
		// Connection drops without message_stop
	})

	chunks, errs := conn.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	for range chunks {
	}
	if err := <-errs; !errors.Is(err, errors.ErrStreamInterrupted) {
		t.Fatalf("expected ErrStreamInterrupted, got %v", err)
	}
}

func TestClaudeListAvailableModels(t *testing.T) {
	conn := newTestClaudeConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"claude-sonnet-4-5"},{"id":"claude-haiku-4-5"}]}`))
	})

	ids, err := conn.ListAvailableModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(ids) != 2 || ids[0] != "claude-sonnet-4-5" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
