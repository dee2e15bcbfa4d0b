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

func newTestOpenAIConnector(t *testing.T, handler http.HandlerFunc) *OpenAIConnector {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conn := NewOpenAIConnector("test-key", ModelGPT4o, 5*time.Second, nil)
	conn.baseURL = server.URL
	return conn
}

func TestOpenAIChat(t *testing.T) {
	conn := newTestOpenAIConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing bearer token")
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != ModelGPT4o {
			t.Errorf("expected bound model, got %s", req.Model)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("JSON mode not applied")
		}

		_ = json.NewEncoder(w).Encode(openAIResponse{
			ID:    "chatcmpl-1",
			Model: ModelGPT4o,
			Choices: []openAIChoice{{
				Message:      openAIMessage{Role: "assistant", Content: `{"ok":true}`},
				FinishReason: "stop",
			}},
			Usage: openAIUsage{PromptTokens: 9, CompletionTokens: 6, TotalTokens: 15},
		})
	})

	resp, err := conn.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Options:  ProviderOptions{OpenAI: &OpenAIOptions{JSONMode: true}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != `{"ok":true}` {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestOpenAIChatAuthError(t *testing.T) {
	conn := newTestOpenAIConnector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := conn.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, errors.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestOpenAIChatStream(t *testing.T) {
	conn := newTestOpenAIConnector(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Error("usage reporting not requested for stream")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":2,\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
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
		t.Errorf("expected Hello, got %q", content)
	}
	if final == nil || final.Usage == nil {
		t.Fatal("expected terminal chunk with usage")
	}
	if final.Usage.PromptTokens != 7 || final.Usage.CompletionTokens != 2 {
		t.Errorf("unexpected usage: %+v", final.Usage)
	}
}

func TestOpenAIChatStreamLengthCut(t *testing.T) {
	conn := newTestOpenAIConnector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"trunc\"},\"finish_reason\":\"length\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	chunks, errs := conn.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var final *ChatStreamChunk
	for chunk := range chunks {
		if chunk.Done {
			c := chunk
			final = &c
		}
	}
	if err := <-errs; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final == nil || final.FinishReason != FinishReasonLength {
		t.Fatalf("expected length finish reason, got %+v", final)
	}
}

func TestOpenAIChatStreamTruncated(t *testing.T) {
	conn := newTestOpenAIConnector(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"cut\"}}]}\n\n")
		// No [DONE]
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

func TestDeepSeekSharesProtocol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != ModelDeepSeekChat {
			t.Errorf("expected deepseek-chat, got %s", req.Model)
		}
		_ = json.NewEncoder(w).Encode(openAIResponse{
			ID:      "ds-1",
			Model:   ModelDeepSeekChat,
			Choices: []openAIChoice{{Message: openAIMessage{Role: "assistant", Content: "pong"}, FinishReason: "stop"}},
		})
	}))
	t.Cleanup(server.Close)

	conn := NewDeepSeekConnector("test-key", ModelDeepSeekChat, 5*time.Second, nil)
	conn.baseURL = server.URL

	resp, err := conn.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
		Options:  ProviderOptions{OpenAI: &OpenAIOptions{PresencePenalty: 0.1}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "pong" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if conn.Descriptor().Provider != ProviderNameDeepSeek {
		t.Errorf("unexpected provider: %s", conn.Descriptor().Provider)
	}
}
