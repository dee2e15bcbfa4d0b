package ai

import (
	"context"
	"net/http"
	"testing"

	"mnemosyne/pkg/errors"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, ErrorKindAuth},
		{http.StatusForbidden, ErrorKindAuth},
		{http.StatusTooManyRequests, ErrorKindRateLimit},
		{http.StatusRequestTimeout, ErrorKindTimeout},
		{http.StatusGatewayTimeout, ErrorKindTimeout},
		{http.StatusInternalServerError, ErrorKindServer},
		{http.StatusServiceUnavailable, ErrorKindServer},
		{http.StatusBadRequest, ErrorKindUnknown},
		{http.StatusNotFound, ErrorKindUnknown},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestProviderErrorUnwrapsToSentinels(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want error
	}{
		{ErrorKindAuth, errors.ErrAuthFailed},
		{ErrorKindRateLimit, errors.ErrRateLimitExceeded},
		{ErrorKindTimeout, errors.ErrTimeout},
		{ErrorKindServer, errors.ErrProviderUnavailable},
		{ErrorKindUnknown, errors.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		err := &ProviderError{Provider: ProviderNameOpenAI, Model: "gpt-4o", Kind: tt.kind, Message: "boom"}
		if !errors.Is(err, tt.want) {
			t.Errorf("kind %s should match %v", tt.kind, tt.want)
		}
	}
}

func TestTransportErrorPreservesCancellation(t *testing.T) {
	err := transportError(ProviderNameAnthropic, "claude-sonnet-4-5", context.Canceled)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled unchanged, got %v", err)
	}
}

func TestTransportErrorMapsDeadline(t *testing.T) {
	err := transportError(ProviderNameAnthropic, "claude-sonnet-4-5", context.DeadlineExceeded)

	pe, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if pe.Kind != ErrorKindTimeout {
		t.Fatalf("expected timeout kind, got %s", pe.Kind)
	}
	if !errors.Is(err, errors.ErrTimeout) {
		t.Fatal("expected ErrTimeout sentinel match")
	}
}

func TestAsProviderError(t *testing.T) {
	base := newProviderError(ProviderNameDeepSeek, "deepseek-chat", http.StatusTooManyRequests, "slow down")
	wrapped := errors.Wrap(base, "dispatch failed")

	pe, ok := AsProviderError(wrapped)
	if !ok {
		t.Fatal("expected to extract ProviderError from wrapped chain")
	}
	if pe.StatusCode != http.StatusTooManyRequests || pe.Kind != ErrorKindRateLimit {
		t.Fatalf("unexpected provider error: %+v", pe)
	}

	if _, ok := AsProviderError(errors.ErrNotFound); ok {
		t.Fatal("plain sentinel must not convert to ProviderError")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	withStatus := newProviderError(ProviderNameOpenAI, "gpt-4o", 429, "quota")
	if withStatus.Error() == "" {
		t.Fatal("expected formatted message")
	}

	withoutStatus := &ProviderError{Provider: ProviderNameOllama, Model: "llama3.2", Kind: ErrorKindUnknown, Message: "conn refused"}
	if withoutStatus.Error() == "" {
		t.Fatal("expected formatted message without status")
	}
}
