package ai

import (
	"context"
	"testing"
	"time"

	"mnemosyne/pkg/errors"
)

func TestLocalLimiter_Basic(t *testing.T) {
	// Create limiter: 60 req/min = 1 req/sec, burst=2
	limiter := NewLocalLimiter(ProviderNameOpenAI, 60, 2)

	ctx := context.Background()

	// First request should pass immediately
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("First request should succeed: %v", err)
	}

	// Second request should pass immediately (burst)
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Second request should succeed: %v", err)
	}

	// Third request should wait (bucket empty)
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("Third request should eventually succeed: %v", err)
	}
	elapsed := time.Since(start)

	// Should have waited ~1 second (1 req/sec rate)
	if elapsed < 500*time.Millisecond {
		t.Errorf("Expected to wait ~1s, waited only %v", elapsed)
	}
}

func TestLocalLimiter_Allow(t *testing.T) {
	// Create limiter: 60 req/min, burst=2
	limiter := NewLocalLimiter(ProviderNameOpenAI, 60, 2)

	// First two should be allowed (burst)
	if !limiter.Allow() {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow() {
		t.Error("Second request should be allowed")
	}

	// Third should be denied (bucket empty)
	if limiter.Allow() {
		t.Error("Third request should be denied")
	}
}

func TestLocalLimiter_ContextCancellation(t *testing.T) {
	// Create limiter with low rate
	limiter := NewLocalLimiter(ProviderNameOpenAI, 6, 1) // 6 req/min = 0.1 req/sec

	// Consume the burst
	_ = limiter.Allow()

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Should fail due to context cancellation
	err := limiter.Wait(ctx)
	if err == nil {
		t.Error("Expected error due to context cancellation")
	}

	// Wait wraps the context error in a RateLimitError with provider info
	var rateLimitErr *RateLimitError
	if !errors.As(err, &rateLimitErr) {
		t.Fatalf("Expected RateLimitError, got %T: %v", err, err)
	}
	if rateLimitErr.Provider != ProviderNameOpenAI {
		t.Errorf("Expected provider openai, got %s", rateLimitErr.Provider)
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context error, got: %v", err)
	}
}

func TestLocalLimiter_DefaultBurst(t *testing.T) {
	// burst <= 0 falls back to 10% of the rate
	limiter := NewLocalLimiter(ProviderNameOpenAI, 100, 0)

	if limit := limiter.Limit(); limit != 100 {
		t.Errorf("Expected limit 100, got %f", limit)
	}
}

func TestNoOpLimiter(t *testing.T) {
	limiter := NewNoOpLimiter()

	ctx := context.Background()

	// Should never block
	for i := 0; i < 1000; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("NoOpLimiter should never fail: %v", err)
		}
		if !limiter.Allow() {
			t.Fatal("NoOpLimiter should always allow")
		}
	}

	// Should return -1 for limit
	if limiter.Limit() != -1 {
		t.Errorf("Expected limit -1, got %f", limiter.Limit())
	}
}

func TestRateLimiterFactory_Disabled(t *testing.T) {
	factory := NewRateLimiterFactory(nil)

	config := RateLimitConfig{
		Enabled:      false,
		ReqPerMinute: 100,
		Burst:        10,
	}

	limiter := factory.Create(ProviderNameOpenAI, config)

	// Should be NoOpLimiter
	if _, ok := limiter.(*NoOpLimiter); !ok {
		t.Errorf("Expected NoOpLimiter when disabled, got %T", limiter)
	}
}

func TestRateLimiterFactory_ZeroRate(t *testing.T) {
	factory := NewRateLimiterFactory(nil)

	config := RateLimitConfig{
		Enabled:      true,
		ReqPerMinute: 0,
		Burst:        10,
	}

	limiter := factory.Create(ProviderNameOpenAI, config)

	// Should be NoOpLimiter
	if _, ok := limiter.(*NoOpLimiter); !ok {
		t.Errorf("Expected NoOpLimiter when rate is 0, got %T", limiter)
	}
}

func TestRateLimiterFactory_NoRedis(t *testing.T) {
	factory := NewRateLimiterFactory(nil)

	config := RateLimitConfig{
		Enabled:      true,
		ReqPerMinute: 100,
		Burst:        10,
	}

	limiter := factory.Create(ProviderNameOpenAI, config)

	// Without Redis the factory falls back to the local limiter
	local, ok := limiter.(*LocalLimiter)
	if !ok {
		t.Fatalf("Expected LocalLimiter without Redis, got %T", limiter)
	}

	// Check limit
	if limit := local.Limit(); limit != 100 {
		t.Errorf("Expected limit 100, got %f", limit)
	}
}

func TestDefaultRateLimits(t *testing.T) {
	limits := DefaultRateLimits()

	// Check Claude
	claudeLimit, ok := limits[ProviderNameAnthropic]
	if !ok {
		t.Error("Claude limit not found")
	}
	if !claudeLimit.Enabled {
		t.Error("Claude should be enabled")
	}
	if claudeLimit.ReqPerMinute != 50 {
		t.Errorf("Expected Claude 50 req/min, got %f", claudeLimit.ReqPerMinute)
	}

	// Check DeepSeek (should be disabled)
	deepseekLimit, ok := limits[ProviderNameDeepSeek]
	if !ok {
		t.Error("DeepSeek limit not found")
	}
	if deepseekLimit.Enabled {
		t.Error("DeepSeek should be disabled by default (no limits)")
	}

	// Check Ollama (local server, no upstream quota)
	ollamaLimit, ok := limits[ProviderNameOllama]
	if !ok {
		t.Error("Ollama limit not found")
	}
	if ollamaLimit.Enabled {
		t.Error("Ollama should be disabled by default")
	}

	// Check OpenAI
	openaiLimit, ok := limits[ProviderNameOpenAI]
	if !ok {
		t.Error("OpenAI limit not found")
	}
	if openaiLimit.ReqPerMinute != 500 {
		t.Errorf("Expected OpenAI 500 req/min, got %f", openaiLimit.ReqPerMinute)
	}
}
