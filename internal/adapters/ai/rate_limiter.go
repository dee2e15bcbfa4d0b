package ai

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter defines the interface for rate limiting AI provider requests.
type RateLimiter interface {
	// Wait blocks until request can proceed or context is cancelled.
	Wait(ctx context.Context) error

	// Allow checks if request can proceed without blocking.
	Allow() bool

	// Limit returns current rate limit (requests per minute).
	Limit() float64
}

// LocalLimiter wraps a token bucket for single-instance deployments.
// Thread-safe and efficient for high-concurrency scenarios.
type LocalLimiter struct {
	provider ProviderName
	limiter  *rate.Limiter
}

// NewLocalLimiter creates an in-memory rate limiter.
// reqPerMinute: maximum requests per minute (e.g., 500 for OpenAI Tier 1)
// burst: maximum burst size (typically 10-20% of rate)
func NewLocalLimiter(provider ProviderName, reqPerMinute float64, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = int(reqPerMinute / 10) // Default: 10% of rate
		if burst < 1 {
			burst = 1
		}
	}

	return &LocalLimiter{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(reqPerMinute/60.0), burst),
	}
}

// Wait blocks until a token is available or context is cancelled.
func (l *LocalLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return &RateLimitError{
			Provider: l.provider,
			Limit:    l.Limit(),
			Err:      err,
		}
	}
	return nil
}

// Allow checks if a request can proceed and consumes a token if available.
func (l *LocalLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Limit returns the current rate limit in requests per minute.
func (l *LocalLimiter) Limit() float64 {
	return float64(l.limiter.Limit()) * 60.0
}

// NoOpLimiter is a rate limiter that never blocks (for testing or disabled rate limiting).
type NoOpLimiter struct{}

// NewNoOpLimiter creates a no-op rate limiter.
func NewNoOpLimiter() *NoOpLimiter {
	return &NoOpLimiter{}
}

// Wait always returns immediately without error.
func (l *NoOpLimiter) Wait(ctx context.Context) error {
	return nil
}

// Allow always returns true.
func (l *NoOpLimiter) Allow() bool {
	return true
}

// Limit returns -1 to indicate unlimited.
func (l *NoOpLimiter) Limit() float64 {
	return -1
}

// RateLimitConfig contains rate limit configuration for a provider.
type RateLimitConfig struct {
	Enabled      bool
	ReqPerMinute float64
	Burst        int
}

// DefaultRateLimits returns default rate limits for each provider based on their free/basic tiers.
// These are conservative limits to avoid hitting API rate limits.
func DefaultRateLimits() map[ProviderName]RateLimitConfig {
	return map[ProviderName]RateLimitConfig{
		ProviderNameAnthropic: {
			Enabled:      true,
			ReqPerMinute: 50, // Claude free tier: 50 req/min
			Burst:        10,
		},
		ProviderNameOpenAI: {
			Enabled:      true,
			ReqPerMinute: 500, // OpenAI Tier 1: 500 req/min
			Burst:        50,
		},
		ProviderNameDeepSeek: {
			Enabled:      false, // DeepSeek has no rate limits
			ReqPerMinute: 0,
			Burst:        0,
		},
		ProviderNameGoogle: {
			Enabled:      true,
			ReqPerMinute: 60, // Gemini free tier: 60 req/min
			Burst:        10,
		},
		ProviderNameOllama: {
			Enabled:      false, // Local server, no upstream quota
			ReqPerMinute: 0,
			Burst:        0,
		},
	}
}

// RateLimiterFactory creates rate limiters with optional Redis support.
type RateLimiterFactory struct {
	redisClient *redis.Client
}

// NewRateLimiterFactory creates a factory for rate limiters.
// If redisClient is nil, local in-memory limiters will be used (suitable for single-pod deployment).
// If redisClient is provided, distributed Redis-based limiters will be used (required for multi-pod deployment).
func NewRateLimiterFactory(redisClient *redis.Client) *RateLimiterFactory {
	return &RateLimiterFactory{redisClient: redisClient}
}

// Create creates a rate limiter for the specified provider.
func (f *RateLimiterFactory) Create(provider ProviderName, config RateLimitConfig) RateLimiter {
	if !config.Enabled || config.ReqPerMinute <= 0 {
		return NewNoOpLimiter()
	}

	// Use Redis-based limiter for distributed deployment
	if f.redisClient != nil {
		return NewRedisRateLimiter(f.redisClient, provider, config.ReqPerMinute, config.Burst)
	}

	// Fall back to local in-memory limiter
	return NewLocalLimiter(provider, config.ReqPerMinute, config.Burst)
}

// RateLimitError wraps rate limit related errors with provider context.
type RateLimitError struct {
	Provider ProviderName
	Limit    float64
	Err      error
}

// Error implements error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit error for provider %s (limit: %.0f req/min): %v", e.Provider, e.Limit, e.Err)
}

// Unwrap returns the underlying error.
func (e *RateLimitError) Unwrap() error {
	return e.Err
}
