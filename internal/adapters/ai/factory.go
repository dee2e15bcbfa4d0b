package ai

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"mnemosyne/internal/adapters/config"
	"mnemosyne/pkg/errors"
	"mnemosyne/pkg/logger"
)

// BuildRegistry initializes a Registry with every model whose provider has
// credentials configured. redisClient is optional: when provided,
// distributed rate limiting is used (required for multi-pod deployment),
// otherwise local in-memory limiting applies.
func BuildRegistry(ctx context.Context, cfg config.AIConfig, redisClient *redis.Client) (*Registry, error) {
	log := logger.Get().With("component", "ai_factory")
	registry := NewRegistry(cfg.FallbackEnabled)

	limiterFactory := NewRateLimiterFactory(redisClient)
	limits := DefaultRateLimits()
	limiterFor := func(provider ProviderName) RateLimiter {
		limit := limits[provider]
		limit.Enabled = limit.Enabled && cfg.RateLimits
		return limiterFactory.Create(provider, limit)
	}
	timeout := requestTimeout(cfg)

	if cfg.ClaudeKey != "" {
		limiter := limiterFor(ProviderNameAnthropic)
		for _, d := range claudeCatalog() {
			if err := registry.Register(NewClaudeConnector(cfg.ClaudeKey, d.ID, timeout, limiter)); err != nil {
				return nil, err
			}
		}
	}

	if cfg.OpenAIKey != "" {
		limiter := limiterFor(ProviderNameOpenAI)
		for _, d := range openAICatalog() {
			if err := registry.Register(NewOpenAIConnector(cfg.OpenAIKey, d.ID, timeout, limiter)); err != nil {
				return nil, err
			}
		}
	}

	if cfg.DeepSeekKey != "" {
		limiter := limiterFor(ProviderNameDeepSeek)
		for _, d := range deepSeekCatalog() {
			if err := registry.Register(NewDeepSeekConnector(cfg.DeepSeekKey, d.ID, timeout, limiter)); err != nil {
				return nil, err
			}
		}
	}

	if cfg.GeminiKey != "" {
		limiter := limiterFor(ProviderNameGoogle)
		for _, d := range geminiCatalog() {
			if err := registry.Register(NewGeminiConnector(cfg.GeminiKey, d.ID, timeout, limiter)); err != nil {
				return nil, err
			}
		}
	}

	if cfg.OllamaURL != "" {
		limiter := limiterFor(ProviderNameOllama)
		for _, id := range discoverOllamaModels(ctx, cfg.OllamaURL, timeout, limiter) {
			if err := registry.Register(NewOllamaConnector(cfg.OllamaURL, id, timeout, limiter)); err != nil {
				return nil, err
			}
		}
	}

	if len(registry.ModelIDs()) == 0 {
		return nil, errors.Wrap(errors.ErrUnavailable, "no AI providers configured")
	}

	if cfg.DefaultModel != "" {
		if err := registry.SetDefault(cfg.DefaultModel); err != nil {
			return nil, errors.Wrapf(err, "configured default model %s", cfg.DefaultModel)
		}
	}

	log.Infow("AI registry built",
		"models", len(registry.ModelIDs()),
		"default", registry.DefaultID(),
		"fallback", registry.FallbackEnabled())
	return registry, nil
}

// discoverOllamaModels asks the server what it has pulled, falling back to
// the static catalog when the server is unreachable.
func discoverOllamaModels(ctx context.Context, baseURL string, timeout time.Duration, limiter RateLimiter) []string {
	probe := NewOllamaConnector(baseURL, ModelLlama32, timeout, limiter)

	discoverCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	names, err := probe.ListAvailableModels(discoverCtx)
	if err != nil || len(names) == 0 {
		logger.Get().With("component", "ai_factory").
			Warnw("Ollama model discovery failed, using static catalog", "error", err)
		ids := make([]string, 0, len(ollamaCatalog()))
		for _, d := range ollamaCatalog() {
			ids = append(ids, d.ID)
		}
		return ids
	}
	return names
}

func requestTimeout(cfg config.AIConfig) time.Duration {
	if cfg.RequestTimeout > 0 {
		return cfg.RequestTimeout
	}
	return 60 * time.Second
}
