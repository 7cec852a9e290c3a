package llm

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
)

// NewLLMService creates the text-generation service selected by configuration.
// A provider whose API key cannot be resolved degrades to offline mode.
func NewLLMService(
	ctx context.Context,
	cfg *common.Config,
	kvStorage interfaces.KeyValueStorage,
	cache interfaces.ArtifactCache,
	logger arbor.ILogger,
) (*Service, error) {
	provider, err := newProvider(ctx, cfg, kvStorage, logger)
	if err != nil {
		return nil, err
	}

	var breaker *gobreaker.CircuitBreaker
	if cfg.LLM.Breaker.Enabled && provider.GetProviderType() != ProviderOffline {
		breaker = newBreaker("llm-"+string(provider.GetProviderType()), cfg.LLM.Breaker, logger)
	}

	if !cfg.LLM.CacheResponses {
		cache = nil
	}

	logger.Info().
		Str("provider", string(provider.GetProviderType())).
		Str("model", provider.DefaultModel()).
		Bool("breaker", breaker != nil).
		Bool("cache", cache != nil).
		Msg("Initializing LLM service")

	return NewService(provider, breaker, cache, cfg.Cache.AITTL.Duration, cfg.LLM.Timeout.Duration, logger), nil
}

func newProvider(ctx context.Context, cfg *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (Provider, error) {
	providerType := normalizeProvider(string(cfg.LLM.Provider))

	resolve := func(name, fallback string) (string, bool) {
		apiKey, err := common.ResolveAPIKey(ctx, kvStorage, name, fallback)
		if err != nil {
			logger.Warn().
				Str("provider", string(providerType)).
				Str("key_name", name).
				Err(err).
				Msg("API key not available, falling back to offline mode")
			return "", false
		}
		return apiKey, true
	}

	switch providerType {
	case ProviderOpenRouter:
		if apiKey, ok := resolve("openrouter_api_key", cfg.OpenRouter.APIKey); ok {
			return newOpenRouterProvider(apiKey, &cfg.OpenRouter, logger), nil
		}
	case ProviderClaude:
		if apiKey, ok := resolve("anthropic_api_key", cfg.Claude.APIKey); ok {
			return newClaudeProvider(apiKey, &cfg.Claude, logger), nil
		}
	case ProviderGemini:
		if apiKey, ok := resolve("gemini_api_key", cfg.Gemini.APIKey); ok {
			p, err := newGeminiProvider(ctx, apiKey, &cfg.Gemini, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create gemini provider: %w", err)
			}
			return p, nil
		}
	}

	return offlineProvider{}, nil
}
