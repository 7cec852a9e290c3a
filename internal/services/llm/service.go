package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/interfaces"
)

const (
	cacheKind = "ai"

	// DefaultCacheTTL is used when no response lifetime is configured
	DefaultCacheTTL = 24 * time.Hour
)

// Service implements LLMService on top of a single provider, with an
// optional circuit breaker and response cache
type Service struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	cache    interfaces.ArtifactCache
	cacheTTL time.Duration
	timeout  time.Duration
	logger   arbor.ILogger
}

var _ interfaces.LLMService = (*Service)(nil)

// NewService wraps provider. breaker and cache may be nil. A cacheTTL of
// zero or less uses DefaultCacheTTL.
func NewService(provider Provider, breaker *gobreaker.CircuitBreaker, cache interfaces.ArtifactCache, cacheTTL, timeout time.Duration, logger arbor.ILogger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Service{
		provider: provider,
		breaker:  breaker,
		cache:    cache,
		cacheTTL: cacheTTL,
		timeout:  timeout,
		logger:   logger,
	}
}

// Provider returns the configured provider name
func (s *Service) Provider() string {
	return string(s.provider.GetProviderType())
}

// Complete sends prompt to the provider, serving repeated prompts from the cache
func (s *Service) Complete(ctx context.Context, prompt string, opts *interfaces.CompletionOptions) (*interfaces.Completion, error) {
	if opts == nil {
		opts = &interfaces.CompletionOptions{}
	}

	request := &ContentRequest{
		Prompt:            prompt,
		SystemInstruction: opts.System,
		Temperature:       opts.Temperature,
		MaxTokens:         opts.MaxTokens,
	}

	model := s.provider.DefaultModel()
	key := s.cacheKey(model, request)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.logger.Debug().Str("provider", s.Provider()).Msg("Using cached AI response")
			return &interfaces.Completion{
				Text:     string(cached),
				Provider: s.Provider(),
				Model:    model,
				Cached:   true,
			}, nil
		}
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.generate(callCtx, request)
	if err != nil {
		event := s.logger.Warn()
		if IsRateLimitError(err) {
			event = event.Bool("rate_limited", true)
		}
		event.
			Str("provider", s.Provider()).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("Text generation failed")
		return nil, err
	}

	s.logger.Debug().
		Str("provider", string(resp.Provider)).
		Str("model", resp.Model).
		Int("length", len(resp.Text)).
		Dur("duration", time.Since(start)).
		Msg("Text generation completed")

	if s.cache != nil {
		if err := s.cache.Set(key, []byte(resp.Text), s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache AI response")
		}
	}

	return &interfaces.Completion{
		Text:     resp.Text,
		Provider: string(resp.Provider),
		Model:    resp.Model,
	}, nil
}

// Close releases the provider client
func (s *Service) Close() error {
	return s.provider.Close()
}

func (s *Service) generate(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	if s.breaker == nil {
		return s.provider.GenerateContent(ctx, request)
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.provider.GenerateContent(ctx, request)
	})
	if err != nil {
		if IsBreakerOpen(err) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, err
	}
	return out.(*ContentResponse), nil
}

// cacheKey hashes everything that influences the response
func (s *Service) cacheKey(model string, request *ContentRequest) string {
	h := sha256.New()
	for _, part := range []string{
		s.Provider(),
		model,
		request.SystemInstruction,
		request.Prompt,
		strconv.FormatFloat(request.Temperature, 'f', -1, 64),
		strconv.Itoa(request.MaxTokens),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return cacheKind + "_" + hex.EncodeToString(h.Sum(nil))
}

// normalizeProvider maps config values onto provider types
func normalizeProvider(name string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openrouter", "openai":
		return ProviderOpenRouter
	case "claude", "anthropic":
		return ProviderClaude
	case "gemini", "google":
		return ProviderGemini
	default:
		return ProviderOffline
	}
}
