package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
	"github.com/ternarybob/sicknote/internal/interfaces"
	"github.com/ternarybob/sicknote/internal/services/cache"
)

// scriptedProvider returns texts or errors in order, repeating the last one
type scriptedProvider struct {
	calls   atomic.Int32
	replies []string
	err     error
	lastReq *ContentRequest
}

func (p *scriptedProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	n := int(p.calls.Add(1))
	p.lastReq = request
	if p.err != nil {
		return nil, p.err
	}
	idx := n - 1
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	return &ContentResponse{Text: p.replies[idx], Provider: ProviderClaude, Model: "test-model"}, nil
}

func (p *scriptedProvider) GetProviderType() ProviderType { return ProviderClaude }
func (p *scriptedProvider) DefaultModel() string          { return "test-model" }
func (p *scriptedProvider) Close() error                  { return nil }

func TestService_CompletePassesOptions(t *testing.T) {
	p := &scriptedProvider{replies: []string{"hello"}}
	svc := NewService(p, nil, nil, 0, time.Second, arbor.NewLogger())

	out, err := svc.Complete(context.Background(), "prompt", &interfaces.CompletionOptions{
		System:      "sys",
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, "claude", out.Provider)
	assert.False(t, out.Cached)

	require.NotNil(t, p.lastReq)
	assert.Equal(t, "sys", p.lastReq.SystemInstruction)
	assert.Equal(t, 0.3, p.lastReq.Temperature)
	assert.Equal(t, 1000, p.lastReq.MaxTokens)
}

func TestService_ResponseCache(t *testing.T) {
	store, err := cache.NewService(time.Hour, nil, arbor.NewLogger())
	require.NoError(t, err)
	defer store.Close()

	p := &scriptedProvider{replies: []string{"first", "second"}}
	svc := NewService(p, nil, store, 24*time.Hour, 0, arbor.NewLogger())

	a, err := svc.Complete(context.Background(), "same prompt", nil)
	require.NoError(t, err)
	b, err := svc.Complete(context.Background(), "same prompt", nil)
	require.NoError(t, err)

	assert.Equal(t, "first", a.Text)
	assert.Equal(t, "first", b.Text)
	assert.True(t, b.Cached)
	assert.Equal(t, int32(1), p.calls.Load())

	// a different prompt is not served from the cache
	c, err := svc.Complete(context.Background(), "other prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", c.Text)
}

func TestService_ZeroCacheTTLUsesDefault(t *testing.T) {
	store, err := cache.NewService(time.Hour, nil, arbor.NewLogger())
	require.NoError(t, err)
	defer store.Close()

	p := &scriptedProvider{replies: []string{"first", "second"}}
	svc := NewService(p, nil, store, 0, 0, arbor.NewLogger())
	assert.Equal(t, DefaultCacheTTL, svc.cacheTTL)

	_, err = svc.Complete(context.Background(), "same prompt", nil)
	require.NoError(t, err)
	b, err := svc.Complete(context.Background(), "same prompt", nil)
	require.NoError(t, err)
	assert.True(t, b.Cached)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestService_CacheKeyDependsOnOptions(t *testing.T) {
	svc := NewService(&scriptedProvider{replies: []string{"x"}}, nil, nil, 0, 0, arbor.NewLogger())

	k1 := svc.cacheKey("m", &ContentRequest{Prompt: "p", Temperature: 0.3})
	k2 := svc.cacheKey("m", &ContentRequest{Prompt: "p", Temperature: 0.3})
	k3 := svc.cacheKey("m", &ContentRequest{Prompt: "p", Temperature: 0.7})

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Regexp(t, `^ai_[0-9a-f]{64}$`, k1)
}

func TestService_BreakerOpensAfterFailures(t *testing.T) {
	upstream := errors.New("upstream 500")
	p := &scriptedProvider{err: upstream}
	breaker := newBreaker("test", common.BreakerConfig{
		MinRequests:      2,
		FailureThreshold: 0.5,
		Timeout:          common.Duration{Duration: time.Minute},
	}, arbor.NewLogger())
	svc := NewService(p, breaker, nil, 0, 0, arbor.NewLogger())

	for i := 0; i < 2; i++ {
		_, err := svc.Complete(context.Background(), "p", nil)
		assert.ErrorIs(t, err, upstream)
	}

	_, err := svc.Complete(context.Background(), "p", nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(2), p.calls.Load(), "open breaker must not call the provider")
}

func TestOfflineProvider(t *testing.T) {
	svc := NewService(offlineProvider{}, nil, nil, 0, 0, arbor.NewLogger())

	_, err := svc.Complete(context.Background(), "p", nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, "offline", svc.Provider())
}

func TestNewLLMService_MissingKeyFallsBackOffline(t *testing.T) {
	t.Setenv("SICKNOTE_CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := common.NewDefaultConfig()
	cfg.LLM.Provider = common.LLMProviderClaude
	cfg.Claude.APIKey = ""

	svc, err := NewLLMService(context.Background(), cfg, nil, nil, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "offline", svc.Provider())
}

func TestNormalizeProvider(t *testing.T) {
	assert.Equal(t, ProviderOpenRouter, normalizeProvider("OpenRouter"))
	assert.Equal(t, ProviderClaude, normalizeProvider("anthropic"))
	assert.Equal(t, ProviderGemini, normalizeProvider(" gemini "))
	assert.Equal(t, ProviderOffline, normalizeProvider(""))
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("Error 429: too many requests")))
	assert.True(t, IsRateLimitError(errors.New("RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimitError(errors.New("bad request")))
	assert.False(t, IsRateLimitError(nil))
}
