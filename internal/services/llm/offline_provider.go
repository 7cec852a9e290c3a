package llm

import (
	"context"
	"fmt"
)

// offlineProvider is used when no provider is configured.
// Every call fails so callers fall back to their deterministic content.
type offlineProvider struct{}

func (offlineProvider) GetProviderType() ProviderType { return ProviderOffline }

func (offlineProvider) DefaultModel() string { return "" }

func (offlineProvider) Close() error { return nil }

func (offlineProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	return nil, fmt.Errorf("offline mode: %w", ErrProviderUnavailable)
}
