package llm

import (
	"context"
	"errors"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderOpenRouter uses the OpenAI-compatible OpenRouter API
	ProviderOpenRouter ProviderType = "openrouter"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderOffline never calls out; every request fails
	ProviderOffline ProviderType = "offline"
)

// ErrProviderUnavailable is returned when the provider cannot serve requests
var ErrProviderUnavailable = errors.New("text generation provider unavailable")

// ErrEmptyResponse is returned when a provider answers without text
var ErrEmptyResponse = errors.New("empty response from provider")

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Prompt            string
	SystemInstruction string
	Model             string
	Temperature       float64
	MaxTokens         int
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// Provider defines the interface for AI content generation
type Provider interface {
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
	GetProviderType() ProviderType
	DefaultModel() string
	Close() error
}
