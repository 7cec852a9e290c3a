package interfaces

import (
	"context"
)

// CompletionOptions tunes a single text-generation call
type CompletionOptions struct {
	// System is an optional system instruction sent ahead of the prompt
	System string

	// Temperature controls sampling randomness (0 = provider default)
	Temperature float64

	// MaxTokens caps the response length (0 = provider default)
	MaxTokens int
}

// Completion is the text returned by a provider
type Completion struct {
	Text     string
	Provider string
	Model    string

	// Cached is true when the response came from the response cache
	Cached bool
}

// LLMService defines the text-generation client used by the analysis service.
// Implementations talk to a hosted provider (OpenRouter, Claude, Gemini) or
// run offline, in which case every call fails and callers use their fallbacks.
type LLMService interface {
	// Complete sends one prompt and returns the generated text.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - prompt: User prompt text
	//   - opts: Optional sampling settings, nil for defaults
	//
	// Returns:
	//   - *Completion: Generated text and the provider/model that produced it
	//   - error: Error if the provider call fails or returns no text
	Complete(ctx context.Context, prompt string, opts *CompletionOptions) (*Completion, error)

	// Provider returns the configured provider name
	Provider() string
}
