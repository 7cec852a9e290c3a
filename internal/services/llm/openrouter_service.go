package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterTitle          = "Izin Sakit App"
)

// openRouterProvider talks to OpenRouter through the OpenAI-compatible API
type openRouterProvider struct {
	client openai.Client
	model  string
	logger arbor.ILogger
}

func newOpenRouterProvider(apiKey string, cfg *common.OpenRouterConfig, logger arbor.ILogger) *openRouterProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHeader("X-Title", openRouterTitle),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}

	return &openRouterProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

func (p *openRouterProvider) GetProviderType() ProviderType { return ProviderOpenRouter }

func (p *openRouterProvider) DefaultModel() string { return p.model }

func (p *openRouterProvider) Close() error { return nil }

// GenerateContent generates content using a chat completion
func (p *openRouterProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	model := request.Model
	if model == "" {
		model = p.model
	}

	var msgs []openai.ChatCompletionMessageParamUnion
	if request.SystemInstruction != "" {
		msgs = append(msgs, openai.SystemMessage(request.SystemInstruction))
	}
	msgs = append(msgs, openai.UserMessage(request.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenRouter API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openrouter: %w", ErrEmptyResponse)
	}

	return &ContentResponse{
		Text:     resp.Choices[0].Message.Content,
		Provider: ProviderOpenRouter,
		Model:    model,
	}, nil
}
