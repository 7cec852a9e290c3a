package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/sicknote/internal/common"
)

const defaultClaudeMaxTokens = 1024

// claudeProvider generates content with the Anthropic Messages API
type claudeProvider struct {
	client anthropic.Client
	model  string
	logger arbor.ILogger
}

func newClaudeProvider(apiKey string, cfg *common.ClaudeConfig, logger arbor.ILogger) *claudeProvider {
	return &claudeProvider{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:  cfg.Model,
		logger: logger,
	}
}

func (p *claudeProvider) GetProviderType() ProviderType { return ProviderClaude }

func (p *claudeProvider) DefaultModel() string { return p.model }

func (p *claudeProvider) Close() error { return nil }

// GenerateContent generates content using Claude API
func (p *claudeProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	model := request.Model
	if model == "" {
		model = p.model
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.Prompt)),
		},
	}

	if request.Temperature > 0 {
		params.Temperature = anthropic.Float(request.Temperature)
	}

	// Set system message
	if request.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: request.SystemInstruction},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	// Extract text from response
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("claude: %w", ErrEmptyResponse)
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    model,
	}, nil
}
