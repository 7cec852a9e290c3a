package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/sicknote/internal/common"
)

// geminiProvider generates content with the Google Gemini API
type geminiProvider struct {
	client *genai.Client
	model  string
	logger arbor.ILogger
}

func newGeminiProvider(ctx context.Context, apiKey string, cfg *common.GeminiConfig, logger arbor.ILogger) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiProvider{
		client: client,
		model:  cfg.Model,
		logger: logger,
	}, nil
}

func (p *geminiProvider) GetProviderType() ProviderType { return ProviderGemini }

func (p *geminiProvider) DefaultModel() string { return p.model }

func (p *geminiProvider) Close() error {
	p.client = nil
	return nil
}

// GenerateContent generates content using Gemini API
func (p *geminiProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("gemini: %w", ErrProviderUnavailable)
	}

	model := request.Model
	if model == "" {
		model = p.model
	}

	config := &genai.GenerateContentConfig{}
	if request.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(request.Temperature))
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}

	// Set system instruction
	if request.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemInstruction, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(request.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	// Extract text from response
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	return &ContentResponse{
		Text:     responseText,
		Provider: ProviderGemini,
		Model:    model,
	}, nil
}
