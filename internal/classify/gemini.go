package classify

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// GeminiProvider calls the Gemini API through the Google GenAI SDK. The
// SDK reads its credentials from the environment (GEMINI_API_KEY or
// application default credentials).
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider builds a provider for one of the priced Gemini
// models.
func NewGeminiProvider(ctx context.Context, model string) (*GeminiProvider, error) {
	if !SupportedModel(model) {
		return nil, domain.Validationf("unsupported model: %s", model)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiProvider: create genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) Complete(ctx context.Context, prompt Prompt, params StrategyParams) (*ProviderResult, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt.User}},
		},
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(params.Temperature),
		MaxOutputTokens: int32(params.MaxTokens),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt.System}},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, &domain.ProviderError{
			Err:     fmt.Errorf("gemini generate content: %w", err),
			Timeout: errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded,
		}
	}

	text := resp.Text()
	if text == "" {
		return nil, &domain.ProviderError{Err: errors.New("gemini generate content: empty response")}
	}

	result := &ProviderResult{Content: text}
	if resp.UsageMetadata != nil {
		result.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		result.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}
