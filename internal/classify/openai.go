package classify

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds a provider for one of the priced OpenAI
// models.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("NewOpenAIProvider: missing API key")
	}
	if !SupportedModel(model) {
		return nil, domain.Validationf("unsupported model: %s", model)
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt, params StrategyParams) (*ProviderResult, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return nil, &domain.ProviderError{
			Err:     fmt.Errorf("openai completion: %w", err),
			Timeout: errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded,
		}
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.ProviderError{Err: errors.New("openai completion: no choices returned")}
	}

	return &ProviderResult{
		Content:   resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}
