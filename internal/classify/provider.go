package classify

import "context"

// Strategy trades answer quality against token spend.
type Strategy string

const (
	StrategyAggressive Strategy = "aggressive"
	StrategyBalanced   Strategy = "balanced"
	StrategyQuality    Strategy = "quality"
)

// StrategyParams are the sampling parameters sent to the provider.
type StrategyParams struct {
	Temperature float32
	MaxTokens   int
}

// params maps a strategy onto sampling parameters; unknown strategies
// get the balanced defaults.
func (s Strategy) params() StrategyParams {
	switch s {
	case StrategyAggressive:
		return StrategyParams{Temperature: 0.5, MaxTokens: 150}
	case StrategyQuality:
		return StrategyParams{Temperature: 0.1, MaxTokens: 300}
	default:
		return StrategyParams{Temperature: 0.3, MaxTokens: 200}
	}
}

// Prompt is a system/user prompt pair.
type Prompt struct {
	System string
	User   string
}

// ProviderResult carries the raw model output plus the token counts the
// cost calculation needs.
type ProviderResult struct {
	Content   string
	TokensIn  int
	TokensOut int
}

// Provider is one AI backend. Implementations wrap transport failures in
// domain.ProviderError with the timeout flag set from the context state.
type Provider interface {
	Model() string
	Complete(ctx context.Context, prompt Prompt, params StrategyParams) (*ProviderResult, error)
}
