package classify

import (
	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// Provider prices in USD per 1M tokens.
var pricing = map[string]struct {
	input  float64
	output float64
}{
	"gpt-4o-mini":      {input: 0.150, output: 0.600},
	"gpt-4o":           {input: 2.50, output: 10.00},
	"gpt-4-turbo":      {input: 10.00, output: 30.00},
	"gemini-2.5-flash": {input: 0.30, output: 2.50},
}

// Cost computes the USD cost of one provider call. An unknown model is a
// validation error: charging at a guessed rate would corrupt the budget
// ledger.
func Cost(model string, tokensIn, tokensOut int) (float64, error) {
	p, ok := pricing[model]
	if !ok {
		return 0, domain.Validationf("unsupported model: %s", model)
	}
	return float64(tokensIn)/1_000_000*p.input + float64(tokensOut)/1_000_000*p.output, nil
}

// SupportedModel reports whether a pricing entry exists for the model.
func SupportedModel(model string) bool {
	_, ok := pricing[model]
	return ok
}
