package ai

import (
	"github.com/shopspring/decimal"
)

// ModelPricing holds per-1K-token prices in USD
type ModelPricing struct {
	InputPer1K  decimal.Decimal
	OutputPer1K decimal.Decimal
}

var thousand = decimal.NewFromInt(1000)

// Cost returns the USD cost of a single call at these prices
func (p ModelPricing) Cost(promptTokens, completionTokens int) decimal.Decimal {
	input := decimal.NewFromInt(int64(promptTokens)).Div(thousand).Mul(p.InputPer1K)
	output := decimal.NewFromInt(int64(completionTokens)).Div(thousand).Mul(p.OutputPer1K)
	return input.Add(output)
}

// pricingTable maps model IDs to published per-1K prices. Local models are
// absent on purpose; their cost is zero.
var pricingTable = map[string]ModelPricing{
	ModelClaude45Sonnet: {
		InputPer1K:  decimal.RequireFromString("0.003"),
		OutputPer1K: decimal.RequireFromString("0.015"),
	},
	ModelClaude45Haiku: {
		InputPer1K:  decimal.RequireFromString("0.001"),
		OutputPer1K: decimal.RequireFromString("0.005"),
	},
	ModelClaude41Opus: {
		InputPer1K:  decimal.RequireFromString("0.015"),
		OutputPer1K: decimal.RequireFromString("0.075"),
	},
	ModelGPT51: {
		InputPer1K:  decimal.RequireFromString("0.00125"),
		OutputPer1K: decimal.RequireFromString("0.01"),
	},
	ModelGPT4o: {
		InputPer1K:  decimal.RequireFromString("0.0025"),
		OutputPer1K: decimal.RequireFromString("0.01"),
	},
	ModelGPT4oMini: {
		InputPer1K:  decimal.RequireFromString("0.00015"),
		OutputPer1K: decimal.RequireFromString("0.0006"),
	},
	ModelDeepSeekChat: {
		InputPer1K:  decimal.RequireFromString("0.00027"),
		OutputPer1K: decimal.RequireFromString("0.0011"),
	},
	ModelDeepSeekReasoner: {
		InputPer1K:  decimal.RequireFromString("0.00055"),
		OutputPer1K: decimal.RequireFromString("0.00219"),
	},
	ModelGemini20Flash: {
		InputPer1K:  decimal.RequireFromString("0.0001"),
		OutputPer1K: decimal.RequireFromString("0.0004"),
	},
	ModelGemini15Pro: {
		InputPer1K:  decimal.RequireFromString("0.00125"),
		OutputPer1K: decimal.RequireFromString("0.005"),
	},
}

// PricingFor looks up published pricing for a model ID
func PricingFor(modelID string) (ModelPricing, bool) {
	p, ok := pricingTable[modelID]
	return p, ok
}

// CostUSD computes the cost of one call, zero for unknown or local models
func CostUSD(modelID string, promptTokens, completionTokens int) decimal.Decimal {
	p, ok := pricingTable[modelID]
	if !ok {
		return decimal.Zero
	}
	return p.Cost(promptTokens, completionTokens)
}
