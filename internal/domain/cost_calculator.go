package domain

import (
	"fmt"
	"strconv"
)

// CostCalculator prices token usage with the model's per-token rates.
type CostCalculator struct {
	promptPrice     float64
	completionPrice float64
}

// NewCostCalculator parses the configured per-token prices (DI constructor).
func NewCostCalculator(cfg *ModelConfig) (*CostCalculator, error) {
	promptPrice, err := strconv.ParseFloat(cfg.PricePerPromptToken, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt token price %q: %w", cfg.PricePerPromptToken, err)
	}

	completionPrice, err := strconv.ParseFloat(cfg.PricePerCompletionToken, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid completion token price %q: %w", cfg.PricePerCompletionToken, err)
	}

	if promptPrice < 0 || completionPrice < 0 {
		return nil, fmt.Errorf("token prices cannot be negative")
	}

	return &CostCalculator{
		promptPrice:     promptPrice,
		completionPrice: completionPrice,
	}, nil
}

// Calculate returns the USD cost of the given usage.
func (c *CostCalculator) Calculate(usage Usage) float64 {
	inputCost := float64(usage.PromptTokens) * c.promptPrice
	outputCost := float64(usage.CompletionTokens) * c.completionPrice
	return inputCost + outputCost
}
