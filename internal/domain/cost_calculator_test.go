package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/domain"
)

func TestCostCalculator_Calculate(t *testing.T) {
	calculator, err := domain.NewCostCalculator(&domain.ModelConfig{
		PricePerPromptToken:     "0.00001",
		PricePerCompletionToken: "0.00002",
	})
	require.NoError(t, err)

	tests := []struct {
		name         string
		usage        domain.Usage
		expectedCost float64
	}{
		{
			name:         "prompt and completion tokens",
			usage:        domain.NewUsage(1000, 500),
			expectedCost: 0.02, // 1000*0.00001 + 500*0.00002
		},
		{
			name:         "zero tokens",
			usage:        domain.Usage{},
			expectedCost: 0,
		},
		{
			name:         "completion only",
			usage:        domain.NewUsage(0, 100),
			expectedCost: 0.002,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.expectedCost, calculator.Calculate(tt.usage), 1e-12)
		})
	}
}

func TestNewCostCalculator_InvalidPrices(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		output string
	}{
		{name: "non numeric prompt price", prompt: "free", output: "0.1"},
		{name: "non numeric completion price", prompt: "0.1", output: ""},
		{name: "negative price", prompt: "-0.1", output: "0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewCostCalculator(&domain.ModelConfig{
				PricePerPromptToken:     tt.prompt,
				PricePerCompletionToken: tt.output,
			})
			require.Error(t, err)
		})
	}
}
