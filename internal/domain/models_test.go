package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/ember/internal/domain"
)

func TestNewUsage_TotalIsSum(t *testing.T) {
	usage := domain.NewUsage(10, 5)

	require.Equal(t, 10, usage.PromptTokens)
	require.Equal(t, 5, usage.CompletionTokens)
	require.Equal(t, 15, usage.TotalTokens)
}

func TestCompletionResult_RoundTrip(t *testing.T) {
	original := domain.CompletionResult{
		Content:      "Hello",
		FinishReason: domain.FinishReasonLength,
		Usage:        domain.NewUsage(10, 5),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded domain.CompletionResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, original, decoded)
}

func TestStreamEvent_IsTerminal(t *testing.T) {
	require.False(t, domain.StreamEvent{Content: "x"}.IsTerminal())
	require.False(t, domain.StreamEvent{KeepAlive: true}.IsTerminal())
	require.True(t, domain.StreamEvent{FinishReason: domain.FinishReasonStop}.IsTerminal())
}

func TestNewChatCompletionChunk_FinishReason(t *testing.T) {
	open := domain.NewChatCompletionChunk("id", 1, "m", "hi", "")
	data, err := json.Marshal(open)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"id":"id","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":null}]}`,
		string(data))

	final := domain.NewChatCompletionChunk("id", 1, "m", "", domain.FinishReasonStop)
	require.Equal(t, domain.FinishReasonStop, *final.Choices[0].FinishReason)
}

func TestCacheable(t *testing.T) {
	bestOfTwo := 2

	tests := []struct {
		name     string
		req      *domain.CompletionRequest
		expected bool
	}{
		{name: "nil request", req: nil, expected: false},
		{name: "greedy buffered", req: &domain.CompletionRequest{Temperature: 0}, expected: true},
		{name: "sampled", req: &domain.CompletionRequest{Temperature: 0.7}, expected: false},
		{name: "streaming", req: &domain.CompletionRequest{Stream: true}, expected: false},
		{name: "best of two", req: &domain.CompletionRequest{BestOf: &bestOfTwo}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, domain.Cacheable(tt.req))
		})
	}
}

func TestCacheKey(t *testing.T) {
	base := &domain.CompletionRequest{
		Model:    "m",
		Messages: []domain.Message{domain.TextMessage(domain.RoleUser, "hi")},
	}

	withUser := *base
	withUser.User = "someone"

	other := *base
	other.Model = "n"

	require.Equal(t, domain.CacheKey(base), domain.CacheKey(&withUser))
	require.NotEqual(t, domain.CacheKey(base), domain.CacheKey(&other))
	require.Contains(t, domain.CacheKey(base), "ember:completion:")
}

func TestCatalog_Models(t *testing.T) {
	metrics := domain.NewRequestMetrics()
	catalog := domain.NewCatalog(&domain.ModelConfig{
		ID:                      "acme/model",
		DisplayName:             "Acme Model",
		OrganizationID:          "acme",
		MaxContextLength:        32768,
		Quantization:            "fp8",
		SupportedFeatures:       []string{"tools"},
		PricePerPromptToken:     "0.000001",
		PricePerCompletionToken: "0.000002",
	}, metrics)

	list := catalog.Models()

	require.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)

	model := list.Data[0]
	require.Equal(t, "acme/model", model.ID)
	require.Equal(t, "model", model.Object)
	require.Equal(t, "acme", model.OwnedBy)
	require.Equal(t, "Acme Model", model.Name)
	require.Equal(t, 32768, model.ContextLength)
	require.Equal(t, metrics.StartTime().Unix(), model.Created)
	require.Equal(t, domain.ModelPricing{Prompt: "0.000001", Completion: "0.000002"}, model.Pricing)
	require.Equal(t, []string{"tools"}, model.SupportedFeatures)
}
