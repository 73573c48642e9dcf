package vllm

import (
	"encoding/json"

	"github.com/davidbz/ember/internal/domain"
)

// chatRequest is the outbound Chat Completions payload.
type chatRequest struct {
	Model             string                 `json:"model"`
	Messages          []domain.Message       `json:"messages"`
	MaxTokens         int                    `json:"max_tokens"`
	Temperature       float64                `json:"temperature"`
	TopP              float64                `json:"top_p"`
	TopK              *int                   `json:"top_k,omitempty"`
	FrequencyPenalty  *float64               `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64               `json:"presence_penalty,omitempty"`
	RepetitionPenalty *float64               `json:"repetition_penalty,omitempty"`
	Stop              []string               `json:"stop,omitempty"`
	Stream            bool                   `json:"stream"`
	Tools             []domain.Tool          `json:"tools,omitempty"`
	ToolChoice        json.RawMessage        `json:"tool_choice,omitempty"`
	ResponseFormat    *domain.ResponseFormat `json:"response_format,omitempty"`
	User              string                 `json:"user,omitempty"`
	BestOf            *int                   `json:"best_of,omitempty"`
	UseBeamSearch     bool                   `json:"use_beam_search,omitempty"`
	SkipSpecialTokens *bool                  `json:"skip_special_tokens,omitempty"`
}

// chatCompletionResponse is the buffered backend response.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// chatCompletionChunk is one streamed backend event.
type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// toChatRequest translates a validated request into the backend payload.
func toChatRequest(req *domain.CompletionRequest, stream bool) chatRequest {
	return chatRequest{
		Model:             req.Model,
		Messages:          req.Messages,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		TopK:              req.TopK,
		FrequencyPenalty:  req.FrequencyPenalty,
		PresencePenalty:   req.PresencePenalty,
		RepetitionPenalty: req.RepetitionPenalty,
		Stop:              req.Stop,
		Stream:            stream,
		Tools:             req.Tools,
		ToolChoice:        req.ToolChoice,
		ResponseFormat:    req.ResponseFormat,
		User:              req.User,
		BestOf:            req.BestOf,
		UseBeamSearch:     req.UseBeamSearch,
		SkipSpecialTokens: req.SkipSpecialTokens,
	}
}

// toResult extracts the first choice, defaulting the finish reason to stop and
// absent usage counts to zero.
func toResult(resp *chatCompletionResponse) *domain.CompletionResult {
	choice := resp.Choices[0]

	content := ""
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}

	finishReason := domain.FinishReasonStop
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		finishReason = *choice.FinishReason
	}

	var u domain.Usage
	if resp.Usage != nil {
		u = domain.NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	return &domain.CompletionResult{
		Content:      content,
		FinishReason: finishReason,
		Usage:        u,
	}
}
