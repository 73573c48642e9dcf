package domain

// Object tags used in response envelopes.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// ChatCompletionResponse is the buffered response envelope.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single buffered completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed event envelope.
type ChatCompletionChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice carries the incremental delta of a chunk.
type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta holds the content fragment of a chunk.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// NewChatCompletionResponse wraps a buffered result in the response envelope.
func NewChatCompletionResponse(id string, created int64, model string, result *CompletionResult) *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:      id,
		Object:  ObjectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      TextMessage(RoleAssistant, result.Content),
				FinishReason: result.FinishReason,
			},
		},
		Usage: result.Usage,
	}
}

// NewChatCompletionChunk wraps a content event in the chunk envelope.
func NewChatCompletionChunk(id string, created int64, model, content, finishReason string) *ChatCompletionChunk {
	var reason *string
	if finishReason != "" {
		reason = &finishReason
	}

	return &ChatCompletionChunk{
		ID:      id,
		Object:  ObjectChatCompletionChunk,
		Created: created,
		Model:   model,
		Choices: []StreamChoice{
			{
				Index:        0,
				Delta:        Delta{Content: content},
				FinishReason: reason,
			},
		},
	}
}
