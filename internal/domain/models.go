package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons reported on the terminal choice.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// Default generation parameters applied when the caller omits them.
const (
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
)

// CompletionRequest is the canonical chat completion request. It is built once
// per inbound call by Validator.Decode and not mutated afterwards.
type CompletionRequest struct {
	Model    string    `json:"model"    validate:"required"`
	Messages []Message `json:"messages" validate:"required,dive"`

	// MaxTokens is checked against the configured context ceiling by the Validator.
	MaxTokens         int      `json:"max_tokens"`
	Temperature       float64  `json:"temperature"                  validate:"gte=0,lte=2"`
	TopP              float64  `json:"top_p"                        validate:"gte=0,lte=1"`
	TopK              *int     `json:"top_k,omitempty"              validate:"omitnil,gte=1"`
	FrequencyPenalty  *float64 `json:"frequency_penalty,omitempty"  validate:"omitnil,gte=-2,lte=2"`
	PresencePenalty   *float64 `json:"presence_penalty,omitempty"   validate:"omitnil,gte=-2,lte=2"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty" validate:"omitnil,gte=0"`

	Stop   StopSequences `json:"stop,omitempty"`
	Stream bool          `json:"stream"`

	Tools          []Tool          `json:"tools,omitempty"           validate:"dive"`
	ToolChoice     json.RawMessage `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	User           string          `json:"user,omitempty"`

	// vLLM extensions.
	BestOf            *int  `json:"best_of,omitempty"             validate:"omitnil,gte=1"`
	UseBeamSearch     bool  `json:"use_beam_search,omitempty"`
	SkipSpecialTokens *bool `json:"skip_special_tokens,omitempty"`
}

// Message represents a chat message in OpenAI format.
type Message struct {
	Role       string     `json:"role"                   validate:"oneof=system user assistant tool"`
	Content    *string    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the assistant.
type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the function name and its JSON-encoded arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string       `json:"type"     validate:"eq=function"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function.
type ToolFunction struct {
	Name        string          `json:"name"                  validate:"required"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ResponseFormat hints the desired output encoding.
type ResponseFormat struct {
	Type string `json:"type" validate:"oneof=text json_object"`
}

// StopSequences accepts either a single string or an array of strings and
// always holds the list form.
type StopSequences []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StopSequences) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*s = nil
		} else {
			*s = StopSequences{single}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("stop must be a string or an array of strings")
	}
	*s = many
	return nil
}

// contentPart is one element of the array form of message content.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts content as a string, null, or an array of text parts.
// Text parts are joined with newlines so downstream code only ever sees a string.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		Content json.RawMessage `json:"content"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	content, err := normalizeContent(aux.Content)
	if err != nil {
		return err
	}
	m.Content = content
	return nil
}

func normalizeContent(raw json.RawMessage) (*string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &text, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, errors.New("content must be a string or an array of text parts")
	}

	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type != "text" {
			return nil, fmt.Errorf("unsupported content part type %q", part.Type)
		}
		texts = append(texts, part.Text)
	}
	joined := strings.Join(texts, "\n")
	return &joined, nil
}

// Text returns the message content or an empty string.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// TextMessage builds a message with string content.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: &content}
}

// Usage tracks token consumption. TotalTokens is always PromptTokens + CompletionTokens.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage builds a Usage whose total is derived from its parts.
func NewUsage(promptTokens, completionTokens int) Usage {
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// CompletionResult is the assembled outcome of a buffered generation.
type CompletionResult struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// StreamEvent is one element of a backend stream. KeepAlive events carry no
// content and never a finish reason. Err is set on the last event when the
// stream broke before the backend finished.
type StreamEvent struct {
	Content      string
	FinishReason string
	KeepAlive    bool
	Err          error
}

// IsTerminal reports whether the event carries a finish reason.
func (e StreamEvent) IsTerminal() bool {
	return e.FinishReason != ""
}
