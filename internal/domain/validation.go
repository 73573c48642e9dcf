package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	tagContentOrToolCalls = "content_or_tool_calls"
	bodyField             = "body"
)

// Validator turns untyped inbound payloads into validated CompletionRequests.
// It is pure and safe for concurrent use.
type Validator struct {
	validate         *validator.Validate
	defaultMaxTokens int
	maxTokensCeiling int
}

// NewValidator creates a validator bound to the model's token limits (DI constructor).
func NewValidator(cfg *ModelConfig) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so callers can match them to their payload.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v := &Validator{
		validate:         validate,
		defaultMaxTokens: cfg.DefaultMaxTokens,
		maxTokensCeiling: cfg.MaxContextLength,
	}

	validate.RegisterStructValidation(v.validateRequest, CompletionRequest{})
	validate.RegisterStructValidation(validateMessage, Message{})

	return v
}

// Decode reads a JSON payload, applies defaults, normalizes it and validates it.
// Any failure is a *ValidationError.
func (v *Validator) Decode(r io.Reader) (*CompletionRequest, error) {
	req := &CompletionRequest{
		MaxTokens:   v.defaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}

	if err := json.NewDecoder(r).Decode(req); err != nil {
		return nil, decodeError(err)
	}

	req.normalize()

	if err := v.Validate(req); err != nil {
		return nil, err
	}

	return req, nil
}

// Validate checks a request against its range and shape constraints.
func (v *Validator) Validate(req *CompletionRequest) error {
	if req == nil {
		return &ValidationError{Violations: []FieldViolation{{
			Field:      bodyField,
			Constraint: "required",
			Message:    "request cannot be nil",
		}}}
	}

	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	violations := make([]FieldViolation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fieldPath(fe.Namespace())
		violations = append(violations, FieldViolation{
			Field:      field,
			Constraint: constraintOf(fe),
			Message:    describe(field, fe),
		})
	}

	return &ValidationError{Violations: violations}
}

func (v *Validator) validateRequest(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(CompletionRequest)
	if !ok {
		return
	}

	switch {
	case req.MaxTokens < 1:
		sl.ReportError(req.MaxTokens, "max_tokens", "MaxTokens", "gte", "1")
	case req.MaxTokens > v.maxTokensCeiling:
		sl.ReportError(req.MaxTokens, "max_tokens", "MaxTokens", "lte", strconv.Itoa(v.maxTokensCeiling))
	}
}

// validateMessage enforces that content may be absent only when tool calls are present.
func validateMessage(sl validator.StructLevel) {
	msg, ok := sl.Current().Interface().(Message)
	if !ok {
		return
	}

	if msg.Content == nil && len(msg.ToolCalls) == 0 {
		sl.ReportError(msg.Content, "content", "Content", tagContentOrToolCalls, "")
	}
}

func (r *CompletionRequest) normalize() {
	for i := range r.Tools {
		if r.Tools[i].Type == "" {
			r.Tools[i].Type = "function"
		}
	}

	if r.ResponseFormat != nil && r.ResponseFormat.Type == "" {
		r.ResponseFormat.Type = "text"
	}
}

func decodeError(err error) *ValidationError {
	violation := FieldViolation{
		Field:      bodyField,
		Constraint: "json",
		Message:    "request body is not valid JSON: " + err.Error(),
	}

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		violation.Constraint = "required"
		violation.Message = "request body is empty"
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = bodyField
		}
		violation.Field = field
		violation.Constraint = "type"
		violation.Message = fmt.Sprintf("%s must be of type %s", field, typeErr.Type)
	}

	return &ValidationError{Violations: []FieldViolation{violation}}
}

// fieldPath strips the root struct name from a validator namespace,
// e.g. "CompletionRequest.messages[0].role" becomes "messages[0].role".
func fieldPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return rest
}

func constraintOf(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "eq":
		return fmt.Sprintf("%s must be %q", field, fe.Param())
	case tagContentOrToolCalls:
		return field + " is required unless tool_calls are present"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
