package domain

import (
	"fmt"
	"time"
)

// InsufficientInputError indicates a stage-1-required field is absent.
// Stage 1 is mandatory, so this aborts the whole prediction.
type InsufficientInputError struct {
	Field string `json:"field"`
}

func (e *InsufficientInputError) Error() string {
	return fmt.Sprintf("insufficient input: clinical stage requires field %q", e.Field)
}

// MissingFeatureError indicates a field required by an optional stage is
// absent. The orchestrator handles it by skipping the stage; it is never
// surfaced to the caller as a failure.
type MissingFeatureError struct {
	Stage Stage  `json:"stage"`
	Field string `json:"field"`
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing feature %q for stage %s", e.Field, e.Stage)
}

// UnknownCategoryError indicates a categorical value outside the trained
// encoding table. Fatal: silently miscoding a category corrupts model input.
type UnknownCategoryError struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unrecognized value %q for categorical field %q", e.Value, e.Field)
}

// ModelQueryError indicates an underlying predictor failed or returned a
// probability outside [0,1]. Fatal, surfaced to the caller.
type ModelQueryError struct {
	Stage Stage
	Err   error
}

func (e *ModelQueryError) Error() string {
	return fmt.Sprintf("model query failed for stage %s: %v", e.Stage, e.Err)
}

func (e *ModelQueryError) Unwrap() error {
	return e.Err
}

// ValidationError represents an input value outside its documented range.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// Error codes for API error responses.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInsufficientInput = "INSUFFICIENT_INPUT"
	ErrCodeUnknownCategory   = "UNKNOWN_CATEGORY"
	ErrCodeModelQuery        = "MODEL_QUERY_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDatabase          = "DATABASE_ERROR"
	ErrCodeUnavailable       = "SERVICE_UNAVAILABLE"
	ErrCodeInternalServer    = "INTERNAL_SERVER_ERROR"
)

// APIError is the standardized error envelope returned by the HTTP layer.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Field     string    `json:"field,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new APIError with timestamp.
func NewAPIError(code, message, field, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Field:     field,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
