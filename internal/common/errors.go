package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried by AppError
const (
	CodeTextExtraction = "TEXT_EXTRACTION"
	CodeLLMResponse    = "LLM_RESPONSE"
	CodeValidation     = "VALIDATION"
	CodeConfig         = "CONFIG"
	CodeExport         = "EXPORT"
)

// Common application errors
var (
	// ErrTextExtraction means no text was recoverable from any strategy.
	// Terminal for the document; there is nothing to retry.
	ErrTextExtraction = errors.New("no text could be extracted")
	ErrInvalidInput   = errors.New("invalid input")
	ErrValidation     = errors.New("validation failed")
	ErrExhausted      = errors.New("extraction attempts exhausted")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
