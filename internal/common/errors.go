package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared across packages.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeBusinessRule = "BUSINESS_RULE"
	CodePersistence  = "PERSISTENCE_ERROR"
	CodeConflict     = "CONFLICT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// ValidationError reports malformed input such as a missing userId or a non-numeric amount.
func ValidationError(format string, args ...any) *AppError {
	return NewAppError(CodeValidation, fmt.Sprintf(format, args...), http.StatusBadRequest, nil)
}

// NotFoundError reports an unknown entity.
func NotFoundError(format string, args ...any) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf(format, args...), http.StatusNotFound, nil)
}

// BusinessRuleError reports a request that is well formed but violates a domain rule.
func BusinessRuleError(format string, args ...any) *AppError {
	return NewAppError(CodeBusinessRule, fmt.Sprintf(format, args...), http.StatusConflict, nil)
}

// PersistenceError wraps a storage failure. It is fatal to the request and never retried.
func PersistenceError(op string, err error) *AppError {
	return NewAppError(CodePersistence, op+" failed", http.StatusInternalServerError, fmt.Errorf("%s: %w", op, err))
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var target *AppError
	if errors.As(err, &target) {
		return target.Code == code
	}
	return false
}
