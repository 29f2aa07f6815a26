package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies orchestrator failures so callers can decide whether a
// failure is local to one service, one store call or one sync phase.
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeConflict         ErrorType = "conflict"
	ErrorTypeTransientService ErrorType = "transient_service"
	ErrorTypeActionExecution  ErrorType = "action_execution"
	ErrorTypeStoreUnavailable ErrorType = "store_unavailable"
	ErrorTypeCorrelationInput ErrorType = "correlation_input"
	ErrorTypeTimeout          ErrorType = "timeout"
	ErrorTypeIO               ErrorType = "io"
	ErrorTypeInternal         ErrorType = "internal"
	ErrorTypeCancelled        ErrorType = "cancelled"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

// NewTransientServiceError marks a managed service as unreachable for one poll.
// It is recorded against the service and never escalated on its own.
func NewTransientServiceError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTransientService, message, cause)
}

func NewActionExecutionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeActionExecution, message, cause)
}

// NewUnknownActionError is returned by the action executor for action names it
// does not support.
func NewUnknownActionError(action string) *DomainError {
	return NewActionExecutionError("unknown action: "+action, nil).WithContext("action", action)
}

func NewStoreUnavailableError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeStoreUnavailable, message, cause)
}

func NewCorrelationInputError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCorrelationInput, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

func isType(err error, errorType ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == errorType
}

func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

func IsConflictError(err error) bool {
	return isType(err, ErrorTypeConflict)
}

func IsTransientServiceError(err error) bool {
	return isType(err, ErrorTypeTransientService)
}

func IsActionExecutionError(err error) bool {
	return isType(err, ErrorTypeActionExecution)
}

// IsUnknownActionError reports whether err was produced by NewUnknownActionError.
func IsUnknownActionError(err error) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Type != ErrorTypeActionExecution {
		return false
	}
	_, ok := domainErr.Context["action"]
	return ok && strings.HasPrefix(domainErr.Message, "unknown action")
}

func IsStoreUnavailableError(err error) bool {
	return isType(err, ErrorTypeStoreUnavailable)
}

func IsCorrelationInputError(err error) bool {
	return isType(err, ErrorTypeCorrelationInput)
}

func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

func IsIOError(err error) bool {
	return isType(err, ErrorTypeIO)
}

func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

func IsCancelledError(err error) bool {
	return isType(err, ErrorTypeCancelled)
}

// ErrorCollection aggregates errors from independent steps, e.g. sync phases.
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
