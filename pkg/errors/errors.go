package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Scope says how far a failure reaches and therefore who handles it.
type Scope string

const (
	// ScopeRecord drops one record; the batch continues.
	ScopeRecord Scope = "record"
	// ScopeBatch aborts one batch commit; the batch is redelivered.
	ScopeBatch Scope = "batch"
	// ScopeStartup aborts the process; an operator has to intervene.
	ScopeStartup Scope = "startup"
	// ScopeRequest is returned to an ops API caller.
	ScopeRequest Scope = "request"
)

var (
	ErrNotFound           = newSentinel("NOT_FOUND", "resource not found", http.StatusNotFound, ScopeRequest, true)
	ErrValidation         = newSentinel("VALIDATION_ERROR", "validation failed", http.StatusBadRequest, ScopeRequest, true)
	ErrInternal           = newSentinel("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError, ScopeRequest, false)
	ErrServiceUnavailable = newSentinel("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable, ScopeRequest, false)
)

var (
	ErrSchemaMismatch = newSentinel("SCHEMA_MISMATCH", "payload does not match campaign event schema", http.StatusUnprocessableEntity, ScopeRecord, true)
	ErrCatalogLoad    = newSentinel("CATALOG_LOAD", "failed to load subscriber catalog", http.StatusServiceUnavailable, ScopeStartup, true)
	ErrSinkWrite      = newSentinel("SINK_WRITE", "sink write failed", http.StatusBadGateway, ScopeBatch, false)
	ErrConfiguration  = newSentinel("CONFIGURATION_ERROR", "invalid configuration", http.StatusInternalServerError, ScopeStartup, true)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code    string
	Message string
	Status  int
	Scope   Scope
	Details map[string]interface{}
	Cause   error

	fatalByDefault bool
	retryable      *bool
}

func NewError(code, message string, status int) *Error {
	return newSentinel(code, message, status, ScopeRequest, false)
}

func newSentinel(code, message string, status int, scope Scope, fatal bool) *Error {
	return &Error{
		Code:           code,
		Message:        message,
		Status:         status,
		Scope:          scope,
		fatalByDefault: fatal,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so derived copies still match their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// IsRetryable resolves in order: explicit AsRetryable/AsFatal, then a classified cause,
// then the sentinel default.
func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return !e.fatalByDefault
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) clone() *Error {
	err := *e
	return &err
}

func (e *Error) WithCause(cause error) *Error {
	err := e.clone()
	err.Cause = cause
	return err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := e.clone()
	err.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		err.Details[k] = v
	}
	err.Details[key] = value
	return err
}

func (e *Error) AsRetryable() *Error {
	return e.withRetryable(true)
}

func (e *Error) AsFatal() *Error {
	return e.withRetryable(false)
}

func (e *Error) withRetryable(v bool) *Error {
	err := e.clone()
	err.retryable = &v
	return err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsFatal(err error) bool {
	var fatalErr FatalError
	if errors.As(err, &fatalErr) {
		return fatalErr.IsFatal()
	}
	return false
}

// ScopeOf returns the scope of the outermost *Error in the chain, or ScopeBatch for
// unclassified errors.
func ScopeOf(err error) Scope {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Scope != "" {
		return appErr.Scope
	}
	return ScopeBatch
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func ToErrorResponse(err error) ErrorResponse {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}
	return ErrorResponse{
		Error:     appErr.Message,
		ErrorCode: appErr.Code,
		Details:   appErr.Details,
	}
}
