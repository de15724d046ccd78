package types

import "fmt"

// ErrorCode classifies coordinator errors.
type ErrorCode string

const (
	ErrCodeUnknown          ErrorCode = "UNKNOWN_ERROR"
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// ErrCodeStoreUnavailable marks transport or connection failures against
	// the shared store. It is the only condition that propagates to callers
	// as an error; agents should back off and retry rather than assume the
	// pool is empty.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	ErrCodeTaskNotFound    ErrorCode = "TASK_NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionActive   ErrorCode = "SESSION_ACTIVE"
)

// AppError is the coordinator's error type.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates an AppError.
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewAppErrorWithCause creates an AppError wrapping a cause.
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Predefined errors.
var (
	ErrTaskNotFound    = NewAppError(ErrCodeTaskNotFound, "task not found")
	ErrSessionNotFound = NewAppError(ErrCodeSessionNotFound, "no active session")
	ErrSessionActive   = NewAppError(ErrCodeSessionActive, "a session is already active")
)

// StoreUnavailable wraps a database error as STORE_UNAVAILABLE.
func StoreUnavailable(cause error) *AppError {
	return NewAppErrorWithCause(ErrCodeStoreUnavailable, "store unavailable", cause)
}

// GetErrorCode extracts the code from an error.
func GetErrorCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeUnknown
}

// IsStoreUnavailable reports whether err is a STORE_UNAVAILABLE error.
func IsStoreUnavailable(err error) bool {
	return GetErrorCode(err) == ErrCodeStoreUnavailable
}
