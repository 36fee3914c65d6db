package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies agent runtime failures.
type ErrorCode string

const (
	CodeTransient           ErrorCode = "TRANSIENT"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeToolArg             ErrorCode = "TOOL_ARG_ERROR"
	CodeToolExec            ErrorCode = "TOOL_EXEC_ERROR"
	CodeRedundancyBlocked   ErrorCode = "REDUNDANCY_BLOCKED"
	CodeUsageCap            ErrorCode = "USAGE_CAP"
	CodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	CodeAuth                ErrorCode = "AUTH_ERROR"
	CodeFatal               ErrorCode = "FATAL"
)

// AppError carries a classification code alongside the wrapped cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewTransient(message string, cause error) *AppError {
	return &AppError{Code: CodeTransient, Message: message, Err: cause}
}

func NewContextOverflow(message string) *AppError {
	return &AppError{Code: CodeContextOverflow, Message: message}
}

func NewToolArg(message string) *AppError {
	return &AppError{Code: CodeToolArg, Message: message}
}

func NewToolExec(message string, cause error) *AppError {
	return &AppError{Code: CodeToolExec, Message: message, Err: cause}
}

func NewRedundancyBlocked(message string) *AppError {
	return &AppError{Code: CodeRedundancyBlocked, Message: message}
}

func NewUsageCap(message string) *AppError {
	return &AppError{Code: CodeUsageCap, Message: message}
}

func NewUpstreamUnavailable(message string, cause error) *AppError {
	return &AppError{Code: CodeUpstreamUnavailable, Message: message, Err: cause}
}

func NewAuth(message string) *AppError {
	return &AppError{Code: CodeAuth, Message: message}
}

func NewFatal(message string, cause error) *AppError {
	return &AppError{Code: CodeFatal, Message: message, Err: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsTransient(err error) bool        { return HasCode(err, CodeTransient) }
func IsContextOverflow(err error) bool  { return HasCode(err, CodeContextOverflow) }
func IsUsageCap(err error) bool         { return HasCode(err, CodeUsageCap) }
func IsRedundancy(err error) bool       { return HasCode(err, CodeRedundancyBlocked) }
func IsUpstreamDown(err error) bool     { return HasCode(err, CodeUpstreamUnavailable) }
func IsAuth(err error) bool             { return HasCode(err, CodeAuth) }
func IsFatal(err error) bool            { return HasCode(err, CodeFatal) }
