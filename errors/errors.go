package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Error is a coded error with optional context and cause.
// Context values must never contain secrets; they end up in logs and reports.
type Error struct {
	// Code classifies the failure.
	Code ErrorCode

	// Message is a human-readable description of what failed.
	Message string

	// Context carries key/value details (paths, image references, stage names).
	Context map[string]interface{}

	// Cause is the underlying error, if any.
	Cause error

	// Retryable marks the error as transient.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/errors.As traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so sentinel-style comparisons work:
//
//	errors.Is(err, &errors.Error{Code: errors.CodeNotFound})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// New creates a new coded error.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// Newf creates a new coded error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps err with a code and message. It returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Cause = err
	return e
}

// WrapWithContext wraps err with a code, message and context values.
// It returns nil when err is nil.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]interface{}) error {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Cause = err
	e.Context = ctx
	return e
}

// WithContext returns a copy of e with key set to value.
func (e *Error) WithContext(key string, value interface{}) *Error {
	cp := *e
	cp.Context = make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// CodeOf returns the code of the outermost *Error in err's chain,
// or CodeUnknown when there is none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsRetryable reports whether any *Error in err's chain is marked retryable.
func IsRetryable(err error) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Retryable {
			return true
		}
		err = e.Cause
	}
	return false
}

// HasCode reports whether err's chain contains an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &Error{Code: code})
}

// IsCancellation reports whether err stems from a cancelled or expired
// context, either directly or through a CodeCancelled error.
func IsCancellation(err error) bool {
	return HasCode(err, CodeCancelled) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded)
}
