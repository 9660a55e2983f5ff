// Package errors provides structured error handling for gqflow.
// Errors carry codes for programmatic handling, key-value context,
// and a captured stack trace.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx): bad draw files, run never starts.
	CodeMalformedInput Code = "E101"
	CodeEmptyInput     Code = "E102"
	CodeColumnMismatch Code = "E103"
	CodeNonNumeric     Code = "E104"

	// Schema errors (2xx): program/data/draw schema incompatible.
	CodeSchemaMismatch  Code = "E201"
	CodeDuplicateOutput Code = "E202"
	CodeNoOutputs       Code = "E203"

	// Process errors (3xx).
	CodeProcessLaunch  Code = "E301" // fatal
	CodeProcessTimeout Code = "E302" // per-draw
	CodeProcessExit    Code = "E303" // per-draw

	// Output errors (4xx).
	CodeOutputParse Code = "E401"
	CodeWriteFailed Code = "E402"

	// System errors (5xx).
	CodeContextCanceled Code = "E501"
	CodeCheckpoint      Code = "E502"
	CodeConfig          Code = "E503"
	CodePanic           Code = "E504"
	CodeThreshold       Code = "E505"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all gqflow errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// CodeOf extracts the code from an error chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsFatal reports whether an error class must abort the whole run.
// Per-draw errors (timeout, non-zero exit, output parse) are recoverable;
// everything else is fatal.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeProcessTimeout, CodeProcessExit, CodeOutputParse:
		return false
	}
	return true
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// MalformedInput creates a malformed draw file error.
func MalformedInput(path string, reason string) *Error {
	return New(CodeMalformedInput, reason).WithContext("path", path)
}

// NonNumeric creates a non-numeric value error with file location.
func NonNumeric(path string, line int, value string) *Error {
	return New(CodeNonNumeric, "non-numeric value in numeric column").
		WithContext("path", path).
		WithContext("line", line).
		WithContext("value", value)
}

// SchemaMismatch creates a schema mismatch error naming the field.
func SchemaMismatch(field string, reason string) *Error {
	return New(CodeSchemaMismatch, reason).WithContext("field", field)
}

// ProcessLaunch creates a fatal launch error.
func ProcessLaunch(program string, err error) *Error {
	return Wrap(err, CodeProcessLaunch, "program not runnable").
		WithContext("program", program)
}

// DrawTimeout creates a per-draw timeout error.
func DrawTimeout(drawIndex int, timeout string) *Error {
	return New(CodeProcessTimeout, "evaluation exceeded timeout").
		WithContext("draw", drawIndex).
		WithContext("timeout", timeout)
}

// OutputParse creates a per-draw output parse error.
func OutputParse(drawIndex int, reason string) *Error {
	return New(CodeOutputParse, reason).WithContext("draw", drawIndex)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *Error {
	return New(CodeContextCanceled, "canceled").WithContext("op", operation)
}
