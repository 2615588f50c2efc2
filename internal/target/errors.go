package target

import (
	"fmt"
	"strings"
)

// Code is the stable identifier attached to every Error, independent of the
// human-readable message (which may change between versions).
type Code string

const (
	CodeConfig        Code = "CONFIG"
	CodeGraph         Code = "GRAPH"
	CodeFileSystem    Code = "FILESYSTEM"
	CodeCache         Code = "CACHE"
	CodeBuildFailure  Code = "BUILD_FAILURE"
	CodeSystem        Code = "SYSTEM"
	CodeNetwork       Code = "NETWORK"
	CodeResourceLimit Code = "RESOURCE_LIMIT"
	CodeInternal      Code = "INTERNAL"
)

// Retryable reports whether errors of this code are ever eligible for the
// retry loop. Per spec §7: only FileSystem (if transient), System and
// Network are retryable; the others are not, regardless of policy.
func (c Code) Retryable() bool {
	switch c {
	case CodeFileSystem, CodeSystem, CodeNetwork:
		return true
	default:
		return false
	}
}

// Error is forge's tagged-union error type. Every fallible core operation
// returns one of these (wrapped via xerrors.Errorf at each frame) rather
// than using exceptions for control flow.
type Error struct {
	Code        Code
	Message     string
	Frames      []string // contextual frames, e.g. "while loading X"
	Suggestions []string
	Cause       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	for _, f := range e.Frames {
		b.WriteString(" (")
		b.WriteString(f)
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// WithFrame returns a copy of e with an additional contextual frame, mirroring
// distri's xerrors.Errorf("while X: %w", err) chains but keeping the code and
// suggestions intact for callers that inspect them structurally instead of
// by string matching.
func (e *Error) WithFrame(format string, args ...interface{}) *Error {
	cp := *e
	cp.Frames = append(append([]string{}, e.Frames...), fmt.Sprintf(format, args...))
	return &cp
}

func NewError(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// GraphError is returned for cycles and unknown dependencies, fatal at load.
func GraphErrorf(format string, args ...interface{}) *Error {
	return &Error{Code: CodeGraph, Message: fmt.Sprintf(format, args...)}
}

// ConfigError is returned for duplicate targets, bad globs, fatal at load.
func ConfigErrorf(format string, args ...interface{}) *Error {
	return &Error{Code: CodeConfig, Message: fmt.Sprintf(format, args...)}
}
