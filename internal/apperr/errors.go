// Package apperr defines the gateway's error taxonomy: a small set of
// classification codes that every internal package returns errors in, so
// the gateway and REST surface can map a failure to a wire error code
// without string-sniffing.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an error into one of the taxonomy buckets (§7).
type Code string

const (
	Input        Code = "input"
	Auth         Code = "auth"
	Idempotency  Code = "idempotency"
	NotFound     Code = "not_found"
	Capability   Code = "capability"
	Policy       Code = "policy"
	Upstream     Code = "upstream"
	Internal     Code = "internal"
)

// Error is an apperr-classified error. It wraps an optional cause so
// errors.Is/errors.As keep working across the boundary.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// E constructs a classified error. cause may be nil.
func E(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// CodeOf extracts the Code from err, walking the unwrap chain. Returns ""
// if err is nil, and Internal if err carries no apperr.Error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err's classified code equals code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
