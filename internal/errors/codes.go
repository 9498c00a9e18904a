// Package errors provides the engine's structured error taxonomy.
package errors

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #region codes

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Recovered locally: logged, default value substituted.
	CodeValidation Code = "VALIDATION"
	CodeSafetyTrip Code = "SAFETY_TRIP"

	// External call failures; degrade the event's decision.
	CodeTimeout     Code = "TIMEOUT"
	CodeRateLimited Code = "RATE_LIMITED"
	CodeMalformed   Code = "MALFORMED_RESPONSE"
	CodeUnavailable Code = "UNAVAILABLE"

	// Snapshot mismatch while consolidating; retried once, then a stale read.
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"

	// Revision chain cap reached.
	CodeExhaustedRevision Code = "EXHAUSTED_REVISION"

	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation, CodeMalformed:
		return codes.InvalidArgument
	case CodeTimeout:
		return codes.DeadlineExceeded
	case CodeRateLimited:
		return codes.ResourceExhausted
	case CodeUnavailable:
		return codes.Unavailable
	case CodeConcurrencyConflict:
		return codes.Aborted
	case CodeSafetyTrip, CodeExhaustedRevision:
		return codes.FailedPrecondition
	case CodeNotFound:
		return codes.NotFound
	default:
		return codes.Unknown
	}
}

// #endregion codes

// #region error

// Error is a domain error carrying a code and optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// New creates a domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithMetadata returns a copy of e with key set to value.
func (e *Error) WithMetadata(key, value string) *Error {
	cp := *e
	cp.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
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

// Is matches another *Error with the same code, so sentinel-style checks work:
// errors.Is(err, errors.New(CodeTimeout, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// #endregion error

// #region helpers

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// FromGRPC classifies an error returned by a gRPC call or its context.
// Domain errors pass through unchanged.
func FromGRPC(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, "deadline exceeded", err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return Wrap(CodeUnknown, "call failed", err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return Wrap(CodeTimeout, st.Message(), err)
	case codes.ResourceExhausted:
		return Wrap(CodeRateLimited, st.Message(), err)
	case codes.Unavailable:
		return Wrap(CodeUnavailable, st.Message(), err)
	case codes.InvalidArgument, codes.DataLoss:
		return Wrap(CodeMalformed, st.Message(), err)
	case codes.NotFound:
		return Wrap(CodeNotFound, st.Message(), err)
	default:
		return Wrap(CodeUnknown, st.Message(), err)
	}
}

// Retryable reports whether a failed external call is worth retrying.
func Retryable(err error) bool {
	switch GetCode(err) {
	case CodeRateLimited, CodeUnavailable:
		return true
	}
	return false
}

// #endregion helpers
