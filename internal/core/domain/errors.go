package domain

import (
	"errors"
	"fmt"
)

// Kind identifies one class in the error taxonomy. Every error that reaches
// the dispatch boundary maps to exactly one Kind; the Kind string is the wire
// code clients see.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindNotFound        Kind = "NOT_FOUND"
	KindTimeout         Kind = "TIMEOUT"
	KindCircuitOpen     Kind = "CIRCUIT_OPEN"
	KindBulkheadFull    Kind = "BULKHEAD_FULL"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindPayloadTooLarge Kind = "PAYLOAD_TOO_LARGE"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// genericInternalMessage is what clients see for unclassified failures. The
// real detail stays in the logs.
const genericInternalMessage = "an unexpected error occurred"

// Error is the taxonomy error. Message is safe to return to callers for every
// kind except KindInternal, which always renders generically.
type Error struct {
	Kind      Kind
	Message   string
	Transient bool
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Validationf reports bad caller input. Never retried.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf reports a missing entity or action. Never retried.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Timeoutf reports an invocation that exceeded its deadline. Retryable.
func Timeoutf(format string, args ...any) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...), Transient: true}
}

// CircuitOpenf reports an admission rejection by an open circuit breaker.
func CircuitOpenf(format string, args ...any) *Error {
	return &Error{Kind: KindCircuitOpen, Message: fmt.Sprintf(format, args...)}
}

// BulkheadFullf reports an admission rejection by a saturated bulkhead.
func BulkheadFullf(format string, args ...any) *Error {
	return &Error{Kind: KindBulkheadFull, Message: fmt.Sprintf(format, args...)}
}

// Unauthorizedf reports a caller without permission. Never retried.
func Unauthorizedf(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// PayloadTooLargef reports an event payload over the configured size limit.
func PayloadTooLargef(format string, args ...any) *Error {
	return &Error{Kind: KindPayloadTooLarge, Message: fmt.Sprintf(format, args...)}
}

// Internalf reports an unclassified failure with a formatted detail message.
// The detail is for logs; clients always receive the generic message.
func Internalf(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps err as an internal error, preserving it for errors.Is/As.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}

// Transientf reports an internal failure the retry predicate may retry, such
// as a dropped connection.
func Transientf(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Transient: true}
}

// KindOf classifies any error. Errors outside the taxonomy are KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err classifies as k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsTransient reports whether err is explicitly marked transient.
func IsTransient(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Transient
	}
	return false
}

// Retryable is the default retry predicate: timeouts always, internal errors
// only when marked transient, everything else never.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout:
		return true
	case KindInternal:
		return IsTransient(err)
	default:
		return false
	}
}

// HTTPStatus maps a kind to the HTTP status the ingress renders.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return 400
	case KindUnauthorized:
		return 401
	case KindNotFound:
		return 404
	case KindPayloadTooLarge:
		return 413
	case KindCircuitOpen, KindBulkheadFull:
		return 503
	case KindTimeout:
		return 504
	default:
		return 500
	}
}
