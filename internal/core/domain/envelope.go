package domain

import "errors"

// ErrorBody is the wire-level error payload inside an Envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the uniform response shape every invocation path returns.
// Exactly one of Data and Error is populated.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// OK builds a success envelope around data.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail maps any error to a failure envelope. Taxonomy errors keep their
// message except KindInternal, which renders generically; errors outside the
// taxonomy map to INTERNAL_ERROR with the generic message. Callers log the
// original error themselves, the envelope never carries the detail.
func Fail(err error) Envelope {
	kind := KindInternal
	message := genericInternalMessage

	var de *Error
	if errors.As(err, &de) {
		kind = de.Kind
		if kind != KindInternal {
			message = de.Message
		}
	}

	return Envelope{Success: false, Error: &ErrorBody{Code: string(kind), Message: message}}
}

// Kind returns the error kind of a failure envelope, or "" for success.
func (e Envelope) Kind() Kind {
	if e.Success || e.Error == nil {
		return ""
	}
	return Kind(e.Error.Code)
}
