package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure.
type Kind string

const (
	KindMissingCredential   Kind = "missing_credential"
	KindInvalidCredential   Kind = "invalid_credential"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindUnsupportedProvider Kind = "unsupported_provider"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindMalformedResponse   Kind = "malformed_upstream_response"
	KindInvalidRequest      Kind = "invalid_request"
)

// Error is the typed failure returned by adapters and the gateway.
type Error struct {
	Kind     Kind
	Provider ProviderID
	// Status is the upstream HTTP status, zero when no response was received.
	Status  int
	Message string
	// NotImplemented marks an UnsupportedProvider raised by a stub adapter
	// rather than by an unknown provider.
	NotImplemented bool
	Err            error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = string(e.Provider) + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus is the status the gateway answers with when e is surfaced over
// the wire.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnsupportedProvider:
		if e.NotImplemented {
			return http.StatusNotImplemented
		}
		return http.StatusBadRequest
	case KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// HTTPStatus maps any error to a response status; untyped errors are 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func invalidRequest(p ProviderID, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Provider: p, Message: fmt.Sprintf(format, args...)}
}

func malformed(p ProviderID, status int, err error) *Error {
	return &Error{Kind: KindMalformedResponse, Provider: p, Status: status, Err: err}
}
