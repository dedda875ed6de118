package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Error codes used when the server did not supply one of its own.
const (
	CodeNetwork     = "NETWORK_ERROR"
	CodeServer      = "SERVER_ERROR"
	CodeBadRequest  = "BAD_REQUEST"
	CodeAuthExpired = "AUTH_EXPIRED"
	CodeAuthFailed  = "AUTH_FAILED"
	CodeCanceled    = "CANCELED"
	CodeUnknown     = "UNKNOWN_ERROR"
)

// Error is the single failure shape surfaced to callers. Every transport
// fault, malformed body, or server-declared error envelope is mapped into one
// of these exactly once; an Error is never re-wrapped into another Error.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status,omitempty"`
	Details map[string]any `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, keeping sentinel errors reachable
// through errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Wrap builds an Error around err without flattening the error chain.
func Wrap(code string, status int, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Status: status, cause: err}
}

// errorBody covers the error envelopes the backend is known to emit:
// {code, message, details} from the data server and {detail} from the gateway.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
	Detail  string         `json:"detail"`
}

// FromResponse maps a non-2xx response into an Error. Code and message prefer
// the structured body; a generic code derived from the status class is the
// fallback. It never fails: an unparseable body still yields an Error.
func FromResponse(status int, body []byte) *Error {
	e := &Error{Status: status}

	switch {
	case status == 401:
		e.Code = CodeAuthExpired
	case status >= 500:
		e.Code = CodeServer
	case status >= 400:
		e.Code = CodeBadRequest
	default:
		e.Code = CodeUnknown
	}
	e.Message = fmt.Sprintf("request failed with status %d", status)

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return e
	}
	if parsed.Code != "" {
		e.Code = parsed.Code
	}
	switch {
	case parsed.Message != "":
		e.Message = parsed.Message
	case parsed.Detail != "":
		e.Message = parsed.Detail
	}
	e.Details = parsed.Details
	return e
}

// Normalize maps an arbitrary error into an Error. An error that already is
// an Error passes through untouched.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	// url.Error before the bare context checks: a request aborted mid-dispatch
	// (per-attempt timeout included) is a network failure. Bare context errors
	// come from the caller and are terminal.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{Code: CodeNetwork, Message: urlErr.Error()}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeCanceled, Message: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Code: CodeNetwork, Message: netErr.Error()}
	}

	return &Error{Code: CodeUnknown, Message: err.Error()}
}

// IsRetryable reports whether a failed attempt may be repeated: true for
// network-level failures (no response received, including per-attempt
// timeouts) and for 5xx responses. Every 4xx is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	e := Normalize(err)
	if e.Code == CodeNetwork {
		return true
	}
	return e.Status >= 500 && e.Status <= 599
}
