package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ggoodman/moviecatalog-go/contract"
)

// RequestValidationError indicates that the caller's input did not satisfy the
// contract. Nothing was sent. Part is one of "path", "query" or "body".
type RequestValidationError struct {
	Alias  string
	Part   string
	Field  string
	Reason string
}

func (e *RequestValidationError) Error() string {
	field := e.Part
	if e.Field != "" {
		field = e.Part + "." + e.Field
	}
	return fmt.Sprintf("%s: invalid request %s: %s", e.Alias, field, e.Reason)
}

// ResponseValidationError indicates that the server answered successfully with
// a payload that does not match the contract. The payload is never returned.
type ResponseValidationError struct {
	Alias  string
	Field  string
	Reason string
}

func (e *ResponseValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: invalid response: %s", e.Alias, e.Reason)
	}
	return fmt.Sprintf("%s: invalid response %s: %s", e.Alias, e.Field, e.Reason)
}

// NetworkError indicates that no complete response was received. Callers may
// retry. Status is zero when the request never got an answer; otherwise the
// status line arrived but the connection failed while the body was read.
type NetworkError struct {
	Alias  string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: network error reading %d response: %v", e.Alias, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: network error: %v", e.Alias, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a server-acknowledged failure other than an authorization
// failure. Message is the server's explanation when one could be extracted.
type APIError struct {
	Alias   string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: server returned %d %s", e.Alias, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Alias, e.Status, e.Message)
}

// UnauthorizedError indicates that the server rejected the credential. The
// unauthorized callback has already run by the time the caller sees it.
type UnauthorizedError struct {
	Alias string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: unauthorized", e.Alias)
}

// Outcome labels an Invoke result for metrics and logs.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		reqErr  *RequestValidationError
		respErr *ResponseValidationError
		netErr  *NetworkError
		apiErr  *APIError
		authErr *UnauthorizedError
		unkErr  *contract.UnknownContractError
	)
	switch {
	case errors.As(err, &reqErr):
		return "request_invalid"
	case errors.As(err, &respErr):
		return "response_invalid"
	case errors.As(err, &netErr):
		return "network_error"
	case errors.As(err, &authErr):
		return "unauthorized"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.As(err, &unkErr):
		return "unknown_contract"
	default:
		return "error"
	}
}

// IsRetryable reports whether err is a transport failure the caller may retry.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
