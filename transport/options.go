package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// TokenSource supplies the bearer token to attach, if any. The transport reads
// it once per request.
type TokenSource interface {
	Token() (string, bool)
}

// Observer receives one observation per Invoke.
type Observer interface {
	ObserveCall(alias, outcome string, elapsed time.Duration)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Timeouts configured on it surface
// as *NetworkError.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.hc = d
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver reports every call to o.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithUnauthorizedHandler registers fn in the unauthorized slot at
// construction time. It is equivalent to calling SetOnUnauthorized.
func WithUnauthorizedHandler(fn UnauthorizedFunc) Option {
	return func(c *Client) {
		c.SetOnUnauthorized(fn)
	}
}
