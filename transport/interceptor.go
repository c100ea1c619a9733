package transport

import (
	"context"
	"log/slog"
)

// UnauthorizedFunc runs when a response reports an invalid or expired
// credential. Errors are logged; the caller still receives *UnauthorizedError.
type UnauthorizedFunc func(ctx context.Context) error

// SetOnUnauthorized replaces the unauthorized slot. Passing nil clears it.
// There is at most one handler at a time.
func (c *Client) SetOnUnauthorized(fn UnauthorizedFunc) {
	if fn == nil {
		c.onUnauthorized.Store(nil)
		return
	}
	c.onUnauthorized.Store(&fn)
}

// fireUnauthorized runs the registered handler once. The handler gets a
// context that survives cancellation of the caller's so that the session is
// torn down even when the caller has given up on the result.
func (c *Client) fireUnauthorized(ctx context.Context, alias string) {
	p := c.onUnauthorized.Load()
	if p == nil {
		c.log.DebugContext(ctx, "unauthorized response with no handler registered", slog.String("alias", alias))
		return
	}
	if err := (*p)(context.WithoutCancel(ctx)); err != nil {
		c.log.ErrorContext(ctx, "unauthorized handler failed",
			slog.String("alias", alias),
			slog.String("err", err.Error()),
		)
	}
}
