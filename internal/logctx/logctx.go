package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the contract call and session attributes
// carried by the context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if cd, ok := ctx.Value(callDataKey{}).(*CallData); ok {
		r.AddAttrs(slog.Group("call",
			slog.String("alias", cd.Alias),
			slog.String("method", cd.Method),
			slog.String("path", cd.Path),
			slog.String("request_id", cd.RequestID),
		))
	}

	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("state", sd.State),
			slog.Uint64("epoch", sd.Epoch),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type callDataKey struct{}

type CallData struct {
	Alias     string
	Method    string
	Path      string
	RequestID string
}

func WithCallData(ctx context.Context, data *CallData) context.Context {
	return context.WithValue(ctx, callDataKey{}, data)
}

type sessionDataKey struct{}

type SessionData struct {
	State string
	Epoch uint64
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}
