// Package session owns the process's authentication state.
//
// A Manager starts in Initializing, resolves to Authenticated or
// Unauthenticated once Bootstrap has read the token from the Store, and from
// then on moves only through SignIn and SignOut. Every transition runs behind
// a single mutex and is fully applied before the next one starts; readers
// (Token, State, Epoch) see an atomic snapshot and never wait on transitions.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/moviecatalog-go/internal/logctx"
)

// TransitionObserver is told about every completed transition.
type TransitionObserver interface {
	ObserveTransition(to string)
}

// Manager is the sole writer of TokenKey in its Store.
type Manager struct {
	mu sync.Mutex // serializes transitions

	store    Store
	cache    Cache
	log      *slog.Logger
	now      func() time.Time
	observer TransitionObserver

	state    atomic.Pointer[State]
	epoch    atomic.Uint64
	notifier notifier
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides the clock used to check token expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithObserver reports transitions to o.
func WithObserver(o TransitionObserver) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// NewManager returns a Manager in the Initializing state. A nil cache is
// treated as a cache with nothing to clear.
func NewManager(store Store, cache Cache, opts ...Option) *Manager {
	if cache == nil {
		cache = nopCache{}
	}
	m := &Manager{
		store: store,
		cache: cache,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	var initial State = Initializing{}
	m.state.Store(&initial)
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	return *m.state.Load()
}

// Token returns the current bearer token, if authenticated. It satisfies
// transport.TokenSource; Initializing is reported exactly like
// Unauthenticated.
func (m *Manager) Token() (string, bool) {
	if a, ok := m.State().(Authenticated); ok {
		return a.Token, true
	}
	return "", false
}

// Epoch increases at the start of every transition. Cache writers compare it
// before and after a fetch to avoid storing data that crossed a session
// boundary.
func (m *Manager) Epoch() uint64 {
	return m.epoch.Load()
}

// Subscribe returns a channel that receives the latest state after each
// transition, and a function that cancels the subscription.
func (m *Manager) Subscribe() (<-chan State, func()) {
	return m.notifier.subscribe()
}

// Close releases subscribers. The manager remains usable.
func (m *Manager) Close() {
	m.notifier.close()
}

// Bootstrap resolves the Initializing state from the store. A present token
// yields Authenticated; a missing token, an expired JWT or any store failure
// yields Unauthenticated. Store failures are logged, never returned. Once the
// manager has left Initializing, by Bootstrap or by an earlier SignIn or
// SignOut, Bootstrap only reports the current state.
func (m *Manager) Bootstrap(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.State().(Initializing); !ok {
		return m.State()
	}
	m.epoch.Add(1)

	tok, ok, err := m.store.Get(ctx, TokenKey)
	switch {
	case err != nil:
		m.log.WarnContext(ctx, "session store read failed, starting signed out", slog.String("err", err.Error()))
		return m.set(ctx, Unauthenticated{})
	case !ok || tok == "":
		return m.set(ctx, Unauthenticated{})
	case tokenExpired(tok, m.now()):
		m.log.InfoContext(ctx, "stored token has expired, starting signed out")
		if err := m.store.Delete(ctx, TokenKey); err != nil {
			m.log.WarnContext(ctx, "failed to delete expired token", slog.String("err", err.Error()))
		}
		return m.set(ctx, Unauthenticated{})
	default:
		return m.set(ctx, Authenticated{Token: tok})
	}
}

// SignIn persists token and moves to Authenticated. If the store write fails
// the state is not changed and a *PersistenceError is returned. Unless the
// session was Unauthenticated, whose entry already emptied it, the cache is
// cleared before the new token is published.
func (m *Manager) SignIn(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch.Add(1)
	if err := m.store.Set(ctx, TokenKey, token); err != nil {
		m.log.ErrorContext(ctx, "failed to persist token", slog.String("err", err.Error()))
		return &PersistenceError{Op: "set", Err: err}
	}
	if _, ok := m.State().(Unauthenticated); !ok {
		if err := m.cache.Clear(ctx); err != nil {
			m.log.ErrorContext(ctx, "failed to clear cache", slog.String("err", err.Error()))
		}
	}
	m.set(ctx, Authenticated{Token: token})
	return nil
}

// SignOut clears the cache, deletes the stored token and moves to
// Unauthenticated. It always succeeds from the caller's point of view: cache
// and store failures are logged, and the in-memory token is discarded
// regardless. Calling it repeatedly is harmless.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.signOutLocked(ctx)
}

// HandleUnauthorized is the transport's unauthorized callback. It tears the
// session down.
func (m *Manager) HandleUnauthorized(ctx context.Context) error {
	m.log.InfoContext(ctx, "credential rejected by server, signing out")
	m.SignOut(ctx)
	return nil
}

// Revalidate re-reads the store while authenticated. If the token was
// removed or replaced by someone else the session is torn down without
// touching the store. Read failures leave the session as is.
func (m *Manager) Revalidate(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.State().(Authenticated)
	if !ok {
		return m.State()
	}
	tok, present, err := m.store.Get(ctx, TokenKey)
	if err != nil {
		m.log.WarnContext(ctx, "session store read failed during revalidation", slog.String("err", err.Error()))
		return cur
	}
	if present && tok == cur.Token {
		return cur
	}

	m.log.InfoContext(ctx, "stored token changed externally, signing out")
	m.epoch.Add(1)
	if err := m.cache.Clear(ctx); err != nil {
		m.log.ErrorContext(ctx, "failed to clear cache", slog.String("err", err.Error()))
	}
	return m.set(ctx, Unauthenticated{})
}

func (m *Manager) signOutLocked(ctx context.Context) {
	// Bump first so fetches that started under the old session cannot
	// repopulate the cache after it has been cleared.
	m.epoch.Add(1)
	if err := m.cache.Clear(ctx); err != nil {
		m.log.ErrorContext(ctx, "failed to clear cache", slog.String("err", err.Error()))
	}
	if err := m.store.Delete(ctx, TokenKey); err != nil {
		perr := &PersistenceError{Op: "delete", Err: err}
		m.log.ErrorContext(ctx, "failed to delete stored token", slog.String("err", perr.Error()))
	}
	m.set(ctx, Unauthenticated{})
}

// set publishes s. Callers hold m.mu.
func (m *Manager) set(ctx context.Context, s State) State {
	m.state.Store(&s)
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{State: s.String(), Epoch: m.epoch.Load()})
	m.log.DebugContext(ctx, "session transition")
	if m.observer != nil {
		m.observer.ObserveTransition(s.String())
	}
	m.notifier.notify(s)
	return s
}
