// Package moviecatalog wires the movie-catalog client core together: the
// contract registry, the validated transport, the session manager with its
// secure store, the query cache and metrics.
//
// A 401 from any operation signs the session out, which clears the query
// cache and deletes the stored token before the caller sees the error.
package moviecatalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/ggoodman/moviecatalog-go/catalog"
	"github.com/ggoodman/moviecatalog-go/contract"
	"github.com/ggoodman/moviecatalog-go/internal/logctx"
	"github.com/ggoodman/moviecatalog-go/metrics"
	"github.com/ggoodman/moviecatalog-go/querycache"
	"github.com/ggoodman/moviecatalog-go/querycache/memory"
	qcredis "github.com/ggoodman/moviecatalog-go/querycache/redis"
	"github.com/ggoodman/moviecatalog-go/session"
	"github.com/ggoodman/moviecatalog-go/session/securestore"
	"github.com/ggoodman/moviecatalog-go/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// App is a fully wired client.
type App struct {
	Registry  *contract.Registry
	Transport *transport.Client
	Session   *session.Manager
	Cache     querycache.Cache
	Catalog   *catalog.Client
	Metrics   *metrics.Collector
	Log       *slog.Logger

	// Gatherer exposes the private metrics registry. It is nil when
	// WithRegisterer was used.
	Gatherer prometheus.Gatherer

	watcher   *securestore.Store
	stopWatch context.CancelFunc
	closeOnce sync.Once
}

// Option customizes New.
type Option func(*options)

type options struct {
	handler    slog.Handler
	registerer prometheus.Registerer
	doer       transport.Doer
	store      session.Store
	cache      querycache.Cache
}

// WithLogHandler sets the handler under the context-enriching log handler.
// The default writes text to stderr at the configured level.
func WithLogHandler(h slog.Handler) Option {
	return func(o *options) { o.handler = h }
}

// WithRegisterer registers the metrics with reg. By default they are kept
// on a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHTTPClient overrides the HTTP client. Config.Timeout is ignored.
func WithHTTPClient(d transport.Doer) Option {
	return func(o *options) { o.doer = d }
}

// WithStore overrides the session store. Config.StoreDir is ignored.
func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// WithCache overrides the query cache. The cache settings in Config are
// ignored.
func WithCache(c querycache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// New builds an App from cfg. The session is left Initializing; call Start.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.handler == nil {
		lvl, _ := cfg.Level()
		o.handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	log := slog.New(logctx.Handler{Handler: o.handler})

	var gatherer prometheus.Gatherer
	if o.registerer == nil {
		reg := prometheus.NewRegistry()
		o.registerer, gatherer = reg, reg
	}
	col, err := metrics.New(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("moviecatalog: register metrics: %w", err)
	}

	a := &App{Metrics: col, Log: log, Gatherer: gatherer}

	store := o.store
	if store == nil {
		if cfg.StoreDir == "" {
			log.Warn("no session store directory configured, sessions will not survive restarts")
			store = session.NewMemoryStore()
		} else {
			ss, err := securestore.Open(cfg.StoreDir, []byte(cfg.StorePassphrase), securestore.WithLogger(log))
			if err != nil {
				return nil, fmt.Errorf("moviecatalog: open session store: %w", err)
			}
			a.watcher = ss
			store = ss
		}
	}

	cache := o.cache
	if cache == nil {
		cache, err = newCache(cfg)
		if err != nil {
			return nil, err
		}
	}
	a.Cache = cache

	a.Session = session.NewManager(store, cache,
		session.WithLogger(log),
		session.WithObserver(col),
	)

	doer := o.doer
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	a.Registry = catalog.NewRegistry()
	a.Transport, err = transport.New(cfg.BaseURL, a.Registry,
		transport.WithHTTPClient(doer),
		transport.WithTokenSource(a.Session),
		transport.WithLogger(log),
		transport.WithObserver(col),
	)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	a.Transport.SetOnUnauthorized(a.Session.HandleUnauthorized)

	a.Catalog = catalog.NewClient(a.Transport, a.Session,
		catalog.WithCache(cache),
		catalog.WithCacheTTL(cfg.CacheTTL),
		catalog.WithLogger(log),
	)
	return a, nil
}

func newCache(cfg Config) (querycache.Cache, error) {
	switch cfg.Cache {
	case CacheRedis:
		c, err := qcredis.New(qcredis.Config{
			Client:    redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
			KeyPrefix: cfg.CachePrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("moviecatalog: redis cache: %w", err)
		}
		return c, nil
	default:
		size := cfg.CacheSize
		if size <= 0 {
			size = 512
		}
		c, err := memory.New(size)
		if err != nil {
			return nil, fmt.Errorf("moviecatalog: memory cache: %w", err)
		}
		return c, nil
	}
}

// Start resolves the session from the store and, for on-disk stores, begins
// watching the stored token so a sign-out by another process is noticed.
func (a *App) Start(ctx context.Context) session.State {
	st := a.Session.Bootstrap(ctx)
	if a.watcher == nil || a.stopWatch != nil {
		return st
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	err := a.watcher.Watch(wctx, session.TokenKey, func(ctx context.Context) {
		a.Session.Revalidate(ctx)
	})
	if err != nil {
		cancel()
		a.Log.WarnContext(ctx, "cannot watch session store, external sign-outs will go unnoticed", slog.String("err", err.Error()))
		return st
	}
	a.stopWatch = cancel
	return st
}

// Close stops the store watcher and releases the cache.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.stopWatch != nil {
			a.stopWatch()
		}
		a.Session.Close()
		err = a.Cache.Close()
	})
	return err
}

// IsAuthError reports whether err means the caller must sign in again.
func IsAuthError(err error) bool {
	var uerr *transport.UnauthorizedError
	return errors.As(err, &uerr)
}
