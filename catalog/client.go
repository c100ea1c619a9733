package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/ggoodman/moviecatalog-go/querycache"
	"github.com/ggoodman/moviecatalog-go/transport"
)

// Query keys under which reads are cached.
const (
	KeyCurrentUser   = "currentUser"
	KeyMovies        = "movies"
	KeyPopularMovies = "popularMovies"
	KeyStaffPicks    = "staffPicks"
	KeyFavorites     = "favorites"
	KeyQuote         = "quote"
)

// MovieKey is the query key of a single movie.
func MovieKey(id string) string { return "movie:" + id }

// AverageRatingKey is the query key of a movie's average rating.
func AverageRatingKey(id string) string { return "averageRating:" + id }

// Session is the part of the session manager the client needs.
// *session.Manager satisfies it.
type Session interface {
	querycache.EpochSource
	SignIn(ctx context.Context, token string) error
}

// Client exposes the catalog operations as typed methods over a transport.
type Client struct {
	t     *transport.Client
	sess  Session
	cache querycache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithCache routes cacheable reads through c.
func WithCache(c querycache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithCacheTTL sets the lifetime of cached reads. Zero keeps entries until
// they are invalidated or evicted.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cl *Client) { cl.ttl = ttl }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// NewClient wraps t. sess receives tokens from the auth operations and
// guards cached reads against session changes.
func NewClient(t *transport.Client, sess Session, opts ...Option) *Client {
	c := &Client{t: t, sess: sess, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func fetch[T any](ctx context.Context, c *Client, key, alias string, req transport.Request) (T, error) {
	var epochs querycache.EpochSource
	if c.sess != nil {
		epochs = c.sess
	}
	return querycache.Fetch(ctx, c.cache, epochs, key, c.ttl, func(ctx context.Context) (T, error) {
		return transport.Invoke[T](ctx, c.t, alias, req)
	})
}

func (c *Client) invalidate(ctx context.Context, keys ...string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, keys...); err != nil {
		c.log.WarnContext(ctx, "failed to invalidate cached queries", slog.Any("keys", keys), slog.String("err", err.Error()))
	}
}

func idParams(id string) map[string]any {
	return map[string]any{"id": id}
}

// Movies lists movies. Only the unfiltered first page is cached.
func (c *Client) Movies(ctx context.Context, q MovieQuery) ([]MovieSummary, error) {
	req := transport.Request{Query: map[string]any{}}
	if q.Page != 0 {
		req.Query["page"] = q.Page
	}
	if q.Genre != "" {
		req.Query["genre"] = string(q.Genre)
	}
	if len(req.Query) == 0 {
		return fetch[[]MovieSummary](ctx, c, KeyMovies, OpGetMovies, req)
	}
	return transport.Invoke[[]MovieSummary](ctx, c.t, OpGetMovies, req)
}

// Movie returns one movie.
func (c *Client) Movie(ctx context.Context, id string) (Movie, error) {
	return fetch[Movie](ctx, c, MovieKey(id), OpGetMovie, transport.Request{PathParams: idParams(id)})
}

// AverageRating returns a movie's average rating as reported by the server.
func (c *Client) AverageRating(ctx context.Context, id string) (AverageRating, error) {
	return fetch[AverageRating](ctx, c, AverageRatingKey(id), OpGetAverageRating, transport.Request{PathParams: idParams(id)})
}

// RateMovie records the caller's rating of a movie.
func (c *Client) RateMovie(ctx context.Context, id string, in RatingInput) (UserRating, error) {
	out, err := transport.Invoke[UserRating](ctx, c.t, OpRateMovie, transport.Request{PathParams: idParams(id), Body: in})
	if err != nil {
		return out, err
	}
	c.invalidate(ctx, AverageRatingKey(id), MovieKey(id))
	return out, nil
}

// FilteredMovies lists movies matching f.
func (c *Client) FilteredMovies(ctx context.Context, f MovieFilter) ([]MovieSummary, error) {
	return transport.Invoke[[]MovieSummary](ctx, c.t, OpGetFilteredMovies, transport.Request{Body: f})
}

// PopularMovies lists the currently popular movies.
func (c *Client) PopularMovies(ctx context.Context) ([]MovieSummary, error) {
	return fetch[[]MovieSummary](ctx, c, KeyPopularMovies, OpGetPopularMovies, transport.Request{})
}

// StaffPicks lists the staff picks.
func (c *Client) StaffPicks(ctx context.Context) ([]MovieSummary, error) {
	return fetch[[]MovieSummary](ctx, c, KeyStaffPicks, OpGetStaffPicks, transport.Request{})
}

// Search runs a free-text search.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]MovieSummary, error) {
	return transport.Invoke[[]MovieSummary](ctx, c.t, OpSearchMovies, transport.Request{Body: q})
}

// CreateMovie adds a movie to the catalog.
func (c *Client) CreateMovie(ctx context.Context, in NewMovie) (Movie, error) {
	out, err := transport.Invoke[Movie](ctx, c.t, OpCreateMovie, transport.Request{Body: in})
	if err != nil {
		return out, err
	}
	c.invalidate(ctx, KeyMovies, KeyPopularMovies, KeyStaffPicks)
	return out, nil
}

// Quote returns a random quote. The result is cached for the cache TTL.
func (c *Client) Quote(ctx context.Context) (Quote, error) {
	return fetch[Quote](ctx, c, KeyQuote, OpGetQuote, transport.Request{})
}

// AddQuote submits a quote.
func (c *Client) AddQuote(ctx context.Context, q Quote) (Quote, error) {
	out, err := transport.Invoke[Quote](ctx, c.t, OpAddQuote, transport.Request{Body: q})
	if err != nil {
		return out, err
	}
	c.invalidate(ctx, KeyQuote)
	return out, nil
}

// CurrentUser returns the signed-in user.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	return fetch[User](ctx, c, KeyCurrentUser, OpGetCurrentUser, transport.Request{})
}

// Favorites lists the signed-in user's favorite movies.
func (c *Client) Favorites(ctx context.Context) ([]MovieSummary, error) {
	return fetch[[]MovieSummary](ctx, c, KeyFavorites, OpGetFavorites, transport.Request{})
}

// AddFavorite marks a movie as a favorite.
func (c *Client) AddFavorite(ctx context.Context, id string) error {
	if _, err := c.t.Invoke(ctx, OpAddFavorite, transport.Request{PathParams: idParams(id)}); err != nil {
		return err
	}
	c.invalidate(ctx, KeyFavorites, KeyCurrentUser)
	return nil
}

// RemoveFavorite unmarks a movie.
func (c *Client) RemoveFavorite(ctx context.Context, id string) error {
	if _, err := c.t.Invoke(ctx, OpRemoveFavorite, transport.Request{PathParams: idParams(id)}); err != nil {
		return err
	}
	c.invalidate(ctx, KeyFavorites, KeyCurrentUser)
	return nil
}

// Login exchanges credentials for a token and signs the session in with it.
func (c *Client) Login(ctx context.Context, in Credentials) error {
	return c.authenticate(ctx, OpLogin, in)
}

// Register creates an account and signs the session in.
func (c *Client) Register(ctx context.Context, in Registration) error {
	return c.authenticate(ctx, OpRegister, in)
}

// ChangePassword rotates the password. The server issues a fresh token,
// which replaces the current one.
func (c *Client) ChangePassword(ctx context.Context, in PasswordChange) error {
	return c.authenticate(ctx, OpChangePassword, in)
}

// ForgotPassword requests a reset. The returned token identifies the reset
// request and is not a session credential.
func (c *Client) ForgotPassword(ctx context.Context, in PasswordReset) (TokenResponse, error) {
	return transport.Invoke[TokenResponse](ctx, c.t, OpForgotPassword, transport.Request{Body: in})
}

func (c *Client) authenticate(ctx context.Context, alias string, body any) error {
	tok, err := transport.Invoke[TokenResponse](ctx, c.t, alias, transport.Request{Body: body})
	if err != nil {
		return err
	}
	if c.sess == nil {
		return nil
	}
	return c.sess.SignIn(ctx, tok)
}
