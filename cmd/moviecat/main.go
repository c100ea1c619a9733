// Command moviecat is a command line client for the movie-catalog service.
//
// Configuration comes from the MOVIECAT_* environment variables; -server
// overrides MOVIECAT_BASE_URL. Set MOVIECAT_STORE_DIR and
// MOVIECAT_STORE_PASSPHRASE to keep the session between invocations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	moviecatalog "github.com/ggoodman/moviecatalog-go"
	"github.com/ggoodman/moviecatalog-go/catalog"
	"github.com/ggoodman/moviecatalog-go/session"
	"github.com/ggoodman/moviecatalog-go/transport"
	"github.com/prometheus/common/expfmt"
)

const usage = `usage: moviecat [-server URL] [-metrics] <command> [args]

commands:
  login -u USER [-p PASSWORD]     sign in (password also read from MOVIECAT_PASSWORD)
  register -u USER -email EMAIL [-p PASSWORD]
  logout                          sign out and forget the stored token
  whoami                          show the signed-in user
  movies [-genre G] [-page N]     list movies
  movie ID                        show one movie
  rating ID                       show a movie's average rating
  rate ID -score N [-comment C]   rate a movie
  popular | picks                 popular movies, staff picks
  search QUERY                    free-text search
  quote                           a random quote
  add-quote -quote Q -movie M [-character C]
  favorites                       list favorites
  fav ID | unfav ID               add or remove a favorite
  contracts                       list the declared operations
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		if moviecatalog.IsAuthError(err) {
			fmt.Fprintln(os.Stderr, "Your session has ended; run `moviecat login` again.")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("moviecat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	server := fs.String("server", "", "Override server base URL (e.g. https://api.example.com)")
	showMetrics := fs.Bool("metrics", false, "Print client metrics after the command")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}
	if *server != "" {
		if err := os.Setenv("MOVIECAT_BASE_URL", strings.TrimRight(*server, "/")); err != nil {
			return err
		}
	}

	cfg, err := moviecatalog.ConfigFromEnv()
	if err != nil {
		return err
	}
	lvl, _ := cfg.Level()
	app, err := moviecatalog.New(cfg, moviecatalog.WithLogHandler(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl})))
	if err != nil {
		return err
	}
	defer app.Close()
	app.Start(ctx)

	out := json.NewEncoder(stdout)
	out.SetIndent("", "  ")

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	result, err := dispatch(ctx, app, cmd, rest, stderr)
	if *showMetrics && app.Gatherer != nil {
		defer printMetrics(app, stderr)
	}
	if err != nil {
		var verr *transport.RequestValidationError
		if errors.As(err, &verr) && verr.Field != "" {
			return fmt.Errorf("invalid %s: %s", verr.Field, verr.Reason)
		}
		return err
	}
	return out.Encode(result)
}

// status is a small ad hoc result.
type status map[string]string

// dispatch runs one command and returns the value to print.
func dispatch(ctx context.Context, app *moviecatalog.App, cmd string, args []string, stderr io.Writer) (any, error) {
	c := app.Catalog
	switch cmd {
	case "login":
		fs := subcommand(cmd, stderr)
		user := fs.String("u", "", "Username")
		pass := fs.String("p", os.Getenv("MOVIECAT_PASSWORD"), "Password")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if err := c.Login(ctx, catalog.Credentials{Username: *user, Password: *pass}); err != nil {
			return nil, err
		}
		return status{"state": app.Session.State().String()}, nil

	case "register":
		fs := subcommand(cmd, stderr)
		user := fs.String("u", "", "Username")
		email := fs.String("email", "", "Email address")
		pass := fs.String("p", os.Getenv("MOVIECAT_PASSWORD"), "Password")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if err := c.Register(ctx, catalog.Registration{Username: *user, Email: *email, Password: *pass}); err != nil {
			return nil, err
		}
		return status{"state": app.Session.State().String()}, nil

	case "logout":
		app.Session.SignOut(ctx)
		return status{"state": app.Session.State().String()}, nil

	case "whoami":
		if !session.IsAuthenticated(app.Session.State()) {
			return nil, errors.New("not signed in")
		}
		return c.CurrentUser(ctx)

	case "movies":
		fs := subcommand(cmd, stderr)
		genre := fs.String("genre", "", "Genre filter")
		page := fs.Int("page", 0, "Page number (1-based)")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return c.Movies(ctx, catalog.MovieQuery{Genre: catalog.Genre(*genre), Page: *page})

	case "movie":
		id, err := oneArg(cmd, args)
		if err != nil {
			return nil, err
		}
		return c.Movie(ctx, id)

	case "rating":
		id, err := oneArg(cmd, args)
		if err != nil {
			return nil, err
		}
		return c.AverageRating(ctx, id)

	case "rate":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: movie id required", cmd)
		}
		fs := subcommand(cmd, stderr)
		score := fs.Int("score", 0, "Rating from 1 to 10")
		comment := fs.String("comment", "", "Optional comment")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		return c.RateMovie(ctx, args[0], catalog.RatingInput{Rating: *score, Comment: *comment})

	case "popular":
		return c.PopularMovies(ctx)

	case "picks":
		return c.StaffPicks(ctx)

	case "search":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s: query required", cmd)
		}
		return c.Search(ctx, catalog.SearchQuery{Query: strings.Join(args, " ")})

	case "quote":
		return c.Quote(ctx)

	case "add-quote":
		fs := subcommand(cmd, stderr)
		q := fs.String("quote", "", "Quote text")
		movie := fs.String("movie", "", "Movie title")
		character := fs.String("character", "", "Character name")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return c.AddQuote(ctx, catalog.Quote{Quote: *q, Movie: *movie, Character: *character})

	case "favorites":
		return c.Favorites(ctx)

	case "fav", "unfav":
		id, err := oneArg(cmd, args)
		if err != nil {
			return nil, err
		}
		if cmd == "fav" {
			return status{"movie": id, "favorite": "true"}, c.AddFavorite(ctx, id)
		}
		return status{"movie": id, "favorite": "false"}, c.RemoveFavorite(ctx, id)

	case "contracts":
		var list []status
		for _, alias := range app.Registry.Aliases() {
			ct, _ := app.Registry.Resolve(alias)
			list = append(list, status{"alias": alias, "method": ct.Method, "path": ct.Path})
		}
		return list, nil

	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func subcommand(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func oneArg(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s: exactly one movie id required", cmd)
	}
	return args[0], nil
}

// printMetrics writes the collected metrics in the Prometheus text format.
func printMetrics(app *moviecatalog.App, w io.Writer) {
	families, err := app.Gatherer.Gather()
	if err != nil {
		fmt.Fprintln(w, "metrics:", err)
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			fmt.Fprintln(w, "metrics:", err)
			return
		}
	}
}
