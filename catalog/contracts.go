package catalog

import (
	"github.com/ggoodman/moviecatalog-go/contract"
)

// Operation aliases.
const (
	OpGetMovies         = "getMovies"
	OpGetMovie          = "getMovie"
	OpGetAverageRating  = "getAverageRating"
	OpRateMovie         = "rateMovie"
	OpGetQuote          = "getQuote"
	OpAddQuote          = "addQuote"
	OpGetFilteredMovies = "getFilteredMovies"
	OpGetPopularMovies  = "getPopularMovies"
	OpGetStaffPicks     = "getStaffPicks"
	OpSearchMovies      = "searchMovies"
	OpCreateMovie       = "createMovie"
	OpGetCurrentUser    = "getCurrentUser"
	OpGetFavorites      = "getFavorites"
	OpAddFavorite       = "addFavorite"
	OpRemoveFavorite    = "removeFavorite"
	OpLogin             = "login"
	OpRegister          = "register"
	OpForgotPassword    = "forgotPassword"
	OpChangePassword    = "changePassword"
)

// Contracts returns the service's operation table.
func Contracts() []contract.Contract {
	return []contract.Contract{
		// Movies
		contract.Get(OpGetMovies, "/movies",
			contract.Query[MovieQuery](),
			contract.Returns[[]MovieSummary](),
			contract.Describe("List movies, optionally by genre and page.")),
		contract.Get(OpGetMovie, "/movies/:id",
			contract.PathParams[movieID](),
			contract.Returns[Movie]()),
		contract.Get(OpGetAverageRating, "/movies/:id/rating",
			contract.PathParams[movieID](),
			contract.Returns[AverageRating](),
			contract.Describe("Average user rating as a decimal string.")),
		contract.Post(OpRateMovie, "/movies/:id/ratings",
			contract.PathParams[movieID](),
			contract.Body[RatingInput](),
			contract.Returns[UserRating]()),
		contract.Post(OpGetFilteredMovies, "/movies/filter",
			contract.Body[MovieFilter](),
			contract.Returns[[]MovieSummary]()),
		contract.Get(OpGetPopularMovies, "/movies/popular",
			contract.Returns[[]MovieSummary]()),
		contract.Get(OpGetStaffPicks, "/movies/staff-picks",
			contract.Returns[[]MovieSummary]()),
		contract.Post(OpSearchMovies, "/movies/search",
			contract.Body[SearchQuery](),
			contract.Returns[[]MovieSummary]()),
		contract.Post(OpCreateMovie, "/movies",
			contract.Body[NewMovie](),
			contract.Returns[Movie]()),

		// Quotes
		contract.Get(OpGetQuote, "/quotes/random",
			contract.Returns[Quote]()),
		contract.Post(OpAddQuote, "/quotes",
			contract.Body[Quote](),
			contract.Returns[Quote]()),

		// Current user
		contract.Get(OpGetCurrentUser, "/users/me",
			contract.Returns[User]()),
		contract.Get(OpGetFavorites, "/users/me/favorites",
			contract.Returns[[]MovieSummary]()),
		contract.Put(OpAddFavorite, "/users/me/favorites/:id",
			contract.PathParams[movieID]()),
		contract.Delete(OpRemoveFavorite, "/users/me/favorites/:id",
			contract.PathParams[movieID]()),

		// Auth
		contract.Post(OpLogin, "/auth/login",
			contract.Body[Credentials](),
			contract.Returns[TokenResponse]()),
		contract.Post(OpRegister, "/auth/register",
			contract.Body[Registration](),
			contract.Returns[TokenResponse]()),
		contract.Post(OpForgotPassword, "/auth/forgot-password",
			contract.Body[PasswordReset](),
			contract.Returns[TokenResponse]()),
		contract.Post(OpChangePassword, "/auth/change-password",
			contract.Body[PasswordChange](),
			contract.Returns[TokenResponse]()),
	}
}

// NewRegistry registers every operation and seals the registry. A bad
// declaration is a programming error and panics.
func NewRegistry() *contract.Registry {
	r := contract.NewRegistry()
	r.MustRegister(Contracts()...)
	r.Seal()
	return r
}
