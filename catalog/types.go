// Package catalog declares the movie-catalog service's operations and
// exposes them as typed methods.
package catalog

import (
	"github.com/invopop/jsonschema"
)

// Genre is a short genre label such as "sci-fi".
type Genre string

// JSONSchema bounds the label length; struct tags cannot reach array items.
func (Genre) JSONSchema() *jsonschema.Schema {
	minLen, maxLen := uint64(1), uint64(40)
	return &jsonschema.Schema{Type: "string", MinLength: &minLen, MaxLength: &maxLen}
}

// Movie is the full catalog record.
type Movie struct {
	ID          string  `json:"id" jsonschema:"minLength=1"`
	Title       string  `json:"title" jsonschema:"minLength=1,maxLength=100"`
	Overview    string  `json:"overview,omitempty" jsonschema:"maxLength=1000"`
	ReleaseYear int     `json:"releaseYear" jsonschema:"minimum=1888,maximum=2100"`
	Genres      []Genre `json:"genres,omitempty" jsonschema:"maxItems=10"`
	Director    string  `json:"director,omitempty" jsonschema:"maxLength=100"`
	PosterPath  string  `json:"posterPath,omitempty"`
	Runtime     int     `json:"runtime,omitempty" jsonschema:"minimum=1"`
}

// MovieSummary is the list form of a movie.
type MovieSummary struct {
	ID          string `json:"id" jsonschema:"minLength=1"`
	Title       string `json:"title" jsonschema:"minLength=1,maxLength=100"`
	ReleaseYear int    `json:"releaseYear" jsonschema:"minimum=1888,maximum=2100"`
	PosterPath  string `json:"posterPath,omitempty"`
}

// NewMovie is the body of createMovie.
type NewMovie struct {
	Title       string  `json:"title" jsonschema:"minLength=1,maxLength=100"`
	Overview    string  `json:"overview,omitempty" jsonschema:"maxLength=1000"`
	ReleaseYear int     `json:"releaseYear" jsonschema:"minimum=1888,maximum=2100"`
	Genres      []Genre `json:"genres,omitempty" jsonschema:"maxItems=10"`
	Director    string  `json:"director,omitempty" jsonschema:"maxLength=100"`
	PosterPath  string  `json:"posterPath,omitempty"`
	Runtime     int     `json:"runtime,omitempty" jsonschema:"minimum=1"`
}

// User is the signed-in account.
type User struct {
	ID        string   `json:"id" jsonschema:"minLength=1"`
	Username  string   `json:"username" jsonschema:"minLength=3,maxLength=30"`
	Email     string   `json:"email" jsonschema:"format=email"`
	Favorites []string `json:"favorites,omitempty"`
}

// UserRating is one user's rating of a movie.
type UserRating struct {
	MovieID string `json:"movieId" jsonschema:"minLength=1"`
	Rating  int    `json:"rating" jsonschema:"minimum=1,maximum=10"`
	Comment string `json:"comment,omitempty" jsonschema:"maxLength=500"`
}

// RatingInput is the body of rateMovie.
type RatingInput struct {
	Rating  int    `json:"rating" jsonschema:"minimum=1,maximum=10"`
	Comment string `json:"comment,omitempty" jsonschema:"maxLength=500"`
}

// Quote is a line from a movie. It is both the body of addQuote and the
// shape the server returns.
type Quote struct {
	Quote     string `json:"quote" jsonschema:"minLength=1,maxLength=500"`
	Movie     string `json:"movie" jsonschema:"minLength=1,maxLength=100"`
	Character string `json:"character,omitempty" jsonschema:"maxLength=100"`
}

// AverageRating is returned by the server as a decimal string ("4.2").
type AverageRating = string

// TokenResponse is the opaque bearer token returned by the auth operations.
type TokenResponse = string

// MovieQuery filters getMovies.
type MovieQuery struct {
	Page  int   `json:"page,omitempty" jsonschema:"minimum=1"`
	Genre Genre `json:"genre,omitempty"`
}

// MovieFilter is the body of getFilteredMovies.
type MovieFilter struct {
	Genres    []Genre `json:"genres,omitempty" jsonschema:"maxItems=10"`
	YearFrom  int     `json:"yearFrom,omitempty" jsonschema:"minimum=1888,maximum=2100"`
	YearTo    int     `json:"yearTo,omitempty" jsonschema:"minimum=1888,maximum=2100"`
	Director  string  `json:"director,omitempty" jsonschema:"maxLength=100"`
	MinRating float64 `json:"minRating,omitempty" jsonschema:"minimum=0,maximum=10"`
	SortBy    string  `json:"sortBy,omitempty" jsonschema:"enum=title,enum=releaseYear,enum=rating"`
}

// SearchQuery is the body of searchMovies.
type SearchQuery struct {
	Query string `json:"query" jsonschema:"minLength=1,maxLength=100"`
	Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=50"`
}

// Credentials is the body of login.
type Credentials struct {
	Username string `json:"username" jsonschema:"minLength=3,maxLength=30"`
	Password string `json:"password" jsonschema:"minLength=8,maxLength=128"`
}

// Registration is the body of register.
type Registration struct {
	Username string `json:"username" jsonschema:"minLength=3,maxLength=30"`
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=8,maxLength=128"`
}

// PasswordReset is the body of forgotPassword.
type PasswordReset struct {
	Email string `json:"email" jsonschema:"format=email"`
}

// PasswordChange is the body of changePassword.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" jsonschema:"minLength=1,maxLength=128"`
	NewPassword     string `json:"newPassword" jsonschema:"minLength=8,maxLength=128"`
}

type movieID struct {
	ID string `json:"id" jsonschema:"minLength=1,maxLength=64"`
}
