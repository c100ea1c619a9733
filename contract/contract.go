// Package contract declares network operations as data.
//
// A Contract names an operation by alias and records its HTTP method, path
// template and the schemas for its path parameters, query string, request body
// and response body. Contracts are collected into a Registry once at startup
// and resolved by alias from then on, so the callers and the transport share a
// single auditable table of routes and shapes.
package contract

import (
	"net/http"
	"strings"

	"github.com/ggoodman/moviecatalog-go/schema"
)

// Contract describes one network operation. Path placeholders use the
// ":name" form ("/movies/:id/rating"). A nil Response means the operation
// returns no body the client cares about.
type Contract struct {
	Alias       string
	Method      string
	Path        string
	Description string

	PathParams *schema.Schema
	Query      *schema.Schema
	Body       *schema.Schema
	Response   *schema.Schema
}

// Option configures a Contract under construction.
type Option func(*Contract)

// New builds a Contract. It does not validate anything; Registry.Register does.
func New(alias, method, path string, opts ...Option) Contract {
	c := Contract{Alias: alias, Method: method, Path: path}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Get is shorthand for New with http.MethodGet.
func Get(alias, path string, opts ...Option) Contract {
	return New(alias, http.MethodGet, path, opts...)
}

// Post is shorthand for New with http.MethodPost.
func Post(alias, path string, opts ...Option) Contract {
	return New(alias, http.MethodPost, path, opts...)
}

// Put is shorthand for New with http.MethodPut.
func Put(alias, path string, opts ...Option) Contract {
	return New(alias, http.MethodPut, path, opts...)
}

// Delete is shorthand for New with http.MethodDelete.
func Delete(alias, path string, opts ...Option) Contract {
	return New(alias, http.MethodDelete, path, opts...)
}

// PathParams declares the path parameter shape from the struct T.
func PathParams[T any]() Option {
	return func(c *Contract) { c.PathParams = schema.For[T]() }
}

// Query declares the query string shape from the struct T.
func Query[T any]() Option {
	return func(c *Contract) { c.Query = schema.For[T]() }
}

// Body declares the request body shape from T.
func Body[T any]() Option {
	return func(c *Contract) { c.Body = schema.For[T]() }
}

// Returns declares the response body shape from T. Unknown object properties
// in responses are tolerated.
func Returns[T any]() Option {
	return func(c *Contract) { c.Response = schema.Open[T]() }
}

// Describe attaches a human readable description.
func Describe(desc string) Option {
	return func(c *Contract) { c.Description = desc }
}

// Placeholders returns the placeholder names in a path template, in order.
func Placeholders(path string) []string {
	var names []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			names = append(names, seg[1:])
		}
	}
	return names
}

// Expand substitutes values into the path template. Values must already be
// escaped for use in a path segment. Placeholders without a value are left
// untouched.
func Expand(path string, values map[string]string) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if !strings.HasPrefix(seg, ":") || len(seg) < 2 {
			continue
		}
		if v, ok := values[seg[1:]]; ok {
			segs[i] = v
		}
	}
	return strings.Join(segs, "/")
}

func (c Contract) validate() error {
	if c.Alias == "" {
		return &InvalidContractError{Reason: "alias is required"}
	}
	if c.Method == "" {
		return &InvalidContractError{Alias: c.Alias, Reason: "method is required"}
	}
	if !strings.HasPrefix(c.Path, "/") {
		return &InvalidContractError{Alias: c.Alias, Reason: "path must start with /"}
	}

	names := Placeholders(c.Path)
	declared := map[string]bool{}
	if c.PathParams != nil && c.PathParams.Properties != nil {
		for el := c.PathParams.Properties.Oldest(); el != nil; el = el.Next() {
			declared[el.Key] = true
		}
	}
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			return &InvalidContractError{Alias: c.Alias, Reason: "duplicate placeholder :" + name}
		}
		seen[name] = true
		if !declared[name] {
			return &InvalidContractError{Alias: c.Alias, Reason: "placeholder :" + name + " has no path parameter"}
		}
	}
	for name := range declared {
		if !seen[name] {
			return &InvalidContractError{Alias: c.Alias, Reason: "path parameter " + name + " is not in the path"}
		}
	}
	return nil
}
