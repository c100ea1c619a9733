package contract

import (
	"errors"
	"testing"
)

type idParams struct {
	ID string `json:"id" jsonschema:"minLength=1"`
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	c := Get("getMovie", "/movies/:id", PathParams[idParams](), Returns[string]())
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Resolve("getMovie")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Method != "GET" || got.Path != "/movies/:id" {
		t.Fatalf("unexpected contract: %+v", got)
	}
	if got.Response == nil || got.Response.Type != "string" {
		t.Fatalf("expected string response schema, got %+v", got.Response)
	}
}

func TestRegistryDuplicateAlias(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Get("getQuote", "/quotes/random"))

	err := r.Register(Get("getQuote", "/quotes/other"))
	var dup *DuplicateAliasError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateAliasError, got %v", err)
	}
	if dup.Alias != "getQuote" {
		t.Fatalf("unexpected alias %q", dup.Alias)
	}

	// The original registration is untouched.
	c, _ := r.Resolve("getQuote")
	if c.Path != "/quotes/random" {
		t.Fatalf("duplicate registration replaced contract: %s", c.Path)
	}
}

func TestRegistryUnknownContract(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("nope")
	var unk *UnknownContractError
	if !errors.As(err, &unk) || unk.Alias != "nope" {
		t.Fatalf("expected UnknownContractError, got %v", err)
	}
}

func TestRegistryPlaceholdersMatchParams(t *testing.T) {
	type other struct {
		Slug string `json:"slug"`
	}
	cases := map[string]Contract{
		"MissingParams":  Get("a", "/movies/:id"),
		"WrongParamName": Get("b", "/movies/:id", PathParams[other]()),
		"ExtraParam":     Get("c", "/movies", PathParams[idParams]()),
		"NoAlias":        Get("", "/movies"),
		"RelativePath":   Get("d", "movies"),
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			err := NewRegistry().Register(c)
			var inv *InvalidContractError
			if !errors.As(err, &inv) {
				t.Fatalf("expected InvalidContractError, got %v", err)
			}
		})
	}
}

func TestRegistrySeal(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Get("getMovies", "/movies"))
	r.Seal()

	if !r.Sealed() {
		t.Fatal("expected registry to be sealed")
	}
	if err := r.Register(Get("late", "/late")); !errors.Is(err, ErrRegistrySealed) {
		t.Fatalf("expected ErrRegistrySealed, got %v", err)
	}
	if _, err := r.Resolve("getMovies"); err != nil {
		t.Fatalf("resolve after seal: %v", err)
	}
}

func TestRegistryMustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r := NewRegistry()
	r.MustRegister(Get("x", "/x"), Get("x", "/y"))
}

func TestRegistryAliasesSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Get("b", "/b"), Get("a", "/a"), Get("c", "/c"))
	got := r.Aliases()
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("aliases = %v, want %v", got, want)
		}
	}
}

func TestExpand(t *testing.T) {
	got := Expand("/movies/:id/ratings/:user", map[string]string{"id": "m1", "user": "u%2F2"})
	if got != "/movies/m1/ratings/u%2F2" {
		t.Fatalf("unexpected expansion %q", got)
	}
	names := Placeholders("/movies/:id/ratings/:user")
	if len(names) != 2 || names[0] != "id" || names[1] != "user" {
		t.Fatalf("unexpected placeholders %v", names)
	}
}
