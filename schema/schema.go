// Package schema reflects JSON schemas from Go types and validates decoded
// JSON values against them.
//
// Schemas are produced with github.com/invopop/jsonschema using struct tags:
// fields without `omitempty` are required, and `jsonschema:"maxLength=100"`
// style tags declare bounds. Validation walks the reflected schema directly so
// that failures can name the first offending field.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Schema is the reflected schema type shared by contracts and the validator.
type Schema = jsonschema.Schema

// For reflects T into an inline schema whose objects reject unknown
// properties. It is used for everything the client sends.
func For[T any]() *Schema { return reflectType[T](false) }

// Open reflects T into an inline schema whose objects tolerate unknown
// properties. It is used for payloads the server sends, where extra fields
// are ignored on decode.
func Open[T any]() *Schema { return reflectType[T](true) }

func reflectType[T any](allowAdditional bool) *Schema {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := &jsonschema.Reflector{
		DoNotReference:            true,                       // inline nested definitions
		ExpandedStruct:            t.Kind() == reflect.Struct, // struct at the root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(T))
	s.Version = ""
	s.ID = ""
	return s
}

// Normalize converts an arbitrary Go value into its generic JSON form
// (map[string]any, []any, string, json.Number, bool or nil) so it can be
// validated exactly as the server would see it.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return Decode(b)
}

// Decode parses JSON bytes into the generic form understood by Validate.
// Numbers are kept as json.Number to avoid losing integer precision.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}
