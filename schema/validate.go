package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
)

// Error describes the first value that failed validation. Path is a dotted
// field path with bracketed array indices ("cast[2].name"); it is empty when
// the root value itself is invalid.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Validate checks a generic JSON value (as produced by Decode or Normalize)
// against s and returns an *Error for the first violation found. Properties
// are visited in declaration order, so the outcome is deterministic for a
// given input. A nil schema accepts anything.
func Validate(s *Schema, v any) error {
	if s == nil {
		return nil
	}
	return validate(s, "", v)
}

var patterns sync.Map // pattern -> *regexp.Regexp

func validate(s *Schema, path string, v any) error {
	if s == nil || s == jsonschema.TrueSchema {
		return nil
	}
	if s == jsonschema.FalseSchema {
		return &Error{Path: path, Reason: "is not allowed"}
	}

	if v == nil {
		if s.Type == "" || s.Type == "null" {
			return nil
		}
		return &Error{Path: path, Reason: fmt.Sprintf("expected %s, got null", s.Type)}
	}

	if len(s.Enum) > 0 && !inEnum(s.Enum, v) {
		return &Error{Path: path, Reason: fmt.Sprintf("must be one of %v", s.Enum)}
	}

	switch s.Type {
	case "":
		return nil
	case "string":
		str, ok := v.(string)
		if !ok {
			return typeError(path, s.Type, v)
		}
		return validateString(s, path, str)
	case "integer", "number":
		n, ok := v.(json.Number)
		if !ok {
			return typeError(path, s.Type, v)
		}
		return validateNumber(s, path, n)
	case "boolean":
		if _, ok := v.(bool); !ok {
			return typeError(path, s.Type, v)
		}
		return nil
	case "array":
		arr, ok := v.([]any)
		if !ok {
			return typeError(path, s.Type, v)
		}
		return validateArray(s, path, arr)
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return typeError(path, s.Type, v)
		}
		return validateObject(s, path, obj)
	case "null":
		return typeError(path, s.Type, v)
	default:
		return &Error{Path: path, Reason: fmt.Sprintf("unsupported schema type %q", s.Type)}
	}
}

func validateString(s *Schema, path, str string) error {
	n := uint64(utf8.RuneCountInString(str))
	if s.MinLength != nil && n < *s.MinLength {
		return &Error{Path: path, Reason: fmt.Sprintf("must be at least %d characters", *s.MinLength)}
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		return &Error{Path: path, Reason: fmt.Sprintf("must be at most %d characters", *s.MaxLength)}
	}
	if s.Pattern != "" {
		re, err := compile(s.Pattern)
		if err != nil {
			return &Error{Path: path, Reason: fmt.Sprintf("invalid pattern %q", s.Pattern)}
		}
		if !re.MatchString(str) {
			return &Error{Path: path, Reason: fmt.Sprintf("must match %s", s.Pattern)}
		}
	}
	switch s.Format {
	case "email":
		if _, err := mail.ParseAddress(str); err != nil {
			return &Error{Path: path, Reason: "must be a valid email address"}
		}
	case "date-time":
		if _, err := time.Parse(time.RFC3339, str); err != nil {
			return &Error{Path: path, Reason: "must be an RFC 3339 timestamp"}
		}
	case "uri":
		u, err := url.Parse(str)
		if err != nil || !u.IsAbs() {
			return &Error{Path: path, Reason: "must be an absolute URI"}
		}
	}
	return nil
}

func validateNumber(s *Schema, path string, n json.Number) error {
	f, err := n.Float64()
	if err != nil {
		return &Error{Path: path, Reason: fmt.Sprintf("invalid number %q", n.String())}
	}
	if s.Type == "integer" && f != math.Trunc(f) {
		return &Error{Path: path, Reason: "must be an integer"}
	}
	if lim, ok := bound(s.Minimum); ok && f < lim {
		return &Error{Path: path, Reason: fmt.Sprintf("must be >= %s", s.Minimum)}
	}
	if lim, ok := bound(s.Maximum); ok && f > lim {
		return &Error{Path: path, Reason: fmt.Sprintf("must be <= %s", s.Maximum)}
	}
	if lim, ok := bound(s.ExclusiveMinimum); ok && f <= lim {
		return &Error{Path: path, Reason: fmt.Sprintf("must be > %s", s.ExclusiveMinimum)}
	}
	if lim, ok := bound(s.ExclusiveMaximum); ok && f >= lim {
		return &Error{Path: path, Reason: fmt.Sprintf("must be < %s", s.ExclusiveMaximum)}
	}
	return nil
}

func validateArray(s *Schema, path string, arr []any) error {
	n := uint64(len(arr))
	if s.MinItems != nil && n < *s.MinItems {
		return &Error{Path: path, Reason: fmt.Sprintf("must contain at least %d items", *s.MinItems)}
	}
	if s.MaxItems != nil && n > *s.MaxItems {
		return &Error{Path: path, Reason: fmt.Sprintf("must contain at most %d items", *s.MaxItems)}
	}
	for i, el := range arr {
		if err := validate(s.Items, path+"["+strconv.Itoa(i)+"]", el); err != nil {
			return err
		}
	}
	return nil
}

func validateObject(s *Schema, path string, obj map[string]any) error {
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	known := map[string]bool{}
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			name := el.Key
			known[name] = true
			val, present := obj[name]
			if !present || val == nil {
				if required[name] {
					return &Error{Path: join(path, name), Reason: "is required"}
				}
				continue
			}
			if err := validate(el.Value, join(path, name), val); err != nil {
				return err
			}
		}
	}
	// Required names that are not declared as properties still have to be present.
	for _, name := range s.Required {
		if known[name] {
			continue
		}
		if _, ok := obj[name]; !ok {
			return &Error{Path: join(path, name), Reason: "is required"}
		}
	}

	if s.AdditionalProperties == nil || s.AdditionalProperties == jsonschema.TrueSchema {
		return nil
	}
	var extra []string
	for name := range obj {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		if s.AdditionalProperties == jsonschema.FalseSchema {
			return &Error{Path: join(path, name), Reason: "is not allowed"}
		}
		if err := validate(s.AdditionalProperties, join(path, name), obj[name]); err != nil {
			return err
		}
	}
	return nil
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func bound(n json.Number) (float64, bool) {
	if n == "" {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

func inEnum(enum []any, v any) bool {
	want := fmt.Sprint(v)
	for _, e := range enum {
		if fmt.Sprint(e) == want {
			return true
		}
	}
	return false
}

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}

func typeError(path, want string, v any) *Error {
	return &Error{Path: path, Reason: fmt.Sprintf("expected %s, got %s", want, kind(v))}
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
