package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/ggoodman/moviecatalog-go/contract"
	"github.com/ggoodman/moviecatalog-go/schema"
)

// prepared is a request that passed validation and is ready to be sent.
type prepared struct {
	path    string
	rawPath string
	query   string
	body    []byte
}

// prepare validates req against ct in path, query, body order and renders the
// pieces of the HTTP request. It performs no I/O, so the same input always
// yields the same outcome.
func prepare(ct contract.Contract, req Request) (prepared, error) {
	var p prepared

	params, err := checkParams(ct, "path", ct.PathParams, req.PathParams)
	if err != nil {
		return p, err
	}
	plain := make(map[string]string, len(params))
	escaped := make(map[string]string, len(params))
	for _, name := range contract.Placeholders(ct.Path) {
		s := scalar(params[name])
		if s == "." || s == ".." {
			return p, &RequestValidationError{Alias: ct.Alias, Part: "path", Field: name, Reason: "must not be a dot segment"}
		}
		plain[name] = s
		escaped[name] = url.PathEscape(s)
	}
	p.path = contract.Expand(ct.Path, plain)
	p.rawPath = contract.Expand(ct.Path, escaped)

	query, err := checkParams(ct, "query", ct.Query, req.Query)
	if err != nil {
		return p, err
	}
	if len(query) > 0 {
		values := url.Values{}
		for _, k := range sortedKeys(query) {
			switch v := query[k].(type) {
			case nil:
			case []any:
				for _, el := range v {
					values.Add(k, scalar(el))
				}
			default:
				values.Set(k, scalar(v))
			}
		}
		p.query = values.Encode()
	}

	switch {
	case ct.Body == nil && req.Body != nil:
		return p, &RequestValidationError{Alias: ct.Alias, Part: "body", Reason: "operation does not accept a body"}
	case ct.Body != nil:
		v, err := schema.Normalize(req.Body)
		if err != nil {
			return p, &RequestValidationError{Alias: ct.Alias, Part: "body", Reason: err.Error()}
		}
		if err := schema.Validate(ct.Body, v); err != nil {
			return p, requestError(ct.Alias, "body", err)
		}
		b, err := json.Marshal(req.Body)
		if err != nil {
			return p, &RequestValidationError{Alias: ct.Alias, Part: "body", Reason: err.Error()}
		}
		p.body = b
	}
	return p, nil
}

// checkParams validates a parameter map against its object schema and returns
// the normalized values.
func checkParams(ct contract.Contract, part string, s *schema.Schema, in map[string]any) (map[string]any, error) {
	if s == nil {
		if len(in) > 0 {
			return nil, &RequestValidationError{Alias: ct.Alias, Part: part, Reason: "operation does not accept " + part + " parameters"}
		}
		return nil, nil
	}
	if in == nil {
		in = map[string]any{}
	}
	v, err := schema.Normalize(in)
	if err != nil {
		return nil, &RequestValidationError{Alias: ct.Alias, Part: part, Reason: err.Error()}
	}
	if err := schema.Validate(s, v); err != nil {
		return nil, requestError(ct.Alias, part, err)
	}
	out, _ := v.(map[string]any)
	return out, nil
}

func requestError(alias, part string, err error) error {
	var verr *schema.Error
	if errors.As(err, &verr) {
		return &RequestValidationError{Alias: alias, Part: part, Field: verr.Path, Reason: verr.Reason}
	}
	return &RequestValidationError{Alias: alias, Part: part, Reason: err.Error()}
}

func scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
