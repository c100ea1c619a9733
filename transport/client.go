// Package transport executes contracts over HTTP with validation at both
// boundaries.
//
// Inputs are checked against the contract before any network I/O, responses
// are checked before they are returned, and a 401 response runs the single
// registered unauthorized handler before the caller sees *UnauthorizedError.
// The transport never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/moviecatalog-go/contract"
	"github.com/ggoodman/moviecatalog-go/internal/logctx"
	"github.com/ggoodman/moviecatalog-go/schema"
	"github.com/google/uuid"
)

const (
	acceptHeader = "application/json, text/plain;q=0.9"
	maxBodyBytes = 4 << 20
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// Resolver looks contracts up by alias. *contract.Registry satisfies it.
type Resolver interface {
	Resolve(alias string) (contract.Contract, error)
}

// Request carries the caller's input for one invocation. PathParams and Query
// are validated against the contract's object schemas; Body may be any value
// that encodes to JSON.
type Request struct {
	PathParams map[string]any
	Query      map[string]any
	Body       any
}

// Client executes contracts against a base URL.
type Client struct {
	base      *url.URL
	contracts Resolver
	hc        Doer
	tokens    TokenSource
	log       *slog.Logger
	observer  Observer
	userAgent string

	onUnauthorized atomic.Pointer[UnauthorizedFunc]
}

// New builds a Client for baseURL. Paths from contracts are appended to the
// base URL's path.
func New(baseURL string, contracts Resolver, opts ...Option) (*Client, error) {
	if contracts == nil {
		return nil, errors.New("transport: contract resolver is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("transport: base url must be http or https, got %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &Client{
		base:      u,
		contracts: contracts,
		hc:        http.DefaultClient,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Invoke executes the contract registered under alias and returns the
// validated response body. Contracts without a response schema return nil.
func (c *Client) Invoke(ctx context.Context, alias string, req Request) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.invoke(ctx, alias, req)
	if c.observer != nil {
		c.observer.ObserveCall(alias, Outcome(err), time.Since(start))
	}
	return raw, err
}

// Invoke executes alias on c and decodes the validated response into T.
func Invoke[T any](ctx context.Context, c *Client, alias string, req Request) (T, error) {
	var out T
	raw, err := c.Invoke(ctx, alias, req)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &ResponseValidationError{Alias: alias, Reason: err.Error()}
	}
	return out, nil
}

// Validate checks req against the contract registered under alias without
// sending anything.
func (c *Client) Validate(alias string, req Request) error {
	ct, err := c.contracts.Resolve(alias)
	if err != nil {
		return err
	}
	_, err = prepare(ct, req)
	return err
}

func (c *Client) invoke(ctx context.Context, alias string, req Request) (json.RawMessage, error) {
	ct, err := c.contracts.Resolve(alias)
	if err != nil {
		return nil, err
	}

	p, err := prepare(ct, req)
	if err != nil {
		return nil, err
	}

	target := c.urlFor(p)
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}
	hreq, err := http.NewRequestWithContext(ctx, ct.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", alias, err)
	}

	requestID := uuid.NewString()
	ctx = logctx.WithCallData(ctx, &logctx.CallData{
		Alias:     alias,
		Method:    ct.Method,
		Path:      p.path,
		RequestID: requestID,
	})

	hreq.Header.Set("Accept", acceptHeader)
	hreq.Header.Set("X-Request-ID", requestID)
	if p.body != nil {
		hreq.Header.Set("Content-Type", jsonMediaType.String())
	}
	if c.userAgent != "" {
		hreq.Header.Set("User-Agent", c.userAgent)
	}
	// One snapshot per request: a concurrent sign-out only affects later calls.
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			hreq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.hc.Do(hreq)
	if err != nil {
		c.log.DebugContext(ctx, "request failed", slog.String("err", err.Error()))
		return nil, &NetworkError{Alias: alias, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		c.log.InfoContext(ctx, "credential rejected")
		c.fireUnauthorized(ctx, alias)
		return nil, &UnauthorizedError{Alias: alias}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.log.DebugContext(ctx, "response body truncated", slog.Int("status", resp.StatusCode), slog.String("err", err.Error()))
		return nil, &NetworkError{Alias: alias, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Alias: alias, Status: resp.StatusCode, Message: serverMessage(data)}
		c.log.DebugContext(ctx, "server rejected request", slog.Int("status", resp.StatusCode))
		return nil, apiErr
	}

	if ct.Response == nil {
		return nil, nil
	}

	raw, value, err := decodeResponse(resp.Header.Get("Content-Type"), data)
	if err != nil {
		c.log.WarnContext(ctx, "undecodable response", slog.String("err", err.Error()))
		return nil, &ResponseValidationError{Alias: alias, Reason: err.Error()}
	}
	if err := schema.Validate(ct.Response, value); err != nil {
		c.log.WarnContext(ctx, "response violates contract", slog.String("err", err.Error()))
		return nil, responseError(alias, err)
	}
	return raw, nil
}

func (c *Client) urlFor(p prepared) string {
	u := *c.base
	u.Path = c.base.Path + p.path
	u.RawPath = c.base.EscapedPath() + p.rawPath
	u.RawQuery = p.query
	return u.String()
}

// decodeResponse parses a success body into its generic JSON form. Bodies
// are parsed as JSON first; a text/* body that is not JSON is taken verbatim
// as a string value.
func decodeResponse(contentType string, data []byte) (json.RawMessage, any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, errors.New("empty response body")
	}
	v, err := schema.Decode(data)
	if err == nil {
		return json.RawMessage(data), v, nil
	}
	mt := contenttype.NewMediaType(contentType)
	if !strings.EqualFold(mt.Type, "text") {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}
	s := string(data)
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, nil, err
	}
	return raw, s, nil
}

// serverMessage pulls a human readable message out of an error body.
func serverMessage(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}

func responseError(alias string, err error) error {
	var verr *schema.Error
	if errors.As(err, &verr) {
		return &ResponseValidationError{Alias: alias, Field: verr.Path, Reason: verr.Reason}
	}
	return &ResponseValidationError{Alias: alias, Reason: err.Error()}
}

// sortedKeys returns m's keys in order so that URLs are stable.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
