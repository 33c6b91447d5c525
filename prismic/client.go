// Package prismic is a small client for the Prismic REST API v2.
// It covers what a listing page needs: resolving the master ref, running a
// predicate query and following the opaque next_page URL of a response.
package prismic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNoMasterRef is returned when the API root lists no master ref.
var ErrNoMasterRef = errors.New("prismic: no master ref")

// maxBodySize caps how much of a response body is read.
const maxBodySize = 8 << 20

// APIError is a non-2xx response from the content API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("prismic: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("prismic: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to one Prismic repository endpoint, e.g.
// https://myrepo.cdn.prismic.io/api/v2.
type Client struct {
	endpoint    *url.URL
	accessToken string
	ref         string
	http        *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAccessToken sets the token sent as access_token on every request.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = token
	}
}

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRef pins queries to a ref instead of resolving the master ref.
func WithRef(ref string) Option {
	return func(c *Client) {
		c.ref = ref
	}
}

// NewClient creates a Client for the given API endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("prismic: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("prismic: endpoint %q must be http or https", endpoint)
	}
	c := &Client{
		endpoint: u,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns a copy of the configured endpoint. Cursor URLs handed out
// by the API point at its host, and relative ones resolve against it.
func (c *Client) Endpoint() *url.URL {
	u := *c.endpoint
	return &u
}

// MasterRef resolves the current master ref from the API root.
func (c *Client) MasterRef(ctx context.Context) (string, error) {
	if c.ref != "" {
		return c.ref, nil
	}
	u := *c.endpoint
	if c.accessToken != "" {
		q := u.Query()
		q.Set("access_token", c.accessToken)
		u.RawQuery = q.Encode()
	}
	var api API
	if err := c.getJSON(ctx, u.String(), &api); err != nil {
		return "", err
	}
	for _, r := range api.Refs {
		if r.IsMasterRef {
			return r.Ref, nil
		}
	}
	return "", ErrNoMasterRef
}

// QueryOptions tune a search request.
type QueryOptions struct {
	PageSize  int
	Page      int
	Orderings string // e.g. "[document.first_publication_date desc]"
	Lang      string
}

// Query runs a predicate search against the master ref.
func (c *Client) Query(ctx context.Context, predicates []Predicate, opts QueryOptions) (*Response, error) {
	ref, err := c.MasterRef(ctx)
	if err != nil {
		return nil, err
	}
	u := c.endpoint.JoinPath("documents", "search")
	q := u.Query()
	q.Set("ref", ref)
	if len(predicates) > 0 {
		q.Set("q", JoinPredicates(predicates))
	}
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Orderings != "" {
		q.Set("orderings", opts.Orderings)
	}
	if opts.Lang != "" {
		q.Set("lang", opts.Lang)
	}
	if c.accessToken != "" {
		q.Set("access_token", c.accessToken)
	}
	u.RawQuery = q.Encode()

	var resp Response
	if err := c.getJSON(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchPage GETs an opaque next_page URL previously returned by the API.
func (c *Client) FetchPage(ctx context.Context, rawURL string) (*Response, error) {
	var resp Response
	if err := c.getJSON(ctx, rawURL, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("prismic: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("prismic: request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("prismic: read body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{StatusCode: res.StatusCode, Message: errorMessage(body)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("prismic: decode response: %w", err)
	}
	return nil
}

// errorMessage pulls a message out of an error body, which the API sends
// either as {"message": ...}, {"error": ...} or plain text.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
