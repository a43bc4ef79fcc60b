// Package gateway is the authorized request gateway: every call to the Top2000 API goes through [Client.Do].
//
// The gateway attaches the current bearer token, and on a 401 asks a [Refresher] for a new token and
// re-issues the original request exactly once. When the request still cannot be authorized the session
// invalidated signal is emitted, unless the caller asked for suppression.
//
// HTTP-level failures are returned as a [Response]; only transport failures are returned as errors and
// they wrap [shared.ErrNetwork].
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/events"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/models"
	"github.com/ROCvanTwente/project-top2000-frontend-alib-sub000/internal/shared"
)

// CredentialReader is the read side of the credential store used by the gateway.
type CredentialReader interface {
	ReadApplication() (*models.ApplicationCredential, error)
}

// Refresher performs a reactive refresh of the application credential.
type Refresher interface {
	RefreshNow(ctx context.Context) error
}

// Options configures a [Client].
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      CredentialReader
	Refresher  Refresher
	Events     *events.Broadcaster
	Logger     *log.Logger
}

// Client is the authorized request gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      CredentialReader
	refresher  Refresher
	events     *events.Broadcaster
	logger     *log.Logger
}

// New creates a gateway [Client].
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	if opts.Events == nil {
		opts.Events = events.New(opts.Logger)
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		refresher:  opts.Refresher,
		events:     opts.Events,
		logger:     shared.WithLogger(opts.Logger, "component", "gateway"),
	}
}

// Request describes one call to the API.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is encoded as JSON unless it is already []byte or json.RawMessage.
	Body any
	// SuppressInvalidation keeps an expected 401 from ending the session, for speculative auth probes.
	SuppressInvalidation bool
}

// Response is the final HTTP response of a gateway call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Retried is set when the response comes from the single post-refresh retry.
	Retried bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return shared.Is2xx(r.StatusCode)
}

// Unauthorized reports a 401 status.
func (r *Response) Unauthorized() bool {
	return r.StatusCode == http.StatusUnauthorized
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("%w: empty response body", shared.ErrAPIRequest)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Problem parses the body as an API error, nil if it is not one.
func (r *Response) Problem() *Problem {
	return ParseProblem(r.Body)
}

// Err converts a non-2xx response into an error wrapping [shared.ErrAPIRequest], or
// [shared.ErrUnauthorized] for a 401. Returns nil for 2xx.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	base := shared.ErrAPIRequest
	if r.Unauthorized() {
		base = shared.ErrUnauthorized
	}
	if p := r.Problem(); p != nil {
		return fmt.Errorf("%w: status %d: %w", base, r.StatusCode, p)
	}
	return fmt.Errorf("%w: status %d", base, r.StatusCode)
}

// Do issues req with the current bearer token, refreshing and retrying once on a 401.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	requestID := shared.GenerateID()
	logger := c.logger.With("method", req.Method, "path", req.Path, "request_id", requestID)

	resp, err := c.send(ctx, req, body, c.currentToken(), requestID)
	if err != nil {
		logger.Warn("request failed", "error", err)
		return nil, err
	}
	if !resp.Unauthorized() {
		return resp, nil
	}

	if c.canRefresh() {
		logger.Debug("unauthorized, attempting refresh")
		if err := c.refresher.RefreshNow(ctx); err == nil {
			// read the store again: the token must be the one written by the refresh
			retried, err := c.send(ctx, req, body, c.currentToken(), requestID)
			if err != nil {
				logger.Warn("retry failed", "error", err)
				return nil, err
			}
			retried.Retried = true
			if !retried.Unauthorized() {
				return retried, nil
			}
			resp = retried
		} else if errors.Is(err, shared.ErrNetwork) {
			// a network blip during refresh is not a credential problem
			logger.Warn("refresh failed on transport", "error", err)
			return nil, err
		} else {
			logger.Info("refresh failed", "error", err)
		}
	}

	if req.SuppressInvalidation {
		logger.Debug("unauthorized, invalidation suppressed")
	} else {
		c.events.EmitSessionInvalidated(events.SessionInvalidated{Reason: events.ReasonUnauthorized})
	}

	return resp, nil
}

// Get is shorthand for a GET [Request].
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post is shorthand for a POST [Request] with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put is shorthand for a PUT [Request] with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete is shorthand for a DELETE [Request].
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// BaseURL returns the API base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) currentToken() string {
	if c.store == nil {
		return ""
	}
	cred, err := c.store.ReadApplication()
	if err != nil {
		c.logger.Warn("failed to read credentials", "error", err)
		return ""
	}
	if cred == nil {
		return ""
	}
	return cred.AccessToken
}

func (c *Client) canRefresh() bool {
	if c.refresher == nil || c.store == nil {
		return false
	}
	cred, err := c.store.ReadApplication()
	return err == nil && cred.HasRefreshToken()
}

func (c *Client) send(ctx context.Context, req *Request, body []byte, token, requestID string) (*Response, error) {
	fullURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrNetwork, err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode request body: %v", shared.ErrInvalidInput, err)
		}
		return data, nil
	}
}
