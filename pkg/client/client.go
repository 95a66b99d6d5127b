// Package client is a Go client for the docrag HTTP API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kailas-cloud/docrag/pkg/api"
)

const (
	defaultTimeout = 5 * time.Minute
	apiPrefix      = "/api/v1"
)

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Code       api.ErrorCode
	Message    string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("docrag: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("docrag: %s: %s", e.Code, e.Message)
}

// IsCode reports whether err is a server error with the given code.
func IsCode(err error, code api.ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Client talks to one docrag server.
type Client struct {
	http *resty.Client
}

type options struct {
	apiKey     string
	timeout    time.Duration
	retries    int
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*options)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithTimeout bounds every request. Ingesting a large folder can take minutes.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetries retries idempotent reads on transient server errors.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL must have a host, got %q", baseURL)
	}

	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	var rc *resty.Client
	if o.httpClient != nil {
		rc = resty.NewWithClient(o.httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(o.retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryCondition)
	if o.apiKey != "" {
		rc.SetAuthToken(o.apiKey)
	}

	return &Client{http: rc}, nil
}

// retryCondition retries reads on gateway errors. Ingest and query are never
// retried on a status code: they may already have spent tokens.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil || r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	switch r.StatusCode() {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Ingest rebuilds the server index from a folder on the server host.
func (c *Client) Ingest(ctx context.Context, path string) (api.IngestResponse, error) {
	var out api.IngestResponse
	err := c.do(ctx, http.MethodPost, "/ingest", api.IngestRequest{Path: path}, &out, nil)
	return out, err
}

// Query answers a question from the indexed documents.
func (c *Client) Query(ctx context.Context, question string) (api.QueryResponse, error) {
	var out api.QueryResponse
	err := c.do(ctx, http.MethodPost, "/query", api.QuestionRequest{Question: question}, &out, nil)
	return out, err
}

// Retrieve returns the chunks a question would be answered from.
func (c *Client) Retrieve(ctx context.Context, question string) (api.RetrieveResponse, error) {
	var out api.RetrieveResponse
	err := c.do(ctx, http.MethodPost, "/retrieve", api.QuestionRequest{Question: question}, &out, nil)
	return out, err
}

// Index describes the live index.
func (c *Client) Index(ctx context.Context) (api.IndexResponse, error) {
	var out api.IndexResponse
	err := c.do(ctx, http.MethodGet, "/index", nil, &out, nil)
	return out, err
}

// Usage reports token usage for period ("day", "month" or "total"; empty means month).
func (c *Client) Usage(ctx context.Context, period string) (api.UsageResponse, error) {
	var out api.UsageResponse
	var query map[string]string
	if period != "" {
		query = map[string]string{"period": period}
	}
	err := c.do(ctx, http.MethodGet, "/usage", nil, &out, query)
	return out, err
}

// Health returns the server health report. A degraded server answers 503,
// which is reported through the response, not as an error.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/health")
	if err != nil {
		return out, fmt.Errorf("health request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusServiceUnavailable {
		return out, &Error{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, query map[string]string) error {
	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&api.ErrorResponse{})
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, apiPrefix+path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	if apiErr, ok := resp.Error().(*api.ErrorResponse); ok && apiErr != nil && apiErr.Code != "" {
		return &Error{StatusCode: resp.StatusCode(), Code: apiErr.Code, Message: apiErr.Message}
	}
	return &Error{StatusCode: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
}
