// Package transport performs the outbound HTTP exchanges made against the
// provider API.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-crm-connect/core"
)

const Kind = "http"

const (
	defaultTimeout             = 30 * time.Second
	defaultBodyLimit     int64 = 10 << 20
	maxErrorDetailLength       = 256
)

// Client sends one request per call. Non-2xx responses are returned to the
// caller untouched; only failures to complete the exchange are errors.
type Client struct {
	doer      core.HTTPDoer
	headers   http.Header
	bodyLimit int64
	now       func() time.Time
}

type Option func(*Client)

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if key = strings.TrimSpace(key); key != "" {
			c.headers.Set(key, strings.TrimSpace(value))
		}
	}
}

func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.bodyLimit = limit
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(doer core.HTTPDoer, opts ...Option) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: defaultTimeout}
	}
	c := &Client{
		doer:      doer,
		headers:   http.Header{},
		bodyLimit: defaultBodyLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (*Client) Kind() string {
	return Kind
}

func (c *Client) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if c == nil || c.doer == nil {
		return core.TransportResponse{}, internalError("transport: client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return core.TransportResponse{}, err
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return core.TransportResponse{}, badRequestError("transport: build request", err)
	}
	for key, values := range c.headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	for key, value := range req.Headers {
		if key = strings.TrimSpace(key); key != "" {
			httpReq.Header.Set(key, strings.TrimSpace(value))
		}
	}

	startedAt := c.now()
	res, err := c.doer.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, unreachableError(method, target, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, c.bodyLimit+1))
	if err != nil {
		return core.TransportResponse{}, unreachableError(method, target, err)
	}
	if int64(len(payload)) > c.bodyLimit {
		return core.TransportResponse{}, core.ProviderError(
			http.StatusBadGateway,
			fmt.Sprintf("provider response exceeds %d bytes", c.bodyLimit),
		)
	}

	return core.TransportResponse{
		StatusCode: res.StatusCode,
		Headers:    flatten(res.Header),
		Body:       payload,
		Metadata: map[string]any{
			"kind":        Kind,
			"duration_ms": c.now().Sub(startedAt).Milliseconds(),
		},
	}, nil
}

// GetJSON issues an authenticated GET. A non-2xx answer becomes a provider
// error carrying the upstream status, described as in CheckStatus.
func (c *Client) GetJSON(ctx context.Context, endpoint, token string, query map[string]string, timeout time.Duration, describe func([]byte) string) ([]byte, error) {
	headers := map[string]string{"Accept": "application/json"}
	if token = strings.TrimSpace(token); token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	res, err := c.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     endpoint,
		Headers: headers,
		Query:   query,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(res, describe); err != nil {
		return nil, err
	}
	return res.Body, nil
}

// CheckStatus maps a non-2xx response to a provider error. describe extracts
// a readable message from the body; the raw body is used when it is nil or
// finds nothing.
func CheckStatus(res core.TransportResponse, describe func([]byte) string) error {
	if res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	message := ""
	if describe != nil {
		message = strings.TrimSpace(describe(res.Body))
	}
	if message == "" {
		message = strings.TrimSpace(string(res.Body))
		if len(message) > maxErrorDetailLength {
			message = message[:maxErrorDetailLength]
		}
	}
	if message == "" {
		message = http.StatusText(res.StatusCode)
	}
	return core.ProviderError(res.StatusCode, message)
}

func buildURL(raw string, query map[string]string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", badRequestError("transport: request url is required", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", badRequestError("transport: invalid request url", err)
	}
	if len(query) > 0 {
		values := parsed.Query()
		for key, value := range query {
			if key = strings.TrimSpace(key); key != "" {
				values.Set(key, strings.TrimSpace(value))
			}
		}
		parsed.RawQuery = values.Encode()
	}
	return parsed.String(), nil
}

func flatten(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.TransportAdapter = (*Client)(nil)
