package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/beevik/etree"
)

// HttpClientWrapper wraps http.Client with CalDAV/CardDAV-specific functionality.
// HTTP status codes other than the transport-level ones are returned in Response, not as errors,
// so the caller can map them to its own outcomes.
type HttpClientWrapper interface {
	DoPROPFIND(ctx context.Context, url string, depth int, props ...string) (*PropfindResponse, error)
	DoREPORT(ctx context.Context, url string, depth int, body *etree.Document) (*Response, error)
	DoGET(ctx context.Context, url string) (*Response, error)
	DoPUT(ctx context.Context, url string, pre Precondition, contentType string, data []byte) (*Response, error)
	DoDELETE(ctx context.Context, url string, pre Precondition) (*Response, error)
}

// Precondition carries the conditional request headers of a write.
type Precondition struct {
	// IfMatch is sent verbatim as If-Match when non-empty
	IfMatch string
	// IfNoneMatch sends "If-None-Match: *"
	IfNoneMatch bool
}

func (p Precondition) apply(req *http.Request) {
	if p.IfMatch != "" {
		req.Header.Set("If-Match", p.IfMatch)
	}
	if p.IfNoneMatch {
		req.Header.Set("If-None-Match", "*")
	}
}

// Response is the raw outcome of a request.
type Response struct {
	StatusCode int
	ETag       string
	Header     http.Header
	Body       []byte
}

// Success reports a 2xx status.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is returned when a request needs a specific status to be useful (for example 207
// for PROPFIND) and got another one.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// HTTPStatus exposes the status code to retry classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

type httpClientWrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
}

// resolveURL resolves a URL string against the base URL
func (c *httpClientWrapper) resolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// NewHttpClientWrapper creates a new client wrapper with logging
func NewHttpClientWrapper(client *http.Client, baseURL url.URL, logger *slog.Logger) (HttpClientWrapper, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClientWrapper{client: client, baseURL: baseURL, logger: logger}, nil
}

// do sends a request and reads the whole body.
func (c *httpClientWrapper) do(ctx context.Context, method, urlStr string, body []byte, configure func(*http.Request)) (*Response, error) {
	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", urlStr, "error", err)
		return nil, err
	}
	c.logger.Debug("resolved URL", "method", method, "url", resolvedURL.String())

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolvedURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if configure != nil {
		configure(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "url", resolvedURL.String(), "error", err)
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Debug("failed to read response body", "method", method, "error", err)
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	c.logger.Debug("received response",
		"method", method,
		"url", resolvedURL.String(),
		"status", resp.Status,
		"etag", resp.Header.Get("ETag"),
		"body_length", len(data))

	return &Response{
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		Header:     resp.Header,
		Body:       data,
	}, nil
}
