package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/beevik/etree"
)

// DoREPORT executes a REPORT request. The raw multistatus (or iCalendar for free-busy) body is
// returned for the caller to parse.
func (c *httpClientWrapper) DoREPORT(ctx context.Context, urlStr string, depth int, body *etree.Document) (*Response, error) {
	data, err := body.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal REPORT body: %w", err)
	}
	c.logger.Debug("starting REPORT request",
		"url", urlStr,
		"depth", depth,
		"report", body.Root().Tag)

	return c.do(ctx, "REPORT", urlStr, data, func(req *http.Request) {
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
		req.Header.Set("Depth", fmt.Sprintf("%d", depth))
	})
}

// DoGET fetches a single resource.
func (c *httpClientWrapper) DoGET(ctx context.Context, urlStr string) (*Response, error) {
	c.logger.Debug("starting GET request", "url", urlStr)
	return c.do(ctx, http.MethodGet, urlStr, nil, nil)
}

// DoPUT writes a resource under the given precondition.
func (c *httpClientWrapper) DoPUT(ctx context.Context, urlStr string, pre Precondition, contentType string, data []byte) (*Response, error) {
	c.logger.Debug("starting PUT request",
		"url", urlStr,
		"if_match", pre.IfMatch,
		"if_none_match", pre.IfNoneMatch,
		"data_length", len(data))

	return c.do(ctx, http.MethodPut, urlStr, data, func(req *http.Request) {
		pre.apply(req)
		req.Header.Set("Content-Type", contentType)
	})
}

// DoDELETE removes a resource under the given precondition.
func (c *httpClientWrapper) DoDELETE(ctx context.Context, urlStr string, pre Precondition) (*Response, error) {
	c.logger.Debug("starting DELETE request",
		"url", urlStr,
		"if_match", pre.IfMatch)

	return c.do(ctx, http.MethodDelete, urlStr, nil, pre.apply)
}
