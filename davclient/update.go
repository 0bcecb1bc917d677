package davclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cyp0633/davmutate/internal/httpclient"
	"github.com/cyp0633/davmutate/retry"
)

// write wraps a PUT or DELETE in the retry executor. Retryable statuses count as failed attempts;
// every other status is returned for the caller to interpret.
func (c *davClient) write(ctx context.Context, op, resourceURL string, send func(ctx context.Context) (*httpclient.Response, error)) (*Response, error) {
	resp, attempts, err := retry.Value(ctx, c.executor, op, func(ctx context.Context) (*httpclient.Response, error) {
		resp, err := send(ctx)
		if err != nil {
			return nil, err
		}
		if retry.RetryableStatus(resp.StatusCode) {
			return nil, &httpclient.StatusError{Method: op, URL: resourceURL, StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		ETag:       resp.ETag,
		Body:       resp.Body,
		URL:        resourceURL,
		Attempts:   attempts,
	}, nil
}

func (c *davClient) CreateResource(ctx context.Context, collectionURL, filename, contentType string, data []byte) (*Response, error) {
	if filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	resourceURL := joinResource(collectionURL, filename)
	c.logger.Debug("creating resource", "url", resourceURL)

	return c.write(ctx, http.MethodPut, resourceURL, func(ctx context.Context) (*httpclient.Response, error) {
		return c.httpClient.DoPUT(ctx, resourceURL, httpclient.Precondition{IfNoneMatch: true}, contentType, data)
	})
}

func (c *davClient) UpdateResource(ctx context.Context, handle ResourceHandle, contentType string, data []byte) (*Response, error) {
	if !handle.HasToken() {
		return nil, fmt.Errorf("update of %s requires a version token", handle.URL)
	}
	c.logger.Debug("updating resource", "url", handle.URL, "etag", handle.ETag)

	return c.write(ctx, http.MethodPut, handle.URL, func(ctx context.Context) (*httpclient.Response, error) {
		return c.httpClient.DoPUT(ctx, handle.URL, httpclient.Precondition{IfMatch: handle.ETag}, contentType, data)
	})
}

func (c *davClient) DeleteResource(ctx context.Context, handle ResourceHandle) (*Response, error) {
	if !handle.HasToken() {
		return nil, fmt.Errorf("delete of %s requires a version token", handle.URL)
	}
	c.logger.Debug("deleting resource", "url", handle.URL, "etag", handle.ETag)

	return c.write(ctx, http.MethodDelete, handle.URL, func(ctx context.Context) (*httpclient.Response, error) {
		return c.httpClient.DoDELETE(ctx, handle.URL, httpclient.Precondition{IfMatch: handle.ETag})
	})
}

func (c *davClient) FetchResource(ctx context.Context, resourceURL string) (*ResourceHandle, error) {
	resp, _, err := retry.Value(ctx, c.executor, http.MethodGet, func(ctx context.Context) (*httpclient.Response, error) {
		resp, err := c.httpClient.DoGET(ctx, resourceURL)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return resp, nil
		}
		if !resp.Success() {
			return nil, &httpclient.StatusError{Method: http.MethodGet, URL: resourceURL, StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, ErrResourceNotFound
	}

	handle, err := NewHandle(resourceURL, resp.ETag, resp.Body)
	if err != nil {
		return nil, err
	}
	return &handle, nil
}
