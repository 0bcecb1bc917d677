package davclient

import (
	"context"
	"net/http"
	"time"

	"github.com/beevik/etree"

	"github.com/cyp0633/davmutate/internal/httpclient"
	davxml "github.com/cyp0633/davmutate/internal/xml"
	"github.com/cyp0633/davmutate/retry"
)

// Query narrows FetchResources. The zero value lists every event of a calendar.
type Query struct {
	Kind Kind
	// Start and End restrict events to those overlapping [Start, End)
	Start time.Time
	End   time.Time
	UID   string
}

func (q Query) document() *etree.Document {
	if q.Kind == KindAddressBook {
		return davxml.BuildAddressbookQuery(q.UID)
	}
	return davxml.BuildCalendarQuery(davxml.CalendarQuery{Start: q.Start, End: q.End, UID: q.UID})
}

func (c *davClient) report(ctx context.Context, collectionURL string, depth int, doc *etree.Document, accept func(int) bool) (*httpclient.Response, error) {
	resp, _, err := retry.Value(ctx, c.executor, "REPORT", func(ctx context.Context) (*httpclient.Response, error) {
		resp, err := c.httpClient.DoREPORT(ctx, collectionURL, depth, doc)
		if err != nil {
			return nil, err
		}
		if retry.RetryableStatus(resp.StatusCode) || (accept != nil && !accept(resp.StatusCode)) {
			return nil, &httpclient.StatusError{Method: "REPORT", URL: collectionURL, StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	return resp, err
}

func (c *davClient) FetchResources(ctx context.Context, collectionURL string, q Query) ([]ResourceHandle, error) {
	c.logger.Debug("fetching resources",
		"collection", collectionURL,
		"kind", q.Kind,
		"uid", q.UID)

	resp, err := c.report(ctx, collectionURL, 1, q.document(), func(code int) bool {
		return code == http.StatusMultiStatus
	})
	if err != nil {
		return nil, err
	}

	ms, err := davxml.ParseMultistatus(resp.Body)
	if err != nil {
		return nil, err
	}

	dataProp := davxml.TagCalendarData
	if q.Kind == KindAddressBook {
		dataProp = davxml.TagAddressData
	}

	handles := make([]ResourceHandle, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		if !r.OK() {
			continue
		}
		data := r.PropText(dataProp)
		if data == "" {
			continue
		}
		resourceURL := resolveAgainst(collectionURL, r.Href)
		handle, err := NewHandle(resourceURL, r.PropText(davxml.TagGetETag), []byte(data))
		if err != nil {
			c.logger.Warn("skipping unparseable resource", "url", resourceURL, "error", err)
			continue
		}
		handles = append(handles, handle)
	}

	c.logger.Debug("fetched resources", "collection", collectionURL, "count", len(handles))
	return handles, nil
}

func (c *davClient) CollectionToken(ctx context.Context, collectionURL string) (string, error) {
	resp, _, err := retry.Value(ctx, c.executor, "PROPFIND", func(ctx context.Context) (*httpclient.PropfindResponse, error) {
		return c.httpClient.DoPROPFIND(ctx, collectionURL, 0, davxml.TagGetCTag, davxml.TagSyncToken, davxml.TagGetETag)
	})
	if err != nil {
		return "", err
	}

	for _, props := range resp.Resources {
		switch {
		case props.CTag != "":
			return props.CTag, nil
		case props.SyncToken != "":
			return props.SyncToken, nil
		case props.Etag != "":
			return props.Etag, nil
		}
	}
	return resp.SyncToken, nil
}

func (c *davClient) FreeBusyQuery(ctx context.Context, collectionURL string, start, end time.Time) (*Response, error) {
	resp, err := c.report(ctx, collectionURL, 1, davxml.BuildFreeBusyQuery(start, end), nil)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		ETag:       resp.ETag,
		Body:       resp.Body,
		URL:        collectionURL,
	}, nil
}
