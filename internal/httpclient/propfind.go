package httpclient

import (
	"context"
	"fmt"
	"net/http"

	davxml "github.com/cyp0633/davmutate/internal/xml"
)

// PropfindResponse summarizes a PROPFIND multistatus.
type PropfindResponse struct {
	CurrentUserPrincipal string
	CalendarHomeSet      string
	AddressbookHomeSet   string
	SyncToken            string
	Resources            map[string]ResourceProps
}

// ResourceProps holds the properties of one href.
type ResourceProps struct {
	IsCalendar    bool
	IsAddressBook bool
	SupportsEvent bool
	DisplayName   string
	Color         string
	CanWrite      bool
	Etag          string
	CTag          string
	SyncToken     string
}

// DoPROPFIND performs a PROPFIND request. A status other than 207 is a *StatusError.
func (c *httpClientWrapper) DoPROPFIND(ctx context.Context, urlStr string, depth int, props ...string) (*PropfindResponse, error) {
	c.logger.Debug("starting PROPFIND request",
		"url", urlStr,
		"depth", depth,
		"properties", props)

	body, err := davxml.BuildPropfind(props...).WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PROPFIND body: %w", err)
	}

	resp, err := c.do(ctx, "PROPFIND", urlStr, body, func(req *http.Request) {
		req.Header.Set("Depth", fmt.Sprintf("%d", depth))
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusMultiStatus {
		c.logger.Debug("unexpected response status",
			"status_code", resp.StatusCode)
		return nil, &StatusError{Method: "PROPFIND", URL: urlStr, StatusCode: resp.StatusCode}
	}

	ms, err := davxml.ParseMultistatus(resp.Body)
	if err != nil {
		c.logger.Debug("failed to parse XML response", "error", err)
		return nil, err
	}

	result := &PropfindResponse{
		SyncToken: ms.SyncToken,
		Resources: make(map[string]ResourceProps),
	}
	for _, r := range ms.Responses {
		if !r.OK() {
			continue
		}
		if href := r.PropHref(davxml.TagPrincipal); href != "" {
			result.CurrentUserPrincipal = href
		}
		if href := r.PropHref(davxml.TagCalendarHomeSet); href != "" {
			result.CalendarHomeSet = href
		}
		if href := r.PropHref(davxml.TagAddressbookHomeSet); href != "" {
			result.AddressbookHomeSet = href
		}
		result.Resources[r.Href] = ResourceProps{
			IsCalendar:    r.HasResourceType(davxml.TagCalendar),
			IsAddressBook: r.HasResourceType(davxml.TagAddressbook),
			SupportsEvent: r.SupportsComponent("VEVENT"),
			DisplayName:   r.PropText(davxml.TagDisplayName),
			Color:         r.PropText(davxml.TagCalendarColor),
			CanWrite:      r.CanWrite(),
			Etag:          r.PropText(davxml.TagGetETag),
			CTag:          r.PropText(davxml.TagGetCTag),
			SyncToken:     r.PropText(davxml.TagSyncToken),
		}
	}

	c.logger.Debug("PROPFIND request complete",
		"resources", len(result.Resources),
		"principal_url", result.CurrentUserPrincipal != "",
		"calendar_home_set", result.CalendarHomeSet != "",
		"addressbook_home_set", result.AddressbookHomeSet != "")
	return result, nil
}
