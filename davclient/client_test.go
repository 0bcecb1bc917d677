package davclient

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/davmutate/errs"
	"github.com/cyp0633/davmutate/internal/httpclient"
	"github.com/cyp0633/davmutate/retry"
)

func fastRetry(attempts int) *retry.Executor {
	return retry.NewExecutor(retry.Config{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, AttemptTimeout: time.Second}, nil)
}

func TestCreateResource(t *testing.T) {
	tests := []struct {
		name         string
		put          []*httpclient.Response
		wantStatus   int
		wantETag     string
		wantAttempts int
		wantErr      bool
	}{
		{
			name:         "created with etag",
			put:          []*httpclient.Response{{StatusCode: 201, ETag: `"e1"`}},
			wantStatus:   201,
			wantETag:     `"e1"`,
			wantAttempts: 1,
		},
		{
			name:         "precondition failure is returned, not retried",
			put:          []*httpclient.Response{{StatusCode: 412}},
			wantStatus:   412,
			wantAttempts: 1,
		},
		{
			name:         "transient failure then success",
			put:          []*httpclient.Response{{StatusCode: 503}, {StatusCode: 201}},
			wantStatus:   201,
			wantAttempts: 2,
		},
		{
			name:    "budget exhausted",
			put:     []*httpclient.Response{{StatusCode: 502}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockHTTPClient{put: tt.put}
			client := NewDAVClient(mock, Options{Executor: fastRetry(3)})

			resp, err := client.CreateResource(context.Background(), "http://dav.example.com/cal/work", "evt-1.ics", "text/calendar", []byte(testEvent))
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrNetwork)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantETag, resp.ETag)
			assert.Equal(t, tt.wantAttempts, resp.Attempts)
			assert.Equal(t, "http://dav.example.com/cal/work/evt-1.ics", resp.URL)
			for _, pre := range mock.puts {
				assert.True(t, pre.IfNoneMatch, "create must never overwrite")
				assert.Empty(t, pre.IfMatch)
			}
		})
	}
}

func TestUpdateAndDeleteSendIfMatch(t *testing.T) {
	mock := &mockHTTPClient{
		put: []*httpclient.Response{{StatusCode: 204, ETag: `"e2"`}},
		del: []*httpclient.Response{{StatusCode: 204}},
	}
	client := NewDAVClient(mock, Options{})
	handle := ResourceHandle{UID: "evt-1", URL: "/cal/work/evt-1.ics", ETag: `"e1"`}

	resp, err := client.UpdateResource(context.Background(), handle, "text/calendar", []byte(testEvent))
	require.NoError(t, err)
	assert.Equal(t, `"e2"`, resp.ETag)
	require.Len(t, mock.puts, 1)
	assert.Equal(t, `"e1"`, mock.puts[0].IfMatch)
	assert.False(t, mock.puts[0].IfNoneMatch)

	_, err = client.DeleteResource(context.Background(), handle)
	require.NoError(t, err)
	require.Len(t, mock.deletes, 1)
	assert.Equal(t, `"e1"`, mock.deletes[0].IfMatch)

	_, err = client.UpdateResource(context.Background(), ResourceHandle{URL: "/x.ics"}, "text/calendar", nil)
	assert.Error(t, err, "writes without a token are refused")
}

func TestFetchResource(t *testing.T) {
	mock := &mockHTTPClient{get: map[string]*httpclient.Response{
		"/cal/work/evt-1.ics": {StatusCode: 200, ETag: `"e1"`, Body: []byte(testEvent)},
		"/card/ada.vcf":       {StatusCode: 200, ETag: `"c1"`, Body: []byte(testCard)},
	}}
	client := NewDAVClient(mock, Options{})

	h, err := client.FetchResource(context.Background(), "/cal/work/evt-1.ics")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", h.UID)
	assert.Equal(t, `"e1"`, h.ETag)
	assert.Equal(t, testEvent, h.Data)

	c, err := client.FetchResource(context.Background(), "/card/ada.vcf")
	require.NoError(t, err)
	assert.Equal(t, "card-1", c.UID)

	_, err = client.FetchResource(context.Background(), "/cal/work/missing.ics")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestFetchResources(t *testing.T) {
	body := `<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
<D:response><D:href>/cal/work/evt-1.ics</D:href><D:propstat><D:prop>
<D:getetag>"e1"</D:getetag><C:calendar-data>` + testEvent + `</C:calendar-data>
</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>
<D:response><D:href>/cal/work/broken.ics</D:href><D:propstat><D:prop>
<D:getetag>"e9"</D:getetag><C:calendar-data>garbage</C:calendar-data>
</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response>
</D:multistatus>`
	mock := &mockHTTPClient{report: []*httpclient.Response{{StatusCode: 207, Body: []byte(body)}}}
	client := NewDAVClient(mock, Options{})

	handles, err := client.FetchResources(context.Background(), "http://dav.example.com/cal/work/", Query{UID: "evt-1"})
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "evt-1", handles[0].UID)
	assert.Equal(t, "http://dav.example.com/cal/work/evt-1.ics", handles[0].URL)
	assert.Equal(t, `"e1"`, handles[0].ETag)

	require.Len(t, mock.reports, 1)
	assert.Equal(t, "calendar-query", mock.reports[0].Root().Tag)
}

func TestFetchResourcesUnexpectedStatus(t *testing.T) {
	mock := &mockHTTPClient{report: []*httpclient.Response{{StatusCode: 403}}}
	client := NewDAVClient(mock, Options{})
	_, err := client.FetchResources(context.Background(), "/card/", Query{Kind: KindAddressBook})
	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "addressbook-query", mock.reports[0].Root().Tag)
}

func TestCollectionToken(t *testing.T) {
	tests := []struct {
		name  string
		props httpclient.ResourceProps
		want  string
	}{
		{name: "ctag preferred", props: httpclient.ResourceProps{CTag: "c", SyncToken: "s", Etag: "e"}, want: "c"},
		{name: "sync token", props: httpclient.ResourceProps{SyncToken: "s", Etag: "e"}, want: "s"},
		{name: "etag", props: httpclient.ResourceProps{Etag: "e"}, want: "e"},
		{name: "none", props: httpclient.ResourceProps{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockHTTPClient{doPropfind: func(url string, depth int, props ...string) (*httpclient.PropfindResponse, error) {
				assert.Equal(t, 0, depth)
				return &httpclient.PropfindResponse{Resources: map[string]httpclient.ResourceProps{url: tt.props}}, nil
			}}
			token, err := NewDAVClient(mock, Options{}).CollectionToken(context.Background(), "/cal/work/")
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestFreeBusyQueryReturnsUnsupportedStatus(t *testing.T) {
	mock := &mockHTTPClient{report: []*httpclient.Response{{StatusCode: 501}}}
	resp, err := NewDAVClient(mock, Options{}).FreeBusyQuery(context.Background(), "/cal/work/", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 501, resp.StatusCode)
	assert.Equal(t, "free-busy-query", mock.reports[0].Root().Tag)
}

func TestDiscoverCollections(t *testing.T) {
	propfind := func(url string, depth int, props ...string) (*httpclient.PropfindResponse, error) {
		switch url {
		case "https://dav.example.com:8443/dav":
			return &httpclient.PropfindResponse{CurrentUserPrincipal: "/principals/alice/"}, nil
		case "https://dav.example.com:8443/principals/alice/":
			return &httpclient.PropfindResponse{
				CalendarHomeSet:    "/calendars/alice/",
				AddressbookHomeSet: "/addressbooks/alice/",
			}, nil
		case "https://dav.example.com:8443/calendars/alice/":
			return &httpclient.PropfindResponse{Resources: map[string]httpclient.ResourceProps{
				"/calendars/alice/":          {},
				"/calendars/alice/work/":     {IsCalendar: true, SupportsEvent: true, DisplayName: "Work", CanWrite: true},
				"/calendars/alice/holidays/": {IsCalendar: true, SupportsEvent: true, DisplayName: "Holidays"},
				"/calendars/alice/tasks/":    {IsCalendar: true, DisplayName: "Tasks"},
			}}, nil
		case "https://dav.example.com:8443/addressbooks/alice/":
			return &httpclient.PropfindResponse{Resources: map[string]httpclient.ResourceProps{
				"/addressbooks/alice/contacts/": {IsAddressBook: true, DisplayName: "Contacts", CanWrite: true},
			}}, nil
		}
		return nil, &httpclient.StatusError{Method: "PROPFIND", URL: url, StatusCode: 404}
	}
	resolver := &mockResolver{
		srvRecords: map[string][]*net.SRV{
			"_caldavs._tcp.example.com":  {{Target: "dav.example.com", Port: 8443}},
			"_carddavs._tcp.example.com": {{Target: "dav.example.com", Port: 8443}},
		},
		txtRecords: map[string][]string{
			"_caldavs._tcp.example.com":  {"path=/dav"},
			"_carddavs._tcp.example.com": {"path=/dav"},
		},
	}
	client := NewDAVClient(&mockHTTPClient{doPropfind: propfind}, Options{ServerURL: "https://example.com", Resolver: resolver})

	calendars, err := client.DiscoverCollections(context.Background(), KindCalendar)
	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.Equal(t, "https://dav.example.com:8443/calendars/alice/holidays/", calendars[0].URL)
	assert.True(t, calendars[0].ReadOnly)
	assert.Equal(t, "Work", calendars[1].Name)
	assert.False(t, calendars[1].ReadOnly)

	books, err := client.DiscoverCollections(context.Background(), KindAddressBook)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, KindAddressBook, books[0].Kind)
	assert.Equal(t, "https://dav.example.com:8443/addressbooks/alice/contacts/", books[0].URL)
}

func TestDiscoverCollectionsErrors(t *testing.T) {
	client := NewDAVClient(&mockHTTPClient{}, Options{ServerURL: "not-a-url", Resolver: &mockResolver{}})
	_, err := client.DiscoverCollections(context.Background(), KindCalendar)
	assert.ErrorContains(t, err, "invalid server URL")

	client = NewDAVClient(&mockHTTPClient{}, Options{ServerURL: "https://example.com", Resolver: &mockResolver{}})
	_, err = client.DiscoverCollections(context.Background(), KindCalendar)
	assert.ErrorContains(t, err, "current-user-principal")

	_, err = client.DiscoverCollections(context.Background(), Kind("tasks"))
	assert.Error(t, err)
}

func TestParseUID(t *testing.T) {
	uid, err := ParseUID([]byte(testEvent))
	require.NoError(t, err)
	assert.Equal(t, "evt-1", uid)

	uid, err = ParseUID([]byte(testCard))
	require.NoError(t, err)
	assert.Equal(t, "card-1", uid)

	_, err = ParseUID([]byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:x\r\nEND:VCALENDAR\r\n"))
	assert.Error(t, err)
	assert.True(t, IsContact([]byte("  begin:vcard\r\n")))
}
