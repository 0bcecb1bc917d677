package davclient

import (
	"context"
	"fmt"
	"net"

	"github.com/beevik/etree"

	"github.com/cyp0633/davmutate/internal/httpclient"
)

// PropfindFunc is a function type for mocking PROPFIND
type PropfindFunc func(url string, depth int, props ...string) (*httpclient.PropfindResponse, error)

// mockHTTPClient records requests and answers from canned responses
type mockHTTPClient struct {
	doPropfind PropfindFunc
	report     []*httpclient.Response
	get        map[string]*httpclient.Response
	put        []*httpclient.Response
	del        []*httpclient.Response

	puts    []httpclient.Precondition
	deletes []httpclient.Precondition
	reports []*etree.Document
}

func next(queue *[]*httpclient.Response) (*httpclient.Response, error) {
	if len(*queue) == 0 {
		return nil, fmt.Errorf("no canned response")
	}
	resp := (*queue)[0]
	if len(*queue) > 1 {
		*queue = (*queue)[1:]
	}
	return resp, nil
}

func (m *mockHTTPClient) DoPROPFIND(ctx context.Context, url string, depth int, props ...string) (*httpclient.PropfindResponse, error) {
	if m.doPropfind != nil {
		return m.doPropfind(url, depth, props...)
	}
	return nil, &httpclient.StatusError{Method: "PROPFIND", URL: url, StatusCode: 404}
}

func (m *mockHTTPClient) DoREPORT(ctx context.Context, url string, depth int, body *etree.Document) (*httpclient.Response, error) {
	m.reports = append(m.reports, body)
	return next(&m.report)
}

func (m *mockHTTPClient) DoGET(ctx context.Context, url string) (*httpclient.Response, error) {
	if resp, ok := m.get[url]; ok {
		return resp, nil
	}
	return &httpclient.Response{StatusCode: 404}, nil
}

func (m *mockHTTPClient) DoPUT(ctx context.Context, url string, pre httpclient.Precondition, contentType string, data []byte) (*httpclient.Response, error) {
	m.puts = append(m.puts, pre)
	return next(&m.put)
}

func (m *mockHTTPClient) DoDELETE(ctx context.Context, url string, pre httpclient.Precondition) (*httpclient.Response, error) {
	m.deletes = append(m.deletes, pre)
	return next(&m.del)
}

// mockResolver implements a mock DNS resolver for testing
type mockResolver struct {
	srvRecords map[string][]*net.SRV
	txtRecords map[string][]string
}

func (r *mockResolver) LookupSRV(ctx context.Context, service, proto, name string) (cname string, addrs []*net.SRV, err error) {
	addrs, ok := r.srvRecords[name]
	if !ok {
		return "", nil, fmt.Errorf("no SRV records for %s", name)
	}
	return "", addrs, nil
}

func (r *mockResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return r.txtRecords[name], nil
}

const testEvent = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\nBEGIN:VEVENT\r\nUID:evt-1\r\nDTSTAMP:20240101T000000Z\r\nDTSTART:20240101T090000Z\r\nSUMMARY:Standup\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

const testCard = "BEGIN:VCARD\r\nVERSION:3.0\r\nUID:card-1\r\nFN:Ada Lovelace\r\nEND:VCARD\r\n"
