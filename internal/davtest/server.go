// Package davtest runs an in-memory CalDAV/CardDAV server for tests. It implements the subset of
// the protocol the client uses: discovery, collection listing, calendar and addressbook
// queries, and conditional PUT/DELETE with ETag preconditions. Faults can be injected per
// method.
package davtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/cyp0633/davmutate/davclient"
	"github.com/cyp0633/davmutate/internal/httpclient"
	"github.com/cyp0633/davmutate/retry"
)

const (
	PrincipalPath       = "/principals/user/"
	CalendarHomePath    = "/calendars/user/"
	AddressBookHomePath = "/addressbooks/user/"
)

// Request records what the server received.
type Request struct {
	Method      string
	Path        string
	IfMatch     string
	IfNoneMatch string
}

type collection struct {
	path     string
	name     string
	kind     davclient.Kind
	readOnly bool
	ctag     int
}

type resource struct {
	data []byte
	etag string
}

type fault struct {
	status int
	// drop stores the request and then closes the connection without answering
	drop bool
}

// Server is a fake DAV server. Exported knobs may be changed between requests.
type Server struct {
	URL string

	// OmitETag answers successful writes without an ETag header
	OmitETag bool
	// Normalize rewrites stored data the way some servers canonicalize records
	Normalize func(data []byte) []byte
	// FreeBusy answers free-busy-query reports. Nil answers 501.
	FreeBusy http.HandlerFunc

	srv    *httptest.Server
	logger *slog.Logger

	mu          sync.Mutex
	collections map[string]*collection
	resources   map[string]*resource
	etagSeq     int
	faults      map[string][]fault
	requests    []Request
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		collections: make(map[string]*collection),
		resources:   make(map[string]*resource),
		faults:      make(map[string][]fault),
	}
	s.srv = httptest.NewServer(s)
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)
	return s
}

// AddCalendar creates a calendar collection and returns its absolute URL.
func (s *Server) AddCalendar(slug, name string) string {
	return s.addCollection(CalendarHomePath+slug+"/", name, davclient.KindCalendar, false)
}

// AddReadOnlyCalendar creates a calendar the user may not write to.
func (s *Server) AddReadOnlyCalendar(slug, name string) string {
	return s.addCollection(CalendarHomePath+slug+"/", name, davclient.KindCalendar, true)
}

// AddAddressBook creates an address book collection and returns its absolute URL.
func (s *Server) AddAddressBook(slug, name string) string {
	return s.addCollection(AddressBookHomePath+slug+"/", name, davclient.KindAddressBook, false)
}

func (s *Server) addCollection(path, name string, kind davclient.Kind, readOnly bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[path] = &collection{path: path, name: name, kind: kind, readOnly: readOnly, ctag: 1}
	return s.URL + path
}

// Store writes a resource directly, as another client would, and returns its new ETag.
func (s *Server) Store(resourceURL string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.pathOf(resourceURL)
	etag := s.storeLocked(path, data)
	return etag
}

// Remove deletes a resource directly, as another client would.
func (s *Server) Remove(resourceURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.pathOf(resourceURL)
	delete(s.resources, path)
	if c := s.parentLocked(path); c != nil {
		c.ctag++
	}
}

// Resource returns the stored data and ETag of a resource.
func (s *Server) Resource(resourceURL string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[s.pathOf(resourceURL)]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), r.data...), r.etag, true
}

// Count returns the number of resources in a collection.
func (s *Server) Count(collectionURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.membersLocked(s.pathOf(collectionURL)))
}

// Fail makes the next n requests with method answer status.
func (s *Server) Fail(method string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.faults[method] = append(s.faults[method], fault{status: status})
	}
}

// DropResponse makes the next request with method take effect and then lose its response, the
// way a connection reset after the server committed a write looks to a client.
func (s *Server) DropResponse(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = append(s.faults[method], fault{drop: true})
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsFor filters Requests by method.
func (s *Server) RequestsFor(method string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// NewClient returns a DAV client talking to this server. A nil executor makes single attempts.
func (s *Server) NewClient(executor *retry.Executor) davclient.DAVClient {
	base, _ := url.Parse(s.URL)
	wrapper, _ := httpclient.NewHttpClientWrapper(s.srv.Client(), *base, s.logger)
	return davclient.NewDAVClient(wrapper, davclient.Options{
		ServerURL: s.URL,
		Executor:  executor,
		Resolver:  NoDNS{},
		Logger:    s.logger,
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:      r.Method,
		Path:        path,
		IfMatch:     r.Header.Get("If-Match"),
		IfNoneMatch: r.Header.Get("If-None-Match"),
	})
	var f *fault
	if queue := s.faults[r.Method]; len(queue) > 0 {
		f = &queue[0]
		s.faults[r.Method] = queue[1:]
	}
	s.mu.Unlock()

	if f != nil && !f.drop {
		http.Error(w, http.StatusText(f.status), f.status)
		return
	}

	rec := w
	if f != nil && f.drop {
		rec = httptest.NewRecorder()
	}

	switch r.Method {
	case "PROPFIND":
		s.handlePropfind(rec, r)
	case "REPORT":
		s.handleReport(rec, r)
	case http.MethodGet:
		s.handleGet(rec, r)
	case http.MethodPut:
		s.handlePut(rec, r)
	case http.MethodDelete:
		s.handleDelete(rec, r)
	default:
		http.Error(rec, "Method Not Allowed", http.StatusMethodNotAllowed)
	}

	if f != nil && f.drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "hijacking unsupported", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
	}
}

func (s *Server) pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	p, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		return u.Path
	}
	return p
}

func (s *Server) parentLocked(path string) *collection {
	i := strings.LastIndex(strings.TrimSuffix(path, "/"), "/")
	if i < 0 {
		return nil
	}
	return s.collections[path[:i+1]]
}

func (s *Server) membersLocked(collectionPath string) []string {
	var out []string
	for p := range s.resources {
		if strings.HasPrefix(p, collectionPath) && !strings.Contains(p[len(collectionPath):], "/") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Server) storeLocked(path string, data []byte) string {
	if s.Normalize != nil {
		data = s.Normalize(data)
	}
	s.etagSeq++
	etag := fmt.Sprintf(`"%d"`, s.etagSeq)
	s.resources[path] = &resource{data: append([]byte(nil), data...), etag: etag}
	if c := s.parentLocked(path); c != nil {
		c.ctag++
	}
	return etag
}

// NoDNS answers every lookup with "not found" so discovery goes straight to well-known URLs.
type NoDNS struct{}

func (NoDNS) LookupSRV(_ context.Context, _, _, name string) (string, []*net.SRV, error) {
	return "", nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (NoDNS) LookupTXT(_ context.Context, name string) ([]string, error) {
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}
