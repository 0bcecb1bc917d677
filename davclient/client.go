package davclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/cyp0633/davmutate/internal/httpclient"
	"github.com/cyp0633/davmutate/retry"
)

// Kind selects between calendar and address book collections.
type Kind string

const (
	KindCalendar    Kind = "calendar"
	KindAddressBook Kind = "addressbook"
)

// ErrResourceNotFound is returned by FetchResource when the server answers 404.
var ErrResourceNotFound = errors.New("davclient: resource not found")

// DAVClient is the wire collaborator used by the mutation, collection and availability layers.
// Writes return the raw status so the caller decides what a status means; reads return parsed
// handles.
type DAVClient interface {
	// CreateResource PUTs data to collectionURL/filename with If-None-Match: *.
	CreateResource(ctx context.Context, collectionURL, filename, contentType string, data []byte) (*Response, error)
	// UpdateResource PUTs data to handle.URL with If-Match: handle.ETag.
	UpdateResource(ctx context.Context, handle ResourceHandle, contentType string, data []byte) (*Response, error)
	// DeleteResource DELETEs handle.URL with If-Match: handle.ETag.
	DeleteResource(ctx context.Context, handle ResourceHandle) (*Response, error)
	// FetchResource GETs a single resource. A 404 is ErrResourceNotFound.
	FetchResource(ctx context.Context, resourceURL string) (*ResourceHandle, error)
	// FetchResources lists the resources of a collection matching q.
	FetchResources(ctx context.Context, collectionURL string, q Query) ([]ResourceHandle, error)
	// CollectionToken returns the collection version token, or "" when the server exposes none.
	CollectionToken(ctx context.Context, collectionURL string) (string, error)
	// FreeBusyQuery sends a free-busy-query REPORT and returns the raw answer.
	FreeBusyQuery(ctx context.Context, collectionURL string, start, end time.Time) (*Response, error)
	// DiscoverCollections finds the collections of the given kind for the current user.
	DiscoverCollections(ctx context.Context, kind Kind) ([]CollectionInfo, error)
}

// Response is the outcome of a write or REPORT as seen on the wire.
type Response struct {
	StatusCode int
	ETag       string
	Body       []byte
	// URL is the absolute URL of the target resource
	URL string
	// Attempts counts the wire attempts made, including retries
	Attempts int
}

// DNSResolver interface for mocking DNS lookups in tests
type DNSResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (cname string, addrs []*net.SRV, err error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Options configures a client. Zero values are usable.
type Options struct {
	// ServerURL is the user-facing server location, the starting point of discovery
	ServerURL string
	Executor  *retry.Executor
	Resolver  DNSResolver
	Logger    *slog.Logger
}

type davClient struct {
	httpClient httpclient.HttpClientWrapper
	serverURL  string
	executor   *retry.Executor
	resolver   DNSResolver
	logger     *slog.Logger
}

// NewDAVClient creates a new CalDAV/CardDAV client
func NewDAVClient(httpClient httpclient.HttpClientWrapper, opts Options) DAVClient {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	executor := opts.Executor
	if executor == nil {
		executor = retry.NewExecutor(retry.Config{MaxAttempts: 1}, logger)
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = &net.Resolver{}
	}
	return &davClient{
		httpClient: httpClient,
		serverURL:  opts.ServerURL,
		executor:   executor,
		resolver:   resolver,
		logger:     logger,
	}
}

// resolveAgainst turns a possibly relative href into an absolute URL using base
func resolveAgainst(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// joinResource appends filename to a collection URL
func joinResource(collectionURL, filename string) string {
	if !strings.HasSuffix(collectionURL, "/") {
		collectionURL += "/"
	}
	return collectionURL + url.PathEscape(filename)
}
