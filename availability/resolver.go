package availability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/emersion/go-ical"

	"github.com/cyp0633/davmutate/collection"
	"github.com/cyp0633/davmutate/davclient"
)

// unsupported lists the statuses a server uses to say it cannot run a free-busy report.
var unsupported = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusMethodNotAllowed,
	http.StatusUnsupportedMediaType,
	http.StatusUnprocessableEntity,
	http.StatusNotImplemented,
}

// Options configures a Resolver.
type Options struct {
	Expander Expander
	Logger   *slog.Logger
}

// Resolver computes busy periods, asking the server first and expanding events locally when it
// cannot answer.
type Resolver struct {
	client      davclient.DAVClient
	collections *collection.Resolver
	reader      *collection.Reader
	expander    Expander
	logger      *slog.Logger
}

// NewResolver creates a resolver over the calendar collections of collections.
func NewResolver(client davclient.DAVClient, collections *collection.Resolver, reader *collection.Reader, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		client:      client,
		collections: collections,
		reader:      reader,
		expander:    opts.Expander,
		logger:      logger,
	}
}

// Query returns the busy periods of rng in the hinted collection, or in every calendar when hint
// is empty. Each collection is asked for a server free-busy report first; when the server cannot
// answer, its busy time is computed from the events it holds. Missing server support never fails
// the query.
func (r *Resolver) Query(ctx context.Context, rng Range, hint string) (*Result, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	scope, err := r.collections.Scope(ctx, hint)
	if err != nil {
		return nil, err
	}

	result := &Result{Range: rng, Sources: make(map[string]Source, len(scope))}
	var periods []Period
	var fallback []davclient.CollectionInfo
	for _, info := range scope {
		server, err := r.serverPeriods(ctx, info.URL, rng)
		if err != nil {
			r.logger.Warn("server free-busy unavailable, computing locally", "collection", info.URL, "error", err)
			fallback = append(fallback, info)
			continue
		}
		result.Sources[info.URL] = SourceServer
		periods = append(periods, server...)
	}

	if len(fallback) > 0 {
		local, err := r.localPeriods(ctx, fallback, rng)
		if err != nil {
			return nil, err
		}
		for _, info := range fallback {
			result.Sources[info.URL] = SourceLocal
		}
		periods = append(periods, local...)
	}

	result.Periods = Merge(periods, rng)
	r.logger.Debug("availability computed", "start", rng.Start, "end", rng.End, "periods", len(result.Periods))
	return result, nil
}

// serverPeriods asks one collection for a free-busy report. Any error means the local fallback
// has to answer for the collection.
func (r *Resolver) serverPeriods(ctx context.Context, collectionURL string, rng Range) ([]Period, error) {
	resp, err := r.client.FreeBusyQuery(ctx, collectionURL, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	if slices.Contains(unsupported, resp.StatusCode) {
		return nil, fmt.Errorf("free-busy report not supported (status %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("free-busy report failed with status %d", resp.StatusCode)
	}
	return parseFreeBusy(resp.Body)
}

// localPeriods computes busy time from the events overlapping rng.
func (r *Resolver) localPeriods(ctx context.Context, collections []davclient.CollectionInfo, rng Range) ([]Period, error) {
	located, err := r.reader.ListRange(ctx, collections, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("read events for availability: %w", err)
	}

	var periods []Period
	for _, l := range located {
		cal, err := ical.NewDecoder(bytes.NewReader([]byte(l.Handle.Data))).Decode()
		if err != nil {
			r.logger.Warn("skipping unparseable event", "url", l.Handle.URL, "error", err)
			continue
		}
		occurrences, err := r.expander.Occurrences(cal, rng)
		if err != nil {
			r.logger.Warn("skipping event with invalid recurrence", "url", l.Handle.URL, "error", err)
			continue
		}
		for _, o := range occurrences {
			periods = append(periods, Period{Start: o.start, End: o.end, Status: o.status})
		}
	}
	return periods, nil
}
