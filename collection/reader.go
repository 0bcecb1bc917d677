package collection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"

	"github.com/cyp0633/davmutate/cache"
	"github.com/cyp0633/davmutate/davclient"
	"github.com/cyp0633/davmutate/errs"
)

// fanOut bounds concurrent requests when reading several collections.
const fanOut = 4

// Located is a resource together with the collection that owns it.
type Located struct {
	Handle     davclient.ResourceHandle
	Collection davclient.CollectionInfo
}

// Reader reads resources, consulting the cache before the server.
type Reader struct {
	client davclient.DAVClient
	cache  *cache.CollectionCache
	kind   davclient.Kind
	logger *slog.Logger
}

// NewReader creates a reader for one collection kind.
func NewReader(client davclient.DAVClient, c *cache.CollectionCache, kind davclient.Kind, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{client: client, cache: c, kind: kind, logger: logger}
}

// List returns every resource of a collection. The server listing is fetched only when the
// collection token differs from the cached one.
func (r *Reader) List(ctx context.Context, collectionURL string) ([]davclient.ResourceHandle, error) {
	return r.cache.Load(ctx, collectionURL,
		func(ctx context.Context) (string, error) {
			return r.client.CollectionToken(ctx, collectionURL)
		},
		func(ctx context.Context) ([]davclient.ResourceHandle, error) {
			r.logger.Debug("fetching collection", "collection", collectionURL)
			return r.client.FetchResources(ctx, collectionURL, davclient.Query{Kind: r.kind})
		},
	)
}

// FindByUID scans the given collections concurrently. The first collection in order that holds
// the identifier wins. Read failures are reported only when no collection had a match.
func (r *Reader) FindByUID(ctx context.Context, collections []davclient.CollectionInfo, uid string) (*Located, error) {
	if uid == "" {
		return nil, errs.Validation("uid", "is required")
	}

	results := make([]mo.Result[*davclient.ResourceHandle], len(collections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for i, info := range collections {
		g.Go(func() error {
			handles, err := r.List(gctx, info.URL)
			if err != nil {
				results[i] = mo.Err[*davclient.ResourceHandle](err)
				return nil
			}
			for _, h := range handles {
				if h.UID == uid {
					results[i] = mo.Ok(&h)
					return nil
				}
			}
			results[i] = mo.Ok[*davclient.ResourceHandle](nil)
			return nil
		})
	}
	_ = g.Wait()

	var readErr error
	searched := make([]string, 0, len(collections))
	for i, res := range results {
		h, err := res.Get()
		if err != nil {
			r.logger.Warn("collection read failed during lookup", "collection", collections[i].URL, "error", err)
			readErr = errors.Join(readErr, err)
			continue
		}
		if h != nil {
			return &Located{Handle: *h, Collection: collections[i]}, nil
		}
		searched = append(searched, displayName(collections[i]))
	}
	if readErr != nil {
		return nil, readErr
	}
	return nil, &errs.NotFoundError{UID: uid, Collections: searched}
}

// ListRange fetches the resources overlapping [start, end) from every given collection. Range
// reads bypass the cache, which only holds full listings.
func (r *Reader) ListRange(ctx context.Context, collections []davclient.CollectionInfo, start, end time.Time) ([]Located, error) {
	if !end.After(start) {
		return nil, errs.Validation("end", "must be after start")
	}

	perCollection := make([][]davclient.ResourceHandle, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for i, info := range collections {
		g.Go(func() error {
			handles, err := r.client.FetchResources(gctx, info.URL, davclient.Query{Kind: r.kind, Start: start, End: end})
			if err != nil {
				return err
			}
			perCollection[i] = handles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Located
	for i, handles := range perCollection {
		for _, h := range handles {
			out = append(out, Located{Handle: h, Collection: collections[i]})
		}
	}
	return out, nil
}
