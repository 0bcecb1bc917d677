// Package collection is the forward-read path: it picks the collection an operation targets and
// reads resources through the collection cache.
package collection

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/cyp0633/davmutate/davclient"
	"github.com/cyp0633/davmutate/errs"
)

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Kind davclient.Kind
	// Default is used when the caller gives no hint. Same forms as a hint.
	Default string
	// ServerURL resolves path hints that do not match a discovered collection
	ServerURL string
	Logger    *slog.Logger
}

// Resolver turns a caller hint into concrete collections. Discovery runs once per Resolver.
type Resolver struct {
	client    davclient.DAVClient
	kind      davclient.Kind
	fallback  string
	serverURL string
	logger    *slog.Logger

	mu         sync.Mutex
	discovered []davclient.CollectionInfo
}

// NewResolver creates a resolver for one collection kind.
func NewResolver(client davclient.DAVClient, opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	kind := opts.Kind
	if kind == "" {
		kind = davclient.KindCalendar
	}
	return &Resolver{
		client:    client,
		kind:      kind,
		fallback:  strings.TrimSpace(opts.Default),
		serverURL: opts.ServerURL,
		logger:    logger,
	}
}

// Kind returns the collection kind this resolver serves.
func (r *Resolver) Kind() davclient.Kind { return r.kind }

// Collections returns the discovered collections, running discovery on first use. A failed
// discovery is not remembered.
func (r *Resolver) Collections(ctx context.Context) ([]davclient.CollectionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.discovered != nil {
		return append([]davclient.CollectionInfo(nil), r.discovered...), nil
	}
	found, err := r.client.DiscoverCollections(ctx, r.kind)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s collections: %w", r.kind, err)
	}
	r.discovered = append([]davclient.CollectionInfo{}, found...)
	r.logger.Info("collections discovered", "kind", r.kind, "count", len(found))
	return append([]davclient.CollectionInfo(nil), found...), nil
}

// Forget drops the discovery result so the next call discovers again.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.discovered = nil
	r.mu.Unlock()
}

// Target picks the single collection a create writes to: the hint, else the configured
// default, else the first discovered writable collection.
func (r *Resolver) Target(ctx context.Context, hint string) (davclient.CollectionInfo, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		hint = r.fallback
	}
	if hint != "" {
		info, err := r.lookup(ctx, hint)
		if err != nil {
			return davclient.CollectionInfo{}, err
		}
		if info.ReadOnly {
			return davclient.CollectionInfo{}, errs.Validation("collection", "%q is read-only", displayName(info))
		}
		return info, nil
	}

	all, err := r.Collections(ctx)
	if err != nil {
		return davclient.CollectionInfo{}, err
	}
	for _, info := range all {
		if !info.ReadOnly {
			return info, nil
		}
	}
	return davclient.CollectionInfo{}, errs.Validation("collection", "no writable %s was found on the server", r.kind)
}

// Scope lists the collections a lookup searches: only the hinted one when a hint is given,
// otherwise every discovered collection with the default first.
func (r *Resolver) Scope(ctx context.Context, hint string) ([]davclient.CollectionInfo, error) {
	if hint = strings.TrimSpace(hint); hint != "" {
		info, err := r.lookup(ctx, hint)
		if err != nil {
			return nil, err
		}
		return []davclient.CollectionInfo{info}, nil
	}

	all, err := r.Collections(ctx)
	if err != nil {
		return nil, err
	}
	if r.fallback == "" {
		return all, nil
	}
	def, err := r.lookup(ctx, r.fallback)
	if err != nil {
		return nil, err
	}
	scope := []davclient.CollectionInfo{def}
	for _, info := range all {
		if info.URL != def.URL {
			scope = append(scope, info)
		}
	}
	return scope, nil
}

// lookup matches a hint given as an absolute URL, a path or a display name.
func (r *Resolver) lookup(ctx context.Context, hint string) (davclient.CollectionInfo, error) {
	if u, err := url.Parse(hint); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		if info, ok := r.match(ctx, func(c davclient.CollectionInfo) bool { return sameURL(c.URL, hint) }); ok {
			return info, nil
		}
		return davclient.CollectionInfo{URL: ensureSlash(hint), Kind: r.kind}, nil
	}

	if strings.HasPrefix(hint, "/") {
		if info, ok := r.match(ctx, func(c davclient.CollectionInfo) bool { return samePath(c.URL, hint) }); ok {
			return info, nil
		}
		base, err := url.Parse(r.serverURL)
		if err != nil || base.Host == "" {
			return davclient.CollectionInfo{}, errs.Validation("collection", "cannot resolve path %q without a server URL", hint)
		}
		ref, err := url.Parse(hint)
		if err != nil {
			return davclient.CollectionInfo{}, errs.Validation("collection", "%q is not a valid path", hint)
		}
		return davclient.CollectionInfo{URL: ensureSlash(base.ResolveReference(ref).String()), Kind: r.kind}, nil
	}

	all, err := r.Collections(ctx)
	if err != nil {
		return davclient.CollectionInfo{}, err
	}
	for _, info := range all {
		if strings.EqualFold(strings.TrimSpace(info.Name), hint) {
			return info, nil
		}
	}
	names := make([]string, 0, len(all))
	for _, info := range all {
		names = append(names, displayName(info))
	}
	return davclient.CollectionInfo{}, errs.Validation("collection", "no %s named %q (available: %s)", r.kind, hint, strings.Join(names, ", "))
}

// match searches the discovered collections. Discovery failures are ignored here since an
// explicit URL or path is usable without them.
func (r *Resolver) match(ctx context.Context, pred func(davclient.CollectionInfo) bool) (davclient.CollectionInfo, bool) {
	all, err := r.Collections(ctx)
	if err != nil {
		r.logger.Debug("discovery unavailable while matching hint", "error", err)
		return davclient.CollectionInfo{}, false
	}
	for _, info := range all {
		if pred(info) {
			return info, true
		}
	}
	return davclient.CollectionInfo{}, false
}

func displayName(info davclient.CollectionInfo) string {
	if info.Name != "" {
		return info.Name
	}
	return info.URL
}

func ensureSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

func sameURL(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

func samePath(fullURL, path string) bool {
	u, err := url.Parse(fullURL)
	if err != nil {
		return false
	}
	return strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(path, "/")
}
