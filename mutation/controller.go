// Package mutation writes events and contacts with optimistic concurrency. Every write carries a
// version precondition, every response is classified into an Outcome, and every write that
// reached the server invalidates the collection cache.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cyp0633/davmutate/davclient"
	"github.com/cyp0633/davmutate/errs"
)

// Controller attaches ETag preconditions to writes and interprets the answers.
type Controller struct {
	client    davclient.DAVClient
	conflicts *ConflictResolver
	logger    *slog.Logger
}

// NewController creates a controller over client.
func NewController(client davclient.DAVClient, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{client: client, conflicts: NewConflictResolver(logger), logger: logger}
}

// Create stores a new resource with "must not exist". A precondition failure on a retried
// attempt is checked against the stored record: if it carries uid, the earlier attempt reached
// the server and the create succeeded.
func (c *Controller) Create(ctx context.Context, collectionURL, filename, contentType, uid string, data []byte) (*davclient.ResourceHandle, error) {
	resp, err := c.client.CreateResource(ctx, collectionURL, filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	out := Classify(resp)
	c.logger.Debug("create answered", "url", out.URL, "outcome", out.Kind, "attempts", out.Attempts)

	switch out.Kind {
	case SuccessWithToken:
		return &davclient.ResourceHandle{UID: uid, URL: out.URL, ETag: out.ETag, Data: string(data)}, nil
	case SuccessWithoutToken:
		return c.refetchAfterWrite(ctx, out.URL, uid, data), nil
	case Conflict:
		if out.Attempts > 1 {
			if stored, err := c.client.FetchResource(ctx, out.URL); err == nil && stored.UID == uid {
				c.logger.Info("create already applied by an earlier attempt", "url", out.URL, "uid", uid)
				return stored, nil
			}
		}
		return nil, c.conflicts.Resolve("create", errs.ReasonDuplicate, out.URL, "")
	default:
		return nil, &FailureError{Op: "create", URL: out.URL, StatusCode: out.StatusCode}
	}
}

// EnsureToken returns handle unchanged when it carries a version token. Otherwise it re-fetches
// the resource once; the returned handle then holds the server's current text.
func (c *Controller) EnsureToken(ctx context.Context, handle davclient.ResourceHandle) (davclient.ResourceHandle, error) {
	if handle.HasToken() {
		return handle, nil
	}
	c.logger.Debug("handle has no version token, re-fetching", "url", handle.URL)
	fresh, err := c.client.FetchResource(ctx, handle.URL)
	if errors.Is(err, davclient.ErrResourceNotFound) {
		return davclient.ResourceHandle{}, &errs.NotFoundError{UID: handle.UID}
	}
	if err != nil {
		return davclient.ResourceHandle{}, fmt.Errorf("re-fetch %s: %w", handle.URL, err)
	}
	if !fresh.HasToken() {
		return davclient.ResourceHandle{}, c.conflicts.Resolve("re-fetch", errs.ReasonMissingToken, handle.URL, "")
	}
	return *fresh, nil
}

// Update replaces the resource guarded by "must match handle.ETag". base is the handle the new
// data was derived from.
func (c *Controller) Update(ctx context.Context, base davclient.ResourceHandle, contentType string, data []byte) (*davclient.ResourceHandle, error) {
	handle, err := c.EnsureToken(ctx, base)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, c.conflicts.Resolve("update", errs.ReasonGone, base.URL, base.ETag)
	}
	if err != nil {
		return nil, err
	}
	if !base.HasToken() && !sameText(handle.Data, base.Data) {
		// the text the change was computed from is no longer current
		return nil, c.conflicts.Resolve("update", errs.ReasonStale, base.URL, "")
	}

	resp, err := c.client.UpdateResource(ctx, handle, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", handle.URL, err)
	}
	out := Classify(resp)
	c.logger.Debug("update answered", "url", handle.URL, "outcome", out.Kind, "attempts", out.Attempts)

	switch out.Kind {
	case SuccessWithToken:
		return &davclient.ResourceHandle{UID: handle.UID, URL: handle.URL, ETag: out.ETag, Data: string(data)}, nil
	case SuccessWithoutToken:
		return c.refetchAfterWrite(ctx, handle.URL, handle.UID, data), nil
	case Conflict:
		reason := errs.ReasonStale
		if _, err := c.client.FetchResource(ctx, handle.URL); errors.Is(err, davclient.ErrResourceNotFound) {
			reason = errs.ReasonGone
		}
		return nil, c.conflicts.Resolve("update", reason, handle.URL, handle.ETag)
	case NotFound:
		return nil, c.conflicts.Resolve("update", errs.ReasonGone, handle.URL, handle.ETag)
	default:
		return nil, &FailureError{Op: "update", URL: handle.URL, StatusCode: out.StatusCode}
	}
}

// Delete removes the resource guarded by "must match handle.ETag". A resource that is already
// gone counts as deleted.
func (c *Controller) Delete(ctx context.Context, base davclient.ResourceHandle) error {
	handle, err := c.EnsureToken(ctx, base)
	if errors.Is(err, errs.ErrNotFound) {
		c.logger.Info("resource already absent", "url", base.URL)
		return nil
	}
	if err != nil {
		return err
	}

	resp, err := c.client.DeleteResource(ctx, handle)
	if err != nil {
		return fmt.Errorf("delete %s: %w", handle.URL, err)
	}
	out := Classify(resp)
	c.logger.Debug("delete answered", "url", handle.URL, "outcome", out.Kind, "attempts", out.Attempts)

	switch out.Kind {
	case SuccessWithToken, SuccessWithoutToken:
		return nil
	case NotFound:
		c.logger.Info("resource already absent", "url", handle.URL)
		return nil
	case Conflict:
		if out.Attempts > 1 {
			// an earlier attempt may have been applied; a resource that is gone now was ours to delete
			if _, err := c.client.FetchResource(ctx, handle.URL); errors.Is(err, davclient.ErrResourceNotFound) {
				return nil
			}
		}
		return c.conflicts.Resolve("delete", errs.ReasonStale, handle.URL, handle.ETag)
	default:
		return &FailureError{Op: "delete", URL: handle.URL, StatusCode: out.StatusCode}
	}
}

// refetchAfterWrite reads back a resource whose write returned no token. The server may have
// rewritten it, so its text wins over what was sent. When the read fails the write still
// stands, and the handle is returned without a token.
func (c *Controller) refetchAfterWrite(ctx context.Context, resourceURL, uid string, sent []byte) *davclient.ResourceHandle {
	fresh, err := c.client.FetchResource(ctx, resourceURL)
	if err != nil {
		c.logger.Warn("re-fetch after write failed", "url", resourceURL, "error", err)
		return &davclient.ResourceHandle{UID: uid, URL: resourceURL, Data: string(sent)}
	}
	return fresh
}

// sameText compares record texts ignoring line ending differences between transports.
func sameText(a, b string) bool {
	return strings.ReplaceAll(a, "\r\n", "\n") == strings.ReplaceAll(b, "\r\n", "\n")
}
