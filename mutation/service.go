package mutation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/cyp0633/davmutate/cache"
	"github.com/cyp0633/davmutate/collection"
	"github.com/cyp0633/davmutate/davclient"
	"github.com/cyp0633/davmutate/errs"
	"github.com/cyp0633/davmutate/transform"
)

// Result is what a successful operation returns.
type Result struct {
	Handle     davclient.ResourceHandle
	Collection davclient.CollectionInfo
	Warnings   []errs.SchedulingSideEffectWarning
}

// Service creates, updates, deletes and reads records of one family. C is the creation input
// and P the patch type of its transformer.
type Service[C, P any] struct {
	transformer transform.Transformer[C, P]
	controller  *Controller
	resolver    *collection.Resolver
	reader      *collection.Reader
	cache       *cache.CollectionCache
	logger      *slog.Logger
}

// CalendarService creates, patches and deletes events.
type CalendarService = Service[transform.EventInput, transform.EventPatch]

// ContactService creates, patches and deletes contacts.
type ContactService = Service[transform.ContactInput, transform.ContactPatch]

// NewService wires a service. The resolver decides the collection kind.
func NewService[C, P any](
	transformer transform.Transformer[C, P],
	client davclient.DAVClient,
	c *cache.CollectionCache,
	resolver *collection.Resolver,
	logger *slog.Logger,
) *Service[C, P] {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service[C, P]{
		transformer: transformer,
		controller:  NewController(client, logger),
		resolver:    resolver,
		reader:      collection.NewReader(client, c, resolver.Kind(), logger),
		cache:       c,
		logger:      logger,
	}
}

// NewCalendarService wires the event service.
func NewCalendarService(client davclient.DAVClient, c *cache.CollectionCache, resolver *collection.Resolver, logger *slog.Logger) *CalendarService {
	return NewService[transform.EventInput, transform.EventPatch](transform.NewEventTransformer(nil), client, c, resolver, logger)
}

// NewContactService wires the contact service.
func NewContactService(client davclient.DAVClient, c *cache.CollectionCache, resolver *collection.Resolver, logger *slog.Logger) *ContactService {
	return NewService[transform.ContactInput, transform.ContactPatch](transform.NewContactTransformer(nil), client, c, resolver, logger)
}

// Reader exposes the read path the service uses.
func (s *Service[C, P]) Reader() *collection.Reader { return s.reader }

// Create builds a new record and stores it in the hinted collection, the configured default or
// the first writable collection.
func (s *Service[C, P]) Create(ctx context.Context, input C, hint string) (*Result, error) {
	rec, err := s.transformer.Build(input)
	if err != nil {
		return nil, err
	}
	target, err := s.resolver.Target(ctx, hint)
	if err != nil {
		return nil, err
	}

	handle, err := s.controller.Create(ctx, target.URL, rec.UID+s.transformer.Extension(), s.transformer.ContentType(), rec.UID, rec.Data)
	s.cache.Invalidate(target.URL)
	if err != nil {
		return nil, err
	}

	s.logger.Info("resource created", "uid", rec.UID, "collection", target.URL)
	return &Result{Handle: *handle, Collection: target, Warnings: rec.Warnings}, nil
}

// Update applies patch to the record with the given identifier.
func (s *Service[C, P]) Update(ctx context.Context, uid string, patch P, hint string) (*Result, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}

	found, err := s.locate(ctx, uid, hint)
	if err != nil {
		return nil, err
	}
	defer s.cache.Invalidate(found.Collection.URL)

	handle, err := s.controller.EnsureToken(ctx, found.Handle)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, s.controller.conflicts.Resolve("update", errs.ReasonGone, found.Handle.URL, "")
	}
	if err != nil {
		return nil, err
	}

	rec, err := s.transformer.Patch([]byte(handle.Data), patch)
	if err != nil {
		var integrity *errs.IntegrityError
		if errors.As(err, &integrity) && integrity.ResourceURL == "" {
			integrity.ResourceURL = handle.URL
		}
		return nil, err
	}

	updated, err := s.controller.Update(ctx, handle, s.transformer.ContentType(), rec.Data)
	if err != nil {
		return nil, err
	}
	if updated.UID == "" {
		updated.UID = uid
	}

	s.logger.Info("resource updated", "uid", uid, "url", updated.URL)
	return &Result{Handle: *updated, Collection: found.Collection, Warnings: rec.Warnings}, nil
}

// Delete removes the record with the given identifier.
func (s *Service[C, P]) Delete(ctx context.Context, uid, hint string) (*Result, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	found, err := s.locate(ctx, uid, hint)
	if err != nil {
		return nil, err
	}

	err = s.controller.Delete(ctx, found.Handle)
	s.cache.Invalidate(found.Collection.URL)
	if err != nil {
		return nil, err
	}

	s.logger.Info("resource deleted", "uid", uid, "url", found.Handle.URL)
	return &Result{Handle: found.Handle, Collection: found.Collection}, nil
}

// Get returns the current record with the given identifier.
func (s *Service[C, P]) Get(ctx context.Context, uid, hint string) (*Result, error) {
	if err := checkUID(uid); err != nil {
		return nil, err
	}
	found, err := s.locate(ctx, uid, hint)
	if err != nil {
		return nil, err
	}
	return &Result{Handle: found.Handle, Collection: found.Collection}, nil
}

func (s *Service[C, P]) locate(ctx context.Context, uid, hint string) (*collection.Located, error) {
	scope, err := s.resolver.Scope(ctx, hint)
	if err != nil {
		return nil, err
	}
	return s.reader.FindByUID(ctx, scope, uid)
}

func checkUID(uid string) error {
	if strings.TrimSpace(uid) == "" {
		return errs.Validation("uid", "is required")
	}
	return nil
}
