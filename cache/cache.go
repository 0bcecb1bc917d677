// Package cache keeps the last-seen contents of each collection keyed by the collection's
// version token. A mutation that succeeds invalidates the collection it touched, so the next
// read never serves pre-mutation contents.
package cache

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cyp0633/davmutate/davclient"
)

// Entry is the cached content of one collection.
type Entry struct {
	CollectionID string                     `json:"collection_id"`
	Token        string                     `json:"token"`
	Objects      []davclient.ResourceHandle `json:"objects"`
	FetchedAt    time.Time                  `json:"fetched_at"`
}

// Store persists entries. Implementations must be safe for concurrent use.
type Store interface {
	Get(collectionID string) (*Entry, error)
	Put(entry *Entry) error
	Delete(collectionID string) error
	Len() int
	Close() error
}

// Config holds configuration for the collection cache
type Config struct {
	// MaxAge bounds how long a matching token is trusted; zero trusts the token alone
	MaxAge time.Duration
}

// Stats reports cache activity
type Stats struct {
	Entries       int
	Hits          uint64
	Misses        uint64
	Invalidations uint64
}

// CollectionCache remembers the listing of each collection together with the token it was
// taken at.
type CollectionCache struct {
	store  Store
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time

	// mu makes the generation check and the store write of Set atomic with Invalidate
	mu          sync.Mutex
	generations map[string]uint64
	group       singleflight.Group

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// New creates a cache over store. A nil store means an in-memory one.
func New(store Store, cfg Config, logger *slog.Logger) *CollectionCache {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CollectionCache{
		store:       store,
		maxAge:      cfg.MaxAge,
		logger:      logger,
		now:         time.Now,
		generations: make(map[string]uint64),
	}
}

// IsFresh reports whether the cached entry was taken at currentToken. An empty token is never
// fresh.
func (c *CollectionCache) IsFresh(collectionID, currentToken string) bool {
	if currentToken == "" {
		return false
	}
	entry, err := c.store.Get(collectionID)
	if err != nil || entry == nil {
		return false
	}
	if entry.Token != currentToken {
		return false
	}
	if c.maxAge > 0 && c.now().Sub(entry.FetchedAt) > c.maxAge {
		return false
	}
	return true
}

// Get returns the cached entry, or nil when absent.
func (c *CollectionCache) Get(collectionID string) *Entry {
	entry, err := c.store.Get(collectionID)
	if err != nil {
		c.logger.Warn("cache read failed", "collection", collectionID, "error", err)
		return nil
	}
	return entry
}

// Set stores the contents of a collection at token. Contents without a token are not cached.
func (c *CollectionCache) Set(collectionID, token string, objects []davclient.ResourceHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(collectionID, token, objects)
}

func (c *CollectionCache) setLocked(collectionID, token string, objects []davclient.ResourceHandle) {
	if token == "" {
		_ = c.store.Delete(collectionID)
		return
	}
	entry := &Entry{
		CollectionID: collectionID,
		Token:        token,
		Objects:      append([]davclient.ResourceHandle(nil), objects...),
		FetchedAt:    c.now(),
	}
	if err := c.store.Put(entry); err != nil {
		c.logger.Warn("cache write failed", "collection", collectionID, "error", err)
	}
}

// Invalidate drops the entry of a collection. Loads that started before the call will not
// repopulate it.
func (c *CollectionCache) Invalidate(collectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[collectionID]++
	c.invalidations.Add(1)
	if err := c.store.Delete(collectionID); err != nil {
		c.logger.Warn("cache invalidation failed", "collection", collectionID, "error", err)
	}
	c.logger.Debug("cache invalidated", "collection", collectionID)
}

// Load returns the objects of a collection, fetching them only when the server token no longer
// matches the cached one. Concurrent loads of one collection share a single fetch.
func (c *CollectionCache) Load(
	ctx context.Context,
	collectionID string,
	token func(ctx context.Context) (string, error),
	fetch func(ctx context.Context) ([]davclient.ResourceHandle, error),
) ([]davclient.ResourceHandle, error) {
	current, err := token(ctx)
	if err != nil {
		return nil, err
	}
	if c.IsFresh(collectionID, current) {
		if entry := c.Get(collectionID); entry != nil && entry.Token == current {
			c.hits.Add(1)
			return append([]davclient.ResourceHandle(nil), entry.Objects...), nil
		}
	}
	c.misses.Add(1)

	// a load that starts after an invalidation never joins a fetch from before it
	c.mu.Lock()
	gen := c.generations[collectionID]
	c.mu.Unlock()
	key := collectionID + "\x00" + current + "\x00" + strconv.FormatUint(gen, 10)

	v, err, _ := c.group.Do(key, func() (any, error) {
		objects, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generations[collectionID] == gen {
			c.setLocked(collectionID, current, objects)
		} else {
			c.logger.Debug("discarding fetch that raced an invalidation", "collection", collectionID)
		}
		return objects, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]davclient.ResourceHandle(nil), v.([]davclient.ResourceHandle)...), nil
}

// Stats returns cache statistics
func (c *CollectionCache) Stats() Stats {
	return Stats{
		Entries:       c.store.Len(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

// Close releases the underlying store.
func (c *CollectionCache) Close() error {
	return c.store.Close()
}
