// Package labelcache caches the last successfully probed NexusLabel per
// child URI in a small embedded badger/v4 store, so the Control Plane API's
// labels route can short-circuit update_child_labels' re-probing of
// unchanged, still-open children.
package labelcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Entry is one cached label observation.
type Entry struct {
	URI      string    `json:"uri"`
	Label    string    `json:"label"`
	ProbedAt time.Time `json:"probed_at"`
}

// Cache wraps a badger.DB keyed by child URI.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (creating if absent) a badger store rooted at dir. ttl is how
// long a cached entry is considered fresh; a ttl of 0 disables staleness
// checks (every cached entry is considered fresh until explicitly replaced).
func Open(dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("labelcache: open %q: %w", dir, err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close releases the underlying badger store.
func (c *Cache) Close() error {
	return c.db.Close()
}

func key(uri string) []byte {
	return []byte("label/" + uri)
}

// Put records the most recently probed label for uri.
func (c *Cache) Put(_ context.Context, uri, label string) error {
	entry := Entry{URI: uri, Label: label, ProbedAt: time.Now()}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("labelcache: encode %s: %w", uri, err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(uri), body)
	})
}

// Get returns the cached entry for uri, and whether it is present and still
// within ttl of now.
func (c *Cache) Get(_ context.Context, uri string) (Entry, bool, error) {
	var entry Entry
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(uri))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if decErr := json.Unmarshal(val, &entry); decErr != nil {
				return decErr
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("labelcache: get %s: %w", uri, err)
	}
	if !found {
		return Entry{}, false, nil
	}
	if c.ttl > 0 && time.Since(entry.ProbedAt) > c.ttl {
		return entry, false, nil
	}
	return entry, true, nil
}

// Invalidate drops the cached entry for uri, e.g. after an offline/fault
// transition makes the last-probed label no longer trustworthy.
func (c *Cache) Invalidate(_ context.Context, uri string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key(uri))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// AllFresh reports whether every uri has a fresh cache entry and all of
// their labels are equal, returning the common label when true. Consulted
// by update_child_labels to skip a full parallel probe.
func (c *Cache) AllFresh(ctx context.Context, uris []string) (label string, ok bool) {
	if len(uris) == 0 {
		return "", false
	}
	var common string
	for i, uri := range uris {
		entry, fresh, err := c.Get(ctx, uri)
		if err != nil || !fresh {
			return "", false
		}
		if i == 0 {
			common = entry.Label
		} else if entry.Label != common {
			return "", false
		}
	}
	return common, true
}
