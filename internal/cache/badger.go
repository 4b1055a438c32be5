package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerCache is a persistent Cache using Badger entry TTLs for expiry.
type BadgerCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadger opens a Badger-backed cache at path. An empty path opens an
// in-memory store.
func OpenBadger(path string, ttl time.Duration, logger *slog.Logger) (*BadgerCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	return &BadgerCache{db: db, ttl: ttl, logger: logger}, nil
}

// Lookup implements Cache. Read errors are logged and reported as misses.
func (c *BadgerCache) Lookup(_ context.Context, key string) (json.RawMessage, bool) {
	var payload []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("cache lookup failed", "key", key, "error", err)
		}
		return nil, false
	}
	return json.RawMessage(payload), true
}

// Store implements Cache. Write errors are logged and dropped.
func (c *BadgerCache) Store(_ context.Context, key string, payload json.RawMessage) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), payload).WithTTL(c.ttl))
	})
	if err != nil {
		c.logger.Warn("cache store failed", "key", key, "error", err)
	}
}

// Close closes the underlying database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
