// Package cache implements the fingerprint response cache that sits in front
// of the reasoning service.
//
// Entries are keyed by endpoint, problem and a fingerprint of the user
// content, and expire after a uniform TTL. A lookup never returns an entry
// whose expiry is in the past.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultTTL is the lifetime of a cached response.
const DefaultTTL = time.Hour

// Cache stores upstream responses by fingerprint key. Implementations are
// safe for concurrent use and never surface backend errors to callers: a
// failing backend behaves like an empty cache.
type Cache interface {
	// Lookup returns the payload stored under key if present and unexpired.
	Lookup(ctx context.Context, key string) (json.RawMessage, bool)

	// Store records payload under key, replacing any existing entry.
	Store(ctx context.Context, key string, payload json.RawMessage)
}

// Clock returns the current time.
type Clock func() time.Time

// Observer is notified of cache traffic. It is typically a metrics recorder.
type Observer interface {
	CacheHit(endpoint string)
	CacheMiss(endpoint string)
	CacheStore(endpoint string)
}

// Instrumented wraps a Cache and reports hits, misses and stores to an
// Observer, labelled with the endpoint prefix of each key.
type Instrumented struct {
	next     Cache
	observer Observer
}

// NewInstrumented wraps next. A nil observer returns next unchanged.
func NewInstrumented(next Cache, observer Observer) Cache {
	if observer == nil {
		return next
	}
	return &Instrumented{next: next, observer: observer}
}

// Lookup implements Cache.
func (c *Instrumented) Lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	payload, ok := c.next.Lookup(ctx, key)
	if ok {
		c.observer.CacheHit(EndpointOf(key))
	} else {
		c.observer.CacheMiss(EndpointOf(key))
	}
	return payload, ok
}

// Store implements Cache.
func (c *Instrumented) Store(ctx context.Context, key string, payload json.RawMessage) {
	c.next.Store(ctx, key, payload)
	c.observer.CacheStore(EndpointOf(key))
}
