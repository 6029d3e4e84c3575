// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package cache keeps recently decoded resources in memory, for callers that
// look the same keys up repeatedly. Readers themselves never cache.
package cache

import (
	"sync"

	"github.com/hashicorp/golang-lru/arc/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	dbpf "github.com/sporemodder/go-dbpf"
)

// Source is anything that resolves keys to decoded bytes, such as a
// *dbpf.Reader or a *dbpf.Chain.
type Source interface {
	Lookup(key dbpf.ResourceKey) ([]byte, bool, error)
}

type store interface {
	Get(key dbpf.ResourceKey) ([]byte, bool)
	Len() int
	Purge()
}

type options struct {
	adaptive bool
}

type Option func(*options)

// WithARC selects an adaptive replacement cache instead of plain LRU. It
// holds up better when a large scan is mixed with repeated lookups.
func WithARC() Option {
	return func(o *options) {
		o.adaptive = true
	}
}

// Cache is safe for concurrent use. Calls into the source are serialized,
// since readers are not.
type Cache struct {
	srcMu sync.Mutex
	src   Source

	entries store
	add     func(dbpf.ResourceKey, []byte)

	statsMu sync.Mutex
	hits    uint64
	misses  uint64
}

// New wraps src with a cache of up to size resources.
func New(src Source, size int, opts ...Option) (*Cache, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache{src: src}
	if o.adaptive {
		entries, err := arc.NewARC[dbpf.ResourceKey, []byte](size)
		if err != nil {
			return nil, errors.Wrap(err, "create ARC cache")
		}
		c.entries = entries
		c.add = entries.Add
	} else {
		entries, err := lru.New[dbpf.ResourceKey, []byte](size)
		if err != nil {
			return nil, errors.Wrap(err, "create LRU cache")
		}
		c.entries = entries
		c.add = func(key dbpf.ResourceKey, data []byte) { entries.Add(key, data) }
	}
	return c, nil
}

// Lookup returns a copy of the bytes for key, reading through to the source
// on a miss. Absent keys are not cached.
func (c *Cache) Lookup(key dbpf.ResourceKey) ([]byte, bool, error) {
	if data, ok := c.entries.Get(key); ok {
		c.count(true)
		return clone(data), true, nil
	}
	c.count(false)

	c.srcMu.Lock()
	data, ok, err := c.src.Lookup(key)
	c.srcMu.Unlock()
	if err != nil || !ok {
		return nil, ok, err
	}

	c.add(key, data)
	return clone(data), true, nil
}

// Len returns the number of cached resources.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached resource.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Stats returns the hit and miss counts since the cache was created.
func (c *Cache) Stats() (hits, misses uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) count(hit bool) {
	c.statsMu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.statsMu.Unlock()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
