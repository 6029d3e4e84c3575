// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"slices"

	"github.com/pkg/errors"
)

// Chain is a prioritized list of archives, the way the game layers mod
// packages over its own. Later archives override earlier ones.
type Chain struct {
	readers []*Reader
	owned   bool
	keyMap  map[ResourceKey]int // key -> index of the winning reader
	order   []ResourceKey
	closed  bool
}

// OpenChain opens archives in order of increasing priority. The last path
// has the highest priority. Closing the chain closes the readers.
func OpenChain(paths []string, opts ...ReaderOption) (*Chain, error) {
	readers := make([]*Reader, 0, len(paths))
	for _, path := range paths {
		r, err := Open(path, opts...)
		if err != nil {
			for _, opened := range readers {
				_ = opened.Close()
			}
			return nil, err
		}
		readers = append(readers, r)
	}

	c := NewChain(readers...)
	c.owned = true
	return c, nil
}

// NewChain layers already-open readers, lowest priority first. The caller
// keeps ownership of the readers.
func NewChain(readers ...*Reader) *Chain {
	c := &Chain{readers: readers}
	c.rebuildKeyMap()
	return c
}

// rebuildKeyMap records, for every key, the highest-priority reader holding
// it. Keys are ordered by first appearance, lowest priority first.
func (c *Chain) rebuildKeyMap() {
	c.keyMap = make(map[ResourceKey]int)
	c.order = c.order[:0]
	for i, r := range c.readers {
		for key := range r.Iterate() {
			if _, seen := c.keyMap[key]; !seen {
				c.order = append(c.order, key)
			}
			c.keyMap[key] = i
		}
	}
}

// Len returns the number of archives in the chain.
func (c *Chain) Len() int {
	return len(c.readers)
}

// Readers returns the archives, lowest priority first.
func (c *Chain) Readers() []*Reader {
	return slices.Clone(c.readers)
}

// Has reports whether any archive holds key.
func (c *Chain) Has(key ResourceKey) bool {
	_, ok := c.keyMap[key]
	return ok && !c.closed
}

// Source returns the index of the archive whose copy of key wins.
func (c *Chain) Source(key ResourceKey) (int, bool) {
	if c.closed {
		return 0, false
	}
	i, ok := c.keyMap[key]
	return i, ok
}

// Keys returns the union of keys, in order of first appearance.
func (c *Chain) Keys() ([]ResourceKey, error) {
	if c.closed {
		return nil, ErrUseAfterClose
	}
	return slices.Clone(c.order), nil
}

// Lookup returns the highest-priority copy of key. A missing key is not an
// error.
func (c *Chain) Lookup(key ResourceKey) ([]byte, bool, error) {
	if c.closed {
		return nil, false, ErrUseAfterClose
	}
	i, ok := c.keyMap[key]
	if !ok {
		return nil, false, nil
	}
	return c.readers[i].Lookup(key)
}

// Extract returns the highest-priority copy of key, or ErrNotFound.
func (c *Chain) Extract(key ResourceKey) ([]byte, error) {
	if c.closed {
		return nil, ErrUseAfterClose
	}
	i, ok := c.keyMap[key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "key %s not in chain", key)
	}
	return c.readers[i].Extract(key)
}

// ReadStored returns the highest-priority copy of key as stored.
func (c *Chain) ReadStored(key ResourceKey) (Payload, error) {
	if c.closed {
		return Payload{}, ErrUseAfterClose
	}
	i, ok := c.keyMap[key]
	if !ok {
		return Payload{}, errors.Wrapf(ErrNotFound, "key %s not in chain", key)
	}
	return c.readers[i].ReadStored(key)
}

// Close closes the archives if the chain opened them.
func (c *Chain) Close() error {
	if c.closed {
		return ErrUseAfterClose
	}
	c.closed = true
	if !c.owned {
		return nil
	}
	var firstErr error
	for _, r := range c.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
