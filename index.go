// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"iter"

	"github.com/pkg/errors"
)

// Index is the in-memory table of an archive's entries. It preserves
// insertion order, which is also the order records are serialized in.
type Index struct {
	entries []IndexEntry
	byKey   map[ResourceKey]int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{byKey: make(map[ResourceKey]int)}
}

// newIndexFrom builds an index from decoded records, rejecting duplicate keys.
func newIndexFrom(entries []IndexEntry) (*Index, error) {
	idx := &Index{
		entries: make([]IndexEntry, 0, len(entries)),
		byKey:   make(map[ResourceKey]int, len(entries)),
	}
	for _, e := range entries {
		if err := idx.Add(e); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Add appends an entry. It fails with ErrDuplicateKey if the key is present.
func (x *Index) Add(e IndexEntry) error {
	if _, ok := x.byKey[e.Key]; ok {
		return errors.Wrapf(ErrDuplicateKey, "key %s", e.Key)
	}
	x.byKey[e.Key] = len(x.entries)
	x.entries = append(x.entries, e)
	return nil
}

// Get returns the entry for key.
func (x *Index) Get(key ResourceKey) (IndexEntry, bool) {
	i, ok := x.byKey[key]
	if !ok {
		return IndexEntry{}, false
	}
	return x.entries[i], true
}

// Has reports whether key is present.
func (x *Index) Has(key ResourceKey) bool {
	_, ok := x.byKey[key]
	return ok
}

// Len returns the number of entries.
func (x *Index) Len() int {
	return len(x.entries)
}

// Entries returns a copy of the entries in index order.
func (x *Index) Entries() []IndexEntry {
	out := make([]IndexEntry, len(x.entries))
	copy(out, x.entries)
	return out
}

// All iterates the entries in index order. The sequence can be ranged over
// any number of times.
func (x *Index) All() iter.Seq2[ResourceKey, IndexEntry] {
	return func(yield func(ResourceKey, IndexEntry) bool) {
		for _, e := range x.entries {
			if !yield(e.Key, e) {
				return
			}
		}
	}
}

// MarshalBinary serializes the index in the layout the packer writes.
func (x *Index) MarshalBinary() ([]byte, error) {
	return encodeIndex(x.entries), nil
}
