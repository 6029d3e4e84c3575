// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"strconv"

	"github.com/pkg/errors"
)

// maxAllocAttempts bounds how many candidate names Next hashes before it
// gives up. Only a hash with a tiny output range can exhaust it.
const maxAllocAttempts = 1 << 16

// NameAllocator hands out synthetic keys for resources that have no
// meaningful name. Within one session it never issues an instance ID that
// was issued before or appears in a registered key.
type NameAllocator struct {
	hash      HashFunc
	counter   uint64
	used      map[ResourceKey]struct{}
	instances map[uint32]struct{}
}

// NewNameAllocator creates an allocator that derives instance IDs with hash.
// A nil hash selects DefaultHash.
func NewNameAllocator(hash HashFunc) *NameAllocator {
	if hash == nil {
		hash = DefaultHash
	}
	return &NameAllocator{
		hash:      hash,
		used:      make(map[ResourceKey]struct{}),
		instances: make(map[uint32]struct{}),
	}
}

// Next returns a fresh key whose instance ID is the hash of prefix followed by
// an increasing counter. Group and type are left zero for the caller to set,
// so the instance ID alone is checked against every known key. It fails with
// ErrDuplicateKey when the hash keeps producing taken IDs.
func (a *NameAllocator) Next(prefix string) (ResourceKey, error) {
	for range maxAllocAttempts {
		name := prefix + strconv.FormatUint(a.counter, 10)
		a.counter++

		id := a.hash(name)
		if _, taken := a.instances[id]; taken {
			continue
		}
		key := ResourceKey{InstanceID: id}
		a.claim(key)
		return key, nil
	}
	return ResourceKey{}, errors.Wrapf(ErrDuplicateKey,
		"no free instance id for prefix %q after %d names", prefix, maxAllocAttempts)
}

// Register records a caller-chosen key. It fails with ErrDuplicateKey if the
// key was already issued or registered.
func (a *NameAllocator) Register(key ResourceKey) error {
	if _, taken := a.used[key]; taken {
		return errors.Wrapf(ErrDuplicateKey, "register %s", key)
	}
	a.claim(key)
	return nil
}

// Contains reports whether key was issued or registered.
func (a *NameAllocator) Contains(key ResourceKey) bool {
	_, ok := a.used[key]
	return ok
}

// claim marks key and its instance ID as used without complaining about keys
// this allocator issued itself.
func (a *NameAllocator) claim(key ResourceKey) {
	a.used[key] = struct{}{}
	a.instances[key.InstanceID] = struct{}{}
}
