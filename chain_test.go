// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArchive packs resources to a file under dir.
func writeArchive(t testing.TB, dir, name string, resources []testResource) string {
	t.Helper()
	path := filepath.Join(dir, name)
	p, err := Create(path, WithPackerLogger(quietLogger()))
	require.NoError(t, err)
	for _, r := range resources {
		require.NoError(t, p.WriteResource(r.key, r.data, r.compress))
	}
	require.NoError(t, p.Finalize())
	require.NoError(t, p.Close())
	return path
}

func TestChainPriority(t *testing.T) {
	dir := t.TempDir()
	shared := NewResourceKey(1, 1, 1)
	baseOnly := NewResourceKey(1, 2, 1)
	modOnly := NewResourceKey(1, 3, 1)

	base := writeArchive(t, dir, "base.package", []testResource{
		{shared, []byte("base version"), false},
		{baseOnly, []byte("only in base"), false},
	})
	mod := writeArchive(t, dir, "mod.package", []testResource{
		{modOnly, []byte("only in mod"), true},
		{shared, []byte("mod version"), false},
	})

	chain, err := OpenChain([]string{base, mod}, WithReaderLogger(quietLogger()))
	require.NoError(t, err)
	defer chain.Close()

	assert.Equal(t, 2, chain.Len())

	data, ok, err := chain.Lookup(shared)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("mod version"), data)

	data, err = chain.Extract(baseOnly)
	require.NoError(t, err)
	assert.Equal(t, []byte("only in base"), data)

	src, ok := chain.Source(shared)
	assert.True(t, ok)
	assert.Equal(t, 1, src)
	src, ok = chain.Source(baseOnly)
	assert.True(t, ok)
	assert.Equal(t, 0, src)

	keys, err := chain.Keys()
	require.NoError(t, err)
	assert.Equal(t, []ResourceKey{shared, baseOnly, modOnly}, keys)

	stored, err := chain.ReadStored(shared)
	require.NoError(t, err)
	assert.Equal(t, []byte("mod version"), stored.Data)

	missing := NewResourceKey(7, 7, 7)
	assert.False(t, chain.Has(missing))
	_, ok, err = chain.Lookup(missing)
	assert.NoError(t, err)
	assert.False(t, ok)
	_, err = chain.Extract(missing)
	assert.True(t, IsNotFound(err))
	_, err = chain.ReadStored(missing)
	assert.True(t, IsNotFound(err))
}

// sourceLinear probes the readers from highest priority down, without the
// key map.
func (c *Chain) sourceLinear(key ResourceKey) (int, bool) {
	for i := len(c.readers) - 1; i >= 0; i-- {
		if c.readers[i].Has(key) {
			return i, true
		}
	}
	return 0, false
}

func TestChainLinearAgreesWithMap(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 4; i++ {
		var resources []testResource
		for j := 0; j < 10; j++ {
			if (i+j)%3 == 0 {
				continue
			}
			resources = append(resources, testResource{
				key:  NewResourceKey(0, uint32(j), 0),
				data: []byte(fmt.Sprintf("archive %d resource %d", i, j)),
			})
		}
		paths = append(paths, writeArchive(t, dir, fmt.Sprintf("archive_%d.package", i), resources))
	}

	chain, err := OpenChain(paths, WithReaderLogger(quietLogger()))
	require.NoError(t, err)
	defer chain.Close()

	for j := 0; j < 12; j++ {
		key := NewResourceKey(0, uint32(j), 0)
		want, wantOK := chain.sourceLinear(key)
		got, gotOK := chain.Source(key)
		assert.Equal(t, wantOK, gotOK, "key %s", key)
		assert.Equal(t, want, got, "key %s", key)
	}
}

func TestOpenChainFailureClosesOpened(t *testing.T) {
	dir := t.TempDir()
	good := writeArchive(t, dir, "good.package", threeResources())

	chain, err := OpenChain([]string{good, filepath.Join(dir, "missing.package")})
	assert.Nil(t, chain)
	assert.True(t, IsIOFailure(err))
}

func TestChainBorrowedReaders(t *testing.T) {
	r := openBytes(t, packResources(t, threeResources()))
	chain := NewChain(r)
	require.NoError(t, chain.Close())

	// The chain does not own r.
	assert.Equal(t, 3, r.Len())
	require.NoError(t, r.Close())

	_, _, err := chain.Lookup(NewResourceKey(1, 1, 100))
	assert.ErrorIs(t, err, ErrUseAfterClose)
	keys, err := chain.Keys()
	assert.Nil(t, keys)
	assert.ErrorIs(t, err, ErrUseAfterClose)
	assert.ErrorIs(t, chain.Close(), ErrUseAfterClose)
}
