// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceKeyString(t *testing.T) {
	key := NewResourceKey(0x40404000, 0x9EA3031A, 0x2F7D0004)
	assert.Equal(t, "40404000!9EA3031A.2F7D0004", key.String())

	parsed, err := ParseResourceKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	parsed, err = ParseResourceKey("0x1!0x2.0x3")
	require.NoError(t, err)
	assert.Equal(t, NewResourceKey(1, 2, 3), parsed)
}

func TestParseResourceKeyErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"00000001",
		"00000001!00000002",
		"00000001.00000002!00000003",
		"00000001!!00000003",
		"zzzzzzzz!00000002.00000003",
		"100000000!00000002.00000003",
	} {
		_, err := ParseResourceKey(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestResourceKeyOrdering(t *testing.T) {
	keys := []ResourceKey{
		NewResourceKey(2, 0, 0),
		NewResourceKey(1, 2, 1),
		NewResourceKey(1, 1, 9),
		NewResourceKey(1, 2, 0),
	}
	slices.SortFunc(keys, ResourceKey.Compare)
	assert.Equal(t, []ResourceKey{
		NewResourceKey(1, 1, 9),
		NewResourceKey(1, 2, 0),
		NewResourceKey(1, 2, 1),
		NewResourceKey(2, 0, 0),
	}, keys)

	a := NewResourceKey(1, 1, 1)
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, a.Less(NewResourceKey(1, 1, 2)))
	assert.False(t, NewResourceKey(1, 1, 2).Less(a))
}

func TestDefaultHash(t *testing.T) {
	tests := []struct {
		name string
		want uint32
	}{
		{"", 0x811C9DC5},
		{"a", 0x050C5D7E},
		{"creature", 0x9EA3031A},
		{"CREATURE", 0x9EA3031A},
		{"Creature", 0x9EA3031A},
		{"#1A2B3C4D", 0x1A2B3C4D},
		{"0x0000ABCD", 0x0000ABCD},
		{"0XFFFFFFFF", 0xFFFFFFFF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultHash(tt.name), "DefaultHash(%q)", tt.name)
	}
}

func TestParseHexName(t *testing.T) {
	v, ok := ParseHexName("#00000010")
	assert.True(t, ok)
	assert.Equal(t, uint32(0x10), v)

	for _, name := range []string{"creature", "#", "0x", "#123456789", "#xyz"} {
		_, ok := ParseHexName(name)
		assert.False(t, ok, "name %q", name)
	}

	assert.Equal(t, "#0000ABCD", HexName(0xABCD))
	v, ok = ParseHexName(HexName(0xDEADBEEF))
	assert.True(t, ok)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}

func TestNameAllocatorDeterministic(t *testing.T) {
	a := NewNameAllocator(nil)
	b := NewNameAllocator(DefaultHash)

	for i := 0; i < 10; i++ {
		ka, err := a.Next("editor_temp")
		require.NoError(t, err)
		kb, err := b.Next("editor_temp")
		require.NoError(t, err)
		assert.Equal(t, ka, kb)
	}

	first, err := NewNameAllocator(nil).Next("tmp")
	require.NoError(t, err)
	assert.Equal(t, ResourceKey{InstanceID: 0xA941085C}, first)
}

func TestNameAllocatorSkipsRegistered(t *testing.T) {
	a := NewNameAllocator(nil)
	registered := ResourceKey{InstanceID: DefaultHash("tmp0")}
	require.NoError(t, a.Register(registered))

	key, err := a.Next("tmp")
	require.NoError(t, err)
	assert.Equal(t, DefaultHash("tmp1"), key.InstanceID)
	assert.True(t, a.Contains(key))
	assert.True(t, a.Contains(registered))
}

func TestNameAllocatorSkipsRegisteredInstance(t *testing.T) {
	a := NewNameAllocator(nil)
	// Group and type differ from what Next issues; the instance alone
	// must keep tmp0 off the table.
	registered := NewResourceKey(5, DefaultHash("tmp0"), 7)
	require.NoError(t, a.Register(registered))

	key, err := a.Next("tmp")
	require.NoError(t, err)
	assert.Equal(t, DefaultHash("tmp1"), key.InstanceID)

	// Same instance under another group and type is still a distinct key.
	require.NoError(t, a.Register(NewResourceKey(6, DefaultHash("tmp0"), 7)))
}

func TestNameAllocatorRejectsCollision(t *testing.T) {
	a := NewNameAllocator(nil)
	issued, err := a.Next("tmp")
	require.NoError(t, err)

	err = a.Register(issued)
	assert.True(t, IsDuplicateKey(err))

	other := NewResourceKey(1, 2, 3)
	require.NoError(t, a.Register(other))
	assert.True(t, IsDuplicateKey(a.Register(other)))
}

func TestNameAllocatorCollidingHash(t *testing.T) {
	// A hash with only two outputs forces the allocator to skip.
	parity := func(name string) uint32 { return uint32(len(name) % 2) }
	a := NewNameAllocator(parity)

	seen := map[ResourceKey]bool{}
	for i := 0; i < 2; i++ {
		key, err := a.Next("p")
		require.NoError(t, err)
		assert.False(t, seen[key])
		seen[key] = true
	}
	assert.Len(t, seen, 2)

	_, err := a.Next("p")
	assert.True(t, IsDuplicateKey(err), "%v", err)
}

func TestNameAllocatorExhausted(t *testing.T) {
	a := NewNameAllocator(func(string) uint32 { return 7 })

	key, err := a.Next("a")
	require.NoError(t, err)
	assert.Equal(t, ResourceKey{InstanceID: 7}, key)

	done := make(chan error, 1)
	go func() {
		_, err := a.Next("a")
		done <- err
	}()
	select {
	case err := <-done:
		assert.True(t, IsDuplicateKey(err), "%v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("Next did not give up on an exhausted hash")
	}
}
