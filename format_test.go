// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderLayout(t *testing.T) {
	assert.Equal(t, HeaderSize, binary.Size(Header{}))

	h := newHeader()
	h.IndexCount = 3
	h.IndexSize = 92
	h.IndexOffset = 0x1234

	var buf bytes.Buffer
	require.NoError(t, writeHeader(&buf, &h))
	raw := buf.Bytes()
	require.Len(t, raw, HeaderSize)

	le := binary.LittleEndian
	assert.Equal(t, []byte("DBPF"), raw[0:4])
	assert.Equal(t, uint32(2), le.Uint32(raw[4:]))
	assert.Equal(t, uint32(0), le.Uint32(raw[8:]))
	assert.Equal(t, uint32(3), le.Uint32(raw[36:]))
	assert.Equal(t, uint32(92), le.Uint32(raw[44:]))
	assert.Equal(t, uint32(3), le.Uint32(raw[60:]))
	assert.Equal(t, uint32(0x1234), le.Uint32(raw[64:]))
	assert.Equal(t, make([]byte, 24), raw[72:])

	back, err := readHeader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, h, back)
	assert.NoError(t, back.validate())
}

func TestEncodeIndexLayout(t *testing.T) {
	entries := []IndexEntry{{
		Key:              NewResourceKey(0x11111111, 0x22222222, 0x33333333),
		Offset:           96,
		CompressedSize:   40,
		UncompressedSize: 100,
		Compression:      CompressionRefPack,
	}}
	raw := encodeIndex(entries)
	require.Len(t, raw, indexSize(1))
	assert.Equal(t, 8+28, len(raw))

	le := binary.LittleEndian
	assert.Equal(t, uint32(indexConstReserved), le.Uint32(raw[0:]))
	assert.Equal(t, uint32(0), le.Uint32(raw[4:]))

	rec := raw[8:]
	assert.Equal(t, uint32(0x33333333), le.Uint32(rec[0:]), "type")
	assert.Equal(t, uint32(0x11111111), le.Uint32(rec[4:]), "group")
	assert.Equal(t, uint32(0x22222222), le.Uint32(rec[8:]), "instance")
	assert.Equal(t, uint32(96), le.Uint32(rec[12:]), "offset")
	assert.Equal(t, uint32(40|0x80000000), le.Uint32(rec[16:]), "compressed size")
	assert.Equal(t, uint32(100), le.Uint32(rec[20:]), "uncompressed size")
	assert.Equal(t, uint16(0xFFFF), le.Uint16(rec[24:]), "compression")
	assert.Equal(t, uint16(1), le.Uint16(rec[26:]), "committed")

	idx := NewIndex()
	require.NoError(t, idx.Add(entries[0]))
	marshaled, err := idx.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, raw, marshaled)
}

// indexBuilder writes index tables with arbitrary type flags, the way
// archives from other tools lay them out.
type indexBuilder struct {
	flags uint32
	typ   uint32
	group uint32
	buf   []byte
}

func newIndexBuilder(flags, typ, group uint32) *indexBuilder {
	b := &indexBuilder{flags: flags, typ: typ, group: group}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, flags)
	if flags&indexConstType != 0 {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, typ)
	}
	if flags&indexConstGroup != 0 {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, group)
	}
	if flags&indexConstReserved != 0 {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, 0)
	}
	return b
}

func (b *indexBuilder) add(e IndexEntry) {
	le := binary.LittleEndian
	if b.flags&indexConstType == 0 {
		b.buf = le.AppendUint32(b.buf, e.Key.TypeID)
	}
	if b.flags&indexConstGroup == 0 {
		b.buf = le.AppendUint32(b.buf, e.Key.GroupID)
	}
	if b.flags&indexConstReserved == 0 {
		b.buf = le.AppendUint32(b.buf, 0xDEADBEEF)
	}
	b.buf = le.AppendUint32(b.buf, e.Key.InstanceID)
	b.buf = le.AppendUint32(b.buf, e.Offset)
	b.buf = le.AppendUint32(b.buf, e.CompressedSize|sizeExtendedBit)
	b.buf = le.AppendUint32(b.buf, e.UncompressedSize)
	b.buf = le.AppendUint16(b.buf, uint16(e.Compression))
	b.buf = le.AppendUint16(b.buf, committedFlag)
}

func TestDecodeIndexFlagVariants(t *testing.T) {
	const typ, group = 0x2F7D0004, 0x40404000
	entries := []IndexEntry{
		{Key: NewResourceKey(group, 1, typ), Offset: 96, CompressedSize: 10, UncompressedSize: 10},
		{Key: NewResourceKey(group, 2, typ), Offset: 106, CompressedSize: 5, UncompressedSize: 50, Compression: CompressionRefPack},
	}

	for flags := uint32(0); flags < 8; flags++ {
		b := newIndexBuilder(flags, typ, group)
		for _, e := range entries {
			b.add(e)
		}
		want := 4 + len(entries)*indexRecordSize(flags)
		if flags&indexConstType != 0 {
			want += 4
		}
		if flags&indexConstGroup != 0 {
			want += 4
		}
		if flags&indexConstReserved != 0 {
			want += 4
		}
		require.Len(t, b.buf, want, "flags %d", flags)

		got, err := decodeIndex(b.buf, uint32(len(entries)), 1000)
		require.NoError(t, err, "flags %d", flags)
		assert.Equal(t, entries, got, "flags %d", flags)
	}
}

func TestDecodeIndexRejects(t *testing.T) {
	entry := IndexEntry{Key: NewResourceKey(1, 2, 3), Offset: 96, CompressedSize: 10, UncompressedSize: 10}
	raw := encodeIndex([]IndexEntry{entry})

	t.Run("short table", func(t *testing.T) {
		_, err := decodeIndex(raw[:len(raw)-1], 1, 1000)
		assert.True(t, IsTruncated(err))
		_, err = decodeIndex(raw, 2, 1000)
		assert.True(t, IsTruncated(err))
		_, err = decodeIndex(nil, 0, 1000)
		assert.True(t, IsTruncated(err))
	})

	t.Run("extent past end of file", func(t *testing.T) {
		_, err := decodeIndex(raw, 1, 105)
		assert.True(t, IsTruncated(err))
		_, err = decodeIndex(raw, 1, 106)
		assert.NoError(t, err)
	})
}

func TestIndexOrderAndLookup(t *testing.T) {
	idx := NewIndex()
	keys := []ResourceKey{
		NewResourceKey(9, 9, 9),
		NewResourceKey(1, 1, 1),
		NewResourceKey(5, 5, 5),
	}
	for i, k := range keys {
		require.NoError(t, idx.Add(IndexEntry{Key: k, Offset: uint32(100 + i)}))
	}
	assert.True(t, IsDuplicateKey(idx.Add(IndexEntry{Key: keys[1]})))
	assert.Equal(t, 3, idx.Len())

	var order []ResourceKey
	for k := range idx.All() {
		order = append(order, k)
	}
	assert.Equal(t, keys, order)

	e, ok := idx.Get(keys[2])
	require.True(t, ok)
	assert.Equal(t, uint32(102), e.Offset)
	_, ok = idx.Get(NewResourceKey(0, 0, 0))
	assert.False(t, ok)

	copied := idx.Entries()
	copied[0].Offset = 0
	e, _ = idx.Get(keys[0])
	assert.Equal(t, uint32(100), e.Offset)
}
