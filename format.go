// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// DBPF format constants
const (
	// Magic signature "DBPF" in little-endian
	dbpfMagic = 0x46504244

	majorVersion      = 2
	minorVersion      = 0
	indexMinorVersion = 3

	// HeaderSize is the size of the fixed header at offset 0.
	HeaderSize = 96

	// Index type flags: a set bit means the field is stored once in the index
	// preamble instead of in every record.
	indexConstType     = 0x1
	indexConstGroup    = 0x2
	indexConstReserved = 0x4

	// The packer always writes a constant zero reserved word.
	writerIndexFlags = indexConstReserved

	// Record fields that are always present: instance, offset, sizes,
	// compression, committed.
	recordBaseSize = 4 + 4 + 4 + 4 + 2 + 2

	// High bit of the stored size marks the record as extended.
	sizeExtendedBit = 0x80000000

	committedFlag = 1
)

// Header is the fixed 96-byte record at the start of every archive.
type Header struct {
	Magic             uint32 // "DBPF"
	MajorVersion      uint32
	MinorVersion      uint32
	UserMajorVersion  uint32
	UserMinorVersion  uint32
	Flags             uint32
	CreatedDate       uint32 // unix seconds
	ModifiedDate      uint32 // unix seconds
	IndexMajorVersion uint32
	IndexCount        uint32 // number of index records
	LegacyIndexOffset uint32 // unused in version 2
	IndexSize         uint32 // byte length of the index table
	HoleCount         uint32
	HoleOffset        uint32
	HoleSize          uint32
	IndexMinorVersion uint32
	IndexOffset       uint32 // byte offset of the index table
	Reserved          uint32
	Padding           [24]byte
}

// newHeader returns the header the packer writes, with an empty index.
func newHeader() Header {
	return Header{
		Magic:             dbpfMagic,
		MajorVersion:      majorVersion,
		MinorVersion:      minorVersion,
		IndexMinorVersion: indexMinorVersion,
	}
}

// validate checks magic and version.
func (h *Header) validate() error {
	if h.Magic != dbpfMagic {
		return errors.Wrapf(ErrBadMagic, "got 0x%08X", h.Magic)
	}
	if h.MajorVersion != majorVersion || h.MinorVersion != minorVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "archive version %d.%d", h.MajorVersion, h.MinorVersion)
	}
	if h.IndexMinorVersion != indexMinorVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "index version %d", h.IndexMinorVersion)
	}
	return nil
}

// IndexEntry locates one resource in the archive.
type IndexEntry struct {
	Key              ResourceKey
	Offset           uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Compression      Compression
}

// Compressed reports whether the entry must be decoded on read.
func (e IndexEntry) Compressed() bool {
	return e.Compression != CompressionNone
}

// end is the offset one past the entry's stored bytes.
func (e IndexEntry) end() uint64 {
	return uint64(e.Offset) + uint64(e.CompressedSize)
}

// readHeader reads the header from a reader
func readHeader(r io.Reader) (Header, error) {
	var h Header
	err := binary.Read(r, binary.LittleEndian, &h)
	return h, err
}

// writeHeader writes the header to a writer
func writeHeader(w io.Writer, h *Header) error {
	return binary.Write(w, binary.LittleEndian, h)
}

// indexRecordSize returns the size of one record for the given type flags.
func indexRecordSize(flags uint32) int {
	size := recordBaseSize
	if flags&indexConstType == 0 {
		size += 4
	}
	if flags&indexConstGroup == 0 {
		size += 4
	}
	if flags&indexConstReserved == 0 {
		size += 4
	}
	return size
}

// indexSize returns the serialized length of an index the packer writes.
func indexSize(count int) int {
	return 4 + 4 + count*indexRecordSize(writerIndexFlags)
}

// encodeIndex serializes entries in order, using the packer's layout: a
// constant zero reserved word and full type/group in every record.
func encodeIndex(entries []IndexEntry) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, indexSize(len(entries))))
	le := binary.LittleEndian

	var word [4]byte
	put32 := func(v uint32) {
		le.PutUint32(word[:], v)
		buf.Write(word[:])
	}
	put16 := func(v uint16) {
		le.PutUint16(word[:2], v)
		buf.Write(word[:2])
	}

	put32(writerIndexFlags)
	put32(0) // reserved
	for _, e := range entries {
		put32(e.Key.TypeID)
		put32(e.Key.GroupID)
		put32(e.Key.InstanceID)
		put32(e.Offset)
		put32(e.CompressedSize | sizeExtendedBit)
		put32(e.UncompressedSize)
		put16(uint16(e.Compression))
		put16(committedFlag)
	}
	return buf.Bytes()
}

// decodeIndex parses count records from data. Every record's extent is
// checked against fileSize.
func decodeIndex(data []byte, count uint32, fileSize int64) ([]IndexEntry, error) {
	le := binary.LittleEndian
	pos := 0
	next := func() (uint32, bool) {
		if pos+4 > len(data) {
			return 0, false
		}
		v := le.Uint32(data[pos:])
		pos += 4
		return v, true
	}
	short := func() error {
		return errors.Wrapf(ErrTruncatedArchive, "index table is %d bytes, too short for %d records", len(data), count)
	}

	flags, ok := next()
	if !ok {
		return nil, short()
	}
	var constType, constGroup uint32
	if flags&indexConstType != 0 {
		if constType, ok = next(); !ok {
			return nil, short()
		}
	}
	if flags&indexConstGroup != 0 {
		if constGroup, ok = next(); !ok {
			return nil, short()
		}
	}
	if flags&indexConstReserved != 0 {
		if _, ok = next(); !ok {
			return nil, short()
		}
	}

	recordSize := indexRecordSize(flags)
	if uint64(len(data)-pos) < uint64(count)*uint64(recordSize) {
		return nil, short()
	}

	entries := make([]IndexEntry, count)
	for i := range entries {
		e := &entries[i]
		e.Key.TypeID = constType
		e.Key.GroupID = constGroup
		if flags&indexConstType == 0 {
			e.Key.TypeID, _ = next()
		}
		if flags&indexConstGroup == 0 {
			e.Key.GroupID, _ = next()
		}
		if flags&indexConstReserved == 0 {
			next()
		}
		e.Key.InstanceID, _ = next()
		e.Offset, _ = next()
		size, _ := next()
		e.CompressedSize = size &^ sizeExtendedBit
		e.UncompressedSize, _ = next()
		e.Compression = Compression(le.Uint16(data[pos:]))
		pos += 4 // compression flag + committed flag

		switch e.Compression {
		case CompressionNone, CompressionRefPack:
		default:
			return nil, errors.Wrapf(ErrUnsupportedCompression, "entry %s: flag 0x%04X", e.Key, uint16(e.Compression))
		}
		if e.end() > uint64(fileSize) {
			return nil, errors.Wrapf(ErrTruncatedArchive, "entry %s: bytes [%d, %d) past end of file (%d bytes)",
				e.Key, e.Offset, e.end(), fileSize)
		}
	}
	return entries, nil
}
