// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Reader gives read-only access to an existing archive. The index is parsed
// when the reader is opened; resource bytes are read and decoded on each
// request and never cached.
//
// A Reader is not safe for concurrent use. Open one Reader per goroutine if
// the same archive must be read in parallel.
type Reader struct {
	rs     io.ReadSeeker
	closer io.Closer
	path   string
	size   int64
	header Header
	index  *Index
	codec  Codec
	logger logrus.FieldLogger
	closed bool
}

type readerOptions struct {
	logger logrus.FieldLogger
	codec  Codec
}

// ReaderOption configures Open and NewReader.
type ReaderOption func(*readerOptions)

// WithReaderLogger sets the logger used for diagnostics.
func WithReaderLogger(logger logrus.FieldLogger) ReaderOption {
	return func(o *readerOptions) {
		o.logger = logger
	}
}

// WithReaderCodec sets the codec used to decode compressed resources.
func WithReaderCodec(codec Codec) ReaderOption {
	return func(o *readerOptions) {
		o.codec = codec
	}
}

// Open opens an archive file. On failure nothing stays open.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ioFailure(err, "open archive")
	}

	r, err := newReader(file, file, path, opts)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return r, nil
}

// NewReader reads an archive from rs, for example one embedded in another
// resource. The caller keeps ownership of rs; Close does not close it.
func NewReader(rs io.ReadSeeker, opts ...ReaderOption) (*Reader, error) {
	return newReader(rs, nil, "", opts)
}

func newReader(rs io.ReadSeeker, closer io.Closer, path string, opts []ReaderOption) (*Reader, error) {
	o := readerOptions{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, ioFailure(err, "determine archive size")
	}
	if size < HeaderSize {
		return nil, errors.Wrapf(ErrTruncatedArchive, "file is %d bytes, header needs %d", size, HeaderSize)
	}

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, ioFailure(err, "seek to header")
	}
	header, err := readHeader(rs)
	if err != nil {
		return nil, ioFailure(err, "read header")
	}
	if err := header.validate(); err != nil {
		return nil, err
	}

	index, err := readIndex(rs, &header, size)
	if err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"archive":   path,
		"resources": index.Len(),
		"size":      size,
	}).Debug("opened archive")

	return &Reader{
		rs:     rs,
		closer: closer,
		path:   path,
		size:   size,
		header: header,
		index:  index,
		codec:  o.codec,
		logger: o.logger,
	}, nil
}

// readIndex locates the index through the header and parses it.
func readIndex(rs io.ReadSeeker, header *Header, size int64) (*Index, error) {
	if header.IndexCount == 0 && header.IndexSize == 0 {
		return NewIndex(), nil
	}

	indexEnd := uint64(header.IndexOffset) + uint64(header.IndexSize)
	if indexEnd > uint64(size) {
		return nil, errors.Wrapf(ErrTruncatedArchive, "index [%d, %d) past end of file (%d bytes)",
			header.IndexOffset, indexEnd, size)
	}
	if header.IndexOffset < HeaderSize {
		return nil, errors.Wrapf(ErrTruncatedArchive, "index offset %d overlaps the header", header.IndexOffset)
	}

	if _, err := rs.Seek(int64(header.IndexOffset), io.SeekStart); err != nil {
		return nil, ioFailure(err, "seek to index")
	}
	data := make([]byte, header.IndexSize)
	if _, err := io.ReadFull(rs, data); err != nil {
		return nil, ioFailure(err, "read index")
	}

	entries, err := decodeIndex(data, header.IndexCount, size)
	if err != nil {
		return nil, err
	}
	return newIndexFrom(entries)
}

// Path returns the file the reader was opened from, or "" for NewReader.
func (r *Reader) Path() string {
	return r.path
}

// Header returns a copy of the archive header.
func (r *Reader) Header() Header {
	return r.header
}

// Size returns the archive length in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Len returns the number of resources in the archive.
func (r *Reader) Len() int {
	if r.closed {
		return 0
	}
	return r.index.Len()
}

// Has reports whether the archive contains key.
func (r *Reader) Has(key ResourceKey) bool {
	return !r.closed && r.index.Has(key)
}

// Entry returns the index entry for key.
func (r *Reader) Entry(key ResourceKey) (IndexEntry, bool) {
	if r.closed {
		return IndexEntry{}, false
	}
	return r.index.Get(key)
}

// Entries returns the index entries in stored order.
func (r *Reader) Entries() ([]IndexEntry, error) {
	if r.closed {
		return nil, ErrUseAfterClose
	}
	return r.index.Entries(), nil
}

// Keys returns every key in stored order.
func (r *Reader) Keys() ([]ResourceKey, error) {
	if r.closed {
		return nil, ErrUseAfterClose
	}
	keys := make([]ResourceKey, 0, r.index.Len())
	for k := range r.index.All() {
		keys = append(keys, k)
	}
	return keys, nil
}

// Err returns ErrUseAfterClose once the reader is closed. Len, Has, Entry
// and Iterate report an empty archive after Close; Err tells that apart from
// an archive that really is empty.
func (r *Reader) Err() error {
	if r.closed {
		return ErrUseAfterClose
	}
	return nil
}

// Iterate yields every key and entry in stored order. It reads only the
// in-memory index and may be ranged over repeatedly. A closed reader yields
// nothing.
func (r *Reader) Iterate() iter.Seq2[ResourceKey, IndexEntry] {
	return func(yield func(ResourceKey, IndexEntry) bool) {
		if r.closed {
			return
		}
		for k, e := range r.index.All() {
			if !yield(k, e) {
				return
			}
		}
	}
}

// Lookup returns the decoded bytes for key. A missing key is not an error:
// it returns nil, false, nil.
func (r *Reader) Lookup(key ResourceKey) ([]byte, bool, error) {
	if r.closed {
		return nil, false, ErrUseAfterClose
	}
	e, ok := r.index.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, err := r.extract(e)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Extract returns the decoded bytes for key, or ErrNotFound.
func (r *Reader) Extract(key ResourceKey) ([]byte, error) {
	if r.closed {
		return nil, ErrUseAfterClose
	}
	e, ok := r.index.Get(key)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "key %s", key)
	}
	return r.extract(e)
}

// ExtractFile writes the decoded bytes for key to destPath, creating parent
// directories as needed.
func (r *Reader) ExtractFile(key ResourceKey, destPath string) error {
	data, err := r.Extract(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return ioFailure(err, "create directory")
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return ioFailure(err, "write file")
	}
	return nil
}

// ReadStored returns the resource exactly as stored, without decoding it.
// The payload can be handed to Packer.WritePayload to copy a resource
// byte-for-byte.
func (r *Reader) ReadStored(key ResourceKey) (Payload, error) {
	if r.closed {
		return Payload{}, ErrUseAfterClose
	}
	e, ok := r.index.Get(key)
	if !ok {
		return Payload{}, errors.Wrapf(ErrNotFound, "key %s", key)
	}
	data, err := r.readStored(e)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		Data:             data,
		UncompressedSize: e.UncompressedSize,
		Compression:      e.Compression,
	}, nil
}

// Close releases the underlying file. Any later call fails with
// ErrUseAfterClose.
func (r *Reader) Close() error {
	if r.closed {
		return ErrUseAfterClose
	}
	r.closed = true
	r.index = NewIndex()
	if r.closer != nil {
		return ioFailure(r.closer.Close(), "close archive")
	}
	return nil
}

func (r *Reader) extract(e IndexEntry) ([]byte, error) {
	stored, err := r.readStored(e)
	if err != nil {
		return nil, err
	}
	data, err := r.codec.Decode(Payload{
		Data:             stored,
		UncompressedSize: e.UncompressedSize,
		Compression:      e.Compression,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", e.Key)
	}

	r.logger.WithFields(logrus.Fields{
		"key":         e.Key.String(),
		"stored":      e.CompressedSize,
		"size":        e.UncompressedSize,
		"compression": e.Compression.String(),
	}).Debug("extracted resource")
	return data, nil
}

func (r *Reader) readStored(e IndexEntry) ([]byte, error) {
	if _, err := r.rs.Seek(int64(e.Offset), io.SeekStart); err != nil {
		return nil, ioFailure(err, "seek to resource data")
	}
	data := make([]byte, e.CompressedSize)
	if _, err := io.ReadFull(r.rs, data); err != nil {
		return nil, ioFailure(err, "read resource data")
	}
	return data, nil
}
