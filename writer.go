// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package dbpf

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Packer builds a new archive. Resources are appended to the output as they
// arrive; the index and the real header are written by Finalize, which is
// the only time the packer seeks backwards.
//
// A Packer is not safe for concurrent use. Compression can be done up front
// on many goroutines with Codec.Encode and the results handed to
// WritePayload from a single goroutine.
type Packer struct {
	w        io.WriteSeeker
	file     *os.File
	path     string
	tempPath string

	header Header
	index  *Index
	names  *NameAllocator
	codec  Codec
	logger logrus.FieldLogger

	cursor    int64
	finalized bool
	closed    bool
	err       error // sticky write failure
}

type packerOptions struct {
	logger   logrus.FieldLogger
	hash     HashFunc
	codec    Codec
	created  time.Time
	modified time.Time
}

// PackerOption configures NewPacker and Create.
type PackerOption func(*packerOptions)

// WithPackerLogger sets the logger used for diagnostics.
func WithPackerLogger(logger logrus.FieldLogger) PackerOption {
	return func(o *packerOptions) {
		o.logger = logger
	}
}

// WithNameHash sets the hash used to derive temporary key names.
func WithNameHash(hash HashFunc) PackerOption {
	return func(o *packerOptions) {
		o.hash = hash
	}
}

// WithPackerCodec sets the codec used by WriteResource.
func WithPackerCodec(codec Codec) PackerOption {
	return func(o *packerOptions) {
		o.codec = codec
	}
}

// WithTimestamps records creation and modification dates in the header.
// Both default to zero, which keeps output reproducible. Dates the header's
// 32-bit seconds cannot hold make NewPacker fail.
func WithTimestamps(created, modified time.Time) PackerOption {
	return func(o *packerOptions) {
		o.created = created
		o.modified = modified
	}
}

// NewPacker starts an archive on w, which must be positioned at the start of
// the archive. A placeholder header is written immediately. The caller keeps
// ownership of w.
func NewPacker(w io.WriteSeeker, opts ...PackerOption) (*Packer, error) {
	o := packerOptions{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	header := newHeader()
	var err error
	if header.CreatedDate, err = unixSeconds(o.created); err != nil {
		return nil, errors.Wrap(err, "created date")
	}
	if header.ModifiedDate, err = unixSeconds(o.modified); err != nil {
		return nil, errors.Wrap(err, "modified date")
	}

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return nil, ioFailure(err, "seek to header")
	}
	if err := writeHeader(w, &header); err != nil {
		return nil, ioFailure(err, "write placeholder header")
	}

	return &Packer{
		w:      w,
		header: header,
		index:  NewIndex(),
		names:  NewNameAllocator(o.hash),
		codec:  o.codec,
		logger: o.logger,
		cursor: HeaderSize,
	}, nil
}

// Create starts an archive that will be written to path. Data goes to a
// temporary file in the same directory; Close moves it into place only if
// Finalize succeeded, and deletes it otherwise.
func Create(path string, opts ...PackerOption) (*Packer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ioFailure(err, "create directory")
	}

	file, err := os.CreateTemp(dir, ".dbpf_*.tmp")
	if err != nil {
		return nil, ioFailure(err, "create temp file")
	}

	p, err := NewPacker(file, opts...)
	if err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, err
	}
	p.file = file
	p.path = path
	p.tempPath = file.Name()
	return p, nil
}

// WriteResource appends data under key, compressing it first if compress is
// set and the codec finds it worthwhile. A key that was already written is
// rejected with ErrDuplicateKey before anything reaches the output.
func (p *Packer) WriteResource(key ResourceKey, data []byte, compress bool) error {
	if err := p.checkWrite(key); err != nil {
		return err
	}
	if uint64(len(data)) > math.MaxUint32 {
		return errors.Errorf("write %s: resource of %d bytes is too large", key, len(data))
	}
	return p.writePayload(key, p.codec.Encode(data, compress))
}

// WriteResourceFunc appends the bytes fn writes under key. Nothing reaches
// the output if fn fails.
func (p *Packer) WriteResourceFunc(key ResourceKey, compress bool, fn func(w io.Writer) error) error {
	if err := p.checkWrite(key); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return errors.Wrapf(err, "produce %s", key)
	}
	return p.WriteResource(key, buf.Bytes(), compress)
}

// WritePayload appends an already-encoded payload, as produced by
// Codec.Encode or Reader.ReadStored.
func (p *Packer) WritePayload(key ResourceKey, payload Payload) error {
	if err := p.checkWrite(key); err != nil {
		return err
	}
	switch payload.Compression {
	case CompressionNone:
		if uint64(len(payload.Data)) != uint64(payload.UncompressedSize) {
			return errors.Wrapf(ErrCorruptPayload, "write %s: raw payload is %d bytes, declared %d",
				key, len(payload.Data), payload.UncompressedSize)
		}
	case CompressionRefPack:
	default:
		return errors.Wrapf(ErrUnsupportedCompression, "write %s: flag 0x%04X", key, uint16(payload.Compression))
	}
	return p.writePayload(key, payload)
}

// AllocateTemporaryKey returns a key whose instance ID has not been used in
// this packing session. Only the instance ID is set.
func (p *Packer) AllocateTemporaryKey(prefix string) (ResourceKey, error) {
	return p.names.Next(prefix)
}

// Names exposes the allocator, so callers can reserve keys up front.
func (p *Packer) Names() *NameAllocator {
	return p.names
}

// Finalize writes the index after the last resource and rewrites the header
// with its location. The archive is valid only once Finalize returns nil; on
// error the output must be discarded.
func (p *Packer) Finalize() error {
	if p.closed {
		return ErrUseAfterClose
	}
	if p.finalized {
		return ErrAlreadyFinalized
	}
	if p.err != nil {
		return p.err
	}

	data := encodeIndex(p.index.entries)
	indexOffset := p.cursor
	if uint64(indexOffset)+uint64(len(data)) > math.MaxUint32 {
		return errors.Errorf("finalize: archive would exceed %d bytes", uint64(math.MaxUint32))
	}
	if _, err := p.w.Write(data); err != nil {
		p.err = ioFailure(err, "write index")
		return p.err
	}
	p.cursor += int64(len(data))

	p.header.IndexCount = uint32(p.index.Len())
	p.header.IndexOffset = uint32(indexOffset)
	p.header.IndexSize = uint32(len(data))

	if _, err := p.w.Seek(0, io.SeekStart); err != nil {
		p.err = ioFailure(err, "seek to header")
		return p.err
	}
	if err := writeHeader(p.w, &p.header); err != nil {
		p.err = ioFailure(err, "write header")
		return p.err
	}
	if _, err := p.w.Seek(p.cursor, io.SeekStart); err != nil {
		p.err = ioFailure(err, "seek to end")
		return p.err
	}

	p.finalized = true
	p.logger.WithFields(logrus.Fields{
		"resources":    p.index.Len(),
		"index_offset": indexOffset,
		"size":         p.cursor,
	}).Info("finalized archive")
	return nil
}

// Close releases the packer. For a packer made by Create, the archive is
// moved to its destination if Finalize succeeded; otherwise the partial file
// is deleted and ErrNotFinalized is returned.
func (p *Packer) Close() error {
	if p.closed {
		return ErrUseAfterClose
	}
	p.closed = true

	complete := p.finalized && p.err == nil
	if p.file == nil {
		if !complete {
			return ErrNotFinalized
		}
		return nil
	}

	if !complete {
		p.file.Close()
		os.Remove(p.tempPath)
		return errors.Wrapf(ErrNotFinalized, "discarded %s", p.path)
	}

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		os.Remove(p.tempPath)
		return ioFailure(err, "sync archive")
	}
	if err := p.file.Close(); err != nil {
		os.Remove(p.tempPath)
		return ioFailure(err, "close archive")
	}

	// Move temp file to final path
	if err := os.Rename(p.tempPath, p.path); err != nil {
		if err := copyFile(p.tempPath, p.path); err != nil {
			os.Remove(p.tempPath)
			return ioFailure(err, "save archive")
		}
		os.Remove(p.tempPath)
	}
	return nil
}

// Abort discards the archive. It is safe to call after Close.
func (p *Packer) Abort() {
	if p.closed {
		return
	}
	p.closed = true
	if p.file != nil {
		p.file.Close()
		os.Remove(p.tempPath)
	}
}

// Finalized reports whether Finalize has completed.
func (p *Packer) Finalized() bool {
	return p.finalized
}

// Header returns the header as it stands; it is final once Finalize returns.
func (p *Packer) Header() Header {
	return p.header
}

// Len returns the number of resources written so far.
func (p *Packer) Len() int {
	return p.index.Len()
}

// Has reports whether key has been written.
func (p *Packer) Has(key ResourceKey) bool {
	return p.index.Has(key)
}

// Entries returns the index entries written so far, in write order.
func (p *Packer) Entries() []IndexEntry {
	return p.index.Entries()
}

// Offset returns the current write cursor.
func (p *Packer) Offset() int64 {
	return p.cursor
}

func (p *Packer) checkWrite(key ResourceKey) error {
	switch {
	case p.closed:
		return ErrUseAfterClose
	case p.finalized:
		return errors.Wrapf(ErrAlreadyFinalized, "write %s", key)
	case p.err != nil:
		return p.err
	case p.index.Has(key):
		return errors.Wrapf(ErrDuplicateKey, "write %s", key)
	}
	return nil
}

func (p *Packer) writePayload(key ResourceKey, payload Payload) error {
	size := uint64(len(payload.Data))
	if uint64(p.cursor)+size > math.MaxUint32 {
		return errors.Errorf("write %s: archive would exceed %d bytes", key, uint64(math.MaxUint32))
	}

	offset := p.cursor
	if _, err := p.w.Write(payload.Data); err != nil {
		p.err = ioFailure(err, "write resource data")
		return p.err
	}
	p.cursor += int64(size)

	entry := IndexEntry{
		Key:              key,
		Offset:           uint32(offset),
		CompressedSize:   uint32(size),
		UncompressedSize: payload.UncompressedSize,
		Compression:      payload.Compression,
	}
	if err := p.index.Add(entry); err != nil {
		return err
	}
	p.names.claim(key)

	p.logger.WithFields(logrus.Fields{
		"key":         key.String(),
		"offset":      offset,
		"stored":      entry.CompressedSize,
		"size":        entry.UncompressedSize,
		"compression": entry.Compression.String(),
	}).Debug("wrote resource")
	return nil
}

// unixSeconds converts t for the header's 32-bit date fields. The zero time
// maps to 0.
func unixSeconds(t time.Time) (uint32, error) {
	if t.IsZero() {
		return 0, nil
	}
	sec := t.Unix()
	if sec < 0 || sec > math.MaxUint32 {
		return 0, errors.Errorf("%s does not fit in 32-bit unix seconds", t.UTC().Format(time.RFC3339))
	}
	return uint32(sec), nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
